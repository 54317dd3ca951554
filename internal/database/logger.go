package database

import (
	"context"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const msgPrefix = "[DB] "

// Logger adapts zap to pgx query tracing and goose output.
type Logger struct {
	lg *zap.Logger
}

func NewLogger(lg *zap.Logger) *Logger {
	return &Logger{lg: lg}
}

func (l *Logger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]zap.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}
	var lvl zapcore.Level
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		lvl = zapcore.DebugLevel
	case tracelog.LogLevelInfo:
		lvl = zapcore.InfoLevel
	case tracelog.LogLevelWarn:
		lvl = zapcore.WarnLevel
	default:
		lvl = zapcore.ErrorLevel
	}
	l.lg.Log(lvl, msgPrefix+msg, fields...)
}

// Printf and Fatalf satisfy goose.Logger.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.lg.Sugar().Infof(msgPrefix+format, v...)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.lg.Sugar().Fatalf(msgPrefix+format, v...)
}

func traceLevel(level string) (tracelog.LogLevel, bool) {
	switch level {
	case "debug":
		return tracelog.LogLevelDebug, true
	case "info":
		return tracelog.LogLevelInfo, true
	case "warn":
		return tracelog.LogLevelWarn, true
	case "error":
		return tracelog.LogLevelError, true
	}
	return tracelog.LogLevelNone, false
}
