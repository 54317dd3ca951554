package logging

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

type Config struct {
	Level    zapcore.Level
	FilePath string
	// MaxSize is the rotation size of FilePath in megabytes.
	MaxSize int
}

var (
	mu      sync.Mutex
	conf    = Config{Level: zapcore.InfoLevel, MaxSize: 10}
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	once    sync.Once
	logger  *zap.Logger
	isColor = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }
)

// SetConfig must be called before the first DefaultLogger call to take
// full effect. Later calls only change the level.
func SetConfig(c *Config) {
	mu.Lock()
	defer mu.Unlock()
	conf = *c
	if conf.MaxSize <= 0 {
		conf.MaxSize = 10
	}
	level.SetLevel(c.Level)
}

func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// NewLogger builds a console core on stdout plus, when FilePath is set, a
// JSON core on a rotated file. Colour is used only on a terminal so worker
// output captured into bot log files stays plain.
func NewLogger(c *Config) *zap.Logger {
	return newLogger(c, zap.NewAtomicLevelAt(c.Level))
}

func newLogger(c *Config, lvl zap.AtomicLevel) *zap.Logger {
	ec := zap.NewProductionEncoderConfig()
	ec.CallerKey = ""
	ec.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("02/01/2006 03:04:05 PM"))
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if isColor() {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.Lock(os.Stdout), lvl),
	}
	if c.FilePath != "" {
		fc := zap.NewProductionEncoderConfig()
		fc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fc), zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.MaxSize,
			MaxBackups: 3,
			MaxAge:     15,
			Compress:   true,
		}), lvl))
	}
	return zap.New(zapcore.NewTee(cores...))
}

func DefaultLogger() *zap.Logger {
	once.Do(func() {
		mu.Lock()
		c := conf
		mu.Unlock()
		logger = newLogger(&c, level)
	})
	return logger
}

// Component returns a child of the default logger named after the
// subsystem (SUPERVISOR, API, WORKER, ...).
func Component(name string) *zap.Logger {
	return DefaultLogger().Named(name)
}

func WithLogger(ctx context.Context, lg *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, lg)
}

func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if lg, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return lg
		}
	}
	return DefaultLogger()
}
