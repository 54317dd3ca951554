// Package chizap logs go-chi/chi requests with zap.
package chizap

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Fn func(ctx context.Context) []zapcore.Field

type Skipper func(r *http.Request) bool

type Config struct {
	TimeFormat   string
	UTC          bool
	SkipPaths    []string
	Context      Fn
	DefaultLevel zapcore.Level

	Skipper Skipper
}

func Chizap(logger *zap.Logger, timeFormat string, utc bool) func(next http.Handler) http.Handler {
	return ChizapWithConfig(logger, &Config{TimeFormat: timeFormat, UTC: utc, DefaultLevel: zapcore.InfoLevel})
}

// ChizapWithConfig logs one entry per request. Server errors log at error
// level, client errors at warn, everything else at DefaultLevel.
func ChizapWithConfig(logger *zap.Logger, conf *Config) func(next http.Handler) http.Handler {
	skipPaths := make(map[string]bool, len(conf.SkipPaths))
	for _, path := range conf.SkipPaths {
		skipPaths[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[r.URL.Path] || (conf.Skipper != nil && conf.Skipper(r)) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				end := time.Now()
				latency := end.Sub(start)
				if conf.UTC {
					end = end.UTC()
				}

				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zapcore.Field{
					zap.Int("status", status),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("query", r.URL.RawQuery),
					zap.String("ip", r.RemoteAddr),
					zap.String("user-agent", r.UserAgent()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", latency),
				}
				if id := middleware.GetReqID(r.Context()); id != "" {
					fields = append(fields, zap.String("request-id", id))
				}
				if conf.TimeFormat != "" {
					fields = append(fields, zap.String("time", end.Format(conf.TimeFormat)))
				}
				if conf.Context != nil {
					fields = append(fields, conf.Context(r.Context())...)
				}

				switch {
				case status >= 500:
					logger.Error("http.request", fields...)
				case status >= 400:
					logger.Warn("http.request", fields...)
				default:
					logger.Log(conf.DefaultLevel, "http.request", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
