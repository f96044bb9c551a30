// Package logging holds the process-wide zap logger and the request
// logging middleware of the HTTP server.
package logging

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and destination of the global logger.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	OutputPath string // stdout, stderr or a file path
}

type ctxKey struct{}

var (
	current atomic.Pointer[zap.Logger]
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init replaces the global logger. An unknown level falls back to info.
func Init(cfg Config) error {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)

	zc := zap.NewProductionConfig()
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.EncoderConfig.EncodeCaller = nil
		zc.Sampling = nil
	}
	zc.Level = level
	if cfg.OutputPath != "" {
		zc.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := zc.Build(zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	current.Store(logger)
	return nil
}

// SetLogger installs l as the global logger; nil restores the default.
func SetLogger(l *zap.Logger) {
	current.Store(l)
}

// L returns the global logger. Before Init it is a production JSON
// logger on stderr.
func L() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	l, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	if current.CompareAndSwap(nil, l) {
		return l
	}
	return current.Load()
}

// Sync flushes buffered entries.
func Sync() error {
	if l := current.Load(); l != nil {
		return l.Sync()
	}
	return nil
}

// Named returns a component logger for direct use (no helper frame to skip).
func Named(name string) *zap.Logger {
	return L().Named(name).WithOptions(zap.AddCallerSkip(-1))
}

// WithContext returns the request-scoped logger stored by Middleware, or
// the global one.
func WithContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return L().WithOptions(zap.AddCallerSkip(-1))
}

// WithRequestID returns ctx carrying a logger tagged with requestID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, WithContext(ctx).With(zap.String("request_id", requestID)))
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

var requestSeq atomic.Uint64

// newRequestID is unique per process: start time plus a sequence number.
func newRequestID() string {
	return strconv.FormatInt(processStart, 36) + "-" + strconv.FormatUint(requestSeq.Add(1), 36)
}

var processStart = time.Now().Unix()

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Middleware tags each request with an X-Request-ID (kept when the client
// sends one) and logs it on completion. Server errors log at warn.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := WithRequestID(r.Context(), id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int64("size", rec.bytes),
			zap.Duration("duration", time.Since(start)),
		}
		l := WithContext(ctx)
		if rec.status >= http.StatusInternalServerError {
			l.Warn("request failed", fields...)
			return
		}
		l.Info("request completed", fields...)
	})
}
