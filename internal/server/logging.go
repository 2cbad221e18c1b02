package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type logFieldsKey struct{}

// logFields collects attributes handlers add while serving a request. Choices
// of one chat request run concurrently, so access is locked.
type logFields struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

func (f *logFields) add(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.attrs {
		if a.Key == key {
			f.attrs[i].Value = slog.StringValue(value)
			return
		}
	}
	f.attrs = append(f.attrs, slog.String(key, value))
}

func (f *logFields) snapshot() []slog.Attr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]slog.Attr(nil), f.attrs...)
}

// LoggingMiddleware writes one structured line per request when it completes.
// Server errors are logged at error level, client errors at warn. The start
// of each request is logged at debug level.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := GetRequestID(r.Context())

			fields := &logFields{}
			ctx := context.WithValue(r.Context(), logFieldsKey{}, fields)
			rw := &loggingResponseWriter{ResponseWriter: w}

			logger.DebugContext(ctx, "request started",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)

			next.ServeHTTP(rw, r.WithContext(ctx))

			status := rw.status()
			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int64("bytes", rw.written),
				slog.Duration("duration", time.Since(start)),
			}
			attrs = append(attrs, fields.snapshot()...)

			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			logger.LogAttrs(ctx, level, "request completed", attrs...)
		})
	}
}

// loggingResponseWriter records the status and body size. SSE responses need
// Flush to reach the client, so it is forwarded.
type loggingResponseWriter struct {
	http.ResponseWriter
	code    int
	written int64
}

func (rw *loggingResponseWriter) WriteHeader(code int) {
	if rw.code == 0 {
		rw.code = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *loggingResponseWriter) Write(b []byte) (int, error) {
	if rw.code == 0 {
		rw.code = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *loggingResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *loggingResponseWriter) status() int {
	if rw.code == 0 {
		return http.StatusOK
	}
	return rw.code
}

// AddLogField adds key=value to the completion line of the current request.
// Empty values and requests without LoggingMiddleware are ignored.
func AddLogField(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	if fields, ok := ctx.Value(logFieldsKey{}).(*logFields); ok {
		fields.add(key, value)
	}
}

// AddError records err on the completion line of the current request.
func AddError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	AddLogField(ctx, "error", err.Error())
	if TimedOut(ctx) {
		AddLogField(ctx, "timeout", "true")
	}
}
