package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrRequestTimeout is the cancellation cause of requests that ran past the
// configured request timeout.
var ErrRequestTimeout = errors.New("request timeout exceeded")

// TimeoutMiddleware cancels the request context after timeout. Cancellation is
// cooperative: the backend call and the decode loop observe ctx and stop, the
// handler then reports whatever error surfaced.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeoutCause(r.Context(), timeout, ErrRequestTimeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TimedOut reports whether ctx was cancelled by TimeoutMiddleware.
func TimedOut(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrRequestTimeout)
}
