package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	RequestIDMiddleware(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if seen == "" {
		t.Fatal("Expected request ID in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("X-Request-ID = %q, want %q", got, seen)
	}
}

func TestRequestIDMiddleware_ReusesIncomingID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "trace-abc")
	rec := httptest.NewRecorder()
	RequestIDMiddleware(handler).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "trace-abc" {
		t.Errorf("X-Request-ID = %q, want trace-abc", got)
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec1 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec1, httptest.NewRequest("GET", "/", nil))
	rec2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec2, httptest.NewRequest("GET", "/", nil))

	if id1, id2 := rec1.Header().Get("X-Request-ID"), rec2.Header().Get("X-Request-ID"); id1 == id2 {
		t.Errorf("Expected unique request IDs, got same: %s", id1)
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("Expected empty string, got %q", id)
	}
}

func TestTimeoutMiddleware_ContextCancelled(t *testing.T) {
	contextCancelled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			contextCancelled = true
		case <-time.After(time.Second):
		}
	})

	rec := httptest.NewRecorder()
	TimeoutMiddleware(10*time.Millisecond)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if !contextCancelled {
		t.Error("Expected context to be cancelled due to timeout")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "deployment", "claude-v2")
		AddLogField(r.Context(), "empty_field", "")
		AddError(r.Context(), errors.New("prompt too long"))
		w.WriteHeader(http.StatusBadRequest)
	})

	wrapped := RequestIDMiddleware(LoggingMiddleware(logger)(testHandler))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/test-path", nil))

	output := buf.String()
	for _, want := range []string{"request started", "request completed", "level=WARN", "/test-path", "deployment=claude-v2", "status=400", "prompt too long"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in log output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "empty_field") {
		t.Errorf("Empty field should not be in log output, got: %s", output)
	}
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusBadGateway, "level=ERROR"},
	}
	for _, tt := range tests {
		var buf strings.Builder
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte("body"))
		})
		LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

		out := buf.String()
		if strings.Contains(out, "request started") {
			t.Errorf("start line should only appear at debug level, got: %s", out)
		}
		if !strings.Contains(out, tt.want) || !strings.Contains(out, "bytes=4") {
			t.Errorf("status %d: expected %s and bytes=4, got: %s", tt.status, tt.want, out)
		}
	}
}

func TestTimeoutMiddleware_Cause(t *testing.T) {
	var timedOut bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		timedOut = TimedOut(r.Context())
	})
	TimeoutMiddleware(10*time.Millisecond)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !timedOut {
		t.Error("expected the timeout cause on the request context")
	}
	if TimedOut(context.Background()) {
		t.Error("background context should not report a timeout")
	}
}

func TestAddLogField_NoMiddleware(t *testing.T) {
	AddLogField(context.Background(), "key", "value")
	AddError(context.Background(), nil)
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(m))
	r.Post("/deployments/{id}/chat", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/deployments/"+id+"/chat", nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/deployments/{id}/chat", "POST", "201"))
	if got != 2 {
		t.Errorf("request counter = %v, want 2", got)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	srv := New(Options{Port: 0, RequestTimeout: time.Second, Registry: prometheus.NewRegistry()}, logger)

	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("/health = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gateway_http_requests_total") {
		t.Errorf("expected HTTP metrics in /metrics output")
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := New(Options{}, slog.Default())
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
