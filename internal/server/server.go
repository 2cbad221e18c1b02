package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures the HTTP server.
type Options struct {
	Port           int
	RequestTimeout time.Duration
	ServiceName    string

	// Registry receives the HTTP metrics and backs /metrics. Nil disables both.
	Registry *prometheus.Registry
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	srv    *http.Server
}

func New(opts Options, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	if opts.Registry != nil {
		r.Use(MetricsMiddleware(NewHTTPMetrics(opts.Registry)))
	}
	if opts.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	r.Use(middleware.Recoverer)

	name := opts.ServiceName
	if name == "" {
		name = "text-completion-gateway"
	}
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, name)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	return &Server{
		Router: r,
		Port:   opts.Port,
		logger: logger,
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown, including one that happened before Start.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
