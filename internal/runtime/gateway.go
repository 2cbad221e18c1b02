// Package runtime provides the core Gateway struct and lifecycle management
// for the text-completion gateway.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/backend/registry"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/deployment"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/emulator"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/frontdoor/openai"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/pkg/config"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/server"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/storage/memory"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/storage/sqlite"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/telemetry"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/tokens"
)

// Gateway is the main entry point for running the gateway.
// It owns configuration, the deployment table, the usage ledger and the
// HTTP server lifecycle. Gateway can be embedded in larger applications or
// run standalone.
type Gateway struct {
	// Dependencies (injected via options)
	config      ports.ConfigProvider
	store       ports.UsageStore
	storeSet    bool
	logger      *slog.Logger
	port        int
	metrics     *prometheus.Registry
	traceWriter io.Writer

	// Internal state
	counters       *tokens.Registry
	deployments    *deployment.Registry
	emulator       *emulator.Emulator
	server         *server.Server
	tracerShutdown func(context.Context) error
	serveErr       chan error

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a new Gateway with the given options.
// A config provider is required; storage defaults to the config's
// storage section.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger:   slog.Default(),
		serveErr: make(chan error, 1),
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfigProvider)")
	}
	if gw.metrics == nil {
		gw.metrics = prometheus.NewRegistry()
		gw.metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return gw, nil
}

func (g *Gateway) setStore(store ports.UsageStore) {
	if g.store != nil {
		g.store.Close()
	}
	g.store = store
	g.storeSet = true
}

// Init loads the configuration and wires every component without listening.
// Start calls it; tests can call it directly and use Handler.
func (g *Gateway) Init(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.init(ctx)
}

func (g *Gateway) init(ctx context.Context) error {
	if g.server != nil {
		return nil
	}

	g.ctx, g.cancel = context.WithCancel(ctx)

	cfg, err := g.config.Load(g.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !g.storeSet {
		store, err := openStore(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		g.store = store
		g.storeSet = true
	}

	g.tracerShutdown, err = telemetry.InitTracer(telemetry.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Tracing,
		Writer:      g.traceWriter,
	}, g.logger)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	g.counters = tokens.NewRegistry()
	g.counters.Register(tokens.NewTiktokenCounter())

	table, err := g.buildTable(cfg)
	if err != nil {
		return err
	}
	g.deployments = deployment.NewRegistry(table)

	g.emulator = emulator.New(g.deployments,
		emulator.WithLogger(g.logger),
		emulator.WithMetrics(emulator.NewMetrics(g.metrics)),
		emulator.WithTracer(telemetry.Tracer()),
	)

	port := cfg.Server.Port
	if g.port != 0 {
		port = g.port
	}
	g.server = server.New(server.Options{
		Port:           port,
		RequestTimeout: cfg.Server.RequestTimeout,
		ServiceName:    cfg.Telemetry.ServiceName,
		Registry:       g.metrics,
	}, g.logger)

	openai.Mount(g.server.Router, openai.NewHandler(g.emulator, g.store, g.logger))

	g.logger.Info("gateway initialized",
		slog.Int("port", port),
		slog.Int("backends", len(cfg.Backends)),
		slog.Int("deployments", len(table.IDs())),
		slog.Bool("usage_ledger", g.store != nil))
	return nil
}

// Start initializes the gateway, starts the HTTP server in the background
// and begins watching the configuration for changes.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.init(ctx); err != nil {
		return err
	}

	go func() {
		if err := g.server.Start(); err != nil {
			g.logger.Error("server error", slog.String("error", err.Error()))
			g.serveErr <- err
		}
	}()

	go g.watchConfig()

	g.logger.Info("gateway started")
	return nil
}

// Errors reports a failure of the HTTP server after Start.
func (g *Gateway) Errors() <-chan error {
	return g.serveErr
}

// Handler returns the HTTP handler. Valid after Init or Start.
func (g *Gateway) Handler() http.Handler {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server == nil {
		return http.NotFoundHandler()
	}
	return g.server.Router
}

// Deployments returns the ids of the currently served deployments.
func (g *Gateway) Deployments() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deployments == nil {
		return nil
	}
	return g.deployments.Current().IDs()
}

// Shutdown gracefully stops the gateway.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	if g.cancel != nil {
		g.cancel()
	}

	var errs []error
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if g.store != nil {
		if err := g.store.Close(); err != nil {
			g.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if g.config != nil {
		if err := g.config.Close(); err != nil {
			g.logger.Error("failed to close config", slog.String("error", err.Error()))
		}
	}

	if g.tracerShutdown != nil {
		if err := g.tracerShutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}

	g.logger.Info("gateway shutdown complete")
	return errors.Join(errs...)
}

// watchConfig watches for config changes and reloads.
func (g *Gateway) watchConfig() {
	onChange := func(newCfg *config.Config) {
		g.logger.Info("config changed, reloading")
		if err := g.reload(newCfg); err != nil {
			g.logger.Error("failed to reload", slog.String("error", err.Error()))
		}
	}

	if err := g.config.Watch(g.ctx, onChange); err != nil && !errors.Is(err, context.Canceled) {
		g.logger.Error("config watch failed", slog.String("error", err.Error()))
	}
}

// reload swaps in a deployment table built from cfg. Server, storage and
// telemetry settings only take effect on restart.
func (g *Gateway) reload(cfg *config.Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	table, err := g.buildTable(cfg)
	if err != nil {
		return fmt.Errorf("rebuild deployments: %w", err)
	}
	g.deployments.Replace(table)

	g.logger.Info("reload complete", slog.Int("deployments", len(table.IDs())))
	return nil
}

func (g *Gateway) buildTable(cfg *config.Config) (*deployment.Table, error) {
	backends, err := registry.CreateAll(cfg.Backends)
	if err != nil {
		return nil, fmt.Errorf("create backends: %w", err)
	}
	table, err := deployment.Build(cfg, backends, g.counters)
	if err != nil {
		return nil, fmt.Errorf("build deployments: %w", err)
	}
	return table, nil
}

func openStore(cfg config.StorageConfig) (ports.UsageStore, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.New(cfg.SQLite.Path)
	case "none":
		return nil, nil
	default:
		return memory.New(), nil
	}
}
