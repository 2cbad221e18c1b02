package runtime

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/adapters/config/file"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/storage/memory"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/storage/sqlite"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(g *Gateway) error {
		provider, err := file.NewProvider(path, g.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		g.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
// For advanced use cases where you need full control over config loading.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(g *Gateway) error {
		g.config = provider
		return nil
	}
}

// WithSQLite stores the usage ledger in a SQLite database, overriding the
// storage section of the config.
func WithSQLite(path string) Option {
	return func(g *Gateway) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		g.setStore(store)
		return nil
	}
}

// WithMemoryStorage keeps the usage ledger in memory.
func WithMemoryStorage() Option {
	return func(g *Gateway) error {
		g.setStore(memory.New())
		return nil
	}
}

// WithoutStorage disables the usage ledger.
func WithoutStorage() Option {
	return func(g *Gateway) error {
		g.setStore(nil)
		return nil
	}
}

// WithUsageStore sets a custom usage ledger.
func WithUsageStore(store ports.UsageStore) Option {
	return func(g *Gateway) error {
		g.setStore(store)
		return nil
	}
}

// WithLogger sets a custom logger. Apply it first so later options log
// through it.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithPort overrides the configured listen port. Zero keeps the config value.
func WithPort(port int) Option {
	return func(g *Gateway) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
		g.port = port
		return nil
	}
}

// WithMetricsRegistry sets the Prometheus registry served on /metrics.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(g *Gateway) error {
		g.metrics = reg
		return nil
	}
}

// WithTraceWriter sends exported spans to w instead of stdout.
func WithTraceWriter(w io.Writer) Option {
	return func(g *Gateway) error {
		g.traceWriter = w
		return nil
	}
}
