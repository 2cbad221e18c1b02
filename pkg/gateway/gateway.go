// Package gateway provides the public API for embedding the text-completion
// gateway. This is the stable API for external consumers.
package gateway

import (
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/registration"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/runtime"
)

// Gateway is the main entry point for running the gateway.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// New creates a new Gateway with the given options. Built-in backends are
// registered on first use.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithFileConfig("config.yaml"),
//	    gateway.WithSQLite("./data/usage.db"),
//	)
func New(opts ...Option) (*Gateway, error) {
	registration.RegisterBuiltins()
	return runtime.New(opts...)
}

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Usage ledger
	WithSQLite        = runtime.WithSQLite
	WithMemoryStorage = runtime.WithMemoryStorage
	WithoutStorage    = runtime.WithoutStorage
	WithUsageStore    = runtime.WithUsageStore

	// Advanced options
	WithLogger          = runtime.WithLogger
	WithPort            = runtime.WithPort
	WithMetricsRegistry = runtime.WithMetricsRegistry
	WithTraceWriter     = runtime.WithTraceWriter
)
