package textcompletion

import (
	"errors"
	"net/http"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/backend/registry"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/pkg/config"
)

// BackendType is the configuration type name of this backend.
const BackendType = "textcompletion"

// RegisterFactory registers the completions backend with the backend registry.
func RegisterFactory() {
	if registry.IsRegistered(BackendType) {
		return
	}
	registry.RegisterFactory(registry.BackendFactory{
		Type:           BackendType,
		Description:    "OpenAI-compatible /completions endpoint",
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	})
}

// CreateFromConfig builds a client from backend configuration.
func CreateFromConfig(cfg config.BackendConfig) (ports.Invoker, error) {
	opts := []ClientOption{WithBaseURL(cfg.BaseURL)}
	if cfg.Timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return NewClient(cfg.Name, cfg.APIKey, opts...), nil
}

// ValidateConfig requires an explicit base URL.
func ValidateConfig(cfg config.BackendConfig) error {
	if cfg.BaseURL == "" {
		return errors.New("base_url is required")
	}
	return nil
}
