package ports

import (
	"context"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}
