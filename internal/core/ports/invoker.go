// Package ports defines the interfaces between the emulation engine and its
// collaborators: model backends, response consumers, the usage ledger and
// configuration sources.
package ports

import (
	"context"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/stream"
)

// Invocation is a flattened prompt ready for a text-completion backend.
type Invocation struct {
	Model         string
	Prompt        string
	StopSequences []string
	MaxTokens     int
	Temperature   *float32
	TopP          *float32
	UserAgent     string
}

// Completion is a non-streaming backend answer.
type Completion struct {
	Text         string
	FinishReason domain.FinishReason

	// Usage is nil when the backend does not report token counts.
	Usage *domain.Usage
}

// Invoker calls a text-completion backend. Implementations treat the output
// as plain text; the engine does all decoding.
type Invoker interface {
	// Name returns the backend type name.
	Name() string

	// Complete returns the whole completion at once.
	Complete(ctx context.Context, inv *Invocation) (*Completion, error)

	// Stream returns the raw completion text as it is generated. Closing the
	// stream cancels the backend call.
	Stream(ctx context.Context, inv *Invocation) (stream.Stream, error)
}

// UsageReporter is implemented by streams whose backend reports token usage
// once the stream is exhausted.
type UsageReporter interface {
	Usage() *domain.Usage
}

// FinishReporter is implemented by streams whose backend reports why
// generation ended.
type FinishReporter interface {
	FinishReason() domain.FinishReason
}
