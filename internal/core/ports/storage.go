package ports

import (
	"context"
	"time"
)

// CompletionRecord is one entry of the usage ledger.
type CompletionRecord struct {
	ID                string    `json:"id"`
	Deployment        string    `json:"deployment"`
	Streaming         bool      `json:"streaming"`
	Choices           int       `json:"choices"`
	PromptTokens      int       `json:"prompt_tokens"`
	CompletionTokens  int       `json:"completion_tokens"`
	DiscardedMessages int       `json:"discarded_messages"`
	FinishReason      string    `json:"finish_reason,omitempty"`
	Error             string    `json:"error,omitempty"`
	DurationMs        int64     `json:"duration_ms"`
	CreatedAt         time.Time `json:"created_at"`
}

// ListOptions defines options for listing ledger entries.
type ListOptions struct {
	Deployment string
	Limit      int
	Offset     int
}

// UsageStore persists completion records.
type UsageStore interface {
	SaveCompletion(ctx context.Context, rec *CompletionRecord) error

	// GetCompletion returns storage.ErrNotFound for unknown ids.
	GetCompletion(ctx context.Context, id string) (*CompletionRecord, error)

	// ListCompletions returns the newest records first.
	ListCompletions(ctx context.Context, opts ListOptions) ([]*CompletionRecord, error)

	Close() error
}
