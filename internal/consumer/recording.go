package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
)

// Recording forwards every event to the wrapped consumer and writes a usage
// ledger entry when Finish is called.
type Recording struct {
	ports.Consumer

	store  ports.UsageStore
	logger *slog.Logger
	start  time.Time

	mu     sync.Mutex
	rec    ports.CompletionRecord
	finish domain.FinishReason
}

var _ ports.Consumer = (*Recording)(nil)

// NewRecording wraps next. A nil store makes Finish a no-op.
func NewRecording(next ports.Consumer, store ports.UsageStore, logger *slog.Logger, id, deployment string, streaming bool) *Recording {
	return &Recording{
		Consumer: next,
		store:    store,
		logger:   logger,
		start:    time.Now(),
		rec: ports.CompletionRecord{
			ID:         id,
			Deployment: deployment,
			Streaming:  streaming,
		},
	}
}

func (r *Recording) Choice(index int) ports.ChoiceConsumer {
	r.mu.Lock()
	if index+1 > r.rec.Choices {
		r.rec.Choices = index + 1
	}
	r.mu.Unlock()
	return &recordingChoice{ChoiceConsumer: r.Consumer.Choice(index), parent: r}
}

func (r *Recording) AddUsage(usage domain.Usage) error {
	r.mu.Lock()
	r.rec.PromptTokens += usage.PromptTokens
	r.rec.CompletionTokens += usage.CompletionTokens
	r.mu.Unlock()
	return r.Consumer.AddUsage(usage)
}

func (r *Recording) SetDiscardedMessages(count int) error {
	r.mu.Lock()
	r.rec.DiscardedMessages = count
	r.mu.Unlock()
	return r.Consumer.SetDiscardedMessages(count)
}

// Finish stores the ledger entry. Storage failures are logged, never returned,
// since the response has already been produced.
func (r *Recording) Finish(ctx context.Context, err error) {
	if r.store == nil {
		return
	}

	r.mu.Lock()
	rec := r.rec
	rec.FinishReason = string(r.finish)
	r.mu.Unlock()

	if err != nil {
		rec.Error = err.Error()
	}
	rec.DurationMs = time.Since(r.start).Milliseconds()

	if saveErr := r.store.SaveCompletion(context.WithoutCancel(ctx), &rec); saveErr != nil {
		r.logger.Warn("failed to record completion",
			slog.String("id", rec.ID),
			slog.String("error", saveErr.Error()),
		)
	}
}

type recordingChoice struct {
	ports.ChoiceConsumer
	parent *Recording
}

func (c *recordingChoice) CloseContent(reason domain.FinishReason) error {
	c.parent.mu.Lock()
	// Tool calls outrank plain stops when choices disagree.
	if c.parent.finish == "" || reason != domain.FinishReasonStop {
		c.parent.finish = reason
	}
	c.parent.mu.Unlock()
	return c.ChoiceConsumer.CloseContent(reason)
}
