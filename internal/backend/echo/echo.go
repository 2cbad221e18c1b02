// Package echo is a deterministic local backend. It answers with the final
// human turn of the prompt and needs no network access.
package echo

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/backend/registry"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/pkg/config"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/stream"
)

// BackendType is the configuration type name of this backend.
const BackendType = "echo"

const defaultChunkSize = 4

// Backend echoes prompts. It implements ports.Invoker.
type Backend struct {
	name      string
	chunkSize int
}

var _ ports.Invoker = (*Backend)(nil)

// New returns an echo backend that streams in chunks of chunkSize bytes.
func New(name string, chunkSize int) *Backend {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Backend{name: name, chunkSize: chunkSize}
}

// RegisterFactory registers the echo backend with the backend registry.
func RegisterFactory() {
	if registry.IsRegistered(BackendType) {
		return
	}
	registry.RegisterFactory(registry.BackendFactory{
		Type:        BackendType,
		Description: "Local backend that repeats the last human turn",
		Create: func(cfg config.BackendConfig) (ports.Invoker, error) {
			return New(cfg.Name, 0), nil
		},
	})
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Complete(ctx context.Context, inv *ports.Invocation) (*ports.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, finish := b.reply(inv)
	return &ports.Completion{Text: text, FinishReason: finish}, nil
}

func (b *Backend) Stream(ctx context.Context, inv *ports.Invocation) (stream.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, _ := b.reply(inv)
	return stream.FromSlice(split(text, b.chunkSize)...), nil
}

func (b *Backend) reply(inv *ports.Invocation) (string, domain.FinishReason) {
	text := LastHumanTurn(inv.Prompt, inv.StopSequences)
	if inv.MaxTokens > 0 && len(text) > inv.MaxTokens {
		cut := inv.MaxTokens
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut], domain.FinishReasonLength
	}
	return text, domain.FinishReasonStop
}

// LastHumanTurn returns the prompt text that follows the last stop sequence,
// minus the trailing invitation line. A prompt without stop sequences is
// returned unchanged.
func LastHumanTurn(prompt string, stops []string) string {
	tail, found := prompt, false
	for _, s := range stops {
		if s == "" {
			continue
		}
		if i := strings.LastIndex(prompt, s); i >= 0 && len(prompt)-i-len(s) < len(tail) {
			tail, found = prompt[i+len(s):], true
		}
	}
	if !found {
		return prompt
	}
	if i := strings.LastIndex(tail, "\n"); i >= 0 {
		tail = tail[:i]
	}
	return strings.TrimRight(tail, "\n")
}

// split cuts s into pieces of about size bytes without splitting runes.
func split(s string, size int) []string {
	var out []string
	for len(s) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			_, cut = utf8.DecodeRuneInString(s)
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
