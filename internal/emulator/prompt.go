package emulator

import (
	"context"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/chathistory"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/truncation"
)

// FormatAndTruncate drops what the limits require (system messages and the
// last message are never dropped) and renders the rest with profile.
// Failures are *truncation.Error values.
func FormatAndTruncate(ctx context.Context, messages []domain.Message, profile chathistory.Profile, tokenize truncation.Tokenizer, limits truncation.Limits) (domain.PromptResult, error) {
	outcome, err := truncation.Truncate(ctx, messages, tokenize, truncation.KeepSystemAndLast, limits)
	if err != nil {
		return domain.PromptResult{}, err
	}

	prompt := chathistory.Format(outcome.Kept(messages), profile)
	return domain.PromptResult{
		Text:           prompt.Text,
		StopSequences:  prompt.StopSequences,
		DiscardedCount: len(outcome.Discarded),
		Discarded:      outcome.Discarded,
	}, nil
}

// mergeStops concatenates stop sequence lists, dropping empties and repeats.
func mergeStops(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
