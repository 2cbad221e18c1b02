package tokens

import (
	"context"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/chathistory"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/truncation"
)

// PromptTokenizer measures a message subset by rendering it with the profile
// and counting the resulting prompt text.
func PromptTokenizer(counter Counter, model string, profile chathistory.Profile) truncation.Tokenizer {
	return func(ctx context.Context, messages []domain.Message) (int, error) {
		prompt := chathistory.Format(messages, profile)
		return counter.CountText(ctx, model, prompt.Text)
	}
}
