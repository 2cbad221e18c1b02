package ports

import "github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"

// Consumer receives the decoded events of one chat response.
// Implementations must be safe for concurrent use across choices.
type Consumer interface {
	// Choice returns the consumer for the choice with the given index.
	Choice(index int) ChoiceConsumer

	AddUsage(usage domain.Usage) error
	SetDiscardedMessages(count int) error
}

// ChoiceConsumer receives the events of a single choice in order.
// CloseContent is always the last call.
type ChoiceConsumer interface {
	AppendContent(text string) error
	AddToolCall(call domain.ToolCall) error
	CloseContent(reason domain.FinishReason) error
}
