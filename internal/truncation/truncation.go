// Package truncation decides which messages are dropped so a dialog fits the
// caller's and the model's prompt token budgets.
package truncation

import (
	"context"
	"fmt"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
)

// Tokenizer counts the prompt tokens of an ordered subset of messages. It may
// over-estimate but must never under-estimate.
type Tokenizer func(ctx context.Context, messages []domain.Message) (int, error)

// KeepFunc reports whether the message at index may never be discarded.
type KeepFunc func(messages []domain.Message, index int) bool

// KeepSystemAndLast keeps every system message and the final message.
func KeepSystemAndLast(messages []domain.Message, index int) bool {
	return messages[index].Role == domain.RoleSystem || index == len(messages)-1
}

// Limits are prompt token budgets. Zero means unset.
type Limits struct {
	Model int
	User  int
}

// Outcome lists the discarded message indices in ascending order.
type Outcome struct {
	Discarded []int
}

// Kept returns the messages that survive truncation, in order.
func (o Outcome) Kept(messages []domain.Message) []domain.Message {
	if len(o.Discarded) == 0 {
		return messages
	}
	drop := make(map[int]struct{}, len(o.Discarded))
	for _, i := range o.Discarded {
		drop[i] = struct{}{}
	}
	kept := make([]domain.Message, 0, len(messages)-len(o.Discarded))
	for i, m := range messages {
		if _, ok := drop[i]; !ok {
			kept = append(kept, m)
		}
	}
	return kept
}

// ErrorKind tags the reason truncation failed.
type ErrorKind int

const (
	// InconsistentLimits means the user limit is above the model limit.
	InconsistentLimits ErrorKind = iota + 1
	// ModelLimitOverflow means the whole dialog exceeds the model limit and
	// no user limit allows dropping messages.
	ModelLimitOverflow
	// UserLimitOverflow means the messages that must be kept already exceed
	// the user limit.
	UserLimitOverflow
)

func (k ErrorKind) String() string {
	switch k {
	case InconsistentLimits:
		return "inconsistent_limits"
	case ModelLimitOverflow:
		return "model_limit_overflow"
	case UserLimitOverflow:
		return "user_limit_overflow"
	default:
		return "unknown"
	}
}

// Error is a failed truncation. Only the fields relevant to Kind are set.
type Error struct {
	Kind       ErrorKind
	UserLimit  int
	ModelLimit int
	Actual     int
}

func (e *Error) Error() string {
	switch e.Kind {
	case InconsistentLimits:
		return fmt.Sprintf("the maximum prompt tokens (%d) exceeds the model context limit (%d)",
			e.UserLimit, e.ModelLimit)
	case ModelLimitOverflow:
		return fmt.Sprintf("the prompt requires %d tokens, which exceeds the model context limit of %d tokens",
			e.Actual, e.ModelLimit)
	case UserLimitOverflow:
		return fmt.Sprintf("the system messages and the last message require %d tokens, which exceeds the maximum prompt tokens of %d",
			e.Actual, e.UserLimit)
	default:
		return "truncation failed"
	}
}

// Truncate computes the messages to discard.
//
// Without a user limit nothing is ever dropped; the model limit is only
// checked. With a user limit the messages selected by keep are retained and
// the rest are re-added newest first until the next one would overflow.
// The tokenizer is re-run on the whole subset each time since rendered prompts
// do not tokenize additively.
func Truncate(ctx context.Context, messages []domain.Message, tokenize Tokenizer, keep KeepFunc, limits Limits) (Outcome, error) {
	if limits.User > 0 && limits.Model > 0 && limits.User > limits.Model {
		return Outcome{}, &Error{Kind: InconsistentLimits, UserLimit: limits.User, ModelLimit: limits.Model}
	}

	if limits.User <= 0 {
		if limits.Model <= 0 {
			return Outcome{}, nil
		}
		n, err := tokenize(ctx, messages)
		if err != nil {
			return Outcome{}, fmt.Errorf("tokenize prompt: %w", err)
		}
		if n > limits.Model {
			return Outcome{}, &Error{Kind: ModelLimitOverflow, ModelLimit: limits.Model, Actual: n}
		}
		return Outcome{}, nil
	}

	kept := make([]bool, len(messages))
	for i := range messages {
		kept[i] = keep(messages, i)
	}

	n, err := tokenize(ctx, subset(messages, kept))
	if err != nil {
		return Outcome{}, fmt.Errorf("tokenize kept messages: %w", err)
	}
	if n > limits.User {
		return Outcome{}, &Error{Kind: UserLimitOverflow, UserLimit: limits.User, Actual: n}
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if kept[i] {
			continue
		}
		kept[i] = true
		n, err := tokenize(ctx, subset(messages, kept))
		if err != nil {
			return Outcome{}, fmt.Errorf("tokenize messages: %w", err)
		}
		if n > limits.User {
			kept[i] = false
			break
		}
	}

	var discarded []int
	for i, k := range kept {
		if !k {
			discarded = append(discarded, i)
		}
	}
	return Outcome{Discarded: discarded}, nil
}

func subset(messages []domain.Message, kept []bool) []domain.Message {
	out := make([]domain.Message, 0, len(messages))
	for i, m := range messages {
		if kept[i] {
			out = append(out, m)
		}
	}
	return out
}
