// Package openai holds the OpenAI chat completions wire types served by the
// frontdoor, including the DIAL extensions (max_prompt_tokens, statistics,
// tokenize and truncate_prompt).
package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ChatCompletionRequest represents an OpenAI chat completion request.
type ChatCompletionRequest struct {
	Model           string                  `json:"model,omitempty"`
	Messages        []ChatCompletionMessage `json:"messages"`
	MaxTokens       int                     `json:"max_tokens,omitempty"`
	MaxPromptTokens int                     `json:"max_prompt_tokens,omitempty"`
	Temperature     *float32                `json:"temperature,omitempty"`
	TopP            *float32                `json:"top_p,omitempty"`
	N               int                     `json:"n,omitempty"`
	Stream          bool                    `json:"stream,omitempty"`
	Stop            Stop                    `json:"stop,omitempty"`
	User            string                  `json:"user,omitempty"`
	Tools           []Tool                  `json:"tools,omitempty"`
	ToolChoice      any                     `json:"tool_choice,omitempty"`

	// Functions and FunctionCall are the deprecated tool declaration fields.
	Functions    []FunctionTool `json:"functions,omitempty"`
	FunctionCall any            `json:"function_call,omitempty"`
}

// Stop accepts either a single string or a list of strings.
type Stop []string

func (s *Stop) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = Stop{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ChatCompletionMessage represents a message in the chat completion request.
type ChatCompletionMessage struct {
	Role         string        `json:"role"`
	Content      Content       `json:"content"`
	Name         string        `json:"name,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// ErrNonTextContent is returned for content parts other than text.
var ErrNonTextContent = errors.New("only text content parts are supported")

// Content is message text given either as a string or as a list of text
// parts, which are joined.
type Content string

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content(s)
		return nil
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type != "text" {
			return ErrNonTextContent
		}
		texts = append(texts, p.Text)
	}
	*c = Content(strings.Join(texts, "\n"))
	return nil
}

// Tool represents a tool that the model can call.
type Tool struct {
	Type     string       `json:"type"`
	Function FunctionTool `json:"function"`
}

// FunctionTool describes a function tool.
type FunctionTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall represents a tool call made by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a function call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletionResponse represents an OpenAI chat completion response.
type ChatCompletionResponse struct {
	ID         string      `json:"id"`
	Object     string      `json:"object"`
	Created    int64       `json:"created"`
	Model      string      `json:"model"`
	Choices    []Choice    `json:"choices"`
	Usage      *Usage      `json:"usage,omitempty"`
	Statistics *Statistics `json:"statistics,omitempty"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant message of a choice.
type ResponseMessage struct {
	Role         string        `json:"role"`
	Content      *string       `json:"content"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Statistics carries the DIAL prompt statistics.
type Statistics struct {
	DiscardedMessages int `json:"discarded_messages"`
}

// ChatCompletionChunk represents a streaming chunk.
type ChatCompletionChunk struct {
	ID         string        `json:"id"`
	Object     string        `json:"object"`
	Created    int64         `json:"created"`
	Model      string        `json:"model"`
	Choices    []ChunkChoice `json:"choices"`
	Usage      *Usage        `json:"usage,omitempty"`
	Statistics *Statistics   `json:"statistics,omitempty"`
}

// ChunkChoice represents a choice in a streaming chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta represents the delta content in a streaming chunk.
type ChunkDelta struct {
	Role         string             `json:"role,omitempty"`
	Content      string             `json:"content,omitempty"`
	ToolCalls    []ToolCallChunk    `json:"tool_calls,omitempty"`
	FunctionCall *FunctionCallChunk `json:"function_call,omitempty"`
}

// ToolCallChunk represents a tool call in streaming.
type ToolCallChunk struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function *FunctionCallChunk `json:"function,omitempty"`
}

// FunctionCallChunk represents a function call in streaming.
type FunctionCallChunk struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Model represents a deployment listed by the models endpoint.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList represents a list of models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// BatchRequest is the body of the tokenize and truncate_prompt endpoints.
type BatchRequest struct {
	Inputs []BatchInput `json:"inputs"`
}

// BatchInput is either a whole chat request ("request") or a bare string
// ("string", tokenize only).
type BatchInput struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// BatchResponse holds one output per input, in order.
type BatchResponse[T any] struct {
	Outputs []T `json:"outputs"`
}

// TokenizeOutput reports the token count of a single input.
type TokenizeOutput struct {
	Status     string `json:"status"`
	TokenCount *int   `json:"token_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TruncatePromptOutput lists the messages a single input would lose.
type TruncatePromptOutput struct {
	Status            string `json:"status"`
	DiscardedMessages []int  `json:"discarded_messages"`
	Error             string `json:"error,omitempty"`
}
