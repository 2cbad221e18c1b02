// Package domain holds the canonical types shared by the emulation engine,
// the backends and the frontdoor.
package domain

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a chat turn.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
)

// ParseRole maps wire role names (OpenAI, DIAL) onto a Role.
// Tool and function results are authored by the human side of the dialog.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(s) {
	case "system", "developer":
		return RoleSystem, true
	case "user", "human", "tool", "function":
		return RoleHuman, true
	case "assistant", "ai":
		return RoleAI, true
	}
	return "", false
}

// Message is a single chat turn. Messages are not mutated once built.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`

	// ToolCalls are invocations requested by an AI turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResult is set on a human turn that carries the output of a tool.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// System builds a system message.
func System(text string) Message { return Message{Role: RoleSystem, Text: text} }

// Human builds a human message.
func Human(text string) Message { return Message{Role: RoleHuman, Text: text} }

// AI builds an AI message.
func AI(text string) Message { return Message{Role: RoleAI, Text: text} }

// ToolCall is a decoded tool invocation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object
}

// ToolResult is the output of a previously requested tool call.
type ToolResult struct {
	CallID string `json:"call_id,omitempty"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// ToolDefinition declares a tool the model may call.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"` // JSON Schema
}

// FormattedMessage is one rendered entry of a prompt. Synthetic entries
// (prelude, trailing AI cue) have no Source.
type FormattedMessage struct {
	Text      string
	Source    *Message
	Important bool
}

// PromptResult is what the engine hands to the model invocation.
type PromptResult struct {
	Text           string   `json:"text"`
	StopSequences  []string `json:"stop_sequences"`
	DiscardedCount int      `json:"discarded_count"`

	// Discarded lists the indices of the dropped messages in ascending order.
	Discarded []int `json:"discarded,omitempty"`
}

// FinishReason explains why a choice ended.
type FinishReason string

const (
	FinishReasonStop         FinishReason = "stop"
	FinishReasonLength       FinishReason = "length"
	FinishReasonToolCalls    FinishReason = "tool_calls"
	FinishReasonFunctionCall FinishReason = "function_call"
)

// Usage represents token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
}

// ChatRequest is the canonical chat request handed to the emulator.
type ChatRequest struct {
	Deployment  string           `json:"deployment"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Stream      bool             `json:"stream"`
	N           int              `json:"n,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
	TopP        *float32         `json:"top_p,omitempty"`

	// MaxPromptTokens is the caller's own prompt budget. Zero means unset.
	MaxPromptTokens int `json:"max_prompt_tokens,omitempty"`

	// LegacyFunctions is set when tools were declared through the
	// deprecated "functions" field and must be answered with function_call.
	LegacyFunctions bool `json:"-"`

	// UserAgent is forwarded to upstream APIs for traceability.
	UserAgent string `json:"-"`
}

// Model describes a deployment exposed via the frontdoor.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
	Created int64  `json:"created,omitempty"`
}

// ModelList is the canonical model listing response.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
