package openai

import (
	"fmt"
	"strings"

	api "github.com/epam/ai-dial-adapter-bedrock-sub000/internal/api/openai"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/consumer"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
)

// toChatRequest maps an OpenAI chat request onto the canonical request.
func toChatRequest(deployment string, req *api.ChatCompletionRequest) (*domain.ChatRequest, error) {
	messages, err := toMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	out := &domain.ChatRequest{
		Deployment:      deployment,
		Messages:        messages,
		Stream:          req.Stream,
		N:               req.N,
		Stop:            []string(req.Stop),
		MaxTokens:       req.MaxTokens,
		MaxPromptTokens: req.MaxPromptTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
	}

	if len(req.Tools) > 0 && len(req.Functions) > 0 {
		return nil, domain.ErrInvalidRequest("tools and functions cannot be combined").WithParam("functions")
	}
	for i, tool := range req.Tools {
		if tool.Type != "" && tool.Type != "function" {
			return nil, domain.ErrInvalidRequest(fmt.Sprintf("unsupported tool type %q", tool.Type)).
				WithParam(fmt.Sprintf("tools[%d].type", i))
		}
		out.Tools = append(out.Tools, toToolDefinition(tool.Function))
	}
	for _, fn := range req.Functions {
		out.Tools = append(out.Tools, toToolDefinition(fn))
	}
	out.LegacyFunctions = len(req.Functions) > 0

	return out, nil
}

func toToolDefinition(fn api.FunctionTool) domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        fn.Name,
		Description: fn.Description,
		Parameters:  fn.Parameters,
	}
}

func toMessages(in []api.ChatCompletionMessage) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(in))
	// Tool results may omit the function name; recover it from the call id.
	callNames := make(map[string]string)

	for i, m := range in {
		role, ok := domain.ParseRole(m.Role)
		if !ok {
			return nil, domain.ErrInvalidRequest(fmt.Sprintf("unsupported role %q", m.Role)).
				WithParam(fmt.Sprintf("messages[%d].role", i))
		}

		msg := domain.Message{Role: role, Text: string(m.Content)}

		switch strings.ToLower(m.Role) {
		case "assistant":
			for _, tc := range m.ToolCalls {
				call := domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
				msg.ToolCalls = append(msg.ToolCalls, call)
				callNames[tc.ID] = tc.Function.Name
			}
			if m.FunctionCall != nil {
				msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
					Name:      m.FunctionCall.Name,
					Arguments: m.FunctionCall.Arguments,
				})
			}
		case "tool":
			if m.ToolCallID == "" {
				return nil, domain.ErrInvalidRequest("tool message requires tool_call_id").
					WithParam(fmt.Sprintf("messages[%d].tool_call_id", i))
			}
			name := m.Name
			if name == "" {
				name = callNames[m.ToolCallID]
			}
			msg.ToolResult = &domain.ToolResult{CallID: m.ToolCallID, Name: name, Output: msg.Text}
		case "function":
			if m.Name == "" {
				return nil, domain.ErrInvalidRequest("function message requires name").
					WithParam(fmt.Sprintf("messages[%d].name", i))
			}
			msg.ToolResult = &domain.ToolResult{Name: m.Name, Output: msg.Text}
		}

		out = append(out, msg)
	}
	return out, nil
}

// toResponse renders a collected non-streaming answer.
func toResponse(id, model string, created int64, legacy bool, c *consumer.Collector) *api.ChatCompletionResponse {
	resp := &api.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []api.Choice{},
	}

	for _, ch := range c.Choices() {
		msg := api.ResponseMessage{Role: "assistant"}
		if ch.Content != "" || len(ch.ToolCalls) == 0 {
			content := ch.Content
			msg.Content = &content
		}
		if legacy && len(ch.ToolCalls) > 0 {
			call := ch.ToolCalls[0]
			msg.FunctionCall = &api.FunctionCall{Name: call.Name, Arguments: call.Arguments}
		} else {
			for _, call := range ch.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID:       call.ID,
					Type:     "function",
					Function: api.FunctionCall{Name: call.Name, Arguments: call.Arguments},
				})
			}
		}

		resp.Choices = append(resp.Choices, api.Choice{
			Index:        ch.Index,
			Message:      msg,
			FinishReason: string(ch.FinishReason),
		})
	}

	usage := c.Usage()
	resp.Usage = &api.Usage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
	if n, ok := c.DiscardedMessages(); ok {
		resp.Statistics = &api.Statistics{DiscardedMessages: n}
	}
	return resp
}
