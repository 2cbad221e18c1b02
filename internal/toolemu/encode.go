package toolemu

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
)

const callingConvention = `In this environment you have access to a set of tools you can use to answer the user's question.

You may call them like this:
<function_calls>
<invoke>
<tool_name>$TOOL_NAME</tool_name>
<parameters>
<$PARAMETER_NAME>$PARAMETER_VALUE</$PARAMETER_NAME>
...
</parameters>
</invoke>
</function_calls>

Only invoke one tool at a time and wait for its results before invoking another.
Parameters of type object or array must be written as JSON.

Here are the tools available:
`

// SystemPrompt describes the calling convention and the declared tools.
func SystemPrompt(tools []domain.ToolDefinition) string {
	var sb strings.Builder
	sb.WriteString(callingConvention)
	sb.WriteString("<tools>\n")
	for _, tool := range tools {
		writeToolDescription(&sb, tool)
	}
	sb.WriteString("</tools>")
	return sb.String()
}

func writeToolDescription(sb *strings.Builder, tool domain.ToolDefinition) {
	sb.WriteString("<tool_description>\n")
	writeLeaf(sb, "tool_name", tool.Name)
	if tool.Description != "" {
		writeLeaf(sb, "description", tool.Description)
	}

	schema := gjson.ParseBytes(tool.Parameters)
	required := map[string]bool{}
	schema.Get("required").ForEach(func(_, v gjson.Result) bool {
		required[v.String()] = true
		return true
	})

	sb.WriteString("<parameters>\n")
	schema.Get("properties").ForEach(func(name, prop gjson.Result) bool {
		sb.WriteString("<parameter>\n")
		writeLeaf(sb, "name", name.String())
		typ := prop.Get("type").String()
		if typ == "" {
			typ = "string"
		}
		writeLeaf(sb, "type", typ)
		if desc := prop.Get("description").String(); desc != "" {
			writeLeaf(sb, "description", desc)
		}
		if enum := prop.Get("enum"); enum.IsArray() {
			writeLeaf(sb, "enum", enum.Raw)
		}
		if required[name.String()] {
			writeLeaf(sb, "required", "true")
		}
		sb.WriteString("</parameter>\n")
		return true
	})
	sb.WriteString("</parameters>\n")
	sb.WriteString("</tool_description>\n")
}

func writeLeaf(sb *strings.Builder, tag, value string) {
	sb.WriteString("<" + tag + ">")
	sb.WriteString(value)
	sb.WriteString("</" + tag + ">\n")
}

// RenderCall renders a tool call the way the model is instructed to emit it.
func RenderCall(call domain.ToolCall) string {
	var sb strings.Builder
	sb.WriteString(StartTag + "\n<invoke>\n")
	writeLeaf(&sb, "tool_name", call.Name)
	sb.WriteString("<parameters>\n")
	gjson.Parse(call.Arguments).ForEach(func(key, value gjson.Result) bool {
		v := value.Raw
		if value.Type == gjson.String {
			v = value.String()
		}
		writeLeaf(&sb, key.String(), v)
		return true
	})
	sb.WriteString("</parameters>\n</invoke>\n" + EndTag)
	return sb.String()
}

// RenderResult renders the output of a tool call for a human turn.
func RenderResult(result domain.ToolResult) string {
	var sb strings.Builder
	sb.WriteString("<function_results>\n<result>\n")
	writeLeaf(&sb, "tool_name", result.Name)
	sb.WriteString("<stdout>\n")
	sb.WriteString(result.Output)
	sb.WriteString("\n</stdout>\n</result>\n</function_results>")
	return sb.String()
}

// Encoded is a dialog rewritten into plain-text messages.
type Encoded struct {
	Messages []domain.Message

	// Prepended is true when a synthetic system message was inserted in
	// front of the original messages.
	Prepended bool
}

// OriginalIndex maps an index into Messages back to the caller's list.
// It returns -1 for the synthetic system message.
func (e Encoded) OriginalIndex(i int) int {
	if e.Prepended {
		return i - 1
	}
	return i
}

// Encode renders tool declarations, tool calls and tool results into plain
// text. Messages stay one-to-one with the input apart from a possible
// synthetic system message in front.
func Encode(messages []domain.Message, tools []domain.ToolDefinition) Encoded {
	out := make([]domain.Message, 0, len(messages)+1)
	names := map[string]string{}

	for _, msg := range messages {
		text := msg.Text
		switch {
		case len(msg.ToolCalls) > 0:
			parts := make([]string, 0, len(msg.ToolCalls)+1)
			if text != "" {
				parts = append(parts, text)
			}
			for _, call := range msg.ToolCalls {
				names[call.ID] = call.Name
				parts = append(parts, RenderCall(call))
			}
			text = strings.Join(parts, "\n\n")
		case msg.ToolResult != nil:
			result := *msg.ToolResult
			if result.Name == "" {
				result.Name = names[result.CallID]
			}
			text = RenderResult(result)
		}
		out = append(out, domain.Message{Role: msg.Role, Text: text})
	}

	if len(tools) == 0 {
		return Encoded{Messages: out}
	}

	block := SystemPrompt(tools)
	if len(out) > 0 && out[0].Role == domain.RoleSystem {
		if out[0].Text != "" {
			block = out[0].Text + "\n\n" + block
		}
		out[0].Text = block
		return Encoded{Messages: out}
	}

	return Encoded{
		Messages:  append([]domain.Message{domain.System(block)}, out...),
		Prepended: true,
	}
}
