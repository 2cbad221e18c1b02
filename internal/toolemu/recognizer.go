package toolemu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/stream"
)

// Event is either a content fragment or a complete tool call.
type Event struct {
	Content  string
	ToolCall *domain.ToolCall
}

// Recognizer accumulates decoded text of one response and extracts at most
// one tool call from it on Flush.
type Recognizer struct {
	startTag string
	endTag   string
	tools    map[string]domain.ToolDefinition
	buf      strings.Builder

	newID func() string
}

// NewRecognizer returns a recognizer accepting calls to the given tools.
func NewRecognizer(tools []domain.ToolDefinition) *Recognizer {
	byName := make(map[string]domain.ToolDefinition, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &Recognizer{
		startTag: StartTag,
		endTag:   EndTag,
		tools:    byName,
		newID:    func() string { return "call_" + uuid.NewString() },
	}
}

// Append adds a decoded chunk to the buffer.
func (r *Recognizer) Append(chunk string) {
	r.buf.WriteString(chunk)
}

// Flush consumes the buffer. Without the start tag the text is returned as
// content. Otherwise the text before the tag is returned as content followed
// by the parsed call. On a parse error the content events are still returned.
func (r *Recognizer) Flush() ([]Event, error) {
	text := r.buf.String()
	r.buf.Reset()

	idx := strings.Index(text, r.startTag)
	if idx < 0 {
		if text == "" {
			return nil, nil
		}
		return []Event{{Content: text}}, nil
	}

	var events []Event
	if prefix := strings.TrimRightFunc(text[:idx], unicode.IsSpace); prefix != "" {
		events = append(events, Event{Content: prefix})
	}

	body := text[idx+len(r.startTag):]
	if end := strings.Index(body, r.endTag); end >= 0 {
		body = body[:end]
	}

	call, err := r.parseCall(body)
	if err != nil {
		return events, &DecodeError{Reason: err.Error(), Output: text}
	}
	return append(events, Event{ToolCall: &call}), nil
}

func (r *Recognizer) parseCall(body string) (domain.ToolCall, error) {
	start := strings.Index(body, "<invoke>")
	if start < 0 {
		return domain.ToolCall{}, errors.New("no <invoke> block")
	}
	invoke, _, _, err := nextElement(body[start:])
	if err != nil {
		return domain.ToolCall{}, err
	}

	fields, err := parseElements(invoke.Inner)
	if err != nil {
		return domain.ToolCall{}, fmt.Errorf("invoke: %w", err)
	}
	nameEl, ok := findElement(fields, "tool_name")
	if !ok {
		return domain.ToolCall{}, errors.New("missing <tool_name>")
	}
	name := strings.TrimSpace(nameEl.Inner)
	tool, ok := r.tools[name]
	if !ok {
		return domain.ToolCall{}, fmt.Errorf("unknown tool %q", name)
	}

	var params []element
	if paramsEl, ok := findElement(fields, "parameters"); ok {
		params, err = parseElements(paramsEl.Inner)
		if err != nil {
			return domain.ToolCall{}, fmt.Errorf("parameters: %w", err)
		}
	}

	args, err := buildArguments(tool, params)
	if err != nil {
		return domain.ToolCall{}, err
	}
	return domain.ToolCall{ID: r.newID(), Name: name, Arguments: args}, nil
}

// buildArguments types each parameter by the declared schema. Values of a
// non-string type are kept as raw JSON when they parse as such.
func buildArguments(tool domain.ToolDefinition, params []element) (string, error) {
	schema := gjson.ParseBytes(tool.Parameters)
	args := "{}"
	for _, p := range params {
		value := strings.TrimSpace(p.Inner)
		key := escapePath(p.Name)
		typ := schema.Get("properties." + key + ".type").String()

		var err error
		if typ != "" && typ != "string" && gjson.Valid(value) {
			args, err = sjson.SetRaw(args, key, value)
		} else {
			args, err = sjson.Set(args, key, value)
		}
		if err != nil {
			return "", fmt.Errorf("parameter %q: %w", p.Name, err)
		}
	}
	return args, nil
}

// escapePath escapes a key for use as a single gjson/sjson path component.
func escapePath(key string) string {
	var sb strings.Builder
	for _, c := range key {
		if !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '-') {
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// EventStream yields recognized events until io.EOF.
type EventStream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// RecognizeCall wraps a decoded stream. Without tools every chunk passes
// through as content as it arrives. With tools the whole response is
// buffered and recognized at the end.
func RecognizeCall(decoded stream.Stream, tools []domain.ToolDefinition) EventStream {
	if len(tools) == 0 {
		return &passthrough{up: decoded}
	}
	return &recognizing{up: decoded, r: NewRecognizer(tools)}
}

type passthrough struct {
	up stream.Stream
}

func (p *passthrough) Next(ctx context.Context) (Event, error) {
	chunk, err := p.up.Next(ctx)
	if err != nil {
		return Event{}, err
	}
	return Event{Content: chunk}, nil
}

func (p *passthrough) Close() error { return p.up.Close() }

type recognizing struct {
	up      stream.Stream
	r       *Recognizer
	drained bool
	pending []Event
	err     error
}

func (s *recognizing) Next(ctx context.Context) (Event, error) {
	if !s.drained {
		for {
			chunk, err := s.up.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return Event{}, err
			}
			s.r.Append(chunk)
		}
		s.drained = true
		s.pending, s.err = s.r.Flush()
	}

	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		return ev, nil
	}
	if s.err != nil {
		return Event{}, s.err
	}
	return Event{}, io.EOF
}

func (s *recognizing) Close() error { return s.up.Close() }
