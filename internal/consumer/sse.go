package consumer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/api/openai"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/codec"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
)

// SSEWriter streams events as OpenAI chat.completion.chunk server-sent
// events. Choices may write concurrently; each event is written whole.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool

	id      string
	model   string
	created int64

	// legacyFunctions answers with function_call deltas instead of tool_calls.
	legacyFunctions bool

	roleSent  map[int]bool
	toolIndex map[int]int
	discarded *int
}

var _ ports.Consumer = (*SSEWriter)(nil)

// NewSSEWriter returns a writer for the response w. Headers are sent with
// the first event so request errors can still use a plain error response.
func NewSSEWriter(w http.ResponseWriter, id, model string, created int64, legacyFunctions bool) *SSEWriter {
	flusher, _ := w.(http.Flusher)
	return &SSEWriter{
		w:               w,
		flusher:         flusher,
		id:              id,
		model:           model,
		created:         created,
		legacyFunctions: legacyFunctions,
		roleSent:        make(map[int]bool),
		toolIndex:       make(map[int]int),
	}
}

// Started reports whether any event has been written.
func (s *SSEWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *SSEWriter) Choice(index int) ports.ChoiceConsumer {
	return &sseChoice{w: s, index: index}
}

// SetDiscardedMessages is reported with the usage chunk.
func (s *SSEWriter) SetDiscardedMessages(count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discarded = &count
	return nil
}

// AddUsage writes the trailing chunk with usage and statistics.
func (s *SSEWriter) AddUsage(usage domain.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk := s.chunk()
	chunk.Usage = &openai.Usage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
	if s.discarded != nil {
		chunk.Statistics = &openai.Statistics{DiscardedMessages: *s.discarded}
	}
	return s.writeEvent(chunk)
}

// Done terminates the event stream.
func (s *SSEWriter) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRaw([]byte("[DONE]"))
}

// WriteError reports a failure inside an already started stream.
func (s *SSEWriter) WriteError(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, body := (&codec.OpenAIErrorFormatter{}).Body(err)
	data, mErr := json.Marshal(body)
	if mErr != nil {
		return mErr
	}
	return s.writeRaw(data)
}

func (s *SSEWriter) chunk() *openai.ChatCompletionChunk {
	return &openai.ChatCompletionChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []openai.ChunkChoice{},
	}
}

// delta writes a single-choice chunk. Callers hold mu.
func (s *SSEWriter) delta(index int, d openai.ChunkDelta, finish *string) error {
	if !s.roleSent[index] {
		d.Role = "assistant"
		s.roleSent[index] = true
	}
	chunk := s.chunk()
	chunk.Choices = []openai.ChunkChoice{{Index: index, Delta: d, FinishReason: finish}}
	return s.writeEvent(chunk)
}

func (s *SSEWriter) writeEvent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.writeRaw(data)
}

func (s *SSEWriter) writeRaw(data []byte) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

type sseChoice struct {
	w     *SSEWriter
	index int
}

func (c *sseChoice) AppendContent(text string) error {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	return c.w.delta(c.index, openai.ChunkDelta{Content: text}, nil)
}

func (c *sseChoice) AddToolCall(call domain.ToolCall) error {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()

	fn := &openai.FunctionCallChunk{Name: call.Name, Arguments: call.Arguments}
	if c.w.legacyFunctions {
		return c.w.delta(c.index, openai.ChunkDelta{FunctionCall: fn}, nil)
	}

	i := c.w.toolIndex[c.index]
	c.w.toolIndex[c.index] = i + 1
	return c.w.delta(c.index, openai.ChunkDelta{ToolCalls: []openai.ToolCallChunk{{
		Index:    i,
		ID:       call.ID,
		Type:     "function",
		Function: fn,
	}}}, nil)
}

func (c *sseChoice) CloseContent(reason domain.FinishReason) error {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	finish := string(reason)
	return c.w.delta(c.index, openai.ChunkDelta{}, &finish)
}
