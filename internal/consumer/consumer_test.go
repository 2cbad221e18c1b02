package consumer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/api/openai"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/storage"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/storage/memory"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := c.Choice(i)
			ch.AppendContent("hello ")
			ch.AppendContent("world")
			ch.CloseContent(domain.FinishReasonStop)
		}()
	}
	wg.Wait()

	c.Choice(1).AddToolCall(domain.ToolCall{ID: "call_1", Name: "f", Arguments: "{}"})
	require.NoError(t, c.AddUsage(domain.Usage{PromptTokens: 5, CompletionTokens: 7}))

	_, ok := c.DiscardedMessages()
	assert.False(t, ok)
	require.NoError(t, c.SetDiscardedMessages(2))
	n, ok := c.DiscardedMessages()
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	choices := c.Choices()
	require.Len(t, choices, 3)
	for i, ch := range choices {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "hello world", ch.Content)
	}
	assert.Len(t, choices[1].ToolCalls, 1)
	assert.Equal(t, 12, c.Usage().TotalTokens)
}

func readEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			events = append(events, data)
		}
	}
	return events
}

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec, "chatcmpl-1", "claude-v2", 1700000000, false)
	assert.False(t, w.Started())

	ch := w.Choice(0)
	require.NoError(t, w.SetDiscardedMessages(1))
	require.NoError(t, ch.AppendContent("Hi"))
	require.NoError(t, ch.AddToolCall(domain.ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Paris"}`}))
	require.NoError(t, ch.CloseContent(domain.FinishReasonToolCalls))
	require.NoError(t, w.AddUsage(domain.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}))
	require.NoError(t, w.Done())

	assert.True(t, w.Started())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readEvents(t, rec.Body.String())
	require.Len(t, events, 5)
	assert.Equal(t, "[DONE]", events[4])

	var first openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	assert.Equal(t, "chat.completion.chunk", first.Object)
	assert.Equal(t, "assistant", first.Choices[0].Delta.Role)
	assert.Equal(t, "Hi", first.Choices[0].Delta.Content)

	var call openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[1]), &call))
	assert.Empty(t, call.Choices[0].Delta.Role)
	require.Len(t, call.Choices[0].Delta.ToolCalls, 1)
	assert.Equal(t, "get_weather", call.Choices[0].Delta.ToolCalls[0].Function.Name)

	var closing openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[2]), &closing))
	require.NotNil(t, closing.Choices[0].FinishReason)
	assert.Equal(t, "tool_calls", *closing.Choices[0].FinishReason)

	var usage openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[3]), &usage))
	assert.Empty(t, usage.Choices)
	assert.Equal(t, 5, usage.Usage.TotalTokens)
	assert.Equal(t, 1, usage.Statistics.DiscardedMessages)
}

func TestSSEWriter_LegacyFunctions(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec, "id", "m", 0, true)

	require.NoError(t, w.Choice(0).AddToolCall(domain.ToolCall{ID: "call_1", Name: "f", Arguments: "{}"}))

	var chunk openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(readEvents(t, rec.Body.String())[0]), &chunk))
	require.NotNil(t, chunk.Choices[0].Delta.FunctionCall)
	assert.Equal(t, "f", chunk.Choices[0].Delta.FunctionCall.Name)
	assert.Empty(t, chunk.Choices[0].Delta.ToolCalls)
}

func TestSSEWriter_WriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec, "id", "m", 0, false)

	require.NoError(t, w.WriteError(domain.ErrServer("malformed tool call").WithCode(domain.ErrorCodeToolCallDecode)))

	events := readEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Contains(t, events[0], `"type":"server_error"`)
	assert.Contains(t, events[0], `"code":"tool_call_decode_failed"`)
}

func TestRecording(t *testing.T) {
	store := memory.New()
	inner := NewCollector()
	r := NewRecording(inner, store, slog.Default(), "chatcmpl-9", "claude-v2", true)

	r.Choice(0).CloseContent(domain.FinishReasonStop)
	r.Choice(1).CloseContent(domain.FinishReasonToolCalls)
	r.SetDiscardedMessages(4)
	r.AddUsage(domain.Usage{PromptTokens: 10, CompletionTokens: 6})
	r.Finish(context.Background(), nil)

	got, err := store.GetCompletion(context.Background(), "chatcmpl-9")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Choices)
	assert.Equal(t, 10, got.PromptTokens)
	assert.Equal(t, 6, got.CompletionTokens)
	assert.Equal(t, 4, got.DiscardedMessages)
	assert.Equal(t, "tool_calls", got.FinishReason)
	assert.True(t, got.Streaming)

	// Events reach the wrapped consumer.
	assert.Equal(t, 16, inner.Usage().TotalTokens)
}

func TestRecording_Error(t *testing.T) {
	store := memory.New()
	r := NewRecording(NewCollector(), store, slog.Default(), "chatcmpl-err", "d", false)
	r.Finish(context.Background(), errors.New("backend down"))

	got, err := store.GetCompletion(context.Background(), "chatcmpl-err")
	require.NoError(t, err)
	assert.Equal(t, "backend down", got.Error)

	_, err = store.GetCompletion(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecording_NilStore(t *testing.T) {
	r := NewRecording(NewCollector(), nil, slog.Default(), "x", "d", false)
	r.Finish(context.Background(), nil)
}
