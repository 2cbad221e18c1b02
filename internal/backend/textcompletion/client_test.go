package textcompletion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/pkg/config"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/stream"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/testutil"
)

func newVCRClient(t *testing.T, cassette string) *Client {
	t.Helper()
	rec, cleanup := testutil.NewVCRRecorder(t, cassette)
	t.Cleanup(cleanup)
	return NewClient("local", "", WithBaseURL("http://localhost:8000/v1"), WithHTTPClient(testutil.VCRHTTPClient(rec)))
}

func TestClient_Complete(t *testing.T) {
	c := newVCRClient(t, "completions_complete")

	got, err := c.Complete(context.Background(), &ports.Invocation{
		Model:         "llama-3-8b",
		Prompt:        "\n\nHuman: Say hi\n\nAssistant:",
		StopSequences: []string{"\n\nHuman:"},
		MaxTokens:     16,
	})
	require.NoError(t, err)

	assert.Equal(t, " Hi there!", got.Text)
	assert.Equal(t, domain.FinishReasonStop, got.FinishReason)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 12, got.Usage.PromptTokens)
	assert.Equal(t, 4, got.Usage.CompletionTokens)
}

func TestClient_Stream(t *testing.T) {
	c := newVCRClient(t, "completions_stream")

	s, err := c.Stream(context.Background(), &ports.Invocation{
		Model:         "llama-3-8b",
		Prompt:        "\n\nHuman: Count to three\n\nAssistant:",
		StopSequences: []string{"\n\nHuman:"},
	})
	require.NoError(t, err)

	chunks, err := stream.Collect(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{" One,", " two,", " three."}, chunks)

	usage := s.(ports.UsageReporter).Usage()
	require.NotNil(t, usage)
	assert.Equal(t, 14, usage.PromptTokens)
	assert.Equal(t, 6, usage.CompletionTokens)
	assert.Equal(t, domain.FinishReasonStop, s.(ports.FinishReporter).FinishReason())
}

func TestClient_UpstreamError(t *testing.T) {
	c := newVCRClient(t, "completions_error")

	_, err := c.Complete(context.Background(), &ports.Invocation{Model: "missing-model", Prompt: "hi"})
	require.Error(t, err)

	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, domain.ErrorTypeUpstream, apiErr.Type)
	assert.Contains(t, apiErr.Message, "404")
	assert.Contains(t, apiErr.Message, "does not exist")
}

func TestRemoteCounter(t *testing.T) {
	c := newVCRClient(t, "tokenize")

	n, err := NewRemoteCounter(c).CountText(context.Background(), "llama-3-8b", "\n\nHuman: Say hi\n\nAssistant:")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestRequestBody(t *testing.T) {
	temp := float32(0.5)
	body, err := requestBody(&ports.Invocation{
		Model:         "m",
		Prompt:        "p",
		StopSequences: []string{"a", "b", "c", "d", "e"},
		Temperature:   &temp,
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "m", gjson.GetBytes(body, "model").String())
	assert.Equal(t, 0.5, gjson.GetBytes(body, "temperature").Float())
	assert.Len(t, gjson.GetBytes(body, "stop").Array(), maxUpstreamStops)
	assert.True(t, gjson.GetBytes(body, "stream_options.include_usage").Bool())
	assert.False(t, gjson.GetBytes(body, "max_tokens").Exists())
}

func TestClient_StreamCloseCancelsRequest(t *testing.T) {
	cancelled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; ; i++ {
			select {
			case <-r.Context().Done():
				close(cancelled)
				return
			default:
			}
			fmt.Fprintf(w, "data: {\"choices\":[{\"text\":\"tok%d \"}]}\n\n", i)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer srv.Close()

	c := NewClient("local", "", WithBaseURL(srv.URL))
	s, err := c.Stream(context.Background(), &ports.Invocation{Model: "m", Prompt: "p"})
	require.NoError(t, err)

	chunk, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok0 ", chunk)
	require.NoError(t, s.Close())

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("closing the stream did not cancel the upstream request")
	}
}

func TestValidateConfig(t *testing.T) {
	RegisterFactory()
	RegisterFactory()

	_, err := CreateFromConfig(config.BackendConfig{Name: "x", BaseURL: "http://h"})
	require.NoError(t, err)
	assert.Error(t, ValidateConfig(config.BackendConfig{Name: "x"}))
}
