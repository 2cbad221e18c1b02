package textcompletion

import (
	"context"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RemoteCounter counts tokens with the backend's own /tokenize endpoint
// (vLLM and llama.cpp expose one). It implements tokens.Counter.
type RemoteCounter struct {
	client *Client
}

// NewRemoteCounter returns a counter that calls c's /tokenize endpoint.
func NewRemoteCounter(c *Client) *RemoteCounter {
	return &RemoteCounter{client: c}
}

func (r *RemoteCounter) SupportsModel(string) bool { return true }

// CountText asks the backend to tokenize text for model.
func (r *RemoteCounter) CountText(ctx context.Context, model, text string) (int, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "model", model)
	if err == nil {
		body, err = sjson.SetBytes(body, "prompt", text)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to build tokenize request: %w", err)
	}

	resp, err := r.client.post(ctx, "/tokenize", body, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read tokenize response: %w", err)
	}

	if count := gjson.GetBytes(respBody, "count"); count.Exists() {
		return int(count.Int()), nil
	}
	if toks := gjson.GetBytes(respBody, "tokens"); toks.IsArray() {
		return len(toks.Array()), nil
	}
	return 0, fmt.Errorf("tokenize response carries neither count nor tokens")
}
