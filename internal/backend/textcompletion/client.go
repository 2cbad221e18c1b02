// Package textcompletion talks to OpenAI-compatible /completions endpoints
// (vLLM, TGI, llama.cpp server, OpenAI legacy completions).
package textcompletion

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/stream"
)

const (
	defaultBaseURL = "http://localhost:8000/v1"
	defaultTimeout = 120 * time.Second

	// maxUpstreamStops is the most stop sequences the OpenAI completions API
	// accepts. The decode pipeline enforces the full set regardless.
	maxUpstreamStops = 4
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is a text-completion backend. It implements ports.Invoker.
type Client struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ ports.Invoker = (*Client)(nil)

// NewClient creates a new completions client.
func NewClient(name, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		name:       name,
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return c.name }

// requestBody renders the completions request.
func requestBody(inv *ports.Invocation, streaming bool) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, value)
		}
	}

	set("model", inv.Model)
	set("prompt", inv.Prompt)
	if inv.MaxTokens > 0 {
		set("max_tokens", inv.MaxTokens)
	}
	if inv.Temperature != nil {
		set("temperature", *inv.Temperature)
	}
	if inv.TopP != nil {
		set("top_p", *inv.TopP)
	}
	stops := inv.StopSequences
	if len(stops) > maxUpstreamStops {
		stops = stops[:maxUpstreamStops]
	}
	if len(stops) > 0 {
		set("stop", stops)
	}
	if streaming {
		set("stream", true)
		set("stream_options.include_usage", true)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, userAgent string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.ErrUpstream(fmt.Sprintf("backend %s unreachable", c.name)).WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, upstreamError(resp.StatusCode, respBody)
	}
	return resp, nil
}

// upstreamError converts a non-200 backend reply to a canonical error.
func upstreamError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return domain.ErrUpstream(fmt.Sprintf("backend returned status %d: %s", status, msg))
}

// Complete sends a non-streaming completions request.
func (c *Client) Complete(ctx context.Context, inv *ports.Invocation) (*ports.Completion, error) {
	body, err := requestBody(inv, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/completions", body, inv.UserAgent)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if !gjson.ValidBytes(respBody) {
		return nil, domain.ErrUpstream("backend returned invalid JSON")
	}

	choice := gjson.GetBytes(respBody, "choices.0")
	if !choice.Exists() {
		return nil, domain.ErrUpstream("backend returned no choices")
	}

	return &ports.Completion{
		Text:         choice.Get("text").String(),
		FinishReason: finishReason(choice.Get("finish_reason").String()),
		Usage:        parseUsage(gjson.GetBytes(respBody, "usage")),
	}, nil
}

// Stream sends a streaming completions request. The returned stream also
// implements ports.UsageReporter and ports.FinishReporter once drained.
func (c *Client) Stream(ctx context.Context, inv *ports.Invocation) (stream.Stream, error) {
	body, err := requestBody(inv, true)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.post(ctx, "/completions", body, inv.UserAgent)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan stream.Result)
	s := &completionStream{}
	s.Stream = stream.FromChannel(out, cancel)
	go s.read(ctx, resp.Body, out)
	return s, nil
}

// completionStream carries the trailer data of an SSE completions stream.
type completionStream struct {
	stream.Stream

	mu     sync.Mutex
	usage  *domain.Usage
	finish domain.FinishReason
}

func (s *completionStream) Usage() *domain.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func (s *completionStream) FinishReason() domain.FinishReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finish
}

func (s *completionStream) read(ctx context.Context, body io.ReadCloser, out chan<- stream.Result) {
	defer close(out)
	defer body.Close()

	send := func(r stream.Result) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return
		}
		if !gjson.Valid(data) {
			send(stream.Result{Err: domain.ErrUpstream("backend sent a malformed stream event")})
			return
		}
		if msg := gjson.Get(data, "error.message"); msg.Exists() {
			send(stream.Result{Err: domain.ErrUpstream("backend stream failed: " + msg.String())})
			return
		}

		if u := parseUsage(gjson.Get(data, "usage")); u != nil {
			s.mu.Lock()
			s.usage = u
			s.mu.Unlock()
		}

		choice := gjson.Get(data, "choices.0")
		if !choice.Exists() {
			continue
		}
		if fr := choice.Get("finish_reason"); fr.Type == gjson.String {
			s.mu.Lock()
			s.finish = finishReason(fr.String())
			s.mu.Unlock()
		}
		if text := choice.Get("text").String(); text != "" {
			if !send(stream.Result{Chunk: text}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(stream.Result{Err: fmt.Errorf("stream read error: %w", err)})
	}
}

func parseUsage(u gjson.Result) *domain.Usage {
	if !u.IsObject() {
		return nil
	}
	usage := &domain.Usage{
		PromptTokens:     int(u.Get("prompt_tokens").Int()),
		CompletionTokens: int(u.Get("completion_tokens").Int()),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}

func finishReason(s string) domain.FinishReason {
	if s == "length" {
		return domain.FinishReasonLength
	}
	return domain.FinishReasonStop
}

func (c *Client) setHeaders(req *http.Request, userAgent string) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	} else {
		req.Header.Set("User-Agent", "text-completion-gateway/1.0")
	}
}
