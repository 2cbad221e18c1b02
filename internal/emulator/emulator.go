// Package emulator serves chat requests on top of text-completion backends.
// It renders the dialog into a single prompt, trims it to the token budget,
// calls the backend and turns the generated text back into chat events.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/deployment"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/stream"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/telemetry"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/tokens"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/toolemu"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/truncation"
)

// MaxChoices caps the n parameter.
const MaxChoices = 16

// Emulator is safe for concurrent use. Each request owns its own formatter,
// truncation, decode pipeline and recognizer state.
type Emulator struct {
	deployments *deployment.Registry
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emulator) { e.logger = logger }
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Emulator) { e.metrics = m }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Emulator) { e.tracer = t }
}

// New creates an emulator serving the given deployments.
func New(deployments *deployment.Registry, opts ...Option) *Emulator {
	e := &Emulator{
		deployments: deployments,
		logger:      slog.Default(),
		tracer:      telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deployments returns the sorted ids of the deployments currently served.
func (e *Emulator) Deployments() []string {
	return e.deployments.Current().IDs()
}

// prepared is a request that passed validation, truncation and formatting.
type prepared struct {
	dep     *deployment.Deployment
	encoded toolemu.Encoded
	prompt  domain.PromptResult
}

func (e *Emulator) lookup(id string) (*deployment.Deployment, error) {
	dep, ok := e.deployments.Lookup(id)
	if !ok {
		return nil, domain.ErrNotFound(fmt.Sprintf("deployment %q not found", id)).
			WithCode(domain.ErrorCodeDeploymentNotFound)
	}
	return dep, nil
}

func validate(req *domain.ChatRequest, dep *deployment.Deployment) error {
	if len(req.Messages) == 0 {
		return domain.ErrInvalidRequest("messages must not be empty").WithParam("messages")
	}
	if req.N < 0 || req.N > MaxChoices {
		return domain.ErrInvalidRequest(fmt.Sprintf("n must be between 1 and %d", MaxChoices)).WithParam("n")
	}
	if req.MaxPromptTokens < 0 {
		return domain.ErrInvalidRequest("max_prompt_tokens must not be negative").WithParam("max_prompt_tokens")
	}
	if len(req.Tools) > 0 && dep.Protocol == nil {
		return domain.ErrInvalidRequest(fmt.Sprintf("deployment %q does not support tools", dep.ID)).WithParam("tools")
	}
	for _, t := range req.Tools {
		if t.Name == "" {
			return domain.ErrInvalidRequest("tool name must not be empty").WithParam("tools")
		}
	}
	return nil
}

// prepare runs everything that happens before the backend call. All
// formatting and budget errors surface here.
func (e *Emulator) prepare(ctx context.Context, req *domain.ChatRequest) (*prepared, error) {
	dep, err := e.lookup(req.Deployment)
	if err != nil {
		return nil, err
	}
	if err := validate(req, dep); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "emulator.prepare")
	defer span.End()

	encoded := toolemu.Encode(req.Messages, req.Tools)
	tokenize := tokens.PromptTokenizer(dep.Counter, dep.TokenizerModel, dep.Profile)
	limits := truncation.Limits{Model: dep.ModelLimit, User: req.MaxPromptTokens}

	prompt, err := FormatAndTruncate(ctx, encoded.Messages, dep.Profile, tokenize, limits)
	if err != nil {
		span.RecordError(err)
		return nil, e.toAPIError(dep.ID, err)
	}

	// Report indices against the caller's message list.
	for i, idx := range prompt.Discarded {
		prompt.Discarded[i] = encoded.OriginalIndex(idx)
	}

	var protocolStops []string
	if len(req.Tools) > 0 {
		protocolStops = dep.Protocol.StopSequences()
	}
	prompt.StopSequences = mergeStops(prompt.StopSequences, req.Stop, protocolStops)

	span.SetAttributes(
		attribute.Int("prompt.bytes", len(prompt.Text)),
		attribute.Int("prompt.discarded", prompt.DiscardedCount),
	)
	e.logger.DebugContext(ctx, "prompt prepared",
		slog.String("deployment", dep.ID),
		slog.Int("messages", len(req.Messages)),
		slog.Int("discarded", prompt.DiscardedCount),
		slog.Int("prompt_bytes", len(prompt.Text)),
	)

	return &prepared{dep: dep, encoded: encoded, prompt: prompt}, nil
}

// Prompt returns the prompt a chat request would send, after truncation.
func (e *Emulator) Prompt(ctx context.Context, req *domain.ChatRequest) (domain.PromptResult, error) {
	p, err := e.prepare(ctx, req)
	if err != nil {
		return domain.PromptResult{}, err
	}
	return p.prompt, nil
}

// Tokenize counts the prompt tokens of the full, untruncated request.
func (e *Emulator) Tokenize(ctx context.Context, req *domain.ChatRequest) (int, error) {
	dep, err := e.lookup(req.Deployment)
	if err != nil {
		return 0, err
	}
	if err := validate(req, dep); err != nil {
		return 0, err
	}

	encoded := toolemu.Encode(req.Messages, req.Tools)
	n, err := tokens.PromptTokenizer(dep.Counter, dep.TokenizerModel, dep.Profile)(ctx, encoded.Messages)
	if err != nil {
		return 0, domain.ErrUpstream("failed to count tokens").WithCause(err)
	}
	return n, nil
}

// CountText counts the tokens of a raw string with the deployment's counter.
func (e *Emulator) CountText(ctx context.Context, deploymentID, text string) (int, error) {
	dep, err := e.lookup(deploymentID)
	if err != nil {
		return 0, err
	}
	n, err := dep.Counter.CountText(ctx, dep.TokenizerModel, text)
	if err != nil {
		return 0, domain.ErrUpstream("failed to count tokens").WithCause(err)
	}
	return n, nil
}

// TruncatePrompt returns the indices of the messages truncation would drop.
func (e *Emulator) TruncatePrompt(ctx context.Context, req *domain.ChatRequest) ([]int, error) {
	p, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if p.prompt.Discarded == nil {
		return []int{}, nil
	}
	return p.prompt.Discarded, nil
}

// choiceResult is what a finished choice reports for usage accounting.
type choiceResult struct {
	usage *domain.Usage
	text  string
	calls []domain.ToolCall
}

// Chat serves req and delivers its events to consumer. Errors returned
// before any consumer call are request errors; later ones arrive after
// content may already have been delivered.
func (e *Emulator) Chat(ctx context.Context, req *domain.ChatRequest, consumer ports.Consumer) (err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "emulator.chat", trace.WithAttributes(
		attribute.String("deployment", req.Deployment),
		attribute.Bool("stream", req.Stream),
		attribute.Int("n", req.N),
		attribute.Int("tools", len(req.Tools)),
	))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.metrics.completion(req.Deployment, outcome)
		span.End()
		e.logger.DebugContext(ctx, "chat finished",
			slog.String("deployment", req.Deployment),
			slog.String("outcome", outcome),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	p, err := e.prepare(ctx, req)
	if err != nil {
		return err
	}
	dep := p.dep

	if req.MaxPromptTokens > 0 {
		if err := consumer.SetDiscardedMessages(p.prompt.DiscardedCount); err != nil {
			return err
		}
	}
	e.metrics.discardedMessages(dep.ID, p.prompt.DiscardedCount)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = dep.MaxTokens
	}
	inv := &ports.Invocation{
		Model:         dep.Model,
		Prompt:        p.prompt.Text,
		StopSequences: p.prompt.StopSequences,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		UserAgent:     req.UserAgent,
	}

	n := req.N
	if n == 0 {
		n = 1
	}
	results := make([]choiceResult, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			res, err := e.runChoice(gctx, p, req, inv, consumer.Choice(i))
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	usage, err := e.usage(ctx, dep, p.prompt.Text, results)
	if err != nil {
		return err
	}
	e.metrics.usage(dep.ID, usage)
	return consumer.AddUsage(usage)
}

func (e *Emulator) runChoice(ctx context.Context, p *prepared, req *domain.ChatRequest, inv *ports.Invocation, out ports.ChoiceConsumer) (choiceResult, error) {
	ctx, span := e.tracer.Start(ctx, "emulator.choice")
	defer span.End()

	raw, finish, err := e.invoke(ctx, p.dep.Backend, inv, req.Stream)
	if err != nil {
		return choiceResult{}, e.toAPIError(p.dep.ID, err)
	}

	decoded := stream.Decode(raw, inv.StopSequences, p.dep.Profile.EchoedCue())
	events := toolemu.RecognizeCall(decoded, req.Tools)
	defer events.Close()

	var (
		res  choiceResult
		text strings.Builder
	)
	for {
		ev, err := events.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return choiceResult{}, e.toAPIError(p.dep.ID, err)
		}

		if ev.Content != "" {
			text.WriteString(ev.Content)
			if err := out.AppendContent(ev.Content); err != nil {
				return choiceResult{}, err
			}
		}
		if ev.ToolCall != nil {
			e.metrics.toolCall(p.dep.ID)
			res.calls = append(res.calls, *ev.ToolCall)
			if err := out.AddToolCall(*ev.ToolCall); err != nil {
				return choiceResult{}, err
			}
		}
	}
	res.text = text.String()

	reason := finish()
	switch {
	case len(res.calls) > 0 && req.LegacyFunctions:
		reason = domain.FinishReasonFunctionCall
	case len(res.calls) > 0:
		reason = domain.FinishReasonToolCalls
	}
	if err := out.CloseContent(reason); err != nil {
		return choiceResult{}, err
	}

	if u, ok := raw.(ports.UsageReporter); ok {
		res.usage = u.Usage()
	}
	return res, nil
}

// invoke calls the backend and returns the raw text stream along with a
// function reporting the backend finish reason once the stream is drained.
func (e *Emulator) invoke(ctx context.Context, backend ports.Invoker, inv *ports.Invocation, streaming bool) (stream.Stream, func() domain.FinishReason, error) {
	if streaming {
		raw, err := backend.Stream(ctx, inv)
		if err != nil {
			return nil, nil, err
		}
		return raw, func() domain.FinishReason {
			if f, ok := raw.(ports.FinishReporter); ok && f.FinishReason() != "" {
				return f.FinishReason()
			}
			return domain.FinishReasonStop
		}, nil
	}

	completion, err := backend.Complete(ctx, inv)
	if err != nil {
		return nil, nil, err
	}
	raw := &completedStream{Stream: stream.FromSlice(completion.Text), usage: completion.Usage}
	return raw, func() domain.FinishReason {
		if completion.FinishReason != "" {
			return completion.FinishReason
		}
		return domain.FinishReasonStop
	}, nil
}

// completedStream replays a non-streaming completion.
type completedStream struct {
	stream.Stream
	usage *domain.Usage
}

func (c *completedStream) Usage() *domain.Usage { return c.usage }

// usage totals the request: prompt tokens once, completion tokens per choice.
// Backend-reported numbers win over local counts.
func (e *Emulator) usage(ctx context.Context, dep *deployment.Deployment, prompt string, results []choiceResult) (domain.Usage, error) {
	var usage domain.Usage
	promptCounted := false

	for _, r := range results {
		if r.usage != nil {
			if !promptCounted && r.usage.PromptTokens > 0 {
				usage.PromptTokens = r.usage.PromptTokens
				promptCounted = true
			}
			usage.CompletionTokens += r.usage.CompletionTokens
			continue
		}

		generated := r.text
		for _, call := range r.calls {
			generated += toolemu.RenderCall(call)
		}
		n, err := dep.Counter.CountText(ctx, dep.TokenizerModel, generated)
		if err != nil {
			return usage, domain.ErrUpstream("failed to count completion tokens").WithCause(err)
		}
		usage.CompletionTokens += n
	}

	if !promptCounted {
		n, err := dep.Counter.CountText(ctx, dep.TokenizerModel, prompt)
		if err != nil {
			return usage, domain.ErrUpstream("failed to count prompt tokens").WithCause(err)
		}
		usage.PromptTokens = n
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage, nil
}

// toAPIError maps engine failures onto canonical API errors.
func (e *Emulator) toAPIError(dep string, err error) error {
	var truncErr *truncation.Error
	if errors.As(err, &truncErr) {
		e.metrics.truncationFailure(dep, truncErr.Kind)
		if truncErr.Kind == truncation.InconsistentLimits {
			return domain.ErrInvalidRequest(truncErr.Error()).
				WithCode(domain.ErrorCodeInconsistentLimits).
				WithParam("max_prompt_tokens").
				WithCause(err)
		}
		return domain.ErrContextLength(truncErr.Error()).WithCause(err)
	}

	var decodeErr *toolemu.DecodeError
	if errors.As(err, &decodeErr) {
		e.logger.Warn("tool call decode failed",
			slog.String("deployment", dep),
			slog.String("reason", decodeErr.Reason),
		)
		return domain.ErrServer(decodeErr.Error()).
			WithCode(domain.ErrorCodeToolCallDecode).
			WithCause(err)
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return err
	}

	// Tokenizer failures from remote counters.
	return domain.ErrUpstream(err.Error()).WithCause(err)
}
