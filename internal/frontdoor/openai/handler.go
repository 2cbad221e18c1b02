// Package openai serves the OpenAI chat completions wire format on top of the
// emulation engine.
package openai

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	api "github.com/epam/ai-dial-adapter-bedrock-sub000/internal/api/openai"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/codec"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/consumer"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/emulator"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/server"
)

const maxBodyBytes = 8 << 20

// Handler handles OpenAI-style chat, tokenize and truncate_prompt requests.
type Handler struct {
	emulator *emulator.Emulator
	store    ports.UsageStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a handler. store may be nil when the usage ledger is
// disabled.
func NewHandler(em *emulator.Emulator, store ports.UsageStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{emulator: em, store: store, logger: logger, now: time.Now}
}

// HandleChatCompletion serves both the deployment-scoped route and the plain
// /v1 route, where the deployment is taken from the model field.
func (h *Handler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ChatCompletionRequest
	if err := decodeBody(r, &req); err != nil {
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return
	}

	deploymentID := chi.URLParam(r, "deployment")
	if deploymentID == "" {
		deploymentID = req.Model
	}
	if deploymentID == "" {
		err := domain.ErrInvalidRequest("model is required").WithParam("model")
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return
	}

	chatReq, err := toChatRequest(deploymentID, &req)
	if err != nil {
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return
	}
	chatReq.UserAgent = r.Header.Get("User-Agent")

	server.AddLogField(ctx, "deployment", deploymentID)
	server.AddLogField(ctx, "stream", strconv.FormatBool(chatReq.Stream))

	id := "chatcmpl-" + uuid.NewString()
	created := h.now().Unix()

	if chatReq.Stream {
		h.stream(w, r, chatReq, id, created)
		return
	}

	collector := consumer.NewCollector()
	rec := consumer.NewRecording(collector, h.store, h.logger, id, deploymentID, false)
	err = h.emulator.Chat(ctx, chatReq, rec)
	rec.Finish(ctx, err)
	if err != nil {
		h.logger.ErrorContext(ctx, "chat completion failed",
			slog.String("deployment", deploymentID),
			slog.String("error", err.Error()),
		)
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(id, deploymentID, created, chatReq.LegacyFunctions, collector))
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req *domain.ChatRequest, id string, created int64) {
	ctx := r.Context()

	sse := consumer.NewSSEWriter(w, id, req.Deployment, created, req.LegacyFunctions)
	rec := consumer.NewRecording(sse, h.store, h.logger, id, req.Deployment, true)
	err := h.emulator.Chat(ctx, req, rec)
	rec.Finish(ctx, err)

	if err != nil {
		h.logger.ErrorContext(ctx, "chat completion stream failed",
			slog.String("deployment", req.Deployment),
			slog.String("error", err.Error()),
		)
		server.AddError(ctx, err)
		if !sse.Started() {
			codec.WriteError(w, err)
			return
		}
		if wErr := sse.WriteError(err); wErr != nil {
			return
		}
	}

	if err := sse.Done(); err != nil {
		h.logger.DebugContext(ctx, "failed to terminate stream", slog.String("error", err.Error()))
	}
}

// HandleTokenize counts tokens for each input: whole chat requests use the
// full untruncated prompt, strings are counted as-is.
func (h *Handler) HandleTokenize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deploymentID, batch, ok := h.batchRequest(w, r)
	if !ok {
		return
	}

	outputs := make([]api.TokenizeOutput, 0, len(batch.Inputs))
	for _, in := range batch.Inputs {
		var (
			n   int
			err error
		)
		switch in.Type {
		case "request":
			var req *domain.ChatRequest
			if req, err = decodeBatchRequest(deploymentID, in.Value); err == nil {
				n, err = h.emulator.Tokenize(ctx, req)
			}
		case "string":
			var text string
			if err = json.Unmarshal(in.Value, &text); err == nil {
				n, err = h.emulator.CountText(ctx, deploymentID, text)
			}
		default:
			err = unsupportedInput(in.Type)
		}

		if err != nil {
			outputs = append(outputs, api.TokenizeOutput{Status: "error", Error: errorMessage(err)})
			continue
		}
		outputs = append(outputs, api.TokenizeOutput{Status: "success", TokenCount: &n})
	}

	writeJSON(w, http.StatusOK, api.BatchResponse[api.TokenizeOutput]{Outputs: outputs})
}

// HandleTruncatePrompt reports, for each chat request, the indices of the
// messages that would be discarded to satisfy its max_prompt_tokens.
func (h *Handler) HandleTruncatePrompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deploymentID, batch, ok := h.batchRequest(w, r)
	if !ok {
		return
	}

	outputs := make([]api.TruncatePromptOutput, 0, len(batch.Inputs))
	for _, in := range batch.Inputs {
		var (
			discarded []int
			err       error
		)
		if in.Type != "request" {
			err = unsupportedInput(in.Type)
		} else {
			var req *domain.ChatRequest
			if req, err = decodeBatchRequest(deploymentID, in.Value); err == nil {
				discarded, err = h.emulator.TruncatePrompt(ctx, req)
			}
		}

		if err != nil {
			outputs = append(outputs, api.TruncatePromptOutput{Status: "error", Error: errorMessage(err)})
			continue
		}
		outputs = append(outputs, api.TruncatePromptOutput{Status: "success", DiscardedMessages: discarded})
	}

	writeJSON(w, http.StatusOK, api.BatchResponse[api.TruncatePromptOutput]{Outputs: outputs})
}

// batchRequest decodes a batch body and checks the deployment exists.
func (h *Handler) batchRequest(w http.ResponseWriter, r *http.Request) (string, *api.BatchRequest, bool) {
	ctx := r.Context()
	deploymentID := chi.URLParam(r, "deployment")
	server.AddLogField(ctx, "deployment", deploymentID)

	if !slices.Contains(h.emulator.Deployments(), deploymentID) {
		err := domain.ErrNotFound("deployment " + strconv.Quote(deploymentID) + " not found").
			WithCode(domain.ErrorCodeDeploymentNotFound)
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return "", nil, false
	}

	var batch api.BatchRequest
	if err := decodeBody(r, &batch); err != nil {
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return "", nil, false
	}
	return deploymentID, &batch, true
}

// HandleListDeployments lists the configured deployments.
func (h *Handler) HandleListDeployments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.models("deployment"))
}

// HandleListModels lists the configured deployments as OpenAI models.
func (h *Handler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.models("model"))
}

func (h *Handler) models(object string) api.ModelList {
	ids := h.emulator.Deployments()
	list := api.ModelList{Object: "list", Data: make([]api.Model, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, api.Model{ID: id, Object: object, OwnedBy: "gateway"})
	}
	return list
}

// HandleListCompletions pages through the usage ledger, newest first.
// Query parameters: deployment, limit, offset.
func (h *Handler) HandleListCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		codec.WriteError(w, domain.ErrNotFound("usage ledger is disabled"))
		return
	}

	q := r.URL.Query()
	opts := ports.ListOptions{Deployment: q.Get("deployment"), Limit: 50}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			codec.WriteError(w, domain.ErrInvalidRequest(name+" must be a non-negative integer").WithParam(name))
			return
		}
		*dst = n
	}

	records, err := h.store.ListCompletions(ctx, opts)
	if err != nil {
		server.AddError(ctx, err)
		codec.WriteError(w, domain.ErrServer("failed to list completions").WithCause(err))
		return
	}
	if records == nil {
		records = []*ports.CompletionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": records})
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return domain.ErrInvalidRequest("failed to read request body").WithCause(err)
	}
	if len(body) > maxBodyBytes {
		return domain.ErrInvalidRequest("request body too large").WithStatusCode(http.StatusRequestEntityTooLarge)
	}
	if err := json.Unmarshal(body, v); err != nil {
		if errors.Is(err, api.ErrNonTextContent) {
			return domain.ErrInvalidRequest(api.ErrNonTextContent.Error()).WithParam("messages").WithCause(err)
		}
		return domain.ErrInvalidRequest("invalid JSON body: " + err.Error()).WithCause(err)
	}
	return nil
}

func decodeBatchRequest(deploymentID string, raw json.RawMessage) (*domain.ChatRequest, error) {
	var req api.ChatCompletionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, domain.ErrInvalidRequest("invalid request input: " + err.Error()).WithCause(err)
	}
	return toChatRequest(deploymentID, &req)
}

func unsupportedInput(kind string) error {
	return domain.ErrInvalidRequest("unsupported input type " + strconv.Quote(kind))
}

func errorMessage(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
