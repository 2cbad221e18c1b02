package openai

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route defines an HTTP route registration.
type Route struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

// Routes returns the route table served by handler.
func Routes(handler *Handler) []Route {
	return []Route{
		{Path: "/openai/deployments/{deployment}/chat/completions", Method: http.MethodPost, Handler: handler.HandleChatCompletion},
		{Path: "/openai/deployments/{deployment}/tokenize", Method: http.MethodPost, Handler: handler.HandleTokenize},
		{Path: "/openai/deployments/{deployment}/truncate_prompt", Method: http.MethodPost, Handler: handler.HandleTruncatePrompt},
		{Path: "/openai/deployments", Method: http.MethodGet, Handler: handler.HandleListDeployments},
		{Path: "/v1/chat/completions", Method: http.MethodPost, Handler: handler.HandleChatCompletion},
		{Path: "/v1/models", Method: http.MethodGet, Handler: handler.HandleListModels},
		{Path: "/admin/completions", Method: http.MethodGet, Handler: handler.HandleListCompletions},
	}
}

// Mount registers the routes on r.
func Mount(r chi.Router, handler *Handler) {
	for _, route := range Routes(handler) {
		r.Method(route.Method, route.Path, route.Handler)
	}
}
