package domain

import (
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "error with type and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"},
			expected: "invalid_request: bad request",
		},
		{
			name:     "error with type, code, and message",
			err:      &APIError{Type: ErrorTypeContextLength, Code: ErrorCodeContextLengthExceeded, Message: "too long"},
			expected: "context_length (context_length_exceeded): too long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{"invalid request", &APIError{Type: ErrorTypeInvalidRequest}, http.StatusBadRequest},
		{"context length", &APIError{Type: ErrorTypeContextLength}, http.StatusBadRequest},
		{"not found", &APIError{Type: ErrorTypeNotFound}, http.StatusNotFound},
		{"upstream", &APIError{Type: ErrorTypeUpstream}, http.StatusBadGateway},
		{"server", &APIError{Type: ErrorTypeServer}, http.StatusInternalServerError},
		{"unknown type", &APIError{Type: "weird"}, http.StatusInternalServerError},
		{"explicit status wins", &APIError{Type: ErrorTypeServer, StatusCode: http.StatusTeapot}, http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Builders(t *testing.T) {
	err := ErrInvalidRequest("bad").WithParam("messages").WithCause(io.ErrUnexpectedEOF)

	if err.Param != "messages" {
		t.Errorf("Param = %q, want messages", err.Param)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected errors.Is to see the cause")
	}

	ctxErr := ErrContextLength("over")
	if ctxErr.Code != ErrorCodeContextLengthExceeded {
		t.Errorf("Code = %q, want %q", ctxErr.Code, ErrorCodeContextLengthExceeded)
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"system", RoleSystem, true},
		{"developer", RoleSystem, true},
		{"user", RoleHuman, true},
		{"tool", RoleHuman, true},
		{"function", RoleHuman, true},
		{"assistant", RoleAI, true},
		{"Assistant", RoleAI, true},
		{"narrator", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRole(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestUsage_Add(t *testing.T) {
	u := Usage{PromptTokens: 10, CompletionTokens: 2}
	u.Add(Usage{CompletionTokens: 3})

	if u.PromptTokens != 10 || u.CompletionTokens != 5 || u.TotalTokens != 15 {
		t.Errorf("unexpected usage %+v", u)
	}
}
