// Package codec renders canonical domain errors in the OpenAI error format.
package codec

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
)

// ErrorResponse is a serialized error and the status it is sent with.
type ErrorResponse struct {
	StatusCode int
	Body       []byte
}

// ErrorFormatter formats domain errors for a specific API type.
type ErrorFormatter interface {
	FormatError(err error) *ErrorResponse
}

// ToCanonicalError converts any error to a domain.APIError.
// If the error is already a domain.APIError, it returns it directly.
// Otherwise, it wraps the error in a generic server error.
func ToCanonicalError(err error) *domain.APIError {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return domain.ErrServer(err.Error()).WithCause(err)
}

// OpenAIErrorFormatter formats errors for OpenAI API responses.
type OpenAIErrorFormatter struct{}

// ErrorBody is the OpenAI error envelope.
type ErrorBody struct {
	Error ErrorObject `json:"error"`
}

type ErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Body builds the OpenAI error envelope for err.
func (f *OpenAIErrorFormatter) Body(err error) (*domain.APIError, ErrorBody) {
	apiErr := ToCanonicalError(err)
	return apiErr, ErrorBody{Error: ErrorObject{
		Message: apiErr.Message,
		Type:    mapDomainToOpenAIErrorType(apiErr.Type),
		Code:    string(apiErr.Code),
		Param:   apiErr.Param,
	}}
}

// FormatError formats a domain error as an OpenAI API error response.
func (f *OpenAIErrorFormatter) FormatError(err error) *ErrorResponse {
	apiErr, body := f.Body(err)
	data, _ := json.Marshal(body)

	return &ErrorResponse{
		StatusCode: apiErr.HTTPStatusCode(),
		Body:       data,
	}
}

func mapDomainToOpenAIErrorType(t domain.ErrorType) string {
	switch t {
	case domain.ErrorTypeInvalidRequest, domain.ErrorTypeContextLength:
		return "invalid_request_error"
	case domain.ErrorTypeNotFound:
		return "not_found_error"
	case domain.ErrorTypeUpstream:
		return "upstream_error"
	default:
		return "server_error"
	}
}

// WriteError writes err as an OpenAI error response.
func WriteError(w http.ResponseWriter, err error) {
	resp := (&OpenAIErrorFormatter{}).FormatError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
