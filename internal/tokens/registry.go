// Package tokens provides conservative token counting for prompts sent to
// text-completion backends.
package tokens

import (
	"context"
	"math"
	"strings"
)

// Counter counts the tokens of a rendered prompt.
type Counter interface {
	CountText(ctx context.Context, model, text string) (int, error)
	SupportsModel(model string) bool
}

// Registry picks a counter per model.
// Registered counters are tried in order; the fallback estimator handles
// everything else.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with an Estimator fallback.
func NewRegistry() *Registry {
	return &Registry{
		fallback: NewEstimator(),
	}
}

// Register adds a token counter to the registry.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// SetFallback sets the fallback counter for unsupported models.
func (r *Registry) SetFallback(counter Counter) {
	r.fallback = counter
}

// CounterFor returns the counter used for model.
func (r *Registry) CounterFor(model string) Counter {
	for _, counter := range r.counters {
		if counter.SupportsModel(model) {
			return counter
		}
	}
	return r.fallback
}

// CountText counts text with the counter selected for model.
func (r *Registry) CountText(ctx context.Context, model, text string) (int, error) {
	return r.CounterFor(model).CountText(ctx, model, text)
}

// SupportsModel is always true thanks to the fallback.
func (r *Registry) SupportsModel(string) bool { return true }

// Estimator over-estimates token counts from the byte length of the text.
type Estimator struct {
	// BytesPerToken is the assumed average (default: 3). Real tokenizers
	// average closer to 4 bytes per token for English text.
	BytesPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{BytesPerToken: 3}
}

// CountText returns ceil(len(text) / BytesPerToken).
func (e *Estimator) CountText(_ context.Context, _ string, text string) (int, error) {
	return int(math.Ceil(float64(len(text)) / e.BytesPerToken)), nil
}

// SupportsModel returns true - estimator supports all models as a fallback.
func (e *Estimator) SupportsModel(string) bool {
	return true
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
