package emulator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/truncation"
)

// Metrics are the engine's prometheus collectors.
type Metrics struct {
	completions *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	toolCalls   *prometheus.CounterVec
	tokens      *prometheus.CounterVec
	truncations *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_completions_total",
			Help: "Chat completions by deployment and outcome.",
		}, []string{"deployment", "outcome"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_discarded_messages_total",
			Help: "Messages dropped by prompt truncation.",
		}, []string{"deployment"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tool_calls_total",
			Help: "Tool calls recognized in generated text.",
		}, []string{"deployment"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Prompt and completion tokens.",
		}, []string{"deployment", "kind"}),
		truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_truncation_failures_total",
			Help: "Requests rejected by prompt truncation.",
		}, []string{"deployment", "kind"}),
	}
	reg.MustRegister(m.completions, m.discarded, m.toolCalls, m.tokens, m.truncations)
	return m
}

func (m *Metrics) completion(dep, outcome string) {
	if m != nil {
		m.completions.WithLabelValues(dep, outcome).Inc()
	}
}

func (m *Metrics) discardedMessages(dep string, n int) {
	if m != nil && n > 0 {
		m.discarded.WithLabelValues(dep).Add(float64(n))
	}
}

func (m *Metrics) toolCall(dep string) {
	if m != nil {
		m.toolCalls.WithLabelValues(dep).Inc()
	}
}

func (m *Metrics) usage(dep string, u domain.Usage) {
	if m != nil {
		m.tokens.WithLabelValues(dep, "prompt").Add(float64(u.PromptTokens))
		m.tokens.WithLabelValues(dep, "completion").Add(float64(u.CompletionTokens))
	}
}

func (m *Metrics) truncationFailure(dep string, kind truncation.ErrorKind) {
	if m != nil {
		m.truncations.WithLabelValues(dep, kind.String()).Inc()
	}
}
