/**
 * @description
 * Prometheus collectors for the assistant service. Every recording method is
 * safe to call on a nil *Metrics so components can run without instrumentation
 * in tests and CLI commands.
 *
 * @dependencies
 * - github.com/prometheus/client_golang: metric types, registry and HTTP handler.
 */
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assistant"

// Metrics owns a private registry so tests can create as many instances as they like.
type Metrics struct {
	registry        *prometheus.Registry
	intentDecisions *prometheus.CounterVec
	groundingChecks *prometheus.CounterVec
	groundingIssues prometheus.Counter
	toolCalls       *prometheus.CounterVec
	ledgerOps       *prometheus.CounterVec
	llmRetries      *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	turnDuration    prometheus.Histogram
}

// New builds and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		intentDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_decisions_total",
			Help:      "Intent classifier decisions by result and decision method.",
		}, []string{"intent", "method"}),
		groundingChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grounding_checks_total",
			Help:      "Final responses checked against tool results, by outcome.",
		}, []string{"result"}),
		groundingIssues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grounding_issues_total",
			Help:      "Ungrounded financial claims detected in final responses.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls requested by the model, by tool, side and outcome.",
		}, []string{"tool", "side", "outcome"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Transfer ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		llmRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Retried model requests by error class.",
		}, []string{"class"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests refused by a rate limiter.",
		}, []string{"limiter"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a complete chat turn.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.intentDecisions,
		m.groundingChecks,
		m.groundingIssues,
		m.toolCalls,
		m.ledgerOps,
		m.llmRetries,
		m.rateLimited,
		m.turnDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IntentDecision(intent, method string) {
	if m == nil {
		return
	}
	m.intentDecisions.WithLabelValues(intent, method).Inc()
}

func (m *Metrics) GroundingCheck(grounded bool, issues int) {
	if m == nil {
		return
	}
	result := "grounded"
	if !grounded {
		result = "ungrounded"
	}
	m.groundingChecks.WithLabelValues(result).Inc()
	m.groundingIssues.Add(float64(issues))
}

func (m *Metrics) ToolCall(tool, side, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, side, outcome).Inc()
}

func (m *Metrics) LedgerOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) LLMRetry(class string) {
	if m == nil {
		return
	}
	m.llmRetries.WithLabelValues(class).Inc()
}

func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(limiter).Inc()
}

func (m *Metrics) ObserveTurn(d time.Duration) {
	if m == nil {
		return
	}
	m.turnDuration.Observe(d.Seconds())
}
