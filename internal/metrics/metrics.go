// Package metrics holds the Prometheus registry for the signal
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles all pipeline metrics.
type Registry struct {
	reg *prometheus.Registry

	HandsProcessed  prometheus.Counter
	HandsSkipped    *prometheus.CounterVec
	ModelsDiscarded *prometheus.CounterVec

	SignalsEmitted    *prometheus.CounterVec
	SignalsSuppressed *prometheus.CounterVec

	Balance  prometheus.Gauge
	Drawdown prometheus.Gauge

	MonteCarloDuration prometheus.Histogram

	NotifyFailures prometheus.Counter
	NotifyRetries  prometheus.Counter
}

// NewRegistry creates and registers every pipeline metric.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.HandsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tablerun_hands_processed_total",
		Help: "Outcome events accepted by the pipeline",
	})
	r.HandsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablerun_hands_skipped_total",
		Help: "Hands skipped without a decision, by reason",
	}, []string{"reason"})
	r.ModelsDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablerun_model_outputs_discarded_total",
		Help: "Model outputs excluded from the ensemble, by model",
	}, []string{"model"})

	r.SignalsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablerun_signals_emitted_total",
		Help: "Signals emitted, by confidence tier",
	}, []string{"tier"})
	r.SignalsSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablerun_signals_suppressed_total",
		Help: "Classified hands suppressed, by reason",
	}, []string{"reason"})

	r.Balance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tablerun_bankroll_balance",
		Help: "Current bankroll balance",
	})
	r.Drawdown = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tablerun_bankroll_drawdown",
		Help: "Current drawdown fraction from peak balance",
	})

	r.MonteCarloDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tablerun_montecarlo_duration_seconds",
		Help:    "Monte Carlo confidence estimation duration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	})

	r.NotifyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tablerun_notify_failures_total",
		Help: "Notifications abandoned after exhausting retries",
	})
	r.NotifyRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tablerun_notify_retries_total",
		Help: "Notification delivery retries",
	})

	r.reg.MustRegister(
		r.HandsProcessed, r.HandsSkipped, r.ModelsDiscarded,
		r.SignalsEmitted, r.SignalsSuppressed,
		r.Balance, r.Drawdown,
		r.MonteCarloDuration,
		r.NotifyFailures, r.NotifyRetries,
	)
	return r
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
