// Package metrics 汇总报价会话的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

const namespace = "pumpcpq"

// Recorder 持有独立的 Registry，不污染全局默认 Registry，测试中可以重复创建。
type Recorder struct {
	registry *prometheus.Registry

	steps           *prometheus.CounterVec
	extractions     *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	quotes          *prometheus.CounterVec
	violations      prometheus.Counter
	activeSessions  prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_steps_total",
				Help:      "Phase handler executions by phase",
			},
			[]string{"phase"},
		),
		extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extractions_total",
				Help:      "Extraction attempts by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Model calls by provider and status",
			},
			[]string{"provider", "status"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Duration of model calls including retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		quotes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quotes_completed_total",
				Help:      "Completed quotes by approval outcome",
			},
			[]string{"approval"},
		),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_violations_total",
			Help:      "Constraint violations found by the validator",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held by the server",
		}),
	}
	r.registry.MustRegister(
		r.steps, r.extractions, r.providerCalls, r.providerLatency,
		r.quotes, r.violations, r.activeSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler 暴露 /metrics。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// StepObserved 实现 agent.Observer。
func (r *Recorder) StepObserved(phase model.Phase) {
	r.steps.WithLabelValues(string(phase)).Inc()
}

func (r *Recorder) ViolationsObserved(n int) {
	r.violations.Add(float64(n))
}

func (r *Recorder) QuoteCompleted(approval model.ApprovalOutcome) {
	r.quotes.WithLabelValues(string(approval)).Inc()
}

// ObserveExtraction 签名与 extract.Observer 一致。
func (r *Recorder) ObserveExtraction(strategy, outcome string) {
	r.extractions.WithLabelValues(strategy, outcome).Inc()
}

// ObserveProviderCall 签名与 llm.CallObserver 一致。
func (r *Recorder) ObserveProviderCall(provider, status string, elapsed time.Duration) {
	r.providerCalls.WithLabelValues(provider, status).Inc()
	r.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (r *Recorder) SessionOpened() { r.activeSessions.Inc() }
func (r *Recorder) SessionClosed() { r.activeSessions.Dec() }
