package triggers

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trigger-engine/internal/models"
)

// Metrics exposes Prometheus collectors for trigger executions.
// A nil *Metrics records nothing.
type Metrics struct {
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	autoDisabled      prometheus.Counter
	conditionLatency  *prometheus.HistogramVec
	webhookResponses  *prometheus.CounterVec
}

// MustNewMetrics registers the collectors with reg. Collectors that are already
// registered under the same name are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trigger_engine",
				Name:      "executions_total",
				Help:      "Trigger executions by final status.",
			},
			[]string{"status", "trigger_type"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trigger_engine",
				Name:      "execution_duration_seconds",
				Help:      "Wall time of the execute pipeline.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		autoDisabled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "trigger_engine",
				Name:      "auto_disabled_total",
				Help:      "Triggers disabled by the consecutive failure threshold.",
			},
		),
		conditionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trigger_engine",
				Name:      "condition_evaluation_seconds",
				Help:      "Latency of condition evaluation.",
				Buckets:   []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"result"},
		),
		webhookResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trigger_engine",
				Name:      "webhook_responses_total",
				Help:      "Webhook ingress responses by status code.",
			},
			[]string{"code"},
		),
	}

	m.executions = register(reg, m.executions)
	m.executionDuration = register(reg, m.executionDuration)
	m.autoDisabled = register(reg, m.autoDisabled)
	m.conditionLatency = register(reg, m.conditionLatency)
	m.webhookResponses = register(reg, m.webhookResponses)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// ObserveExecution counts a finished execution
func (m *Metrics) ObserveExecution(triggerType models.TriggerType, status models.ExecutionStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(string(status), string(triggerType)).Inc()
	m.executionDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) IncAutoDisabled() {
	if m == nil {
		return
	}
	m.autoDisabled.Inc()
}

// ObserveCondition records how long a condition took; result is met, not_met, error or timeout
func (m *Metrics) ObserveCondition(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.conditionLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveWebhookResponse(code int) {
	if m == nil {
		return
	}
	m.webhookResponses.WithLabelValues(strconv.Itoa(code)).Inc()
}
