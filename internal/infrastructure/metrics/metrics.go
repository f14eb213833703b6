package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels of subscribe/unsubscribe counters
const (
	OutcomeCreated        = "created"
	OutcomeRestored       = "restored"
	OutcomeNoop           = "noop"
	OutcomeDeleted        = "deleted"
	OutcomeCooldown       = "cooldown"
	OutcomeNotFound       = "not_found"
	OutcomeTargetNotFound = "target_not_found"
	OutcomeConflict       = "conflict"
	OutcomeError          = "error"
)

// Metrics holds all Prometheus metrics for the subscription service
type Metrics struct {
	SubscribeTotal    *prometheus.CounterVec
	UnsubscribeTotal  *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	PurgedTotal    *prometheus.CounterVec
	PurgeRunsTotal *prometheus.CounterVec

	KafkaCommandsTotal *prometheus.CounterVec
}

// NewMetrics registers every collector on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SubscribeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_service_subscribe_total",
				Help: "Subscribe calls by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		UnsubscribeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_service_unsubscribe_total",
				Help: "Unsubscribe calls by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subscription_service_operation_duration_seconds",
				Help:    "Duration of lifecycle operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		),
		PurgedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_service_purged_total",
				Help: "Soft-deleted rows removed by the retention sweep",
			},
			[]string{"kind"},
		),
		PurgeRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_service_purge_runs_total",
				Help: "Retention sweep runs by status",
			},
			[]string{"status"},
		),
		KafkaCommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_service_kafka_commands_total",
				Help: "Commands consumed from Kafka by type and result",
			},
			[]string{"type", "result"},
		),
	}
}

// NewNop returns metrics registered on a private registry
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func (m *Metrics) RecordSubscribe(kind, outcome string) {
	m.SubscribeTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordUnsubscribe(kind, outcome string) {
	m.UnsubscribeTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveSince records the duration of an operation that started at start
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordPurged(kind string, n int64) {
	if n > 0 {
		m.PurgedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) RecordPurgeRun(status string) {
	m.PurgeRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordKafkaCommand(commandType, result string) {
	m.KafkaCommandsTotal.WithLabelValues(commandType, result).Inc()
}
