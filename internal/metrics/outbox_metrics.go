package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты публикации outbox-событий.
const (
	PublishSent       = "sent"
	PublishRetried    = "retried"
	PublishFailed     = "failed"
	PublishDeferred   = "deferred"
	PublishDeadLetter = "dead_lettered"
	PublishDLQFailed  = "dlq_failed"
)

// OutboxMetrics описывает доставку событий заказов из outbox.
type OutboxMetrics struct {
	publishes *prometheus.CounterVec
	backlog   prometheus.Gauge
	lag       prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики в глобальном реестре Prometheus.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		publishes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderdesk_order_events_published_total",
			Help: "Order event publish outcomes grouped by result.",
		}, []string{"result"}),
		backlog: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orderdesk_order_events_backlog",
			Help: "Order events waiting in the outbox.",
		}),
		lag: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orderdesk_order_events_lag_seconds",
			Help: "Age of the oldest order event waiting in the outbox.",
		}),
	}
}

// RecordPublish увеличивает счётчик результата публикации.
func (m *OutboxMetrics) RecordPublish(result string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(result).Inc()
}

// SetBacklog запоминает размер очереди и возраст самого старого события.
func (m *OutboxMetrics) SetBacklog(pending int, lag time.Duration) {
	if m == nil {
		return
	}
	m.backlog.Set(float64(pending))
	m.lag.Set(max(lag, 0).Seconds())
}
