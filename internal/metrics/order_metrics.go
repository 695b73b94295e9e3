package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций над заказами.
const (
	ResultOK         = "ok"
	ResultNotFound   = "not_found"
	ResultInvalid    = "invalid"
	ResultFailed     = "failed"
	ResultRolledBack = "rolled_back"
)

// OrderMetrics содержит метрики операций над заказами.
type OrderMetrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	linesSynced  *prometheus.CounterVec
	ordersStored prometheus.Gauge
	seeded       prometheus.Counter
}

// NewOrderMetrics создаёт метрики в глобальном реестре Prometheus.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderdesk_order_operations_total",
			Help: "Total number of order operations grouped by operation and result.",
		}, []string{"operation", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orderdesk_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"}),
		linesSynced: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderdesk_order_lines_synced_total",
			Help: "Order lines touched by product synchronisation grouped by action.",
		}, []string{"action"}),
		ordersStored: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orderdesk_orders_listed",
			Help: "Number of orders returned by the last list operation.",
		}),
		seeded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderdesk_orders_seeded_total",
			Help: "Total number of demo orders created by the seeder.",
		}),
	}
}

// RecordOperation фиксирует результат и длительность операции.
func (m *OrderMetrics) RecordOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLinesSynced фиксирует количество вставленных, обновлённых и удалённых позиций.
func (m *OrderMetrics) RecordLinesSynced(inserted, updated, deleted int) {
	if m == nil {
		return
	}
	m.linesSynced.WithLabelValues("insert").Add(float64(inserted))
	m.linesSynced.WithLabelValues("update").Add(float64(updated))
	m.linesSynced.WithLabelValues("delete").Add(float64(deleted))
}

// SetListedOrders запоминает размер последнего списка заказов.
func (m *OrderMetrics) SetListedOrders(n int) {
	if m == nil {
		return
	}
	m.ordersStored.Set(float64(n))
}

// RecordSeeded увеличивает счётчик созданных демо-заказов.
func (m *OrderMetrics) RecordSeeded(n int) {
	if m == nil {
		return
	}
	m.seeded.Add(float64(n))
}
