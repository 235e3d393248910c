package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ledger service metrics. All Record/Set methods are safe on a nil receiver.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Ledger metrics
	LedgerOperations        *prometheus.CounterVec
	LedgerOperationDuration *prometheus.HistogramVec
	MovementsRecorded       *prometheus.CounterVec
	UnitsMoved              *prometheus.CounterVec
	LowStockDetected        prometheus.Counter

	// Storage metrics
	StoreOperations        *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaEventsConsumed  *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPending         prometheus.Gauge
	OutboxPublished       *prometheus.CounterVec
	OutboxPublishDuration prometheus.Histogram

	// Idempotency metrics
	IdempotencyResults *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "inventory",
	}
}

// New creates a Metrics instance on its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"service", "method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"service", "method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.LedgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "ledger_operations_total", Help: "Ledger write operations by outcome"},
		[]string{"service", "operation", "outcome"},
	)
	m.LedgerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger transaction duration in seconds, including lock waits",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "operation"},
	)
	m.MovementsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "movements_recorded_total", Help: "Movements appended to the ledger"},
		[]string{"service", "type"},
	)
	m.UnitsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "units_moved_total", Help: "Units carried by recorded movements"},
		[]string{"service", "type"},
	)
	m.LowStockDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "low_stock_detected_total",
		Help:        "Stock rows that crossed below their minimum",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "store_operations_total", Help: "Storage operations"},
		[]string{"service", "driver", "operation", "status"},
	)
	m.StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "store_operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "driver", "operation"},
	)

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaEventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_consumed_total", Help: "Total number of Kafka events consumed"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "outbox_pending_events",
		Help:        "Unpublished events seen by the last relay poll",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "outbox_events_relayed_total", Help: "Outbox relay attempts"},
		[]string{"service", "event_type", "status"},
	)
	m.OutboxPublishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "outbox_relay_duration_seconds",
		Help:        "Outbox relay duration per event",
		Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.IdempotencyResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "idempotency_results_total", Help: "Idempotency key outcomes"},
		[]string{"service", "result"},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)"},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.LedgerOperations,
		m.LedgerOperationDuration,
		m.MovementsRecorded,
		m.UnitsMoved,
		m.LowStockDetected,
		m.StoreOperations,
		m.StoreOperationDuration,
		m.KafkaEventsPublished,
		m.KafkaEventsConsumed,
		m.KafkaPublishDuration,
		m.OutboxPending,
		m.OutboxPublished,
		m.OutboxPublishDuration,
		m.IdempotencyResults,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordLedgerOperation records a ledger write. outcome is "success" or an error code.
func (m *Metrics) RecordLedgerOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LedgerOperations.WithLabelValues(m.serviceName, operation, outcome).Inc()
	m.LedgerOperationDuration.WithLabelValues(m.serviceName, operation).Observe(duration.Seconds())
}

// RecordMovement records an appended movement
func (m *Metrics) RecordMovement(movementType string, quantity int64) {
	if m == nil {
		return
	}
	m.MovementsRecorded.WithLabelValues(m.serviceName, movementType).Inc()
	m.UnitsMoved.WithLabelValues(m.serviceName, movementType).Add(float64(quantity))
}

// RecordLowStock records a row crossing below its minimum
func (m *Metrics) RecordLowStock() {
	if m == nil {
		return
	}
	m.LowStockDetected.Inc()
}

// RecordStoreOperation records a storage operation
func (m *Metrics) RecordStoreOperation(driver, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(m.serviceName, driver, operation, status(success)).Inc()
	m.StoreOperationDuration.WithLabelValues(m.serviceName, driver, operation).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordKafkaConsume records a Kafka consume event
func (m *Metrics) RecordKafkaConsume(topic, eventType string, success bool) {
	if m == nil {
		return
	}
	m.KafkaEventsConsumed.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
}

// SetOutboxPending sets the pending outbox gauge
func (m *Metrics) SetOutboxPending(count int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records one relay attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(m.serviceName, eventType, status(success)).Inc()
	m.OutboxPublishDuration.Observe(duration.Seconds())
}

// RecordIdempotency records an idempotency outcome (miss, replay, mismatch, in_progress)
func (m *Metrics) RecordIdempotency(result string) {
	if m == nil {
		return
	}
	m.IdempotencyResults.WithLabelValues(m.serviceName, result).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}
