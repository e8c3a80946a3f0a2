package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farmorders_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "farmorders_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	orderOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farmorders_order_operations_total",
		Help: "Count of order lifecycle operations by operation and result",
	}, []string{"operation", "result"})

	progressTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farmorders_progress_transitions_total",
		Help: "Count of progress status changes by target status",
	}, []string{"status"})

	absenceDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farmorders_absence_requests_total",
		Help: "Count of absence requests and decisions by status",
	}, []string{"status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farmorders_login_attempts_total",
		Help: "Count of login attempts by result",
	}, []string{"result"})

	sweepOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farmorders_sweep_operations_total",
		Help: "Count of order sweeper actions by result",
	}, []string{"result"})

	overdueOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "farmorders_overdue_orders",
		Help: "Number of unfinished orders past their deadline",
	})

	changeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "farmorders_change_subscribers",
		Help: "Number of connected change feed subscribers",
	})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "farmorders_circuit_breaker_state",
		Help: "Circuit breaker state per store (0 closed, 1 open, 2 half open)",
	}, []string{"name"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveOrderOperation counts an order operation (create, delete, accept, submit, ...)
func ObserveOrderOperation(operation string, err error) {
	orderOperations.WithLabelValues(operation, result(err)).Inc()
}

// ObserveProgressTransition counts a progress record entering status.
func ObserveProgressTransition(status string) {
	progressTransitions.WithLabelValues(status).Inc()
}

// ObserveAbsence counts an absence request entering status.
func ObserveAbsence(status string) {
	absenceDecisions.WithLabelValues(status).Inc()
}

// ObserveLogin counts a login attempt.
func ObserveLogin(err error) {
	loginAttempts.WithLabelValues(result(err)).Inc()
}

// ObserveSweep increments the sweeper counter for the given result.
func ObserveSweep(result string) {
	sweepOperations.WithLabelValues(result).Inc()
}

// SetOverdue sets the overdue orders gauge to a specific count.
func SetOverdue(count int) {
	if count < 0 {
		count = 0
	}
	overdueOrders.Set(float64(count))
}

// IncrementSubscribers increments the change feed subscriber gauge.
func IncrementSubscribers() {
	changeSubscribers.Inc()
}

// DecrementSubscribers decrements the change feed subscriber gauge.
func DecrementSubscribers() {
	changeSubscribers.Dec()
}

// SetBreakerState records the state of the named circuit breaker.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
