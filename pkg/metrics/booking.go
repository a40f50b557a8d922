package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Booking outcomes used as label values.
const (
	OutcomeBooked       = "booked"
	OutcomeRejected     = "rejected"
	OutcomeInsufficient = "insufficient"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

// BookingMetrics covers booking attempts, lock contention and order
// status transitions.
type BookingMetrics struct {
	attempts    *prometheus.CounterVec
	lockWait    prometheus.Histogram
	duration    prometheus.Histogram
	transitions *prometheus.CounterVec
}

// NewBookingMetrics registers the booking metrics on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_attempts_total",
		Help:      "Booking attempts by outcome.",
	}, []string{"outcome"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "booking_lock_wait_seconds",
		Help:      "Time spent waiting for the per-item booking lock.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "booking_duration_seconds",
		Help:      "End to end booking latency including lock wait.",
		Buckets:   prometheus.DefBuckets,
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transition attempts.",
	}, []string{"from", "to", "outcome"})
	reg.MustRegister(attempts, lockWait, duration, transitions)
	return &BookingMetrics{
		attempts:    attempts,
		lockWait:    lockWait,
		duration:    duration,
		transitions: transitions,
	}
}

// IncAttempt counts a finished booking attempt.
func (b *BookingMetrics) IncAttempt(outcome string) {
	if b == nil || b.attempts == nil {
		return
	}
	b.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveLockWait records how long the caller waited for the item lock.
func (b *BookingMetrics) ObserveLockWait(d time.Duration) {
	if b == nil || b.lockWait == nil {
		return
	}
	b.lockWait.Observe(d.Seconds())
}

// ObserveDuration records the total booking latency.
func (b *BookingMetrics) ObserveDuration(d time.Duration) {
	if b == nil || b.duration == nil {
		return
	}
	b.duration.Observe(d.Seconds())
}

// IncTransition counts an order status transition attempt.
func (b *BookingMetrics) IncTransition(from, to, outcome string) {
	if b == nil || b.transitions == nil {
		return
	}
	b.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(outcome)).Inc()
}
