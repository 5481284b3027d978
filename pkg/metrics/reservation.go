package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReservationMetrics counts reservation lifecycle events.
type ReservationMetrics struct {
	created  *prometheus.CounterVec
	rejected *prometheus.CounterVec
	expired  prometheus.Counter
}

// NewReservationMetrics registers reservation metrics on the provided
// registerer.
func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	if reg == nil {
		return &ReservationMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_created",
		Help: "Reservation lines created, by warehouse.",
	}, []string{"warehouse"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_rejected",
		Help: "Reservation attempts rejected, by reason.",
	}, []string{"reason"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservations_expired",
		Help: "Reservations released by the expiry sweep.",
	})
	reg.MustRegister(created, rejected, expired)
	return &ReservationMetrics{
		created:  created,
		rejected: rejected,
		expired:  expired,
	}
}

// IncCreated increments the created counter for the warehouse code.
func (r *ReservationMetrics) IncCreated(warehouse string) {
	if r == nil || r.created == nil {
		return
	}
	r.created.WithLabelValues(normalizeLabel(warehouse)).Inc()
}

// IncRejected increments the rejected counter for the given reason.
func (r *ReservationMetrics) IncRejected(reason string) {
	if r == nil || r.rejected == nil {
		return
	}
	r.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// AddExpired adds n to the expired counter.
func (r *ReservationMetrics) AddExpired(n int) {
	if r == nil || r.expired == nil || n <= 0 {
		return
	}
	r.expired.Add(float64(n))
}
