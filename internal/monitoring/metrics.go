// Package monitoring exposes Prometheus metrics for ticket operations.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_operations_total",
			Help: "Total ticket operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	reservationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_reservation_duration_seconds",
			Help:    "Duration of the reservation transaction",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	inventoryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_events_total",
			Help: "Catalog lifecycle messages processed by outcome",
		},
		[]string{"queue", "outcome"},
	)
)

// TrackOperation counts one ticket operation. Operation is one of reserve,
// purchase, cancel, validate; outcome is ok or an error reason.
func TrackOperation(operation, outcome string) {
	ticketOperations.WithLabelValues(operation, outcome).Inc()
}

// TrackReservation records how long a reservation transaction took.
func TrackReservation(d time.Duration) {
	reservationDuration.Observe(d.Seconds())
}

// TrackInventoryEvent counts one processed catalog message.
func TrackInventoryEvent(queue, outcome string) {
	inventoryEvents.WithLabelValues(queue, outcome).Inc()
}
