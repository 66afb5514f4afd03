// Package metrics exposes prometheus collectors for clubd store activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersCreated counts orders created from carts.
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubd_orders_created_total",
		Help: "Total number of food orders created.",
	})

	// OrderTransitions counts order status changes by target status.
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubd_order_status_transitions_total",
		Help: "Total number of order status transitions.",
	}, []string{"status"})

	// ReservationsCreated counts event reservations.
	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubd_reservations_created_total",
		Help: "Total number of event reservations created.",
	})

	// ReservationsCancelled counts cancelled reservations.
	ReservationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubd_reservations_cancelled_total",
		Help: "Total number of event reservations cancelled.",
	})

	// TicketsValidated counts QR validations by result.
	TicketsValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubd_tickets_validated_total",
		Help: "Total number of ticket QR payload validations.",
	}, []string{"result"})

	// CheckIns counts successful attendance check-ins.
	CheckIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubd_checkins_total",
		Help: "Total number of successful ticket check-ins.",
	})
)
