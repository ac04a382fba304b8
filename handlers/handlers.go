// Package handlers provides the HTTP handler functions for the campus
// delivery API: order placement and lifecycle transitions, restaurant and
// menu management, reviews, agent management, user accounts, payments, and
// the super-admin dashboard. Handlers depend on the store interfaces and the
// realtime publisher so they can be exercised without a live database.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"campus_delivery/goapi/middleware"
	"campus_delivery/goapi/realtime"
	"campus_delivery/goapi/store"

	"github.com/prometheus/client_golang/prometheus"
)

// DB bundles the repositories and the push-notification hub used by every
// handler.
type DB struct {
	Orders      store.OrderStoreInterface
	Restaurants store.RestaurantStoreInterface
	Users       store.UserStoreInterface
	Hub         realtime.Publisher

	// ServiceFeeRate is the fraction of itemsPrice charged as service fee
	// (0.05 for 5%). DeliveryFee is the flat fee for non-pickup orders.
	ServiceFeeRate float64
	DeliveryFee    float64
}

// Prometheus metrics for the order lifecycle.
var (
	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Total number of order placement requests",
		},
		[]string{"status"},
	)

	orderPlacementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_placement_duration_seconds",
			Help:    "Histogram of order placement durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Total number of order status transitions by target status",
		},
		[]string{"to", "actor"},
	)

	ordersArchived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_archived_total",
		Help: "Total number of orders archived by the sweep",
	})
)

// Init registers the package metrics with Prometheus. Call once at startup.
func Init() {
	prometheus.MustRegister(ordersPlaced)
	prometheus.MustRegister(orderPlacementDuration)
	prometheus.MustRegister(orderTransitions)
	prometheus.MustRegister(ordersArchived)
}

func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

// respondError maps the store error taxonomy onto HTTP statuses. Every
// rejection carries a specific reason string.
func respondError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, store.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, store.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, store.ErrInvalidState), errors.Is(err, store.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, store.ErrValidation):
		code = http.StatusBadRequest
	}
	respondJSON(w, code, errorResponse{Message: err.Error()})
}

// caller pulls the authenticated identity out of the request context. The
// auth middleware guarantees it is present on protected routes; a missing
// caller is a wiring bug surfaced as 401.
func caller(w http.ResponseWriter, r *http.Request) (*middleware.Caller, bool) {
	c, ok := middleware.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "Not authorized", http.StatusUnauthorized)
		return nil, false
	}
	return c, true
}
