package handlers

import (
	"context"
	"net/http"
	"time"
)

// DashboardStatsHandler returns the super-admin aggregate view: entity
// counts, total sales, and the most recent orders.
func (db *DB) DashboardStatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stats, err := db.Orders.Stats(ctx)
	if err != nil {
		respondError(w, err)
		return
	}
	if stats.RestaurantCount, err = db.Restaurants.Count(ctx); err != nil {
		respondError(w, err)
		return
	}
	if stats.CustomerCount, err = db.Users.CountCustomers(ctx); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
