package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"campus_delivery/goapi/middleware"
	"campus_delivery/goapi/middleware/logkafka"
	"campus_delivery/goapi/models"
	"campus_delivery/goapi/realtime"
	"campus_delivery/goapi/store"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
)

// archiveAfter is how old a terminal order must be before the sweep retires
// it.
const archiveAfter = 30 * 24 * time.Hour

type placeOrderRequest struct {
	Restaurant      string                 `json:"restaurant"`
	OrderItems      []placeOrderItem       `json:"orderItems"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
}

type placeOrderItem struct {
	Product string `json:"product"`
}

// PlaceOrderHandler creates a new order. Line items are snapshotted from the
// live menu and prices are computed server-side; client-sent prices are
// ignored. The displayId comes from the restaurant's atomically incremented
// counter.
func (db *DB) PlaceOrderHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, span := otel.Tracer("order-service").Start(r.Context(), "PlaceOrderHandler")
	defer span.End()

	c, ok := caller(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		ordersPlaced.WithLabelValues("error").Inc()
		return
	}
	if len(req.OrderItems) == 0 {
		respondError(w, fmt.Errorf("%w: no order items", store.ErrValidation))
		ordersPlaced.WithLabelValues("error").Inc()
		return
	}
	if !req.ShippingAddress.IsPickup {
		if req.ShippingAddress.Address == "" || req.ShippingAddress.City == "" ||
			req.ShippingAddress.PostalCode == "" || req.ShippingAddress.Phone == "" {
			respondError(w, fmt.Errorf("%w: missing required shipping fields", store.ErrValidation))
			ordersPlaced.WithLabelValues("error").Inc()
			return
		}
	}
	restaurantID, err := primitive.ObjectIDFromHex(req.Restaurant)
	if err != nil {
		respondError(w, fmt.Errorf("%w: invalid restaurant id", store.ErrValidation))
		ordersPlaced.WithLabelValues("error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// The counter bump is the atomic increment-and-read that numbers the
	// order; the post-increment document also carries the menu used for the
	// price snapshot.
	restaurant, err := db.Restaurants.IncrementOrderCount(ctx, restaurantID)
	if err != nil {
		span.RecordError(err)
		respondError(w, err)
		ordersPlaced.WithLabelValues("error").Inc()
		orderPlacementDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return
	}

	items, err := snapshotItems(restaurant, req.OrderItems)
	if err != nil {
		respondError(w, err)
		ordersPlaced.WithLabelValues("error").Inc()
		orderPlacementDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "Cash on Delivery"
	}

	order := &models.Order{
		DisplayID:       models.MakeDisplayID(restaurant.Name, restaurant.OrderCount),
		User:            c.ID,
		UserName:        c.Name,
		Restaurant:      restaurant.ID,
		OrderItems:      items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   paymentMethod,
		Status:          models.StatusPending,
	}
	models.PriceOrder(order, db.ServiceFeeRate, db.DeliveryFee)

	created, err := db.Orders.Insert(ctx, order)
	if err != nil {
		span.RecordError(err)
		respondError(w, err)
		ordersPlaced.WithLabelValues("error").Inc()
		orderPlacementDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return
	}

	// Post-commit fan-out: the restaurant dashboard channel gets the full
	// order with the customer name resolved. A failed publish never unwinds
	// the committed write.
	db.Hub.Publish(created.Restaurant.Hex(), realtime.EventNewOrder, created)
	logkafka.PublishOrderEvent(logkafka.OrderEvent{
		Kind:      "order_created",
		OrderID:   created.ID.Hex(),
		DisplayID: created.DisplayID,
		Status:    string(created.Status),
		ActorID:   c.ID.Hex(),
	})

	respondJSON(w, http.StatusCreated, created)
	ordersPlaced.WithLabelValues("success").Inc()
	orderPlacementDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
}

// snapshotItems resolves the requested product ids against the restaurant's
// current menu, fixing name and price into the order.
func snapshotItems(restaurant *models.Restaurant, reqItems []placeOrderItem) ([]models.OrderItem, error) {
	menu := make(map[primitive.ObjectID]models.MenuItem, len(restaurant.Menu))
	for _, item := range restaurant.Menu {
		menu[item.ID] = item
	}

	items := make([]models.OrderItem, 0, len(reqItems))
	for _, ri := range reqItems {
		productID, err := primitive.ObjectIDFromHex(ri.Product)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid menu item id %q", store.ErrValidation, ri.Product)
		}
		menuItem, ok := menu[productID]
		if !ok {
			return nil, fmt.Errorf("%w: menu item %s", store.ErrNotFound, ri.Product)
		}
		if !menuItem.IsAvailable {
			return nil, fmt.Errorf("%w: menu item %q is not available", store.ErrValidation, menuItem.Name)
		}
		items = append(items, models.OrderItem{
			Name:    menuItem.Name,
			Price:   menuItem.Price,
			Product: menuItem.ID,
		})
	}
	return items, nil
}

// GetOrderHandler returns one order. Only the placing customer, a
// super-admin, or the assigned agent may view it.
func (db *DB) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	order, err := db.Orders.FindByID(ctx, id)
	if err != nil {
		respondError(w, err)
		return
	}

	authorized := order.User == c.ID ||
		c.IsAdmin ||
		(order.DeliveryAgent != nil && *order.DeliveryAgent == c.ID)
	if !authorized {
		respondError(w, fmt.Errorf("%w: not authorized to view this order", store.ErrForbidden))
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// MyOrdersHandler returns the caller's active orders.
func (db *DB) MyOrdersHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	orders, err := db.Orders.FindByCustomer(ctx, c.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// MyRestaurantOrdersHandler returns the active orders of the caller's linked
// restaurant.
func (db *DB) MyRestaurantOrdersHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	if c.Restaurant == nil {
		respondError(w, fmt.Errorf("%w: no restaurant linked to this account", store.ErrNotFound))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	orders, err := db.Orders.FindByRestaurant(ctx, *c.Restaurant)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// AvailableOrdersHandler returns the orders an agent can pick up. The status
// filter is fixed server-side.
func (db *DB) AvailableOrdersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	orders, err := db.Orders.FindAvailableForPickup(ctx)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// MyDeliveriesHandler returns the caller's in-flight deliveries.
func (db *DB) MyDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	orders, err := db.Orders.FindByAgent(ctx, c.ID, models.StatusOutForDelivery)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatusHandler applies a restaurant-admin transition. The target
// status is validated against the closed enum and must be strictly forward
// (or Cancelled) from the current state.
func (db *DB) UpdateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}
	target := models.Status(req.Status)
	if !target.Valid() {
		respondError(w, fmt.Errorf("%w: unknown status %q", store.ErrValidation, req.Status))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	order, err := db.Orders.FindByID(ctx, id)
	if err != nil {
		respondError(w, err)
		return
	}
	if c.Restaurant == nil || *c.Restaurant != order.Restaurant {
		respondError(w, fmt.Errorf("%w: not authorized to update this order", store.ErrForbidden))
		return
	}
	if !models.CanRestaurantSet(order.Status, target) {
		respondError(w, fmt.Errorf("%w: cannot move order from %q to %q", store.ErrInvalidState, order.Status, target))
		return
	}

	updated, err := db.Orders.SetStatus(ctx, id, order.Status, target)
	if err != nil {
		respondError(w, err)
		return
	}

	db.publishStatusUpdate(updated, c)
	orderTransitions.WithLabelValues(string(target), "restaurant").Inc()
	respondJSON(w, http.StatusOK, updated)
}

// AcceptOrderHandler assigns the calling agent and takes the order out for
// delivery. The store applies the transition atomically, so a second agent
// racing on the same order loses cleanly.
func (db *DB) AcceptOrderHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	updated, err := db.Orders.Accept(ctx, id, c.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	db.publishStatusUpdate(updated, c)
	orderTransitions.WithLabelValues(string(models.StatusOutForDelivery), "agent").Inc()
	respondJSON(w, http.StatusOK, updated)
}

// CompleteOrderHandler marks a delivery completed. Only the assigned agent
// may call it.
func (db *DB) CompleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	updated, err := db.Orders.Complete(ctx, id, c.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	db.publishStatusUpdate(updated, c)
	orderTransitions.WithLabelValues(string(models.StatusCompleted), "agent").Inc()
	respondJSON(w, http.StatusOK, updated)
}

// ArchiveOrdersHandler runs the archival sweep: terminal orders untouched for
// 30 days are soft-retired. Idempotent; reports the archived count.
func (db *DB) ArchiveOrdersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	count, err := db.Orders.ArchiveOlderThan(ctx, time.Now().UTC().Add(-archiveAfter))
	if err != nil {
		respondError(w, err)
		return
	}
	ordersArchived.Add(float64(count))
	logkafka.PublishOrderEvent(logkafka.OrderEvent{
		Kind:   "orders_archived",
		Status: fmt.Sprintf("%d archived", count),
	})
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Archiving process completed.",
		"archivedCount": count,
	})
}

// SearchOrdersHandler is the super-admin global view with status and
// displayId-substring filters.
func (db *DB) SearchOrdersHandler(w http.ResponseWriter, r *http.Request) {
	q := store.OrderSearch{DisplayID: r.URL.Query().Get("search")}
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := models.Status(statusParam)
		if !status.Valid() {
			respondError(w, fmt.Errorf("%w: unknown status %q", store.ErrValidation, statusParam))
			return
		}
		q.Status = status
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	orders, err := db.Orders.Search(ctx, q)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// publishStatusUpdate pushes the updated order to its own channel and logs
// the lifecycle event. Both are post-commit and best-effort.
func (db *DB) publishStatusUpdate(order *models.Order, c *middleware.Caller) {
	db.Hub.Publish(order.ID.Hex(), realtime.EventOrderStatusUpdated, order)
	logkafka.PublishOrderEvent(logkafka.OrderEvent{
		Kind:      "order_status_updated",
		OrderID:   order.ID.Hex(),
		DisplayID: order.DisplayID,
		Status:    string(order.Status),
		ActorID:   c.ID.Hex(),
	})
}

func orderID(r *http.Request) (primitive.ObjectID, error) {
	vars := mux.Vars(r)
	id, err := primitive.ObjectIDFromHex(vars["id"])
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid order id", store.ErrValidation)
	}
	return id, nil
}
