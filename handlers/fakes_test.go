package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"campus_delivery/goapi/middleware"
	"campus_delivery/goapi/models"
	"campus_delivery/goapi/realtime"
	"campus_delivery/goapi/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The fakes below implement the store interfaces in memory with the same
// guard semantics as the MongoDB repositories, so the handlers can be
// exercised end to end without a database.

type fakeOrderStore struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (f *fakeOrderStore) Insert(ctx context.Context, order *models.Order) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.DisplayID == order.DisplayID {
			return nil, fmt.Errorf("%w: displayId %s already exists", store.ErrConflict, order.DisplayID)
		}
	}
	now := time.Now().UTC()
	order.ID = primitive.NewObjectID()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	f.orders = append(f.orders, order)
	return order, nil
}

func (f *fakeOrderStore) get(id primitive.ObjectID) *models.Order {
	for _, o := range f.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (f *fakeOrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o := f.get(id); o != nil {
		cp := *o
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id.Hex())
}

func (f *fakeOrderStore) FindByCustomer(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return f.filter(func(o *models.Order) bool { return o.User == userID && !o.IsArchived })
}

func (f *fakeOrderStore) FindByRestaurant(ctx context.Context, restaurantID primitive.ObjectID) ([]models.Order, error) {
	return f.filter(func(o *models.Order) bool { return o.Restaurant == restaurantID && !o.IsArchived })
}

func (f *fakeOrderStore) FindByAgent(ctx context.Context, agentID primitive.ObjectID, status models.Status) ([]models.Order, error) {
	return f.filter(func(o *models.Order) bool {
		return o.DeliveryAgent != nil && *o.DeliveryAgent == agentID && o.Status == status && !o.IsArchived
	})
}

func (f *fakeOrderStore) FindAvailableForPickup(ctx context.Context) ([]models.Order, error) {
	return f.filter(func(o *models.Order) bool {
		return o.Status == models.StatusReadyForPickup && !o.IsArchived
	})
}

func (f *fakeOrderStore) Search(ctx context.Context, q store.OrderSearch) ([]models.Order, error) {
	return f.filter(func(o *models.Order) bool {
		if o.IsArchived {
			return false
		}
		if q.Status != "" && o.Status != q.Status {
			return false
		}
		if q.DisplayID != "" &&
			!strings.Contains(strings.ToLower(o.DisplayID), strings.ToLower(q.DisplayID)) {
			return false
		}
		return true
	})
}

func (f *fakeOrderStore) filter(keep func(*models.Order) bool) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Order, 0)
	for _, o := range f.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) SetStatus(ctx context.Context, id primitive.ObjectID, from, to models.Status) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.get(id)
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id.Hex())
	}
	if o.Status != from {
		return nil, fmt.Errorf("%w: order no longer in status %q", store.ErrConflict, from)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) Accept(ctx context.Context, id, agentID primitive.ObjectID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.get(id)
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id.Hex())
	}
	if o.Status != models.StatusReadyForPickup || o.DeliveryAgent != nil {
		return nil, fmt.Errorf("%w: order is not available for pickup", store.ErrInvalidState)
	}
	o.Status = models.StatusOutForDelivery
	o.DeliveryAgent = &agentID
	o.UpdatedAt = time.Now().UTC()
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) Complete(ctx context.Context, id, agentID primitive.ObjectID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.get(id)
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id.Hex())
	}
	if o.DeliveryAgent == nil {
		return nil, fmt.Errorf("%w: no agent assigned to this order", store.ErrInvalidState)
	}
	if *o.DeliveryAgent != agentID {
		return nil, fmt.Errorf("%w: not the assigned agent for this order", store.ErrForbidden)
	}
	if o.Status != models.StatusOutForDelivery {
		return nil, fmt.Errorf("%w: order is not out for delivery", store.ErrInvalidState)
	}
	now := time.Now().UTC()
	o.Status = models.StatusCompleted
	o.IsDelivered = true
	o.DeliveredAt = &now
	o.UpdatedAt = now
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) MarkPaid(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.get(id)
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id.Hex())
	}
	now := time.Now().UTC()
	o.IsPaid = true
	o.PaidAt = &now
	o.UpdatedAt = now
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, o := range f.orders {
		if !o.IsArchived && o.Status.Terminal() && o.UpdatedAt.Before(cutoff) {
			o.IsArchived = true
			n++
		}
	}
	return n, nil
}

func (f *fakeOrderStore) HasCompletedOrder(ctx context.Context, userID, restaurantID primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.User == userID && o.Restaurant == restaurantID && o.Status == models.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOrderStore) Stats(ctx context.Context) (*store.DashboardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &store.DashboardStats{RecentOrders: []models.Order{}}
	for _, o := range f.orders {
		stats.OrderCount++
		stats.TotalSales += o.TotalPrice
	}
	return stats, nil
}

type fakeRestaurantStore struct {
	mu          sync.Mutex
	restaurants map[primitive.ObjectID]*models.Restaurant
}

func newFakeRestaurantStore() *fakeRestaurantStore {
	return &fakeRestaurantStore{restaurants: make(map[primitive.ObjectID]*models.Restaurant)}
}

func (f *fakeRestaurantStore) Create(ctx context.Context, restaurant *models.Restaurant) (*models.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.restaurants {
		if r.Name == restaurant.Name {
			return nil, fmt.Errorf("%w: a restaurant named %q already exists", store.ErrConflict, restaurant.Name)
		}
	}
	restaurant.ID = primitive.NewObjectID()
	if restaurant.Menu == nil {
		restaurant.Menu = []models.MenuItem{}
	}
	if restaurant.Reviews == nil {
		restaurant.Reviews = []models.Review{}
	}
	f.restaurants[restaurant.ID] = restaurant
	return restaurant, nil
}

func (f *fakeRestaurantStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.restaurants[id]; !ok {
		return fmt.Errorf("%w: restaurant %s", store.ErrNotFound, id.Hex())
	}
	delete(f.restaurants, id)
	return nil
}

func (f *fakeRestaurantStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.restaurants[id]
	if !ok {
		return nil, fmt.Errorf("%w: restaurant %s", store.ErrNotFound, id.Hex())
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRestaurantStore) FindAll(ctx context.Context) ([]models.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Restaurant, 0, len(f.restaurants))
	for _, r := range f.restaurants {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRestaurantStore) IncrementOrderCount(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.restaurants[id]
	if !ok {
		return nil, fmt.Errorf("%w: restaurant %s", store.ErrNotFound, id.Hex())
	}
	r.OrderCount++
	cp := *r
	return &cp, nil
}

func (f *fakeRestaurantStore) AddMenuItem(ctx context.Context, restaurantID primitive.ObjectID, item models.MenuItem) (*models.MenuItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.restaurants[restaurantID]
	if !ok {
		return nil, fmt.Errorf("%w: restaurant %s", store.ErrNotFound, restaurantID.Hex())
	}
	item.ID = primitive.NewObjectID()
	r.Menu = append(r.Menu, item)
	return &item, nil
}

func (f *fakeRestaurantStore) UpdateMenuItem(ctx context.Context, restaurantID, itemID primitive.ObjectID, update store.MenuItemUpdate) (*models.MenuItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.restaurants[restaurantID]
	if !ok {
		return nil, fmt.Errorf("%w: restaurant %s", store.ErrNotFound, restaurantID.Hex())
	}
	for i := range r.Menu {
		if r.Menu[i].ID != itemID {
			continue
		}
		if update.Name != nil {
			r.Menu[i].Name = *update.Name
		}
		if update.Description != nil {
			r.Menu[i].Description = *update.Description
		}
		if update.Price != nil {
			r.Menu[i].Price = *update.Price
		}
		if update.IsAvailable != nil {
			r.Menu[i].IsAvailable = *update.IsAvailable
		}
		cp := r.Menu[i]
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: menu item %s", store.ErrNotFound, itemID.Hex())
}

func (f *fakeRestaurantStore) DeleteMenuItem(ctx context.Context, restaurantID, itemID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.restaurants[restaurantID]
	if !ok {
		return fmt.Errorf("%w: restaurant %s", store.ErrNotFound, restaurantID.Hex())
	}
	for i := range r.Menu {
		if r.Menu[i].ID == itemID {
			r.Menu = append(r.Menu[:i], r.Menu[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: menu item %s", store.ErrNotFound, itemID.Hex())
}

func (f *fakeRestaurantStore) UpsertReview(ctx context.Context, restaurantID primitive.ObjectID, review models.Review) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.restaurants[restaurantID]
	if !ok {
		return false, fmt.Errorf("%w: restaurant %s", store.ErrNotFound, restaurantID.Hex())
	}
	updated := false
	for i := range r.Reviews {
		if r.Reviews[i].User == review.User {
			r.Reviews[i].Rating = review.Rating
			r.Reviews[i].Comment = review.Comment
			updated = true
			break
		}
	}
	if !updated {
		review.ID = primitive.NewObjectID()
		r.Reviews = append(r.Reviews, review)
	}
	r.Rating, r.NumReviews = store.RecomputeRating(r.Reviews)
	return updated, nil
}

func (f *fakeRestaurantStore) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.restaurants)), nil
}

type fakeUserStore struct {
	users map[primitive.ObjectID]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[primitive.ObjectID]*models.User)}
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == user.Email {
			return nil, fmt.Errorf("%w: a user with email %s already exists", store.ErrConflict, user.Email)
		}
	}
	user.ID = primitive.NewObjectID()
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, id.Hex())
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, email)
}

func (f *fakeUserStore) FindAgents(ctx context.Context) ([]models.User, error) {
	out := make([]models.User, 0)
	for _, u := range f.users {
		if u.Role == models.RoleAgent {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserStore) UpdateProfile(ctx context.Context, id primitive.ObjectID, update store.ProfileUpdate) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, id.Hex())
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.ProfilePicture != nil {
		u.ProfilePicture = *update.ProfilePicture
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, id.Hex())
	}
	u.Password = passwordHash
	return nil
}

func (f *fakeUserStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, ok := f.users[id]; !ok {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, id.Hex())
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserStore) DeleteByRestaurant(ctx context.Context, restaurantID primitive.ObjectID) (int64, error) {
	var n int64
	for id, u := range f.users {
		if u.Restaurant != nil && *u.Restaurant == restaurantID {
			delete(f.users, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeUserStore) CountCustomers(ctx context.Context) (int64, error) {
	var n int64
	for _, u := range f.users {
		if u.Role == models.RoleCustomer {
			n++
		}
	}
	return n, nil
}

// recordingHub captures published events for assertions.
type recordingHub struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (h *recordingHub) Publish(channel, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, realtime.Event{Event: event, Channel: channel, Payload: payload})
}

type testEnv struct {
	db          *DB
	orders      *fakeOrderStore
	restaurants *fakeRestaurantStore
	users       *fakeUserStore
	hub         *recordingHub
}

func newTestEnv() *testEnv {
	orders := &fakeOrderStore{}
	restaurants := newFakeRestaurantStore()
	users := newFakeUserStore()
	hub := &recordingHub{}
	return &testEnv{
		db: &DB{
			Orders:         orders,
			Restaurants:    restaurants,
			Users:          users,
			Hub:            hub,
			ServiceFeeRate: 0.05,
			DeliveryFee:    20.00,
		},
		orders:      orders,
		restaurants: restaurants,
		users:       users,
		hub:         hub,
	}
}

// asCaller stamps the authenticated identity on the request the way Protect
// would.
func asCaller(r *http.Request, c *middleware.Caller) *http.Request {
	return r.WithContext(middleware.WithCaller(r.Context(), c))
}
