package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"campus_delivery/goapi/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrderSearch holds the optional filters for the super-admin order listing.
// DisplayID is treated as a case-insensitive literal substring.
type OrderSearch struct {
	Status    models.Status
	DisplayID string
}

// DashboardStats is the aggregate view returned to the super-admin dashboard.
type DashboardStats struct {
	OrderCount      int64          `json:"orderCount"`
	RestaurantCount int64          `json:"restaurantCount"`
	CustomerCount   int64          `json:"customerCount"`
	TotalSales      float64        `json:"totalSales"`
	RecentOrders    []models.Order `json:"recentOrders"`
}

// OrderStoreInterface is the order repository contract. Handlers depend on
// this so tests can substitute an in-memory implementation.
type OrderStoreInterface interface {
	Insert(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindByCustomer(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	FindByRestaurant(ctx context.Context, restaurantID primitive.ObjectID) ([]models.Order, error)
	FindByAgent(ctx context.Context, agentID primitive.ObjectID, status models.Status) ([]models.Order, error)
	FindAvailableForPickup(ctx context.Context) ([]models.Order, error)
	Search(ctx context.Context, q OrderSearch) ([]models.Order, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, from, to models.Status) (*models.Order, error)
	Accept(ctx context.Context, id, agentID primitive.ObjectID) (*models.Order, error)
	Complete(ctx context.Context, id, agentID primitive.ObjectID) (*models.Order, error)
	MarkPaid(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	HasCompletedOrder(ctx context.Context, userID, restaurantID primitive.ObjectID) (bool, error)
	Stats(ctx context.Context) (*DashboardStats, error)
}

// OrderStore is the MongoDB-backed order repository.
type OrderStore struct {
	Collection *mongo.Collection
}

func NewOrderStore(collection *mongo.Collection) *OrderStore {
	return &OrderStore{Collection: collection}
}

// EnsureIndexes creates the unique displayId index. The index is the
// uniqueness backstop for concurrent order placement; a losing insert
// surfaces as ErrConflict instead of a silent duplicate.
func (s *OrderStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "displayId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Insert persists a freshly built order. The caller derives DisplayID before
// calling; Insert only stamps timestamps and identity.
func (s *OrderStore) Insert(ctx context.Context, order *models.Order) (*models.Order, error) {
	now := time.Now().UTC()
	order.ID = primitive.NewObjectID()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	_, err := s.Collection.InsertOne(ctx, order)
	if mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("%w: displayId %s already exists", ErrConflict, order.DisplayID)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderStore) findAll(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.Order, error) {
	cursor, err := s.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	for cursor.Next(ctx) {
		var order models.Order
		if err := cursor.Decode(&order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// FindByCustomer returns the customer's active (non-archived) orders.
func (s *OrderStore) FindByCustomer(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return s.findAll(ctx, bson.M{"user": userID, "isArchived": false},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// FindByRestaurant returns the restaurant's active orders, newest first.
func (s *OrderStore) FindByRestaurant(ctx context.Context, restaurantID primitive.ObjectID) ([]models.Order, error) {
	return s.findAll(ctx, bson.M{"restaurant": restaurantID, "isArchived": false},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// FindByAgent returns the agent's active orders in the given status.
func (s *OrderStore) FindByAgent(ctx context.Context, agentID primitive.ObjectID, status models.Status) ([]models.Order, error) {
	return s.findAll(ctx, bson.M{"deliveryAgent": agentID, "status": status, "isArchived": false})
}

// FindAvailableForPickup returns unarchived orders waiting for an agent.
func (s *OrderStore) FindAvailableForPickup(ctx context.Context) ([]models.Order, error) {
	return s.findAll(ctx, bson.M{"status": models.StatusReadyForPickup, "isArchived": false})
}

// displayIDRegex builds the case-insensitive matcher for a displayId search
// term. The term is escaped with regexp.QuoteMeta so metacharacters in user
// input match themselves instead of acting as regex operators.
func displayIDRegex(term string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}

// Search lists active orders for the super-admin view. The displayId
// substring matches literally.
func (s *OrderStore) Search(ctx context.Context, q OrderSearch) ([]models.Order, error) {
	filter := bson.M{"isArchived": false}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.DisplayID != "" {
		filter["displayId"] = displayIDRegex(q.DisplayID)
	}
	return s.findAll(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// SetStatus applies a restaurant-admin transition as a compare-and-set on the
// current status, so a concurrent transition can never be overwritten
// backwards. The caller validates the transition before calling.
func (s *OrderStore) SetStatus(ctx context.Context, id primitive.ObjectID, from, to models.Status) (*models.Order, error) {
	var order models.Order
	err := s.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, s.classifyMiss(ctx, id, fmt.Errorf("%w: order no longer in status %q", ErrConflict, from))
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Accept atomically assigns the calling agent and moves the order out for
// delivery. The filter requires Ready for Pickup with no agent assigned, so
// two agents racing on the same order can only produce one winner.
func (s *OrderStore) Accept(ctx context.Context, id, agentID primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := s.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.StatusReadyForPickup, "deliveryAgent": nil},
		bson.M{"$set": bson.M{
			"status":        models.StatusOutForDelivery,
			"deliveryAgent": agentID,
			"updatedAt":     time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, s.classifyMiss(ctx, id, fmt.Errorf("%w: order is not available for pickup", ErrInvalidState))
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Complete marks an out-for-delivery order completed. Only the assigned agent
// matches the filter; a miss is classified as NotFound, Forbidden (wrong
// agent), or InvalidState (no agent / wrong status).
func (s *OrderStore) Complete(ctx context.Context, id, agentID primitive.ObjectID) (*models.Order, error) {
	now := time.Now().UTC()
	var order models.Order
	err := s.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.StatusOutForDelivery, "deliveryAgent": agentID},
		bson.M{"$set": bson.M{
			"status":      models.StatusCompleted,
			"isDelivered": true,
			"deliveredAt": now,
			"updatedAt":   now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if err == nil {
		return &order, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}
	current, ferr := s.FindByID(ctx, id)
	if ferr != nil {
		return nil, ferr
	}
	if current.DeliveryAgent == nil {
		return nil, fmt.Errorf("%w: no agent assigned to this order", ErrInvalidState)
	}
	if *current.DeliveryAgent != agentID {
		return nil, fmt.Errorf("%w: not the assigned agent for this order", ErrForbidden)
	}
	return nil, fmt.Errorf("%w: order is not out for delivery", ErrInvalidState)
}

// MarkPaid records a successful payment.
func (s *OrderStore) MarkPaid(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	now := time.Now().UTC()
	var order models.Order
	err := s.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isPaid": true, "paidAt": now, "updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ArchiveOlderThan retires terminal orders last touched before cutoff.
// Re-running with no newly eligible orders modifies nothing.
func (s *OrderStore) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.Collection.UpdateMany(ctx,
		bson.M{
			"isArchived": false,
			"status":     bson.M{"$in": []models.Status{models.StatusCompleted, models.StatusCancelled}},
			"updatedAt":  bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{"isArchived": true}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// HasCompletedOrder reports whether the customer has a completed order at the
// restaurant. Reviews are gated on this.
func (s *OrderStore) HasCompletedOrder(ctx context.Context, userID, restaurantID primitive.ObjectID) (bool, error) {
	err := s.Collection.FindOne(ctx, bson.M{
		"user":       userID,
		"restaurant": restaurantID,
		"status":     models.StatusCompleted,
	}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stats aggregates the order-side dashboard numbers. Restaurant and customer
// counts are filled in by the handler from the other stores.
func (s *OrderStore) Stats(ctx context.Context) (*DashboardStats, error) {
	count, err := s.Collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	cursor, err := s.Collection.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalSales", Value: bson.D{{Key: "$sum", Value: "$totalPrice"}}},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var totalSales float64
	if cursor.Next(ctx) {
		var row struct {
			TotalSales float64 `bson:"totalSales"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		totalSales = row.TotalSales
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	recent, err := s.findAll(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(5))
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		OrderCount:   count,
		TotalSales:   totalSales,
		RecentOrders: recent,
	}, nil
}

// classifyMiss turns a FindOneAndUpdate miss into NotFound when the order id
// does not resolve at all, otherwise into the supplied guard error.
func (s *OrderStore) classifyMiss(ctx context.Context, id primitive.ObjectID, guardErr error) error {
	if err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Err(); err == mongo.ErrNoDocuments {
		return fmt.Errorf("%w: order %s", ErrNotFound, id.Hex())
	} else if err != nil {
		return err
	}
	return guardErr
}
