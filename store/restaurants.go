package store

import (
	"context"
	"fmt"
	"time"

	"campus_delivery/goapi/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MenuItemUpdate carries the optional fields of a menu-item edit. Nil means
// leave the field alone.
type MenuItemUpdate struct {
	Name        *string
	Description *string
	Price       *float64
	IsAvailable *bool
}

// RestaurantStoreInterface is the restaurant repository contract. Menu items
// and reviews are owned children of the restaurant aggregate and all
// mutations go through this single write path.
type RestaurantStoreInterface interface {
	Create(ctx context.Context, restaurant *models.Restaurant) (*models.Restaurant, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error)
	FindAll(ctx context.Context) ([]models.Restaurant, error)
	IncrementOrderCount(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error)
	AddMenuItem(ctx context.Context, restaurantID primitive.ObjectID, item models.MenuItem) (*models.MenuItem, error)
	UpdateMenuItem(ctx context.Context, restaurantID, itemID primitive.ObjectID, update MenuItemUpdate) (*models.MenuItem, error)
	DeleteMenuItem(ctx context.Context, restaurantID, itemID primitive.ObjectID) error
	UpsertReview(ctx context.Context, restaurantID primitive.ObjectID, review models.Review) (updated bool, err error)
	Count(ctx context.Context) (int64, error)
}

// RestaurantStore is the MongoDB-backed restaurant repository.
type RestaurantStore struct {
	Collection *mongo.Collection
}

func NewRestaurantStore(collection *mongo.Collection) *RestaurantStore {
	return &RestaurantStore{Collection: collection}
}

// EnsureIndexes creates the unique restaurant-name index.
func (s *RestaurantStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *RestaurantStore) Create(ctx context.Context, restaurant *models.Restaurant) (*models.Restaurant, error) {
	now := time.Now().UTC()
	restaurant.ID = primitive.NewObjectID()
	restaurant.CreatedAt = now
	restaurant.UpdatedAt = now
	if restaurant.Menu == nil {
		restaurant.Menu = []models.MenuItem{}
	}
	if restaurant.Reviews == nil {
		restaurant.Reviews = []models.Review{}
	}
	_, err := s.Collection.InsertOne(ctx, restaurant)
	if mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("%w: a restaurant named %q already exists", ErrConflict, restaurant.Name)
	}
	if err != nil {
		return nil, err
	}
	return restaurant, nil
}

func (s *RestaurantStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: restaurant %s", ErrNotFound, id.Hex())
	}
	return nil
}

func (s *RestaurantStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&restaurant)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: restaurant %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (s *RestaurantStore) FindAll(ctx context.Context) ([]models.Restaurant, error) {
	cursor, err := s.Collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	restaurants := make([]models.Restaurant, 0)
	for cursor.Next(ctx) {
		var restaurant models.Restaurant
		if err := cursor.Decode(&restaurant); err != nil {
			return nil, err
		}
		restaurants = append(restaurants, restaurant)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return restaurants, nil
}

// IncrementOrderCount bumps the per-restaurant order counter and returns the
// post-increment document in one atomic step. This is the only legal way to
// read the counter for displayId derivation; a read-then-write pair would
// hand out duplicate numbers under concurrent placement.
func (s *RestaurantStore) IncrementOrderCount(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	err := s.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"orderCount": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&restaurant)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: restaurant %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (s *RestaurantStore) AddMenuItem(ctx context.Context, restaurantID primitive.ObjectID, item models.MenuItem) (*models.MenuItem, error) {
	item.ID = primitive.NewObjectID()
	result, err := s.Collection.UpdateOne(ctx,
		bson.M{"_id": restaurantID},
		bson.M{
			"$push": bson.M{"menu": item},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, fmt.Errorf("%w: restaurant %s", ErrNotFound, restaurantID.Hex())
	}
	return &item, nil
}

func (s *RestaurantStore) UpdateMenuItem(ctx context.Context, restaurantID, itemID primitive.ObjectID, update MenuItemUpdate) (*models.MenuItem, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if update.Name != nil {
		set["menu.$.name"] = *update.Name
	}
	if update.Description != nil {
		set["menu.$.description"] = *update.Description
	}
	if update.Price != nil {
		set["menu.$.price"] = *update.Price
	}
	if update.IsAvailable != nil {
		set["menu.$.isAvailable"] = *update.IsAvailable
	}

	var restaurant models.Restaurant
	err := s.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": restaurantID, "menu._id": itemID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&restaurant)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: menu item %s", ErrNotFound, itemID.Hex())
	}
	if err != nil {
		return nil, err
	}
	for i := range restaurant.Menu {
		if restaurant.Menu[i].ID == itemID {
			return &restaurant.Menu[i], nil
		}
	}
	return nil, fmt.Errorf("%w: menu item %s", ErrNotFound, itemID.Hex())
}

func (s *RestaurantStore) DeleteMenuItem(ctx context.Context, restaurantID, itemID primitive.ObjectID) error {
	result, err := s.Collection.UpdateOne(ctx,
		bson.M{"_id": restaurantID},
		bson.M{
			"$pull": bson.M{"menu": bson.M{"_id": itemID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: restaurant %s", ErrNotFound, restaurantID.Hex())
	}
	if result.ModifiedCount == 0 {
		return fmt.Errorf("%w: menu item %s", ErrNotFound, itemID.Hex())
	}
	return nil
}

// UpsertReview adds the customer's review or updates their existing one, then
// recomputes the derived rating and numReviews. Both the in-place edit and
// the append are single filtered updates, so concurrent reviews by different
// customers cannot overwrite each other; the derived fields are recomputed
// server-side from the stored list.
func (s *RestaurantStore) UpsertReview(ctx context.Context, restaurantID primitive.ObjectID, review models.Review) (bool, error) {
	now := time.Now().UTC()
	result, err := s.Collection.UpdateOne(ctx,
		bson.M{"_id": restaurantID, "reviews.user": review.User},
		bson.M{"$set": bson.M{
			"reviews.$.rating":  review.Rating,
			"reviews.$.comment": review.Comment,
			"updatedAt":         now,
		}},
	)
	if err != nil {
		return false, err
	}
	updated := result.MatchedCount > 0

	if !updated {
		review.ID = primitive.NewObjectID()
		review.CreatedAt = now
		result, err = s.Collection.UpdateOne(ctx,
			bson.M{"_id": restaurantID, "reviews.user": bson.M{"$ne": review.User}},
			bson.M{
				"$push": bson.M{"reviews": review},
				"$set":  bson.M{"updatedAt": now},
			},
		)
		if err != nil {
			return false, err
		}
		if result.MatchedCount == 0 {
			if _, ferr := s.FindByID(ctx, restaurantID); ferr != nil {
				return false, ferr
			}
			// The same customer's review landed between the two updates;
			// edit it in place.
			if _, err := s.Collection.UpdateOne(ctx,
				bson.M{"_id": restaurantID, "reviews.user": review.User},
				bson.M{"$set": bson.M{
					"reviews.$.rating":  review.Rating,
					"reviews.$.comment": review.Comment,
					"updatedAt":         now,
				}},
			); err != nil {
				return false, err
			}
			updated = true
		}
	}

	_, err = s.Collection.UpdateOne(ctx,
		bson.M{"_id": restaurantID},
		mongo.Pipeline{bson.D{{Key: "$set", Value: bson.D{
			{Key: "rating", Value: bson.D{{Key: "$ifNull", Value: bson.A{
				bson.D{{Key: "$avg", Value: "$reviews.rating"}}, 0,
			}}}},
			{Key: "numReviews", Value: bson.D{{Key: "$size", Value: "$reviews"}}},
		}}}},
	)
	return updated, err
}

func (s *RestaurantStore) Count(ctx context.Context) (int64, error) {
	return s.Collection.CountDocuments(ctx, bson.M{})
}

// RecomputeRating derives the mean rating and review count from the review
// list.
func RecomputeRating(reviews []models.Review) (rating float64, numReviews int) {
	if len(reviews) == 0 {
		return 0, 0
	}
	var sum float64
	for _, r := range reviews {
		sum += r.Rating
	}
	return sum / float64(len(reviews)), len(reviews)
}
