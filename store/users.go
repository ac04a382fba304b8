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

// ProfileUpdate carries the optional fields of a profile edit.
type ProfileUpdate struct {
	Name           *string
	Email          *string
	ProfilePicture *string
}

// UserStoreInterface is the user repository contract.
type UserStoreInterface interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindAgents(ctx context.Context) ([]models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, update ProfileUpdate) (*models.User, error)
	UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteByRestaurant(ctx context.Context, restaurantID primitive.ObjectID) (int64, error)
	CountCustomers(ctx context.Context) (int64, error)
}

// UserStore is the MongoDB-backed user repository.
type UserStore struct {
	Collection *mongo.Collection
}

func NewUserStore(collection *mongo.Collection) *UserStore {
	return &UserStore{Collection: collection}
}

// EnsureIndexes creates the unique email index.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Create inserts a new user. Password must already be hashed by the caller.
func (s *UserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	if user.ProfilePicture == "" {
		user.ProfilePicture = "/images/default-avatar.png"
	}
	_, err := s.Collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("%w: a user with email %s already exists", ErrConflict, user.Email)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.Collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) FindAgents(ctx context.Context) ([]models.User, error) {
	cursor, err := s.Collection.Find(ctx, bson.M{"role": models.RoleAgent})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	agents := make([]models.User, 0)
	for cursor.Next(ctx) {
		var agent models.User
		if err := cursor.Decode(&agent); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return agents, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, id primitive.ObjectID, update ProfileUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.ProfilePicture != nil {
		set["profilePicture"] = *update.ProfilePicture
	}

	var user models.User
	err := s.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("%w: a user with that email already exists", ErrConflict)
	}
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	result, err := s.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"password": passwordHash, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, id.Hex())
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, id.Hex())
	}
	return nil
}

// DeleteByRestaurant removes the admin accounts linked to a restaurant; used
// when the super-admin deletes the restaurant itself.
func (s *UserStore) DeleteByRestaurant(ctx context.Context, restaurantID primitive.ObjectID) (int64, error) {
	result, err := s.Collection.DeleteMany(ctx, bson.M{"restaurant": restaurantID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (s *UserStore) CountCustomers(ctx context.Context) (int64, error) {
	return s.Collection.CountDocuments(ctx, bson.M{"role": models.RoleCustomer})
}
