package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role values carried on User.Role.
const (
	RoleCustomer        = "customer"
	RoleRestaurantAdmin = "restaurantAdmin"
	RoleAgent           = "agent"
)

// User represents any account in the system: customers, restaurant admins,
// delivery agents. IsAdmin is the super-admin flag and is orthogonal to Role.
type User struct {
	ID             primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Name           string              `json:"name" bson:"name"`
	Email          string              `json:"email" bson:"email"`
	Password       string              `json:"-" bson:"password"`
	Phone          string              `json:"phone,omitempty" bson:"phone,omitempty"`
	ProfilePicture string              `json:"profilePicture" bson:"profilePicture"`
	Role           string              `json:"role" bson:"role"`
	IsAdmin        bool                `json:"isAdmin" bson:"isAdmin"`
	Restaurant     *primitive.ObjectID `json:"restaurant,omitempty" bson:"restaurant,omitempty"`
	CreatedAt      time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// MenuItem is an owned child of Restaurant, addressed by its own id so menu
// mutations can target a single entry inside the aggregate.
type MenuItem struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description,omitempty" bson:"description,omitempty"`
	Price       float64            `json:"price" bson:"price"`
	IsAvailable bool               `json:"isAvailable" bson:"isAvailable"`
}

// Review is an owned child of Restaurant. A customer has at most one review
// per restaurant; resubmission updates the existing entry in place.
type Review struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name"`
	Rating    float64            `json:"rating" bson:"rating"`
	Comment   string             `json:"comment" bson:"comment"`
	User      primitive.ObjectID `json:"user" bson:"user"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// Restaurant is the aggregate root for its menu and reviews. OrderCount feeds
// displayId numbering and must only be moved by an atomic increment-and-read.
// Rating and NumReviews are derived from Reviews and recomputed on every
// review change.
type Restaurant struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name       string             `json:"name" bson:"name"`
	Cuisine    string             `json:"cuisine" bson:"cuisine"`
	Logo       string             `json:"logo,omitempty" bson:"logo,omitempty"`
	Menu       []MenuItem         `json:"menu" bson:"menu"`
	OrderCount int64              `json:"orderCount" bson:"orderCount"`
	Reviews    []Review           `json:"reviews" bson:"reviews"`
	Rating     float64            `json:"rating" bson:"rating"`
	NumReviews int                `json:"numReviews" bson:"numReviews"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// OrderItem is a line item snapshotted at order time. Price is fixed at
// creation; later menu edits never touch existing orders.
type OrderItem struct {
	Name    string             `json:"name" bson:"name"`
	Price   float64            `json:"price" bson:"price"`
	Product primitive.ObjectID `json:"product" bson:"product"`
}

// ShippingAddress describes the destination. When IsPickup is true the
// address fields mean "self pickup at restaurant".
type ShippingAddress struct {
	Address    string `json:"address" bson:"address"`
	City       string `json:"city" bson:"city"`
	PostalCode string `json:"postalCode" bson:"postalCode"`
	Phone      string `json:"phone" bson:"phone"`
	IsPickup   bool   `json:"isPickup" bson:"isPickup"`
}

// Order is the central entity. DisplayID and User are immutable after
// creation; Status only moves forward along the transition graph; IsArchived
// is a one-way soft retirement.
type Order struct {
	ID              primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	DisplayID       string              `json:"displayId" bson:"displayId"`
	User            primitive.ObjectID  `json:"user" bson:"user"`
	UserName        string              `json:"userName,omitempty" bson:"userName,omitempty"`
	Restaurant      primitive.ObjectID  `json:"restaurant" bson:"restaurant"`
	OrderItems      []OrderItem         `json:"orderItems" bson:"orderItems"`
	ShippingAddress ShippingAddress     `json:"shippingAddress" bson:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod" bson:"paymentMethod"`
	ItemsPrice      float64             `json:"itemsPrice" bson:"itemsPrice"`
	ServiceFee      float64             `json:"serviceFee" bson:"serviceFee"`
	DeliveryFee     float64             `json:"deliveryFee" bson:"deliveryFee"`
	TotalPrice      float64             `json:"totalPrice" bson:"totalPrice"`
	Status          Status              `json:"status" bson:"status"`
	DeliveryAgent   *primitive.ObjectID `json:"deliveryAgent,omitempty" bson:"deliveryAgent,omitempty"`
	IsArchived      bool                `json:"isArchived" bson:"isArchived"`
	IsPaid          bool                `json:"isPaid" bson:"isPaid"`
	PaidAt          *time.Time          `json:"paidAt,omitempty" bson:"paidAt,omitempty"`
	IsDelivered     bool                `json:"isDelivered" bson:"isDelivered"`
	DeliveredAt     *time.Time          `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt" bson:"updatedAt"`
}
