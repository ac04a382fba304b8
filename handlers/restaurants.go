package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"campus_delivery/goapi/models"
	"campus_delivery/goapi/store"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// ListRestaurantsHandler returns every restaurant. Public.
func (db *DB) ListRestaurantsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	restaurants, err := db.Restaurants.FindAll(ctx)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, restaurants)
}

// PublicRestaurantHandler returns one restaurant with only its available
// menu items. Public.
func (db *DB) PublicRestaurantHandler(w http.ResponseWriter, r *http.Request) {
	id, err := restaurantID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	restaurant, err := db.Restaurants.FindByID(ctx, id)
	if err != nil {
		respondError(w, err)
		return
	}

	available := make([]models.MenuItem, 0, len(restaurant.Menu))
	for _, item := range restaurant.Menu {
		if item.IsAvailable {
			available = append(available, item)
		}
	}
	restaurant.Menu = available
	respondJSON(w, http.StatusOK, restaurant)
}

type createRestaurantRequest struct {
	RestaurantName string `json:"restaurantName"`
	Cuisine        string `json:"cuisine"`
	Logo           string `json:"logo"`
	AdminName      string `json:"adminName"`
	AdminEmail     string `json:"adminEmail"`
	AdminPassword  string `json:"adminPassword"`
}

// CreateRestaurantHandler creates a restaurant and its admin account in one
// call. Super-admin only.
func (db *DB) CreateRestaurantHandler(w http.ResponseWriter, r *http.Request) {
	var req createRestaurantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}
	if req.RestaurantName == "" || req.AdminName == "" || req.AdminEmail == "" || req.AdminPassword == "" {
		respondError(w, fmt.Errorf("%w: please provide all required fields", store.ErrValidation))
		return
	}
	cuisine := req.Cuisine
	if cuisine == "" {
		cuisine = "Not specified"
	}
	logo := req.Logo
	if logo == "" {
		logo = "/images/default-logo.png"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	restaurant, err := db.Restaurants.Create(ctx, &models.Restaurant{
		Name:    req.RestaurantName,
		Cuisine: cuisine,
		Logo:    logo,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, err)
		return
	}
	admin, err := db.Users.Create(ctx, &models.User{
		Name:       req.AdminName,
		Email:      req.AdminEmail,
		Password:   string(hash),
		Role:       models.RoleRestaurantAdmin,
		Restaurant: &restaurant.ID,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    "Restaurant and admin account created successfully!",
		"restaurant": restaurant,
		"user":       admin,
	})
}

// DeleteRestaurantHandler removes a restaurant and its admin accounts.
// Super-admin only.
func (db *DB) DeleteRestaurantHandler(w http.ResponseWriter, r *http.Request) {
	id, err := restaurantID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := db.Restaurants.Delete(ctx, id); err != nil {
		respondError(w, err)
		return
	}
	if _, err := db.Users.DeleteByRestaurant(ctx, id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Restaurant and associated admin user removed"})
}

// MyRestaurantHandler returns the caller's linked restaurant.
func (db *DB) MyRestaurantHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	if c.Restaurant == nil {
		respondError(w, fmt.Errorf("%w: restaurant not found for this admin", store.ErrNotFound))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	restaurant, err := db.Restaurants.FindByID(ctx, *c.Restaurant)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, restaurant)
}

type menuItemRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	IsAvailable *bool    `json:"isAvailable"`
}

// AddMenuItemHandler appends a menu item to the caller's restaurant.
func (db *DB) AddMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	if c.Restaurant == nil {
		respondError(w, fmt.Errorf("%w: restaurant not found for this admin", store.ErrNotFound))
		return
	}
	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}
	if req.Name == nil || *req.Name == "" || req.Price == nil {
		respondError(w, fmt.Errorf("%w: name and price are required", store.ErrValidation))
		return
	}
	if *req.Price < 0 {
		respondError(w, fmt.Errorf("%w: price must not be negative", store.ErrValidation))
		return
	}

	item := models.MenuItem{Name: *req.Name, Price: *req.Price, IsAvailable: true}
	if req.Description != nil {
		item.Description = *req.Description
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	created, err := db.Restaurants.AddMenuItem(ctx, *c.Restaurant, item)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// UpdateMenuItemHandler edits a menu item of the caller's restaurant.
func (db *DB) UpdateMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	if c.Restaurant == nil {
		respondError(w, fmt.Errorf("%w: restaurant not found for this admin", store.ErrNotFound))
		return
	}
	itemID, err := menuItemID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}
	if req.Price != nil && *req.Price < 0 {
		respondError(w, fmt.Errorf("%w: price must not be negative", store.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item, err := db.Restaurants.UpdateMenuItem(ctx, *c.Restaurant, itemID, store.MenuItemUpdate{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// DeleteMenuItemHandler removes a menu item from the caller's restaurant.
func (db *DB) DeleteMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	if c.Restaurant == nil {
		respondError(w, fmt.Errorf("%w: restaurant not found for this admin", store.ErrNotFound))
		return
	}
	itemID, err := menuItemID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := db.Restaurants.DeleteMenuItem(ctx, *c.Restaurant, itemID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Menu item removed"})
}

type reviewRequest struct {
	Rating  float64 `json:"rating"`
	Comment string  `json:"comment"`
}

// CreateReviewHandler adds or updates the caller's review of a restaurant.
// Only customers with a completed order there may review; a resubmission
// replaces the earlier review and the derived rating is recomputed.
func (db *DB) CreateReviewHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := restaurantID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respondError(w, fmt.Errorf("%w: rating must be between 1 and 5", store.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ordered, err := db.Orders.HasCompletedOrder(ctx, c.ID, id)
	if err != nil {
		respondError(w, err)
		return
	}
	if !ordered {
		respondError(w, fmt.Errorf("%w: you can only review restaurants you have ordered from", store.ErrValidation))
		return
	}

	updated, err := db.Restaurants.UpsertReview(ctx, id, models.Review{
		Name:    c.Name,
		Rating:  req.Rating,
		Comment: req.Comment,
		User:    c.ID,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	message := "Review added successfully"
	if updated {
		message = "Review updated successfully"
	}
	respondJSON(w, http.StatusCreated, map[string]string{"message": message})
}

func restaurantID(r *http.Request) (primitive.ObjectID, error) {
	vars := mux.Vars(r)
	id, err := primitive.ObjectIDFromHex(vars["id"])
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid restaurant id", store.ErrValidation)
	}
	return id, nil
}

func menuItemID(r *http.Request) (primitive.ObjectID, error) {
	vars := mux.Vars(r)
	id, err := primitive.ObjectIDFromHex(vars["itemId"])
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid menu item id", store.ErrValidation)
	}
	return id, nil
}
