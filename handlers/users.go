package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"campus_delivery/goapi/middleware"
	"campus_delivery/goapi/models"
	"campus_delivery/goapi/store"

	"golang.org/x/crypto/bcrypt"
)

type authResponse struct {
	ID             string  `json:"_id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	IsAdmin        bool    `json:"isAdmin"`
	ProfilePicture string  `json:"profilePicture"`
	Restaurant     *string `json:"restaurant,omitempty"`
	Token          string  `json:"token"`
}

func newAuthResponse(user *models.User, token string) authResponse {
	resp := authResponse{
		ID:             user.ID.Hex(),
		Name:           user.Name,
		Email:          user.Email,
		Role:           user.Role,
		IsAdmin:        user.IsAdmin,
		ProfilePicture: user.ProfilePicture,
		Token:          token,
	}
	if user.Restaurant != nil {
		hex := user.Restaurant.Hex()
		resp.Restaurant = &hex
	}
	return resp
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterHandler creates a new customer account and logs it in.
func (db *DB) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondError(w, fmt.Errorf("%w: name, email, and password are required", store.ErrValidation))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := db.Users.Create(ctx, &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hash),
		Role:     models.RoleCustomer,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	token, err := middleware.GenerateToken(user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, newAuthResponse(user, token))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler authenticates by email and password and returns a token.
func (db *DB) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, fmt.Errorf("%w: email and password are required", store.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := db.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		// Same message for unknown email and bad password.
		respondError(w, fmt.Errorf("%w: invalid email or password", store.ErrUnauthorized))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		respondError(w, fmt.Errorf("%w: invalid email or password", store.ErrUnauthorized))
		return
	}

	token, err := middleware.GenerateToken(user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newAuthResponse(user, token))
}

// ProfileHandler returns the caller's own account details.
func (db *DB) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := db.Users.FindByID(ctx, c.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type profileUpdateRequest struct {
	Name           *string `json:"name"`
	Email          *string `json:"email"`
	ProfilePicture *string `json:"profilePicture"`
}

// UpdateProfileHandler updates the caller's name, email, or picture path.
func (db *DB) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := db.Users.UpdateProfile(ctx, c.ID, store.ProfileUpdate{
		Name:           req.Name,
		Email:          req.Email,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	token, err := middleware.GenerateToken(user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newAuthResponse(user, token))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePasswordHandler rotates the caller's password after verifying the
// current one.
func (db *DB) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}
	if req.NewPassword == "" {
		respondError(w, fmt.Errorf("%w: new password is required", store.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := db.Users.FindByID(ctx, c.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		respondError(w, fmt.Errorf("%w: invalid current password", store.ErrUnauthorized))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := db.Users.UpdatePassword(ctx, c.ID, string(hash)); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}
