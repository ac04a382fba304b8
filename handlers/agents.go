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

// ListAgentsHandler returns every delivery agent. Public so customers can
// pick an agent at checkout.
func (db *DB) ListAgentsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	agents, err := db.Users.FindAgents(ctx)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agents)
}

type createAgentRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Phone          string `json:"phone"`
	ProfilePicture string `json:"profilePicture"`
}

// CreateAgentHandler creates a delivery-agent account. Super-admin only.
func (db *DB) CreateAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request body", store.ErrValidation))
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondError(w, fmt.Errorf("%w: full name, email, and password are required", store.ErrValidation))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	agent, err := db.Users.Create(ctx, &models.User{
		Name:           req.Name,
		Email:          req.Email,
		Password:       string(hash),
		Phone:          req.Phone,
		Role:           models.RoleAgent,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, agent)
}

// DeleteAgentHandler removes an agent account. Super-admin only; refuses to
// delete non-agent users through this route.
func (db *DB) DeleteAgentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := primitive.ObjectIDFromHex(vars["id"])
	if err != nil {
		respondError(w, fmt.Errorf("%w: invalid agent id", store.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := db.Users.FindByID(ctx, id)
	if err != nil {
		respondError(w, err)
		return
	}
	if user.Role != models.RoleAgent {
		respondError(w, fmt.Errorf("%w: agent %s", store.ErrNotFound, id.Hex()))
		return
	}
	if err := db.Users.Delete(ctx, id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Agent removed"})
}
