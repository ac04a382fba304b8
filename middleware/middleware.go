package middleware

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"campus_delivery/goapi/models"
	"campus_delivery/goapi/store"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Caller is the authenticated identity handed to every protected handler.
// It is built once per request by Protect and carried in the request
// context; handlers never reach for ambient session state.
type Caller struct {
	ID         primitive.ObjectID
	Name       string
	Email      string
	Role       string
	IsAdmin    bool
	Restaurant *primitive.ObjectID
}

type callerContextKey struct{}

// WithCaller returns ctx carrying the caller.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

// CallerFrom extracts the caller set by Protect.
func CallerFrom(ctx context.Context) (*Caller, bool) {
	c, ok := ctx.Value(callerContextKey{}).(*Caller)
	return c, ok
}

func secretKey() []byte {
	return []byte(os.Getenv("session_secret"))
}

// GenerateToken signs an HS256 access token for the user id.
func GenerateToken(userID primitive.ObjectID) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userID.Hex(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	return token.SignedString(secretKey())
}

// Auth builds per-request caller identity from the bearer token.
type Auth struct {
	Users store.UserStoreInterface
}

// Protect validates the bearer token, loads the user, and stores the Caller
// in the request context. Requests without a valid token get 401.
func (a *Auth) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "Not authorized, no token", http.StatusUnauthorized)
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secretKey(), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Not authorized, token failed", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "Invalid token claims", http.StatusUnauthorized)
			return
		}
		idHex, ok := claims["id"].(string)
		if !ok {
			http.Error(w, "Missing or invalid 'id' field in claims", http.StatusUnauthorized)
			return
		}
		userID, err := primitive.ObjectIDFromHex(idHex)
		if err != nil {
			http.Error(w, "Invalid user id in token", http.StatusUnauthorized)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		user, err := a.Users.FindByID(ctx, userID)
		if err != nil {
			http.Error(w, "Not authorized, user not found", http.StatusUnauthorized)
			return
		}

		caller := &Caller{
			ID:         user.ID,
			Name:       user.Name,
			Email:      user.Email,
			Role:       user.Role,
			IsAdmin:    user.IsAdmin,
			Restaurant: user.Restaurant,
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// RequireRestaurantAdmin gates routes to restaurant admins.
func RequireRestaurantAdmin(next http.Handler) http.Handler {
	return requireRole(next, func(c *Caller) bool { return c.Role == models.RoleRestaurantAdmin },
		"Not authorized as a Restaurant Admin")
}

// RequireAgent gates routes to delivery agents.
func RequireAgent(next http.Handler) http.Handler {
	return requireRole(next, func(c *Caller) bool { return c.Role == models.RoleAgent },
		"Not authorized as an Agent")
}

// RequireSuperAdmin gates routes to platform super-admins. IsAdmin is a flag
// orthogonal to role.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return requireRole(next, func(c *Caller) bool { return c.IsAdmin },
		"Not authorized as a Super Admin")
}

func requireRole(next http.Handler, allowed func(*Caller) bool, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		if !ok {
			http.Error(w, "Not authorized", http.StatusUnauthorized)
			return
		}
		if !allowed(caller) {
			http.Error(w, message, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
