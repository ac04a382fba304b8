package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"campus_delivery/goapi/store"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/charge"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type paymentRequest struct {
	OrderID     string `json:"order_id"`
	Currency    string `json:"currency"`
	SourceToken string `json:"source_token"`
}

type paymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// amountInCents converts an order total to the gateway's integer cents.
// Rounded, not truncated: totals sit a hair below the cent boundary in
// float64 (19.99*100 == 1998.999...).
func amountInCents(total float64) int64 {
	return int64(math.Round(total * 100))
}

// ProcessPaymentHandler charges the order total through the payment gateway
// and marks the order paid. Only the placing customer or a super-admin may
// pay for an order.
func (db *DB) ProcessPaymentHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid request payload", store.ErrValidation))
		return
	}
	if req.Currency == "" || req.SourceToken == "" {
		respondError(w, fmt.Errorf("%w: currency and source_token are required", store.ErrValidation))
		return
	}
	orderID, err := primitive.ObjectIDFromHex(req.OrderID)
	if err != nil {
		respondError(w, fmt.Errorf("%w: invalid order id", store.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	order, err := db.Orders.FindByID(ctx, orderID)
	if err != nil {
		respondError(w, err)
		return
	}
	if order.User != c.ID && !c.IsAdmin {
		respondError(w, fmt.Errorf("%w: not authorized to pay for this order", store.ErrForbidden))
		return
	}
	if order.IsPaid {
		respondError(w, fmt.Errorf("%w: order is already paid", store.ErrConflict))
		return
	}

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	chargeParams := &stripe.ChargeParams{
		Amount:   stripe.Int64(amountInCents(order.TotalPrice)),
		Currency: stripe.String(req.Currency),
		Source:   &stripe.SourceParams{Token: stripe.String(req.SourceToken)},
	}
	chargeParams.AddMetadata("order_id", req.OrderID)
	chargeParams.AddMetadata("display_id", order.DisplayID)

	if _, err := charge.New(chargeParams); err != nil {
		respondError(w, fmt.Errorf("failed to process payment: %v", err))
		return
	}

	if _, err := db.Orders.MarkPaid(ctx, orderID); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, paymentResponse{
		Status:  "success",
		Message: "Payment processed successfully",
	})
}
