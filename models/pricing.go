package models

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// RoundCents rounds v to two decimal places. Every computed money value goes
// through this so the itemsPrice + serviceFee + deliveryFee == totalPrice
// equality holds exactly for cent-denominated inputs.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ItemsTotal sums the snapshotted line-item prices.
func ItemsTotal(items []OrderItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Price
	}
	return RoundCents(sum)
}

// PriceOrder fills in ItemsPrice, ServiceFee, DeliveryFee and TotalPrice from
// the line items. feeRate is a fraction (0.05 for 5%). deliveryFee is ignored
// for pickup orders.
func PriceOrder(o *Order, feeRate, deliveryFee float64) {
	o.ItemsPrice = ItemsTotal(o.OrderItems)
	o.ServiceFee = RoundCents(o.ItemsPrice * feeRate)
	if o.ShippingAddress.IsPickup {
		o.DeliveryFee = 0
	} else {
		o.DeliveryFee = RoundCents(deliveryFee)
	}
	o.TotalPrice = RoundCents(o.ItemsPrice + o.ServiceFee + o.DeliveryFee)
}

var displayIDStrip = regexp.MustCompile(`\s+`)

// MakeDisplayID derives the human-readable order label from the restaurant
// name and its post-increment order counter, e.g. ("Pizza Place", 7) ->
// "PIZZA-PLACE-00007". The name code is capped at 15 characters.
func MakeDisplayID(restaurantName string, orderNumber int64) string {
	code := displayIDStrip.ReplaceAllString(strings.ToUpper(restaurantName), "-")
	if len(code) > 15 {
		code = code[:15]
	}
	return fmt.Sprintf("%s-%05d", code, orderNumber)
}
