package models

import "time"

// Gift is a redeemable reward instance. GrantedByOrderID is the order whose
// completion triggered the grant; OrderID is the order that redeemed it at
// checkout. Status moves one way except for the cancellation compensations,
// which reopen a redeemed gift to unused.
type Gift struct {
	ID               string    `json:"id"`
	RestaurantID     string    `json:"restaurant_id"`
	VisitorID        string    `json:"visitor_id"`
	Type             string    `json:"type"` // PERCENTAGE | ITEM | FIXED_VALUE
	PercentageValue  float64   `json:"percentage_value,omitempty"`
	EuroValue        float64   `json:"euro_value,omitempty"`
	GiftName         string    `json:"gift_name,omitempty"`
	Status           string    `json:"status"`
	GrantedByOrderID string    `json:"granted_by_order_id,omitempty"`
	OrderID          string    `json:"order_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
