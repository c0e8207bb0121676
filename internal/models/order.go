package models

import "time"

type Order struct {
	ID                 string    `json:"id"`
	RestaurantID       string    `json:"restaurant_id"`
	LoyaltyID          string    `json:"loyalty_id"` // visitor who placed the order, empty for anonymous
	Status             string    `json:"status"`
	TotalPrice         float64   `json:"total_price"`
	CommissionAmount   float64   `json:"commission_amount"`
	CommissionRecorded bool      `json:"commission_recorded"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasVisitor reports whether the order is attached to a loyalty visitor.
func (o *Order) HasVisitor() bool {
	return o.LoyaltyID != ""
}
