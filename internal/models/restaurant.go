package models

import "time"

type Restaurant struct {
	ID                    string        `json:"id"`
	Name                  string        `json:"name"`
	SlugName              string        `json:"slug_name"`
	OwedCommissionBalance float64       `json:"owed_commission_balance"`
	CancellationsToday    int           `json:"cancellations_today"`
	CancellationsDay      time.Time     `json:"cancellations_day"` // calendar day the counter belongs to
	LoyaltyConfig         LoyaltyConfig `json:"loyalty_config"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

type MenuItem struct {
	ID           string  `json:"id"`
	RestaurantID string  `json:"restaurant_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	Category     string  `json:"category"`
	Available    bool    `json:"available"`
}
