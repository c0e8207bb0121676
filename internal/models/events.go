package models

import "time"

// LoyaltyEvent is a fire-and-forget analytics record. Recovery-visit events
// double as the gating record for recovery frequency.
type LoyaltyEvent struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	VisitorID    string    `json:"visitor_id"`
	Type         string    `json:"event_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoyaltyStats is the read-only dashboard aggregate.
type LoyaltyStats struct {
	LoyalClients   int     `json:"loyal_clients"`
	OffersApplied  int     `json:"offers_applied"`
	LoyaltyRevenue float64 `json:"loyalty_revenue"`
}
