package models

import "time"

// VisitorLedger is the per-(restaurant, visitor) loyalty record. One row per
// pair, created on the first qualifying event and mutated by the status
// coordinator and the gift lifecycle.
type VisitorLedger struct {
	RestaurantID           string    `json:"restaurant_id"`
	VisitorID              string    `json:"visitor_id"`
	VisitCount             int       `json:"visit_count"`
	OrdersInCurrentSession int       `json:"orders_in_current_session"`
	TotalPoints            int       `json:"total_points"`
	LastVisitAt            time.Time `json:"last_visit_at"`
}

// PointsTransaction is an append-only ledger entry. Amount is stored positive;
// the type determines the sign of its effect. The sum of a visitor's entries
// (net of compensating deletes) equals the ledger's TotalPoints.
type PointsTransaction struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	VisitorID    string    `json:"visitor_id"`
	OrderID      string    `json:"order_id,omitempty"`
	GiftID       string    `json:"gift_id,omitempty"`
	Type         string    `json:"type"` // EARN | CONVERT_GIFT
	Amount       int       `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
}
