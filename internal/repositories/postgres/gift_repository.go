package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

type GiftRepository struct {
	pool *pgxpool.Pool
}

func NewGiftRepository(pool *pgxpool.Pool) *GiftRepository {
	return &GiftRepository{pool: pool}
}

const giftColumns = `
    id, restaurant_id, visitor_id, type, percentage_value, euro_value,
    gift_name, status, COALESCE(granted_by_order_id, ''), COALESCE(order_id, ''),
    created_at, updated_at
`

func scanGift(row pgx.Row) (*models.Gift, error) {
	gift := &models.Gift{}
	err := row.Scan(
		&gift.ID,
		&gift.RestaurantID,
		&gift.VisitorID,
		&gift.Type,
		&gift.PercentageValue,
		&gift.EuroValue,
		&gift.GiftName,
		&gift.Status,
		&gift.GrantedByOrderID,
		&gift.OrderID,
		&gift.CreatedAt,
		&gift.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return gift, nil
}

func (r *GiftRepository) GetByID(ctx context.Context, id string) (*models.Gift, error) {
	query := `SELECT ` + giftColumns + ` FROM gifts WHERE id = $1`
	return scanGift(r.pool.QueryRow(ctx, query, id))
}

// ActiveForVisitor returns the oldest unused gift for the visitor, the one the
// policy engine surfaces first.
func (r *GiftRepository) ActiveForVisitor(ctx context.Context, restaurantID, visitorID string) (*models.Gift, error) {
	query := `
        SELECT ` + giftColumns + `
        FROM gifts
        WHERE restaurant_id = $1 AND visitor_id = $2 AND status = 'unused'
        ORDER BY created_at
        LIMIT 1
    `
	return scanGift(r.pool.QueryRow(ctx, query, restaurantID, visitorID))
}
