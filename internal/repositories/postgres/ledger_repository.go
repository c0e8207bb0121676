package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func scanLedger(row pgx.Row) (*models.VisitorLedger, error) {
	ledger := &models.VisitorLedger{}
	err := row.Scan(
		&ledger.RestaurantID,
		&ledger.VisitorID,
		&ledger.VisitCount,
		&ledger.OrdersInCurrentSession,
		&ledger.TotalPoints,
		&ledger.LastVisitAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func (r *LedgerRepository) Get(ctx context.Context, restaurantID, visitorID string) (*models.VisitorLedger, error) {
	query := `
        SELECT restaurant_id, visitor_id, visit_count, orders_in_current_session,
               total_points, last_visit_at
        FROM visitor_ledgers
        WHERE restaurant_id = $1 AND visitor_id = $2
    `
	return scanLedger(r.pool.QueryRow(ctx, query, restaurantID, visitorID))
}

func (r *LedgerRepository) CompletedSpend(ctx context.Context, restaurantID, visitorID string) (float64, error) {
	query := `
        SELECT COALESCE(SUM(total_price), 0)
        FROM orders
        WHERE restaurant_id = $1 AND loyalty_id = $2 AND status = 'completed'
    `
	var spend float64
	err := r.pool.QueryRow(ctx, query, restaurantID, visitorID).Scan(&spend)
	return spend, err
}

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Insert(ctx context.Context, event *models.LoyaltyEvent) error {
	query := `
        INSERT INTO loyalty_events (id, restaurant_id, visitor_id, event_type, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.RestaurantID,
		event.VisitorID,
		event.Type,
		event.CreatedAt,
	)
	return err
}

func (r *EventRepository) LastOfType(ctx context.Context, restaurantID, visitorID, eventType string) (time.Time, bool, error) {
	query := `
        SELECT created_at
        FROM loyalty_events
        WHERE restaurant_id = $1 AND visitor_id = $2 AND event_type = $3
        ORDER BY created_at DESC
        LIMIT 1
    `
	var at time.Time
	err := r.pool.QueryRow(ctx, query, restaurantID, visitorID, eventType).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

type StatsRepository struct {
	pool *pgxpool.Pool
}

func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// LoyaltyStats aggregates the dashboard numbers: visitors whose completed
// spend reached the loyal threshold, redeemed or converted gifts, and revenue
// from orders placed by tracked visitors.
func (r *StatsRepository) LoyaltyStats(ctx context.Context, restaurantID string, loyalThreshold float64) (*models.LoyaltyStats, error) {
	stats := &models.LoyaltyStats{}

	loyalQuery := `
        SELECT COUNT(*)
        FROM (
            SELECT loyalty_id
            FROM orders
            WHERE restaurant_id = $1 AND loyalty_id <> '' AND status = 'completed'
            GROUP BY loyalty_id
            HAVING SUM(total_price) >= $2
        ) loyal
    `
	if err := r.pool.QueryRow(ctx, loyalQuery, restaurantID, loyalThreshold).Scan(&stats.LoyalClients); err != nil {
		return nil, err
	}

	offersQuery := `
        SELECT COUNT(*)
        FROM gifts
        WHERE restaurant_id = $1 AND status <> 'unused'
    `
	if err := r.pool.QueryRow(ctx, offersQuery, restaurantID).Scan(&stats.OffersApplied); err != nil {
		return nil, err
	}

	revenueQuery := `
        SELECT COALESCE(SUM(total_price), 0)
        FROM orders
        WHERE restaurant_id = $1 AND loyalty_id <> '' AND status = 'completed'
    `
	if err := r.pool.QueryRow(ctx, revenueQuery, restaurantID).Scan(&stats.LoyaltyRevenue); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *StatsRepository) TransactionsCreatedBetween(ctx context.Context, from, to time.Time) ([]*models.PointsTransaction, error) {
	query := `
        SELECT id, restaurant_id, visitor_id, COALESCE(order_id, ''),
               COALESCE(gift_id, ''), type, amount, created_at
        FROM points_transactions
        WHERE created_at >= $1 AND created_at < $2
        ORDER BY created_at
    `
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*models.PointsTransaction
	for rows.Next() {
		txn := &models.PointsTransaction{}
		err := rows.Scan(
			&txn.ID,
			&txn.RestaurantID,
			&txn.VisitorID,
			&txn.OrderID,
			&txn.GiftID,
			&txn.Type,
			&txn.Amount,
			&txn.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}
