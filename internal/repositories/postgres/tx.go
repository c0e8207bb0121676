package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

// Tx implements repositories.Tx on a pgx transaction. ForUpdate reads lock the
// row until the surrounding transaction commits or rolls back.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return scanOrder(t.tx.QueryRow(ctx, query, orderID))
}

func (t *Tx) UpdateOrderStatus(ctx context.Context, orderID, status string, at time.Time) error {
	query := `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, orderID, status, at)
	return err
}

func (t *Tx) SetCommissionRecorded(ctx context.Context, orderID string) error {
	query := `UPDATE orders SET commission_recorded = TRUE WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, orderID)
	return err
}

func (t *Tx) GetRestaurantForUpdate(ctx context.Context, restaurantID string) (*models.Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE id = $1 FOR UPDATE`
	return scanRestaurant(t.tx.QueryRow(ctx, query, restaurantID))
}

func (t *Tx) AddOwedCommission(ctx context.Context, restaurantID string, delta float64) error {
	query := `UPDATE restaurants SET owed_commission_balance = owed_commission_balance + $2, updated_at = now() WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, restaurantID, delta)
	return err
}

func (t *Tx) SetCancellationCounter(ctx context.Context, restaurantID string, day time.Time, count int) error {
	query := `UPDATE restaurants SET cancellations_day = $2, cancellations_today = $3, updated_at = now() WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, restaurantID, day, count)
	return err
}

func (t *Tx) GetLedgerForUpdate(ctx context.Context, restaurantID, visitorID string) (*models.VisitorLedger, error) {
	query := `
        SELECT restaurant_id, visitor_id, visit_count, orders_in_current_session,
               total_points, last_visit_at
        FROM visitor_ledgers
        WHERE restaurant_id = $1 AND visitor_id = $2
        FOR UPDATE
    `
	return scanLedger(t.tx.QueryRow(ctx, query, restaurantID, visitorID))
}

func (t *Tx) CreateLedger(ctx context.Context, ledger *models.VisitorLedger) error {
	query := `
        INSERT INTO visitor_ledgers (
            restaurant_id, visitor_id, visit_count, orders_in_current_session,
            total_points, last_visit_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := t.tx.Exec(ctx, query,
		ledger.RestaurantID,
		ledger.VisitorID,
		ledger.VisitCount,
		ledger.OrdersInCurrentSession,
		ledger.TotalPoints,
		ledger.LastVisitAt,
	)
	return err
}

func (t *Tx) UpdateLedger(ctx context.Context, ledger *models.VisitorLedger) error {
	query := `
        UPDATE visitor_ledgers
        SET visit_count = $3, orders_in_current_session = $4,
            total_points = $5, last_visit_at = $6
        WHERE restaurant_id = $1 AND visitor_id = $2
    `
	_, err := t.tx.Exec(ctx, query,
		ledger.RestaurantID,
		ledger.VisitorID,
		ledger.VisitCount,
		ledger.OrdersInCurrentSession,
		ledger.TotalPoints,
		ledger.LastVisitAt,
	)
	return err
}

func (t *Tx) CompletedSpend(ctx context.Context, restaurantID, visitorID string) (float64, error) {
	query := `
        SELECT COALESCE(SUM(total_price), 0)
        FROM orders
        WHERE restaurant_id = $1 AND loyalty_id = $2 AND status = 'completed'
    `
	var spend float64
	err := t.tx.QueryRow(ctx, query, restaurantID, visitorID).Scan(&spend)
	return spend, err
}

func (t *Tx) LatestCompletedOrder(ctx context.Context, restaurantID, visitorID, excludeOrderID string) (*models.Order, error) {
	query := `
        SELECT ` + orderColumns + `
        FROM orders
        WHERE restaurant_id = $1 AND loyalty_id = $2 AND status = 'completed' AND id <> $3
        ORDER BY created_at DESC
        LIMIT 1
    `
	return scanOrder(t.tx.QueryRow(ctx, query, restaurantID, visitorID, excludeOrderID))
}

func (t *Tx) EarnTransactionExists(ctx context.Context, orderID string) (bool, error) {
	// Lock any existing row so a concurrent completion cannot race past the
	// check before this transaction commits.
	query := `SELECT id FROM points_transactions WHERE order_id = $1 AND type = 'EARN' LIMIT 1 FOR UPDATE`
	var id string
	err := t.tx.QueryRow(ctx, query, orderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tx) InsertTransaction(ctx context.Context, txn *models.PointsTransaction) error {
	query := `
        INSERT INTO points_transactions (
            id, restaurant_id, visitor_id, order_id, gift_id, type, amount, created_at
        ) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
    `
	_, err := t.tx.Exec(ctx, query,
		txn.ID,
		txn.RestaurantID,
		txn.VisitorID,
		txn.OrderID,
		txn.GiftID,
		txn.Type,
		txn.Amount,
		txn.CreatedAt,
	)
	return err
}

func (t *Tx) DeleteTransaction(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM points_transactions WHERE id = $1`, id)
	return err
}

const transactionColumns = `
    id, restaurant_id, visitor_id, COALESCE(order_id, ''),
    COALESCE(gift_id, ''), type, amount, created_at
`

func (t *Tx) scanTransactions(rows pgx.Rows) ([]*models.PointsTransaction, error) {
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

func (t *Tx) TransactionsByOrder(ctx context.Context, orderID string) ([]*models.PointsTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM points_transactions WHERE order_id = $1 FOR UPDATE`
	rows, err := t.tx.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	return t.scanTransactions(rows)
}

func (t *Tx) ConversionsBetween(ctx context.Context, restaurantID, visitorID string, from, to time.Time) ([]*models.PointsTransaction, error) {
	query := `
        SELECT ` + transactionColumns + `
        FROM points_transactions
        WHERE restaurant_id = $1 AND visitor_id = $2 AND type = 'CONVERT_GIFT'
          AND created_at >= $3 AND created_at <= $4
        FOR UPDATE
    `
	rows, err := t.tx.Query(ctx, query, restaurantID, visitorID, from, to)
	if err != nil {
		return nil, err
	}
	return t.scanTransactions(rows)
}

func (t *Tx) GetGiftForUpdate(ctx context.Context, giftID string) (*models.Gift, error) {
	query := `SELECT ` + giftColumns + ` FROM gifts WHERE id = $1 FOR UPDATE`
	return scanGift(t.tx.QueryRow(ctx, query, giftID))
}

func (t *Tx) GiftRedeemedByOrder(ctx context.Context, orderID string) (*models.Gift, error) {
	query := `SELECT ` + giftColumns + ` FROM gifts WHERE order_id = $1 FOR UPDATE`
	return scanGift(t.tx.QueryRow(ctx, query, orderID))
}

func (t *Tx) GiftsGrantedByOrder(ctx context.Context, orderID string) ([]*models.Gift, error) {
	query := `SELECT ` + giftColumns + ` FROM gifts WHERE granted_by_order_id = $1 FOR UPDATE`
	rows, err := t.tx.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gifts []*models.Gift
	for rows.Next() {
		gift := &models.Gift{}
		err := rows.Scan(
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
		if err != nil {
			return nil, err
		}
		gifts = append(gifts, gift)
	}
	return gifts, rows.Err()
}

func (t *Tx) InsertGift(ctx context.Context, gift *models.Gift) error {
	query := `
        INSERT INTO gifts (
            id, restaurant_id, visitor_id, type, percentage_value, euro_value,
            gift_name, status, granted_by_order_id, order_id, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)
    `
	_, err := t.tx.Exec(ctx, query,
		gift.ID,
		gift.RestaurantID,
		gift.VisitorID,
		gift.Type,
		gift.PercentageValue,
		gift.EuroValue,
		gift.GiftName,
		gift.Status,
		gift.GrantedByOrderID,
		gift.OrderID,
		gift.CreatedAt,
		gift.UpdatedAt,
	)
	return err
}

func (t *Tx) UpdateGift(ctx context.Context, gift *models.Gift) error {
	query := `
        UPDATE gifts
        SET status = $2, order_id = NULLIF($3, ''), updated_at = $4
        WHERE id = $1
    `
	_, err := t.tx.Exec(ctx, query, gift.ID, gift.Status, gift.OrderID, gift.UpdatedAt)
	return err
}

func (t *Tx) DeleteGift(ctx context.Context, giftID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM gifts WHERE id = $1`, giftID)
	return err
}

func (t *Tx) MenuItemPrice(ctx context.Context, restaurantID, name string) (float64, error) {
	query := `
        SELECT price FROM menu_items
        WHERE restaurant_id = $1 AND name = $2 AND available
        LIMIT 1
    `
	var price float64
	err := t.tx.QueryRow(ctx, query, restaurantID, name).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repositories.ErrNotFound
	}
	return price, err
}
