package memory

import (
	"context"
	"sort"
	"time"

	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

// memTx operates directly on the store maps. The store lock is already held
// by Transact for the lifetime of the transaction.
type memTx struct {
	s *Store
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	order, ok := t.s.orders[orderID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, orderID, status string, at time.Time) error {
	order, ok := t.s.orders[orderID]
	if !ok {
		return repositories.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = at
	return nil
}

func (t *memTx) SetCommissionRecorded(ctx context.Context, orderID string) error {
	order, ok := t.s.orders[orderID]
	if !ok {
		return repositories.ErrNotFound
	}
	order.CommissionRecorded = true
	return nil
}

func (t *memTx) GetRestaurantForUpdate(ctx context.Context, restaurantID string) (*models.Restaurant, error) {
	restaurant, ok := t.s.restaurants[restaurantID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *restaurant
	return &cp, nil
}

func (t *memTx) AddOwedCommission(ctx context.Context, restaurantID string, delta float64) error {
	restaurant, ok := t.s.restaurants[restaurantID]
	if !ok {
		return repositories.ErrNotFound
	}
	restaurant.OwedCommissionBalance += delta
	return nil
}

func (t *memTx) SetCancellationCounter(ctx context.Context, restaurantID string, day time.Time, count int) error {
	restaurant, ok := t.s.restaurants[restaurantID]
	if !ok {
		return repositories.ErrNotFound
	}
	restaurant.CancellationsDay = day
	restaurant.CancellationsToday = count
	return nil
}

func (t *memTx) GetLedgerForUpdate(ctx context.Context, restaurantID, visitorID string) (*models.VisitorLedger, error) {
	ledger, ok := t.s.ledgers[ledgerKey(restaurantID, visitorID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *ledger
	return &cp, nil
}

func (t *memTx) CreateLedger(ctx context.Context, ledger *models.VisitorLedger) error {
	cp := *ledger
	t.s.ledgers[ledgerKey(ledger.RestaurantID, ledger.VisitorID)] = &cp
	return nil
}

func (t *memTx) UpdateLedger(ctx context.Context, ledger *models.VisitorLedger) error {
	cp := *ledger
	t.s.ledgers[ledgerKey(ledger.RestaurantID, ledger.VisitorID)] = &cp
	return nil
}

func (t *memTx) CompletedSpend(ctx context.Context, restaurantID, visitorID string) (float64, error) {
	return t.s.completedSpendLocked(restaurantID, visitorID), nil
}

func (t *memTx) LatestCompletedOrder(ctx context.Context, restaurantID, visitorID, excludeOrderID string) (*models.Order, error) {
	var latest *models.Order
	for _, o := range t.s.orders {
		if o.RestaurantID != restaurantID || o.LoyaltyID != visitorID || o.Status != models.OrderStatusCompleted || o.ID == excludeOrderID {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (t *memTx) EarnTransactionExists(ctx context.Context, orderID string) (bool, error) {
	for _, txn := range t.s.txns {
		if txn.OrderID == orderID && txn.Type == models.TransactionTypeEarn {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertTransaction(ctx context.Context, txn *models.PointsTransaction) error {
	cp := *txn
	t.s.txns[txn.ID] = &cp
	return nil
}

func (t *memTx) DeleteTransaction(ctx context.Context, id string) error {
	delete(t.s.txns, id)
	return nil
}

func (t *memTx) TransactionsByOrder(ctx context.Context, orderID string) ([]*models.PointsTransaction, error) {
	var txns []*models.PointsTransaction
	for _, txn := range t.s.txns {
		if txn.OrderID == orderID {
			cp := *txn
			txns = append(txns, &cp)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.Before(txns[j].CreatedAt) })
	return txns, nil
}

func (t *memTx) ConversionsBetween(ctx context.Context, restaurantID, visitorID string, from, to time.Time) ([]*models.PointsTransaction, error) {
	var txns []*models.PointsTransaction
	for _, txn := range t.s.txns {
		if txn.RestaurantID != restaurantID || txn.VisitorID != visitorID || txn.Type != models.TransactionTypeConvertGift {
			continue
		}
		if txn.CreatedAt.Before(from) || txn.CreatedAt.After(to) {
			continue
		}
		cp := *txn
		txns = append(txns, &cp)
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.Before(txns[j].CreatedAt) })
	return txns, nil
}

func (t *memTx) GetGiftForUpdate(ctx context.Context, giftID string) (*models.Gift, error) {
	gift, ok := t.s.gifts[giftID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *gift
	return &cp, nil
}

func (t *memTx) GiftRedeemedByOrder(ctx context.Context, orderID string) (*models.Gift, error) {
	for _, gift := range t.s.gifts {
		if gift.OrderID == orderID {
			cp := *gift
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (t *memTx) GiftsGrantedByOrder(ctx context.Context, orderID string) ([]*models.Gift, error) {
	var gifts []*models.Gift
	for _, gift := range t.s.gifts {
		if gift.GrantedByOrderID == orderID {
			cp := *gift
			gifts = append(gifts, &cp)
		}
	}
	sort.Slice(gifts, func(i, j int) bool { return gifts[i].CreatedAt.Before(gifts[j].CreatedAt) })
	return gifts, nil
}

func (t *memTx) InsertGift(ctx context.Context, gift *models.Gift) error {
	cp := *gift
	t.s.gifts[gift.ID] = &cp
	return nil
}

func (t *memTx) UpdateGift(ctx context.Context, gift *models.Gift) error {
	existing, ok := t.s.gifts[gift.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	existing.Status = gift.Status
	existing.OrderID = gift.OrderID
	existing.UpdatedAt = gift.UpdatedAt
	return nil
}

func (t *memTx) DeleteGift(ctx context.Context, giftID string) error {
	delete(t.s.gifts, giftID)
	return nil
}

func (t *memTx) MenuItemPrice(ctx context.Context, restaurantID, name string) (float64, error) {
	for _, menuItem := range t.s.menuItems {
		if menuItem.RestaurantID == restaurantID && menuItem.Name == name && menuItem.Available {
			return menuItem.Price, nil
		}
	}
	return 0, repositories.ErrNotFound
}
