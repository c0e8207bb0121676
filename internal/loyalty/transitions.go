package loyalty

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/lucsky/cuid"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

// Caller is the authenticated identity driving a transition.
type Caller struct {
	Role         string
	RestaurantID string
}

// StatusCoordinator drives orders through the status state machine and
// applies or reverses the commission and loyalty side effects of each
// transition.
type StatusCoordinator struct {
	store repositories.Store
	cfg   *models.Config
	gifts *GiftService
	sink  EventSink
	now   func() time.Time
}

func NewStatusCoordinator(store repositories.Store, cfg *models.Config, gifts *GiftService, sink EventSink) *StatusCoordinator {
	return &StatusCoordinator{
		store: store,
		cfg:   cfg,
		gifts: gifts,
		sink:  sink,
		now:   time.Now,
	}
}

// UpdateStatus validates, authorizes and executes a status transition.
// The status change, commission bookkeeping and cancellation compensations
// commit in one transaction. Completion loyalty processing runs in its own
// transaction afterwards: its failure is logged and never fails the status
// update itself.
func (c *StatusCoordinator) UpdateStatus(ctx context.Context, orderID, newStatus string, caller Caller) (*models.Order, error) {
	if orderID == "" || newStatus == "" {
		return nil, fmt.Errorf("%w: order id and status are required", ErrValidation)
	}
	if !models.ValidOrderStatuses[newStatus] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, newStatus)
	}

	var updated *models.Order
	var prevStatus string
	err := c.store.Transact(ctx, func(tx repositories.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		if err != nil {
			return err
		}

		if err := authorize(caller, order, newStatus); err != nil {
			return err
		}

		prevStatus = order.Status
		now := c.now()
		if err := tx.UpdateOrderStatus(ctx, order.ID, newStatus, now); err != nil {
			return err
		}
		order.Status = newStatus
		order.UpdatedAt = now

		switch newStatus {
		case models.OrderStatusPreparing:
			if err := c.recordCommission(ctx, tx, order); err != nil {
				return err
			}
		case models.OrderStatusCancelled:
			if err := c.compensateCancellation(ctx, tx, order, prevStatus); err != nil {
				return err
			}
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if newStatus == models.OrderStatusCompleted && prevStatus != models.OrderStatusCompleted && updated.HasVisitor() {
		if err := c.processCompletion(ctx, updated); err != nil {
			// Loyalty bookkeeping must never block order fulfillment.
			log.Printf("Loyalty processing failed for order %s: %v", updated.ID, err)
		}
	}

	return updated, nil
}

func authorize(caller Caller, order *models.Order, newStatus string) error {
	switch caller.Role {
	case models.RoleOwner, models.RoleAdmin:
		return nil
	case models.RoleStaff:
		if caller.RestaurantID != order.RestaurantID {
			return fmt.Errorf("%w: order belongs to another restaurant", ErrForbidden)
		}
		if newStatus == models.OrderStatusCancelled && order.Status == models.OrderStatusCompleted {
			return fmt.Errorf("%w: staff cannot cancel a completed order", ErrForbidden)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, caller.Role)
	}
}

// recordCommission adds the order's commission to the restaurant's owed
// balance, at most once per order no matter how many times the order
// re-enters preparing.
func (c *StatusCoordinator) recordCommission(ctx context.Context, tx repositories.Tx, order *models.Order) error {
	if order.CommissionRecorded || order.CommissionAmount <= 0 {
		return nil
	}
	if err := tx.AddOwedCommission(ctx, order.RestaurantID, order.CommissionAmount); err != nil {
		return err
	}
	if err := tx.SetCommissionRecorded(ctx, order.ID); err != nil {
		return err
	}
	order.CommissionRecorded = true
	return nil
}

// processCompletion earns points, rolls the visit/session counters forward
// and grants qualifying gifts, all in one transaction. The visitor ledger row
// is locked first; the existing-EARN check behind that lock makes replayed
// completion events a harmless no-op.
func (c *StatusCoordinator) processCompletion(ctx context.Context, order *models.Order) error {
	return c.store.Transact(ctx, func(tx repositories.Tx) error {
		restaurant, err := tx.GetRestaurantForUpdate(ctx, order.RestaurantID)
		if err != nil {
			return err
		}
		cfg := restaurant.LoyaltyConfig

		ledger, err := tx.GetLedgerForUpdate(ctx, order.RestaurantID, order.LoyaltyID)
		if errors.Is(err, repositories.ErrNotFound) {
			ledger = &models.VisitorLedger{
				RestaurantID: order.RestaurantID,
				VisitorID:    order.LoyaltyID,
				LastVisitAt:  order.CreatedAt,
			}
			if err := tx.CreateLedger(ctx, ledger); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		exists, err := tx.EarnTransactionExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if exists {
			// Already processed; treat the replay as success.
			return nil
		}

		if cfg.PointsSystemEnabled {
			points := int(math.Floor(order.TotalPrice * float64(cfg.PointsPerEuro)))
			if points > 0 {
				txn := &models.PointsTransaction{
					ID:           cuid.New(),
					RestaurantID: order.RestaurantID,
					VisitorID:    order.LoyaltyID,
					OrderID:      order.ID,
					Type:         models.TransactionTypeEarn,
					Amount:       points,
					CreatedAt:    c.now(),
				}
				if err := tx.InsertTransaction(ctx, txn); err != nil {
					return err
				}
				ledger.TotalPoints += points
			}
		}

		newVisit, err := c.isNewVisit(ctx, tx, order, ledger)
		if err != nil {
			return err
		}
		if newVisit {
			ledger.VisitCount++
			ledger.OrdersInCurrentSession = 1
			spendAfter, err := tx.CompletedSpend(ctx, order.RestaurantID, order.LoyaltyID)
			if err != nil {
				return err
			}
			if err := c.gifts.grantForVisit(ctx, tx, restaurant, order, ledger, spendAfter); err != nil {
				return err
			}
		} else {
			ledger.OrdersInCurrentSession++
		}
		ledger.LastVisitAt = order.CreatedAt

		return tx.UpdateLedger(ctx, ledger)
	})
}

// isNewVisit compares this order's creation time against the visitor's
// previous completed order. The gap threshold is the same session window the
// client-side tracker uses.
func (c *StatusCoordinator) isNewVisit(ctx context.Context, tx repositories.Tx, order *models.Order, ledger *models.VisitorLedger) (bool, error) {
	if ledger.VisitCount == 0 {
		return true, nil
	}
	prev, err := tx.LatestCompletedOrder(ctx, order.RestaurantID, order.LoyaltyID, order.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return order.CreatedAt.Sub(prev.CreatedAt) > c.cfg.SessionWindow, nil
}

// compensateCancellation reverses every side effect the order produced. The
// whole chain runs in the surrounding transaction: either the order is
// cancelled with all corrections applied, or nothing changed.
func (c *StatusCoordinator) compensateCancellation(ctx context.Context, tx repositories.Tx, order *models.Order, prevStatus string) error {
	// Reopen the gift this order redeemed at checkout, if any.
	redeemed, err := tx.GiftRedeemedByOrder(ctx, order.ID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	if redeemed != nil {
		redeemed.Status = models.GiftStatusUnused
		redeemed.OrderID = ""
		redeemed.UpdatedAt = c.now()
		if err := tx.UpdateGift(ctx, redeemed); err != nil {
			return err
		}
	}

	if order.HasVisitor() {
		if err := c.gifts.revertConversions(ctx, tx, order); err != nil {
			return err
		}

		ledger, err := tx.GetLedgerForUpdate(ctx, order.RestaurantID, order.LoyaltyID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		if ledger != nil {
			if ledger.OrdersInCurrentSession > 0 {
				ledger.OrdersInCurrentSession--
			}
			if prev, err := tx.LatestCompletedOrder(ctx, order.RestaurantID, order.LoyaltyID, order.ID); err == nil {
				ledger.LastVisitAt = prev.CreatedAt
			} else if !errors.Is(err, repositories.ErrNotFound) {
				return err
			}

			if prevStatus == models.OrderStatusCompleted {
				if err := c.reverseEarnings(ctx, tx, order, ledger); err != nil {
					return err
				}
			}

			if err := tx.UpdateLedger(ctx, ledger); err != nil {
				return err
			}
		}
	}

	return c.refundCommission(ctx, tx, order)
}

// reverseEarnings deletes the order's EARN transactions, subtracts their
// amounts from the ledger and removes still-unused gifts the order granted.
func (c *StatusCoordinator) reverseEarnings(ctx context.Context, tx repositories.Tx, order *models.Order, ledger *models.VisitorLedger) error {
	txns, err := tx.TransactionsByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	for _, txn := range txns {
		if txn.Type != models.TransactionTypeEarn {
			continue
		}
		ledger.TotalPoints -= txn.Amount
		if err := tx.DeleteTransaction(ctx, txn.ID); err != nil {
			return err
		}
	}
	if ledger.TotalPoints < 0 {
		ledger.TotalPoints = 0
	}

	granted, err := tx.GiftsGrantedByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	for _, gift := range granted {
		if gift.Status != models.GiftStatusUnused {
			continue
		}
		if err := tx.DeleteGift(ctx, gift.ID); err != nil {
			return err
		}
	}
	return nil
}

// refundCommission returns the order's commission unless the restaurant has
// used up its free cancellations for the day. The counter tracks every
// cancellation, refundable or not.
func (c *StatusCoordinator) refundCommission(ctx context.Context, tx repositories.Tx, order *models.Order) error {
	restaurant, err := tx.GetRestaurantForUpdate(ctx, order.RestaurantID)
	if err != nil {
		return err
	}

	today := c.now().Truncate(24 * time.Hour)
	count := restaurant.CancellationsToday
	if !sameDay(restaurant.CancellationsDay, today) {
		count = 0
	}
	count++
	if err := tx.SetCancellationCounter(ctx, restaurant.ID, today, count); err != nil {
		return err
	}

	if !order.CommissionRecorded || order.CommissionAmount <= 0 {
		return nil
	}
	if count > c.cfg.FreeCancellationsPerDay {
		log.Printf("Cancellation %d today for restaurant %s, commission %.2f not refunded", count, restaurant.ID, order.CommissionAmount)
		return nil
	}
	return tx.AddOwedCommission(ctx, restaurant.ID, -order.CommissionAmount)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
