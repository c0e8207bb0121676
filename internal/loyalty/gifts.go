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

// GiftService owns the lifecycle of gift records: grants on qualifying
// completions, conversion to points, and the compensating reversals driven by
// order cancellation.
type GiftService struct {
	store repositories.Store
	cfg   *models.Config
	sink  EventSink
	now   func() time.Time
}

func NewGiftService(store repositories.Store, cfg *models.Config, sink EventSink) *GiftService {
	return &GiftService{
		store: store,
		cfg:   cfg,
		sink:  sink,
		now:   time.Now,
	}
}

// grantForVisit creates the gifts a newly counted visit qualifies for. Runs
// inside the completion transaction; ledger.VisitCount has already been
// incremented for this visit.
func (g *GiftService) grantForVisit(ctx context.Context, tx repositories.Tx, restaurant *models.Restaurant, order *models.Order, ledger *models.VisitorLedger, spendAfter float64) error {
	cfg := restaurant.LoyaltyConfig
	now := g.now()

	if ledger.VisitCount == 1 {
		gift := &models.Gift{
			ID:               cuid.New(),
			RestaurantID:     restaurant.ID,
			VisitorID:        ledger.VisitorID,
			Type:             models.GiftTypePercentage,
			PercentageValue:  float64(cfg.Welcome.Value),
			Status:           models.GiftStatusUnused,
			GrantedByOrderID: order.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.InsertGift(ctx, gift); err != nil {
			return fmt.Errorf("failed to insert welcome gift: %w", err)
		}
		g.publishGrant(restaurant.ID, ledger.VisitorID, now)
		return nil
	}

	spendBefore := spendAfter - order.TotalPrice
	crossedThreshold := spendBefore < float64(cfg.Loyal.Threshold) && spendAfter >= float64(cfg.Loyal.Threshold)
	if ledger.VisitCount >= 3 && crossedThreshold {
		gift := &models.Gift{
			ID:               cuid.New(),
			RestaurantID:     restaurant.ID,
			VisitorID:        ledger.VisitorID,
			Status:           models.GiftStatusUnused,
			GrantedByOrderID: order.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if cfg.Loyal.Type == models.RewardTypeItem {
			gift.Type = models.GiftTypeItem
			gift.GiftName = cfg.Loyal.ItemName
		} else {
			gift.Type = models.GiftTypePercentage
			gift.PercentageValue = float64(cfg.Loyal.Value)
		}
		if err := tx.InsertGift(ctx, gift); err != nil {
			return fmt.Errorf("failed to insert loyal gift: %w", err)
		}
		g.publishGrant(restaurant.ID, ledger.VisitorID, now)
	}
	return nil
}

func (g *GiftService) publishGrant(restaurantID, visitorID string, at time.Time) {
	Publish(g.sink, g.cfg.KafkaTopicPrefix+"_loyalty_events", &models.LoyaltyEvent{
		ID:           cuid.New(),
		RestaurantID: restaurantID,
		VisitorID:    visitorID,
		Type:         models.EventTypeGiftGranted,
		CreatedAt:    at,
	})
}

// ConvertToPoints exchanges an unused gift for loyalty points at the
// restaurant's configured rate. The gift row is locked for the whole
// check-convert-credit sequence; a concurrent conversion of the same gift
// blocks, then fails the unused check.
func (g *GiftService) ConvertToPoints(ctx context.Context, giftID, visitorID, restaurantID string, orderTotal *float64) (int, error) {
	if giftID == "" || visitorID == "" || restaurantID == "" {
		return 0, fmt.Errorf("%w: gift id, visitor id and restaurant id are required", ErrValidation)
	}

	var addedPoints int
	err := g.store.Transact(ctx, func(tx repositories.Tx) error {
		gift, err := tx.GetGiftForUpdate(ctx, giftID)
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: gift %s", ErrNotFound, giftID)
		}
		if err != nil {
			return err
		}
		if gift.RestaurantID != restaurantID || gift.VisitorID != visitorID {
			// Ownership mismatches are indistinguishable from absence.
			return fmt.Errorf("%w: gift %s", ErrNotFound, giftID)
		}
		if gift.Status != models.GiftStatusUnused {
			return fmt.Errorf("%w: gift already %s", ErrValidation, gift.Status)
		}

		restaurant, err := tx.GetRestaurantForUpdate(ctx, restaurantID)
		if err != nil {
			return err
		}
		cfg := restaurant.LoyaltyConfig
		if !cfg.GiftConversionEnabled {
			return fmt.Errorf("%w: gift conversion is disabled for this restaurant", ErrValidation)
		}

		euros, err := g.giftEuroValue(ctx, tx, gift, orderTotal)
		if err != nil {
			return err
		}

		addedPoints = int(math.Floor(euros * float64(cfg.PointsPerEuro)))
		if addedPoints <= 0 {
			return fmt.Errorf("%w: conversion would yield zero points", ErrValidation)
		}

		now := g.now()
		txn := &models.PointsTransaction{
			ID:           cuid.New(),
			RestaurantID: restaurantID,
			VisitorID:    visitorID,
			GiftID:       gift.ID,
			Type:         models.TransactionTypeConvertGift,
			Amount:       addedPoints,
			CreatedAt:    now,
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}

		ledger, err := tx.GetLedgerForUpdate(ctx, restaurantID, visitorID)
		if errors.Is(err, repositories.ErrNotFound) {
			ledger = &models.VisitorLedger{
				RestaurantID: restaurantID,
				VisitorID:    visitorID,
				LastVisitAt:  now,
			}
			if err := tx.CreateLedger(ctx, ledger); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		ledger.TotalPoints += addedPoints
		if err := tx.UpdateLedger(ctx, ledger); err != nil {
			return err
		}

		gift.Status = models.GiftStatusConverted
		gift.UpdatedAt = now
		return tx.UpdateGift(ctx, gift)
	})
	if err != nil {
		return 0, err
	}

	Publish(g.sink, g.cfg.KafkaTopicPrefix+"_loyalty_events", &models.LoyaltyEvent{
		ID:           cuid.New(),
		RestaurantID: restaurantID,
		VisitorID:    visitorID,
		Type:         models.EventTypeGiftConverted,
		CreatedAt:    g.now(),
	})
	return addedPoints, nil
}

// giftEuroValue resolves a gift's monetary value. A failed live price lookup
// for item gifts falls back to the stored value; conversion must not
// hard-fail because a menu item was renamed.
func (g *GiftService) giftEuroValue(ctx context.Context, tx repositories.Tx, gift *models.Gift, orderTotal *float64) (float64, error) {
	switch gift.Type {
	case models.GiftTypePercentage:
		total, err := g.resolveOrderTotal(ctx, tx, gift, orderTotal)
		if err != nil {
			return 0, err
		}
		return total * gift.PercentageValue / 100, nil
	case models.GiftTypeItem:
		price, err := tx.MenuItemPrice(ctx, gift.RestaurantID, gift.GiftName)
		if err != nil {
			log.Printf("Menu price lookup failed for gift %s item %q, using stored value: %v", gift.ID, gift.GiftName, err)
			return gift.EuroValue, nil
		}
		return price, nil
	case models.GiftTypeFixedValue:
		return gift.EuroValue, nil
	default:
		return 0, fmt.Errorf("%w: unknown gift type %q", ErrValidation, gift.Type)
	}
}

func (g *GiftService) resolveOrderTotal(ctx context.Context, tx repositories.Tx, gift *models.Gift, orderTotal *float64) (float64, error) {
	if orderTotal != nil && *orderTotal > 0 {
		return *orderTotal, nil
	}
	if gift.OrderID == "" {
		return 0, fmt.Errorf("%w: order total is required to convert a percentage gift", ErrValidation)
	}
	order, err := tx.GetOrderForUpdate(ctx, gift.OrderID)
	if err != nil {
		return 0, fmt.Errorf("%w: order total is required to convert a percentage gift", ErrValidation)
	}
	return order.TotalPrice, nil
}

// revertConversions undoes gift conversions performed shortly after the
// given order was created. Runs inside the cancellation transaction.
func (g *GiftService) revertConversions(ctx context.Context, tx repositories.Tx, order *models.Order) error {
	from := order.CreatedAt
	to := order.CreatedAt.Add(g.cfg.ConversionRevertWindow)
	conversions, err := tx.ConversionsBetween(ctx, order.RestaurantID, order.LoyaltyID, from, to)
	if err != nil {
		return err
	}

	for _, txn := range conversions {
		ledger, err := tx.GetLedgerForUpdate(ctx, order.RestaurantID, order.LoyaltyID)
		if err != nil {
			return err
		}
		ledger.TotalPoints -= txn.Amount
		if ledger.TotalPoints < 0 {
			ledger.TotalPoints = 0
		}
		if err := tx.UpdateLedger(ctx, ledger); err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, txn.ID); err != nil {
			return err
		}
		if txn.GiftID == "" {
			continue
		}
		gift, err := tx.GetGiftForUpdate(ctx, txn.GiftID)
		if errors.Is(err, repositories.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		gift.Status = models.GiftStatusUnused
		gift.UpdatedAt = g.now()
		if err := tx.UpdateGift(ctx, gift); err != nil {
			return err
		}
	}
	return nil
}
