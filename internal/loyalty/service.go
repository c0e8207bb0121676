package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucsky/cuid"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

// EventService ingests visitor-side loyalty events and serves the dashboard
// aggregate.
type EventService struct {
	store repositories.Store
	cfg   *models.Config
	sink  EventSink
	now   func() time.Time
}

func NewEventService(store repositories.Store, cfg *models.Config, sink EventSink) *EventService {
	return &EventService{
		store: store,
		cfg:   cfg,
		sink:  sink,
		now:   time.Now,
	}
}

// RecordEvent persists a visitor event and returns the restaurant's loyalty
// configuration so the client can refresh its mirror in the same round trip.
func (s *EventService) RecordEvent(ctx context.Context, restaurantSlug, visitorID, eventType string) (*models.LoyaltyConfig, error) {
	if restaurantSlug == "" || visitorID == "" || eventType == "" {
		return nil, fmt.Errorf("%w: restaurant, visitor id and event type are required", ErrValidation)
	}

	restaurant, err := s.store.Restaurants().GetBySlug(ctx, restaurantSlug)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: restaurant %q", ErrNotFound, restaurantSlug)
	}
	if err != nil {
		return nil, err
	}

	event := &models.LoyaltyEvent{
		ID:           cuid.New(),
		RestaurantID: restaurant.ID,
		VisitorID:    visitorID,
		Type:         eventType,
		CreatedAt:    s.now(),
	}
	if err := s.store.Events().Insert(ctx, event); err != nil {
		return nil, err
	}
	Publish(s.sink, s.cfg.KafkaTopicPrefix+"_loyalty_events", event)

	return &restaurant.LoyaltyConfig, nil
}

// DashboardStatus is the read-only aggregate behind the owner dashboard.
type DashboardStatus struct {
	LoyalClients   int                  `json:"loyal_clients"`
	OffersApplied  int                  `json:"offers_applied"`
	LoyaltyRevenue float64              `json:"loyalty_revenue"`
	LoyaltyConfig  models.LoyaltyConfig `json:"loyalty_config"`
	MenuItems      []*models.MenuItem   `json:"menu_items"`
}

func (s *EventService) Status(ctx context.Context, restaurantID string) (*DashboardStatus, error) {
	restaurant, err := s.store.Restaurants().GetByID(ctx, restaurantID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: restaurant %s", ErrNotFound, restaurantID)
	}
	if err != nil {
		return nil, err
	}

	stats, err := s.store.Stats().LoyaltyStats(ctx, restaurantID, float64(restaurant.LoyaltyConfig.Loyal.Threshold))
	if err != nil {
		return nil, err
	}

	menuItems, err := s.store.MenuItems().GetByRestaurantID(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	return &DashboardStatus{
		LoyalClients:   stats.LoyalClients,
		OffersApplied:  stats.OffersApplied,
		LoyaltyRevenue: stats.LoyaltyRevenue,
		LoyaltyConfig:  restaurant.LoyaltyConfig,
		MenuItems:      menuItems,
	}, nil
}
