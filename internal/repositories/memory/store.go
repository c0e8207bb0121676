// Package memory provides an in-memory Store used by tests and the
// `--store memory` development mode. A single mutex serializes every
// transaction, which gives the same guarantees the row locks provide in
// Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

type Store struct {
	mu sync.Mutex

	restaurants map[string]*models.Restaurant
	menuItems   map[string]*models.MenuItem
	orders      map[string]*models.Order
	gifts       map[string]*models.Gift
	ledgers     map[string]*models.VisitorLedger
	txns        map[string]*models.PointsTransaction
	events      []*models.LoyaltyEvent
}

func NewStore() *Store {
	return &Store{
		restaurants: make(map[string]*models.Restaurant),
		menuItems:   make(map[string]*models.MenuItem),
		orders:      make(map[string]*models.Order),
		gifts:       make(map[string]*models.Gift),
		ledgers:     make(map[string]*models.VisitorLedger),
		txns:        make(map[string]*models.PointsTransaction),
	}
}

func ledgerKey(restaurantID, visitorID string) string {
	return restaurantID + "|" + visitorID
}

func (s *Store) Restaurants() repositories.RestaurantRepository { return &restaurantRepo{s} }
func (s *Store) MenuItems() repositories.MenuItemRepository     { return &menuItemRepo{s} }
func (s *Store) Orders() repositories.OrderRepository           { return &orderRepo{s} }
func (s *Store) Gifts() repositories.GiftRepository             { return &giftRepo{s} }
func (s *Store) Ledgers() repositories.LedgerRepository         { return &ledgerRepo{s} }
func (s *Store) Events() repositories.EventRepository           { return &eventRepo{s} }
func (s *Store) Stats() repositories.StatsRepository            { return &statsRepo{s} }

// Transact runs fn under the store lock against a snapshot-backed view.
// On error the pre-transaction snapshot is restored, so partial writes never
// become visible.
func (s *Store) Transact(ctx context.Context, fn func(tx repositories.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.clone()
	if err := fn(&memTx{s}); err != nil {
		s.restaurants = snapshot.restaurants
		s.menuItems = snapshot.menuItems
		s.orders = snapshot.orders
		s.gifts = snapshot.gifts
		s.ledgers = snapshot.ledgers
		s.txns = snapshot.txns
		s.events = snapshot.events
		return err
	}
	return nil
}

func (s *Store) Close() {}

func (s *Store) clone() *Store {
	c := NewStore()
	for k, v := range s.restaurants {
		r := *v
		c.restaurants[k] = &r
	}
	for k, v := range s.menuItems {
		m := *v
		c.menuItems[k] = &m
	}
	for k, v := range s.orders {
		o := *v
		c.orders[k] = &o
	}
	for k, v := range s.gifts {
		g := *v
		c.gifts[k] = &g
	}
	for k, v := range s.ledgers {
		l := *v
		c.ledgers[k] = &l
	}
	for k, v := range s.txns {
		t := *v
		c.txns[k] = &t
	}
	c.events = append([]*models.LoyaltyEvent(nil), s.events...)
	return c
}

func (s *Store) completedSpendLocked(restaurantID, visitorID string) float64 {
	var spend float64
	for _, o := range s.orders {
		if o.RestaurantID == restaurantID && o.LoyaltyID == visitorID && o.Status == models.OrderStatusCompleted {
			spend += o.TotalPrice
		}
	}
	return spend
}

type restaurantRepo struct{ s *Store }

func (r *restaurantRepo) BulkCreate(ctx context.Context, restaurants []*models.Restaurant) error {
	for _, restaurant := range restaurants {
		if err := r.Create(ctx, restaurant); err != nil {
			return err
		}
	}
	return nil
}

func (r *restaurantRepo) Create(ctx context.Context, restaurant *models.Restaurant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *restaurant
	r.s.restaurants[restaurant.ID] = &cp
	return nil
}

func (r *restaurantRepo) GetByID(ctx context.Context, id string) (*models.Restaurant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	restaurant, ok := r.s.restaurants[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *restaurant
	return &cp, nil
}

func (r *restaurantRepo) GetBySlug(ctx context.Context, slug string) (*models.Restaurant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, restaurant := range r.s.restaurants {
		if restaurant.SlugName == slug {
			cp := *restaurant
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *restaurantRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.restaurants), nil
}

type menuItemRepo struct{ s *Store }

func (r *menuItemRepo) BulkCreate(ctx context.Context, menuItems []*models.MenuItem) error {
	for _, menuItem := range menuItems {
		if err := r.Create(ctx, menuItem); err != nil {
			return err
		}
	}
	return nil
}

func (r *menuItemRepo) Create(ctx context.Context, menuItem *models.MenuItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *menuItem
	r.s.menuItems[menuItem.ID] = &cp
	return nil
}

func (r *menuItemRepo) GetByRestaurantID(ctx context.Context, restaurantID string) ([]*models.MenuItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var menuItems []*models.MenuItem
	for _, menuItem := range r.s.menuItems {
		if menuItem.RestaurantID == restaurantID {
			cp := *menuItem
			menuItems = append(menuItems, &cp)
		}
	}
	sort.Slice(menuItems, func(i, j int) bool { return menuItems[i].Name < menuItems[j].Name })
	return menuItems, nil
}

type orderRepo struct{ s *Store }

func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *order
	r.s.orders[order.ID] = &cp
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

type giftRepo struct{ s *Store }

func (r *giftRepo) GetByID(ctx context.Context, id string) (*models.Gift, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	gift, ok := r.s.gifts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *gift
	return &cp, nil
}

func (r *giftRepo) ActiveForVisitor(ctx context.Context, restaurantID, visitorID string) (*models.Gift, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var oldest *models.Gift
	for _, gift := range r.s.gifts {
		if gift.RestaurantID != restaurantID || gift.VisitorID != visitorID || gift.Status != models.GiftStatusUnused {
			continue
		}
		if oldest == nil || gift.CreatedAt.Before(oldest.CreatedAt) {
			oldest = gift
		}
	}
	if oldest == nil {
		return nil, repositories.ErrNotFound
	}
	cp := *oldest
	return &cp, nil
}

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) Get(ctx context.Context, restaurantID, visitorID string) (*models.VisitorLedger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ledger, ok := r.s.ledgers[ledgerKey(restaurantID, visitorID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *ledger
	return &cp, nil
}

func (r *ledgerRepo) CompletedSpend(ctx context.Context, restaurantID, visitorID string) (float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.completedSpendLocked(restaurantID, visitorID), nil
}

type eventRepo struct{ s *Store }

func (r *eventRepo) Insert(ctx context.Context, event *models.LoyaltyEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *event
	r.s.events = append(r.s.events, &cp)
	return nil
}

func (r *eventRepo) LastOfType(ctx context.Context, restaurantID, visitorID, eventType string) (time.Time, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var last time.Time
	found := false
	for _, event := range r.s.events {
		if event.RestaurantID == restaurantID && event.VisitorID == visitorID && event.Type == eventType {
			if !found || event.CreatedAt.After(last) {
				last = event.CreatedAt
				found = true
			}
		}
	}
	return last, found, nil
}

type statsRepo struct{ s *Store }

func (r *statsRepo) LoyaltyStats(ctx context.Context, restaurantID string, loyalThreshold float64) (*models.LoyaltyStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stats := &models.LoyaltyStats{}
	spendByVisitor := make(map[string]float64)
	for _, o := range r.s.orders {
		if o.RestaurantID == restaurantID && o.LoyaltyID != "" && o.Status == models.OrderStatusCompleted {
			spendByVisitor[o.LoyaltyID] += o.TotalPrice
			stats.LoyaltyRevenue += o.TotalPrice
		}
	}
	for _, spend := range spendByVisitor {
		if spend >= loyalThreshold {
			stats.LoyalClients++
		}
	}
	for _, gift := range r.s.gifts {
		if gift.RestaurantID == restaurantID && gift.Status != models.GiftStatusUnused {
			stats.OffersApplied++
		}
	}
	return stats, nil
}

func (r *statsRepo) TransactionsCreatedBetween(ctx context.Context, from, to time.Time) ([]*models.PointsTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var txns []*models.PointsTransaction
	for _, txn := range r.s.txns {
		if !txn.CreatedAt.Before(from) && txn.CreatedAt.Before(to) {
			cp := *txn
			txns = append(txns, &cp)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.Before(txns[j].CreatedAt) })
	return txns, nil
}
