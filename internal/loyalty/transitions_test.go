package loyalty

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
	"github.com/plateful/plateful/internal/repositories/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	store *memory.Store
	cfg   *models.Config
	clock *testClock
	gifts *GiftService
	coord *StatusCoordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &models.Config{}
	cfg.ApplyDefaults()

	store := memory.NewStore()
	clock := &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}

	gifts := NewGiftService(store, cfg, nil)
	gifts.now = clock.Now
	coord := NewStatusCoordinator(store, cfg, gifts, nil)
	coord.now = clock.Now

	return &testEnv{store: store, cfg: cfg, clock: clock, gifts: gifts, coord: coord}
}

func (e *testEnv) addRestaurant(t *testing.T, id string, mutate func(*models.Restaurant)) *models.Restaurant {
	t.Helper()
	lcfg := models.DefaultLoyaltyConfig()
	lcfg.IsAutoPromoOn = true
	lcfg.PointsSystemEnabled = true
	lcfg.GiftConversionEnabled = true
	restaurant := &models.Restaurant{
		ID:            id,
		Name:          id,
		SlugName:      id,
		LoyaltyConfig: lcfg,
		CreatedAt:     e.clock.Now(),
	}
	if mutate != nil {
		mutate(restaurant)
	}
	if err := e.store.Restaurants().Create(context.Background(), restaurant); err != nil {
		t.Fatalf("create restaurant: %v", err)
	}
	return restaurant
}

func (e *testEnv) addOrder(t *testing.T, order *models.Order) *models.Order {
	t.Helper()
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = e.clock.Now()
	}
	order.UpdatedAt = order.CreatedAt
	if err := e.store.Orders().Create(context.Background(), order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func (e *testEnv) mustUpdate(t *testing.T, orderID, status string, caller Caller) *models.Order {
	t.Helper()
	order, err := e.coord.UpdateStatus(context.Background(), orderID, status, caller)
	if err != nil {
		t.Fatalf("UpdateStatus(%s -> %s): %v", orderID, status, err)
	}
	return order
}

func (e *testEnv) ledger(t *testing.T, restaurantID, visitorID string) *models.VisitorLedger {
	t.Helper()
	ledger, err := e.store.Ledgers().Get(context.Background(), restaurantID, visitorID)
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	return ledger
}

func (e *testEnv) restaurant(t *testing.T, id string) *models.Restaurant {
	t.Helper()
	restaurant, err := e.store.Restaurants().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get restaurant: %v", err)
	}
	return restaurant
}

var owner = Caller{Role: models.RoleOwner}

func TestUpdateStatusValidation(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)
	env.addOrder(t, &models.Order{ID: "o1", RestaurantID: "r1"})

	tests := []struct {
		name    string
		orderID string
		status  string
		caller  Caller
		wantErr error
	}{
		{"empty status", "o1", "", owner, ErrValidation},
		{"unknown status", "o1", "burnt", owner, ErrValidation},
		{"missing order", "nope", models.OrderStatusReady, owner, ErrNotFound},
		{"unknown role", "o1", models.OrderStatusReady, Caller{Role: "courier"}, ErrForbidden},
		{"staff of another restaurant", "o1", models.OrderStatusReady, Caller{Role: models.RoleStaff, RestaurantID: "r2"}, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.coord.UpdateStatus(context.Background(), tt.orderID, tt.status, tt.caller)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStaffCannotCancelCompletedOrder(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)
	env.addOrder(t, &models.Order{ID: "o1", RestaurantID: "r1", Status: models.OrderStatusCompleted})

	staff := Caller{Role: models.RoleStaff, RestaurantID: "r1"}
	_, err := env.coord.UpdateStatus(context.Background(), "o1", models.OrderStatusCancelled, staff)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	// The owner may.
	env.mustUpdate(t, "o1", models.OrderStatusCancelled, owner)
}

func TestCommissionRecordedOncePerOrder(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)
	env.addOrder(t, &models.Order{ID: "o1", RestaurantID: "r1", CommissionAmount: 2.5})

	env.mustUpdate(t, "o1", models.OrderStatusPreparing, owner)
	if got := env.restaurant(t, "r1").OwedCommissionBalance; got != 2.5 {
		t.Fatalf("balance = %f, want 2.5", got)
	}

	// Bouncing back through preparing must not double-charge.
	env.mustUpdate(t, "o1", models.OrderStatusPending, owner)
	env.mustUpdate(t, "o1", models.OrderStatusPreparing, owner)
	if got := env.restaurant(t, "r1").OwedCommissionBalance; got != 2.5 {
		t.Fatalf("balance after replay = %f, want 2.5", got)
	}
}

func TestCompletionEarnsPointsAndCountsVisit(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)
	env.addOrder(t, &models.Order{ID: "o1", RestaurantID: "r1", LoyaltyID: "v1", TotalPrice: 12.75})

	env.mustUpdate(t, "o1", models.OrderStatusCompleted, owner)

	ledger := env.ledger(t, "r1", "v1")
	if ledger.TotalPoints != 127 { // floor(12.75 * 10)
		t.Errorf("TotalPoints = %d, want 127", ledger.TotalPoints)
	}
	if ledger.VisitCount != 1 || ledger.OrdersInCurrentSession != 1 {
		t.Errorf("visit counters = %d/%d, want 1/1", ledger.VisitCount, ledger.OrdersInCurrentSession)
	}

	// First visit grants the welcome gift.
	gift, err := env.store.Gifts().ActiveForVisitor(context.Background(), "r1", "v1")
	if err != nil {
		t.Fatalf("expected welcome gift: %v", err)
	}
	if gift.Type != models.GiftTypePercentage || gift.PercentageValue != 10 {
		t.Errorf("welcome gift = %s %.0f%%, want PERCENTAGE 10%%", gift.Type, gift.PercentageValue)
	}
	if gift.GrantedByOrderID != "o1" {
		t.Errorf("GrantedByOrderID = %q, want o1", gift.GrantedByOrderID)
	}
}

func TestCompletionReplayIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)
	env.addOrder(t, &models.Order{ID: "o1", RestaurantID: "r1", LoyaltyID: "v1", TotalPrice: 20})

	env.mustUpdate(t, "o1", models.OrderStatusCompleted, owner)
	env.mustUpdate(t, "o1", models.OrderStatusPending, owner)
	env.mustUpdate(t, "o1", models.OrderStatusCompleted, owner)

	ledger := env.ledger(t, "r1", "v1")
	if ledger.TotalPoints != 200 {
		t.Errorf("TotalPoints = %d, want 200 (no double earn)", ledger.TotalPoints)
	}
	if ledger.VisitCount != 1 {
		t.Errorf("VisitCount = %d, want 1", ledger.VisitCount)
	}
}

func TestPointsSystemDisabledStillCountsVisits(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", func(r *models.Restaurant) {
		r.LoyaltyConfig.PointsSystemEnabled = false
	})
	env.addOrder(t, &models.Order{ID: "o1", RestaurantID: "r1", LoyaltyID: "v1", TotalPrice: 20})

	env.mustUpdate(t, "o1", models.OrderStatusCompleted, owner)

	ledger := env.ledger(t, "r1", "v1")
	if ledger.TotalPoints != 0 {
		t.Errorf("TotalPoints = %d, want 0", ledger.TotalPoints)
	}
	if ledger.VisitCount != 1 {
		t.Errorf("VisitCount = %d, want 1", ledger.VisitCount)
	}
}

func TestSessionWindowGroupsOrdersIntoVisits(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)
	base := env.clock.Now()

	env.addOrder(t, &models.Order{ID: "o1", RestaurantID: "r1", LoyaltyID: "v1", TotalPrice: 10, CreatedAt: base})
	// Exactly at the window boundary: still the same visit.
	env.addOrder(t, &models.Order{ID: "o2", RestaurantID: "r1", LoyaltyID: "v1", TotalPrice: 10, CreatedAt: base.Add(env.cfg.SessionWindow)})
	// Strictly past the boundary: a new visit.
	env.addOrder(t, &models.Order{ID: "o3", RestaurantID: "r1", LoyaltyID: "v1", TotalPrice: 10, CreatedAt: base.Add(2*env.cfg.SessionWindow + time.Second)})

	env.mustUpdate(t, "o1", models.OrderStatusCompleted, owner)
	env.mustUpdate(t, "o2", models.OrderStatusCompleted, owner)

	ledger := env.ledger(t, "r1", "v1")
	if ledger.VisitCount != 1 || ledger.OrdersInCurrentSession != 2 {
		t.Fatalf("after o2: counters = %d/%d, want 1/2", ledger.VisitCount, ledger.OrdersInCurrentSession)
	}

	env.mustUpdate(t, "o3", models.OrderStatusCompleted, owner)
	ledger = env.ledger(t, "r1", "v1")
	if ledger.VisitCount != 2 || ledger.OrdersInCurrentSession != 1 {
		t.Fatalf("after o3: counters = %d/%d, want 2/1", ledger.VisitCount, ledger.OrdersInCurrentSession)
	}
	if !ledger.LastVisitAt.Equal(base.Add(2*env.cfg.SessionWindow + time.Second)) {
		t.Errorf("LastVisitAt = %v, want o3 creation time", ledger.LastVisitAt)
	}
}

// Three 20 euro orders on separate visits: 600 points accumulate, the loyal
// gift lands when the third order crosses the 50 euro threshold, and
// cancelling that order walks all of it back.
func TestCancellationReversesCompletedOrder(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)
	base := env.clock.Now()

	gap := env.cfg.SessionWindow + time.Hour
	for i, id := range []string{"o1", "o2", "o3"} {
		env.addOrder(t, &models.Order{
			ID: id, RestaurantID: "r1", LoyaltyID: "v1", TotalPrice: 20,
			CreatedAt: base.Add(time.Duration(i) * gap),
		})
		env.clock.now = base.Add(time.Duration(i) * gap)
		env.mustUpdate(t, id, models.OrderStatusCompleted, owner)
	}

	ledger := env.ledger(t, "r1", "v1")
	if ledger.TotalPoints != 600 {
		t.Fatalf("TotalPoints = %d, want 600", ledger.TotalPoints)
	}
	if ledger.VisitCount != 3 {
		t.Fatalf("VisitCount = %d, want 3", ledger.VisitCount)
	}

	// Visit 3 crossed 40 -> 60 over the 50 threshold: loyal gift granted.
	granted := env.giftsGrantedBy(t, "o3")
	if len(granted) != 1 {
		t.Fatalf("gifts granted by o3 = %d, want 1", len(granted))
	}
	if granted[0].PercentageValue != 10 {
		t.Errorf("loyal gift value = %.0f, want 10", granted[0].PercentageValue)
	}

	env.mustUpdate(t, "o3", models.OrderStatusCancelled, owner)

	ledger = env.ledger(t, "r1", "v1")
	if ledger.TotalPoints != 400 {
		t.Errorf("TotalPoints after cancel = %d, want 400", ledger.TotalPoints)
	}
	if ledger.OrdersInCurrentSession != 0 {
		t.Errorf("OrdersInCurrentSession = %d, want 0", ledger.OrdersInCurrentSession)
	}
	if !ledger.LastVisitAt.Equal(base.Add(gap)) {
		t.Errorf("LastVisitAt = %v, want o2 creation time", ledger.LastVisitAt)
	}
	if got := env.giftsGrantedBy(t, "o3"); len(got) != 0 {
		t.Errorf("unused loyal gift should be deleted, still have %d", len(got))
	}
	// The welcome gift from o1 is untouched.
	if got := env.giftsGrantedBy(t, "o1"); len(got) != 1 {
		t.Errorf("welcome gift from o1 should survive, have %d", len(got))
	}
}

func (e *testEnv) giftsGrantedBy(t *testing.T, orderID string) []*models.Gift {
	t.Helper()
	var gifts []*models.Gift
	err := e.store.Transact(context.Background(), func(tx repositories.Tx) error {
		var err error
		gifts, err = tx.GiftsGrantedByOrder(context.Background(), orderID)
		return err
	})
	if err != nil {
		t.Fatalf("list granted gifts: %v", err)
	}
	return gifts
}

func TestCancellationReopensRedeemedGift(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)
	env.addOrder(t, &models.Order{ID: "o1", RestaurantID: "r1", LoyaltyID: "v1", TotalPrice: 20})

	redeemed := &models.Gift{
		ID: "g1", RestaurantID: "r1", VisitorID: "v1",
		Type: models.GiftTypePercentage, PercentageValue: 10,
		Status: models.GiftStatusUsed, OrderID: "o1",
		CreatedAt: env.clock.Now(), UpdatedAt: env.clock.Now(),
	}
	err := env.store.Transact(context.Background(), func(tx repositories.Tx) error {
		return tx.InsertGift(context.Background(), redeemed)
	})
	if err != nil {
		t.Fatalf("insert gift: %v", err)
	}

	env.mustUpdate(t, "o1", models.OrderStatusCancelled, owner)

	gift, err := env.store.Gifts().GetByID(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get gift: %v", err)
	}
	if gift.Status != models.GiftStatusUnused {
		t.Errorf("gift status = %q, want unused", gift.Status)
	}
	if gift.OrderID != "" {
		t.Errorf("gift OrderID = %q, want cleared", gift.OrderID)
	}
}

func TestCancellationCommissionRefundDailyGate(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)

	for _, id := range []string{"o1", "o2", "o3", "o4"} {
		env.addOrder(t, &models.Order{ID: id, RestaurantID: "r1", CommissionAmount: 2})
		env.mustUpdate(t, id, models.OrderStatusPreparing, owner)
	}
	if got := env.restaurant(t, "r1").OwedCommissionBalance; got != 8 {
		t.Fatalf("balance = %f, want 8", got)
	}

	// Defaults allow two free cancellations per day.
	env.mustUpdate(t, "o1", models.OrderStatusCancelled, owner)
	env.mustUpdate(t, "o2", models.OrderStatusCancelled, owner)
	if got := env.restaurant(t, "r1").OwedCommissionBalance; got != 4 {
		t.Fatalf("balance after two refunds = %f, want 4", got)
	}

	// The third cancellation of the day keeps its commission.
	env.mustUpdate(t, "o3", models.OrderStatusCancelled, owner)
	r := env.restaurant(t, "r1")
	if r.OwedCommissionBalance != 4 {
		t.Fatalf("balance after third cancel = %f, want 4", r.OwedCommissionBalance)
	}
	if r.CancellationsToday != 3 {
		t.Fatalf("CancellationsToday = %d, want 3", r.CancellationsToday)
	}

	// A new calendar day resets the counter.
	env.clock.Advance(24 * time.Hour)
	env.mustUpdate(t, "o4", models.OrderStatusCancelled, owner)
	r = env.restaurant(t, "r1")
	if r.OwedCommissionBalance != 2 {
		t.Fatalf("balance next day = %f, want 2", r.OwedCommissionBalance)
	}
	if r.CancellationsToday != 1 {
		t.Fatalf("CancellationsToday next day = %d, want 1", r.CancellationsToday)
	}
}

func TestCancellationOfPendingOrderAnonymous(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", nil)
	env.addOrder(t, &models.Order{ID: "o1", RestaurantID: "r1", CommissionAmount: 2})

	// Commission never recorded: nothing to refund, but the counter still moves.
	env.mustUpdate(t, "o1", models.OrderStatusCancelled, owner)
	r := env.restaurant(t, "r1")
	if r.OwedCommissionBalance != 0 {
		t.Errorf("balance = %f, want 0", r.OwedCommissionBalance)
	}
	if r.CancellationsToday != 1 {
		t.Errorf("CancellationsToday = %d, want 1", r.CancellationsToday)
	}
}

func TestLoyalItemGiftGrant(t *testing.T) {
	env := newTestEnv(t)
	env.addRestaurant(t, "r1", func(r *models.Restaurant) {
		r.LoyaltyConfig.Loyal.Type = models.RewardTypeItem
		r.LoyaltyConfig.Loyal.ItemName = "Tiramisu"
	})
	base := env.clock.Now()
	gap := env.cfg.SessionWindow + time.Hour

	for i, id := range []string{"o1", "o2", "o3"} {
		env.addOrder(t, &models.Order{
			ID: id, RestaurantID: "r1", LoyaltyID: "v1", TotalPrice: 20,
			CreatedAt: base.Add(time.Duration(i) * gap),
		})
		env.mustUpdate(t, id, models.OrderStatusCompleted, owner)
	}

	granted := env.giftsGrantedBy(t, "o3")
	if len(granted) != 1 {
		t.Fatalf("gifts granted by o3 = %d, want 1", len(granted))
	}
	if granted[0].Type != models.GiftTypeItem || granted[0].GiftName != "Tiramisu" {
		t.Errorf("gift = %s %q, want ITEM Tiramisu", granted[0].Type, granted[0].GiftName)
	}
}
