package loyalty

import (
	"testing"

	"github.com/plateful/plateful/internal/models"
)

func testConfig() models.LoyaltyConfig {
	cfg := models.LoyaltyConfig{
		IsAutoPromoOn:       true,
		PointsSystemEnabled: true,
		PointsPerEuro:       10,
	}
	cfg.Loyal.Type = models.RewardTypeDiscount
	cfg.Loyal.Value = 15
	cfg.Loyal.Threshold = 50
	cfg.Welcome.Value = 10
	cfg.Normalize()
	return cfg
}

func TestTierFromSpend(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{
			name: "no completed orders is new",
			snap: Snapshot{},
			want: models.TierNew,
		},
		{
			name: "below threshold is soft",
			snap: Snapshot{CompletedOrders: 4, CompletedSpend: 49.99},
			want: models.TierSoft,
		},
		{
			name: "exactly at threshold is loyal",
			snap: Snapshot{CompletedOrders: 3, CompletedSpend: 50},
			want: models.TierLoyal,
		},
		{
			name: "above threshold is loyal",
			snap: Snapshot{CompletedOrders: 1, CompletedSpend: 200},
			want: models.TierLoyal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Tier(cfg); got != tt.want {
				t.Errorf("Tier() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluateAutoPromoOff(t *testing.T) {
	cfg := testConfig()
	cfg.IsAutoPromoOn = false

	offer := Evaluate(Snapshot{CompletedOrders: 5, CompletedSpend: 100}, cfg, 60, true)
	if offer.Discount != 0 {
		t.Errorf("expected no discount, got %f", offer.Discount)
	}
	if offer.MessageKey != "" {
		t.Errorf("expected no message, got %q", offer.MessageKey)
	}
	if offer.ProgressPercentage != 100 {
		t.Errorf("progress should still be computed, got %d", offer.ProgressPercentage)
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	cfg := testConfig()
	cfg.Recovery.Active = true

	gift := &models.Gift{
		ID:              "g1",
		Type:            models.GiftTypePercentage,
		PercentageValue: 20,
		Status:          models.GiftStatusUnused,
	}

	tests := []struct {
		name    string
		snap    Snapshot
		wantKey string
	}{
		{
			name:    "recovery beats active gift",
			snap:    Snapshot{RecoveryEligible: true, ActiveGift: gift, CompletedOrders: 5, CompletedSpend: 100},
			wantKey: models.MessageKeyRecoveryAvailable,
		},
		{
			name:    "gift beats loyal discount",
			snap:    Snapshot{ActiveGift: gift, CompletedOrders: 5, CompletedSpend: 100},
			wantKey: models.MessageKeyGiftAvailable,
		},
		{
			name:    "loyal discount when no gift",
			snap:    Snapshot{CompletedOrders: 5, CompletedSpend: 100},
			wantKey: models.MessageKeyLoyalDiscount,
		},
		{
			name:    "welcome teaser for new visitors",
			snap:    Snapshot{},
			wantKey: models.MessageKeyWelcomeAvailable,
		},
		{
			name:    "progress message for soft tier",
			snap:    Snapshot{CompletedOrders: 1, CompletedSpend: 20, WelcomeRedeemed: true},
			wantKey: models.MessageKeyLoyalProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer := Evaluate(tt.snap, cfg, 60, true)
			if offer.MessageKey != tt.wantKey {
				t.Errorf("MessageKey = %q, want %q", offer.MessageKey, tt.wantKey)
			}
		})
	}
}

func TestEvaluateGiftDiscounts(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name         string
		gift         *models.Gift
		redeem       bool
		subtotal     float64
		wantDiscount float64
		wantItem     string
		wantApplied  bool
	}{
		{
			name:         "percentage gift scales with subtotal",
			gift:         &models.Gift{ID: "g1", Type: models.GiftTypePercentage, PercentageValue: 15, Status: models.GiftStatusUnused},
			redeem:       true,
			subtotal:     40,
			wantDiscount: 6,
			wantApplied:  true,
		},
		{
			name:         "fixed value gift",
			gift:         &models.Gift{ID: "g2", Type: models.GiftTypeFixedValue, EuroValue: 5, Status: models.GiftStatusUnused},
			redeem:       true,
			subtotal:     20,
			wantDiscount: 5,
			wantApplied:  true,
		},
		{
			name:        "item gift at zero incremental price",
			gift:        &models.Gift{ID: "g3", Type: models.GiftTypeItem, GiftName: "Tiramisu", Status: models.GiftStatusUnused},
			redeem:      true,
			subtotal:    20,
			wantItem:    "Tiramisu",
			wantApplied: true,
		},
		{
			name:         "redeem toggle off surfaces gift without applying",
			gift:         &models.Gift{ID: "g4", Type: models.GiftTypePercentage, PercentageValue: 15, Status: models.GiftStatusUnused},
			redeem:       false,
			subtotal:     40,
			wantDiscount: 0,
			wantApplied:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer := Evaluate(Snapshot{CompletedOrders: 1, CompletedSpend: 20, ActiveGift: tt.gift}, cfg, tt.subtotal, tt.redeem)
			if offer.Discount != tt.wantDiscount {
				t.Errorf("Discount = %f, want %f", offer.Discount, tt.wantDiscount)
			}
			if offer.GiftItem != tt.wantItem {
				t.Errorf("GiftItem = %q, want %q", offer.GiftItem, tt.wantItem)
			}
			if offer.IsApplied != tt.wantApplied {
				t.Errorf("IsApplied = %v, want %v", offer.IsApplied, tt.wantApplied)
			}
		})
	}
}

func TestEvaluateLoyalDiscount(t *testing.T) {
	cfg := testConfig()

	offer := Evaluate(Snapshot{CompletedOrders: 3, CompletedSpend: 60, WelcomeRedeemed: true}, cfg, 60, true)
	if want := 9.0; offer.Discount != want {
		t.Errorf("Discount = %f, want %f", offer.Discount, want)
	}
	if !offer.IsApplied {
		t.Error("loyal discount should be applied")
	}

	// Subtotal below the threshold gets no automatic loyal discount.
	offer = Evaluate(Snapshot{CompletedOrders: 3, CompletedSpend: 60, WelcomeRedeemed: true}, cfg, 30, true)
	if offer.Discount != 0 {
		t.Errorf("expected no discount below threshold subtotal, got %f", offer.Discount)
	}
}

func TestEvaluateLoyalItemReward(t *testing.T) {
	cfg := testConfig()
	cfg.Loyal.Type = models.RewardTypeItem
	cfg.Loyal.ItemName = "Baklava"

	offer := Evaluate(Snapshot{CompletedOrders: 3, CompletedSpend: 80}, cfg, 60, true)
	if offer.GiftItem != "Baklava" {
		t.Errorf("GiftItem = %q, want Baklava", offer.GiftItem)
	}
	if offer.Discount != 0 {
		t.Errorf("item reward should not carry a discount, got %f", offer.Discount)
	}
}

func TestProgressPercentage(t *testing.T) {
	tests := []struct {
		spend     float64
		threshold float64
		want      int
	}{
		{0, 50, 0},
		{20, 50, 40},
		{49.6, 50, 99},
		{50, 50, 100},
		{500, 50, 100},
		{10, 0, 100},
	}

	for _, tt := range tests {
		if got := progressPercentage(tt.spend, tt.threshold); got != tt.want {
			t.Errorf("progressPercentage(%f, %f) = %d, want %d", tt.spend, tt.threshold, got, tt.want)
		}
	}
}

func TestEvaluateIsPure(t *testing.T) {
	cfg := testConfig()
	snap := Snapshot{CompletedOrders: 2, CompletedSpend: 45}

	first := Evaluate(snap, cfg, 30, true)
	for i := 0; i < 5; i++ {
		if got := Evaluate(snap, cfg, 30, true); got != first {
			t.Fatalf("Evaluate is not idempotent: %+v != %+v", got, first)
		}
	}
}
