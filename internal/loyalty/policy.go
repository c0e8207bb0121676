package loyalty

import (
	"math"

	"github.com/plateful/plateful/internal/models"
)

// Snapshot is the visitor history a policy evaluation needs. It is assembled
// by the caller (session tracker or handler) from the ledger; Evaluate itself
// never touches storage.
type Snapshot struct {
	CompletedOrders  int
	CompletedSpend   float64
	WelcomeRedeemed  bool
	RecoveryEligible bool
	ActiveGift       *models.Gift
}

// Tier derives the promotional tier from completed-order spend. Visit counts
// play no part here: a visitor who browses daily but never orders stays NEW.
func (s Snapshot) Tier(cfg models.LoyaltyConfig) string {
	if s.CompletedOrders == 0 {
		return models.TierNew
	}
	if s.CompletedSpend >= float64(cfg.Loyal.Threshold) {
		return models.TierLoyal
	}
	return models.TierSoft
}

// Offer is the evaluation result. Discount keeps full float precision;
// flooring happens only at the points-conversion boundary, display rounding
// is the UI's business.
type Offer struct {
	Discount           float64 `json:"discount"`
	Reason             string  `json:"reason,omitempty"`
	GiftID             string  `json:"gift_id,omitempty"`
	GiftItem           string  `json:"gift_item,omitempty"`
	MessageKey         string  `json:"message_key,omitempty"`
	ProgressPercentage int     `json:"progress_percentage"`
	IsApplied          bool    `json:"is_applied"`
	Tier               string  `json:"tier"`
}

type evalContext struct {
	snap     Snapshot
	cfg      models.LoyaltyConfig
	subtotal float64
	redeem   bool
	tier     string
}

// policyRule is one row of the ranked rule table. Rules are evaluated in
// order and the first eligible one wins; the precedence
// (recovery > active gift > loyal threshold > welcome teaser) is a
// user-facing contract, not an implementation accident.
type policyRule struct {
	name     string
	eligible func(*evalContext) bool
	build    func(*evalContext, *Offer)
}

var policyRules = []policyRule{
	{
		name: "recovery",
		eligible: func(e *evalContext) bool {
			return e.cfg.Recovery.Active && e.snap.RecoveryEligible
		},
		build: func(e *evalContext, offer *Offer) {
			offer.MessageKey = models.MessageKeyRecoveryAvailable
			offer.Reason = "recovery"
		},
	},
	{
		name: "active-gift",
		eligible: func(e *evalContext) bool {
			return e.snap.ActiveGift != nil
		},
		build: func(e *evalContext, offer *Offer) {
			gift := e.snap.ActiveGift
			offer.MessageKey = models.MessageKeyGiftAvailable
			offer.Reason = "gift"
			offer.GiftID = gift.ID
			if !e.redeem {
				return
			}
			switch gift.Type {
			case models.GiftTypePercentage:
				offer.Discount = e.subtotal * gift.PercentageValue / 100
			case models.GiftTypeFixedValue:
				offer.Discount = gift.EuroValue
			case models.GiftTypeItem:
				offer.GiftItem = gift.GiftName
			}
			offer.IsApplied = gift.Status == models.GiftStatusUnused
		},
	},
	{
		name: "loyal-threshold",
		eligible: func(e *evalContext) bool {
			return e.tier == models.TierLoyal && e.subtotal >= float64(e.cfg.Loyal.Threshold)
		},
		build: func(e *evalContext, offer *Offer) {
			offer.MessageKey = models.MessageKeyLoyalDiscount
			offer.Reason = "loyal"
			switch e.cfg.Loyal.Type {
			case models.RewardTypeItem:
				offer.GiftItem = e.cfg.Loyal.ItemName
			default:
				offer.Discount = e.subtotal * float64(e.cfg.Loyal.Value) / 100
			}
			offer.IsApplied = true
		},
	},
	{
		name: "welcome-teaser",
		eligible: func(e *evalContext) bool {
			return e.tier == models.TierNew && !e.snap.WelcomeRedeemed
		},
		build: func(e *evalContext, offer *Offer) {
			// Teaser only. The welcome discount itself arrives as a gift
			// granted on the first completed order.
			offer.MessageKey = models.MessageKeyWelcomeAvailable
			offer.Reason = "welcome"
		},
	},
	{
		name:     "loyal-progress",
		eligible: func(e *evalContext) bool { return e.tier == models.TierSoft },
		build: func(e *evalContext, offer *Offer) {
			offer.MessageKey = models.MessageKeyLoyalProgress
		},
	},
}

// Evaluate is a pure function from visitor history, configuration and the
// current basket to the offer to display. Safe to call on every render.
func Evaluate(snap Snapshot, cfg models.LoyaltyConfig, subtotal float64, redeem bool) Offer {
	cfg.Normalize()

	e := &evalContext{snap: snap, cfg: cfg, subtotal: subtotal, redeem: redeem}
	e.tier = snap.Tier(cfg)

	offer := Offer{
		Tier:               e.tier,
		ProgressPercentage: progressPercentage(snap.CompletedSpend, float64(cfg.Loyal.Threshold)),
	}

	if !cfg.IsAutoPromoOn {
		return offer
	}

	for _, rule := range policyRules {
		if rule.eligible(e) {
			rule.build(e, &offer)
			break
		}
	}
	return offer
}

func progressPercentage(spend, threshold float64) int {
	if threshold <= 0 {
		return 100
	}
	pct := math.Round(spend / threshold * 100)
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}
