package loyalty

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lucsky/cuid"
	"github.com/plateful/plateful/internal/models"
)

// SessionState is the visitor-side cache mirroring the server ledger. It only
// drives UI teasers and session bookkeeping; the server ledger wins for every
// monetary or points effect, and Reconcile overwrites the mirrored fields
// whenever fresh server state arrives.
type SessionState struct {
	RestaurantID        string      `json:"restaurant_id"`
	VisitorID           string      `json:"visitor_id"`
	LastVisitAt         time.Time   `json:"last_visit_at"`
	LastRecoveryAt      time.Time   `json:"last_recovery_at"`
	VisitTimes          []time.Time `json:"visit_times"` // rolling window, pruned on every evaluation
	RewardUsedInSession bool        `json:"reward_used_in_session"`
	IsNextVisitRecovery bool        `json:"is_next_visit_recovery"`
	LastOfferType       string      `json:"last_offer_type"` // tier at the previous evaluation
	CompletedOrders     int         `json:"completed_orders"`
	CompletedSpend      float64     `json:"completed_spend"`
	WelcomeRedeemed     bool        `json:"welcome_redeemed"`
}

// StatusChange is pushed to subscribers after every recorded visit.
type StatusChange struct {
	Tier       string
	NewSession bool
	Recovery   bool
	VisitCount int
}

// StatePersister stores session state between visits, the way browser storage
// does for the web client.
type StatePersister interface {
	Save(state *SessionState) error
	Load(restaurantID, visitorID string) (*SessionState, error)
}

// SessionTracker owns one visitor's session state for one restaurant. All
// reads and writes go through the tracker; every mutation persists the full
// state before any derived read so Status never serves a stale tier.
type SessionTracker struct {
	mu        sync.Mutex
	state     *SessionState
	cfg       models.LoyaltyConfig
	appCfg    *models.Config
	persister StatePersister
	sink      EventSink
	subs      []chan StatusChange
	now       func() time.Time
}

func NewSessionTracker(restaurantID, visitorID string, cfg models.LoyaltyConfig, appCfg *models.Config, persister StatePersister, sink EventSink) *SessionTracker {
	cfg.Normalize()
	if visitorID == "" {
		visitorID = cuid.New()
	}

	state, err := persister.Load(restaurantID, visitorID)
	if err != nil || state == nil {
		state = &SessionState{
			RestaurantID:  restaurantID,
			VisitorID:     visitorID,
			LastOfferType: models.TierNew,
		}
	}

	return &SessionTracker{
		state:     state,
		cfg:       cfg,
		appCfg:    appCfg,
		persister: persister,
		sink:      sink,
		now:       time.Now,
	}
}

// RecordVisit rolls the visit counters forward for one page-load signal.
// A recovery-qualifying return emits a recovery event instead of a plain
// visit event, never both.
func (t *SessionTracker) RecordVisit() (StatusChange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	state := t.state

	t.pruneWindow(now)

	newSession := state.LastVisitAt.IsZero() || now.Sub(state.LastVisitAt) > t.appCfg.SessionWindow
	recovery := false
	if newSession {
		state.RewardUsedInSession = false
		if t.qualifiesForRecovery(now) {
			recovery = true
			state.IsNextVisitRecovery = true
			state.LastRecoveryAt = now
		}
	}

	state.VisitTimes = append(state.VisitTimes, now)
	state.LastVisitAt = now

	tier := t.snapshotLocked().Tier(t.cfg)
	reachedLoyal := tier == models.TierLoyal && state.LastOfferType != models.TierLoyal
	state.LastOfferType = tier

	if err := t.persister.Save(state); err != nil {
		return StatusChange{}, err
	}

	eventType := models.EventTypeVisit
	if recovery {
		eventType = models.EventTypeRecoveryVisit
	}
	t.publish(eventType, now)
	if reachedLoyal {
		t.publish(models.EventTypeLoyalReached, now)
	}

	change := StatusChange{
		Tier:       tier,
		NewSession: newSession,
		Recovery:   recovery,
		VisitCount: len(state.VisitTimes),
	}
	t.notify(change)
	return change, nil
}

func (t *SessionTracker) qualifiesForRecovery(now time.Time) bool {
	state := t.state
	if !t.cfg.Recovery.Active || state.LastVisitAt.IsZero() {
		return false
	}
	delay := time.Duration(float64(t.cfg.Recovery.Delay) * 24 * float64(time.Hour))
	if now.Sub(state.LastVisitAt) <= delay {
		return false
	}
	frequency := time.Duration(float64(t.cfg.Recovery.Frequency) * 24 * float64(time.Hour))
	return state.LastRecoveryAt.IsZero() || now.Sub(state.LastRecoveryAt) > frequency
}

func (t *SessionTracker) pruneWindow(now time.Time) {
	cutoff := now.AddDate(0, 0, -t.appCfg.VisitWindowDays)
	kept := t.state.VisitTimes[:0]
	for _, visit := range t.state.VisitTimes {
		if visit.After(cutoff) {
			kept = append(kept, visit)
		}
	}
	t.state.VisitTimes = kept
}

// Reconcile overwrites the mirrored server fields. Called with fresh ledger
// state after any server round-trip.
func (t *SessionTracker) Reconcile(completedOrders int, completedSpend float64, welcomeRedeemed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.CompletedOrders = completedOrders
	t.state.CompletedSpend = completedSpend
	t.state.WelcomeRedeemed = welcomeRedeemed
	return t.persister.Save(t.state)
}

// MarkRewardUsed flags that the current session already redeemed its reward.
func (t *SessionTracker) MarkRewardUsed() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.RewardUsedInSession = true
	return t.persister.Save(t.state)
}

// ConsumeRecovery clears and returns the pending recovery flag.
func (t *SessionTracker) ConsumeRecovery() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := t.state.IsNextVisitRecovery
	t.state.IsNextVisitRecovery = false
	if err := t.persister.Save(t.state); err != nil {
		return false, err
	}
	return pending, nil
}

// Status evaluates the current offer for a basket. Pure read; the state was
// persisted by whichever mutation preceded it.
func (t *SessionTracker) Status(subtotal float64, redeem bool, activeGift *models.Gift) Offer {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.snapshotLocked()
	snap.ActiveGift = activeGift
	return Evaluate(snap, t.cfg, subtotal, redeem)
}

func (t *SessionTracker) snapshotLocked() Snapshot {
	return Snapshot{
		CompletedOrders:  t.state.CompletedOrders,
		CompletedSpend:   t.state.CompletedSpend,
		WelcomeRedeemed:  t.state.WelcomeRedeemed,
		RecoveryEligible: t.state.IsNextVisitRecovery,
	}
}

// Subscribe returns a channel receiving status changes. The channel is
// buffered; a slow subscriber drops updates rather than blocking the tracker.
func (t *SessionTracker) Subscribe() <-chan StatusChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan StatusChange, 8)
	t.subs = append(t.subs, ch)
	return ch
}

func (t *SessionTracker) notify(change StatusChange) {
	for _, ch := range t.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (t *SessionTracker) publish(eventType string, at time.Time) {
	Publish(t.sink, t.appCfg.KafkaTopicPrefix+"_loyalty_events", &models.LoyaltyEvent{
		ID:           cuid.New(),
		RestaurantID: t.state.RestaurantID,
		VisitorID:    t.state.VisitorID,
		Type:         eventType,
		CreatedAt:    at,
	})
}

// FilePersister stores session state as one JSON file per
// (restaurant, visitor) pair.
type FilePersister struct {
	basePath string
}

func NewFilePersister(basePath string) *FilePersister {
	return &FilePersister{basePath: basePath}
}

func (p *FilePersister) path(restaurantID, visitorID string) string {
	return filepath.Join(p.basePath, fmt.Sprintf("session_%s_%s.json", restaurantID, visitorID))
}

func (p *FilePersister) Save(state *SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(p.path(state.RestaurantID, state.VisitorID), data, 0644)
}

func (p *FilePersister) Load(restaurantID, visitorID string) (*SessionState, error) {
	data, err := os.ReadFile(p.path(restaurantID, visitorID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	state := &SessionState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}

// MemoryPersister keeps session state in memory, for tests and ephemeral use.
type MemoryPersister struct {
	mu     sync.Mutex
	states map[string]*SessionState
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{states: make(map[string]*SessionState)}
}

func (p *MemoryPersister) Save(state *SessionState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *state
	cp.VisitTimes = append([]time.Time(nil), state.VisitTimes...)
	p.states[state.RestaurantID+"|"+state.VisitorID] = &cp
	return nil
}

func (p *MemoryPersister) Load(restaurantID, visitorID string) (*SessionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[restaurantID+"|"+visitorID]
	if !ok {
		return nil, nil
	}
	cp := *state
	cp.VisitTimes = append([]time.Time(nil), state.VisitTimes...)
	return &cp, nil
}
