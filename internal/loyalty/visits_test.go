package loyalty

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/plateful/plateful/internal/models"
)

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []models.LoyaltyEvent
}

func (s *captureSink) WriteEvent(topic string, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var event models.LoyaltyEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, event := range s.events {
		types = append(types, event.Type)
	}
	return types
}

type trackerFixture struct {
	tracker   *SessionTracker
	persister *MemoryPersister
	sink      *captureSink
	clock     *testClock
	appCfg    *models.Config
	cfg       models.LoyaltyConfig
}

func newTrackerFixture(t *testing.T, mutate func(*models.LoyaltyConfig)) *trackerFixture {
	t.Helper()
	appCfg := &models.Config{}
	appCfg.ApplyDefaults()

	cfg := models.DefaultLoyaltyConfig()
	cfg.IsAutoPromoOn = true
	if mutate != nil {
		mutate(&cfg)
	}

	persister := NewMemoryPersister()
	sink := &captureSink{}
	clock := &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}

	tracker := NewSessionTracker("r1", "v1", cfg, appCfg, persister, sink)
	tracker.now = clock.Now

	return &trackerFixture{tracker: tracker, persister: persister, sink: sink, clock: clock, appCfg: appCfg, cfg: cfg}
}

func (f *trackerFixture) visit(t *testing.T) StatusChange {
	t.Helper()
	change, err := f.tracker.RecordVisit()
	if err != nil {
		t.Fatalf("RecordVisit: %v", err)
	}
	return change
}

func TestRecordVisitSessionBoundaries(t *testing.T) {
	f := newTrackerFixture(t, nil)

	if change := f.visit(t); !change.NewSession {
		t.Error("first visit should start a session")
	}

	// Page reloads within the window stay in the same session.
	f.clock.Advance(time.Minute)
	if change := f.visit(t); change.NewSession {
		t.Error("visit one minute later should not start a session")
	}

	// A gap of exactly the window is still the same session.
	f.clock.Advance(f.appCfg.SessionWindow)
	if change := f.visit(t); change.NewSession {
		t.Error("gap equal to the window should not start a session")
	}

	// One second past the window is a new one.
	f.clock.Advance(f.appCfg.SessionWindow + time.Second)
	if change := f.visit(t); !change.NewSession {
		t.Error("gap past the window should start a session")
	}
}

func TestRecordVisitPrunesOldVisits(t *testing.T) {
	f := newTrackerFixture(t, nil)

	f.visit(t)
	f.clock.Advance(time.Duration(f.appCfg.VisitWindowDays+5) * 24 * time.Hour)
	change := f.visit(t)
	if change.VisitCount != 1 {
		t.Errorf("VisitCount = %d, want 1 (old visit pruned)", change.VisitCount)
	}

	f.clock.Advance(time.Hour)
	change = f.visit(t)
	if change.VisitCount != 2 {
		t.Errorf("VisitCount = %d, want 2", change.VisitCount)
	}
}

func TestRecoveryVisit(t *testing.T) {
	f := newTrackerFixture(t, func(cfg *models.LoyaltyConfig) {
		cfg.Recovery.Active = true
		cfg.Recovery.Delay = 30
		cfg.Recovery.Frequency = 60
	})

	f.visit(t)

	// Away for 31 days: the return qualifies as recovery.
	f.clock.Advance(31 * 24 * time.Hour)
	change := f.visit(t)
	if !change.Recovery {
		t.Fatal("31 day gap should trigger recovery")
	}

	types := f.sink.types()
	if len(types) != 2 || types[1] != models.EventTypeRecoveryVisit {
		t.Errorf("event types = %v, want plain visit then recovery_visit", types)
	}

	// Another long gap inside the frequency period: no second recovery.
	f.clock.Advance(31 * 24 * time.Hour)
	change = f.visit(t)
	if change.Recovery {
		t.Error("recovery should be rate limited by frequency")
	}
}

func TestRecoveryInactiveConfig(t *testing.T) {
	f := newTrackerFixture(t, nil) // Recovery.Active defaults to false

	f.visit(t)
	f.clock.Advance(90 * 24 * time.Hour)
	if change := f.visit(t); change.Recovery {
		t.Error("recovery must not trigger when disabled")
	}
}

func TestConsumeRecovery(t *testing.T) {
	f := newTrackerFixture(t, func(cfg *models.LoyaltyConfig) {
		cfg.Recovery.Active = true
	})

	f.visit(t)
	f.clock.Advance(31 * 24 * time.Hour)
	f.visit(t)

	pending, err := f.tracker.ConsumeRecovery()
	if err != nil {
		t.Fatalf("ConsumeRecovery: %v", err)
	}
	if !pending {
		t.Fatal("expected a pending recovery")
	}

	pending, err = f.tracker.ConsumeRecovery()
	if err != nil {
		t.Fatalf("ConsumeRecovery: %v", err)
	}
	if pending {
		t.Error("recovery flag should clear after consumption")
	}
}

func TestLoyalReachedEventFiresOnce(t *testing.T) {
	f := newTrackerFixture(t, nil)

	f.visit(t)
	if err := f.tracker.Reconcile(3, 60, true); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	f.clock.Advance(time.Minute)
	change := f.visit(t)
	if change.Tier != models.TierLoyal {
		t.Fatalf("Tier = %q, want LOYAL", change.Tier)
	}
	f.clock.Advance(time.Minute)
	f.visit(t)

	reached := 0
	for _, typ := range f.sink.types() {
		if typ == models.EventTypeLoyalReached {
			reached++
		}
	}
	if reached != 1 {
		t.Errorf("loyal_status_reached fired %d times, want 1", reached)
	}
}

func TestStatePersistsAcrossTrackers(t *testing.T) {
	f := newTrackerFixture(t, nil)

	f.visit(t)
	if err := f.tracker.Reconcile(2, 45, true); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// A fresh tracker over the same persister resumes the session.
	reopened := NewSessionTracker("r1", "v1", f.cfg, f.appCfg, f.persister, f.sink)
	reopened.now = f.clock.Now
	f.clock.Advance(time.Minute)

	change, err := reopened.RecordVisit()
	if err != nil {
		t.Fatalf("RecordVisit: %v", err)
	}
	if change.NewSession {
		t.Error("reloaded state should continue the previous session")
	}
	if change.VisitCount != 2 {
		t.Errorf("VisitCount = %d, want 2", change.VisitCount)
	}
	if change.Tier != models.TierSoft {
		t.Errorf("Tier = %q, want SOFT", change.Tier)
	}
}

func TestNewSessionResetsRewardUsed(t *testing.T) {
	f := newTrackerFixture(t, nil)

	f.visit(t)
	if err := f.tracker.MarkRewardUsed(); err != nil {
		t.Fatalf("MarkRewardUsed: %v", err)
	}
	state, err := f.persister.Load("r1", "v1")
	if err != nil || state == nil {
		t.Fatalf("load state: %v", err)
	}
	if !state.RewardUsedInSession {
		t.Fatal("RewardUsedInSession should persist as true")
	}

	f.clock.Advance(f.appCfg.SessionWindow + time.Hour)
	f.visit(t)
	state, err = f.persister.Load("r1", "v1")
	if err != nil || state == nil {
		t.Fatalf("load state: %v", err)
	}
	if state.RewardUsedInSession {
		t.Error("a new session should reset RewardUsedInSession")
	}
}

func TestTrackerStatusUsesRecoveryFlag(t *testing.T) {
	f := newTrackerFixture(t, func(cfg *models.LoyaltyConfig) {
		cfg.Recovery.Active = true
	})

	f.visit(t)
	f.clock.Advance(31 * 24 * time.Hour)
	f.visit(t)

	offer := f.tracker.Status(20, true, nil)
	if offer.MessageKey != models.MessageKeyRecoveryAvailable {
		t.Errorf("MessageKey = %q, want recovery_available", offer.MessageKey)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	f := newTrackerFixture(t, nil)
	ch := f.tracker.Subscribe()

	f.visit(t)

	select {
	case change := <-ch:
		if !change.NewSession {
			t.Error("expected a new-session change")
		}
	default:
		t.Fatal("no change delivered to subscriber")
	}
}

func TestTrackerGeneratesVisitorID(t *testing.T) {
	f := newTrackerFixture(t, nil)
	anon := NewSessionTracker("r1", "", f.cfg, f.appCfg, f.persister, nil)
	if anon.state.VisitorID == "" {
		t.Error("tracker should mint a visitor id when none is supplied")
	}
}
