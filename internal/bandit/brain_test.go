package bandit

import (
	"testing"
	"time"

	"airbrain/internal/sampler"
)

func newTestBrain(seed uint64) *Brain {
	return NewBrain(Config{}, sampler.New(seed))
}

func TestDecidePrefersProvenTarget(t *testing.T) {
	b := newTestBrain(11)

	good := b.Touch("aa:00:00:00:00:01")
	bad := b.Touch("aa:00:00:00:00:02")
	for i := 0; i < 30; i++ {
		b.ObserveOutcome(good, true, 1.0)
		b.ObserveOutcome(bad, false, 1.0)
	}

	wins := 0
	for i := 0; i < 100; i++ {
		if b.Decide([]Handle{bad, good}, ActionDeauth) == good {
			wins++
		}
	}
	if wins < 80 {
		t.Fatalf("proven target chosen %d/100 times", wins)
	}
}

func TestDecideSkipsFlaggedAndArchived(t *testing.T) {
	b := newTestBrain(12)

	flagged := b.Touch("aa:00:00:00:00:03")
	archived := b.Touch("aa:00:00:00:00:04")
	ok := b.Touch("aa:00:00:00:00:05")

	b.Flag(flagged)
	b.mu.Lock()
	b.arena.get(archived).Status = StatusArchived
	b.mu.Unlock()

	for i := 0; i < 50; i++ {
		if got := b.Decide([]Handle{flagged, archived, ok}, ActionProbe); got != ok {
			t.Fatalf("decide returned excluded entity %v", got)
		}
	}
}

func TestDecideEmptyCandidates(t *testing.T) {
	b := newTestBrain(13)
	if got := b.Decide(nil, ActionWait); got != NoHandle {
		t.Fatalf("decide on empty set = %v", got)
	}
}

func TestClientBoostOutweighsCost(t *testing.T) {
	b := newTestBrain(14)

	busy := b.Touch("aa:00:00:00:00:06")
	empty := b.Touch("aa:00:00:00:00:07")
	b.SetClientBoost(busy, 2.0)
	b.SetClientBoost(empty, 0.15)

	wins := 0
	for i := 0; i < 100; i++ {
		if b.Decide([]Handle{empty, busy}, ActionDeauth) == busy {
			wins++
		}
	}
	if wins < 90 {
		t.Fatalf("busy target chosen only %d/100 times", wins)
	}
}

func TestSelectModeReturnsValidMode(t *testing.T) {
	b := newTestBrain(15)
	for i := 0; i < 200; i++ {
		m := b.SelectMode()
		if m < 0 || m >= ModeCount {
			t.Fatalf("invalid mode %v", m)
		}
	}
}

func TestSelectModeLearnsFromOutcomes(t *testing.T) {
	b := newTestBrain(16)
	// Drown the initial priors in one mode's favor.
	for i := 0; i < 60; i++ {
		b.ObserveMode(ModePassiveDiscovery, true)
		b.ObserveMode(ModeActiveTargeting, false)
		b.ObserveMode(ModeCooldown, false)
		b.ObserveMode(ModeSyncWindow, false)
	}

	picks := 0
	for i := 0; i < 100; i++ {
		if b.SelectMode() == ModePassiveDiscovery {
			picks++
		}
	}
	if picks < 70 {
		t.Fatalf("learned mode picked %d/100 times", picks)
	}
}

func TestSelectModeStampsWindow(t *testing.T) {
	b := newTestBrain(17)
	before := time.Now()
	m := b.SelectMode()
	cur, started := b.CurrentMode()
	if cur != m {
		t.Fatalf("current mode %v != selected %v", cur, m)
	}
	if started.Before(before) {
		t.Fatalf("window start not stamped")
	}
}
