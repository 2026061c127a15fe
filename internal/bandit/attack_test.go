package bandit

import (
	"testing"
	"time"

	"airbrain/internal/sampler"
	"airbrain/pkg/models"
)

func TestAttackBanditConvergesOnWinningPhase(t *testing.T) {
	a := NewAttackBandit(AttackConfig{}, sampler.New(27))
	const mac = "aa:bb:cc:00:00:01"

	for i := 0; i < 20; i++ {
		a.Observe(mac, models.PhaseDeauth, true)
	}

	wins := 0
	for i := 0; i < 100; i++ {
		if a.Select(mac, false, nil) == models.PhaseDeauth {
			wins++
		}
	}
	if wins <= 80 {
		t.Fatalf("winning phase chosen %d/100 times, want >80", wins)
	}
}

func TestAttackBanditPMFRouting(t *testing.T) {
	a := NewAttackBandit(AttackConfig{}, sampler.New(28))
	const mac = "aa:bb:cc:00:00:02"

	deauths, bypasses := 0, 0
	for i := 0; i < 200; i++ {
		switch a.Select(mac, true, nil) {
		case models.PhaseDeauth, models.PhaseDisassoc:
			deauths++
		case models.PhasePMFBypass, models.PhaseRogueM2:
			bypasses++
		}
	}
	if deauths >= bypasses {
		t.Fatalf("PMF target routed to deauth/disassoc %d times vs bypass %d", deauths, bypasses)
	}
}

func TestAttackBanditEnabledMask(t *testing.T) {
	a := NewAttackBandit(AttackConfig{}, sampler.New(29))
	const mac = "aa:bb:cc:00:00:03"

	var enabled [models.NumAttackPhases]bool
	enabled[models.PhasePMKID] = true
	enabled[models.PhasePassive] = true

	for i := 0; i < 50; i++ {
		got := a.Select(mac, false, &enabled)
		if got != models.PhasePMKID && got != models.PhasePassive {
			t.Fatalf("disabled phase selected: %v", got)
		}
	}
}

func TestAttackBanditRescaleBoundsGrowth(t *testing.T) {
	a := NewAttackBandit(AttackConfig{}, sampler.New(30))
	const mac = "aa:bb:cc:00:00:04"

	for i := 0; i < 200; i++ {
		a.Observe(mac, models.PhasePMKID, true)
	}
	tr := a.tracker(mac)
	if tr.alpha[models.PhasePMKID] > 51 {
		t.Fatalf("alpha unbounded: %v", tr.alpha[models.PhasePMKID])
	}
	if tr.alpha[models.PhasePMKID] <= tr.beta[models.PhasePMKID] {
		t.Fatalf("rescale lost the learned ratio: alpha=%v beta=%v",
			tr.alpha[models.PhasePMKID], tr.beta[models.PhasePMKID])
	}
}

func TestBlacklistAfterIgnoredDeauths(t *testing.T) {
	a := NewAttackBandit(AttackConfig{BlacklistThreshold: 20, BlacklistTTL: time.Hour}, sampler.New(31))
	const mac = "aa:bb:cc:00:00:05"

	for i := 0; i < 19; i++ {
		if a.TrackDeauth(mac) {
			t.Fatalf("blacklisted after only %d deauths", i+1)
		}
	}
	if a.IsBlacklisted(mac) {
		t.Fatalf("blacklisted before threshold")
	}
	if !a.TrackDeauth(mac) {
		t.Fatalf("not blacklisted at threshold")
	}
	if !a.IsBlacklisted(mac) {
		t.Fatalf("IsBlacklisted false after blacklisting")
	}
}

func TestHandshakeExemptsFromBlacklist(t *testing.T) {
	a := NewAttackBandit(AttackConfig{BlacklistThreshold: 5}, sampler.New(32))
	const mac = "aa:bb:cc:00:00:06"

	a.TrackDeauth(mac)
	a.TrackHandshake(mac)
	for i := 0; i < 50; i++ {
		if a.TrackDeauth(mac) {
			t.Fatalf("productive target blacklisted")
		}
	}
	if a.IsBlacklisted(mac) {
		t.Fatalf("productive target blacklisted")
	}
}

func TestBlacklistExpires(t *testing.T) {
	a := NewAttackBandit(AttackConfig{BlacklistThreshold: 2, BlacklistTTL: time.Hour}, sampler.New(33))
	const mac = "aa:bb:cc:00:00:07"

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.TrackDeauth(mac)
	if !a.TrackDeauth(mac) {
		t.Fatalf("not blacklisted at threshold")
	}
	if !a.IsBlacklisted(mac) {
		t.Fatalf("expected blacklisted")
	}

	now = now.Add(2 * time.Hour)
	if a.IsBlacklisted(mac) {
		t.Fatalf("blacklist did not expire")
	}
	// Tracker was reset on blacklisting, so the retry starts fresh.
	if a.TrackDeauth(mac) {
		t.Fatalf("fresh retry immediately re-blacklisted")
	}
}
