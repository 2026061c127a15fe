package bandit

import (
	"strings"
	"sync"
	"time"

	"airbrain/internal/sampler"
	"airbrain/pkg/models"
)

const maxAttackTrackers = 64

// AttackConfig tunes blacklisting of unresponsive targets.
type AttackConfig struct {
	BlacklistThreshold int           // deauths without a handshake before blacklisting
	BlacklistTTL       time.Duration // how long a blacklisted AP is skipped
}

type attackTracker struct {
	mac          string
	alpha        [models.NumAttackPhases]float64
	beta         [models.NumAttackPhases]float64
	lastPhase    models.AttackPhase
	deauthCount  int
	gotHandshake bool
	firstAttack  time.Time
}

type blacklistEntry struct {
	mac string
	at  time.Time
}

// AttackBandit learns, per target, which of the eight attack techniques
// works, and blacklists targets that absorb deauths without ever
// producing a handshake.
type AttackBandit struct {
	mu  sync.Mutex
	cfg AttackConfig
	rng *sampler.Sampler

	trackers  []attackTracker
	blacklist []blacklistEntry
	now       func() time.Time
}

// NewAttackBandit creates an attack-phase bandit.
func NewAttackBandit(cfg AttackConfig, rng *sampler.Sampler) *AttackBandit {
	if cfg.BlacklistThreshold <= 0 {
		cfg.BlacklistThreshold = 20
	}
	if cfg.BlacklistTTL <= 0 {
		cfg.BlacklistTTL = time.Hour
	}
	if rng == nil {
		rng = sampler.NewFromClock()
	}
	return &AttackBandit{
		cfg: cfg,
		rng: rng,
		now: time.Now,
	}
}

func (a *AttackBandit) tracker(mac string) *attackTracker {
	for i := range a.trackers {
		if strings.EqualFold(a.trackers[i].mac, mac) {
			return &a.trackers[i]
		}
	}
	if len(a.trackers) >= maxAttackTrackers {
		return nil
	}
	t := attackTracker{
		mac:         mac,
		lastPhase:   -1,
		firstAttack: a.now(),
	}
	for ph := 0; ph < models.NumAttackPhases; ph++ {
		t.alpha[ph] = 1
		t.beta[ph] = 1
	}
	a.trackers = append(a.trackers, t)
	return &a.trackers[len(a.trackers)-1]
}

// Select draws one sample per enabled phase from the target's tracker
// and picks the best. PMF-capable targets (WPA3/SAE) authenticate the
// management frames deauth and disassoc rely on, so those phases are
// heavily penalized and the bypass phases boosted instead. A nil
// enabled mask means all phases are allowed.
func (a *AttackBandit) Select(mac string, pmfCapable bool, enabled *[models.NumAttackPhases]bool) models.AttackPhase {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.tracker(mac)
	if t == nil {
		return models.PhaseDeauth
	}

	best := models.AttackPhase(0)
	bestScore := -1.0
	for ph := 0; ph < models.NumAttackPhases; ph++ {
		if enabled != nil && !enabled[ph] {
			continue
		}
		score := a.rng.Beta(t.alpha[ph], t.beta[ph])
		if pmfCapable {
			switch models.AttackPhase(ph) {
			case models.PhaseDeauth, models.PhaseDisassoc:
				score *= 0.05
			case models.PhasePMFBypass, models.PhaseRogueM2:
				score *= 2.0
			}
		}
		if score > bestScore {
			bestScore = score
			best = models.AttackPhase(ph)
		}
	}

	t.lastPhase = best
	return best
}

// Observe feeds one attack outcome back into the target's tracker.
// Failure costs only a fraction of a success so exploration continues,
// and a tracker whose alpha outgrows 50 is rescaled to keep the learned
// ratio while bounding growth.
func (a *AttackBandit) Observe(mac string, phase models.AttackPhase, success bool) {
	if phase < 0 || phase >= models.NumAttackPhases {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.tracker(mac)
	if t == nil {
		return
	}
	if success {
		t.alpha[phase] += 1.0
	} else {
		t.beta[phase] += 0.3
	}
	if t.alpha[phase] > 50 {
		t.alpha[phase] *= 0.8
		t.beta[phase] *= 0.8
	}
}

// LastPhase returns the phase last selected for a target, or -1.
func (a *AttackBandit) LastPhase(mac string) models.AttackPhase {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.trackers {
		if strings.EqualFold(a.trackers[i].mac, mac) {
			return a.trackers[i].lastPhase
		}
	}
	return -1
}

// TrackDeauth counts a deauth against a target. Once the threshold is
// crossed with no handshake the target is blacklisted and its tracker
// dropped, so it starts fresh if retried after the TTL. Returns true
// when the target was just blacklisted.
func (a *AttackBandit) TrackDeauth(mac string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.trackers {
		if !strings.EqualFold(a.trackers[i].mac, mac) {
			continue
		}
		a.trackers[i].deauthCount++
		if a.trackers[i].gotHandshake || a.trackers[i].deauthCount < a.cfg.BlacklistThreshold {
			return false
		}
		if len(a.blacklist) < maxAttackTrackers {
			a.blacklist = append(a.blacklist, blacklistEntry{mac: mac, at: a.now()})
		}
		a.trackers[i] = a.trackers[len(a.trackers)-1]
		a.trackers = a.trackers[:len(a.trackers)-1]
		return true
	}

	if t := a.tracker(mac); t != nil {
		t.deauthCount = 1
	}
	return false
}

// TrackHandshake marks a target as productive, exempting it from
// blacklisting.
func (a *AttackBandit) TrackHandshake(mac string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.trackers {
		if strings.EqualFold(a.trackers[i].mac, mac) {
			a.trackers[i].gotHandshake = true
			return
		}
	}
}

// IsBlacklisted reports whether a target is currently blacklisted.
// Expired entries are pruned on lookup.
func (a *AttackBandit) IsBlacklisted(mac string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for i := range a.blacklist {
		if !strings.EqualFold(a.blacklist[i].mac, mac) {
			continue
		}
		if now.Sub(a.blacklist[i].at) < a.cfg.BlacklistTTL {
			return true
		}
		a.blacklist[i] = a.blacklist[len(a.blacklist)-1]
		a.blacklist = a.blacklist[:len(a.blacklist)-1]
		return false
	}
	return false
}
