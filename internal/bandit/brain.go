package bandit

import (
	"math"
	"sync"
	"time"

	"airbrain/internal/sampler"
)

// Mode is a coarse operating regime.
type Mode int

const (
	ModePassiveDiscovery Mode = iota
	ModeActiveTargeting
	ModeCooldown
	ModeSyncWindow

	ModeCount = 4
)

func (m Mode) String() string {
	switch m {
	case ModePassiveDiscovery:
		return "passive_discovery"
	case ModeActiveTargeting:
		return "active_targeting"
	case ModeCooldown:
		return "cooldown"
	case ModeSyncWindow:
		return "sync_window"
	default:
		return "unknown"
	}
}

// Action describes the cost profile of one engagement type.
type Action struct {
	Name       string
	CostTime   float64
	CostEnergy float64
	CostRisk   float64
}

// Predefined engagement actions.
var (
	ActionProbe       = Action{Name: "probe", CostTime: 2.0, CostEnergy: 0.05, CostRisk: 0.1}
	ActionPassiveScan = Action{Name: "passive_scan", CostTime: 5.0, CostEnergy: 0.02, CostRisk: 0.01}
	ActionAssociate   = Action{Name: "associate", CostTime: 3.0, CostEnergy: 0.08, CostRisk: 0.2}
	ActionDeauth      = Action{Name: "deauth", CostTime: 1.0, CostEnergy: 0.03, CostRisk: 0.3}
	ActionWait        = Action{Name: "wait", CostTime: 0.1, CostEnergy: 0, CostRisk: 0}
)

// Config tunes the target bandit's scoring.
type Config struct {
	CostWeightEnergy float64
	CostWeightRisk   float64
	ExplorationBonus float64
}

// Brain owns the entity arena and the target and mode bandits. All
// access is serialized through one mutex held only for lookups and
// updates, never across blocking calls.
type Brain struct {
	mu  sync.Mutex
	cfg Config
	rng *sampler.Sampler

	arena *Arena

	modeAlpha   [ModeCount]float64
	modeBeta    [ModeCount]float64
	currentMode Mode
	modeStarted time.Time

	totalDecisions  uint64
	totalHandshakes uint64
	startedAt       time.Time
	now             func() time.Time
}

// NewBrain creates a brain with neutral entity priors and a mode bandit
// biased toward active targeting and away from cooldown/sync.
func NewBrain(cfg Config, rng *sampler.Sampler) *Brain {
	if cfg.CostWeightEnergy <= 0 {
		cfg.CostWeightEnergy = 20.0
	}
	if cfg.CostWeightRisk <= 0 {
		cfg.CostWeightRisk = 5.0
	}
	if cfg.ExplorationBonus <= 0 {
		cfg.ExplorationBonus = 0.3
	}
	if rng == nil {
		rng = sampler.NewFromClock()
	}

	b := &Brain{
		cfg:       cfg,
		rng:       rng,
		arena:     NewArena(),
		startedAt: time.Now(),
		now:       time.Now,
	}
	for i := 0; i < ModeCount; i++ {
		b.modeAlpha[i] = 1
		b.modeBeta[i] = 1
	}
	b.modeAlpha[ModeActiveTargeting] = 5
	b.modeBeta[ModeCooldown] = 3
	b.modeBeta[ModeSyncWindow] = 3
	return b
}

// Touch finds or creates the entity for a hardware address.
func (b *Brain) Touch(mac string) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.Touch(mac)
}

// Find returns the handle for a hardware address without creating it.
func (b *Brain) Find(mac string) (Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.Find(mac)
}

// View returns a copy of the entity behind a handle.
func (b *Brain) View(h Handle) (Entity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.View(h)
}

// Handles snapshots the in-use handles.
func (b *Brain) Handles() []Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.Handles()
}

// EntityCount returns the number of tracked entities.
func (b *Brain) EntityCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.Len()
}

// UpdateMetadata records observed AP metadata and reports identity drift.
func (b *Brain) UpdateMetadata(h Handle, ssid, vendor string, channel, beacon int, encryption string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.UpdateMetadata(h, ssid, vendor, channel, beacon, encryption)
}

// UpdateSignal folds one RSSI sample and returns the robustness weight.
func (b *Brain) UpdateSignal(h Handle, rssi float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.UpdateSignal(h, rssi)
}

// SetClientBoost sets the client-count multiplier for a target.
func (b *Brain) SetClientBoost(h Handle, boost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arena.SetClientBoost(h, boost)
}

// Flag excludes an entity from selection.
func (b *Brain) Flag(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arena.Flag(h)
}

// MarkAttacked stamps the last-attacked time.
func (b *Brain) MarkAttacked(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arena.MarkAttacked(h)
}

// ObserveOutcome feeds one attack outcome back into a target's prior.
func (b *Brain) ObserveOutcome(h Handle, success bool, robustness float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arena.Observe(h, success, robustness)
	if success {
		b.totalHandshakes++
	}
}

// GarbageCollect decays dormant entities and evicts expired ones.
func (b *Brain) GarbageCollect() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.GarbageCollect()
}

// score draws one Thompson sample for an entity under an action's cost.
func (b *Brain) score(e *Entity, action Action) float64 {
	prob := b.rng.Beta(e.Alpha, e.Beta)

	cost := action.CostTime +
		action.CostEnergy*b.cfg.CostWeightEnergy +
		action.CostRisk*b.cfg.CostWeightRisk

	ess := e.Alpha + e.Beta
	exploration := b.cfg.ExplorationBonus / math.Sqrt(ess)

	clientFactor := e.ClientBoost
	if clientFactor <= 0 {
		clientFactor = 1.0
	}

	return (prob + exploration) * clientFactor / (cost + 0.01)
}

// Decide picks the best candidate for an action by Thompson sampling.
// Flagged and archived entities are skipped. Ties go to the earliest
// candidate in iteration order.
func (b *Brain) Decide(candidates []Handle, action Action) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	best := NoHandle
	bestScore := -1.0
	for _, h := range candidates {
		e := b.arena.get(h)
		if e == nil || e.Status == StatusFlagged || e.Status == StatusArchived {
			continue
		}
		if s := b.score(e, action); s > bestScore {
			bestScore = s
			best = h
		}
	}
	if best != NoHandle {
		b.totalDecisions++
	}
	return best
}

// SelectMode draws one sample per operating mode and picks the best.
// When the draws are all within a narrow spread the pick carries no
// signal, so a mode is chosen uniformly at random instead.
func (b *Brain) SelectMode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()

	var samples [ModeCount]float64
	best := ModePassiveDiscovery
	maxS := -1.0
	for i := 0; i < ModeCount; i++ {
		samples[i] = b.rng.Beta(b.modeAlpha[i], b.modeBeta[i])
		if samples[i] > maxS {
			maxS = samples[i]
			best = Mode(i)
		}
	}

	minS := samples[0]
	for i := 1; i < ModeCount; i++ {
		if samples[i] < minS {
			minS = samples[i]
		}
	}
	if maxS-minS < 0.1 {
		best = Mode(int(b.rng.Uniform() * ModeCount))
		if best >= ModeCount {
			best = ModeCount - 1
		}
	}

	b.currentMode = best
	b.modeStarted = b.now()
	return best
}

// ObserveMode feeds a mode window's outcome back into the mode bandit.
func (b *Brain) ObserveMode(mode Mode, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mode < 0 || mode >= ModeCount {
		return
	}
	if success {
		b.modeAlpha[mode]++
	} else {
		b.modeBeta[mode]++
	}
}

// CurrentMode returns the mode chosen by the last SelectMode call and
// when the window started.
func (b *Brain) CurrentMode() (Mode, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentMode, b.modeStarted
}

// TotalHandshakes returns the lifetime success count.
func (b *Brain) TotalHandshakes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalHandshakes
}
