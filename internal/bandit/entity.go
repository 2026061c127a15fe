package bandit

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// MaxEntities bounds the entity arena. New targets are dropped once full.
const MaxEntities = 200

const (
	staleAfter   = 7 * 24 * time.Hour
	archiveAfter = 30 * 24 * time.Hour
	evictAfter   = 90 * 24 * time.Hour
)

// Status is an entity lifecycle state.
type Status uint8

const (
	StatusActive Status = iota
	StatusStale
	StatusArchived
	StatusFlagged
)

func (s Status) String() string {
	switch s {
	case StatusStale:
		return "stale"
	case StatusArchived:
		return "archived"
	case StatusFlagged:
		return "flagged"
	default:
		return "active"
	}
}

// Handle is a stable index into the arena. Callers hold handles, never
// pointers, so slots can be recycled without dangling references.
type Handle int32

// NoHandle marks an invalid or missing entity reference.
const NoHandle Handle = -1

// Entity is one learned target. Copies are returned to callers via View;
// mutation goes through arena methods only.
type Entity struct {
	MAC          string
	SSID         string
	Vendor       string
	Channel      int
	Beacon       int // bucketed to 50ms
	Encryption   string
	SoftIdentity string

	Alpha       float64
	Beta        float64
	ClientBoost float64
	Status      Status

	FirstSeen    time.Time
	LastSeen     time.Time
	LastAttacked time.Time

	TotalInteractions int
	TotalSuccesses    int

	signal SignalTracker
}

// Arena is the fixed-capacity entity table.
type Arena struct {
	slots [MaxEntities]Entity
	inUse [MaxEntities]bool
	count int
	now   func() time.Time
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{now: time.Now}
}

// Len returns the number of entities in use.
func (a *Arena) Len() int {
	return a.count
}

// Find returns the handle for a hardware address, if tracked.
func (a *Arena) Find(mac string) (Handle, bool) {
	for i := range a.slots {
		if a.inUse[i] && strings.EqualFold(a.slots[i].MAC, mac) {
			return Handle(i), true
		}
	}
	return NoHandle, false
}

// Touch returns the handle for a hardware address, creating the entity
// with a neutral prior if it is new. Returns NoHandle when the table is
// full; existing learning is never displaced by a newcomer.
func (a *Arena) Touch(mac string) Handle {
	if h, ok := a.Find(mac); ok {
		a.slots[h].LastSeen = a.now()
		return h
	}
	for i := range a.slots {
		if a.inUse[i] {
			continue
		}
		now := a.now()
		a.slots[i] = Entity{
			MAC:       mac,
			Alpha:     1,
			Beta:      1,
			Status:    StatusActive,
			FirstSeen: now,
			LastSeen:  now,
			signal:    SignalTracker{ewma: signalInitLevel},
		}
		a.inUse[i] = true
		a.count++
		return Handle(i)
	}
	return NoHandle
}

func (a *Arena) get(h Handle) *Entity {
	if h < 0 || int(h) >= MaxEntities || !a.inUse[h] {
		return nil
	}
	return &a.slots[h]
}

// View returns a copy of the entity behind a handle.
func (a *Arena) View(h Handle) (Entity, bool) {
	e := a.get(h)
	if e == nil {
		return Entity{}, false
	}
	return *e, true
}

// Handles returns the in-use handles in slot order.
func (a *Arena) Handles() []Handle {
	out := make([]Handle, 0, a.count)
	for i := range a.slots {
		if a.inUse[i] {
			out = append(out, Handle(i))
		}
	}
	return out
}

// UpdateMetadata records beacon-derived metadata, recomputes the soft
// identity, and reports whether the fingerprint drifted from the one
// previously recorded.
func (a *Arena) UpdateMetadata(h Handle, ssid, vendor string, channel, beacon int, encryption string) bool {
	e := a.get(h)
	if e == nil {
		return false
	}
	bucketed := (beacon / 50) * 50
	next := softIdentity(vendor, bucketed, channel, encryption)
	drift := e.SoftIdentity != "" && identityDiff(e.SoftIdentity, next) > 4

	if ssid != "" {
		e.SSID = ssid
	}
	if vendor != "" {
		e.Vendor = vendor
	}
	e.Channel = channel
	e.Beacon = bucketed
	e.Encryption = encryption
	e.SoftIdentity = next
	return drift
}

// UpdateSignal folds one RSSI sample into the entity's tracker and
// returns the resulting robustness weight.
func (a *Arena) UpdateSignal(h Handle, rssi float64) float64 {
	e := a.get(h)
	if e == nil {
		return 0
	}
	return e.signal.Update(rssi)
}

// Robustness returns the entity's current signal robustness weight.
func (a *Arena) Robustness(h Handle) float64 {
	e := a.get(h)
	if e == nil {
		return 0
	}
	return e.signal.Robustness()
}

// SetClientBoost sets the client-count score multiplier.
func (a *Arena) SetClientBoost(h Handle, boost float64) {
	if e := a.get(h); e != nil {
		e.ClientBoost = boost
	}
}

// Flag marks an entity as off-limits for target selection.
func (a *Arena) Flag(h Handle) {
	if e := a.get(h); e != nil {
		e.Status = StatusFlagged
	}
}

// MarkAttacked stamps the last-attacked time.
func (a *Arena) MarkAttacked(h Handle) {
	if e := a.get(h); e != nil {
		e.LastAttacked = a.now()
	}
}

// Observe updates the entity's prior from one attack outcome. The
// robustness weight is clamped to [0.1, 1.0] so even the noisiest
// observation moves the prior a little, and a stale entity that is
// producing outcomes again is returned to active.
func (a *Arena) Observe(h Handle, success bool, robustness float64) {
	e := a.get(h)
	if e == nil {
		return
	}
	w := robustness
	if w < 0.1 {
		w = 0.1
	}
	if w > 1.0 {
		w = 1.0
	}

	if success {
		e.Alpha += w
		e.TotalSuccesses++
	} else {
		e.Beta += w
	}
	e.TotalInteractions++
	e.LastSeen = a.now()

	if e.Status == StatusStale {
		e.Status = StatusActive
	}
}

// GarbageCollect evicts entities both older and more dormant than the
// eviction threshold and decays the priors of stale/archived ones toward
// the neutral (1,1). Returns the number of evicted entities.
func (a *Arena) GarbageCollect() int {
	now := a.now()
	evicted := 0
	for i := range a.slots {
		if !a.inUse[i] {
			continue
		}
		e := &a.slots[i]
		age := now.Sub(e.FirstSeen)
		dormant := now.Sub(e.LastSeen)

		if age > evictAfter && dormant > evictAfter {
			a.inUse[i] = false
			a.count--
			evicted++
			continue
		}
		decayEntity(e, dormant)
	}
	return evicted
}

func decayEntity(e *Entity, dormant time.Duration) {
	days := dormant.Hours() / 24
	switch {
	case dormant > archiveAfter:
		e.Status = StatusArchived
		const lambda = 0.7
		e.Alpha = (1-lambda)*e.Alpha + lambda
		e.Beta = (1-lambda)*e.Beta + lambda
	case dormant > staleAfter:
		e.Status = StatusStale
		lambda := 0.3 * (days / 7)
		if lambda > 1 {
			lambda = 1
		}
		e.Alpha = (1-lambda)*e.Alpha + lambda
		e.Beta = (1-lambda)*e.Beta + lambda
	}
}

// softIdentity hashes the behavioral fingerprint into 16 hex chars. Two
// hashes (whole string, second half) keep single-field changes from
// flipping only a couple of characters.
func softIdentity(vendor string, beacon, channel int, encryption string) string {
	buf := fmt.Sprintf("%s_%d_%d_%s", vendor, beacon/50, channel, encryption)
	return fmt.Sprintf("%08x%08x", fnv1a(buf), fnv1a(buf[len(buf)/2:]))
}

func fnv1a(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func identityDiff(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	diff := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	return diff
}
