package mood

import (
	"strings"

	"airbrain/internal/logger"
	"airbrain/pkg/models"
)

// Mood is the coarse behavioral regime derived from epoch statistics.
type Mood int

const (
	Starting Mood = iota
	Ready
	Normal
	Bored
	Sad
	Angry
	Lonely
	Excited
	Grateful
	Sleeping
)

func (m Mood) String() string {
	switch m {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Normal:
		return "normal"
	case Bored:
		return "bored"
	case Sad:
		return "sad"
	case Angry:
		return "angry"
	case Lonely:
		return "lonely"
	case Excited:
		return "excited"
	case Grateful:
		return "grateful"
	case Sleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Frustration names the dominant failure cause across uncaptured targets.
type Frustration int

const (
	FrustGeneric Frustration = iota
	FrustWPA3
	FrustNoClients
	FrustWeakSignal
	FrustDeauthsIgnored
)

func (f Frustration) String() string {
	switch f {
	case FrustWPA3:
		return "wpa3_everywhere"
	case FrustNoClients:
		return "no_clients"
	case FrustWeakSignal:
		return "weak_signal"
	case FrustDeauthsIgnored:
		return "deauths_ignored"
	default:
		return "generic"
	}
}

// Target is the mood machine's view of one visible access point.
type Target struct {
	MAC        string
	RSSI       int
	Clients    int
	Encryption string
	Quality    models.HandshakeQuality
}

// Config tunes the mood thresholds.
type Config struct {
	BoredNumEpochs   int
	SadNumEpochs     int
	ExcitedNumEpochs int
	MaxMisses        int

	FilterWeakSignal bool
	MinRSSI          int
}

// Machine derives a mood once per cycle from the finalized epoch
// counters. Escalation past bored is gated by the conquest check:
// having captured everything in sight is satisfaction, not failure.
type Machine struct {
	cfg         Config
	mood        Mood
	frustration Frustration
}

// NewMachine creates a mood machine in the starting state.
func NewMachine(cfg Config) *Machine {
	if cfg.BoredNumEpochs <= 0 {
		cfg.BoredNumEpochs = 15
	}
	if cfg.SadNumEpochs <= 0 {
		cfg.SadNumEpochs = 25
	}
	if cfg.ExcitedNumEpochs <= 0 {
		cfg.ExcitedNumEpochs = 10
	}
	if cfg.MaxMisses <= 0 {
		cfg.MaxMisses = 5
	}
	if cfg.MinRSSI == 0 {
		cfg.MinRSSI = -75
	}
	return &Machine{cfg: cfg, mood: Starting}
}

// Mood returns the current mood.
func (m *Machine) Mood() Mood {
	return m.mood
}

// Frustration returns the reason diagnosed when the machine last
// entered sad or angry.
func (m *Machine) Frustration() Frustration {
	return m.frustration
}

// BoredAfter returns the bored threshold in epochs.
func (m *Machine) BoredAfter() int { return m.cfg.BoredNumEpochs }

// SadAfter returns the sad threshold in epochs.
func (m *Machine) SadAfter() int { return m.cfg.SadNumEpochs }

// Transition is the result of one mood update.
type Transition struct {
	Mood     Mood
	Prev     Mood
	Changed  bool
	Escalate bool // fire the all-targets escalation burst
	Reason   Frustration
}

// Update runs the transition function against the finalized epoch and
// the currently visible targets. Call once per cycle, after
// Epoch.Advance and before Epoch.Reset.
func (m *Machine) Update(e *Epoch, targets []Target) Transition {
	next := m.next(e, targets)
	return m.set(next, e, targets)
}

// ForceLonely is the blind-cycle override: with zero visible targets
// there is nothing to learn from the usual transition function.
func (m *Machine) ForceLonely(e *Epoch, targets []Target) Transition {
	return m.set(Lonely, e, targets)
}

// SetSleeping is driven externally (night hours, user request); the
// machine never self-transitions into sleep.
func (m *Machine) SetSleeping(e *Epoch, targets []Target) Transition {
	return m.set(Sleeping, e, targets)
}

// SetReady marks startup complete.
func (m *Machine) SetReady() {
	m.mood = Ready
}

// ShouldEscalate reports whether a recurring escalation burst is due:
// the first burst fires on the transition into angry, later ones every
// 5 epochs while the anger persists.
func (m *Machine) ShouldEscalate(epochNum int) bool {
	return m.mood == Angry && epochNum%5 == 0
}

func (m *Machine) set(next Mood, e *Epoch, targets []Target) Transition {
	tr := Transition{Mood: next, Prev: m.mood}
	if next == m.mood {
		tr.Reason = m.frustration
		return tr
	}

	tr.Changed = true
	m.mood = next

	if next == Sad || next == Angry {
		m.frustration = m.diagnose(e, targets)
	} else {
		m.frustration = FrustGeneric
	}
	tr.Reason = m.frustration

	if next == Angry {
		tr.Escalate = true
	}

	logger.Infof("Mood: %s -> %s (frustration=%s)", tr.Prev, next, m.frustration)
	return tr
}

func (m *Machine) next(e *Epoch, targets []Target) Mood {
	stale := e.Missed > m.cfg.MaxMisses

	switch {
	case stale:
		// With everything captured, missed recons don't matter; there
		// is nothing left to recon.
		if m.conquestComplete(targets) {
			return Bored
		}
		factor := float64(e.Missed) / float64(m.cfg.MaxMisses)
		if factor >= 2.0 {
			if m.hasSupportNetwork(e, factor) {
				return Grateful
			}
			return Angry
		}
		if m.hasSupportNetwork(e, 1.0) {
			return Grateful
		}
		return Lonely

	case e.SadFor > 0:
		if m.conquestComplete(targets) {
			return Bored
		}
		factor := float64(e.InactiveFor) / float64(m.cfg.SadNumEpochs)
		if m.hasSupportNetwork(e, factor) {
			return Grateful
		}
		if factor >= 2.0 {
			return Angry
		}
		return Sad

	case e.BoredFor > 0:
		factor := float64(e.InactiveFor) / float64(m.cfg.BoredNumEpochs)
		if m.hasSupportNetwork(e, factor) {
			return Grateful
		}
		if m.conquestComplete(targets) {
			return Bored
		}
		// Still work to do: keep hunting instead of sulking.
		return Normal

	case e.ActiveFor >= m.cfg.ExcitedNumEpochs:
		return Excited

	case e.ActiveFor >= 5 && m.hasSupportNetwork(e, 5.0):
		return Grateful

	default:
		return Normal
	}
}

func (m *Machine) hasSupportNetwork(e *Epoch, factor float64) bool {
	return e.TotBondFactor >= factor
}

// conquestComplete reports whether every visible target already has a
// full or PMKID capture. Partial captures count as work remaining since
// they could be upgraded.
func (m *Machine) conquestComplete(targets []Target) bool {
	if len(targets) == 0 {
		return false
	}
	needed := 0
	captured := 0
	for _, t := range targets {
		if m.cfg.FilterWeakSignal && t.RSSI < m.cfg.MinRSSI {
			continue
		}
		if t.Quality.Crackable() {
			captured++
		} else {
			needed++
		}
	}
	if needed > 0 {
		return false
	}
	return captured > 0
}

// diagnose finds the dominant failure cause across uncaptured targets.
func (m *Machine) diagnose(e *Epoch, targets []Target) Frustration {
	if len(targets) == 0 {
		return FrustGeneric
	}

	uncaptured, noClients, wpa3, weak := 0, 0, 0, 0
	for _, t := range targets {
		if m.cfg.FilterWeakSignal && t.RSSI < m.cfg.MinRSSI {
			continue
		}
		if t.Quality.Crackable() {
			continue
		}
		uncaptured++
		if t.Clients == 0 {
			noClients++
		}
		if strings.Contains(t.Encryption, "WPA3") || strings.Contains(t.Encryption, "SAE") {
			wpa3++
		}
		if t.RSSI < -70 && t.RSSI >= m.cfg.MinRSSI {
			weak++
		}
	}
	if uncaptured == 0 {
		return FrustGeneric
	}

	switch {
	case wpa3 == uncaptured:
		return FrustWPA3
	case noClients == uncaptured:
		return FrustNoClients
	case weak == uncaptured:
		return FrustWeakSignal
	case e.Deauths > 10 && e.Handshakes == 0:
		return FrustDeauthsIgnored
	default:
		return FrustGeneric
	}
}
