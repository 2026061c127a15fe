package mood

import (
	"time"

	"airbrain/pkg/models"
)

// Epoch accumulates one control cycle's activity counters. Advance
// finalizes the streaks at the end of a cycle; Reset clears the
// per-cycle counters for the next one. The streak counters persist
// across resets.
type Epoch struct {
	Num     int
	started time.Time

	didDeauth    bool
	didAssociate bool
	didHandshake bool
	anyActivity  bool

	Deauths      int
	Associations int
	Handshakes   int
	Hops         int
	Missed       int
	Slept        time.Duration

	InactiveFor int
	ActiveFor   int
	BoredFor    int
	SadFor      int
	BlindFor    int

	// TotBondFactor measures peer support from companion units; it
	// offsets miss-driven frustration in the mood machine.
	TotBondFactor float64

	now func() time.Time
}

// NewEpoch starts epoch 0.
func NewEpoch() *Epoch {
	e := &Epoch{now: time.Now}
	e.started = e.now()
	return e
}

// TrackDeauth counts deauth frames sent this epoch.
func (e *Epoch) TrackDeauth(n int) {
	e.Deauths += n
	e.didDeauth = true
	e.anyActivity = true
}

// TrackAssociation counts association attempts this epoch.
func (e *Epoch) TrackAssociation(n int) {
	e.Associations += n
	e.didAssociate = true
	e.anyActivity = true
}

// TrackHandshake counts captured handshakes this epoch.
func (e *Epoch) TrackHandshake(n int) {
	e.Handshakes += n
	e.didHandshake = true
	e.anyActivity = true
}

// TrackHop counts a channel hop. Hopping clears the per-channel attack
// flags so each dwell starts neutral.
func (e *Epoch) TrackHop() {
	e.Hops++
	e.didDeauth = false
	e.didAssociate = false
}

// TrackMiss counts a failed environment query or vanished target.
func (e *Epoch) TrackMiss(n int) {
	e.Missed += n
}

// TrackSleep accumulates time slept this epoch.
func (e *Epoch) TrackSleep(d time.Duration) {
	e.Slept += d
}

// TrackBlind counts a cycle with zero visible targets and returns the
// current blind streak.
func (e *Epoch) TrackBlind() int {
	e.BlindFor++
	return e.BlindFor
}

// ResetBlind clears the blind streak once targets reappear.
func (e *Epoch) ResetBlind() {
	e.BlindFor = 0
}

// Active reports whether anything happened this epoch.
func (e *Epoch) Active() bool {
	return e.anyActivity || e.didHandshake
}

// Advance finalizes the epoch's streak counters against the configured
// bored/sad thresholds and returns the epoch summary. Counters stay
// readable until Reset so the mood machine can inspect them.
func (e *Epoch) Advance(boredAfter, sadAfter int) models.EpochSummary {
	duration := e.now().Sub(e.started)

	if !e.Active() {
		e.InactiveFor++
		e.ActiveFor = 0
	} else {
		e.ActiveFor++
		e.InactiveFor = 0
		e.SadFor = 0
		e.BoredFor = 0
	}

	switch {
	case e.InactiveFor >= sadAfter:
		e.BoredFor = 0
		e.SadFor++
	case e.InactiveFor >= boredAfter:
		e.SadFor = 0
		e.BoredFor++
	default:
		e.SadFor = 0
		e.BoredFor = 0
	}

	return models.EpochSummary{
		Epoch:        e.Num,
		Duration:     duration,
		Deauths:      e.Deauths,
		Associations: e.Associations,
		Handshakes:   e.Handshakes,
		Hops:         e.Hops,
		Misses:       e.Missed,
		Slept:        e.Slept,
		InactiveFor:  e.InactiveFor,
		ActiveFor:    e.ActiveFor,
		BlindFor:     e.BlindFor,
	}
}

// Reset clears the per-cycle counters and begins the next epoch.
func (e *Epoch) Reset() {
	e.Num++
	e.Deauths = 0
	e.Associations = 0
	e.Handshakes = 0
	e.Hops = 0
	e.Missed = 0
	e.Slept = 0
	e.didDeauth = false
	e.didAssociate = false
	e.didHandshake = false
	e.anyActivity = false
	e.started = e.now()
}
