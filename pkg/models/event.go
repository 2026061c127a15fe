package models

import "time"

// EventType identifies a scheduler event.
type EventType string

const (
	EventMoodChange    EventType = "mood_change"
	EventAttackPhase   EventType = "attack_phase"
	EventEpochSummary  EventType = "epoch_summary"
	EventChannelChange EventType = "channel_change"
	EventHandshake     EventType = "handshake_captured"
)

// Event is one scheduler observability event.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Mood      string        `json:"mood,omitempty"`
	PrevMood  string        `json:"prev_mood,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Target    string        `json:"target,omitempty"`
	SSID      string        `json:"ssid,omitempty"`
	Phase     string        `json:"phase,omitempty"`
	Channel   int           `json:"channel,omitempty"`
	Quality   string        `json:"quality,omitempty"`
	Epoch     *EpochSummary `json:"epoch,omitempty"`
}

// EpochSummary is the per-epoch counter snapshot attached to epoch events.
type EpochSummary struct {
	Epoch        int           `json:"epoch"`
	Duration     time.Duration `json:"duration"`
	Deauths      int           `json:"deauths"`
	Associations int           `json:"associations"`
	Handshakes   int           `json:"handshakes"`
	Hops         int           `json:"hops"`
	Misses       int           `json:"misses"`
	Slept        time.Duration `json:"slept"`
	InactiveFor  int           `json:"inactive_for"`
	ActiveFor    int           `json:"active_for"`
	BlindFor     int           `json:"blind_for"`
	VisibleAPs   int           `json:"visible_aps"`
	Mood         string        `json:"mood"`
}
