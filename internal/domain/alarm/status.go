package alarm

import (
	"fmt"
	"time"
)

// EngineState is the alarm engine's position in its state machine.
type EngineState uint8

const (
	// StateIdle means no schedule is due.
	StateIdle EngineState = iota
	// StateArmed means a schedule is inside its lead window, audio not yet playing.
	StateArmed
	// StateRinging means audio is playing and the engine awaits dismissal.
	StateRinging
	// StateSnoozed means audio is stopped and the ring re-arms after the snooze duration.
	StateSnoozed
	// StateDismissed is terminal for one firing; the engine returns to idle
	// once the schedule's next occurrence is computed.
	StateDismissed
)

// stateNames maps engine states to their wire representation.
var stateNames = map[EngineState]string{
	StateIdle:      "idle",
	StateArmed:     "armed",
	StateRinging:   "ringing",
	StateSnoozed:   "snoozed",
	StateDismissed: "dismissed",
}

// String returns the lowercase state name.
func (s EngineState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// MarshalText renders the state as its lowercase name for JSON and logs.
func (s EngineState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase state name.
func (s *EngineState) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state

			return nil
		}
	}

	return fmt.Errorf("unknown engine state %q", text)
}

// Status is an immutable snapshot of the engine published on every transition.
// Consumers receive copies and must never mutate them.
type Status struct {
	// State is the engine state at snapshot time.
	State EngineState `json:"state"`
	// ActiveScheduleID identifies the schedule currently armed, ringing or
	// snoozed. Zero when the engine is idle.
	ActiveScheduleID uint64 `json:"active_schedule_id,omitempty"`
	// EnteredAt is when the current state was entered.
	EnteredAt time.Time `json:"entered_at"`
	// LastMotionAt is the timestamp of the newest motion sample seen.
	LastMotionAt time.Time `json:"last_motion_at"`
	// Present reports whether the motion window currently indicates
	// someone is in bed.
	Present bool `json:"present"`
	// LastSyncAt is when the last sync cycle completed, successfully or not.
	LastSyncAt time.Time `json:"last_sync_at"`
	// LastSyncError holds the most recent sync failure, empty after a
	// successful cycle.
	LastSyncError string `json:"last_sync_error,omitempty"`
	// Revision is the local revision counter at snapshot time.
	Revision uint64 `json:"revision"`
}

// Clone returns a copy of the status to avoid leaking internal references.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}

// MotionSample is one accelerometer reading: a unitless magnitude at a
// point in time. Samples are ephemeral; the engine keeps only a short
// rolling window of them.
type MotionSample struct {
	// At is when the sample was taken.
	At time.Time `json:"at"`
	// Magnitude is the sensor-derived motion scalar.
	Magnitude float64 `json:"magnitude"`
}
