package motion

import (
	"time"
)

// Gesture is a motion pattern recognized while the alarm rings.
type Gesture uint8

const (
	// GestureNone means no gesture was recognized.
	GestureNone Gesture = iota
	// GestureSnooze is a single firm shake above the snooze threshold.
	GestureSnooze
	// GestureDismiss is vigorous motion sustained above the dismiss
	// threshold for the configured hold duration.
	GestureDismiss
)

// String returns a short name for logging.
func (g Gesture) String() string {
	switch g {
	case GestureSnooze:
		return "snooze"
	case GestureDismiss:
		return "dismiss"
	default:
		return "none"
	}
}

// DetectorConfig tunes the gesture detector thresholds and timing.
type DetectorConfig struct {
	// SnoozeThreshold is the window energy above which a snooze gesture fires.
	SnoozeThreshold float64
	// DismissThreshold is the window energy that, sustained, fires a dismiss.
	DismissThreshold float64
	// DismissHold is how long the energy must stay above DismissThreshold.
	DismissHold time.Duration
	// Cooldown suspends the detector after a recognized gesture so a single
	// physical motion never produces two transitions.
	Cooldown time.Duration
	// StallTimeout marks the sensor stream stalled when the newest sample
	// is older than this.
	StallTimeout time.Duration
}

// Detector recognizes snooze and dismiss gestures in the rolling window.
// It is only consulted while the engine rings and is owned by the engine's
// command loop; it is not safe for concurrent use.
type Detector struct {
	// cfg holds the tuning parameters.
	cfg DetectorConfig
	// cooldownUntil suppresses recognition after a fired gesture.
	cooldownUntil time.Time
	// dismissSince is when the energy first exceeded the dismiss threshold
	// without dropping below it. Zero when it is not currently exceeded.
	dismissSince time.Time
}

// NewDetector creates a detector with the provided tuning.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{
		cfg: cfg,
	}
}

// Stalled reports whether the sensor stream has gone quiet: no sample at
// all, or the newest one older than the stall timeout. A stalled detector
// contributes no gestures; dismissal by command still works.
func (d *Detector) Stalled(w *Window, now time.Time) bool {
	last, ok := w.Last()
	if !ok {
		return true
	}

	return now.Sub(last.At) > d.cfg.StallTimeout
}

// Evaluate inspects the window and returns at most one gesture.
// After a gesture fires the detector stays silent for the cooldown interval.
func (d *Detector) Evaluate(w *Window, now time.Time) Gesture {
	if d.Stalled(w, now) {
		d.dismissSince = time.Time{}

		return GestureNone
	}

	if now.Before(d.cooldownUntil) {
		d.dismissSince = time.Time{}

		return GestureNone
	}

	energy := w.Energy()

	if energy >= d.cfg.DismissThreshold {
		if d.dismissSince.IsZero() {
			d.dismissSince = now
		}

		if now.Sub(d.dismissSince) >= d.cfg.DismissHold {
			d.fire(now)

			return GestureDismiss
		}

		// Sustained motion in progress; do not fall through to snooze,
		// or every dismiss attempt would snooze first.
		return GestureNone
	}

	d.dismissSince = time.Time{}

	if energy >= d.cfg.SnoozeThreshold {
		d.fire(now)

		return GestureSnooze
	}

	return GestureNone
}

// Reset clears transient recognition state, called when the engine leaves
// the ringing state for reasons other than a gesture.
func (d *Detector) Reset() {
	d.dismissSince = time.Time{}
	d.cooldownUntil = time.Time{}
}

// fire records a recognized gesture and starts the cooldown.
func (d *Detector) fire(now time.Time) {
	d.dismissSince = time.Time{}
	d.cooldownUntil = now.Add(d.cfg.Cooldown)
}
