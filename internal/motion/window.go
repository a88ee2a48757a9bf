package motion

import (
	"math"
	"time"

	domain "rouse/internal/domain/alarm"
)

// Window is a rolling window of motion samples bounded by age.
// Samples are kept oldest-first; anything older than the span relative to
// the newest sample is evicted deterministically on every append.
//
// The window is owned by the engine's command loop and is not safe for
// concurrent use.
type Window struct {
	// span is the maximum age of a retained sample.
	span time.Duration
	// samples holds the retained samples, oldest first.
	samples []domain.MotionSample
}

// NewWindow creates a window retaining samples no older than span.
func NewWindow(span time.Duration) *Window {
	return &Window{
		span: span,
	}
}

// Add appends a sample and evicts everything that fell out of the span.
func (w *Window) Add(sample domain.MotionSample) {
	w.samples = append(w.samples, sample)

	cutoff := sample.At.Add(-w.span)

	evict := 0
	for evict < len(w.samples) && w.samples[evict].At.Before(cutoff) {
		evict++
	}

	if evict > 0 {
		w.samples = append(w.samples[:0], w.samples[evict:]...)
	}
}

// Len returns the number of retained samples.
func (w *Window) Len() int {
	return len(w.samples)
}

// Last returns the newest sample, if any.
func (w *Window) Last() (domain.MotionSample, bool) {
	if len(w.samples) == 0 {
		return domain.MotionSample{}, false
	}

	return w.samples[len(w.samples)-1], true
}

// Energy returns the sum of absolute magnitude deltas between consecutive
// samples, the short-term motion metric the gesture detector evaluates.
func (w *Window) Energy() float64 {
	var energy float64

	for i := 1; i < len(w.samples); i++ {
		energy += math.Abs(w.samples[i].Magnitude - w.samples[i-1].Magnitude)
	}

	return energy
}

// DeltasAbove counts consecutive-sample deltas whose absolute value exceeds
// the threshold.
func (w *Window) DeltasAbove(threshold float64) int {
	var count int

	for i := 1; i < len(w.samples); i++ {
		if math.Abs(w.samples[i].Magnitude-w.samples[i-1].Magnitude) > threshold {
			count++
		}
	}

	return count
}

// Present reports whether the window indicates someone is in bed:
// more than one delta above the presence threshold.
func (w *Window) Present(threshold float64) bool {
	return w.DeltasAbove(threshold) > 1
}

// SignificantMovement reports whether the window shows deliberate motion:
// more than two deltas above the movement threshold.
func (w *Window) SignificantMovement(threshold float64) bool {
	return w.DeltasAbove(threshold) > 2
}
