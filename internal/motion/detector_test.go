package motion

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	domain "rouse/internal/domain/alarm"
)

// testDetectorConfig returns tuning shared by the detector tests.
func testDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SnoozeThreshold:  0.05,
		DismissThreshold: 0.2,
		DismissHold:      2 * time.Second,
		Cooldown:         3 * time.Second,
		StallTimeout:     2 * time.Second,
	}
}

// fillWindow populates a window so its energy roughly equals the target at base time.
func fillWindow(base time.Time, energy float64) *Window {
	w := NewWindow(10 * time.Second)

	// Two samples whose single delta equals the requested energy.
	w.Add(domain.MotionSample{At: base.Add(-time.Second), Magnitude: 1.0})
	w.Add(domain.MotionSample{At: base, Magnitude: 1.0 + energy})

	return w
}

// TestDetector_SnoozeSpike verifies a single firm shake yields exactly one snooze.
func TestDetector_SnoozeSpike(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC)
	d := NewDetector(testDetectorConfig())
	w := fillWindow(base, 0.1)

	require.Equal(t, GestureSnooze, d.Evaluate(w, base))

	// The same physical motion is swallowed by the cooldown.
	require.Equal(t, GestureNone, d.Evaluate(w, base.Add(time.Second)))

	// After the cooldown, new motion registers again.
	w = fillWindow(base.Add(4*time.Second), 0.1)
	require.Equal(t, GestureSnooze, d.Evaluate(w, base.Add(4*time.Second)))
}

// TestDetector_SustainedDismiss verifies dismissal requires the hold duration
// and fires exactly once.
func TestDetector_SustainedDismiss(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC)
	d := NewDetector(testDetectorConfig())

	// First evaluation above the threshold starts the hold, no gesture yet.
	require.Equal(t, GestureNone, d.Evaluate(fillWindow(base, 0.3), base))

	// Still inside the hold.
	at := base.Add(time.Second)
	require.Equal(t, GestureNone, d.Evaluate(fillWindow(at, 0.3), at))

	// Hold satisfied: exactly one dismiss.
	at = base.Add(2 * time.Second)
	require.Equal(t, GestureDismiss, d.Evaluate(fillWindow(at, 0.3), at))

	// Cooldown swallows the rest of the sustained motion.
	at = base.Add(3 * time.Second)
	require.Equal(t, GestureNone, d.Evaluate(fillWindow(at, 0.3), at))
}

// TestDetector_DismissAttemptDoesNotSnooze ensures energy above both thresholds
// never downgrades to a snooze while the hold runs.
func TestDetector_DismissAttemptDoesNotSnooze(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC)
	d := NewDetector(testDetectorConfig())

	require.Equal(t, GestureNone, d.Evaluate(fillWindow(base, 0.3), base))

	// Energy drops below the dismiss threshold before the hold completes:
	// the vigorous motion decays into a snooze-level shake.
	at := base.Add(time.Second)
	require.Equal(t, GestureSnooze, d.Evaluate(fillWindow(at, 0.1), at))
}

// TestDetector_StalledStream verifies a quiet sensor contributes no gestures.
func TestDetector_StalledStream(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC)
	d := NewDetector(testDetectorConfig())

	// No samples at all.
	w := NewWindow(10 * time.Second)
	require.True(t, d.Stalled(w, base))
	require.Equal(t, GestureNone, d.Evaluate(w, base))

	// Samples present but stale.
	w = fillWindow(base, 0.3)
	at := base.Add(5 * time.Second)
	require.True(t, d.Stalled(w, at))
	require.Equal(t, GestureNone, d.Evaluate(w, at))
}

// TestSampler_EmitsAndDrops exercises the polling loop with a fake sensor.
func TestSampler_EmitsAndDrops(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		reads := 0
		sensor := SensorFunc(func(context.Context) (float64, error) {
			reads++

			return float64(reads), nil
		})

		sampler := NewSampler(sensor, 100*time.Millisecond)
		out := make(chan domain.MotionSample, 1)

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})

		go func() {
			defer close(done)

			_ = sampler.Run(ctx, out)
		}()

		// First tick produces a sample.
		time.Sleep(100 * time.Millisecond)
		synctest.Wait()

		sample := <-out
		require.InDelta(t, 1.0, sample.Magnitude, 1e-9)

		// With nobody draining, further ticks drop instead of blocking.
		time.Sleep(time.Second)
		synctest.Wait()
		require.Len(t, out, 1)

		cancel()
		<-done
	})
}
