package engine

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	domain "rouse/internal/domain/alarm"
)

// feedPresence pushes a short burst of low-amplitude motion marking the user
// in bed without significant movement.
func feedPresence(e *Engine) {
	magnitude := 1.0

	for range 4 {
		e.Samples() <- domain.MotionSample{At: time.Now().UTC(), Magnitude: magnitude}

		synctest.Wait()

		magnitude += 0.018
	}
}

// TestEngine_NightCuePlaysAfterMinimumSleep verifies the cue gating: low-motion
// presence shorter than the minimum sleep produces no cue, and once the
// minimum and the maximum cue spacing have both passed exactly one cue plays.
func TestEngine_NightCuePlaysAfterMinimumSleep(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ringer := newFakeRinger()
		ringer.cuesEnabled = true

		cfg := testConfig()
		cfg.MinSleep = 30 * time.Minute

		e, _ := startEngine(t, cfg, new(memRepository), ringer)

		trigger := time.Now().UTC().Truncate(time.Minute).Add(3 * time.Hour)

		_, err := e.CreateSchedule(context.Background(), scheduleAt(trigger))
		require.NoError(t, err)

		feedPresence(e)

		// Sleeping, but not long enough yet: no cue regardless of the random
		// cue spacing.
		time.Sleep(25 * time.Minute)
		synctest.Wait()

		_, cues, _ := ringer.counters()
		require.Zero(t, cues)

		// Past the minimum sleep and past the maximum cue spacing. The cue
		// keeps playing, so exactly one start.
		time.Sleep(25 * time.Minute)
		synctest.Wait()

		rings, cues, _ := ringer.counters()
		require.Zero(t, rings)
		require.Equal(t, 1, cues)
	})
}

// TestEngine_NoCueInsideQuietZone keeps cues silent when the next firing is
// closer than the pre-alarm quiet zone, and while the alarm rings.
func TestEngine_NoCueInsideQuietZone(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ringer := newFakeRinger()
		ringer.cuesEnabled = true

		cfg := testConfig()
		cfg.MinSleep = 5 * time.Minute

		e, _ := startEngine(t, cfg, new(memRepository), ringer)

		trigger := time.Now().UTC().Truncate(time.Minute).Add(40 * time.Minute)

		_, err := e.CreateSchedule(context.Background(), scheduleAt(trigger))
		require.NoError(t, err)

		feedPresence(e)

		// The firing is never more than 40 minutes away, so the whole night
		// sits inside the quiet zone.
		sleepUntil(trigger.Add(-time.Minute))
		synctest.Wait()

		_, cues, _ := ringer.counters()
		require.Zero(t, cues)

		// Ringing suppresses cues too.
		sleepUntil(trigger.Add(time.Second))
		synctest.Wait()
		requireState(t, e, domain.StateRinging)

		time.Sleep(3 * time.Minute)
		synctest.Wait()

		_, cues, _ = ringer.counters()
		require.Zero(t, cues)
	})
}

// TestEngine_NoCueBeyondHorizon keeps cues silent when no firing comes up
// within the cue horizon.
func TestEngine_NoCueBeyondHorizon(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ringer := newFakeRinger()
		ringer.cuesEnabled = true

		cfg := testConfig()
		cfg.MinSleep = 5 * time.Minute

		e, _ := startEngine(t, cfg, new(memRepository), ringer)

		trigger := time.Now().UTC().Truncate(time.Minute).Add(13 * time.Hour)

		_, err := e.CreateSchedule(context.Background(), scheduleAt(trigger))
		require.NoError(t, err)

		feedPresence(e)

		// Well past the minimum sleep and the maximum cue spacing, yet the
		// firing stays beyond the horizon the whole time.
		time.Sleep(50 * time.Minute)
		synctest.Wait()

		_, cues, _ := ringer.counters()
		require.Zero(t, cues)
	})
}
