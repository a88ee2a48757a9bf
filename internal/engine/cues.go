package engine

import (
	"context"
	"math/rand/v2"
	"time"

	domain "rouse/internal/domain/alarm"
	"rouse/internal/logger"
)

// Night cue timing: cues only play when an alarm is coming up tonight
// (within cueHorizon) but not imminently (outside cueQuietZone), and they
// recur at random intervals between cueDelayMin and cueDelayMax.
const (
	cueHorizon   = 12 * time.Hour
	cueQuietZone = 50 * time.Minute
	cueDelayMin  = 15 * time.Minute
	cueDelayMax  = 45 * time.Minute
)

// evaluateCues plays quiet audio cues at random times during the night.
// They require the user to have been sleeping (continuous low-motion
// presence) for at least the configured minimum.
func (e *Engine) evaluateCues(ctx context.Context, now time.Time) {
	if !e.ringer.CuesEnabled() {
		return
	}

	// Track continuous low-motion presence.
	sleeping := e.present && !e.window.SignificantMovement(e.cfg.MovementThreshold)
	if !sleeping {
		e.sleepSince = time.Time{}

		return
	}

	if e.sleepSince.IsZero() {
		e.sleepSince = now
		e.nextCueAt = now.Add(randomCueDelay())
	}

	// Cues never compete with a ring and never play while one is close.
	if e.state != domain.StateIdle && e.state != domain.StateArmed {
		return
	}

	if e.ringer.Playing() {
		return
	}

	if now.Sub(e.sleepSince) < e.cfg.MinSleep {
		return
	}

	if now.Before(e.nextCueAt) {
		return
	}

	if !e.cueWindowOpen(now) {
		return
	}

	if err := e.ringer.StartCue(ctx); err != nil {
		logger.WarnKV(ctx, "Start night cue", "error", err)
	} else {
		logger.Info(ctx, "Night cue playing")
	}

	e.nextCueAt = now.Add(randomCueDelay())
}

// cueWindowOpen reports whether the next firing is inside the cue horizon
// but outside the pre-alarm quiet zone.
func (e *Engine) cueWindowOpen(now time.Time) bool {
	_, triggerAt := e.dueCandidate(now)
	if triggerAt.IsZero() {
		return false
	}

	until := triggerAt.Sub(now)

	return until > cueQuietZone && until <= cueHorizon
}

// randomCueDelay picks the spacing to the next cue attempt.
func randomCueDelay() time.Duration {
	return cueDelayMin + rand.N(cueDelayMax-cueDelayMin)
}
