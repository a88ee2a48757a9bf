package engine

import (
	"context"
	"time"

	domain "rouse/internal/domain/alarm"
	"rouse/internal/logger"
)

// evaluate is the clock-tick entry point. It re-derives the due schedule
// from scratch on every call, so no state here depends on having seen every
// intermediate tick.
func (e *Engine) evaluate(ctx context.Context, now time.Time) {
	switch e.state {
	case domain.StateIdle:
		e.evaluateIdle(ctx, now)
	case domain.StateArmed:
		e.evaluateArmed(ctx, now)
	case domain.StateRinging:
		e.evaluateRinging(ctx, now)
	case domain.StateSnoozed:
		e.evaluateSnoozed(ctx, now)
	case domain.StateDismissed:
		e.evaluateDismissed(ctx, now)
	}

	e.evaluateCues(ctx, now)
}

// dueCandidate finds the schedule to fire next: the one with the earliest
// upcoming (or recently missed) occurrence, ties broken by lowest ID.
// Occurrences already completed are skipped so the grace window cannot fire
// the same occurrence twice.
func (e *Engine) dueCandidate(now time.Time) (*domain.Schedule, time.Time) {
	var (
		best   *domain.Schedule
		bestAt time.Time
	)

	// Looking slightly into the past catches triggers that a clock jump or a
	// sleep/wake cycle stepped over.
	horizon := now.Add(-e.cfg.LeadTime)

	for _, schedule := range e.schedules {
		occurrence := schedule.NextOccurrence(horizon)
		if occurrence.IsZero() {
			continue
		}

		if fired, ok := e.lastFired[schedule.ID]; ok && occurrence.Equal(fired) {
			occurrence = schedule.NextOccurrence(occurrence)
			if occurrence.IsZero() {
				continue
			}
		}

		switch {
		case best == nil,
			occurrence.Before(bestAt),
			occurrence.Equal(bestAt) && schedule.ID < best.ID:
			best, bestAt = schedule, occurrence
		}
	}

	return best, bestAt
}

// evaluateIdle arms the engine when a schedule enters its lead window.
func (e *Engine) evaluateIdle(ctx context.Context, now time.Time) {
	candidate, triggerAt := e.dueCandidate(now)
	if candidate == nil {
		return
	}

	if triggerAt.After(now.Add(e.cfg.LeadTime)) {
		return
	}

	e.active = &firing{
		scheduleID: candidate.ID,
		triggerAt:  triggerAt,
	}

	logger.InfoKV(ctx, "Armed", "schedule_id", candidate.ID, "trigger_at", triggerAt)
	e.setState(ctx, domain.StateArmed, now)

	// An overdue trigger (clock jump past it) rings immediately.
	if !triggerAt.After(now) {
		e.startRing(ctx, now)
	}
}

// evaluateArmed waits for the trigger time, tracks a better candidate
// appearing, and optionally fires early on significant movement.
func (e *Engine) evaluateArmed(ctx context.Context, now time.Time) {
	schedule, ok := e.schedules[e.active.scheduleID]
	if !ok || !schedule.Enabled {
		e.abortFiring(ctx, now)

		return
	}

	// A schedule edit may have produced an earlier (or different) winner.
	if candidate, triggerAt := e.dueCandidate(now); candidate != nil &&
		!triggerAt.After(now.Add(e.cfg.LeadTime)) &&
		(candidate.ID != e.active.scheduleID || !triggerAt.Equal(e.active.triggerAt)) {
		e.active = &firing{
			scheduleID: candidate.ID,
			triggerAt:  triggerAt,
		}

		logger.InfoKV(ctx, "Re-armed", "schedule_id", candidate.ID, "trigger_at", triggerAt)
		e.publish()
	}

	if !e.active.triggerAt.After(now) {
		e.startRing(ctx, now)

		return
	}

	// Waking during light sleep beats waking at the exact minute.
	if e.cfg.EarlyWake && e.window.SignificantMovement(e.cfg.MovementThreshold) {
		logger.InfoKV(ctx, "Firing early on movement", "schedule_id", e.active.scheduleID)
		e.startRing(ctx, now)
	}
}

// evaluateRinging enforces the maximum ring duration.
func (e *Engine) evaluateRinging(ctx context.Context, now time.Time) {
	if _, ok := e.schedules[e.active.scheduleID]; !ok {
		e.abortFiring(ctx, now)

		return
	}

	if e.cfg.MaxRing > 0 && now.Sub(e.active.ringStartedAt) >= e.cfg.MaxRing {
		logger.InfoKV(ctx, "Ring timed out", "schedule_id", e.active.scheduleID)
		e.endRingNaturally(ctx, now)
	}
}

// evaluateSnoozed re-fires once the snooze deadline passes. The deadline is
// re-checked against the wall clock rather than armed as a one-shot timer,
// so a missed tick only delays the re-fire by one tick.
func (e *Engine) evaluateSnoozed(ctx context.Context, now time.Time) {
	schedule, ok := e.schedules[e.active.scheduleID]
	if !ok || !schedule.Enabled {
		e.abortFiring(ctx, now)

		return
	}

	if !now.Before(e.active.snoozeUntil) {
		logger.InfoKV(ctx, "Snooze elapsed", "schedule_id", e.active.scheduleID)
		e.startRing(ctx, now)
	}
}

// evaluateDismissed decides between re-ringing and finalizing the firing.
func (e *Engine) evaluateDismissed(ctx context.Context, now time.Time) {
	if e.active == nil {
		e.setState(ctx, domain.StateIdle, now)

		return
	}

	if e.active.explicitDismiss || e.cfg.ReRingInterval <= 0 {
		e.finalizeFiring(ctx, now)

		return
	}

	// The ring ended on its own. Give the user the re-ring interval to get
	// up; if the sensor still sees them in bed afterwards, ring again.
	if now.Sub(e.active.ringEndedAt) < e.cfg.ReRingInterval {
		return
	}

	if e.present {
		logger.InfoKV(ctx, "User still in bed, ringing again", "schedule_id", e.active.scheduleID)
		e.startRing(ctx, now)

		return
	}

	e.finalizeFiring(ctx, now)
}

// startRing begins (or re-begins) audio for the active firing and enters
// the ringing state. Playback failure is logged but does not stop the state
// machine: snooze and dismiss must keep working even with a broken speaker.
func (e *Engine) startRing(ctx context.Context, now time.Time) {
	schedule := e.schedules[e.active.scheduleID]

	profile := ""
	if schedule != nil {
		profile = schedule.Ramp
	}

	if err := e.ringer.StartRing(ctx, profile); err != nil {
		logger.ErrorKV(ctx, "Start ring audio", "error", err, "schedule_id", e.active.scheduleID)
	}

	e.active.ringStartedAt = now
	e.active.ringEndedAt = time.Time{}
	e.detector.Reset()

	e.setState(ctx, domain.StateRinging, now)
}

// snooze stops audio and parks the firing until the snooze deadline.
func (e *Engine) snooze(ctx context.Context, now time.Time) {
	if err := e.ringer.Stop(ctx); err != nil {
		logger.ErrorKV(ctx, "Stop ring audio", "error", err)
	}

	snoozeFor := domain.DefaultSnooze
	if schedule, ok := e.schedules[e.active.scheduleID]; ok && schedule.Snooze > 0 {
		snoozeFor = schedule.Snooze
	}

	e.active.snoozeUntil = now.Add(snoozeFor)

	logger.InfoKV(ctx, "Snoozed", "schedule_id", e.active.scheduleID, "until", e.active.snoozeUntil)
	e.setState(ctx, domain.StateSnoozed, now)
}

// dismiss stops audio and finalizes the firing explicitly, suppressing any re-ring.
func (e *Engine) dismiss(ctx context.Context, now time.Time) {
	if err := e.ringer.Stop(ctx); err != nil {
		logger.ErrorKV(ctx, "Stop ring audio", "error", err)
	}

	e.active.explicitDismiss = true

	e.setState(ctx, domain.StateDismissed, now)
	e.finalizeFiring(ctx, now)
}

// endRingNaturally records a ring that ended without an explicit dismiss
// (end of track or ring timeout) and enters the dismissed state, from which
// the re-ring policy decides what happens next.
func (e *Engine) endRingNaturally(ctx context.Context, now time.Time) {
	if err := e.ringer.Stop(ctx); err != nil {
		logger.ErrorKV(ctx, "Stop ring audio", "error", err)
	}

	e.active.ringEndedAt = now

	e.setState(ctx, domain.StateDismissed, now)

	// With re-ringing disabled there is nothing to wait for.
	if e.cfg.ReRingInterval <= 0 {
		e.finalizeFiring(ctx, now)
	}
}

// finalizeFiring completes the active occurrence: records it as fired,
// disables spent one-shots and returns to idle.
func (e *Engine) finalizeFiring(ctx context.Context, now time.Time) {
	if e.active != nil {
		e.lastFired[e.active.scheduleID] = e.active.triggerAt

		if schedule, ok := e.schedules[e.active.scheduleID]; ok && schedule.Repeat == domain.RepeatNone {
			// One-shots never fire twice; disabling keeps them visible
			// instead of silently dropping them.
			schedule.Enabled = false
			e.bumpRevision()

			logger.InfoKV(ctx, "One-shot schedule completed", "schedule_id", schedule.ID)
		}
	}

	e.active = nil

	e.setState(ctx, domain.StateIdle, now)
}

// abortFiring handles the active schedule being disabled or deleted
// mid-flight: stop audio immediately and clear the firing without marking
// the occurrence completed.
func (e *Engine) abortFiring(ctx context.Context, now time.Time) {
	if err := e.ringer.Stop(ctx); err != nil {
		logger.ErrorKV(ctx, "Stop ring audio", "error", err)
	}

	logger.InfoKV(ctx, "Firing aborted", "schedule_id", e.active.scheduleID)

	e.active = nil
	e.detector.Reset()

	e.setState(ctx, domain.StateIdle, now)
}
