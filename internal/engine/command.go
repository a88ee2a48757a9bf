package engine

import (
	"context"
	"fmt"
	"time"

	domain "rouse/internal/domain/alarm"
	"rouse/internal/logger"
)

// CreateSchedule validates and adds a schedule, assigning an ID when the
// caller provides none. The stored schedule is returned.
func (e *Engine) CreateSchedule(ctx context.Context, schedule *domain.Schedule) (*domain.Schedule, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	var (
		created *domain.Schedule
		cmdErr  error
	)

	err := e.do(ctx, func(loopCtx context.Context) {
		if schedule.ID == 0 {
			schedule.ID = e.nextID
		} else if _, exists := e.schedules[schedule.ID]; exists {
			cmdErr = fmt.Errorf("%w: id %d", ErrScheduleExists, schedule.ID)

			return
		}

		if schedule.ID >= e.nextID {
			e.nextID = schedule.ID + 1
		}

		e.schedules[schedule.ID] = schedule.Clone()
		e.bumpRevision()

		logger.InfoKV(loopCtx, "Schedule created", "schedule_id", schedule.ID, "revision", e.revision)

		e.publish()
		e.persist(loopCtx)
		e.evaluate(loopCtx, e.now())

		created = e.schedules[schedule.ID].Clone()
	})
	if err != nil {
		return nil, err
	}

	return created, cmdErr
}

// UpdateSchedule validates and replaces an existing schedule. Disabling the
// schedule currently firing aborts the firing immediately.
func (e *Engine) UpdateSchedule(ctx context.Context, schedule *domain.Schedule) (*domain.Schedule, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	var (
		updated *domain.Schedule
		cmdErr  error
	)

	err := e.do(ctx, func(loopCtx context.Context) {
		if _, exists := e.schedules[schedule.ID]; !exists {
			cmdErr = fmt.Errorf("%w: id %d", ErrScheduleNotFound, schedule.ID)

			return
		}

		e.schedules[schedule.ID] = schedule.Clone()
		// The edited schedule is a different trigger; its firing history
		// no longer applies.
		delete(e.lastFired, schedule.ID)
		e.bumpRevision()

		logger.InfoKV(loopCtx, "Schedule updated", "schedule_id", schedule.ID, "revision", e.revision)

		now := e.now()

		if e.active != nil && e.active.scheduleID == schedule.ID && !schedule.Enabled {
			e.abortFiring(loopCtx, now)
		}

		e.publish()
		e.persist(loopCtx)
		e.evaluate(loopCtx, now)

		updated = e.schedules[schedule.ID].Clone()
	})
	if err != nil {
		return nil, err
	}

	return updated, cmdErr
}

// DeleteSchedule removes a schedule. Deleting the schedule currently firing
// aborts the firing immediately.
func (e *Engine) DeleteSchedule(ctx context.Context, id uint64) error {
	var cmdErr error

	err := e.do(ctx, func(loopCtx context.Context) {
		if _, exists := e.schedules[id]; !exists {
			cmdErr = fmt.Errorf("%w: id %d", ErrScheduleNotFound, id)

			return
		}

		delete(e.schedules, id)
		delete(e.lastFired, id)
		e.bumpRevision()

		logger.InfoKV(loopCtx, "Schedule deleted", "schedule_id", id, "revision", e.revision)

		if e.active != nil && e.active.scheduleID == id {
			e.abortFiring(loopCtx, e.now())
		}

		e.publish()
		e.persist(loopCtx)
	})
	if err != nil {
		return err
	}

	return cmdErr
}

// Schedules returns a copy of the schedule set, ordered by ID.
func (e *Engine) Schedules(ctx context.Context) ([]*domain.Schedule, error) {
	var schedules []*domain.Schedule

	err := e.do(ctx, func(context.Context) {
		schedules = e.sortedSchedules()
	})
	if err != nil {
		return nil, err
	}

	return schedules, nil
}

// Snooze is the explicit snooze command, equivalent to the snooze gesture.
func (e *Engine) Snooze(ctx context.Context) error {
	var cmdErr error

	err := e.do(ctx, func(loopCtx context.Context) {
		if e.state != domain.StateRinging {
			cmdErr = ErrNoActiveRing

			return
		}

		e.snooze(loopCtx, e.now())
	})
	if err != nil {
		return err
	}

	return cmdErr
}

// Dismiss is the explicit dismiss command, equivalent to the dismiss
// gesture. It also cancels a snoozed ring.
func (e *Engine) Dismiss(ctx context.Context) error {
	var cmdErr error

	err := e.do(ctx, func(loopCtx context.Context) {
		if e.state != domain.StateRinging && e.state != domain.StateSnoozed {
			cmdErr = ErrNoActiveRing

			return
		}

		e.dismiss(loopCtx, e.now())
	})
	if err != nil {
		return err
	}

	return cmdErr
}

// Status returns the current snapshot.
func (e *Engine) Status(ctx context.Context) (*domain.Status, error) {
	var status *domain.Status

	err := e.do(ctx, func(context.Context) {
		status = e.snapshot()
	})
	if err != nil {
		return nil, err
	}

	return status, nil
}

// Envelope assembles the local sync envelope.
func (e *Engine) Envelope(ctx context.Context) (*domain.SyncEnvelope, error) {
	var envelope *domain.SyncEnvelope

	err := e.do(ctx, func(context.Context) {
		envelope = e.envelopeLocked()
	})
	if err != nil {
		return nil, err
	}

	return envelope, nil
}

// ApplyEnvelope reconciles a remote envelope against local state using
// whole-envelope last-writer-wins on the revision counter. It returns the
// winning envelope and how the local side related to the remote one.
// Applying the same envelope twice is a no-op (revisions become equal).
func (e *Engine) ApplyEnvelope(ctx context.Context, remote *domain.SyncEnvelope) (*domain.SyncEnvelope, domain.RevisionOrder, error) {
	var (
		winner *domain.SyncEnvelope
		order  domain.RevisionOrder
	)

	err := e.do(ctx, func(loopCtx context.Context) {
		order = domain.CompareRevisions(e.revision, remote.Revision)

		if order == domain.RevisionBehind {
			e.adoptEnvelope(loopCtx, remote)
		}

		winner = e.envelopeLocked()
	})
	if err != nil {
		return nil, domain.RevisionEqual, err
	}

	return winner, order, nil
}

// ReportSync records the outcome of a sync cycle in the status. err nil
// clears the last sync error. The sync layer never mutates schedules here;
// that goes through ApplyEnvelope.
func (e *Engine) ReportSync(ctx context.Context, at time.Time, syncErr error) error {
	return e.do(ctx, func(loopCtx context.Context) {
		e.lastSyncAt = at

		if syncErr != nil {
			e.lastSyncError = syncErr.Error()
		} else {
			e.lastSyncError = ""
		}

		e.publish()
	})
}

// envelopeLocked builds the envelope from loop-owned state.
func (e *Engine) envelopeLocked() *domain.SyncEnvelope {
	return &domain.SyncEnvelope{
		DeviceID:      e.cfg.DeviceID,
		Revision:      e.revision,
		ClockOffsetMS: e.clockOffsetMS,
		Schedules:     e.sortedSchedules(),
		Status:        e.snapshot(),
	}
}

// adoptEnvelope replaces local schedules wholesale with the remote set.
func (e *Engine) adoptEnvelope(ctx context.Context, remote *domain.SyncEnvelope) {
	logger.InfoKV(ctx, "Adopting remote envelope",
		"local_revision", e.revision, "remote_revision", remote.Revision)

	schedules := make(map[uint64]*domain.Schedule, len(remote.Schedules))
	nextID := uint64(1)

	for _, schedule := range remote.Schedules {
		cloned := schedule.Clone()
		if err := cloned.Validate(); err != nil {
			logger.WarnKV(ctx, "Skipping invalid remote schedule", "schedule_id", cloned.ID, "error", err)

			continue
		}

		schedules[cloned.ID] = cloned
		if cloned.ID >= nextID {
			nextID = cloned.ID + 1
		}
	}

	e.schedules = schedules
	e.nextID = nextID
	e.revision = remote.Revision
	e.clockOffsetMS = remote.ClockOffsetMS

	now := e.now()

	// The remote set may have removed or disabled the schedule mid-flight.
	if e.active != nil {
		if schedule, ok := e.schedules[e.active.scheduleID]; !ok || !schedule.Enabled {
			e.abortFiring(ctx, now)
		}
	}

	e.publish()
	e.persist(ctx)
	e.evaluate(ctx, now)
}
