package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"rouse/internal/audio"
	"rouse/internal/config"
	domain "rouse/internal/domain/alarm"
	"rouse/internal/logger"
	"rouse/internal/motion"
	"rouse/internal/repository/store"
)

// Ringer is the audio surface the engine drives. audio.Coordinator is the
// production implementation.
type Ringer interface {
	StartRing(ctx context.Context, profile string) error
	StartCue(ctx context.Context) error
	Stop(ctx context.Context) error
	Playing() bool
	CuesEnabled() bool
	Ended() <-chan audio.Handle
	OnEnded(handle audio.Handle) (audio.PlaybackKind, bool)
}

var (
	// ErrScheduleNotFound is returned for operations on an unknown schedule ID.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrScheduleExists is returned when creating a schedule with a taken ID.
	ErrScheduleExists = errors.New("schedule already exists")
	// ErrNoActiveRing is returned for snooze/dismiss commands outside a ring.
	ErrNoActiveRing = errors.New("no active ring")
)

// Config tunes the engine's timing and detection behavior.
type Config struct {
	// DeviceID identifies this device in sync envelopes.
	DeviceID string
	// TickInterval is the evaluation cadence.
	TickInterval time.Duration
	// LeadTime is how long before the trigger the engine pre-arms.
	LeadTime time.Duration
	// EarlyWake fires an armed schedule early on significant movement.
	EarlyWake bool
	// MaxRing bounds an undismissed ring; expiry counts as a natural end.
	MaxRing time.Duration
	// ReRingInterval re-fires after a natural end while presence persists.
	// Zero disables re-ringing.
	ReRingInterval time.Duration
	// MinSleep is how long low-motion presence must last before night cues.
	MinSleep time.Duration
	// WindowSpan bounds the motion sample window by age.
	WindowSpan time.Duration
	// Detector tunes gesture recognition.
	Detector motion.DetectorConfig
	// PresenceThreshold is the per-sample delta marking "user in bed".
	PresenceThreshold float64
	// MovementThreshold is the per-sample delta marking deliberate motion.
	MovementThreshold float64
}

// ConfigFromSettings maps daemon settings onto an engine configuration.
func ConfigFromSettings(cfg *config.Config, deviceID string) Config {
	return Config{
		DeviceID:       deviceID,
		TickInterval:   cfg.TickInterval,
		LeadTime:       cfg.LeadTime,
		EarlyWake:      cfg.EarlyWake,
		MaxRing:        cfg.Audio.MaxRing,
		ReRingInterval: cfg.Audio.ReRingInterval,
		MinSleep:       cfg.Audio.MinSleep,
		WindowSpan:     cfg.Motion.WindowSpan,
		Detector: motion.DetectorConfig{
			SnoozeThreshold:  cfg.Motion.SnoozeThreshold,
			DismissThreshold: cfg.Motion.DismissThreshold,
			DismissHold:      cfg.Motion.DismissHold,
			Cooldown:         cfg.Motion.Cooldown,
			StallTimeout:     cfg.Motion.StallTimeout,
		},
		PresenceThreshold: cfg.Motion.PresenceThreshold,
		MovementThreshold: cfg.Motion.MovementThreshold,
	}
}

// firing tracks the occurrence the engine is currently handling, from arming
// until the next occurrence is computed.
type firing struct {
	// scheduleID is the schedule being fired.
	scheduleID uint64
	// triggerAt is the occurrence's trigger time.
	triggerAt time.Time
	// ringStartedAt is when the current ring began playing.
	ringStartedAt time.Time
	// snoozeUntil is the re-arm deadline while snoozed.
	snoozeUntil time.Time
	// ringEndedAt is when the ring ended naturally; re-ring reference point.
	ringEndedAt time.Time
	// explicitDismiss records a dismiss gesture or command, which always
	// suppresses re-ringing.
	explicitDismiss bool
}

// subscriberBuffer sizes status subscription channels. Slow subscribers
// lose snapshots rather than blocking the engine.
const subscriberBuffer = 16

// Engine owns the schedule set and the alarm state machine.
type Engine struct {
	// cfg is the engine tuning.
	cfg Config
	// repo persists schedules, status and revision.
	repo store.Repository
	// ringer plays rings and cues.
	ringer Ringer

	// commands carries closures executed on the engine goroutine.
	commands chan func(ctx context.Context)
	// samples carries motion samples from the sampler.
	samples chan domain.MotionSample

	// Engine-goroutine-owned state below; never touched from outside the loop.

	// schedules is the authoritative schedule set.
	schedules map[uint64]*domain.Schedule
	// nextID assigns IDs to schedules created without one.
	nextID uint64
	// revision is the sync revision counter, bumped on accepted local mutations.
	revision uint64
	// clockOffsetMS is the remote-reported clock drift, applied to evaluation time.
	clockOffsetMS int64
	// state and enteredAt describe the state machine position.
	state     domain.EngineState
	enteredAt time.Time
	// active is the occurrence in flight, nil while idle.
	active *firing
	// lastFired remembers the last completed occurrence per schedule so the
	// overdue grace window cannot fire the same occurrence twice.
	lastFired map[uint64]time.Time
	// window is the rolling motion window.
	window *motion.Window
	// detector recognizes snooze/dismiss gestures.
	detector *motion.Detector
	// lastMotionAt and present mirror the motion stream for snapshots.
	lastMotionAt time.Time
	present      bool
	// lastSyncAt and lastSyncError mirror the sync layer for snapshots.
	lastSyncAt    time.Time
	lastSyncError string
	// sleepSince is when continuous low-motion presence began; zero otherwise.
	sleepSince time.Time
	// nextCueAt is the earliest time the next night cue may play.
	nextCueAt time.Time

	// subsMu guards subs; subscriptions may be created before Run starts.
	subsMu sync.Mutex
	// subs receives a status snapshot on every transition.
	subs []chan *domain.Status
}

// New builds an engine, restoring persisted state. A repository error other
// than "nothing stored yet" is fatal: the process must not serve with an
// unknown schedule set.
func New(ctx context.Context, cfg Config, repo store.Repository, ringer Ringer) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		repo:      repo,
		ringer:    ringer,
		commands:  make(chan func(ctx context.Context)),
		samples:   make(chan domain.MotionSample, 64),
		schedules: make(map[uint64]*domain.Schedule),
		nextID:    1,
		lastFired: make(map[uint64]time.Time),
		window:    motion.NewWindow(cfg.WindowSpan),
		detector:  motion.NewDetector(cfg.Detector),
	}

	persisted, err := repo.Load(ctx)

	switch {
	case err == nil:
		for _, schedule := range persisted.Schedules {
			e.schedules[schedule.ID] = schedule
			if schedule.ID >= e.nextID {
				e.nextID = schedule.ID + 1
			}
		}

		e.revision = persisted.Revision

		if persisted.Status != nil {
			e.lastSyncAt = persisted.Status.LastSyncAt
			e.lastSyncError = persisted.Status.LastSyncError
		}
	case errors.Is(err, store.ErrNotFound):
		// Fresh device, start empty.
	default:
		return nil, fmt.Errorf("load persisted state: %w", err)
	}

	return e, nil
}

// Samples returns the channel the motion sampler feeds.
func (e *Engine) Samples() chan<- domain.MotionSample {
	return e.samples
}

// Subscribe registers a status subscriber. Every state transition delivers a
// snapshot; subscribers that fall behind lose snapshots rather than blocking
// the engine.
func (e *Engine) Subscribe() <-chan *domain.Status {
	ch := make(chan *domain.Status, subscriberBuffer)

	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()

	return ch
}

// Run executes the command loop until the context is canceled.
// All engine state is mutated exclusively on this goroutine.
func (e *Engine) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "engine")

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	logger.InfoKV(ctx, "Engine running",
		"schedules", len(e.schedules), "revision", e.revision, "lead_time", e.cfg.LeadTime)

	for {
		select {
		case <-ctx.Done():
			// Silence any active playback on the way down.
			if err := e.ringer.Stop(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorKV(ctx, "Stop playback on shutdown", "error", err)
			}

			return ctx.Err()
		case cmd := <-e.commands:
			cmd(ctx)
		case sample := <-e.samples:
			e.onSample(ctx, sample)
		case handle := <-e.ringer.Ended():
			e.onPlaybackEnded(ctx, handle)
		case <-ticker.C:
			e.evaluate(ctx, e.now())
		}
	}
}

// now is the engine's evaluation clock: local wall clock corrected by the
// remote-reported offset, always UTC.
func (e *Engine) now() time.Time {
	return time.Now().UTC().Add(e.offset())
}

// offset is the remote-reported clock correction.
func (e *Engine) offset() time.Duration {
	return time.Duration(e.clockOffsetMS) * time.Millisecond
}

// do runs fn on the engine goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context)) error {
	done := make(chan struct{})

	wrapped := func(loopCtx context.Context) {
		defer close(done)
		fn(loopCtx)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e.commands <- wrapped:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// onSample records a motion sample and, while ringing, consults the
// gesture detector.
func (e *Engine) onSample(ctx context.Context, sample domain.MotionSample) {
	// The sampler stamps with the raw local clock; shift onto the engine
	// clock so the detector's stall check compares like with like.
	sample.At = sample.At.Add(e.offset())

	e.window.Add(sample)
	e.lastMotionAt = sample.At
	e.present = e.window.Present(e.cfg.PresenceThreshold)

	if e.state != domain.StateRinging {
		return
	}

	now := e.now()

	switch e.detector.Evaluate(e.window, now) {
	case motion.GestureSnooze:
		logger.Info(ctx, "Snooze gesture detected")
		e.snooze(ctx, now)
	case motion.GestureDismiss:
		logger.Info(ctx, "Dismiss gesture detected")
		e.dismiss(ctx, now)
	case motion.GestureNone:
	}
}

// onPlaybackEnded handles the player's natural end-of-track notification.
func (e *Engine) onPlaybackEnded(ctx context.Context, handle audio.Handle) {
	kind, active := e.ringer.OnEnded(handle)
	if !active {
		return
	}

	if kind == audio.PlaybackCue {
		logger.Debug(ctx, "Night cue finished")

		return
	}

	if e.state == domain.StateRinging {
		e.endRingNaturally(ctx, e.now())
	}
}

// snapshot assembles the current status.
func (e *Engine) snapshot() *domain.Status {
	var activeID uint64
	if e.active != nil {
		activeID = e.active.scheduleID
	}

	return &domain.Status{
		State:            e.state,
		ActiveScheduleID: activeID,
		EnteredAt:        e.enteredAt,
		LastMotionAt:     e.lastMotionAt,
		Present:          e.present,
		LastSyncAt:       e.lastSyncAt,
		LastSyncError:    e.lastSyncError,
		Revision:         e.revision,
	}
}

// setState transitions the state machine and publishes a snapshot.
func (e *Engine) setState(ctx context.Context, state domain.EngineState, now time.Time) {
	if e.state == state {
		return
	}

	logger.InfoKV(ctx, "State transition", "from", e.state, "to", state)

	e.state = state
	e.enteredAt = now

	e.publish()
	e.persist(ctx)
}

// publish hands a snapshot to every subscriber, dropping it for slow ones.
func (e *Engine) publish() {
	snapshot := e.snapshot()

	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for _, sub := range e.subs {
		select {
		case sub <- snapshot.Clone():
		default:
			// Subscriber is behind, drop the snapshot.
		}
	}
}

// persist writes the durable state. A runtime persistence failure is logged
// and the engine keeps running; losing durability must not silence the alarm.
func (e *Engine) persist(ctx context.Context) {
	state := &store.PersistedState{
		Schedules: e.sortedSchedules(),
		Status:    e.snapshot(),
		Revision:  e.revision,
	}

	if err := e.repo.Save(ctx, state); err != nil {
		logger.ErrorKV(ctx, "Persist state", "error", err)
	}
}

// bumpRevision records an accepted local mutation.
func (e *Engine) bumpRevision() {
	e.revision++
}

// sortedSchedules returns schedule clones ordered by ID.
func (e *Engine) sortedSchedules() []*domain.Schedule {
	schedules := make([]*domain.Schedule, 0, len(e.schedules))
	for _, schedule := range e.schedules {
		schedules = append(schedules, schedule.Clone())
	}

	slices.SortFunc(schedules, func(a, b *domain.Schedule) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return schedules
}
