package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rouse/internal/config"
	"rouse/internal/logger"
)

// PlaybackKind distinguishes what the coordinator is currently playing.
type PlaybackKind uint8

const (
	// PlaybackRing is a full alarm ring with a volume ramp.
	PlaybackRing PlaybackKind = iota + 1
	// PlaybackCue is a quiet night cue.
	PlaybackCue
)

// cueFadeIn is how long a night cue takes to reach its target volume.
const cueFadeIn = 2 * time.Second

// gainStep is the cadence of gain adjustments during ramps and fades.
const gainStep = 250 * time.Millisecond

// Coordinator is the audio surface the alarm engine drives. It owns ringtone
// selection, the volume ramp while a ring plays and the fade-out on stop.
// At most one playback (ring or cue) runs at a time.
type Coordinator struct {
	// player performs the actual playback.
	player Player
	// ringtones picks the ring file.
	ringtones *Picker
	// cues picks the night cue file; nil when cues are disabled.
	cues *Picker
	// ramps maps profile names to ramp shapes.
	ramps map[string]Ramp
	// fadeOut is the smoothstep fade applied on every stop.
	fadeOut time.Duration
	// cueVolume is the night cue target gain.
	cueVolume float64

	// mu protects the playback bookkeeping below.
	mu sync.Mutex
	// current is the active playback handle, zero when silent.
	current Handle
	// kind describes the active playback.
	kind PlaybackKind
	// lastGain is the most recent gain applied, the fade-out starting point.
	lastGain float64
	// cancelRamp stops the gain loop of the active playback.
	cancelRamp context.CancelFunc
	// cancelFade cuts an in-flight fade-out short.
	cancelFade context.CancelFunc
	// fades tracks in-flight fade-out goroutines for Drain.
	fades sync.WaitGroup
}

// NewCoordinator builds a coordinator from the audio configuration.
func NewCoordinator(player Player, cfg config.AudioConfig) *Coordinator {
	ramps := make(map[string]Ramp, len(cfg.Ramps))
	for name, rc := range cfg.Ramps {
		ramps[name] = Ramp{Slope: rc.Slope, Knee: rc.Knee, KneeSlope: rc.KneeSlope}
	}

	c := &Coordinator{
		player:    player,
		ringtones: NewPicker(cfg.SoundsDir),
		ramps:     ramps,
		fadeOut:   cfg.FadeOut,
		cueVolume: cfg.CueVolume,
	}

	if cfg.CuesDir != "" {
		c.cues = NewPicker(cfg.CuesDir)
	}

	return c
}

// CuesEnabled reports whether a cue directory is configured.
func (c *Coordinator) CuesEnabled() bool {
	return c.cues != nil
}

// StartRing begins a ring with the named volume ramp profile.
// An unknown profile falls back to the default one.
func (c *Coordinator) StartRing(ctx context.Context, profile string) error {
	file, err := c.ringtones.Pick()
	if err != nil {
		return fmt.Errorf("pick ringtone: %w", err)
	}

	ramp, ok := c.ramps[profile]
	if !ok {
		ramp = c.ramps["default"]
	}

	return c.start(ctx, file, PlaybackRing, ramp.Gain)
}

// StartCue begins a quiet night cue with a short fade-in.
func (c *Coordinator) StartCue(ctx context.Context) error {
	if c.cues == nil {
		return fmt.Errorf("pick cue: %w", ErrNoAudioFiles)
	}

	file, err := c.cues.Pick()
	if err != nil {
		return fmt.Errorf("pick cue: %w", err)
	}

	gain := func(elapsed time.Duration) float64 {
		return c.cueVolume * Smoothstep(float64(elapsed)/float64(cueFadeIn))
	}

	return c.start(ctx, file, PlaybackCue, gain)
}

// Playing reports whether a playback is active.
func (c *Coordinator) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current != 0
}

// Ended exposes the player's natural end-of-track notifications.
// Callers hand received handles to OnEnded to learn whether they belong to
// the active playback.
func (c *Coordinator) Ended() <-chan Handle {
	return c.player.Ended()
}

// OnEnded records a natural end of track. It returns the kind of the ended
// playback and whether the handle was the active one; stale handles from
// playbacks already stopped report false.
func (c *Coordinator) OnEnded(handle Handle) (PlaybackKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if handle == 0 || handle != c.current {
		return 0, false
	}

	kind := c.kind

	c.clearLocked()

	return kind, true
}

// Stop detaches the active playback and fades it out in the background.
// The caller never waits out the fade: the engine stops playback from its
// single command loop, and another schedule may come due inside the fade
// window. Stopping while silent is a no-op.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()

	if c.current == 0 {
		c.mu.Unlock()

		return nil
	}

	handle := c.current
	from := c.lastGain

	c.clearLocked()

	fadeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelFade = cancel

	c.fades.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.fades.Done()
		defer cancel()

		c.fade(fadeCtx, from)

		// The process dies even when the fade was cut short.
		if err := c.player.Stop(fadeCtx, handle); err != nil {
			logger.WarnKV(fadeCtx, "Stop playback", "error", err)
		}
	}()

	return nil
}

// Drain cuts any in-flight fade-out short and waits for the playback
// process to exit. Called on shutdown so no audio outlives the daemon.
func (c *Coordinator) Drain() {
	c.mu.Lock()
	if c.cancelFade != nil {
		c.cancelFade()
		c.cancelFade = nil
	}
	c.mu.Unlock()

	c.fades.Wait()
}

// start begins playback of a file and launches its gain loop.
func (c *Coordinator) start(ctx context.Context, file string, kind PlaybackKind, gain func(time.Duration) float64) error {
	// Whatever is playing yields immediately, without a fade: a fade's gain
	// writes must not fight the new playback's ramp.
	c.mu.Lock()
	if c.cancelFade != nil {
		c.cancelFade()
		c.cancelFade = nil
	}

	previous := c.current

	c.clearLocked()
	c.mu.Unlock()

	if previous != 0 {
		if err := c.player.Stop(ctx, previous); err != nil {
			logger.WarnKV(ctx, "Stop previous playback", "error", err)
		}
	}

	if err := c.player.SetGain(ctx, 0); err != nil {
		logger.WarnKV(ctx, "Reset gain", "error", err)
	}

	handle, err := c.player.Start(ctx, file)
	if err != nil {
		return fmt.Errorf("start playback: %w", err)
	}

	rampCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.current = handle
	c.kind = kind
	c.lastGain = 0
	c.cancelRamp = cancel
	c.mu.Unlock()

	logger.InfoKV(ctx, "Playback started", "file", file, "kind", kind)

	go c.runGainLoop(rampCtx, handle, gain)

	return nil
}

// runGainLoop applies gain(t) to the player until canceled.
func (c *Coordinator) runGainLoop(ctx context.Context, handle Handle, gain func(time.Duration) float64) {
	started := time.Now()

	ticker := time.NewTicker(gainStep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			value := gain(time.Since(started))

			c.mu.Lock()
			active := c.current == handle
			if active {
				c.lastGain = value
			}
			c.mu.Unlock()

			if !active {
				return
			}

			if err := c.player.SetGain(ctx, value); err != nil {
				logger.DebugKV(ctx, "Apply gain", "error", err)
			}
		}
	}
}

// fade eases the gain from the provided level down to zero.
func (c *Coordinator) fade(ctx context.Context, from float64) {
	if c.fadeOut <= 0 || from <= 0 {
		return
	}

	steps := int(c.fadeOut / gainStep)

	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(gainStep):
		}

		progress := float64(i) / float64(steps)
		value := from * (1 - Smoothstep(progress))

		if err := c.player.SetGain(ctx, value); err != nil {
			logger.DebugKV(ctx, "Apply fade gain", "error", err)
		}
	}
}

// clearLocked resets the active playback bookkeeping. Callers hold mu.
func (c *Coordinator) clearLocked() {
	if c.cancelRamp != nil {
		c.cancelRamp()
		c.cancelRamp = nil
	}

	c.current = 0
	c.kind = 0
	c.lastGain = 0
}
