package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"rouse/internal/logger"
)

// Handle identifies one playback started on a Player.
type Handle uint64

// Player is the narrow playback contract the coordinator builds on.
// Stop is idempotent (stopping an already-stopped handle is a no-op) and
// synchronous: when it returns, no audio is playing for that handle.
type Player interface {
	// Start begins playback of the file and returns a handle for it.
	Start(ctx context.Context, file string) (Handle, error)
	// Stop ends playback for the handle, if it is still playing.
	Stop(ctx context.Context, handle Handle) error
	// IsPlaying reports whether the handle is still playing.
	IsPlaying(handle Handle) bool
	// SetGain adjusts the output gain in [0, 1] for the current playback.
	SetGain(ctx context.Context, gain float64) error
	// Ended delivers handles whose playback reached end of track on its own.
	Ended() <-chan Handle
}

// errNoPlayerCommand is returned when playback is attempted without a configured command.
var errNoPlayerCommand = errors.New("no player command configured")

// ExecPlayer plays files by spawning an external player process and controls
// the output gain through a mixer command, the usual arrangement on a
// single-board computer. One playback runs at a time; starting a new one
// stops the previous.
type ExecPlayer struct {
	// playArgs is the player command; the file path is appended.
	playArgs []string
	// volumeArgs is the mixer command; the percentage is appended.
	// Empty disables gain control.
	volumeArgs []string

	// mu protects the current playback bookkeeping.
	mu sync.Mutex
	// nextHandle numbers playbacks.
	nextHandle Handle
	// current is the handle of the running playback, zero when idle.
	current Handle
	// cmd is the running player process.
	cmd *exec.Cmd
	// done is closed when the current process exits.
	done chan struct{}
	// ended delivers natural end-of-track notifications.
	ended chan Handle
}

// NewExecPlayer creates an exec-backed player from command templates.
func NewExecPlayer(playArgs, volumeArgs []string) *ExecPlayer {
	return &ExecPlayer{
		playArgs:   playArgs,
		volumeArgs: volumeArgs,
		ended:      make(chan Handle, 4),
	}
}

// Start spawns the player process for the file.
func (p *ExecPlayer) Start(ctx context.Context, file string) (Handle, error) {
	if len(p.playArgs) == 0 {
		return 0, errNoPlayerCommand
	}

	// Only one playback at a time; silence whatever is still running.
	if err := p.stopCurrent(ctx); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	args := append(append([]string(nil), p.playArgs[1:]...), file)

	//nolint:gosec // The command comes from the operator's own configuration.
	cmd := exec.Command(p.playArgs[0], args...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start player: %w", err)
	}

	p.nextHandle++
	handle := p.nextHandle
	done := make(chan struct{})

	p.current = handle
	p.cmd = cmd
	p.done = done

	go func() {
		// The player exits on its own at end of track or when killed by Stop.
		err := cmd.Wait()
		close(done)

		p.mu.Lock()
		natural := p.current == handle
		if natural {
			p.current = 0
			p.cmd = nil
		}
		p.mu.Unlock()

		if !natural {
			return
		}

		if err != nil {
			logger.DebugKV(ctx, "Player process exited with error", "error", err)
		}

		select {
		case p.ended <- handle:
		default:
		}
	}()

	return handle, nil
}

// Stop kills the playback process for the handle and waits for it to exit.
// Stopping a handle that is no longer playing is a no-op.
func (p *ExecPlayer) Stop(ctx context.Context, handle Handle) error {
	p.mu.Lock()

	if p.current != handle || p.cmd == nil {
		p.mu.Unlock()

		return nil
	}

	// Detach first so the waiter goroutine does not report a natural end.
	cmd, done := p.cmd, p.done
	p.current = 0
	p.cmd = nil
	p.mu.Unlock()

	if err := cmd.Process.Kill(); err != nil {
		logger.DebugKV(ctx, "Kill player process", "error", err)
	}

	// Stop must complete before returning: no lingering audio after a dismiss.
	<-done

	return nil
}

// IsPlaying reports whether the handle's process is still running.
func (p *ExecPlayer) IsPlaying(handle Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.current == handle && p.cmd != nil
}

// SetGain adjusts the mixer to the requested gain.
func (p *ExecPlayer) SetGain(ctx context.Context, gain float64) error {
	if len(p.volumeArgs) == 0 {
		return nil
	}

	percent := int(min(max(gain, 0), 1) * 100)
	args := append(append([]string(nil), p.volumeArgs[1:]...), strconv.Itoa(percent)+"%")

	//nolint:gosec // The command comes from the operator's own configuration.
	if err := exec.CommandContext(ctx, p.volumeArgs[0], args...).Run(); err != nil {
		return fmt.Errorf("set gain: %w", err)
	}

	return nil
}

// Ended delivers handles whose playback finished on its own.
func (p *ExecPlayer) Ended() <-chan Handle {
	return p.ended
}

// stopCurrent silences the running playback, if any.
func (p *ExecPlayer) stopCurrent(ctx context.Context) error {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current == 0 {
		return nil
	}

	return p.Stop(ctx, current)
}
