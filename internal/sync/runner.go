package sync

import (
	"context"
	"time"

	domain "rouse/internal/domain/alarm"
	"rouse/internal/logger"
)

// Reconciler is the engine surface the runner drives. ApplyEnvelope merges a
// remote envelope and returns the winner, ReportSync records the cycle
// outcome in the status.
type Reconciler interface {
	ApplyEnvelope(ctx context.Context, remote *domain.SyncEnvelope) (*domain.SyncEnvelope, domain.RevisionOrder, error)
	ReportSync(ctx context.Context, at time.Time, syncErr error) error
	Subscribe() <-chan *domain.Status
}

// RunnerConfig tunes the reconciliation cadence.
type RunnerConfig struct {
	// Interval is the periodic reconciliation cadence.
	Interval time.Duration
	// CycleTimeout bounds one full pull-merge-push cycle.
	CycleTimeout time.Duration
}

// Runner reconciles the local envelope with the remote endpoint on a fixed
// cadence and immediately after local mutations. A failing endpoint only
// marks the status; the alarm keeps running on local state.
type Runner struct {
	// cfg is the reconciliation cadence.
	cfg RunnerConfig
	// client talks to the endpoint.
	client *Client
	// engine is the reconciliation target.
	engine Reconciler
}

// NewRunner builds a Runner over the given client and engine.
func NewRunner(cfg RunnerConfig, client *Client, engine Reconciler) *Runner {
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = cfg.Interval
	}

	return &Runner{cfg: cfg, client: client, engine: engine}
}

// Run reconciles until the context is canceled. Local mutations, observed as
// revision changes on the engine's snapshot stream, trigger an immediate
// cycle; otherwise cycles run on the configured interval.
func (r *Runner) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "sync")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	snapshots := r.engine.Subscribe()

	var lastSeenRevision uint64

	r.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.cycle(ctx)
		case snapshot := <-snapshots:
			if snapshot.Revision == lastSeenRevision {
				continue
			}

			lastSeenRevision = snapshot.Revision

			r.cycle(ctx)
			ticker.Reset(r.cfg.Interval)
		}
	}
}

// cycle performs one pull-merge-push pass and records the outcome.
func (r *Runner) cycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, r.cfg.CycleTimeout)
	defer cancel()

	err := r.reconcile(cycleCtx)
	if err != nil {
		logger.WarnKV(ctx, "Sync cycle failed", "error", err)
	}

	if reportErr := r.engine.ReportSync(ctx, time.Now().UTC(), err); reportErr != nil {
		logger.ErrorKV(ctx, "Failed to record sync outcome", "error", reportErr)
	}
}

// reconcile pulls the remote envelope, merges it, and pushes local state when
// the local side won.
func (r *Runner) reconcile(ctx context.Context) error {
	remote, err := r.client.Pull(ctx)
	if err != nil {
		return err
	}

	winner, order, err := r.engine.ApplyEnvelope(ctx, remote)
	if err != nil {
		return err
	}

	switch order {
	case domain.RevisionBehind:
		logger.InfoKV(ctx, "Adopted remote state", "revision", winner.Revision)
	case domain.RevisionAhead:
		settled, pushErr := r.client.Push(ctx, winner)
		if pushErr != nil {
			return pushErr
		}

		// The endpoint may already hold something newer than what we
		// pushed; fold its answer back in.
		if _, _, applyErr := r.engine.ApplyEnvelope(ctx, settled); applyErr != nil {
			return applyErr
		}

		logger.InfoKV(ctx, "Pushed local state", "revision", winner.Revision)
	case domain.RevisionEqual:
	}

	return nil
}
