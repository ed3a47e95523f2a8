// Package dispatcher drives the VU pool along a schedule.
//
// Every tick the dispatcher samples the schedule target for the elapsed time
// and reconciles the pool toward it:
//
//	desired > live    spawn desired-live VUs
//	desired < active  drain active-desired VUs, oldest first
//
// The run ends once the schedule is exhausted and every VU has stopped.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/wesleyorama2/surge/internal/clock"
	"github.com/wesleyorama2/surge/internal/metrics"
	"github.com/wesleyorama2/surge/internal/schedule"
)

// DefaultTickInterval is how often the pool is reconciled.
const DefaultTickInterval = 100 * time.Millisecond

// Publisher receives progress updates. *metrics.Aggregator satisfies it.
type Publisher interface {
	SetPhase(phase metrics.Phase)
	SetActiveVUs(count int)
}

// Config configures a Dispatcher.
type Config struct {
	Schedule     *schedule.Schedule
	Pool         *Pool
	Publisher    Publisher
	Clock        clock.Clock
	TickInterval time.Duration
	Logger       *slog.Logger
}

// Stats describes a finished dispatch.
type Stats struct {
	Elapsed time.Duration `json:"elapsed"`
	Ticks   int           `json:"ticks"`
	Spawned int           `json:"spawned"`
	Retired int           `json:"retired"`

	// Aborted is true when the run context was cancelled before the
	// schedule finished
	Aborted bool `json:"aborted"`
}

// Dispatcher runs the tick loop for one run.
type Dispatcher struct {
	schedule  *schedule.Schedule
	pool      *Pool
	publisher Publisher
	clock     clock.Clock
	tick      time.Duration
	logger    *slog.Logger

	lastTarget int
	ticks      int
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Schedule == nil {
		return nil, fmt.Errorf("dispatcher requires a schedule")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("dispatcher requires a pool")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Dispatcher{
		schedule:   cfg.Schedule,
		pool:       cfg.Pool,
		publisher:  cfg.Publisher,
		clock:      cfg.Clock,
		tick:       cfg.TickInterval,
		logger:     cfg.Logger,
		lastTarget: -1,
	}, nil
}

// Run blocks until the schedule has finished and every VU has stopped.
//
// Cancelling ctx is an operator abort: every VU is drained and Run waits for
// all in-flight iterations before returning with Stats.Aborted set.
func (d *Dispatcher) Run(ctx context.Context) Stats {
	start := d.clock.Now()

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	d.logger.Info("dispatch started",
		"stages", len(d.schedule.Stages()),
		"duration", d.schedule.TotalDuration(),
		"maxVUs", d.schedule.MaxTarget(),
	)

	aborted := false
	done := d.Step(ctx, 0)
	for !done {
		select {
		case <-ctx.Done():
			d.abort()
			aborted = true
			done = true
		case <-ticker.C:
			done = d.Step(ctx, clock.Since(d.clock, start))
		}
	}

	d.pool.Wait()
	d.publishActive(0)
	d.setPhase(metrics.PhaseDone)

	stats := Stats{
		Elapsed: clock.Since(d.clock, start),
		Ticks:   d.ticks,
		Spawned: d.pool.Spawned(),
		Retired: d.pool.Retired(),
		Aborted: aborted,
	}
	d.logger.Info("dispatch finished",
		"elapsed", stats.Elapsed,
		"spawned", stats.Spawned,
		"aborted", stats.Aborted,
	)
	return stats
}

// Step performs one reconciliation at elapsed and reports whether the run
// is complete. Run calls it on every tick.
func (d *Dispatcher) Step(ctx context.Context, elapsed time.Duration) bool {
	d.ticks++

	desired := d.schedule.TargetAt(elapsed)
	spawned, retired := d.pool.Reconcile(ctx, desired)

	if desired != d.lastTarget || spawned > 0 || retired > 0 {
		d.logger.Debug("reconciled",
			"elapsed", elapsed,
			"target", desired,
			"spawned", spawned,
			"retired", retired,
		)
		d.lastTarget = desired
	}

	d.publishActive(d.pool.Active())
	d.updatePhase(elapsed)

	return d.schedule.Done(elapsed) && d.pool.Live() == 0
}

func (d *Dispatcher) abort() {
	drained := d.pool.DrainAll()
	d.setPhase(metrics.PhaseDraining)
	d.logger.Warn("run aborted, waiting for in-flight iterations", "draining", drained)
}

// updatePhase derives the phase from the shape of the current stage.
func (d *Dispatcher) updatePhase(elapsed time.Duration) {
	idx, ok := d.schedule.StageAt(elapsed)
	if !ok || d.schedule.Done(elapsed) {
		d.setPhase(metrics.PhaseDraining)
		return
	}

	stage := d.schedule.Stages()[idx]
	prevTarget := d.schedule.PreviousTarget(idx)

	switch {
	case stage.Target == prevTarget:
		d.setPhase(metrics.PhaseSteady)
	case stage.Target > prevTarget:
		d.setPhase(metrics.PhaseRampUp)
	default:
		d.setPhase(metrics.PhaseRampDown)
	}
}

func (d *Dispatcher) setPhase(phase metrics.Phase) {
	if d.publisher != nil {
		d.publisher.SetPhase(phase)
	}
}

func (d *Dispatcher) publishActive(n int) {
	if d.publisher != nil {
		d.publisher.SetActiveVUs(n)
	}
}
