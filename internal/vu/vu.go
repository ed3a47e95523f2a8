// Package vu implements the virtual user: a goroutine that runs scenario
// iterations back to back until it is asked to drain.
package vu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/clock"
	"github.com/wesleyorama2/surge/internal/metrics"
)

// State represents the lifecycle state of a Virtual User.
type State int32

const (
	// StateStarting means the VU exists but has not begun its first iteration.
	StateStarting State = iota
	// StateRunning means the VU is looping iterations.
	StateRunning
	// StateDraining means the VU finishes its current iteration and exits.
	StateDraining
	// StateStopped means the VU goroutine has exited.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the collaborators shared by every VU of a run.
type Config struct {
	Body      Body
	Sender    Sender
	Recorder  Recorder
	Evaluator *check.Evaluator
	Pacing    Pacing
	Clock     clock.Clock
	Logger    *slog.Logger
}

// VirtualUser represents a single simulated user executing iterations.
//
// A VU runs at most one iteration at a time. An in-flight iteration is never
// interrupted: RequestDrain only prevents the next one from starting and cuts
// the post-iteration pause short.
type VirtualUser struct {
	id uint64

	body      Body
	sender    Sender
	recorder  Recorder
	evaluator *check.Evaluator
	pacing    Pacing
	clock     clock.Clock
	logger    *slog.Logger

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	drainCh   chan struct{}
	drainOnce sync.Once
	doneCh    chan struct{}

	iterations atomic.Uint64

	// Per-VU variable scope
	data   map[string]string
	dataMu sync.RWMutex
}

// New creates a VU in the Starting state.
func New(id uint64, cfg Config) *VirtualUser {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = check.NewEvaluator(cfg.Clock)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &VirtualUser{
		id:        id,
		body:      cfg.Body,
		sender:    cfg.Sender,
		recorder:  cfg.Recorder,
		evaluator: cfg.Evaluator,
		pacing:    cfg.Pacing,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("vu", id),
		drainCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
		data:      make(map[string]string),
	}
}

// ID returns the VU id. Ids increase in spawn order.
func (v *VirtualUser) ID() uint64 {
	return v.id
}

// State returns the current lifecycle state.
func (v *VirtualUser) State() State {
	return State(v.state.Load())
}

// Iterations returns the number of completed iterations.
func (v *VirtualUser) Iterations() uint64 {
	return v.iterations.Load()
}

// RequestDrain asks the VU to stop after its current iteration. It returns
// false if the VU was already draining or stopped.
func (v *VirtualUser) RequestDrain() bool {
	for {
		current := v.state.Load()
		if current != int32(StateStarting) && current != int32(StateRunning) {
			return false
		}
		if v.state.CompareAndSwap(current, int32(StateDraining)) {
			v.drainOnce.Do(func() { close(v.drainCh) })
			return true
		}
	}
}

// Done is closed once the VU has stopped.
func (v *VirtualUser) Done() <-chan struct{} {
	return v.doneCh
}

// Wait blocks until the VU has stopped.
func (v *VirtualUser) Wait() {
	<-v.doneCh
}

// Run loops iterations until the VU is drained. Cancelling ctx drains the VU
// but does not interrupt the iteration in flight: iterations run with a
// context detached from ctx's cancellation.
func (v *VirtualUser) Run(ctx context.Context) {
	defer v.markStopped()

	if !v.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return
	}
	v.logger.Debug("vu started")

	iterCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			v.RequestDrain()
		default:
		}
		if v.State() != StateRunning {
			break
		}

		v.runIteration(iterCtx)
	}

	v.logger.Debug("vu stopped", "iterations", v.Iterations())
}

func (v *VirtualUser) markStopped() {
	v.state.Store(int32(StateStopped))
	v.drainOnce.Do(func() { close(v.drainCh) })
	close(v.doneCh)
}

// runIteration executes the body once, pauses and submits the record.
func (v *VirtualUser) runIteration(ctx context.Context) {
	n := v.iterations.Load() + 1
	it := &Iteration{vu: v, number: n}

	start := v.clock.Now()
	bodyErr := v.execute(ctx, it)
	duration := v.clock.Now().Sub(start)

	pause := v.pause()

	requests, checks := it.snapshot()
	rec := metrics.IterationRecord{
		VUID:      v.id,
		Iteration: n,
		Start:     start,
		Duration:  duration,
		Requests:  requests,
		Checks:    checks,
		Pause:     pause,
	}
	if bodyErr != nil {
		rec.BodyErr = bodyErr.Error()
	}

	v.iterations.Store(n)
	if v.recorder != nil {
		v.recorder.Record(rec)
	}
}

// execute calls the body, converting a panic into an error.
func (v *VirtualUser) execute(ctx context.Context, it *Iteration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			v.logger.Warn("iteration panicked", "iteration", it.number, "panic", r)
		}
	}()

	if v.body == nil {
		return fmt.Errorf("no scenario body")
	}
	if err = v.body.Execute(ctx, it); err != nil {
		v.logger.Debug("iteration failed", "iteration", it.number, "error", err)
	}
	return err
}

// pause waits for the next pacing interval or until drained, and returns
// the time actually paused.
func (v *VirtualUser) pause() time.Duration {
	wait := v.pacing.Next()
	if wait <= 0 {
		return 0
	}

	start := v.clock.Now()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return wait
	case <-v.drainCh:
		return v.clock.Now().Sub(start)
	}
}
