// Package engine provides the main orchestrator for a load test run.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/clock"
	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/dispatcher"
	"github.com/wesleyorama2/surge/internal/http"
	"github.com/wesleyorama2/surge/internal/metrics"
	"github.com/wesleyorama2/surge/internal/scenario"
	"github.com/wesleyorama2/surge/internal/schedule"
	"github.com/wesleyorama2/surge/internal/threshold"
	"github.com/wesleyorama2/surge/internal/vu"
)

// Engine is the main orchestrator for a load test.
//
// It coordinates:
//   - Configuration validation and the stage schedule
//   - The dispatcher and its VU pool
//   - Metrics collection and aggregation
//   - Threshold evaluation
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	engine, _ := engine.New(cfg)
//	result, _ := engine.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config     *config.TestConfig
	schedule   *schedule.Schedule
	pacing     vu.Pacing
	thresholds []threshold.Expression

	body          vu.Body
	sender        vu.Sender
	clock         clock.Clock
	logger        *slog.Logger
	clientOptions []http.ClientOption

	mu      sync.Mutex
	running bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithBody runs b instead of the configured requests.
func WithBody(b vu.Body) Option {
	return func(e *Engine) {
		e.body = b
	}
}

// WithSender replaces the HTTP client built from the settings.
func WithSender(s vu.Sender) Option {
	return func(e *Engine) {
		e.sender = s
	}
}

// WithClock sets the clock used for timing and phases.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the diagnostics logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClientOptions adds options to the HTTP client built for each run.
func WithClientOptions(opts ...http.ClientOption) Option {
	return func(e *Engine) {
		e.clientOptions = append(e.clientOptions, opts...)
	}
}

// RunContext holds the state of a single run.
type RunContext struct {
	ID         string
	Clock      clock.Clock
	Start      time.Time
	Schedule   *schedule.Schedule
	Pool       *dispatcher.Pool
	Aggregator *metrics.Aggregator
	Logger     *slog.Logger
}

// Result contains the complete test results.
type Result struct {
	// Run metadata
	RunID       string           `json:"runId"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     time.Time        `json:"endTime"`
	Duration    time.Duration    `json:"duration"`
	Stages      []schedule.Stage `json:"stages"`

	Metrics  metrics.Snapshot `json:"metrics"`
	Dispatch dispatcher.Stats `json:"dispatch"`

	// Threshold evaluation
	Passed     bool               `json:"passed"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`

	// Aborted is true when the run was cancelled before the schedule ended
	Aborted bool `json:"aborted"`
}

// New creates an engine for cfg.
//
// The schedule is validated first so that stage errors surface as
// schedule.ValidationErrors; the rest of the configuration is validated
// after that. Defaults are applied to a copy of cfg; the caller's value is
// left untouched. No VU exists until Run is called.
func New(cfg *config.TestConfig, opts ...Option) (*Engine, error) {
	cfg = cfg.Clone()
	e := &Engine{config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sched, err := cfg.Schedule()
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	validate := cfg.Validate
	if e.body != nil {
		validate = cfg.ValidateLoad
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.ApplyDefaults(cfg)

	if e.pacing, err = cfg.Pacing(); err != nil {
		return nil, err
	}
	if e.thresholds, err = cfg.Thresholds.Expressions(); err != nil {
		return nil, err
	}
	if e.body == nil {
		if e.body, err = scenario.New(cfg); err != nil {
			return nil, fmt.Errorf("invalid scenario: %w", err)
		}
	}

	e.schedule = sched
	return e, nil
}

// Schedule returns the validated schedule.
func (e *Engine) Schedule() *schedule.Schedule {
	return e.schedule
}

// Config returns the configuration with defaults applied.
func (e *Engine) Config() *config.TestConfig {
	return e.config
}

// Run executes the schedule and returns the results.
//
// Cancelling ctx aborts the run: VUs finish their in-flight iteration and
// the partial results are returned with Aborted set.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	rc := e.newRunContext()

	sender := e.sender
	if sender == nil {
		client := e.newClient()
		defer client.CloseIdleConnections()
		sender = client
	}

	evaluator := check.NewEvaluator(rc.Clock)
	rc.Pool = dispatcher.NewPool(func(id uint64) *vu.VirtualUser {
		return vu.New(id, vu.Config{
			Body:      e.body,
			Sender:    sender,
			Recorder:  rc.Aggregator,
			Evaluator: evaluator,
			Pacing:    e.pacing,
			Clock:     rc.Clock,
			Logger:    rc.Logger,
		})
	})

	d, err := dispatcher.New(dispatcher.Config{
		Schedule:     rc.Schedule,
		Pool:         rc.Pool,
		Publisher:    rc.Aggregator,
		Clock:        rc.Clock,
		TickInterval: e.config.TickInterval.GetDuration(dispatcher.DefaultTickInterval),
		Logger:       rc.Logger,
	})
	if err != nil {
		return nil, err
	}

	rc.Logger.Info("run started", "name", e.config.Name, "pacing", e.pacing.Type)
	rc.Aggregator.SetPhase(metrics.PhaseInit)

	stats := d.Run(ctx)

	rc.Aggregator.Freeze()
	snapshot := rc.Aggregator.Snapshot()

	result := &Result{
		RunID:       rc.ID,
		Name:        e.config.Name,
		Description: e.config.Description,
		StartTime:   rc.Start,
		EndTime:     rc.Clock.Now(),
		Duration:    stats.Elapsed,
		Stages:      rc.Schedule.Stages(),
		Metrics:     snapshot,
		Dispatch:    stats,
		Passed:      true,
		Aborted:     stats.Aborted,
	}

	for _, expr := range e.thresholds {
		tr := expr.Evaluate(&snapshot, stats.Elapsed)
		if !tr.Passed {
			result.Passed = false
		}
		result.Thresholds = append(result.Thresholds, tr)
	}

	if snapshot.DroppedAfterFreeze > 0 {
		rc.Logger.Warn("records arrived after the run was frozen", "dropped", snapshot.DroppedAfterFreeze)
	}
	rc.Logger.Info("run finished",
		"iterations", snapshot.Iterations,
		"requests", snapshot.Requests,
		"passed", result.Passed,
		"aborted", result.Aborted,
	)

	return result, nil
}

func (e *Engine) newRunContext() *RunContext {
	id := uuid.New().String()
	return &RunContext{
		ID:         id,
		Clock:      e.clock,
		Start:      e.clock.Now(),
		Schedule:   e.schedule,
		Aggregator: metrics.NewAggregator(e.clock),
		Logger:     e.logger.With("run", id),
	}
}

func (e *Engine) newClient() *http.Client {
	settings := e.config.Settings

	opts := []http.ClientOption{
		http.WithBaseURL(settings.BaseURL),
		http.WithHeader("User-Agent", settings.UserAgent),
		http.WithRateLimit(settings.RPS),
	}
	for k, v := range settings.Headers {
		opts = append(opts, http.WithHeader(k, v))
	}
	opts = append(opts, e.clientOptions...)

	return http.NewClient(e.config.ClientConfig(), opts...)
}
