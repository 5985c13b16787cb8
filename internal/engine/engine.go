// Package engine is the entry point a driver uses to run load tests: it
// owns the scenario registry and turns a RunConfig into a scheduled run
// whose results feed one aggregator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/metrics"
	"github.com/wesleyorama2/volley/internal/rate"
	"github.com/wesleyorama2/volley/internal/report"
	"github.com/wesleyorama2/volley/internal/scenario"
	"github.com/wesleyorama2/volley/internal/scheduler"
	"github.com/wesleyorama2/volley/internal/threshold"
	"github.com/wesleyorama2/volley/internal/transport"
	"github.com/wesleyorama2/volley/internal/vu"
)

var (
	// ErrConfig marks every error that prevents a run from starting.
	ErrConfig = errors.New("invalid run configuration")

	// ErrRunActive is returned by StartRun while another run is active.
	ErrRunActive = errors.New("a run is already active")
)

// RunConfig is the per-run configuration.
type RunConfig struct {
	// Name labels the run in reports
	Name string

	Profile    scheduler.Profile
	Thresholds threshold.Config

	// ScenarioFilter restricts the run to these scenarios. Empty means all.
	ScenarioFilter []string

	// Policy defaults to vu.SequentialCycle
	Policy vu.Policy

	// PinnedScenario is the scenario every single-scenario VU invokes
	PinnedScenario string

	// MaxRate caps calls per second across all VUs. Zero means unpaced.
	MaxRate float64
}

// Options configures an Engine.
type Options struct {
	// Executor performs the calls. Required.
	Executor transport.Executor

	// Authenticator acquires the bearer token for scenarios that require
	// auth. Without one those scenarios record auth-error.
	Authenticator transport.Authenticator
	Credentials   transport.Credentials

	// Payloads generates bodies for scenarios with a size hint
	Payloads transport.PayloadGenerator

	Metrics metrics.Config

	// TickInterval defaults to scheduler.DefaultTickInterval
	TickInterval time.Duration

	Logger *zap.Logger
}

// Engine registers scenarios and runs them, one run at a time.
type Engine struct {
	opts     Options
	registry *scenario.Registry
	log      *zap.Logger

	mu     sync.Mutex
	active *RunHandle
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("%w: an executor is required", ErrConfig)
	}
	if opts.Payloads == nil {
		opts.Payloads = transport.RandomPayload{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		opts:     opts,
		registry: scenario.NewRegistry(),
		log:      opts.Logger,
	}, nil
}

// Registry exposes the engine's scenario registry.
func (e *Engine) Registry() *scenario.Registry {
	return e.registry
}

// RegisterScenario adds def to the registry. It fails while a run is
// active.
func (e *Engine) RegisterScenario(def scenario.Definition) error {
	if err := e.registry.Register(def); err != nil {
		return err
	}
	e.log.Debug("scenario registered", zap.String("scenario", def.Name))
	return nil
}

// Active returns the active run, or nil.
func (e *Engine) Active() *RunHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// StartRun validates cfg and starts a run. It returns as soon as the
// scheduler is running; use AwaitCompletion to wait for the result.
// Configuration problems are reported as errors wrapping ErrConfig and
// nothing is started.
func (e *Engine) StartRun(ctx context.Context, cfg RunConfig) (*RunHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return nil, ErrRunActive
	}

	defs, err := e.prepare(cfg)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}

	auth := e.authenticate(ctx, defs)

	agg := metrics.NewWithConfig(e.opts.Metrics)
	agg.Declare(names...)
	agg.SetPhase(scheduler.StatePending.String())

	h := &RunHandle{
		id:         uuid.NewString(),
		name:       cfg.Name,
		agg:        agg,
		thresholds: cfg.Thresholds,
		done:       make(chan struct{}),
	}
	log := e.log.With(zap.String("run", h.id))

	var limiter vu.Limiter
	if cfg.MaxRate > 0 {
		limiter = rate.NewPacer(cfg.MaxRate)
	}

	vuLog := log.Named("vu")
	spawn := func(id int) (*vu.VirtualUser, error) {
		return vu.New(id, vu.Config{
			Registry:   e.registry,
			Filter:     names,
			Recorder:   agg,
			Executor:   e.opts.Executor,
			Payloads:   e.opts.Payloads,
			Policy:     cfg.Policy,
			Pinned:     cfg.PinnedScenario,
			Iterations: cfg.Profile.Iterations,
			Limiter:    limiter,
			Auth:       auth,
			Logger:     vuLog,
		})
	}

	sched, err := scheduler.New(cfg.Profile, spawn, scheduler.Options{
		TickInterval:  e.opts.TickInterval,
		Logger:        log.Named("scheduler"),
		OnActiveVUs:   agg.SetActiveVUs,
		OnStateChange: func(s scheduler.State) { agg.SetPhase(s.String()) },
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	h.sched = sched

	e.registry.Lock()
	if err := sched.Start(ctx); err != nil {
		e.registry.Unlock()
		return nil, err
	}
	e.active = h

	log.Info("run started",
		zap.String("name", cfg.Name),
		zap.Strings("scenarios", names),
		zap.String("policy", string(policyOrDefault(cfg.Policy))))

	go e.finish(h, log)
	return h, nil
}

// prepare validates cfg against the registry and returns the scenarios the
// run will use.
func (e *Engine) prepare(cfg RunConfig) ([]*scenario.Definition, error) {
	if err := cfg.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: thresholds: %w", ErrConfig, err)
	}
	if _, err := vu.ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if cfg.MaxRate < 0 {
		return nil, fmt.Errorf("%w: maxRate must be non-negative", ErrConfig)
	}

	defs, err := e.registry.Select(cfg.ScenarioFilter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrConfig, vu.ErrNoScenarios)
	}

	if cfg.PinnedScenario != "" {
		if !slices.ContainsFunc(defs, func(d *scenario.Definition) bool { return d.Name == cfg.PinnedScenario }) {
			return nil, fmt.Errorf("%w: pinned scenario %q: %w", ErrConfig, cfg.PinnedScenario, scenario.ErrNotFound)
		}
	}
	return defs, nil
}

// authenticate acquires a token once per run when any selected scenario
// needs one. A failure is carried into the VUs rather than returned.
func (e *Engine) authenticate(ctx context.Context, defs []*scenario.Definition) vu.Auth {
	if !slices.ContainsFunc(defs, func(d *scenario.Definition) bool { return d.Options.RequiresAuth }) {
		return vu.Auth{}
	}
	if e.opts.Authenticator == nil {
		err := &transport.AuthError{Reason: "no authenticator configured"}
		e.log.Warn("authentication unavailable, auth scenarios will fail", zap.Error(err))
		return vu.Auth{Err: err}
	}

	token, err := e.opts.Authenticator.Authenticate(ctx, e.opts.Credentials)
	if err != nil {
		e.log.Warn("authentication failed, auth scenarios will fail", zap.Error(err))
		return vu.Auth{Err: err}
	}
	e.log.Debug("authenticated")
	return vu.Auth{Token: token}
}

// finish waits for the scheduler, freezes the aggregator and publishes the
// result.
func (e *Engine) finish(h *RunHandle, log *zap.Logger) {
	<-h.sched.Done()

	// sealed first so nothing lands after the final snapshot
	h.agg.Seal()
	snap := h.agg.Snapshot()

	results := threshold.Evaluate(h.thresholds, snap)
	for _, r := range results {
		if !r.Passed {
			log.Warn("threshold breached",
				zap.String("metric", r.Metric),
				zap.String("expression", r.Expression),
				zap.String("value", r.Value))
		}
	}

	res := &report.Result{
		RunID:      h.id,
		Name:       h.name,
		State:      h.sched.State().String(),
		StartTime:  snap.StartTime,
		EndTime:    snap.Timestamp,
		Duration:   h.sched.Elapsed(),
		Snapshot:   snap,
		Passed:     threshold.Passed(results),
		Thresholds: results,
	}
	runErr := h.sched.Err()
	if runErr != nil {
		res.Error = runErr.Error()
	}

	h.mu.Lock()
	h.result = res
	h.err = runErr
	h.mu.Unlock()

	e.registry.Unlock()
	e.mu.Lock()
	if e.active == h {
		e.active = nil
	}
	e.mu.Unlock()

	log.Info("run completed",
		zap.String("state", res.State),
		zap.Int64("requests", snap.TotalRequests),
		zap.Float64("errorRate", snap.ErrorRate),
		zap.Bool("passed", res.Passed))

	close(h.done)
}

// StopRun cancels h. In-flight calls complete and are recorded; the run
// ends Cancelled. It is idempotent.
func (e *Engine) StopRun(h *RunHandle) {
	if h == nil {
		return
	}
	e.log.Info("stopping run", zap.String("run", h.id))
	h.sched.Stop()
}

// AwaitCompletion blocks until h finishes or ctx is done and returns the
// final snapshot. The error reports a run aborted by a failure, not
// threshold breaches.
func (e *Engine) AwaitCompletion(ctx context.Context, h *RunHandle) (*metrics.Snapshot, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result.Snapshot, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RenderReport renders snap in the plain text format.
func (e *Engine) RenderReport(snap *metrics.Snapshot) string {
	return report.Render(snap)
}

func policyOrDefault(p vu.Policy) vu.Policy {
	if p == "" {
		return vu.SequentialCycle
	}
	return p
}
