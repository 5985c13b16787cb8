// Package vu implements the virtual user: a loop that picks scenarios,
// invokes them through the execution capability, validates the responses
// and records the outcomes.
package vu

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/metrics"
	"github.com/wesleyorama2/volley/internal/scenario"
	"github.com/wesleyorama2/volley/internal/transport"
)

// State represents the lifecycle state of a virtual user.
type State int32

const (
	// StateIdle indicates the VU is ready but not currently running.
	StateIdle State = iota
	// StateRunning indicates the VU is actively invoking scenarios.
	StateRunning
	// StateStopping indicates the VU has been asked to stop after its current call.
	StateStopping
	// StateStopped indicates the VU has fully stopped.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PayloadErrorName is recorded when a request body could not be generated.
const PayloadErrorName = "payload-error"

// RetryDelay is the pause between attempts after a transport failure.
var RetryDelay = 100 * time.Millisecond

// Recorder receives execution results. *metrics.Aggregator implements it.
type Recorder interface {
	Record(result metrics.ExecutionResult)
}

// Limiter paces calls across the VUs of a run. *rate.Pacer implements it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Auth carries the outcome of the run's token acquisition.
type Auth struct {
	Token string
	Err   error
}

// Config binds a virtual user to the run it belongs to.
type Config struct {
	Registry *scenario.Registry

	// Filter restricts the scenarios this VU may invoke. Empty means all.
	Filter []string

	Recorder Recorder
	Executor transport.Executor

	// Payloads generates bodies for scenarios with a size hint
	Payloads transport.PayloadGenerator

	Policy Policy

	// Pinned names the scenario a single-scenario VU invokes. When empty,
	// VUs are assigned round-robin by ID.
	Pinned string

	// Iterations caps the calls this VU makes. Zero means unlimited.
	Iterations int

	// Limiter, when set, is waited on before every call
	Limiter Limiter

	Auth Auth

	Logger *zap.Logger
}

// VirtualUser is one simulated client.
//
// A VirtualUser runs on its own goroutine via Run. It is stopped either by
// cancelling the context passed to Run or by RequestStop; in both cases the
// call already issued is awaited before Run returns.
type VirtualUser struct {
	ID int

	cfg      Config
	selector selector
	log      *zap.Logger

	state     atomic.Int32
	iteration atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a virtual user. It fails when the filter names an unknown
// scenario or selects nothing.
func New(id int, cfg Config) (*VirtualUser, error) {
	if cfg.Registry == nil || cfg.Recorder == nil || cfg.Executor == nil {
		return nil, errors.New("vu: registry, recorder and executor are required")
	}
	if cfg.Policy == "" {
		cfg.Policy = SequentialCycle
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	defs, err := cfg.Registry.Select(cfg.Filter)
	if err != nil {
		return nil, err
	}
	sel, err := newSelector(cfg.Policy, defs, cfg.Pinned, id)
	if err != nil {
		return nil, err
	}

	return &VirtualUser{
		ID:       id,
		cfg:      cfg,
		selector: sel,
		log:      cfg.Logger.With(zap.Int("vu", id)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// State returns the current VU state.
func (v *VirtualUser) State() State {
	return State(v.state.Load())
}

// Iterations returns the number of completed calls.
func (v *VirtualUser) Iterations() int64 {
	return v.iteration.Load()
}

// Done is closed once Run has returned.
func (v *VirtualUser) Done() <-chan struct{} {
	return v.doneCh
}

// Run invokes scenarios until ctx is cancelled, RequestStop is called or
// the iteration cap is reached.
func (v *VirtualUser) Run(ctx context.Context) {
	defer v.markStopped()

	if !v.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.stopCh:
			return
		default:
		}

		if v.cfg.Iterations > 0 && v.iteration.Load() >= int64(v.cfg.Iterations) {
			return
		}
		if !v.pace(ctx) {
			return
		}

		def := v.selector.next()
		res, ok := v.invoke(ctx, def)
		if !ok {
			return
		}
		v.cfg.Recorder.Record(res)
		v.iteration.Add(1)

		if pause := def.Pause(); pause > 0 {
			v.sleep(ctx, pause)
		}
	}
}

// invoke performs one call of def and turns whatever happened into a result.
// It reports false when the VU was stopped before the call was issued; there
// is nothing to record then.
func (v *VirtualUser) invoke(ctx context.Context, def *scenario.Definition) (metrics.ExecutionResult, bool) {
	res := metrics.ExecutionResult{Scenario: def.Name, VUID: v.ID}

	if def.Options.RequiresAuth && v.cfg.Auth.Err != nil {
		res.Timestamp = time.Now()
		res.NotSent = true
		res.FailedValidators = []string{metrics.AuthErrorName}
		return res, true
	}

	body, err := v.payload(def)
	if err != nil {
		v.log.Error("payload generation failed", zap.String("scenario", def.Name), zap.Error(err))
		res.Timestamp = time.Now()
		res.NotSent = true
		res.FailedValidators = []string{PayloadErrorName}
		return res, true
	}

	req := def.Request(body)
	if def.Options.RequiresAuth {
		if req.Headers == nil {
			req.Headers = make(map[string]string, 1)
		}
		req.Headers["Authorization"] = "Bearer " + v.cfg.Auth.Token
	}

	resp, latency, attempts, err := v.execute(ctx, req, def.Options.Retries)
	if attempts == 0 {
		return res, false
	}
	res.Timestamp = time.Now()
	res.Latency = latency
	res.Bytes = int64(len(req.Body))

	if err != nil {
		v.log.Debug("call failed",
			zap.String("scenario", def.Name),
			zap.Int("attempts", attempts),
			zap.Error(err))
		res.FailedValidators = []string{metrics.TransportErrorName}
		return res, true
	}

	res.StatusCode = resp.Status
	res.Bytes += int64(len(resp.Body))
	if resp.Status >= 500 {
		v.log.Warn("server error",
			zap.String("scenario", def.Name),
			zap.Int("status", resp.Status),
			zap.ByteString("body", truncate(resp.Body, 256)))
	}

	res.FailedValidators = v.validate(def, resp)
	res.Success = len(res.FailedValidators) == 0
	return res, true
}

// execute issues req, retrying transport failures up to retries times, and
// reports how many attempts were made. Each attempt is detached from run
// cancellation so an issued call is always awaited; cancelling ctx or
// RequestStop only prevents further attempts. The first attempt is always
// made unless the VU was stopped before it.
func (v *VirtualUser) execute(ctx context.Context, req *transport.Request, retries int) (*transport.Response, time.Duration, int, error) {
	callCtx := context.WithoutCancel(ctx)
	stopCtx, cancel := v.stopContext(ctx)
	defer cancel()

	var (
		resp     *transport.Response
		latency  time.Duration
		attempts int
		lastErr  error
	)
	err := retry.Do(
		func() error {
			attempts++
			start := time.Now()
			r, err := v.cfg.Executor.Execute(callCtx, req)
			latency = time.Since(start)
			if err != nil {
				lastErr = err
				return err
			}
			if r.Latency > 0 {
				latency = r.Latency
			}
			resp = r
			return nil
		},
		retry.Context(stopCtx),
		retry.Attempts(uint(retries+1)),
		retry.Delay(RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool { return stopCtx.Err() == nil }),
	)
	if err != nil {
		// a stop during the retry delay surfaces as the context error; the
		// call's own failure is what gets reported
		if lastErr != nil {
			err = lastErr
		}
		return nil, latency, attempts, err
	}
	return resp, latency, attempts, nil
}

// validate runs every validator and returns the names of those that failed.
// A panicking validator is reported as validator-error.
func (v *VirtualUser) validate(def *scenario.Definition, resp *transport.Response) []string {
	var failed []string
	crashed := false

	for _, val := range def.Validators {
		ok, err := check(val, resp)
		if err != nil {
			v.log.Error("validator crashed",
				zap.String("scenario", def.Name),
				zap.String("validator", val.Name),
				zap.Error(err))
			if !crashed {
				failed = append(failed, metrics.ValidatorErrorName)
				crashed = true
			}
			continue
		}
		if !ok {
			failed = append(failed, val.Name)
		}
	}

	return failed
}

func check(val scenario.Validator, resp *transport.Response) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if val.Check == nil {
		return false, errors.New("validator has no check")
	}
	return val.Check(resp), nil
}

func (v *VirtualUser) payload(def *scenario.Definition) ([]byte, error) {
	if def.PayloadSizeHint <= 0 {
		return nil, nil
	}
	if v.cfg.Payloads == nil {
		return nil, errors.New("no payload generator configured")
	}
	return v.cfg.Payloads.Generate(def.PayloadSizeHint, def.PayloadKind)
}

// pace waits for the limiter. It returns false when the VU was stopped or
// ctx ended while waiting.
func (v *VirtualUser) pace(ctx context.Context) bool {
	if v.cfg.Limiter == nil {
		return true
	}

	ctx, cancel := v.stopContext(ctx)
	defer cancel()
	return v.cfg.Limiter.Wait(ctx) == nil
}

// stopContext derives a context that is also cancelled by RequestStop.
func (v *VirtualUser) stopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	select {
	case <-v.stopCh:
		cancel()
		return ctx, cancel
	default:
	}
	go func() {
		select {
		case <-v.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// sleep waits for d or until the VU is stopped.
func (v *VirtualUser) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-v.stopCh:
	case <-timer.C:
	}
}

// RequestStop asks the VU to stop after its current call.
func (v *VirtualUser) RequestStop() {
	if v.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) ||
		v.state.CompareAndSwap(int32(StateIdle), int32(StateStopping)) {
		close(v.stopCh)
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (v *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-v.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (v *VirtualUser) markStopped() {
	v.state.Store(int32(StateStopped))
	select {
	case <-v.doneCh:
	default:
		close(v.doneCh)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
