package vu_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wesleyorama2/volley/internal/metrics"
	"github.com/wesleyorama2/volley/internal/scenario"
	"github.com/wesleyorama2/volley/internal/transport"
	"github.com/wesleyorama2/volley/internal/vu"
)

// collector records results in arrival order.
type collector struct {
	mu      sync.Mutex
	results []metrics.ExecutionResult
}

func (c *collector) Record(r metrics.ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) all() []metrics.ExecutionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]metrics.ExecutionResult(nil), c.results...)
}

func okExecutor(latency time.Duration) transport.ExecutorFunc {
	return func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: 200, Latency: latency, Body: []byte(`{"ok":true}`)}, nil
	}
}

func registry(t *testing.T, defs ...scenario.Definition) *scenario.Registry {
	t.Helper()
	r := scenario.NewRegistry()
	for _, d := range defs {
		require.NoError(t, r.Register(d))
	}
	return r
}

func simple(name string, validators ...scenario.Validator) scenario.Definition {
	return scenario.Definition{Name: name, Endpoint: "/" + name, Method: "GET", Validators: validators}
}

func runOnce(t *testing.T, cfg vu.Config, iterations int) []metrics.ExecutionResult {
	t.Helper()
	rec := &collector{}
	cfg.Recorder = rec
	cfg.Iterations = iterations
	v, err := vu.New(1, cfg)
	require.NoError(t, err)
	v.Run(context.Background())
	return rec.all()
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state vu.State
		want  string
	}{
		{vu.StateIdle, "idle"},
		{vu.StateRunning, "running"},
		{vu.StateStopping, "stopping"},
		{vu.StateStopped, "stopped"},
		{vu.State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State.String() = %v, want %v", got, tt.want)
		}
	}
}

func TestVirtualUser_SequentialCycle(t *testing.T) {
	reg := registry(t, simple("a"), simple("b"), simple("c"))
	results := runOnce(t, vu.Config{Registry: reg, Executor: okExecutor(time.Millisecond)}, 7)

	var names []string
	for _, r := range results {
		names = append(names, r.Scenario)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, names)
}

func TestVirtualUser_SequentialCycleWithFilter(t *testing.T) {
	reg := registry(t, simple("a"), simple("b"), simple("c"))
	results := runOnce(t, vu.Config{Registry: reg, Filter: []string{"c", "a"}, Executor: okExecutor(time.Millisecond)}, 4)

	var names []string
	for _, r := range results {
		names = append(names, r.Scenario)
	}
	assert.Equal(t, []string{"a", "c", "a", "c"}, names)
}

func TestVirtualUser_SingleScenario(t *testing.T) {
	reg := registry(t, simple("a"), simple("b"))

	t.Run("pinned", func(t *testing.T) {
		results := runOnce(t, vu.Config{Registry: reg, Executor: okExecutor(time.Millisecond), Policy: vu.SingleScenario, Pinned: "b"}, 3)
		for _, r := range results {
			assert.Equal(t, "b", r.Scenario)
		}
	})

	t.Run("round robin by id", func(t *testing.T) {
		for id, want := range map[int]string{1: "a", 2: "b", 3: "a"} {
			rec := &collector{}
			v, err := vu.New(id, vu.Config{Registry: reg, Recorder: rec, Executor: okExecutor(time.Millisecond), Policy: vu.SingleScenario, Iterations: 2})
			require.NoError(t, err)
			v.Run(context.Background())
			for _, r := range rec.all() {
				assert.Equal(t, want, r.Scenario, "vu %d", id)
			}
		}
	})

	t.Run("unknown pin", func(t *testing.T) {
		_, err := vu.New(1, vu.Config{Registry: reg, Recorder: &collector{}, Executor: okExecutor(0), Policy: vu.SingleScenario, Pinned: "zzz"})
		assert.ErrorIs(t, err, scenario.ErrNotFound)
	})
}

func TestNew_Errors(t *testing.T) {
	_, err := vu.New(1, vu.Config{Registry: scenario.NewRegistry(), Recorder: &collector{}, Executor: okExecutor(0)})
	assert.ErrorIs(t, err, vu.ErrNoScenarios)

	reg := registry(t, simple("a"))
	_, err = vu.New(1, vu.Config{Registry: reg, Recorder: &collector{}, Executor: okExecutor(0), Filter: []string{"nope"}})
	assert.ErrorIs(t, err, scenario.ErrNotFound)

	_, err = vu.New(1, vu.Config{Registry: reg})
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := vu.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, vu.SequentialCycle, p)

	p, err = vu.ParsePolicy("single-scenario")
	require.NoError(t, err)
	assert.Equal(t, vu.SingleScenario, p)

	_, err = vu.ParsePolicy("random")
	assert.Error(t, err)
}

func TestVirtualUser_ValidatorsAreANDed(t *testing.T) {
	reg := registry(t,
		simple("pass", scenario.DefaultValidators()...),
		simple("fail", scenario.StatusIs(404), scenario.LatencyBelow(3*time.Second), scenario.BodyContains("missing")),
	)
	results := runOnce(t, vu.Config{Registry: reg, Executor: okExecutor(50 * time.Millisecond)}, 2)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.Empty(t, results[0].FailedValidators)
	assert.Equal(t, 200, results[0].StatusCode)
	assert.Equal(t, 50*time.Millisecond, results[0].Latency)

	assert.False(t, results[1].Success)
	assert.Equal(t, []string{"status is 404", `body contains "missing"`}, results[1].FailedValidators)
}

func TestVirtualUser_TransportFailureRetries(t *testing.T) {
	orig := vu.RetryDelay
	vu.RetryDelay = time.Millisecond
	defer func() { vu.RetryDelay = orig }()

	var calls atomic.Int32
	failing := transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return nil, &transport.TransportError{Method: req.Method, URL: req.URL, Err: errors.New("connection refused")}
	})

	d := simple("flaky", scenario.StatusIs(200))
	d.Options.Retries = 2
	results := runOnce(t, vu.Config{Registry: registry(t, d), Executor: failing}, 1)

	require.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, results[0].Success)
	assert.Equal(t, 0, results[0].StatusCode)
	assert.Equal(t, []string{metrics.TransportErrorName}, results[0].FailedValidators)
}

func TestVirtualUser_StopEndsRetries(t *testing.T) {
	orig := vu.RetryDelay
	vu.RetryDelay = 300 * time.Millisecond
	defer func() { vu.RetryDelay = orig }()

	tests := []struct {
		name string
		stop func(v *vu.VirtualUser, cancel context.CancelFunc)
	}{
		{"request stop", func(v *vu.VirtualUser, _ context.CancelFunc) { v.RequestStop() }},
		{"context cancelled", func(_ *vu.VirtualUser, cancel context.CancelFunc) { cancel() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			failing := transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
				calls.Add(1)
				return nil, &transport.TransportError{Method: req.Method, URL: req.URL, Err: errors.New("connection refused")}
			})

			d := simple("flaky")
			d.Options.Retries = 5
			rec := &collector{}
			v, err := vu.New(1, vu.Config{Registry: registry(t, d), Recorder: rec, Executor: failing})
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go v.Run(ctx)
			require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

			// stop while the VU sits in the first retry delay
			stopped := time.Now()
			tt.stop(v, cancel)
			require.True(t, v.WaitForStop(time.Second))

			if elapsed := time.Since(stopped); elapsed > 150*time.Millisecond {
				t.Errorf("VU stopped %v after the stop, want it to skip the retry delay", elapsed)
			}
			assert.Equal(t, int32(1), calls.Load(), "no attempt may start after the stop")

			results := rec.all()
			require.Len(t, results, 1)
			assert.False(t, results[0].Success)
			assert.False(t, results[0].NotSent)
			assert.Equal(t, []string{metrics.TransportErrorName}, results[0].FailedValidators)
		})
	}
}

func TestVirtualUser_RetrySucceeds(t *testing.T) {
	orig := vu.RetryDelay
	vu.RetryDelay = time.Millisecond
	defer func() { vu.RetryDelay = orig }()

	var calls atomic.Int32
	exec := transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if calls.Add(1) == 1 {
			return nil, &transport.TransportError{Err: errors.New("reset")}
		}
		return &transport.Response{Status: 200, Latency: time.Millisecond}, nil
	})

	d := simple("flaky", scenario.StatusIs(200))
	d.Options.Retries = 1
	results := runOnce(t, vu.Config{Registry: registry(t, d), Executor: exec}, 1)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestVirtualUser_ValidatorPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	boom := scenario.Custom("boom", func(*transport.Response) bool { panic("nil body") })

	reg := registry(t, simple("crashy", boom, scenario.StatusIs(201)))
	results := runOnce(t, vu.Config{Registry: reg, Executor: okExecutor(time.Millisecond), Logger: zap.New(core)}, 3)

	// the VU keeps going after a crash
	require.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, []string{metrics.ValidatorErrorName, "status is 201"}, r.FailedValidators)
	}

	crashed := logs.FilterMessage("validator crashed").All()
	require.Len(t, crashed, 3)
	assert.Equal(t, "boom", crashed[0].ContextMap()["validator"])
	assert.Equal(t, "crashy", crashed[0].ContextMap()["scenario"])
}

func TestVirtualUser_Auth(t *testing.T) {
	var gotAuth atomic.Value
	var calls atomic.Int32
	exec := transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		gotAuth.Store(req.Headers["Authorization"])
		return &transport.Response{Status: 200}, nil
	})

	secured := simple("secured")
	secured.Options.RequiresAuth = true

	t.Run("token attached", func(t *testing.T) {
		results := runOnce(t, vu.Config{Registry: registry(t, secured), Executor: exec, Auth: vu.Auth{Token: "t0k"}}, 1)
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)
		assert.Equal(t, "Bearer t0k", gotAuth.Load())
	})

	t.Run("auth failure degrades only secured scenarios", func(t *testing.T) {
		calls.Store(0)
		reg := registry(t, secured, simple("public"))
		authErr := &transport.AuthError{Reason: "login returned status 401"}
		results := runOnce(t, vu.Config{Registry: reg, Executor: exec, Auth: vu.Auth{Err: authErr}}, 4)

		require.Len(t, results, 4)
		assert.Equal(t, int32(2), calls.Load())
		for _, r := range results {
			if r.Scenario == "secured" {
				assert.False(t, r.Success)
				assert.True(t, r.NotSent)
				assert.Equal(t, []string{metrics.AuthErrorName}, r.FailedValidators)
			} else {
				assert.True(t, r.Success)
				assert.False(t, r.NotSent)
			}
		}
	})
}

func TestVirtualUser_Payload(t *testing.T) {
	var size atomic.Int64
	exec := transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		size.Store(int64(len(req.Body)))
		return &transport.Response{Status: 200, Body: []byte("ok")}, nil
	})

	d := simple("post")
	d.Method = "POST"
	d.PayloadSizeHint = 200
	d.PayloadKind = "concurrent"

	results := runOnce(t, vu.Config{Registry: registry(t, d), Executor: exec, Payloads: transport.RandomPayload{}}, 1)
	require.Len(t, results, 1)
	assert.Greater(t, size.Load(), int64(200))
	assert.Equal(t, size.Load()+2, results[0].Bytes)

	// no generator configured
	results = runOnce(t, vu.Config{Registry: registry(t, d), Executor: exec}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, []string{vu.PayloadErrorName}, results[0].FailedValidators)
	assert.True(t, results[0].NotSent)
}

func TestVirtualUser_DelayAfterEachCall(t *testing.T) {
	var mu sync.Mutex
	var times []time.Time
	exec := transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		return &transport.Response{Status: 200}, nil
	})

	d := simple("paced")
	d.Options.Delay = 50 * time.Millisecond
	runOnce(t, vu.Config{Registry: registry(t, d), Executor: exec}, 3)

	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), 45*time.Millisecond)
	}
}

func TestVirtualUser_CancelAwaitsInFlightCall(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	exec := transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		once.Do(func() { close(started) })
		time.Sleep(100 * time.Millisecond)
		// the call context is detached from run cancellation
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &transport.Response{Status: 200}, nil
	})

	rec := &collector{}
	v, err := vu.New(1, vu.Config{Registry: registry(t, simple("slow")), Recorder: rec, Executor: exec})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go v.Run(ctx)

	<-started
	cancel()
	require.True(t, v.WaitForStop(time.Second))

	results := rec.all()
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, vu.StateStopped, v.State())
}

func TestVirtualUser_RequestStopInterruptsDelay(t *testing.T) {
	d := simple("sleepy")
	d.Options.Delay = time.Hour

	rec := &collector{}
	v, err := vu.New(1, vu.Config{Registry: registry(t, d), Recorder: rec, Executor: okExecutor(time.Millisecond)})
	require.NoError(t, err)

	go v.Run(context.Background())
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)

	v.RequestStop()
	v.RequestStop() // idempotent
	select {
	case <-v.Done():
	case <-time.After(time.Second):
		t.Fatal("VU did not stop")
	}
	assert.Equal(t, int64(1), v.Iterations())
}

func TestVirtualUser_StopBeforeRun(t *testing.T) {
	rec := &collector{}
	v, err := vu.New(1, vu.Config{Registry: registry(t, simple("a")), Recorder: rec, Executor: okExecutor(0)})
	require.NoError(t, err)

	v.RequestStop()
	assert.Equal(t, vu.StateStopping, v.State())
	v.Run(context.Background())

	assert.Empty(t, rec.all())
	assert.Equal(t, vu.StateStopped, v.State())
}

// countingLimiter admits calls and counts them.
type countingLimiter struct {
	waits atomic.Int64
	block bool
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits.Add(1)
	if l.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func TestVirtualUser_WaitsOnLimiter(t *testing.T) {
	lim := &countingLimiter{}
	results := runOnce(t, vu.Config{Registry: registry(t, simple("a")), Executor: okExecutor(0), Limiter: lim}, 3)

	assert.Len(t, results, 3)
	assert.Equal(t, int64(3), lim.waits.Load())
}

func TestVirtualUser_RequestStopInterruptsLimiter(t *testing.T) {
	lim := &countingLimiter{block: true}
	rec := &collector{}
	v, err := vu.New(1, vu.Config{Registry: registry(t, simple("a")), Recorder: rec, Executor: okExecutor(0), Limiter: lim})
	require.NoError(t, err)

	go v.Run(context.Background())
	require.Eventually(t, func() bool { return lim.waits.Load() == 1 }, time.Second, 5*time.Millisecond)

	v.RequestStop()
	select {
	case <-v.Done():
	case <-time.After(time.Second):
		t.Fatal("VU did not stop while waiting on the limiter")
	}
	assert.Empty(t, rec.all())
}
