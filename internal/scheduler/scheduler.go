// Package scheduler turns a load profile into a live population of virtual
// users and drives it through the run lifecycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/vu"
)

// DefaultTickInterval is how often the controller recomputes the target
// VU count.
const DefaultTickInterval = 100 * time.Millisecond

// ErrAlreadyStarted is returned by Start on a scheduler that has run.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Factory creates the virtual user for a given ID. IDs start at 1 and are
// never reused within a run.
type Factory func(id int) (*vu.VirtualUser, error)

// Options tune the scheduler.
type Options struct {
	// TickInterval defaults to DefaultTickInterval
	TickInterval time.Duration

	Logger *zap.Logger

	// OnActiveVUs is called with the live VU count after every adjustment
	OnActiveVUs func(n int)

	// OnStateChange is called after every state transition
	OnStateChange func(s State)
}

// Scheduler manages the virtual user population for one run.
//
// The controller goroutine is the only writer of the population; it ticks
// on a fixed interval and is never blocked by a VU.
type Scheduler struct {
	profile Profile
	spawn   Factory
	opts    Options
	log     *zap.Logger

	state atomic.Int32

	mu        sync.Mutex
	vus       []*vu.VirtualUser
	nextID    int
	filled    int // largest population reached
	started   bool
	startTime time.Time
	endTime   time.Time
	cancel    context.CancelFunc
	err       error

	stopped  atomic.Bool
	stopOnce sync.Once

	wg     sync.WaitGroup
	exitCh chan struct{}
	done   chan struct{}
}

// New creates a scheduler for profile. The profile is validated and copied.
func New(profile Profile, spawn Factory, opts Options) (*Scheduler, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if spawn == nil {
		return nil, errors.New("scheduler: factory is required")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	profile.Stages = append([]Stage(nil), profile.Stages...)

	return &Scheduler{
		profile: profile,
		spawn:   spawn,
		opts:    opts,
		log:     opts.Logger,
		exitCh:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// Profile returns the schedule being run.
func (s *Scheduler) Profile() Profile {
	return s.profile
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Done is closed once the run reaches a terminal state.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that aborted the run, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Elapsed returns the run clock: time since start, frozen once terminal.
func (s *Scheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.startTime.IsZero():
		return 0
	case !s.endTime.IsZero():
		return s.endTime.Sub(s.startTime)
	default:
		return time.Since(s.startTime)
	}
}

// ActiveVUs returns the number of VUs currently running.
func (s *Scheduler) ActiveVUs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked()
}

// Start launches the controller and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped.Load() {
		return ErrAlreadyStarted
	}
	s.started = true
	s.startTime = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.profile.Ramping(0) {
		s.transition(StateRamping)
	} else {
		s.transition(StateHolding)
	}

	s.log.Info("run started",
		zap.String("profile", string(s.profile.Kind)),
		zap.Int("targetVUs", s.profile.TargetVUs),
		zap.Duration("duration", s.profile.TotalDuration()))

	go s.run(runCtx)
	return nil
}

// Stop cancels the run. VUs finish their in-flight call, then the run ends
// Cancelled. Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)

		s.mu.Lock()
		started := s.started
		cancel := s.cancel
		s.mu.Unlock()

		if !started {
			s.transition(StateDraining)
			s.transition(StateCancelled)
			close(s.done)
			return
		}

		s.transition(StateDraining)
		cancel()
	})
}

// Wait blocks until the run is terminal or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	total := s.profile.TotalDuration()
	var deadline <-chan time.Time
	if total > 0 {
		timer := time.NewTimer(total)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	// t=0 adjustment so constant profiles start at full size
	s.tick(ctx)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			s.tick(ctx)
		case <-s.exitCh:
			if s.exhausted() {
				s.log.Debug("all virtual users exhausted their iterations")
				break loop
			}
		}
		if s.Err() != nil {
			break loop
		}
	}

	s.transition(StateDraining)
	s.drain()

	s.mu.Lock()
	s.endTime = time.Now()
	s.mu.Unlock()
	s.reportActive(0)

	final := StateCompleted
	if s.stopped.Load() || ctx.Err() != nil || s.Err() != nil {
		final = StateCancelled
	}
	s.transition(final)
	s.cancel()

	s.log.Info("run finished", zap.Stringer("state", final), zap.Duration("elapsed", s.Elapsed()))
}

// tick recomputes the target and spawns or retires the difference.
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	elapsed := s.Elapsed()
	target := s.profile.TargetAt(elapsed)

	if s.profile.Ramping(elapsed) {
		s.transition(StateRamping)
	} else {
		s.transition(StateHolding)
	}

	if err := s.scale(ctx, target); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.log.Error("failed to spawn virtual user", zap.Error(err))
	}
}

// scale adjusts the population to target. Excess VUs are retired from the
// end and allowed to finish their in-flight call.
func (s *Scheduler) scale(ctx context.Context, target int) error {
	s.mu.Lock()
	defer func() {
		live := s.liveLocked()
		s.mu.Unlock()
		s.reportActive(live)
	}()

	current := len(s.vus)
	switch {
	case target > current:
		for i := current; i < target; i++ {
			s.nextID++
			v, err := s.spawn(s.nextID)
			if err != nil {
				return fmt.Errorf("spawn vu %d: %w", s.nextID, err)
			}
			s.vus = append(s.vus, v)
			s.wg.Add(1)
			go s.runVU(ctx, v)
		}
		s.filled = max(s.filled, len(s.vus))
		s.log.Debug("scaled up", zap.Int("from", current), zap.Int("to", target))
	case target < current:
		for i := current - 1; i >= target; i-- {
			s.vus[i].RequestStop()
		}
		s.vus = s.vus[:target]
		s.log.Debug("scaled down", zap.Int("from", current), zap.Int("to", target))
	}
	return nil
}

func (s *Scheduler) runVU(ctx context.Context, v *vu.VirtualUser) {
	defer s.wg.Done()
	v.Run(ctx)

	select {
	case s.exitCh <- struct{}{}:
	default:
	}
}

// exhausted reports whether an iteration-capped run has nothing left to
// do: the population has reached its peak and every VU has returned.
func (s *Scheduler) exhausted() bool {
	if s.profile.Iterations == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled >= s.profile.Peak() && s.liveLocked() == 0
}

// drain asks every VU to stop and waits for them, bounded by GracefulStop
// when set.
func (s *Scheduler) drain() {
	s.mu.Lock()
	for _, v := range s.vus {
		v.RequestStop()
	}
	s.vus = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if s.profile.GracefulStop <= 0 {
		<-done
		return
	}

	timer := time.NewTimer(s.profile.GracefulStop)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.log.Warn("graceful stop expired with calls still in flight", zap.Duration("gracefulStop", s.profile.GracefulStop))
	}
}

func (s *Scheduler) liveLocked() int {
	n := 0
	for _, v := range s.vus {
		if v.State() != vu.StateStopped {
			n++
		}
	}
	return n
}

func (s *Scheduler) reportActive(n int) {
	if s.opts.OnActiveVUs != nil {
		s.opts.OnActiveVUs(n)
	}
}

// transition moves to next unless the current state is terminal or
// already next.
func (s *Scheduler) transition(next State) {
	for {
		cur := State(s.state.Load())
		if cur.Terminal() || cur == next {
			return
		}
		if !cur.canTransition(next) {
			return
		}
		if s.state.CompareAndSwap(int32(cur), int32(next)) {
			s.log.Debug("state changed", zap.Stringer("from", cur), zap.Stringer("to", next))
			if s.opts.OnStateChange != nil {
				s.opts.OnStateChange(next)
			}
			return
		}
	}
}
