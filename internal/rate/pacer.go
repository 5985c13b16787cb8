// Package rate paces calls across the virtual users of a run.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer is a leaky bucket: rather than counting available tokens it tracks
// when the next call may start, so a rate change never releases a burst.
// Calls that are behind schedule start immediately.
//
// Pacer is safe for concurrent use; one Pacer is shared by every VU of a
// run, and concurrent callers get consecutive slots.
type Pacer struct {
	mu          sync.Mutex
	rate        float64 // calls per second
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64

	scheduled atomic.Int64
	waited    atomic.Int64 // nanoseconds
}

// NewPacer returns a pacer admitting perSecond calls per second. A
// non-positive rate is treated as 1. The first call is admitted at once.
func NewPacer(perSecond float64) *Pacer {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Pacer{
		rate:        perSecond,
		lastDrip:    time.Now(),
		accumulated: 1,
		maxBurst:    1,
	}
}

// Next reserves a slot and returns when it starts. The time may be in the
// past, meaning the caller is behind schedule and should go now.
func (p *Pacer) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(p.lastDrip).Seconds(); elapsed > 0 {
		p.accumulated = min(p.accumulated+elapsed*p.rate, p.maxBurst)
	}
	p.scheduled.Add(1)

	if p.accumulated >= 1 {
		p.accumulated--
		p.lastDrip = now
		return now
	}

	// queue behind the latest reservation, which may still be in the future
	// when several VUs are waiting
	base := now
	if p.lastDrip.After(now) {
		base = p.lastDrip
	}
	next := base.Add(time.Duration((1 - p.accumulated) / p.rate * float64(time.Second)))
	p.accumulated = 0
	p.lastDrip = next
	p.waited.Add(int64(next.Sub(now)))
	return next
}

// Wait blocks until the next slot or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := time.Until(p.Next())
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetRate changes the rate. Accumulated capacity is dropped.
func (p *Pacer) SetRate(perSecond float64) {
	if perSecond <= 0 {
		perSecond = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = perSecond
	p.accumulated = 0
	p.lastDrip = time.Now()
}

// Rate returns the current rate in calls per second.
func (p *Pacer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// SetMaxBurst lets up to burst calls start back to back after an idle
// period. Values below 1 are raised to 1.
func (p *Pacer) SetMaxBurst(burst float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxBurst = max(burst, 1)
}

// Stats describes what the pacer has done so far.
type Stats struct {
	Rate      float64       `json:"rate"`
	Scheduled int64         `json:"scheduled"`
	Waited    time.Duration `json:"waited"`
}

func (p *Pacer) Stats() Stats {
	return Stats{
		Rate:      p.Rate(),
		Scheduled: p.scheduled.Load(),
		Waited:    time.Duration(p.waited.Load()),
	}
}
