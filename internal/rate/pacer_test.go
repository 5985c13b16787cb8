package rate

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPacer(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want float64
	}{
		{"positive rate", 100, 100},
		{"zero rate defaults to 1", 0, 1},
		{"negative rate defaults to 1", -10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewPacer(tt.rate).Rate(); got != tt.want {
				t.Errorf("Rate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPacer_FirstCallImmediate(t *testing.T) {
	p := NewPacer(1)

	if d := time.Until(p.Next()); d > 0 {
		t.Errorf("first Next() is %v in the future, want immediate", d)
	}
}

func TestPacer_Spacing(t *testing.T) {
	p := NewPacer(100) // 10ms apart
	_ = p.Next()

	d := time.Until(p.Next())
	if d < 5*time.Millisecond || d > 15*time.Millisecond {
		t.Errorf("second slot in %v, want ~10ms", d)
	}
}

func TestPacer_WaitRespectsContext(t *testing.T) {
	p := NewPacer(1)
	_ = p.Next()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait() took %v, should have returned on cancellation", elapsed)
	}
}

func TestPacer_SetRateDoesNotBurst(t *testing.T) {
	p := NewPacer(1000)
	for range 5 {
		_ = p.Next()
	}

	p.SetRate(1)
	if d := time.Until(p.Next()); d < 500*time.Millisecond {
		t.Errorf("after SetRate(1) next slot in %v, want ~1s", d)
	}

	p.SetRate(0)
	if got := p.Rate(); got != 1 {
		t.Errorf("after SetRate(0) Rate() = %v, want 1", got)
	}
}

func TestPacer_Throughput(t *testing.T) {
	p := NewPacer(200)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				_ = p.Wait(ctx)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// 40 calls at 200/s, the first free: ~195ms
	if elapsed < 150*time.Millisecond || elapsed > time.Second {
		t.Errorf("40 calls took %v, want ~195ms", elapsed)
	}
	if got := p.Stats().Scheduled; got != 40 {
		t.Errorf("Scheduled = %d, want 40", got)
	}
}

func TestPacer_ConcurrentReservationsAreSpaced(t *testing.T) {
	p := NewPacer(100) // 10ms apart

	const callers = 8
	slots := make([]time.Time, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slots[i] = p.Next()
		}()
	}
	wg.Wait()

	slices.SortFunc(slots, func(a, b time.Time) int { return a.Compare(b) })
	for i := 1; i < callers; i++ {
		if gap := slots[i].Sub(slots[i-1]); gap < 9*time.Millisecond {
			t.Errorf("slots %d and %d are %v apart, want ~10ms", i-1, i, gap)
		}
	}
}

func TestPacer_SharedRateHoldsAcrossWaiters(t *testing.T) {
	tests := []struct {
		name    string
		waiters int
	}{
		{"one waiter", 1},
		{"four waiters", 4},
		{"ten waiters", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacer(20)
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			var admitted atomic.Int64
			var wg sync.WaitGroup
			for range tt.waiters {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for p.Wait(ctx) == nil {
						admitted.Add(1)
					}
				}()
			}
			wg.Wait()

			// 500ms at 20/s plus the free first call
			if got := admitted.Load(); got < 8 || got > 12 {
				t.Errorf("admitted %d calls, want ~11 regardless of waiters", got)
			}
		})
	}
}

func TestPacer_Burst(t *testing.T) {
	p := NewPacer(100)
	p.SetMaxBurst(5)
	time.Sleep(100 * time.Millisecond)

	for i := range 5 {
		if d := time.Until(p.Next()); d > 0 {
			t.Fatalf("call %d waited %v, want burst of 5", i, d)
		}
	}
	if d := time.Until(p.Next()); d <= 0 {
		t.Errorf("sixth call should wait")
	}
}
