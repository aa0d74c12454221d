// Package pool runs independent units of work with bounded concurrency.
// A failing unit never affects its siblings: every unit gets its own
// result slot, filled in submission order.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/semaphore"

	clog "github.com/xrsl/tailor/pkg/log"
)

// ErrNotAdmitted is the result error of units that were never started
// because the context was cancelled first.
var ErrNotAdmitted = errors.New("unit not admitted: run cancelled")

// Pool bounds how many units run at once. A zero Pool is unlimited.
type Pool struct {
	capacity    int64
	sem         *semaphore.Weighted
	unitTimeout time.Duration
}

// Option configures a Pool.
type Option func(*Pool)

// WithUnitTimeout fails any unit still running after d.
func WithUnitTimeout(d time.Duration) Option {
	return func(p *Pool) { p.unitTimeout = d }
}

// New creates a pool running at most capacity units concurrently.
// capacity <= 0 means unlimited; 1 runs units strictly in submission order.
func New(capacity int, opts ...Option) *Pool {
	p := &Pool{}
	if capacity > 0 {
		p.capacity = int64(capacity)
		p.sem = semaphore.NewWeighted(p.capacity)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Capacity returns the concurrency bound, 0 when unlimited.
func (p *Pool) Capacity() int { return int(p.capacity) }

// Unit is one independently schedulable piece of work.
type Unit[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// Result is the outcome of one unit.
type Result[T any] struct {
	ID       string
	Value    T
	Err      error
	Duration time.Duration
}

// Failed reports whether the unit did not produce a value.
func (r Result[T]) Failed() bool { return r.Err != nil }

// RunMany runs units through p and returns one result per unit, in
// submission order. Once ctx is done no further units are admitted and
// their results carry ErrNotAdmitted; units already admitted run to
// completion on a context that ignores the cancellation of ctx.
func RunMany[T any](ctx context.Context, p *Pool, units []Unit[T]) []Result[T] {
	if p == nil {
		p = New(0)
	}
	results := make([]Result[T], len(units))
	for i, u := range units {
		results[i].ID = u.ID
	}
	if len(units) == 0 {
		return results
	}

	// Admitted units keep ctx values but not its cancellation.
	detached := context.WithoutCancel(ctx)
	done := make(chan struct{}, len(units))
	started := 0

	for i := range units {
		if !p.admit(ctx) {
			for j := i; j < len(units); j++ {
				results[j].Err = ErrNotAdmitted
			}
			clog.Debug("pool stopped admitting units",
				"admitted", i,
				"skipped", len(units)-i,
			)
			break
		}
		started++

		if p.capacity == 1 {
			// Strictly sequential: wait on this goroutine.
			runUnit(detached, p.unitTimeout, units[i], &results[i], p.release)
			done <- struct{}{}
			continue
		}

		go func(i int) {
			runUnit(detached, p.unitTimeout, units[i], &results[i], p.release)
			done <- struct{}{}
		}(i)
	}

	for range started {
		<-done
	}
	return results
}

func (p *Pool) admit(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if p.sem == nil {
		return true
	}
	return p.sem.Acquire(ctx, 1) == nil
}

func (p *Pool) release() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// runUnit executes one unit and writes only to its own slot. A unit that
// outlives its timeout is reported as failed at once, but it keeps its
// permit: release runs only when the unit's goroutine returns.
func runUnit[T any](ctx context.Context, timeout time.Duration, u Unit[T], res *Result[T], release func()) {
	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ch := make(chan outcome[T], 1)
	go func() {
		defer release()
		var out outcome[T]
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("unit %s panicked: %v", u.ID, r)
				clog.Error("unit panicked", "unit", u.ID, "panic", r, "stack", string(debug.Stack()))
			}
			ch <- out
		}()
		out.value, out.err = u.Run(ctx)
	}()

	select {
	case out := <-ch:
		res.Value, res.Err = out.value, out.err
	case <-ctx.Done():
		res.Err = fmt.Errorf("unit %s: %w", u.ID, ctx.Err())
	}
	res.Duration = time.Since(start)

	if res.Err != nil {
		clog.Warn("unit failed", "unit", u.ID, "duration", res.Duration, "error", res.Err)
		return
	}
	clog.Debug("unit finished", "unit", u.ID, "duration", res.Duration)
}
