package dispatch

import (
	"context"
	"sync/atomic"
)

// RunLoop drives a Dispatcher cooperatively: the owner's own event
// loop calls [RunLoop.Step] whenever it has been told (via
// [RunLoop.DispatchStatusChanged]) that work is available, instead of
// this package spawning any goroutines of its own.
//
// RunLoop is the right driver when the host already has a single
// threaded loop of its own (a GLib main loop, a game engine's frame
// loop, a CLI's manual poll) and wants dispatch folded into it rather
// than competing with it.
type RunLoop struct {
	d       Dispatcher
	pending atomic.Bool
	busy    atomic.Bool
}

// NewRunLoop returns a RunLoop driving d. Register it as d's status
// observer so RunLoop knows when Step has work to do.
func NewRunLoop(d Dispatcher) *RunLoop {
	return &RunLoop{d: d}
}

// DispatchStatusChanged implements [StatusObserver]. It only records
// that work is pending; it never calls Dispatch itself, so it is safe
// to invoke from inside a Dispatch call.
func (r *RunLoop) DispatchStatusChanged(status Status) {
	if status == DataRemains {
		r.pending.Store(true)
	}
}

// Pending reports whether Step has known work to do.
func (r *RunLoop) Pending() bool {
	return r.pending.Load()
}

// Step runs at most one Dispatch call if work is pending, and reports
// whether it did so. The caller is expected to call Step repeatedly
// from its own loop (for example, once per iteration, or whenever
// Pending reports true).
//
// Step panics if called reentrantly from within a Dispatch it
// triggered - that would violate the no-reentrancy rule the rest of
// this package depends on.
func (r *RunLoop) Step(ctx context.Context) (ran bool, err error) {
	if r.busy.Load() {
		panic("dispatch: RunLoop.Step called reentrantly")
	}
	if !r.pending.CompareAndSwap(true, false) {
		return false, nil
	}
	r.busy.Store(true)
	defer r.busy.Store(false)

	status, err := r.d.Dispatch(ctx)
	if err != nil {
		return true, err
	}
	if status == DataRemains {
		r.pending.Store(true)
	}
	return true, nil
}
