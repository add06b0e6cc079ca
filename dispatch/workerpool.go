package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/creachadair/taskgroup"
)

// WorkerPool drives a Dispatcher from a small pool of goroutines
// instead of the caller's own loop. It's the right choice for a
// program with no single-threaded event loop of its own - a typical
// server handling DBus calls concongside other concurrent work.
//
// WorkerPool still honors the no-reentrancy rule: at most one
// goroutine is ever inside Dispatch at a time, enforced by an
// internal gate rather than by the taskgroup's concurrency limit
// alone (that limit bounds how many tasks the group will run, not how
// many of them touch the Dispatcher concurrently).
type WorkerPool struct {
	d       Dispatcher
	g       *taskgroup.Group
	run     taskgroup.StartFunc
	notify  chan struct{}
	draining atomic.Bool
}

// NewWorkerPool returns a WorkerPool driving d, running dispatch work
// across up to concurrency goroutines from the pool's underlying
// taskgroup.
func NewWorkerPool(d Dispatcher, concurrency int) *WorkerPool {
	g, run := taskgroup.New(nil).Limit(concurrency)
	return &WorkerPool{
		d:      d,
		g:      g,
		run:    run,
		notify: make(chan struct{}, 1),
	}
}

// DispatchStatusChanged implements [StatusObserver]. It schedules a
// drain task on the pool if one isn't already running.
func (w *WorkerPool) DispatchStatusChanged(status Status) {
	if status != DataRemains {
		return
	}
	select {
	case w.notify <- struct{}{}:
	default:
	}
	if w.draining.CompareAndSwap(false, true) {
		w.run(w.drain)
	}
}

// drain repeatedly calls Dispatch until the queue reports Complete,
// then releases the gate. Exactly one goroutine runs drain at a time.
func (w *WorkerPool) drain() error {
	defer w.draining.Store(false)
	ctx := context.Background()
	for {
		select {
		case <-w.notify:
		default:
			return nil
		}
		status, err := w.d.Dispatch(ctx)
		if err != nil {
			return err
		}
		if status == DataRemains {
			select {
			case w.notify <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until every task the pool has scheduled has finished,
// and returns the first error any of them returned.
func (w *WorkerPool) Wait() error { return w.g.Wait() }
