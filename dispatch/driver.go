// Package dispatch bridges a connection's message-dispatch loop to a
// host's own event loop or goroutine pool, without ever calling back
// into the dispatch loop reentrantly.
//
// A connection's Dispatch method processes exactly one queued message
// and reports whether more work remains; it must never be called from
// inside a handler it invokes, nor from inside a status observer it
// notifies. The drivers in this package exist to guarantee that, no
// matter how Dispatch is triggered: a [RunLoop] for callers who pump
// their own single-threaded loop, and a [WorkerPool] for callers who'd
// rather hand dispatch off to a small goroutine pool.
package dispatch

import "context"

// Status reports the outcome of one Dispatcher.Dispatch call.
type Status int

const (
	// Complete indicates the dispatch queue was drained.
	Complete Status = iota
	// DataRemains indicates at least one more message is queued and
	// ready to dispatch.
	DataRemains
	// NeedMemory indicates dispatch could not proceed because some
	// allocation limit was hit; the caller should retry later, after
	// freeing resources (typically by the application completing
	// pending work and releasing message buffers).
	NeedMemory
)

// A Dispatcher processes one unit of incoming connection work per
// call to Dispatch. Implementations must not be reentered: a call to
// Dispatch must never itself (directly or via a callback it invokes)
// call Dispatch again on the same Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context) (Status, error)
}

// A StatusObserver is notified with DataRemains each time a
// Dispatcher queues a new incoming message. Drivers use this to know
// when to schedule work; observers must not call Dispatch from within
// the notification.
type StatusObserver interface {
	DispatchStatusChanged(status Status)
}
