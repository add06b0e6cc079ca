package dbus

import (
	"context"
	"sync"
)

// PendingCallState is the lifecycle state of a [PendingCall].
type PendingCallState int

const (
	PendingCallPending PendingCallState = iota
	PendingCallCompleted
	PendingCallCancelled
)

// A PendingCall tracks a method call awaiting its reply. It is keyed
// internally by the call's message serial, and is removed from its
// owning [Connection]'s table exactly once, whichever happens first:
// a matching reply arrives, the call is cancelled, or the connection
// is closed out from under it.
type PendingCall struct {
	serial uint32
	conn   *Connection

	mu    sync.Mutex
	state PendingCallState
	reply *Message
	err   error
	done  chan struct{}
}

func newPendingCall(conn *Connection, serial uint32) *PendingCall {
	return &PendingCall{
		serial: serial,
		conn:   conn,
		done:   make(chan struct{}),
	}
}

// Serial returns the message serial this call is waiting on a reply
// to.
func (p *PendingCall) Serial() uint32 { return p.serial }

// State returns the call's current lifecycle state.
func (p *PendingCall) State() PendingCallState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// complete resolves the call with a reply or an error, exactly once.
// It reports whether it was the call that performed the resolution
// (false if the call was already resolved by something else).
func (p *PendingCall) complete(reply *Message, err error) bool {
	p.mu.Lock()
	if p.state != PendingCallPending {
		p.mu.Unlock()
		return false
	}
	p.state = PendingCallCompleted
	p.reply = reply
	p.err = err
	p.mu.Unlock()
	close(p.done)
	return true
}

// Cancel abandons the call. A reply arriving after Cancel is ignored.
// Block on a cancelled call returns [NoReply].
func (p *PendingCall) Cancel() {
	p.mu.Lock()
	if p.state != PendingCallPending {
		p.mu.Unlock()
		return
	}
	p.state = PendingCallCancelled
	p.err = NoReply
	p.mu.Unlock()
	close(p.done)
	p.conn.forgetPendingCall(p.serial)
}

// Steal returns the call's reply message and error without blocking,
// and reports whether the call had already completed. It is meant for
// a handler that wants to take ownership of a reply that arrived
// through the normal dispatch path rather than through Block.
func (p *PendingCall) Steal() (*Message, error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PendingCallPending {
		return nil, nil, false
	}
	return p.reply, p.err, true
}

// Block waits for the call to complete, or for ctx to be done,
// whichever happens first.
func (p *PendingCall) Block(ctx context.Context) (*Message, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.reply, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel that is closed when the call completes.
func (p *PendingCall) Done() <-chan struct{} { return p.done }
