package dbus

import (
	"context"
	"sync"
)

// HandlerResult is returned by a [Filter] or path handler to tell the
// dispatch loop what to do next.
type HandlerResult int

const (
	// NotYourMessage means the handler had nothing to say about the
	// message; the chain continues to the next handler.
	NotYourMessage HandlerResult = iota
	// Handled means the handler fully processed the message; the
	// chain stops here.
	Handled
	// NeedMemory means the handler couldn't process the message due
	// to a resource limit; the chain stops here and dispatch reports
	// [dispatch.NeedMemory] so the caller can retry once resources
	// free up.
	NeedMemory
)

// A Filter observes every incoming message on a [Connection], in
// installation order, regardless of its destination object path. It
// is the low-level hook proxies, property caches, and match-rule
// plumbing are built on.
type Filter func(ctx context.Context, m *Message) HandlerResult

// A PathHandler serves messages addressed to one specific object
// path. It is installed with [Connection.Handle] and consulted only
// for method-call messages whose Path matches.
type PathHandler func(ctx context.Context, m *Message) HandlerResult

// handlerChain implements the ordered, mutation-safe filter chain
// described in the connection's dispatch design: handlers run in
// insertion order, the first one to return anything other than
// NotYourMessage stops the chain, and handlers may add or remove
// other handlers (including themselves) from within a callback
// without corrupting iteration in progress.
type handlerChain struct {
	mu       sync.Mutex
	handlers []*chainEntry
	nextID   uint64
}

type chainEntry struct {
	id      uint64
	removed bool
	fn      Filter
}

func (c *handlerChain) add(fn Filter) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers = append(c.handlers, &chainEntry{id: id, fn: fn})
	return id
}

func (c *handlerChain) remove(id uint64) {
	c.mu.Lock()
	for _, e := range c.handlers {
		if e.id == id {
			e.removed = true
		}
	}
	c.mu.Unlock()
	c.compact()
}

// run invokes the chain against m, snapshotting the handler list so
// that adds/removes triggered by a handler only take effect for
// subsequent dispatches, not the one in progress.
func (c *handlerChain) run(ctx context.Context, m *Message) HandlerResult {
	c.mu.Lock()
	snapshot := make([]*chainEntry, len(c.handlers))
	copy(snapshot, c.handlers)
	c.mu.Unlock()

	for _, e := range snapshot {
		if e.removed {
			continue
		}
		switch r := e.fn(ctx, m); r {
		case NotYourMessage:
			continue
		default:
			return r
		}
	}
	return NotYourMessage
}

// compact drops handlers marked removed. Called by remove so the
// chain doesn't grow unbounded with tombstones under heavy
// add/remove churn.
func (c *handlerChain) compact() {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.handlers[:0]
	for _, e := range c.handlers {
		if !e.removed {
			kept = append(kept, e)
		}
	}
	c.handlers = kept
}

// pathHandlers maps object paths to their registered PathHandler,
// each wrapped the same insertion-order, mutation-safe way as filters
// (a path may have more than one handler registered, for example one
// per exported interface).
type pathHandlers struct {
	mu    sync.Mutex
	byPath map[ObjectPath]*handlerChain
}

func newPathHandlers() *pathHandlers {
	return &pathHandlers{byPath: map[ObjectPath]*handlerChain{}}
}

func (p *pathHandlers) add(path ObjectPath, fn PathHandler) (remove func()) {
	p.mu.Lock()
	chain, ok := p.byPath[path]
	if !ok {
		chain = &handlerChain{}
		p.byPath[path] = chain
	}
	p.mu.Unlock()

	id := chain.add(Filter(fn))
	return func() { chain.remove(id) }
}

func (p *pathHandlers) run(ctx context.Context, m *Message) HandlerResult {
	p.mu.Lock()
	chain, ok := p.byPath[m.Path]
	p.mu.Unlock()
	if !ok {
		return NotYourMessage
	}
	return chain.run(ctx, m)
}
