package dbus

import (
	"context"
	"net"
	"sync"

	"github.com/creachadair/mds/queue"
)

// maxWatcherQueue bounds how many notifications a Watcher buffers
// before it starts collapsing them into an overflow marker.
const maxWatcherQueue = 20

// A Notification is one signal delivered to a [Watcher] because it
// matched one of the watcher's registered rules.
type Notification struct {
	// Sender is the unique name of the signal's emitter.
	Sender string
	// Path, Interface and Member identify the signal the same way
	// they identify it on the wire.
	Path      ObjectPath
	Interface string
	Member    string
	// Args holds the signal body, decoded dynamically one value per
	// top-level DBus argument.
	Args []any
	// Overflow reports that the Watcher discarded notifications
	// following this one because the caller wasn't draining Chan
	// fast enough.
	Overflow bool
}

// A Watcher delivers signals matching a set of [MatchRule]s, managing
// the corresponding AddMatch/RemoveMatch bus registrations on the
// caller's behalf.
//
// A newly created Watcher delivers nothing until [Watcher.Match]
// installs at least one rule. Matches are additive: a signal is
// delivered if it satisfies any of the watcher's rules.
type Watcher struct {
	conn         *Connection
	removeFilter func()

	wakePump      chan struct{}
	notifications chan *Notification
	pumpStopped   chan struct{}

	mu      sync.Mutex
	closed  bool
	queue   queue.Queue[*Notification]
	matches map[string]MatchRule
}

// Watch returns a Watcher observing signals received by conn.
func (c *Connection) Watch() *Watcher {
	w := &Watcher{
		conn:          c,
		notifications: make(chan *Notification),
		wakePump:      make(chan struct{}, 1),
		pumpStopped:   make(chan struct{}),
		matches:       map[string]MatchRule{},
	}
	w.removeFilter = c.AddFilter(w.filter)
	go w.pump()
	return w
}

func (w *Watcher) filter(ctx context.Context, m *Message) HandlerResult {
	if m.Type != MessageSignal {
		return NotYourMessage
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return NotYourMessage
	}
	matched := false
	for _, rule := range w.matches {
		if rule.Matches(m) {
			matched = true
			break
		}
	}
	if !matched {
		w.mu.Unlock()
		return NotYourMessage
	}

	var args []any
	reader := NewArgReader(ctx, m)
	for !reader.Done() {
		v, err := reader.NextDynamic()
		if err != nil {
			break
		}
		args = append(args, v)
	}
	w.enqueueLocked(&Notification{
		Sender:    m.Sender,
		Path:      m.Path,
		Interface: m.Interface,
		Member:    m.Member,
		Args:      args,
	})
	w.mu.Unlock()
	return NotYourMessage
}

func (w *Watcher) enqueueLocked(n *Notification) {
	if w.queue.Len() >= maxWatcherQueue {
		last, _ := w.queue.Peek(-1)
		if last != nil {
			last.Overflow = true
		}
		return
	}
	w.queue.Add(n)
	if w.queue.Len() == 1 {
		select {
		case w.wakePump <- struct{}{}:
		default:
		}
	}
}

// Match registers rule with the bus (via AddMatch) and starts
// delivering signals that satisfy it through Chan. The returned
// remove function undoes the registration, both locally and on the
// bus; using it is optional when the set of matches doesn't need to
// change for the Watcher's lifetime.
func (w *Watcher) Match(ctx context.Context, rule MatchRule) (remove func() error, err error) {
	if err := NewBus(w.conn).AddMatch(ctx, rule); err != nil {
		return nil, err
	}

	key := rule.String()
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = NewBus(w.conn).RemoveMatch(context.Background(), rule)
		return nil, net.ErrClosed
	}
	w.matches[key] = rule
	w.mu.Unlock()

	return func() error {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return nil
		}
		if _, ok := w.matches[key]; !ok {
			w.mu.Unlock()
			return nil
		}
		delete(w.matches, key)
		w.mu.Unlock()
		return NewBus(w.conn).RemoveMatch(context.Background(), rule)
	}, nil
}

// Chan returns the channel on which notifications are delivered.
//
// The caller must drain this channel promptly to avoid overflowing
// the Watcher's receive queue; a dropped run of notifications is
// indicated by the Overflow field of the Notification immediately
// preceding them.
func (w *Watcher) Chan() <-chan *Notification {
	return w.notifications
}

func (w *Watcher) popNotification() *Notification {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, _ := w.queue.Pop()
	return n
}

func (w *Watcher) pump() {
	defer close(w.pumpStopped)
	defer close(w.notifications)
	for {
		n := w.popNotification()
		if n == nil {
			if _, ok := <-w.wakePump; !ok {
				return
			}
			continue
		}
	deliver:
		for {
			select {
			case w.notifications <- n:
				break deliver
			case _, ok := <-w.wakePump:
				if !ok {
					return
				}
				continue
			}
		}
	}
}

// Close stops the Watcher and removes every match rule it registered.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	rules := w.matches
	w.matches = nil
	w.queue.Clear()
	w.mu.Unlock()

	w.removeFilter()
	close(w.wakePump)
	<-w.pumpStopped

	for _, rule := range rules {
		_ = NewBus(w.conn).RemoveMatch(context.Background(), rule)
	}
}
