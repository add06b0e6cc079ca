package dbus

import (
	"context"
	"testing"
	"time"
)

// closeUnregistered closes w after dropping the rules a test injected
// directly into w.matches: they were never registered with a bus, and
// the zero-value Connection these tests use cannot send RemoveMatch.
func closeUnregistered(w *Watcher) {
	w.mu.Lock()
	clear(w.matches)
	w.mu.Unlock()
	w.Close()
}

func TestWatcherFilterDeliversMatchingSignal(t *testing.T) {
	conn := &Connection{}
	w := conn.Watch()
	defer closeUnregistered(w)

	rule := NewMatchRule().WithInterface("test.Iface").WithMember("Changed")
	w.mu.Lock()
	w.matches[rule.String()] = rule
	w.mu.Unlock()

	ctx := context.Background()
	msg, err := NewSignal(ctx, "/test/Obj", "test.Iface", "Changed", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	msg.Sender = ":1.9"

	if got := w.filter(ctx, msg); got != NotYourMessage {
		t.Errorf("filter() = %v, want NotYourMessage (watchers never claim messages)", got)
	}

	select {
	case n := <-w.Chan():
		if n.Sender != ":1.9" || n.Interface != "test.Iface" || n.Member != "Changed" {
			t.Errorf("notification = %+v, want sender :1.9, test.Iface.Changed", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for matching signal to be delivered")
	}
}

func TestWatcherFilterIgnoresUnmatchedSignal(t *testing.T) {
	conn := &Connection{}
	w := conn.Watch()
	defer closeUnregistered(w)

	rule := NewMatchRule().WithInterface("test.Other")
	w.mu.Lock()
	w.matches[rule.String()] = rule
	w.mu.Unlock()

	ctx := context.Background()
	msg, err := NewSignal(ctx, "/test/Obj", "test.Iface", "Changed", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	w.filter(ctx, msg)

	select {
	case n := <-w.Chan():
		t.Fatalf("unexpected notification delivered: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcherFilterIgnoresNonSignals(t *testing.T) {
	conn := &Connection{}
	w := conn.Watch()
	defer closeUnregistered(w)

	rule := NewMatchRule()
	w.mu.Lock()
	w.matches[rule.String()] = rule
	w.mu.Unlock()

	ctx := context.Background()
	msg, err := NewMethodCall(ctx, "test.Dest", "/test/Obj", "test.Iface", "Foo", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := w.filter(ctx, msg); got != NotYourMessage {
		t.Errorf("filter() on a non-signal = %v, want NotYourMessage", got)
	}
	select {
	case n := <-w.Chan():
		t.Fatalf("unexpected notification delivered for a non-signal message: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestWatcherQueueOverflow exercises the bounded-queue behavior
// directly: once maxWatcherQueue notifications are buffered, further
// arrivals mark the last buffered notification as an overflow marker
// instead of growing the queue further.
func TestWatcherQueueOverflow(t *testing.T) {
	w := &Watcher{matches: map[string]MatchRule{}}

	w.mu.Lock()
	for i := 0; i < maxWatcherQueue+5; i++ {
		w.enqueueLocked(&Notification{Member: "Changed"})
	}
	n := w.queue.Len()
	w.mu.Unlock()

	if n != maxWatcherQueue {
		t.Errorf("queue length = %d, want %d", n, maxWatcherQueue)
	}

	w.mu.Lock()
	last, ok := w.queue.Peek(-1)
	w.mu.Unlock()
	if !ok || last == nil || !last.Overflow {
		t.Errorf("last queued notification Overflow = %v (ok=%v), want true", last, ok)
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	conn := &Connection{}
	w := conn.Watch()
	w.Close()
	w.Close() // must not panic or block
}
