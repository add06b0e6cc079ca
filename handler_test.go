package dbus

import (
	"context"
	"testing"
)

// TestHandlerChainStopsAtFirstHandled exercises the seed property from
// §8: for handlers [h1,h2,h3], if h1 returns NotYourMessage and h2
// returns Handled, h3 must not run.
func TestHandlerChainStopsAtFirstHandled(t *testing.T) {
	var order []int
	c := &handlerChain{}
	c.add(func(ctx context.Context, m *Message) HandlerResult {
		order = append(order, 1)
		return NotYourMessage
	})
	c.add(func(ctx context.Context, m *Message) HandlerResult {
		order = append(order, 2)
		return Handled
	})
	c.add(func(ctx context.Context, m *Message) HandlerResult {
		order = append(order, 3)
		return Handled
	})

	got := c.run(context.Background(), &Message{})
	if got != Handled {
		t.Errorf("run() = %v, want Handled", got)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("handlers ran in order %v, want [1 2]", order)
	}
}

func TestHandlerChainAllNotYourMessage(t *testing.T) {
	c := &handlerChain{}
	var ran int
	for i := 0; i < 3; i++ {
		c.add(func(ctx context.Context, m *Message) HandlerResult {
			ran++
			return NotYourMessage
		})
	}
	got := c.run(context.Background(), &Message{})
	if got != NotYourMessage {
		t.Errorf("run() = %v, want NotYourMessage", got)
	}
	if ran != 3 {
		t.Errorf("all 3 handlers should have run, got %d", ran)
	}
}

func TestHandlerChainNeedMemoryStops(t *testing.T) {
	c := &handlerChain{}
	var ran int
	c.add(func(ctx context.Context, m *Message) HandlerResult {
		ran++
		return NeedMemory
	})
	c.add(func(ctx context.Context, m *Message) HandlerResult {
		ran++
		return Handled
	})
	got := c.run(context.Background(), &Message{})
	if got != NeedMemory {
		t.Errorf("run() = %v, want NeedMemory", got)
	}
	if ran != 1 {
		t.Errorf("chain should stop at NeedMemory, ran = %d", ran)
	}
}

// TestHandlerChainAddDuringRunIsDeferred exercises the "insertion
// while iterating MUST NOT apply to the current message" invariant
// from §5.
func TestHandlerChainAddDuringRunIsDeferred(t *testing.T) {
	c := &handlerChain{}
	var secondRan bool
	c.add(func(ctx context.Context, m *Message) HandlerResult {
		c.add(func(ctx context.Context, m *Message) HandlerResult {
			secondRan = true
			return Handled
		})
		return NotYourMessage
	})

	if got := c.run(context.Background(), &Message{}); got != NotYourMessage {
		t.Errorf("run() = %v, want NotYourMessage (newly added handler must not run this dispatch)", got)
	}
	if secondRan {
		t.Error("handler added mid-dispatch ran during the same dispatch")
	}

	// On the next dispatch, the newly added handler is present.
	if got := c.run(context.Background(), &Message{}); got != Handled {
		t.Errorf("second run() = %v, want Handled", got)
	}
	if !secondRan {
		t.Error("handler added mid-dispatch never ran on a later dispatch")
	}
}

// TestHandlerChainRemoveDuringRunTakesEffectAfterReturn exercises
// "removal of the currently executing handler is allowed and takes
// effect after its return" from §5.
func TestHandlerChainRemoveDuringRunTakesEffectAfterReturn(t *testing.T) {
	c := &handlerChain{}
	var id uint64
	var calls int
	id = c.add(func(ctx context.Context, m *Message) HandlerResult {
		calls++
		c.remove(id)
		return NotYourMessage
	})

	c.run(context.Background(), &Message{})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	c.run(context.Background(), &Message{})
	if calls != 1 {
		t.Errorf("calls = %d after self-removal, want still 1", calls)
	}
}

func TestPathHandlersDispatchByPath(t *testing.T) {
	p := newPathHandlers()
	var gotEcho, gotOther bool
	p.add("/test/Echo", func(ctx context.Context, m *Message) HandlerResult {
		gotEcho = true
		return Handled
	})
	p.add("/test/Other", func(ctx context.Context, m *Message) HandlerResult {
		gotOther = true
		return Handled
	})

	result := p.run(context.Background(), &Message{Path: "/test/Echo"})
	if result != Handled {
		t.Errorf("run() = %v, want Handled", result)
	}
	if !gotEcho || gotOther {
		t.Errorf("gotEcho=%v gotOther=%v, want true/false", gotEcho, gotOther)
	}
}

func TestPathHandlersRemove(t *testing.T) {
	p := newPathHandlers()
	var calls int
	remove := p.add("/test/Echo", func(ctx context.Context, m *Message) HandlerResult {
		calls++
		return Handled
	})
	p.run(context.Background(), &Message{Path: "/test/Echo"})
	remove()
	result := p.run(context.Background(), &Message{Path: "/test/Echo"})
	if result != NotYourMessage {
		t.Errorf("run() after remove = %v, want NotYourMessage", result)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPathHandlersUnknownPath(t *testing.T) {
	p := newPathHandlers()
	result := p.run(context.Background(), &Message{Path: "/nope"})
	if result != NotYourMessage {
		t.Errorf("run() for unregistered path = %v, want NotYourMessage", result)
	}
}
