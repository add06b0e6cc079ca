package dispatch_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gobus-project/dbus/dispatch"
)

// fakeDispatcher dispatches a fixed number of times before reporting
// Complete, counting how many times Dispatch was called.
type fakeDispatcher struct {
	calls     atomic.Int32
	remaining int32
	err       error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context) (dispatch.Status, error) {
	f.calls.Add(1)
	if f.err != nil {
		return dispatch.Complete, f.err
	}
	if f.remaining > 0 {
		f.remaining--
		return dispatch.DataRemains, nil
	}
	return dispatch.Complete, nil
}

func TestRunLoopStepRunsOnlyWhenPending(t *testing.T) {
	d := &fakeDispatcher{}
	rl := dispatch.NewRunLoop(d)

	if ran, _ := rl.Step(context.Background()); ran {
		t.Error("Step() ran with no pending work")
	}

	rl.DispatchStatusChanged(dispatch.DataRemains)
	if !rl.Pending() {
		t.Fatal("Pending() = false after DataRemains notification")
	}

	ran, err := rl.Step(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("Step() did not run despite pending work")
	}
	if rl.Pending() {
		t.Error("Pending() should be false after a Complete dispatch")
	}
	if d.calls.Load() != 1 {
		t.Errorf("Dispatch called %d times, want 1", d.calls.Load())
	}
}

func TestRunLoopStepKeepsDraining(t *testing.T) {
	d := &fakeDispatcher{remaining: 2}
	rl := dispatch.NewRunLoop(d)
	rl.DispatchStatusChanged(dispatch.DataRemains)

	for i := 0; i < 3; i++ {
		ran, err := rl.Step(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !ran {
			t.Fatalf("Step() iteration %d did not run", i)
		}
	}
	if rl.Pending() {
		t.Error("Pending() should be false once the queue is drained")
	}
	if d.calls.Load() != 3 {
		t.Errorf("Dispatch called %d times, want 3", d.calls.Load())
	}
}

func TestRunLoopStepPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	d := &fakeDispatcher{err: wantErr}
	rl := dispatch.NewRunLoop(d)
	rl.DispatchStatusChanged(dispatch.DataRemains)

	ran, err := rl.Step(context.Background())
	if !ran {
		t.Error("Step() should report ran=true even on error")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("Step() error = %v, want %v", err, wantErr)
	}
}

func TestRunLoopStepReentrancyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Step() should panic when called reentrantly")
		}
	}()
	// A dispatcher that calls back into Step from within Dispatch
	// must trip RunLoop's reentrancy guard.
	reentrant := &reentrantDispatcher{}
	rl := dispatch.NewRunLoop(reentrant)
	reentrant.rl = rl
	rl.DispatchStatusChanged(dispatch.DataRemains)
	rl.Step(context.Background())
}

type reentrantDispatcher struct {
	rl *dispatch.RunLoop
}

func (r *reentrantDispatcher) Dispatch(ctx context.Context) (dispatch.Status, error) {
	r.rl.DispatchStatusChanged(dispatch.DataRemains)
	r.rl.Step(ctx)
	return dispatch.Complete, nil
}
