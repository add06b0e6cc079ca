package dispatch

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/gobus-project/dbus/transport"
)

// PollLoop drives a Transport's [transport.Watch] and
// [transport.Timeout] registrations with its own poll(2) loop. It is
// the reference implementation of a foreign event loop for transports
// that ask to have their I/O readiness reported rather than blocking
// in their own goroutine: everywhere else in this package assumes a
// caller-owned loop (RunLoop) or a goroutine pool (WorkerPool), but a
// transport that registers watches still needs something on the
// other end answering transport.WatchDelegate and
// transport.TimeoutDelegate. PollLoop is that something, built on
// unix.Poll from golang.org/x/sys/unix, the module the socket
// transport uses for SCM_RIGHTS.
type PollLoop struct {
	add, remove, toggle chan transport.Watch
	addT, removeT       chan transport.Timeout
	closed              chan struct{}
}

// NewPollLoop starts a PollLoop and returns it. Register the returned
// value as a Transport's watch and timeout delegate to have it driven
// by this loop.
func NewPollLoop() *PollLoop {
	p := &PollLoop{
		add:     make(chan transport.Watch),
		remove:  make(chan transport.Watch),
		toggle:  make(chan transport.Watch),
		addT:    make(chan transport.Timeout),
		removeT: make(chan transport.Timeout),
		closed:  make(chan struct{}),
	}
	go p.run()
	return p
}

// WatchAdded implements [transport.WatchDelegate].
func (p *PollLoop) WatchAdded(w transport.Watch) {
	select {
	case p.add <- w:
	case <-p.closed:
	}
}

// WatchRemoved implements [transport.WatchDelegate].
func (p *PollLoop) WatchRemoved(w transport.Watch) {
	select {
	case p.remove <- w:
	case <-p.closed:
	}
}

// WatchToggled implements [transport.WatchDelegate]. The loop always
// reads Flags() fresh before each poll, so a toggle only needs to
// interrupt a poll that's already blocked.
func (p *PollLoop) WatchToggled(w transport.Watch) {
	select {
	case p.toggle <- w:
	case <-p.closed:
	}
}

// TimeoutAdded implements [transport.TimeoutDelegate].
func (p *PollLoop) TimeoutAdded(t transport.Timeout) {
	select {
	case p.addT <- t:
	case <-p.closed:
	}
}

// TimeoutRemoved implements [transport.TimeoutDelegate].
func (p *PollLoop) TimeoutRemoved(t transport.Timeout) {
	select {
	case p.removeT <- t:
	case <-p.closed:
	}
}

// TimeoutToggled implements [transport.TimeoutDelegate]. Intervals
// are read fresh the next time the timer fires, so toggling is a
// no-op from the loop's perspective.
func (p *PollLoop) TimeoutToggled(t transport.Timeout) {}

// Close stops the loop. It does not close any watched descriptors;
// their owning Transport remains responsible for that.
func (p *PollLoop) Close() {
	close(p.closed)
}

const pollTimeoutMillis = 100

func (p *PollLoop) run() {
	watches := make(map[uintptr]transport.Watch)
	timers := make(map[transport.Timeout]*time.Timer)
	fired := make(chan transport.Timeout, 8)

	for {
		fds := make([]unix.PollFd, 0, len(watches))
		owners := make([]transport.Watch, 0, len(watches))
		for _, w := range watches {
			var events int16
			if w.Flags()&transport.WatchReadable != 0 {
				events |= unix.POLLIN
			}
			if w.Flags()&transport.WatchWritable != 0 {
				events |= unix.POLLOUT
			}
			fds = append(fds, unix.PollFd{Fd: int32(w.Fd()), Events: events})
			owners = append(owners, w)
		}

		pollDone := make(chan struct{})
		var n int
		var pollErr error
		go func() {
			n, pollErr = unix.Poll(fds, pollTimeoutMillis)
			close(pollDone)
		}()

		select {
		case <-p.closed:
			for _, t := range timers {
				t.Stop()
			}
			return
		case w := <-p.add:
			watches[w.Fd()] = w
			continue
		case w := <-p.remove:
			delete(watches, w.Fd())
			continue
		case <-p.toggle:
			continue
		case t := <-p.addT:
			timers[t] = time.AfterFunc(time.Duration(t.IntervalMillis())*time.Millisecond, func() {
				select {
				case fired <- t:
				case <-p.closed:
				}
			})
			continue
		case t := <-p.removeT:
			if timer, ok := timers[t]; ok {
				timer.Stop()
				delete(timers, t)
			}
			continue
		case t := <-fired:
			t.Handle()
			if timer, ok := timers[t]; ok {
				timer.Reset(time.Duration(t.IntervalMillis()) * time.Millisecond)
			}
			continue
		case <-pollDone:
		}

		if pollErr != nil || n <= 0 {
			continue
		}
		for i, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			var ready transport.WatchFlags
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				ready |= transport.WatchReadable
			}
			if pfd.Revents&unix.POLLOUT != 0 {
				ready |= transport.WatchWritable
			}
			if ready != 0 {
				owners[i].Handle(ready)
			}
		}
	}
}
