package dbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/gobus-project/dbus/dispatch"
	"github.com/gobus-project/dbus/transport"
)

// Limits bounds the resources a [Connection] will commit to messages
// it sends or receives. Exceeding MaxMessageSize, MaxMessageFDs or
// MaxReceivedFDs causes the offending operation to fail with
// [OutOfMemory] rather than grow without bound.
type Limits struct {
	// MaxMessageSize caps the encoded size of a message this
	// connection will send. Zero means no limit.
	MaxMessageSize int
	// MaxMessageFDs caps the number of file descriptors a message
	// this connection sends may carry. Zero means no limit.
	MaxMessageFDs int
	// MaxReceivedSize records a cap on the encoded size of received
	// messages. It is not enforced: the read loop does not check
	// received messages against it.
	MaxReceivedSize int
	// MaxReceivedFDs caps the number of file descriptors a received
	// message may carry. Zero means no limit.
	MaxReceivedFDs int
	// DefaultCallTimeout is used by SendWithReplyBlocking when the
	// caller's context carries no deadline. Zero means wait
	// indefinitely.
	DefaultCallTimeout time.Duration
}

// A Connection is a single DBus connection: a peer-to-peer channel
// over which method calls, replies, errors and signals flow, with no
// built-in assumption that the far end is a message bus (it might be
// a bare peer connected over a private socket pair).
type Connection struct {
	tr     transport.Transport
	limits Limits

	writeMu sync.Mutex
	serial  atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]*PendingCall

	filters handlerChain
	paths   *pathHandlers

	incomingMu sync.Mutex
	incoming   []*Message

	observerMu sync.Mutex
	observer   dispatch.StatusObserver

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	uniqueName atomic.Value // string

	claimsMu sync.Mutex
	claims   mapset.Set[string]
}

// Open wraps an already-authenticated transport in a Connection and
// starts its background read loop. It does not perform the Hello
// call; callers that want a bus connection should use [Connect].
func Open(tr transport.Transport, limits Limits) *Connection {
	c := &Connection{
		tr:      tr,
		limits:  limits,
		pending: map[uint32]*PendingCall{},
		paths:   newPathHandlers(),
		closed:  make(chan struct{}),
		claims:  mapset.New[string](),
	}
	c.uniqueName.Store("")
	go c.readLoop()
	return c
}

// Connect dials addr (a Unix socket path) and performs the Hello call
// expected of a bus connection, recording the unique name the bus
// assigned us.
func Connect(ctx context.Context, addr string, limits Limits) (*Connection, error) {
	tr, err := transport.DialUnix(ctx, addr)
	if err != nil {
		return nil, err
	}
	c := Open(tr, limits)
	var name string
	if err := c.CallBlocking(ctx, "org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus", "Hello", Signature(""), nil, &name); err != nil {
		c.Close()
		return nil, fmt.Errorf("Hello failed: %w", err)
	}
	c.uniqueName.Store(name)
	return c, nil
}

// SystemBus connects to the system-wide bus, conventionally reachable
// at a fixed Unix socket path.
func SystemBus(ctx context.Context, limits Limits) (*Connection, error) {
	return Connect(ctx, "/run/dbus/system_bus_socket", limits)
}

// SessionBus connects to the current user's session bus, whose
// address is published in the DBUS_SESSION_BUS_ADDRESS environment
// variable as a semicolon-separated list of address specs. Only the
// unix:path= transport is supported.
func SessionBus(ctx context.Context, limits Limits) (*Connection, error) {
	addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if addr == "" {
		return nil, errors.New("dbus: session bus not available: DBUS_SESSION_BUS_ADDRESS is not set")
	}
	for _, uri := range strings.Split(addr, ";") {
		path, ok := strings.CutPrefix(uri, "unix:path=")
		if !ok {
			continue
		}
		return Connect(ctx, path, limits)
	}
	return nil, fmt.Errorf("dbus: no usable session bus address in DBUS_SESSION_BUS_ADDRESS=%q", addr)
}

// addClaim records that name is owned (primary or queued) by this
// connection, so [Connection.Claims] can enumerate active claims
// without re-querying the bus.
func (c *Connection) addClaim(name string) {
	c.claimsMu.Lock()
	c.claims.Add(name)
	c.claimsMu.Unlock()
}

func (c *Connection) removeClaim(name string) {
	c.claimsMu.Lock()
	c.claims.Remove(name)
	c.claimsMu.Unlock()
}

// Claims returns the bus names this connection currently holds a
// claim on (primary ownership or queued), as tracked locally by
// [Connection.Claim].
func (c *Connection) Claims() []string {
	c.claimsMu.Lock()
	defer c.claimsMu.Unlock()
	names := make([]string, 0, len(c.claims))
	for name := range c.claims {
		names = append(names, name)
	}
	return names
}

// UniqueName returns the bus-assigned unique name for this
// connection, or "" if it hasn't been assigned one (for a bare peer
// connection, or before Connect's Hello call completes).
func (c *Connection) UniqueName() string {
	return c.uniqueName.Load().(string)
}

// SetStatusObserver registers the observer notified whenever dispatch
// work becomes available. Typically a [dispatch.RunLoop] or
// [dispatch.WorkerPool].
func (c *Connection) SetStatusObserver(o dispatch.StatusObserver) {
	c.observerMu.Lock()
	c.observer = o
	c.observerMu.Unlock()
}

func (c *Connection) notify(status dispatch.Status) {
	c.observerMu.Lock()
	o := c.observer
	c.observerMu.Unlock()
	if o != nil {
		o.DispatchStatusChanged(status)
	}
}

// NextSerial allocates the next outgoing message serial. DBus serials
// start at 1; 0 is reserved to mean "no reply expected".
func (c *Connection) NextSerial() uint32 {
	return c.serial.Add(1)
}

// Send transmits m without waiting for or expecting a reply. m.Serial
// is assigned if not already set.
func (c *Connection) Send(ctx context.Context, m *Message) error {
	return c.send(m)
}

func (c *Connection) send(m *Message) error {
	if m.Serial == 0 {
		m.Serial = c.NextSerial()
	}
	if c.limits.MaxMessageFDs > 0 && len(m.Files) > c.limits.MaxMessageFDs {
		return fmt.Errorf("%w: message carries %d file descriptors, limit is %d", OutOfMemory, len(m.Files), c.limits.MaxMessageFDs)
	}
	m.freeze()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var buf bytes.Buffer
	if _, err := m.EncodeTo(&buf); err != nil {
		return err
	}
	if c.limits.MaxMessageSize > 0 && buf.Len() > c.limits.MaxMessageSize {
		return fmt.Errorf("%w: message is %d bytes, limit is %d", OutOfMemory, buf.Len(), c.limits.MaxMessageSize)
	}
	if len(m.Files) > 0 {
		_, err := c.tr.WriteWithFiles(buf.Bytes(), m.Files)
		return err
	}
	_, err := c.tr.Write(buf.Bytes())
	return err
}

// SendWithReply transmits m (which must expect a reply: its
// FlagNoReplyExpected bit must be clear) and returns a [PendingCall]
// tracking the eventual reply.
func (c *Connection) SendWithReply(ctx context.Context, m *Message) (*PendingCall, error) {
	if m.Serial == 0 {
		m.Serial = c.NextSerial()
	}
	pc := newPendingCall(c, m.Serial)

	c.pendingMu.Lock()
	c.pending[m.Serial] = pc
	c.pendingMu.Unlock()

	if err := c.send(m); err != nil {
		c.forgetPendingCall(m.Serial)
		pc.complete(nil, err)
		return nil, err
	}
	return pc, nil
}

// SendWithReplyBlocking transmits m and blocks for its reply, subject
// to ctx's deadline or the connection's DefaultCallTimeout if ctx has
// none.
func (c *Connection) SendWithReplyBlocking(ctx context.Context, m *Message) (*Message, error) {
	if _, ok := ctx.Deadline(); !ok && c.limits.DefaultCallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.limits.DefaultCallTimeout)
		defer cancel()
	}
	pc, err := c.SendWithReply(ctx, m)
	if err != nil {
		return nil, err
	}
	reply, err := pc.Block(ctx)
	if err != nil {
		pc.Cancel()
		return nil, err
	}
	return reply, nil
}

// CallBlocking is a convenience wrapper for the common case of
// calling a method and decoding a single-argument reply.
func (c *Connection) CallBlocking(ctx context.Context, destination string, path ObjectPath, iface, member string, sig Signature, body bodyFunc, reply ...any) error {
	m, err := NewMethodCall(ctx, destination, path, iface, member, sig, body)
	if err != nil {
		return err
	}
	resp, err := c.SendWithReplyBlocking(ctx, m)
	if err != nil {
		return err
	}
	if resp.Type == MessageError {
		msg := ""
		if !resp.Signature.IsZero() {
			_ = resp.Unmarshal(ctx, &msg)
		}
		return RemoteError(resp.ErrorName, msg)
	}
	if len(reply) == 0 {
		return nil
	}
	return resp.Unmarshal(ctx, reply...)
}

func (c *Connection) forgetPendingCall(serial uint32) {
	c.pendingMu.Lock()
	delete(c.pending, serial)
	c.pendingMu.Unlock()
}

// Handle installs fn to serve method calls addressed to path. It
// returns a function that removes the registration.
func (c *Connection) Handle(path ObjectPath, fn PathHandler) (remove func()) {
	return c.paths.add(path, fn)
}

// AddFilter installs fn to observe every incoming message, in
// installation order. It returns a function that removes the filter.
func (c *Connection) AddFilter(fn Filter) (remove func()) {
	id := c.filters.add(fn)
	return func() { c.filters.remove(id) }
}

// readLoop pulls whole messages off the transport and appends them to
// the dispatch queue, notifying the status observer that work is
// available. It never calls Dispatch itself.
func (c *Connection) readLoop() {
	for {
		m, numFDs, err := DecodeMessage(c.tr)
		if err != nil {
			c.failAllPending(fmt.Errorf("%w: %v", Disconnected, err))
			return
		}
		if c.limits.MaxReceivedFDs > 0 && numFDs > c.limits.MaxReceivedFDs {
			c.failAllPending(fmt.Errorf("%w: received message with %d file descriptors, limit is %d", OutOfMemory, numFDs, c.limits.MaxReceivedFDs))
			return
		}
		if numFDs > 0 {
			files, err := c.tr.GetFiles(numFDs)
			if err != nil {
				c.failAllPending(err)
				return
			}
			m.Files = files
		}

		c.incomingMu.Lock()
		c.incoming = append(c.incoming, m)
		c.incomingMu.Unlock()
		c.notify(dispatch.DataRemains)
	}
}

func (c *Connection) failAllPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = map[uint32]*PendingCall{}
	c.pendingMu.Unlock()
	for _, pc := range pending {
		pc.complete(nil, err)
	}
}

// Dispatch implements [dispatch.Dispatcher]. It processes exactly one
// queued message: resolving a pending call, running the filter chain,
// and finally the path handler for method calls. It must not be
// called reentrantly; the drivers in package dispatch guarantee that.
func (c *Connection) Dispatch(ctx context.Context) (dispatch.Status, error) {
	c.incomingMu.Lock()
	if len(c.incoming) == 0 {
		c.incomingMu.Unlock()
		return dispatch.Complete, nil
	}
	m := c.incoming[0]
	c.incoming = c.incoming[1:]
	remaining := len(c.incoming)
	c.incomingMu.Unlock()

	if m.Sender != "" {
		ctx = withContextSender(ctx, m.Sender)
	}

	if c.dispatchOne(ctx, m) == NeedMemory {
		c.incomingMu.Lock()
		c.incoming = append([]*Message{m}, c.incoming...)
		c.incomingMu.Unlock()
		return dispatch.NeedMemory, nil
	}

	if remaining > 0 {
		return dispatch.DataRemains, nil
	}
	return dispatch.Complete, nil
}

func (c *Connection) dispatchOne(ctx context.Context, m *Message) HandlerResult {
	switch m.Type {
	case MethodReturn, MessageError:
		c.pendingMu.Lock()
		pc, ok := c.pending[m.ReplySerial]
		if ok {
			delete(c.pending, m.ReplySerial)
		}
		c.pendingMu.Unlock()
		if ok {
			if m.Type == MessageError {
				msg := ""
				if !m.Signature.IsZero() {
					_ = m.Unmarshal(ctx, &msg)
				}
				pc.complete(m, RemoteError(m.ErrorName, msg))
			} else {
				pc.complete(m, nil)
			}
			return Handled
		}
	}

	if r := c.filters.run(ctx, m); r != NotYourMessage {
		return r
	}

	if m.Type == MethodCall {
		if r := c.paths.run(ctx, m); r != NotYourMessage {
			return r
		}
		c.replyUnknownObject(ctx, m)
	}
	return NotYourMessage
}

func (c *Connection) replyUnknownObject(ctx context.Context, m *Message) {
	if m.Flags&FlagNoReplyExpected != 0 {
		return
	}
	reply, err := NewError(ctx, m.Sender, m.Serial, UnknownObject.Name, Signature(""), nil)
	if err != nil {
		return
	}
	_ = c.send(reply)
}

// Close shuts down the connection's transport and fails every pending
// call with [Disconnected]. It is safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.tr.Close()
		c.failAllPending(Disconnected)
		close(c.closed)
	})
	return c.closeErr
}

// Done returns a channel closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} { return c.closed }
