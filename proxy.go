package dbus

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/gobus-project/dbus/fragments"
)

// A Proxy is a client-side view of one object exported by one peer:
// the (connection, destination, path) triple every method call,
// signal subscription, and property access needs. A Proxy is cheap to
// construct and holds no state of its own beyond these three values
// and an optional call timeout, so callers are free to build one per
// call if convenient.
type Proxy struct {
	conn        *Connection
	destination string
	path        ObjectPath
	timeout     time.Duration
}

// NewProxy returns a Proxy for the object at path on destination,
// reached through conn. timeout, if non-zero, overrides conn's
// default call timeout for calls made through this proxy.
func NewProxy(conn *Connection, destination string, path ObjectPath, timeout time.Duration) Proxy {
	return Proxy{conn: conn, destination: destination, path: path, timeout: timeout}
}

// Conn returns the connection this proxy calls through.
func (p Proxy) Conn() *Connection { return p.conn }

// Destination returns the bus name this proxy addresses.
func (p Proxy) Destination() string { return p.destination }

// Path returns the object path this proxy addresses.
func (p Proxy) Path() ObjectPath { return p.path }

// Interface returns the Methods view of iface on this object.
func (p Proxy) Interface(iface string) Methods {
	return Methods{p: p, iface: iface}
}

// Signals returns the Signals view of iface on this object.
func (p Proxy) Signals(iface string) Signals {
	return Signals{p: p, iface: iface}
}

// Properties returns the Properties view of iface on this object.
func (p Proxy) Properties(iface string) Properties {
	return Properties{p: p, iface: iface}
}

func (p Proxy) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// bodyWriter accumulates a message body's arguments and the file
// descriptors they reference, for handing off to a [bodyFunc].
type bodyWriter struct {
	w     *ArgWriter
	files []*os.File
}

func newBodyWriter(ctx context.Context) *bodyWriter {
	bw := &bodyWriter{}
	bw.w = NewArgWriter(ctx, &bw.files)
	return bw
}

func (bw *bodyWriter) Put(v any) error { return bw.w.Put(v) }

func (bw *bodyWriter) encodeInto(_ context.Context, e *fragments.Encoder) error {
	e.Write(bw.w.Bytes())
	return nil
}

// Methods is the callable-method view of one interface on a [Proxy].
type Methods struct {
	p     Proxy
	iface string
}

// Call invokes method, writing args as the call's body arguments in
// order and decoding the reply into results, which must be pointers.
// A single result may be passed directly; multiple out-arguments use
// one pointer per result, in return order. It blocks until a reply
// arrives, ctx is done, or the proxy's timeout (if any) elapses.
func (m Methods) Call(ctx context.Context, method string, args []any, results ...any) error {
	ctx, cancel := m.p.callCtx(ctx)
	defer cancel()

	bw := newBodyWriter(ctx)
	for _, a := range args {
		if err := bw.Put(a); err != nil {
			return fmt.Errorf("marshaling argument to %s.%s: %w", m.iface, method, err)
		}
	}

	msg, err := NewMethodCall(ctx, m.p.destination, m.p.path, m.iface, method, bw.w.Signature(), bw.encodeInto)
	if err != nil {
		return err
	}
	msg.Files = bw.files

	reply, err := m.p.conn.SendWithReplyBlocking(ctx, msg)
	if err != nil {
		return err
	}
	if reply.Type == MessageError {
		errMsg := ""
		if !reply.Signature.IsZero() {
			_ = reply.Unmarshal(ctx, &errMsg)
		}
		return RemoteError(reply.ErrorName, errMsg)
	}
	if len(results) == 0 {
		return nil
	}
	return reply.Unmarshal(ctx, results...)
}

// OneWay invokes method the same way as Call, but tells the peer not
// to send a reply and returns as soon as the message is sent.
func (m Methods) OneWay(ctx context.Context, method string, args ...any) error {
	bw := newBodyWriter(ctx)
	for _, a := range args {
		if err := bw.Put(a); err != nil {
			return fmt.Errorf("marshaling argument to %s.%s: %w", m.iface, method, err)
		}
	}
	msg, err := NewMethodCall(ctx, m.p.destination, m.p.path, m.iface, method, bw.w.Signature(), bw.encodeInto)
	if err != nil {
		return err
	}
	msg.Files = bw.files
	msg.Flags |= FlagNoReplyExpected
	return m.p.conn.Send(ctx, msg)
}

// Signals is the signal-emit/connect view of one interface on a
// [Proxy].
type Signals struct {
	p     Proxy
	iface string
}

// Emit sends member as a signal from this object, fire-and-forget.
func (s Signals) Emit(ctx context.Context, member string, args ...any) error {
	bw := newBodyWriter(ctx)
	for _, a := range args {
		if err := bw.Put(a); err != nil {
			return fmt.Errorf("marshaling argument to signal %s.%s: %w", s.iface, member, err)
		}
	}
	msg, err := NewSignal(ctx, s.p.path, s.iface, member, bw.w.Signature(), bw.encodeInto)
	if err != nil {
		return err
	}
	msg.Files = bw.files
	return s.p.conn.Send(ctx, msg)
}

// Connect installs fn to run whenever a signal named member arrives
// on this interface from this proxy's destination and path. fn
// receives the decoded arguments through an [ArgReader]. It returns a
// function that removes the subscription.
func (s Signals) Connect(member string, fn func(ctx context.Context, args *ArgReader)) (remove func()) {
	return s.p.conn.AddFilter(func(ctx context.Context, m *Message) HandlerResult {
		if m.Type != MessageSignal || m.Interface != s.iface || m.Member != member {
			return NotYourMessage
		}
		if s.p.path != "" && m.Path != s.p.path {
			return NotYourMessage
		}
		if s.p.destination != "" && m.Sender != s.p.destination {
			return NotYourMessage
		}
		fn(ctx, NewArgReader(ctx, m))
		return NotYourMessage
	})
}

const propertiesInterface = "org.freedesktop.DBus.Properties"

// Properties is the Get/Set/GetAll view of one interface on a
// [Proxy], delegating to the standard org.freedesktop.DBus.Properties
// interface.
type Properties struct {
	p     Proxy
	iface string
}

// Get reads the named property into val, which must be a pointer (or
// *[Variant], to retrieve the raw wrapped value without knowing its
// concrete type ahead of time).
func (props Properties) Get(ctx context.Context, name string, val any) error {
	var v Variant
	if err := props.p.Interface(propertiesInterface).Call(ctx, "Get", []any{props.iface, name}, &v); err != nil {
		return err
	}
	return assignVariant(v, val)
}

// Set writes val to the named property.
func (props Properties) Set(ctx context.Context, name string, val any) error {
	v, err := NewVariant(val)
	if err != nil {
		return err
	}
	return props.p.Interface(propertiesInterface).Call(ctx, "Set", []any{props.iface, name, v})
}

// GetAll reads every property the interface exports.
func (props Properties) GetAll(ctx context.Context) (map[string]Variant, error) {
	var all map[string]Variant
	if err := props.p.Interface(propertiesInterface).Call(ctx, "GetAll", []any{props.iface}, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// PropertiesChanged describes one PropertiesChanged signal emission.
type PropertiesChanged struct {
	Interface   string
	Changed     map[string]Variant
	Invalidated []string
}

// OnChanged subscribes to PropertiesChanged signals, filtering to
// changes reported against props.iface. It returns a function that
// removes the subscription.
func (props Properties) OnChanged(fn func(ctx context.Context, change PropertiesChanged)) (remove func()) {
	return props.p.Signals(propertiesInterface).Connect("PropertiesChanged", func(ctx context.Context, args *ArgReader) {
		var iface string
		var changed map[string]Variant
		var invalidated []string
		if err := args.Next(&iface); err != nil {
			return
		}
		if iface != props.iface {
			return
		}
		if err := args.Next(&changed); err != nil {
			return
		}
		if err := args.Next(&invalidated); err != nil {
			return
		}
		fn(ctx, PropertiesChanged{Interface: iface, Changed: changed, Invalidated: invalidated})
	})
}

// assignVariant stores v's wrapped value into into, which must be a
// pointer. If into is *Variant, the Variant itself (signature and
// all) is stored rather than its unwrapped value.
func assignVariant(v Variant, into any) error {
	if vp, ok := into.(*Variant); ok {
		*vp = v
		return nil
	}
	return assignDynamicValue(v.Value(), into)
}

// assignDynamicValue stores v into the pointer into, converting
// between matching underlying types (for example int32 into a named
// property type) where possible.
func assignDynamicValue(v any, into any) error {
	rv := reflect.ValueOf(into)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: property destination must be a non-nil pointer, got %T", TypeMismatch, into)
	}
	elem := rv.Elem()
	vv := reflect.ValueOf(v)
	if !vv.IsValid() {
		return fmt.Errorf("%w: cannot assign an untyped nil property value into %T", TypeMismatch, into)
	}
	if vv.Type().AssignableTo(elem.Type()) {
		elem.Set(vv)
		return nil
	}
	if vv.Type().ConvertibleTo(elem.Type()) {
		elem.Set(vv.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("%w: property value of type %s is not assignable to %T", TypeMismatch, vv.Type(), into)
}
