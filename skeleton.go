package dbus

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"os"
	"strings"
	"sync"

	"github.com/gobus-project/dbus/fragments"
)

// A MethodFunc implements one exported method: it reads its
// arguments from args, writes its results to reply, and either
// returns nil (a method-return is sent) or an error (an error reply
// is sent, built from the error's *[Error] if it has one).
type MethodFunc func(ctx context.Context, args *ArgReader, reply *ArgWriter) error

// A SignalFunc observes a signal a [Skeleton] has decoded.
type SignalFunc func(ctx context.Context, args *ArgReader)

// A PropertyGetFunc returns the current value of an exported
// property.
type PropertyGetFunc func(ctx context.Context) (any, error)

// A PropertySetFunc stores a new value for an exported property. It
// should return [PropertyReadOnly] or [InvalidArgs] (or an error
// built with [RemoteError]) to reject the write.
type PropertySetFunc func(ctx context.Context, val Variant) error

type propertyEntry struct {
	get PropertyGetFunc
	set PropertySetFunc
}

// A Skeleton exports one object path's interfaces on a [Connection]:
// methods, signals, and properties registered against it are served
// by path handlers installed on Conn. The standard Peer and
// Introspectable interfaces are installed automatically; the
// Properties interface is installed lazily, the first time a property
// is registered.
type Skeleton struct {
	conn *Connection
	path ObjectPath

	mu             sync.Mutex
	properties     map[string]map[string]propertyEntry
	propsInstalled bool
	descriptions   map[string]*InterfaceDescription
	removers       []func()
}

// NewSkeleton returns a Skeleton exporting path on conn.
func NewSkeleton(conn *Connection, path ObjectPath) *Skeleton {
	s := &Skeleton{
		conn:         conn,
		path:         path,
		properties:   map[string]map[string]propertyEntry{},
		descriptions: map[string]*InterfaceDescription{},
	}
	s.installPeer()
	s.installIntrospectable()
	return s
}

// Describe records iface's methods, signals and properties for
// reporting by this object's Introspectable interface. It does not by
// itself register any handler; pair it with [Skeleton.Method],
// [Skeleton.Signal] and [Skeleton.Property] calls that actually serve
// what it describes.
func (s *Skeleton) Describe(iface InterfaceDescription) {
	s.mu.Lock()
	s.descriptions[iface.Name] = &iface
	s.mu.Unlock()
}

func (s *Skeleton) introspectXML() string {
	s.mu.Lock()
	descs := make([]*InterfaceDescription, 0, len(s.descriptions))
	for _, d := range s.descriptions {
		descs = append(descs, d)
	}
	s.mu.Unlock()
	return renderIntrospection(descs)
}

// Close removes every handler this skeleton installed.
func (s *Skeleton) Close() {
	s.mu.Lock()
	removers := s.removers
	s.removers = nil
	s.mu.Unlock()
	for _, r := range removers {
		r()
	}
}

func (s *Skeleton) track(remove func()) {
	s.mu.Lock()
	s.removers = append(s.removers, remove)
	s.mu.Unlock()
}

// Method registers fn to serve method calls to iface.member on this
// object. A mismatched interface or member defers to other handlers
// registered at the same path.
func (s *Skeleton) Method(iface, member string, fn MethodFunc) (remove func()) {
	remove = s.conn.Handle(s.path, func(ctx context.Context, m *Message) HandlerResult {
		if m.Type != MethodCall || m.Interface != iface || m.Member != member {
			return NotYourMessage
		}

		args := NewArgReader(ctx, m)
		var files []*os.File
		reply := NewArgWriter(ctx, &files)
		err := fn(ctx, args, reply)

		if m.Flags&FlagNoReplyExpected != 0 {
			return Handled
		}
		if err != nil {
			s.replyError(ctx, m, err)
			return Handled
		}
		rm, rerr := NewMethodReturn(ctx, m.Sender, m.Serial, reply.Signature(), func(_ context.Context, e *fragments.Encoder) error {
			e.Write(reply.Bytes())
			return nil
		})
		if rerr != nil {
			return Handled
		}
		rm.Files = files
		_ = s.conn.Send(ctx, rm)
		return Handled
	})
	s.track(remove)
	return remove
}

// Signal registers fn to observe signals named iface.member arriving
// at this object's path. When consumed is false (the default use),
// the handler returns NotYourMessage after running fn so other
// subscribers registered at the same path also see the signal; when
// true, this subscriber claims the message exclusively.
func (s *Skeleton) Signal(iface, member string, consumed bool, fn SignalFunc) (remove func()) {
	remove = s.conn.Handle(s.path, func(ctx context.Context, m *Message) HandlerResult {
		if m.Type != MessageSignal || m.Interface != iface || m.Member != member {
			return NotYourMessage
		}
		fn(ctx, NewArgReader(ctx, m))
		if consumed {
			return Handled
		}
		return NotYourMessage
	})
	s.track(remove)
	return remove
}

// Property registers a property named name on iface, served by the
// shared Properties interface handler this skeleton installs on
// first use. set may be nil, making the property read-only: a Set
// call against it is rejected with [PropertyReadOnly].
func (s *Skeleton) Property(iface, name string, get PropertyGetFunc, set PropertySetFunc) (remove func()) {
	s.mu.Lock()
	if s.properties[iface] == nil {
		s.properties[iface] = map[string]propertyEntry{}
	}
	s.properties[iface][name] = propertyEntry{get: get, set: set}
	s.installPropertiesLocked()
	s.mu.Unlock()

	remove = func() {
		s.mu.Lock()
		delete(s.properties[iface], name)
		s.mu.Unlock()
	}
	s.track(remove)
	return remove
}

// EmitPropertiesChanged sends a PropertiesChanged signal for iface
// from this object's path.
func (s *Skeleton) EmitPropertiesChanged(ctx context.Context, iface string, changed map[string]Variant, invalidated []string) error {
	return NewProxy(s.conn, "", s.path, 0).Signals(propertiesInterface).Emit(ctx, "PropertiesChanged", iface, changed, invalidated)
}

func (s *Skeleton) installPropertiesLocked() {
	if s.propsInstalled {
		return
	}
	s.propsInstalled = true
	remove := s.conn.Handle(s.path, s.handleProperties)
	s.removers = append(s.removers, remove)
}

func (s *Skeleton) handleProperties(ctx context.Context, m *Message) HandlerResult {
	if m.Type != MethodCall || m.Interface != propertiesInterface {
		return NotYourMessage
	}
	switch m.Member {
	case "Get":
		var iface, name string
		if err := m.Unmarshal(ctx, &iface, &name); err != nil {
			s.replyError(ctx, m, InvalidArgs)
			return Handled
		}
		entry, ok := s.lookupProperty(iface, name)
		if !ok {
			s.replyError(ctx, m, UnknownProperty)
			return Handled
		}
		val, err := entry.get(ctx)
		if err != nil {
			s.replyError(ctx, m, err)
			return Handled
		}
		v, err := NewVariant(val)
		if err != nil {
			s.replyError(ctx, m, err)
			return Handled
		}
		s.replyWith(ctx, m, "v", v)
		return Handled

	case "Set":
		var iface, name string
		var v Variant
		if err := m.Unmarshal(ctx, &iface, &name, &v); err != nil {
			s.replyError(ctx, m, InvalidArgs)
			return Handled
		}
		entry, ok := s.lookupProperty(iface, name)
		if !ok {
			s.replyError(ctx, m, UnknownProperty)
			return Handled
		}
		if entry.set == nil {
			s.replyError(ctx, m, PropertyReadOnly)
			return Handled
		}
		if err := entry.set(ctx, v); err != nil {
			s.replyError(ctx, m, err)
			return Handled
		}
		if m.Flags&FlagNoReplyExpected == 0 {
			if rm, err := NewMethodReturn(ctx, m.Sender, m.Serial, "", nil); err == nil {
				_ = s.conn.Send(ctx, rm)
			}
		}
		return Handled

	case "GetAll":
		var iface string
		if err := m.Unmarshal(ctx, &iface); err != nil {
			s.replyError(ctx, m, InvalidArgs)
			return Handled
		}
		s.mu.Lock()
		entries := maps.Clone(s.properties[iface])
		s.mu.Unlock()
		result := map[string]Variant{}
		for name, entry := range entries {
			val, err := entry.get(ctx)
			if err != nil {
				continue
			}
			v, err := NewVariant(val)
			if err != nil {
				continue
			}
			result[name] = v
		}
		s.replyWith(ctx, m, "a{sv}", result)
		return Handled

	default:
		return NotYourMessage
	}
}

func (s *Skeleton) lookupProperty(iface, name string) (propertyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.properties[iface][name]
	return entry, ok
}

func (s *Skeleton) replyWith(ctx context.Context, m *Message, sig string, val any) {
	if m.Flags&FlagNoReplyExpected != 0 {
		return
	}
	rm, err := NewMethodReturn(ctx, m.Sender, m.Serial, mustParseSignature(sig), func(ctx context.Context, e *fragments.Encoder) error {
		return Marshal(ctx, e, val)
	})
	if err != nil {
		return
	}
	_ = s.conn.Send(ctx, rm)
}

func (s *Skeleton) replyError(ctx context.Context, m *Message, err error) {
	name, msg := errorNameAndMessage(err)
	rm, rerr := NewError(ctx, m.Sender, m.Serial, name, mustParseSignature("s"), func(_ context.Context, e *fragments.Encoder) error {
		e.String(msg)
		return nil
	})
	if rerr != nil {
		return
	}
	_ = s.conn.Send(ctx, rm)
}

func errorNameAndMessage(err error) (name, msg string) {
	var de *Error
	if errors.As(err, &de) {
		if de.Name != "" {
			return de.Name, de.Message
		}
		return "org.freedesktop.DBus.Error.Failed", de.Error()
	}
	return "org.freedesktop.DBus.Error.Failed", err.Error()
}

const peerInterface = "org.freedesktop.DBus.Peer"
const introspectableInterface = "org.freedesktop.DBus.Introspectable"

var machineID = sync.OnceValues(func() (string, error) {
	bs, err := os.ReadFile("/etc/machine-id")
	if errors.Is(err, fs.ErrNotExist) {
		bs, err = os.ReadFile("/var/lib/dbus/machine-id")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bs)), nil
})

func (s *Skeleton) installPeer() {
	s.Method(peerInterface, "Ping", func(ctx context.Context, args *ArgReader, reply *ArgWriter) error {
		return nil
	})
	s.Method(peerInterface, "GetMachineId", func(ctx context.Context, args *ArgReader, reply *ArgWriter) error {
		id, err := machineID()
		if err != nil {
			return RemoteError("org.freedesktop.DBus.Error.Failed", err.Error())
		}
		return reply.Put(id)
	})
	s.Describe(InterfaceDescription{
		Name: peerInterface,
		Methods: []*MethodDescription{
			{Name: "Ping"},
			{Name: "GetMachineId", Out: []ArgumentDescription{{Name: "machine_uuid", Type: mustParseSignature("s")}}},
		},
	})
}

func (s *Skeleton) installIntrospectable() {
	s.Method(introspectableInterface, "Introspect", func(ctx context.Context, args *ArgReader, reply *ArgWriter) error {
		return reply.Put(s.introspectXML())
	})
	s.Describe(InterfaceDescription{
		Name: introspectableInterface,
		Methods: []*MethodDescription{
			{Name: "Introspect", Out: []ArgumentDescription{{Name: "xml_data", Type: mustParseSignature("s")}}},
		},
	})
}
