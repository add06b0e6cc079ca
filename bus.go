package dbus

import (
	"context"
	"fmt"
)

const (
	busDestination = "org.freedesktop.DBus"
	busPath        ObjectPath = "/org/freedesktop/DBus"
	busInterface   = "org.freedesktop.DBus"
)

// NameFlags control the behavior of [Bus.RequestName], mirroring the
// flag bits the DBus specification defines for that method.
type NameFlags uint32

const (
	// AllowReplacement lets another requestor take over the name with
	// ReplaceExisting set.
	AllowReplacement NameFlags = 1 << iota
	// ReplaceExisting asks the bus to transfer ownership away from the
	// current primary owner, if that owner set AllowReplacement.
	ReplaceExisting
	// DoNotQueue causes RequestName to fail outright, instead of
	// joining the queue of backup owners, if primary ownership can't
	// be granted immediately.
	DoNotQueue
)

// Bus is a client-side view of the message bus daemon's own
// org.freedesktop.DBus interface at the well-known destination
// "org.freedesktop.DBus", object path "/org/freedesktop/DBus". It
// wraps a [Proxy] the same way any other bus service would be
// addressed; there is nothing special about the bus from the wire
// protocol's point of view.
type Bus struct {
	p Proxy
}

// NewBus returns a Bus reached through conn.
func NewBus(conn *Connection) Bus {
	return Bus{p: NewProxy(conn, busDestination, busPath, 0)}
}

func (b Bus) methods() Methods       { return b.p.Interface(busInterface) }
func (b Bus) properties() Properties { return b.p.Properties(busInterface) }

// Signals returns the Signals view of the bus's own interface, for
// subscribing to NameOwnerChanged, NameLost, NameAcquired and
// ActivatableServicesChanged directly. Most callers should instead go
// through a [Watcher], which also handles the AddMatch bookkeeping.
func (b Bus) Signals() Signals { return b.p.Signals(busInterface) }

// RequestName asks the bus to assign name to the calling connection.
//
// A bus name has a single primary owner and a queue of backup owners
// willing to take over should the primary owner disconnect or
// release the name. If the name has no owner, the caller becomes the
// primary owner and RequestName returns (true, nil). Otherwise, by
// default, the caller joins the queue of backup owners and
// RequestName returns (false, nil); [DoNotQueue] in flags instead
// makes RequestName fail if primary ownership isn't granted
// immediately.
//
// [ReplaceExisting] asks the bus to skip the queue and take ownership
// away from the current primary owner, which only succeeds if that
// owner's own request had [AllowReplacement] set.
func (b Bus) RequestName(ctx context.Context, name string, flags NameFlags) (primary bool, err error) {
	var resp uint32
	if err := b.methods().Call(ctx, "RequestName", []any{name, uint32(flags)}, &resp); err != nil {
		return false, err
	}
	switch resp {
	case 1, 4: // primary owner, or already primary owner
		return true, nil
	case 2: // in queue
		return false, nil
	case 3: // DoNotQueue and couldn't become primary
		return false, fmt.Errorf("%w: name %q is not available", InvalidArgs, name)
	default:
		return false, fmt.Errorf("dbus: unexpected RequestName response code %d", resp)
	}
}

// ReleaseName releases a name previously obtained with RequestName,
// or removes the caller from its backup owner queue.
func (b Bus) ReleaseName(ctx context.Context, name string) error {
	var resp uint32
	return b.methods().Call(ctx, "ReleaseName", []any{name}, &resp)
}

// ListNames returns the bus names currently connected to the bus.
func (b Bus) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	err := b.methods().Call(ctx, "ListNames", nil, &names)
	return names, err
}

// ListActivatableNames returns the names of services the bus can
// start on demand.
func (b Bus) ListActivatableNames(ctx context.Context) ([]string, error) {
	var names []string
	err := b.methods().Call(ctx, "ListActivatableNames", nil, &names)
	return names, err
}

// NameHasOwner reports whether name currently has a primary owner.
func (b Bus) NameHasOwner(ctx context.Context, name string) (bool, error) {
	var has bool
	err := b.methods().Call(ctx, "NameHasOwner", []any{name}, &has)
	return has, err
}

// GetNameOwner returns the unique connection name of name's primary
// owner.
func (b Bus) GetNameOwner(ctx context.Context, name string) (string, error) {
	var owner string
	err := b.methods().Call(ctx, "GetNameOwner", []any{name}, &owner)
	return owner, err
}

// ListQueuedOwners returns the unique connection names queued to own
// name, in queue order, starting with the current primary owner.
func (b Bus) ListQueuedOwners(ctx context.Context, name string) ([]string, error) {
	var owners []string
	err := b.methods().Call(ctx, "ListQueuedOwners", []any{name}, &owners)
	return owners, err
}

// StartServiceByName asks the bus to launch the executable associated
// with an activatable name, if it isn't already running. flags is
// reserved by the DBus specification and should be 0.
func (b Bus) StartServiceByName(ctx context.Context, name string, flags uint32) (uint32, error) {
	var result uint32
	err := b.methods().Call(ctx, "StartServiceByName", []any{name, flags}, &result)
	return result, err
}

// UpdateActivationEnvironment updates the environment used to launch
// activatable services. Requires sufficient bus policy permissions.
func (b Bus) UpdateActivationEnvironment(ctx context.Context, env map[string]string) error {
	return b.methods().Call(ctx, "UpdateActivationEnvironment", []any{env})
}

// GetConnectionUnixUser returns the numeric Unix user ID of the
// process holding name.
func (b Bus) GetConnectionUnixUser(ctx context.Context, name string) (uint32, error) {
	var uid uint32
	err := b.methods().Call(ctx, "GetConnectionUnixUser", []any{name}, &uid)
	return uid, err
}

// GetConnectionUnixProcessID returns the PID of the process holding
// name.
func (b Bus) GetConnectionUnixProcessID(ctx context.Context, name string) (uint32, error) {
	var pid uint32
	err := b.methods().Call(ctx, "GetConnectionUnixProcessID", []any{name}, &pid)
	return pid, err
}

// GetAdtAuditSessionData returns opaque Solaris audit data for the
// process holding name, where available.
func (b Bus) GetAdtAuditSessionData(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := b.methods().Call(ctx, "GetAdtAuditSessionData", []any{name}, &data)
	return data, err
}

// GetConnectionSELinuxSecurityContext returns the raw SELinux security
// context of the process holding name, where available.
func (b Bus) GetConnectionSELinuxSecurityContext(ctx context.Context, name string) ([]byte, error) {
	var ctxBytes []byte
	err := b.methods().Call(ctx, "GetConnectionSELinuxSecurityContext", []any{name}, &ctxBytes)
	return ctxBytes, err
}

// GetConnectionCredentials returns the credentials of the process
// holding name, as a vardict (keys such as "UnixUserID",
// "ProcessID", "LinuxSecurityLabel").
func (b Bus) GetConnectionCredentials(ctx context.Context, name string) (map[string]Variant, error) {
	var creds map[string]Variant
	err := b.methods().Call(ctx, "GetConnectionCredentials", []any{name}, &creds)
	return creds, err
}

// GetId returns the bus's own unique identifier, stable for the
// lifetime of the bus daemon.
func (b Bus) GetId(ctx context.Context) (string, error) {
	var id string
	err := b.methods().Call(ctx, "GetId", nil, &id)
	return id, err
}

// Features returns the optional feature set the bus daemon advertises
// on its Features property.
func (b Bus) Features(ctx context.Context) ([]string, error) {
	var features []string
	err := b.properties().Get(ctx, "Features", &features)
	return features, err
}

// Interfaces returns the additional interfaces the bus daemon
// advertises on its Interfaces property.
func (b Bus) Interfaces(ctx context.Context) ([]string, error) {
	var ifaces []string
	err := b.properties().Get(ctx, "Interfaces", &ifaces)
	return ifaces, err
}

// AddMatch registers rule with the bus, so that matching signals are
// routed to the calling connection. Most callers should use
// [Connection.Watch] instead of calling this directly, since a raw
// AddMatch is only useful paired with manual bookkeeping of which
// rules are active.
func (b Bus) AddMatch(ctx context.Context, rule MatchRule) error {
	return b.methods().Call(ctx, "AddMatch", []any{rule.String()})
}

// RemoveMatch undoes a prior AddMatch for the identical rule.
func (b Bus) RemoveMatch(ctx context.Context, rule MatchRule) error {
	return b.methods().Call(ctx, "RemoveMatch", []any{rule.String()})
}

// NameOwnerChanged is emitted by the bus whenever a name's owner
// changes: acquired, released or transferred. OldOwner and NewOwner
// are empty strings for a name coming into or going out of existence
// entirely.
type NameOwnerChanged struct {
	Name     string
	OldOwner string
	NewOwner string
}

// NameLost is emitted by the bus to a connection that has just lost
// ownership (primary or queued) of Name.
type NameLost struct {
	Name string
}

// NameAcquired is emitted by the bus to a connection that has just
// become the primary owner of Name.
type NameAcquired struct {
	Name string
}

// ActivatableServicesChanged is emitted by the bus whenever the set of
// activatable names changes.
type ActivatableServicesChanged struct{}

// InterfacesAdded is emitted by objects implementing
// org.freedesktop.DBus.ObjectManager when a new object, or new
// interfaces on an existing object, become available.
type InterfacesAdded struct {
	Path       ObjectPath
	Interfaces map[string]map[string]Variant
}

// InterfacesRemoved is emitted by objects implementing
// org.freedesktop.DBus.ObjectManager when an object, or some of its
// interfaces, go away.
type InterfacesRemoved struct {
	Path       ObjectPath
	Interfaces []string
}

// OnNameOwnerChanged subscribes to the bus's NameOwnerChanged signal.
func (b Bus) OnNameOwnerChanged(fn func(ctx context.Context, e NameOwnerChanged)) (remove func()) {
	return b.Signals().Connect("NameOwnerChanged", func(ctx context.Context, args *ArgReader) {
		var e NameOwnerChanged
		if err := args.Next(&e.Name); err != nil {
			return
		}
		if err := args.Next(&e.OldOwner); err != nil {
			return
		}
		if err := args.Next(&e.NewOwner); err != nil {
			return
		}
		fn(ctx, e)
	})
}

// OnNameLost subscribes to the bus's NameLost signal.
func (b Bus) OnNameLost(fn func(ctx context.Context, e NameLost)) (remove func()) {
	return b.Signals().Connect("NameLost", func(ctx context.Context, args *ArgReader) {
		var e NameLost
		if err := args.Next(&e.Name); err != nil {
			return
		}
		fn(ctx, e)
	})
}

// OnNameAcquired subscribes to the bus's NameAcquired signal.
func (b Bus) OnNameAcquired(fn func(ctx context.Context, e NameAcquired)) (remove func()) {
	return b.Signals().Connect("NameAcquired", func(ctx context.Context, args *ArgReader) {
		var e NameAcquired
		if err := args.Next(&e.Name); err != nil {
			return
		}
		fn(ctx, e)
	})
}
