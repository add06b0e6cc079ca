package dbus

import "fmt"

// An ErrorKind identifies one of the fixed categories of error that
// this package can report, independent of the human-readable message
// or remote error name attached to it.
type ErrorKind int

// The closed set of error kinds reported by this package.
const (
	_ ErrorKind = iota
	// ErrOutOfMemory indicates a size or file-descriptor limit was hit
	// while building or receiving a message.
	ErrOutOfMemory
	// ErrDisconnected indicates the underlying transport has been
	// closed, permanently or otherwise.
	ErrDisconnected
	// ErrNoReply indicates a pending call was abandoned with
	// [PendingCall.Cancel] before a reply arrived. A call whose
	// connection closes fails with [Disconnected] instead.
	ErrNoReply
	// ErrTypeMismatch indicates an Argument implementation was asked
	// to read or write a value whose shape doesn't match the wire
	// data, or a caller asked a [Signature] a question only valid for
	// a different shape of signature.
	ErrTypeMismatch
	// ErrInvalidSignature indicates a signature string failed to
	// parse, or described a shape this package cannot represent (for
	// example a dict-entry whose key isn't a basic type).
	ErrInvalidSignature
	// ErrPropertyReadOnly indicates a Set call targeted a property
	// with no setter.
	ErrPropertyReadOnly
	// ErrUnknownProperty indicates a Get/Set/GetAll call named a
	// property that isn't exported by the target interface.
	ErrUnknownProperty
	// ErrUnknownMethod indicates a method call named a method that
	// isn't exported on the target interface.
	ErrUnknownMethod
	// ErrUnknownInterface indicates a call named an interface that
	// isn't implemented on the target object.
	ErrUnknownInterface
	// ErrUnknownObject indicates a call targeted an object path with
	// no exported object.
	ErrUnknownObject
	// ErrInvalidArgs indicates the arguments supplied to a method or
	// property call didn't match what the target expected.
	ErrInvalidArgs
	// ErrRemote indicates an error reply was received from a remote
	// peer, carrying whatever DBus error name the peer chose.
	ErrRemote
)

func (k ErrorKind) String() string {
	switch k {
	case ErrOutOfMemory:
		return "out of memory"
	case ErrDisconnected:
		return "disconnected"
	case ErrNoReply:
		return "no reply"
	case ErrTypeMismatch:
		return "type mismatch"
	case ErrInvalidSignature:
		return "invalid signature"
	case ErrPropertyReadOnly:
		return "property is read-only"
	case ErrUnknownProperty:
		return "unknown property"
	case ErrUnknownMethod:
		return "unknown method"
	case ErrUnknownInterface:
		return "unknown interface"
	case ErrUnknownObject:
		return "unknown object"
	case ErrInvalidArgs:
		return "invalid arguments"
	case ErrRemote:
		return "remote error"
	default:
		return "unknown error"
	}
}

// An Error reports a failure raised by this package or received from
// a remote peer as a DBus error reply. Name, when non-empty, is the
// DBus error name associated with the failure (the value that would
// appear in an ERROR message's ERROR_NAME header field).
type Error struct {
	Kind    ErrorKind
	Name    string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Name != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	case e.Name != "":
		return e.Name
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return e.Kind.String()
	}
}

// Is reports whether target is an *Error of the same Kind. Remote
// errors additionally compare by Name, since two remote errors of
// kind ErrRemote are only the "same" error if the bus error name
// matches.
func (e *Error) Is(target error) bool {
	o, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != o.Kind {
		return false
	}
	if e.Kind == ErrRemote {
		return e.Name == o.Name
	}
	return true
}

// The sentinel errors reported by this package's own operations.
// Callers match these with errors.Is.
var (
	OutOfMemory      = &Error{Kind: ErrOutOfMemory}
	Disconnected     = &Error{Kind: ErrDisconnected}
	NoReply          = &Error{Kind: ErrNoReply, Name: "org.freedesktop.DBus.Error.NoReply"}
	TypeMismatch     = &Error{Kind: ErrTypeMismatch}
	InvalidSignature = &Error{Kind: ErrInvalidSignature}
	PropertyReadOnly = &Error{Kind: ErrPropertyReadOnly, Name: "org.freedesktop.DBus.Error.PropertyReadOnly"}
	UnknownProperty  = &Error{Kind: ErrUnknownProperty, Name: "org.freedesktop.DBus.Error.UnknownProperty"}
	UnknownMethod    = &Error{Kind: ErrUnknownMethod, Name: "org.freedesktop.DBus.Error.UnknownMethod"}
	UnknownInterface = &Error{Kind: ErrUnknownInterface, Name: "org.freedesktop.DBus.Error.UnknownInterface"}
	UnknownObject    = &Error{Kind: ErrUnknownObject, Name: "org.freedesktop.DBus.Error.UnknownObject"}
	InvalidArgs      = &Error{Kind: ErrInvalidArgs, Name: "org.freedesktop.DBus.Error.InvalidArgs"}
)

// RemoteError constructs the *Error representing an ERROR message
// received from a peer, carrying its DBus error name and optional
// human-readable text (the first string argument of the message
// body, by DBus convention).
func RemoteError(name, message string) *Error {
	return &Error{Kind: ErrRemote, Name: name, Message: message}
}

// TypeErr is a convenience constructor for an ErrTypeMismatch error
// describing why a Go or wire type could not be used where it
// appeared.
func TypeErr(reason string, args ...any) error {
	return fmt.Errorf("%w: %s", TypeMismatch, fmt.Sprintf(reason, args...))
}
