package dbus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gobus-project/dbus/fragments"
)

// MessageType identifies the purpose of a [Message], mirroring the
// DBus wire protocol's message type byte.
type MessageType byte

const (
	MessageInvalid MessageType = iota
	MethodCall
	MethodReturn
	MessageError
	MessageSignal
)

func (t MessageType) String() string {
	switch t {
	case MethodCall:
		return "method_call"
	case MethodReturn:
		return "method_return"
	case MessageError:
		return "error"
	case MessageSignal:
		return "signal"
	default:
		return "invalid"
	}
}

// MessageFlags are the per-message flag bits defined by the DBus
// wire protocol.
type MessageFlags byte

const (
	FlagNoReplyExpected MessageFlags = 1 << iota
	FlagNoAutoStart
	FlagAllowInteractiveAuthorization
)

const protocolVersion = 1

// headerField wire codes, in the order the DBus specification assigns
// them.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrorName   = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldUnixFDs     = 9
)

// A Message is one DBus protocol message: a method call, a method
// return, an error reply, or a signal emission.
//
// A Message is mutable up until it is handed to a [Connection] to
// send, or is returned by [DecodeMessage]; at that point it is marked
// frozen and must not be changed again. The exported fields are not
// guarded, so assigning to one afterwards does not panic. This mirrors the
// "no-reply blocking" invariant in the connection layer: once a
// message has left this package's hands for the wire, nothing may
// change underneath whatever is reading or writing it concurrently.
type Message struct {
	Type  MessageType
	Flags MessageFlags

	Serial uint32

	Path        ObjectPath
	Interface   string
	Member      string
	ErrorName   string
	ReplySerial uint32
	Destination string
	Sender      string

	// Signature is the signature of Body. It is set automatically by
	// the New* constructors.
	Signature Signature
	// Body is the marshaled message body.
	Body []byte
	// Files are file descriptors referenced from Body by index.
	Files []*os.File

	frozen bool
}

func (m *Message) checkMutable() {
	if m.frozen {
		panic("dbus: attempt to mutate a Message after it was sent or received")
	}
}

// freeze marks m as immutable. Called once a Message has been hand
// off to the wire, in either direction.
func (m *Message) freeze() { m.frozen = true }

// bodyFunc builds a message body by writing arguments to e. Callers
// use [Marshal] or a type's MarshalDBus method from within bodyFunc.
type bodyFunc func(ctx context.Context, e *fragments.Encoder) error

func buildBody(ctx context.Context, sig Signature, body bodyFunc) ([]byte, []*os.File, error) {
	if body == nil {
		return nil, nil, nil
	}
	var files []*os.File
	ctx = withContextPutFiles(ctx, &files)
	e := &fragments.Encoder{Order: fragments.NativeEndian}
	if err := body(ctx, e); err != nil {
		return nil, nil, err
	}
	return e.Out, files, nil
}

// NewMethodCall constructs a method-call Message. The Connection
// sending it is responsible for assigning Serial.
func NewMethodCall(ctx context.Context, destination string, path ObjectPath, iface, member string, sig Signature, body bodyFunc) (*Message, error) {
	bs, files, err := buildBody(ctx, sig, body)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:        MethodCall,
		Path:        path,
		Interface:   iface,
		Member:      member,
		Destination: destination,
		Signature:   sig,
		Body:        bs,
		Files:       files,
	}, nil
}

// NewMethodReturn constructs a method-return Message replying to
// replySerial.
func NewMethodReturn(ctx context.Context, destination string, replySerial uint32, sig Signature, body bodyFunc) (*Message, error) {
	bs, files, err := buildBody(ctx, sig, body)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:        MethodReturn,
		ReplySerial: replySerial,
		Destination: destination,
		Signature:   sig,
		Body:        bs,
		Files:       files,
	}, nil
}

// NewError constructs an error-reply Message replying to replySerial
// with the given DBus error name.
func NewError(ctx context.Context, destination string, replySerial uint32, errName string, sig Signature, body bodyFunc) (*Message, error) {
	bs, files, err := buildBody(ctx, sig, body)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:        MessageError,
		ErrorName:   errName,
		ReplySerial: replySerial,
		Destination: destination,
		Signature:   sig,
		Body:        bs,
		Files:       files,
	}, nil
}

// NewSignal constructs a signal Message.
func NewSignal(ctx context.Context, path ObjectPath, iface, member string, sig Signature, body bodyFunc) (*Message, error) {
	bs, files, err := buildBody(ctx, sig, body)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      MessageSignal,
		Path:      path,
		Interface: iface,
		Member:    member,
		Signature: sig,
		Body:      bs,
		Files:     files,
	}, nil
}

// Unmarshal decodes m's body into args, in order, the same way
// [Unmarshal] decodes a single argument. The number and shape of args
// must match m.Signature.
func (m *Message) Unmarshal(ctx context.Context, args ...any) error {
	ctx = withContextFiles(ctx, m.Files)
	if sender, ok := m.senderForContext(); ok {
		ctx = withContextSender(ctx, sender)
	}
	d := &fragments.Decoder{
		Order: fragments.NativeEndian,
		In:    bytes.NewReader(m.Body),
	}
	for _, a := range args {
		if err := Unmarshal(ctx, d, a); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) senderForContext() (string, bool) {
	if m.Sender == "" {
		return "", false
	}
	return m.Sender, true
}

// EncodeTo serializes m's header and body to w in native byte order.
// m must have a Serial already assigned.
func (m *Message) EncodeTo(w io.Writer) (n int, err error) {
	e := &fragments.Encoder{Order: fragments.NativeEndian}
	e.ByteOrderFlag()
	e.Uint8(uint8(m.Type))
	e.Uint8(uint8(m.Flags))
	e.Uint8(protocolVersion)
	e.Uint32(uint32(len(m.Body)))
	e.Uint32(m.Serial)

	if err := e.Array(true, func() error {
		writeField := func(code byte, sig string, write func() error) error {
			return e.Struct(func() error {
				e.Uint8(code)
				e.Pad(1)
				if err := e.SmallString(sig); err != nil {
					return err
				}
				return write()
			})
		}
		if m.Path != "" {
			if err := writeField(fieldPath, "o", func() error { e.String(string(m.Path)); return nil }); err != nil {
				return err
			}
		}
		if m.Interface != "" {
			if err := writeField(fieldInterface, "s", func() error { e.String(m.Interface); return nil }); err != nil {
				return err
			}
		}
		if m.Member != "" {
			if err := writeField(fieldMember, "s", func() error { e.String(m.Member); return nil }); err != nil {
				return err
			}
		}
		if m.ErrorName != "" {
			if err := writeField(fieldErrorName, "s", func() error { e.String(m.ErrorName); return nil }); err != nil {
				return err
			}
		}
		if m.ReplySerial != 0 {
			if err := writeField(fieldReplySerial, "u", func() error { e.Uint32(m.ReplySerial); return nil }); err != nil {
				return err
			}
		}
		if m.Destination != "" {
			if err := writeField(fieldDestination, "s", func() error { e.String(m.Destination); return nil }); err != nil {
				return err
			}
		}
		if m.Sender != "" {
			if err := writeField(fieldSender, "s", func() error { e.String(m.Sender); return nil }); err != nil {
				return err
			}
		}
		if !m.Signature.IsZero() {
			if err := writeField(fieldSignature, "g", func() error { return e.SmallString(m.Signature.String()) }); err != nil {
				return err
			}
		}
		if len(m.Files) > 0 {
			if err := writeField(fieldUnixFDs, "u", func() error { e.Uint32(uint32(len(m.Files))); return nil }); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return 0, err
	}
	e.Pad(8)
	e.Write(m.Body)

	nn, err := w.Write(e.Out)
	return nn, err
}

// DecodeMessage reads one complete Message from r, including its
// body bytes, but does not decode the body's arguments: call
// [Message.Unmarshal] for that once any accompanying file descriptors
// have been attached to m.Files. It additionally returns the number
// of file descriptors the message's UNIX_FDS header field says
// accompany it, which the caller must pull off the transport's
// ancillary data and assign to m.Files before calling Unmarshal.
func DecodeMessage(r io.Reader) (m *Message, numFDs int, err error) {
	d := &fragments.Decoder{In: r}
	if err := d.ByteOrderFlag(); err != nil {
		return nil, 0, err
	}
	typ, err := d.Uint8()
	if err != nil {
		return nil, 0, err
	}
	flags, err := d.Uint8()
	if err != nil {
		return nil, 0, err
	}
	ver, err := d.Uint8()
	if err != nil {
		return nil, 0, err
	}
	if ver != protocolVersion {
		return nil, 0, fmt.Errorf("%w: unsupported protocol version %d", Disconnected, ver)
	}
	bodyLen, err := d.Uint32()
	if err != nil {
		return nil, 0, err
	}
	serial, err := d.Uint32()
	if err != nil {
		return nil, 0, err
	}

	m = &Message{
		Type:   MessageType(typ),
		Flags:  MessageFlags(flags),
		Serial: serial,
	}

	var numFDsU32 uint32
	if _, err := d.Array(true, func(int) error {
		return d.Struct(func() error {
			code, err := d.Uint8()
			if err != nil {
				return err
			}
			if err := d.Pad(1); err != nil {
				return err
			}
			sigStr, err := decodeSmallString(d)
			if err != nil {
				return err
			}
			switch code {
			case fieldPath:
				s, err := d.String()
				m.Path = ObjectPath(s)
				return err
			case fieldInterface:
				m.Interface, err = d.String()
				return err
			case fieldMember:
				m.Member, err = d.String()
				return err
			case fieldErrorName:
				m.ErrorName, err = d.String()
				return err
			case fieldReplySerial:
				m.ReplySerial, err = d.Uint32()
				return err
			case fieldDestination:
				m.Destination, err = d.String()
				return err
			case fieldSender:
				m.Sender, err = d.String()
				return err
			case fieldSignature:
				s, err := decodeSmallString(d)
				if err != nil {
					return err
				}
				m.Signature, err = ParseSignature(s)
				return err
			case fieldUnixFDs:
				numFDsU32, err = d.Uint32()
				return err
			default:
				return skipVariantValue(d, sigStr)
			}
		})
	}); err != nil {
		return nil, 0, err
	}

	if err := d.Pad(8); err != nil {
		return nil, 0, err
	}
	body, err := d.Read(int(bodyLen))
	if err != nil {
		return nil, 0, err
	}
	m.Body = body
	m.freeze()
	return m, int(numFDsU32), nil
}

// skipVariantValue consumes and discards one value of the given
// signature, used to skip unrecognized header fields without losing
// cursor sync.
func skipVariantValue(d *fragments.Decoder, sig string) error {
	s, err := ParseSignature(sig)
	if err != nil {
		return err
	}
	if !s.IsSingle() {
		return fmt.Errorf("%w: header field value signature %q is not a single type", InvalidSignature, sig)
	}
	_, err = decodeDynamic(context.Background(), d, s)
	return err
}
