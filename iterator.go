package dbus

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/gobus-project/dbus/fragments"
)

// An ArgWriter accumulates the arguments of a DBus message body. A
// single ArgWriter may only be used by one goroutine at a time, and
// must not be reentered: calling [ArgWriter.Put] again from inside a
// Marshaler invoked by an earlier Put panics.
type ArgWriter struct {
	ctx  context.Context
	e    *fragments.Encoder
	sig  string
	busy bool
}

// NewArgWriter returns an ArgWriter that accumulates into a fresh
// message body. files receives any file descriptors marshaled
// arguments attach.
func NewArgWriter(ctx context.Context, files *[]*os.File) *ArgWriter {
	return &ArgWriter{
		ctx: withContextPutFiles(ctx, files),
		e:   &fragments.Encoder{Order: fragments.NativeEndian},
	}
}

// Put marshals v as the next argument in the body.
func (w *ArgWriter) Put(v any) error {
	if w.busy {
		panic("dbus: ArgWriter.Put called reentrantly")
	}
	w.busy = true
	defer func() { w.busy = false }()

	sig, err := SignatureOf(v)
	if err != nil {
		return err
	}
	if err := Marshal(w.ctx, w.e, v); err != nil {
		return err
	}
	w.sig += sig.String()
	return nil
}

// Signature returns the accumulated signature of everything written
// so far.
func (w *ArgWriter) Signature() Signature { return Signature(w.sig) }

// Bytes returns the accumulated body bytes.
func (w *ArgWriter) Bytes() []byte { return w.e.Out }

// An ArgReader walks the arguments of a received message body in
// order. Like [ArgWriter], it is not reentrant: calling [ArgReader.Next]
// from inside a callback driven by an earlier Next panics.
type ArgReader struct {
	ctx     context.Context
	d       *fragments.Decoder
	parts   []Signature
	pos     int
	busy    bool
}

// NewArgReader returns an ArgReader over m's body, decoding according
// to m.Signature.
func NewArgReader(ctx context.Context, m *Message) *ArgReader {
	ctx = withContextFiles(ctx, m.Files)
	if m.Sender != "" {
		ctx = withContextSender(ctx, m.Sender)
	}
	return &ArgReader{
		ctx:   ctx,
		d:     &fragments.Decoder{Order: fragments.NativeEndian, In: bytes.NewReader(m.Body)},
		parts: m.Signature.Parts(),
	}
}

// Done reports whether every argument in the body has been consumed.
func (r *ArgReader) Done() bool { return r.pos >= len(r.parts) }

// Next decodes the next argument into v, which must be a pointer to a
// value of the kind the argument's signature implies. It returns
// an error wrapping [TypeMismatch] if called with no arguments
// remaining.
func (r *ArgReader) Next(v any) error {
	if r.busy {
		panic("dbus: ArgReader.Next called reentrantly")
	}
	if r.Done() {
		return fmt.Errorf("%w: no more arguments in message body", TypeMismatch)
	}
	r.busy = true
	defer func() { r.busy = false }()

	if err := Unmarshal(r.ctx, r.d, v); err != nil {
		return err
	}
	r.pos++
	return nil
}

// NextDynamic decodes the next argument as a [DynamicValue] without
// requiring the caller to know its concrete Go type ahead of time.
func (r *ArgReader) NextDynamic() (any, error) {
	if r.busy {
		panic("dbus: ArgReader.NextDynamic called reentrantly")
	}
	if r.Done() {
		return nil, fmt.Errorf("%w: no more arguments in message body", TypeMismatch)
	}
	r.busy = true
	defer func() { r.busy = false }()

	sig := r.parts[r.pos]
	v, err := decodeDynamic(r.ctx, r.d, sig)
	if err != nil {
		return nil, err
	}
	r.pos++
	return v, nil
}
