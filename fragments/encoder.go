package fragments

import "errors"

// An Encoder writes DBus wire format bytes to an in-memory buffer.
//
// Methods insert padding as needed to conform to DBus alignment rules,
// except for [Encoder.Write] which outputs bytes verbatim.
type Encoder struct {
	// Order is the byte order to use when encoding multi-byte values.
	Order ByteOrder
	// Out is the encoded output.
	Out []byte
}

// Pad inserts padding bytes as needed to make the message a multiple
// of align bytes. If the message is already correctly aligned, no
// padding is inserted.
func (e *Encoder) Pad(align int) {
	extra := len(e.Out) % align
	if extra == 0 {
		return
	}
	var pad [8]byte
	e.Out = append(e.Out, pad[:align-extra]...)
}

// Write writes bs as-is to the output. It is the caller's
// responsibility to ensure correct padding and encoding.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Bytes writes bs to the output as a length-prefixed byte array.
func (e *Encoder) Bytes(bs []byte) {
	e.Pad(4)
	e.Uint32(uint32(len(bs)))
	e.Out = append(e.Out, bs...)
}

// String writes s to the output as a DBus STRING: a uint32 length
// followed by the UTF-8 bytes and a trailing nul.
func (e *Encoder) String(s string) {
	e.Pad(4)
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// SmallString writes s to the output as a DBus SIGNATURE value: a
// single length byte followed by the bytes and a trailing nul. It
// returns an error if s is longer than 255 bytes, the maximum a
// signature may encode.
func (e *Encoder) SmallString(s string) error {
	if len(s) > 255 {
		return errors.New("signature exceeds maximum length of 255 bytes")
	}
	e.Uint8(uint8(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
	return nil
}

// Uint8 writes a uint8.
func (e *Encoder) Uint8(u8 uint8) {
	e.Out = append(e.Out, u8)
}

// Uint16 writes a uint16.
func (e *Encoder) Uint16(u16 uint16) {
	e.Pad(2)
	e.Out = e.Order.AppendUint16(e.Out, u16)
}

// Uint32 writes a uint32.
func (e *Encoder) Uint32(u32 uint32) {
	e.Pad(4)
	e.Out = e.Order.AppendUint32(e.Out, u32)
}

// Uint64 writes a uint64.
func (e *Encoder) Uint64(u64 uint64) {
	e.Pad(8)
	e.Out = e.Order.AppendUint64(e.Out, u64)
}

// A Container is an array or struct that has been opened on an
// Encoder but not yet closed. It lets a writer abandon a partially
// written container without leaving corrupt length-prefix bytes
// behind in the encoder's output, satisfying the container discipline
// invariant: a reader must never observe a half-written container.
type Container struct {
	e           *Encoder
	mark        int // e.Out length when the container body started
	lengthAt    int // offset of the uint32 length prefix, unused for structs
	resetTarget int // e.Out length to restore to on Abandon
}

// OpenArray begins an array container. containsStructs indicates
// whether the array's elements are structs, so that the array header
// is padded correctly even for an empty array.
//
// The caller must call exactly one of [Container.CloseArray] or
// [Container.Abandon] before using e again.
func (e *Encoder) OpenArray(containsStructs bool) *Container {
	resetTarget := len(e.Out)
	e.Pad(4)
	lengthAt := len(e.Out)
	e.Uint32(0)
	if containsStructs {
		e.Pad(8)
	}
	return &Container{e: e, mark: len(e.Out), lengthAt: lengthAt, resetTarget: resetTarget}
}

// CloseArray finalizes the array's length prefix using the bytes
// written to e since the container was opened.
func (c *Container) CloseArray() {
	length := uint32(len(c.e.Out) - c.mark)
	c.e.Order.PutUint32(c.e.Out[c.lengthAt:], length)
}

// OpenStruct begins a struct container by inserting 8-byte alignment
// padding. Structs carry no length prefix.
//
// The caller must call exactly one of [Container.CloseStruct] or
// [Container.Abandon] before using e again.
func (e *Encoder) OpenStruct() *Container {
	resetTarget := len(e.Out)
	e.Pad(8)
	return &Container{e: e, mark: len(e.Out), resetTarget: resetTarget}
}

// CloseStruct finalizes a struct container. It exists for symmetry
// with CloseArray; structs need no trailing bookkeeping.
func (c *Container) CloseStruct() {}

// Abandon discards everything written to the encoder since the
// container was opened, leaving the encoder as if the container had
// never been started.
func (c *Container) Abandon() {
	c.e.Out = c.e.Out[:c.resetTarget]
}

// Array writes a complete array container in one call. Array elements
// must be added within the provided elements function. If elements
// returns an error, the partially written container is abandoned
// before the error is returned.
func (e *Encoder) Array(containsStructs bool, elements func() error) error {
	c := e.OpenArray(containsStructs)
	if err := elements(); err != nil {
		c.Abandon()
		return err
	}
	c.CloseArray()
	return nil
}

// Struct writes a complete struct container in one call. Struct
// fields must be added within the provided elements function. If
// elements returns an error, the partially written container is
// abandoned before the error is returned.
func (e *Encoder) Struct(elements func() error) error {
	c := e.OpenStruct()
	if err := elements(); err != nil {
		c.Abandon()
		return err
	}
	c.CloseStruct()
	return nil
}

// ByteOrderFlag writes the DBus byte order flag byte ('l' or 'B')
// that matches [Encoder.Order].
func (e *Encoder) ByteOrderFlag() {
	e.Write([]byte{e.Order.dbusFlag()})
}
