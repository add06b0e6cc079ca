package dbus

import (
	"context"
	"fmt"
	"os"

	"github.com/gobus-project/dbus/fragments"
)

// A UnixFD is a file descriptor carried alongside a DBus message's
// body. The wire value is just an index into the message's
// out-of-band UNIX_FDS array; the actual descriptor travels over the
// transport as SCM_RIGHTS ancillary data.
//
// Ownership transfers with the message: a sender gives up ownership
// of File once the message has been handed to a [Connection] to send,
// and a receiver owns the File once it has decoded the message body.
// Callers are responsible for closing any File they receive.
type UnixFD struct {
	File *os.File
}

var unixFDSignature = Signature("h")

func (f UnixFD) SignatureDBus() Signature { return unixFDSignature }

func (f UnixFD) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	if f.File == nil {
		return fmt.Errorf("%w: nil file descriptor", InvalidArgs)
	}
	idx, err := contextPutFile(ctx, f.File)
	if err != nil {
		return err
	}
	e.Uint32(idx)
	return nil
}

func (f *UnixFD) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	idx, err := d.Uint32()
	if err != nil {
		return err
	}
	file := contextFile(ctx, idx)
	if file == nil {
		return fmt.Errorf("%w: unix fd index %d not present in received message", TypeMismatch, idx)
	}
	f.File = file
	return nil
}
