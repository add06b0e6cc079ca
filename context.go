package dbus

import (
	"context"
	"errors"
	"os"
)

// senderContextKey is the context key that carries the sender of a
// DBus message being processed.
type senderContextKey struct{}

// withContextSender augments ctx with the unique bus name of whoever
// sent the message being processed.
func withContextSender(ctx context.Context, sender string) context.Context {
	return context.WithValue(ctx, senderContextKey{}, sender)
}

// ContextSender extracts the unique bus name of the peer that sent
// the message currently being handled, and reports whether sender
// information was present. Sender information is available to method
// and property handlers invoked by a [Skeleton], and to Argument
// Read implementations while decoding an inbound message.
func ContextSender(ctx context.Context) (string, bool) {
	v := ctx.Value(senderContextKey{})
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// filesContextKey is the context key that carries file descriptors
// received with a DBus message being decoded.
type filesContextKey struct{}

// withContextFiles augments ctx with message files.
func withContextFiles(ctx context.Context, files []*os.File) context.Context {
	return context.WithValue(ctx, filesContextKey{}, files)
}

// contextFile returns the idx-th message file in ctx.
//
// [UnixFD] is the only consumer of this API, being the only way to
// interact with DBus file descriptors.
func contextFile(ctx context.Context, idx uint32) *os.File {
	v := ctx.Value(filesContextKey{})
	if v == nil {
		return nil
	}
	fs, ok := v.([]*os.File)
	if !ok || int(idx) >= len(fs) {
		return nil
	}
	return fs[int(idx)]
}

// writeFilesContextKey is the context key that carries file
// descriptors to be sent with a DBus message being encoded.
type writeFilesContextKey struct{}

// withContextPutFiles augments ctx with an output slice for files to
// be sent with a message.
func withContextPutFiles(ctx context.Context, files *[]*os.File) context.Context {
	return context.WithValue(ctx, writeFilesContextKey{}, files)
}

// contextPutFile adds file to the context's outgoing files buffer and
// returns the index it was assigned in the UNIX_FDS header array.
//
// [UnixFD] is the only consumer of this API, being the only way to
// interact with DBus file descriptors.
func contextPutFile(ctx context.Context, file *os.File) (idx uint32, err error) {
	v := ctx.Value(writeFilesContextKey{})
	if v == nil {
		return 0, errors.New("cannot send file descriptor: invalid context")
	}
	fsp, ok := v.(*[]*os.File)
	if !ok || fsp == nil {
		return 0, errors.New("cannot send file descriptor: invalid context")
	}
	*fsp = append(*fsp, file)
	return uint32(len(*fsp) - 1), nil
}
