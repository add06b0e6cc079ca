package dbus

import (
	"context"
	"os"
	"testing"
)

func TestContextSender(t *testing.T) {
	if _, ok := ContextSender(context.Background()); ok {
		t.Error("ContextSender() on a bare context should report ok=false")
	}

	ctx := withContextSender(context.Background(), ":1.42")
	got, ok := ContextSender(ctx)
	if !ok || got != ":1.42" {
		t.Errorf("ContextSender() = (%q, %v), want (:1.42, true)", got, ok)
	}
}

func TestContextFiles(t *testing.T) {
	if f := contextFile(context.Background(), 0); f != nil {
		t.Error("contextFile() on a bare context should return nil")
	}

	f1, f2 := os.Stdin, os.Stdout
	ctx := withContextFiles(context.Background(), []*os.File{f1, f2})
	if got := contextFile(ctx, 0); got != f1 {
		t.Errorf("contextFile(0) = %v, want %v", got, f1)
	}
	if got := contextFile(ctx, 1); got != f2 {
		t.Errorf("contextFile(1) = %v, want %v", got, f2)
	}
	if got := contextFile(ctx, 2); got != nil {
		t.Errorf("contextFile(2) out of range = %v, want nil", got)
	}
}

func TestContextPutFile(t *testing.T) {
	if _, err := contextPutFile(context.Background(), os.Stdin); err == nil {
		t.Error("contextPutFile() on a bare context should error")
	}

	var files []*os.File
	ctx := withContextPutFiles(context.Background(), &files)

	idx, err := contextPutFile(ctx, os.Stdin)
	if err != nil {
		t.Fatalf("contextPutFile() error = %v", err)
	}
	if idx != 0 {
		t.Errorf("first contextPutFile() idx = %d, want 0", idx)
	}

	idx, err = contextPutFile(ctx, os.Stdout)
	if err != nil {
		t.Fatalf("contextPutFile() error = %v", err)
	}
	if idx != 1 {
		t.Errorf("second contextPutFile() idx = %d, want 1", idx)
	}
	if len(files) != 2 || files[0] != os.Stdin || files[1] != os.Stdout {
		t.Errorf("files = %v, want [os.Stdin os.Stdout]", files)
	}
}
