package dbus

import (
	"bytes"
	"context"
	"testing"

	"github.com/gobus-project/dbus/fragments"
)

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	msg, err := NewMethodCall(ctx, "org.test.Service", "/test/Echo", "test.Echo", "Echo", "s",
		func(ctx context.Context, w *fragments.Encoder) error {
			return Marshal(ctx, w, "hi")
		})
	if err != nil {
		t.Fatal(err)
	}
	msg.Serial = 7

	var buf bytes.Buffer
	if _, err := msg.EncodeTo(&buf); err != nil {
		t.Fatal(err)
	}

	got, numFDs, err := DecodeMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if numFDs != 0 {
		t.Errorf("numFDs = %d, want 0", numFDs)
	}
	if got.Type != MethodCall {
		t.Errorf("Type = %v, want MethodCall", got.Type)
	}
	if got.Path != "/test/Echo" {
		t.Errorf("Path = %q, want %q", got.Path, "/test/Echo")
	}
	if got.Interface != "test.Echo" {
		t.Errorf("Interface = %q, want %q", got.Interface, "test.Echo")
	}
	if got.Member != "Echo" {
		t.Errorf("Member = %q, want %q", got.Member, "Echo")
	}
	if got.Serial != 7 {
		t.Errorf("Serial = %d, want 7", got.Serial)
	}
	if got.Signature != "s" {
		t.Errorf("Signature = %q, want %q", got.Signature, "s")
	}

	var arg string
	if err := got.Unmarshal(ctx, &arg); err != nil {
		t.Fatal(err)
	}
	if arg != "hi" {
		t.Errorf("body arg = %q, want %q", arg, "hi")
	}
}

func TestMessageMethodReturnRoundTrip(t *testing.T) {
	ctx := context.Background()
	msg, err := NewMethodReturn(ctx, ":1.42", 7, "s",
		func(ctx context.Context, w *fragments.Encoder) error {
			return Marshal(ctx, w, "hi")
		})
	if err != nil {
		t.Fatal(err)
	}
	msg.Serial = 8

	var buf bytes.Buffer
	if _, err := msg.EncodeTo(&buf); err != nil {
		t.Fatal(err)
	}
	got, _, err := DecodeMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != MethodReturn {
		t.Errorf("Type = %v, want MethodReturn", got.Type)
	}
	if got.ReplySerial != 7 {
		t.Errorf("ReplySerial = %d, want 7", got.ReplySerial)
	}
	if got.Destination != ":1.42" {
		t.Errorf("Destination = %q, want %q", got.Destination, ":1.42")
	}
}

func TestMessageErrorRoundTrip(t *testing.T) {
	ctx := context.Background()
	msg, err := NewError(ctx, ":1.42", 3, "test.Err", "s",
		func(ctx context.Context, w *fragments.Encoder) error {
			return Marshal(ctx, w, "bad")
		})
	if err != nil {
		t.Fatal(err)
	}
	msg.Serial = 9

	var buf bytes.Buffer
	if _, err := msg.EncodeTo(&buf); err != nil {
		t.Fatal(err)
	}
	got, _, err := DecodeMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != MessageError {
		t.Errorf("Type = %v, want MessageError", got.Type)
	}
	if got.ErrorName != "test.Err" {
		t.Errorf("ErrorName = %q, want %q", got.ErrorName, "test.Err")
	}
	if got.ReplySerial != 3 {
		t.Errorf("ReplySerial = %d, want 3", got.ReplySerial)
	}
}

func TestMessageSignalRoundTrip(t *testing.T) {
	ctx := context.Background()
	msg, err := NewSignal(ctx, "/test/Obj", "test.Iface", "Changed", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	msg.Serial = 1

	var buf bytes.Buffer
	if _, err := msg.EncodeTo(&buf); err != nil {
		t.Fatal(err)
	}
	got, _, err := DecodeMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != MessageSignal {
		t.Errorf("Type = %v, want MessageSignal", got.Type)
	}
	if got.Path != "/test/Obj" || got.Interface != "test.Iface" || got.Member != "Changed" {
		t.Errorf("signal header = %+v", got)
	}
	if !got.Signature.IsZero() {
		t.Errorf("Signature = %q, want empty", got.Signature)
	}
}

func TestMessageMutationAfterFreezePanics(t *testing.T) {
	ctx := context.Background()
	msg, err := NewSignal(ctx, "/test/Obj", "test.Iface", "Changed", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	msg.Serial = 1
	var buf bytes.Buffer
	if _, err := msg.EncodeTo(&buf); err != nil {
		t.Fatal(err)
	}
	got, _, err := DecodeMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if recover() == nil {
			t.Error("mutating a frozen Message should panic")
		}
	}()
	got.checkMutable()
}

func TestMatchRuleString(t *testing.T) {
	r := NewMatchRule().
		WithPath("/test/Obj").
		WithInterface("test.Iface").
		WithMember("Changed")
	want := `type='signal',path='/test/Obj',interface='test.Iface',member='Changed'`
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMatchRuleMatches(t *testing.T) {
	ctx := context.Background()
	msg, err := NewSignal(ctx, "/test/Obj", "test.Iface", "Changed", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	msg.freeze()

	rule := NewMatchRule().WithInterface("test.Iface").WithMember("Changed")
	if !rule.Matches(msg) {
		t.Error("rule should match signal with same interface/member")
	}

	other := NewMatchRule().WithInterface("test.Other")
	if other.Matches(msg) {
		t.Error("rule with a different interface should not match")
	}
}

func TestMatchRulePathNamespace(t *testing.T) {
	ctx := context.Background()
	msg, err := NewSignal(ctx, "/test/Obj/Child", "test.Iface", "Changed", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	msg.freeze()

	rule := NewMatchRule().WithPathNamespace("/test/Obj")
	if !rule.Matches(msg) {
		t.Error("rule should match a path under its namespace")
	}

	rule2 := NewMatchRule().WithPathNamespace("/other")
	if rule2.Matches(msg) {
		t.Error("rule should not match a path outside its namespace")
	}
}

func TestMatchRuleArgs(t *testing.T) {
	ctx := context.Background()
	msg, err := NewSignal(ctx, "/test/Obj", "test.Iface", "Changed", "s",
		func(ctx context.Context, w *fragments.Encoder) error {
			return Marshal(ctx, w, "wanted")
		})
	if err != nil {
		t.Fatal(err)
	}
	msg.freeze()

	rule := NewMatchRule().WithArg(0, "wanted")
	if !rule.Matches(msg) {
		t.Error("rule should match when arg 0 equals the expected value")
	}

	rule2 := NewMatchRule().WithArg(0, "other")
	if rule2.Matches(msg) {
		t.Error("rule should not match when arg 0 differs")
	}
}
