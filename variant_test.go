package dbus

import (
	"bytes"
	"context"
	"testing"

	"github.com/gobus-project/dbus/fragments"
)

func variantRoundTrip(t *testing.T, v Variant) Variant {
	t.Helper()
	ctx := context.Background()
	e := &fragments.Encoder{Order: fragments.NativeEndian}
	if err := v.MarshalDBus(ctx, e); err != nil {
		t.Fatalf("MarshalDBus(%#v) = %v", v, err)
	}
	d := &fragments.Decoder{Order: fragments.NativeEndian, In: bytes.NewReader(e.Out)}
	var got Variant
	if err := got.UnmarshalDBus(ctx, d); err != nil {
		t.Fatalf("UnmarshalDBus = %v", err)
	}
	return got
}

func TestVariantRoundTripString(t *testing.T) {
	v, err := NewVariant("hello")
	if err != nil {
		t.Fatal(err)
	}
	got := variantRoundTrip(t, v)
	if got.Signature() != "s" {
		t.Errorf("Signature() = %q, want %q", got.Signature(), "s")
	}
	if s, ok := got.Value().(string); !ok || s != "hello" {
		t.Errorf("Value() = %#v, want %q", got.Value(), "hello")
	}
}

func TestVariantRoundTripInt32(t *testing.T) {
	v, err := NewVariant(int32(-42))
	if err != nil {
		t.Fatal(err)
	}
	got := variantRoundTrip(t, v)
	if got.Signature() != "i" {
		t.Errorf("Signature() = %q, want %q", got.Signature(), "i")
	}
	if n, ok := got.Value().(int32); !ok || n != -42 {
		t.Errorf("Value() = %#v, want int32(-42)", got.Value())
	}
}

func TestVariantRoundTripArray(t *testing.T) {
	v, err := NewVariant([]string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	got := variantRoundTrip(t, v)
	if got.Signature() != "as" {
		t.Errorf("Signature() = %q, want %q", got.Signature(), "as")
	}
	elems, ok := got.Value().([]any)
	if !ok || len(elems) != 2 || elems[0] != "a" || elems[1] != "b" {
		t.Errorf("Value() = %#v, want [a b]", got.Value())
	}
}

func TestVariantRoundTripDict(t *testing.T) {
	v, err := NewVariant(map[string]int32{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	got := variantRoundTrip(t, v)
	if got.Signature() != "a{si}" {
		t.Errorf("Signature() = %q, want %q", got.Signature(), "a{si}")
	}
	m, ok := got.Value().(map[any]any)
	if !ok {
		t.Fatalf("Value() = %#v, want map[any]any", got.Value())
	}
	if m["x"] != int32(1) {
		t.Errorf(`Value()["x"] = %#v, want int32(1)`, m["x"])
	}
}

func TestVariantRoundTripNestedVariant(t *testing.T) {
	inner, err := NewVariant(uint64(7))
	if err != nil {
		t.Fatal(err)
	}
	outer, err := NewVariant(inner)
	if err != nil {
		t.Fatal(err)
	}
	if outer.Signature() != "v" {
		t.Fatalf("Signature() = %q, want %q", outer.Signature(), "v")
	}
	got := variantRoundTrip(t, outer)
	nested, ok := got.Value().(Variant)
	if !ok {
		t.Fatalf("Value() = %#v, want Variant", got.Value())
	}
	if nested.Signature() != "t" {
		t.Errorf("nested Signature() = %q, want %q", nested.Signature(), "t")
	}
	if nested.Value() != uint64(7) {
		t.Errorf("nested Value() = %#v, want uint64(7)", nested.Value())
	}
}

func TestVariantRoundTripStruct(t *testing.T) {
	s := Struct2[string, int32]{V1: "hi", V2: 3}
	v, err := NewVariant(s)
	if err != nil {
		t.Fatal(err)
	}
	if v.Signature() != "(si)" {
		t.Fatalf("Signature() = %q, want %q", v.Signature(), "(si)")
	}
	got := variantRoundTrip(t, v)
	ds, ok := got.Value().(DynamicStruct)
	if !ok {
		t.Fatalf("Value() = %#v, want DynamicStruct", got.Value())
	}
	if len(ds.Fields) != 2 || ds.Fields[0] != "hi" || ds.Fields[1] != int32(3) {
		t.Errorf("Fields = %#v, want [hi 3]", ds.Fields)
	}
}
