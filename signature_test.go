package dbus

import (
	"errors"
	"testing"
)

func TestParseSignatureValid(t *testing.T) {
	tests := []string{
		"",
		"y", "b", "n", "q", "i", "u", "x", "t", "d", "s", "o", "g", "h",
		"as",
		"a{sv}",
		"aa{si}",
		"(ybnqiuxtdsogh)",
		"a(si)",
		"(a{sv}as)",
	}
	for _, s := range tests {
		got, err := ParseSignature(s)
		if err != nil {
			t.Errorf("ParseSignature(%q) returned error: %v", s, err)
			continue
		}
		if got.String() != s {
			t.Errorf("ParseSignature(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseSignatureInvalid(t *testing.T) {
	tests := []string{
		"(",
		")",
		"{sv}",  // dict entry outside array
		"a{iii}", // struct-style dict entry (wrong nesting)
		"{s}",
		"z",
		"a",
	}
	for _, s := range tests {
		if _, err := ParseSignature(s); err == nil {
			t.Errorf("ParseSignature(%q) succeeded, want error", s)
		} else if !errors.Is(err, InvalidSignature) {
			t.Errorf("ParseSignature(%q) error = %v, want wrapping InvalidSignature", s, err)
		}
	}
}

func TestSignatureParts(t *testing.T) {
	sig := mustParseSignature("sia{sv}")
	parts := sig.Parts()
	want := []Signature{"s", "i", "a{sv}"}
	if len(parts) != len(want) {
		t.Fatalf("Parts() = %v, want %v", parts, want)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("Parts()[%d] = %q, want %q", i, parts[i], want[i])
		}
	}
}

func TestSignatureIsZeroIsSingle(t *testing.T) {
	if !Signature("").IsZero() {
		t.Error(`Signature("").IsZero() = false, want true`)
	}
	if Signature("s").IsZero() {
		t.Error(`Signature("s").IsZero() = true, want false`)
	}
	if !Signature("s").IsSingle() {
		t.Error(`Signature("s").IsSingle() = false, want true`)
	}
	if Signature("ss").IsSingle() {
		t.Error(`Signature("ss").IsSingle() = true, want false`)
	}
	if Signature("").IsSingle() {
		t.Error(`Signature("").IsSingle() = true, want false`)
	}
}

func TestSignatureFirstCode(t *testing.T) {
	if got := Signature("").FirstCode(); got != TypeInvalid {
		t.Errorf(`Signature("").FirstCode() = %v, want TypeInvalid`, got)
	}
	if got := Signature("a{sv}").FirstCode(); got != TypeArray {
		t.Errorf(`Signature("a{sv}").FirstCode() = %v, want TypeArray`, got)
	}
}

func TestSignatureElementSignature(t *testing.T) {
	elem, err := Signature("as").ElementSignature()
	if err != nil {
		t.Fatal(err)
	}
	if elem != "s" {
		t.Errorf("ElementSignature() = %q, want %q", elem, "s")
	}

	elem, err = Signature("aa{si}").ElementSignature()
	if err != nil {
		t.Fatal(err)
	}
	if elem != "a{si}" {
		t.Errorf("ElementSignature() = %q, want %q", elem, "a{si}")
	}

	if _, err := Signature("s").ElementSignature(); !errors.Is(err, TypeMismatch) {
		t.Errorf("ElementSignature() on non-array error = %v, want TypeMismatch", err)
	}
}

func TestSignatureStructFields(t *testing.T) {
	fields, err := Signature("(ybnqiuxtdsogh)").StructFields()
	if err != nil {
		t.Fatal(err)
	}
	want := []Signature{"y", "b", "n", "q", "i", "u", "x", "t", "d", "s", "o", "g", "h"}
	if len(fields) != len(want) {
		t.Fatalf("StructFields() = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("StructFields()[%d] = %q, want %q", i, fields[i], want[i])
		}
	}

	if _, err := Signature("s").StructFields(); !errors.Is(err, TypeMismatch) {
		t.Errorf("StructFields() on non-struct error = %v, want TypeMismatch", err)
	}
}

func TestSignatureDictEntryKV(t *testing.T) {
	sig, err := Signature("a{sv}").ElementSignature()
	if err != nil {
		t.Fatal(err)
	}
	key, val, err := sig.DictEntryKV()
	if err != nil {
		t.Fatal(err)
	}
	if key != "s" || val != "v" {
		t.Errorf("DictEntryKV() = (%q, %q), want (%q, %q)", key, val, "s", "v")
	}
}

// TestNestedStructSignature exercises the scenario from the seed test
// corpus: a struct of every basic type round-trips through its
// literal signature string.
func TestNestedStructSignature(t *testing.T) {
	const want = "(ybnqiuxtdsogh)"
	sig, err := ParseSignature(want)
	if err != nil {
		t.Fatal(err)
	}
	if sig.String() != want {
		t.Errorf("ParseSignature(%q).String() = %q", want, sig.String())
	}
	fields, err := sig.StructFields()
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 13 {
		t.Fatalf("StructFields() returned %d fields, want 13", len(fields))
	}
}

func TestDictSignature(t *testing.T) {
	// a mapping from string to variant<dynamic> has signature "a{sv}"
	if sig, err := SignatureOf(map[string]Variant{"a": {}}); err != nil {
		t.Fatal(err)
	} else if sig != "a{sv}" {
		t.Errorf("SignatureOf(map[string]Variant) = %q, want %q", sig, "a{sv}")
	}

	// an array of arrays of {string,int32} maps has signature "aa{si}"
	maps := []map[string]int32{{"a": 1}}
	if sig, err := SignatureOf(maps); err != nil {
		t.Fatal(err)
	} else if sig != "aa{si}" {
		t.Errorf("SignatureOf([]map[string]int32) = %q, want %q", sig, "aa{si}")
	}
}
