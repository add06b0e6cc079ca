package dbus

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobus-project/dbus/fragments"
)

// A Signature describes the wire type of one or more DBus values, as
// a string over the signature alphabet: single-character codes for
// basic types, 'a' followed by an element signature for arrays, 'v'
// for variants, parens around component signatures for structs, and
// braces around a key+value pair for dict entries.
//
// A Signature parses as a sequence of zero or more complete types.
// The zero value is the empty signature, describing no values (used
// for method calls and replies that carry no body).
type Signature string

// ParseSignature validates s as a DBus type signature and returns it
// as a Signature. It returns an error wrapping [InvalidSignature] if s
// does not decompose cleanly into a sequence of complete types.
func ParseSignature(s string) (Signature, error) {
	rest := s
	for rest != "" {
		_, next, err := splitOne(rest, false)
		if err != nil {
			return "", fmt.Errorf("invalid signature %q: %w", s, err)
		}
		rest = next
	}
	return Signature(s), nil
}

func mustParseSignature(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}

// splitOne consumes one complete type from the front of s, returning
// the consumed head and the unconsumed remainder. inArray must be
// true when s is being parsed directly inside an array signature,
// since dict-entries are only legal there.
func splitOne(s string, inArray bool) (head, rest string, err error) {
	if s == "" {
		return "", "", fmt.Errorf("%w: empty signature", InvalidSignature)
	}
	code := TypeCode(s[0])
	if code.IsBasic() {
		return s[:1], s[1:], nil
	}
	switch code {
	case TypeArray:
		_, elemRest, err := splitOne(s[1:], true)
		if err != nil {
			return "", "", fmt.Errorf("array element: %w", err)
		}
		consumed := len(s) - len(elemRest)
		return s[:consumed], elemRest, nil
	case TypeVariant:
		return s[:1], s[1:], nil
	case TypeStruct:
		rest = s[1:]
		for {
			if rest == "" {
				return "", "", fmt.Errorf("%w: unterminated struct", InvalidSignature)
			}
			if TypeCode(rest[0]) == TypeStructEnd {
				rest = rest[1:]
				break
			}
			_, next, err := splitOne(rest, false)
			if err != nil {
				return "", "", fmt.Errorf("struct field: %w", err)
			}
			rest = next
		}
		consumed := len(s) - len(rest)
		return s[:consumed], rest, nil
	case TypeDictEntry:
		if !inArray {
			return "", "", fmt.Errorf("%w: dict entry outside array", InvalidSignature)
		}
		keyHead, rest, err := splitOne(s[1:], false)
		if err != nil {
			return "", "", fmt.Errorf("dict key: %w", err)
		}
		if len(keyHead) != 1 || !TypeCode(keyHead[0]).IsBasic() {
			return "", "", fmt.Errorf("%w: dict key must be a basic type, got %q", InvalidSignature, keyHead)
		}
		_, rest, err = splitOne(rest, false)
		if err != nil {
			return "", "", fmt.Errorf("dict value: %w", err)
		}
		if rest == "" || TypeCode(rest[0]) != TypeDictEnd {
			return "", "", fmt.Errorf("%w: unterminated dict entry", InvalidSignature)
		}
		rest = rest[1:]
		consumed := len(s) - len(rest)
		return s[:consumed], rest, nil
	default:
		return "", "", fmt.Errorf("%w: unknown type code %q", InvalidSignature, s[0])
	}
}

// IsZero reports whether s is the empty signature.
func (s Signature) IsZero() bool { return s == "" }

// IsSingle reports whether s describes exactly one complete type.
func (s Signature) IsSingle() bool {
	return len(s.Parts()) == 1
}

// FirstCode returns the leading type code of s's first complete type.
// It returns TypeInvalid if s is empty.
func (s Signature) FirstCode() TypeCode {
	if s == "" {
		return TypeInvalid
	}
	return TypeCode(s[0])
}

// Parts splits s into its sequence of complete types. s is assumed to
// already be valid, as returned by [ParseSignature] or assembled from
// already-valid pieces; Parts panics if s does not parse cleanly.
func (s Signature) Parts() []Signature {
	var ret []Signature
	rest := string(s)
	for rest != "" {
		head, next, err := splitOne(rest, false)
		if err != nil {
			panic(fmt.Sprintf("Parts called on invalid signature %q: %v", s, err))
		}
		ret = append(ret, Signature(head))
		rest = next
	}
	return ret
}

// ElementSignature returns the element type of an array signature (s
// must start with [TypeArray]).
func (s Signature) ElementSignature() (Signature, error) {
	if s.FirstCode() != TypeArray {
		return "", fmt.Errorf("%w: ElementSignature called on non-array signature %q", TypeMismatch, s)
	}
	elem, _, err := splitOne(string(s[1:]), true)
	if err != nil {
		return "", err
	}
	return Signature(elem), nil
}

// StructFields returns the component signatures of a struct signature
// (s must be of the form "(...)").
func (s Signature) StructFields() ([]Signature, error) {
	if s.FirstCode() != TypeStruct || !strings.HasSuffix(string(s), ")") {
		return nil, fmt.Errorf("%w: StructFields called on non-struct signature %q", TypeMismatch, s)
	}
	return Signature(s[1 : len(s)-1]).Parts(), nil
}

// DictEntryKV returns the key and value signatures of a dict-entry
// signature (s must be of the form "{kv}").
func (s Signature) DictEntryKV() (key, val Signature, err error) {
	if s.FirstCode() != TypeDictEntry {
		return "", "", fmt.Errorf("%w: DictEntryKV called on non-dict-entry signature %q", TypeMismatch, s)
	}
	inner := string(s[1 : len(s)-1])
	keyStr, rest, err := splitOne(inner, false)
	if err != nil {
		return "", "", err
	}
	return Signature(keyStr), Signature(rest), nil
}

// String returns the wire string form of s.
func (s Signature) String() string { return string(s) }

var signatureSignature = Signature("g")

// SignatureDBus makes Signature itself a DBus SIGNATURE value (wire
// code 'g'), distinct from its use as a type descriptor elsewhere in
// this package: a Signature argument on the wire is the signature of
// some other value, carried as data rather than as a header.
func (Signature) SignatureDBus() Signature { return signatureSignature }

func (s Signature) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.SmallString(s.String())
}

func (s *Signature) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	str, err := decodeSmallString(d)
	if err != nil {
		return err
	}
	sig, err := ParseSignature(str)
	if err != nil {
		return err
	}
	*s = sig
	return nil
}
