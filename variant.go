package dbus

import (
	"context"
	"fmt"

	"github.com/gobus-project/dbus/fragments"
)

// A DynamicValue is a value whose concrete DBus signature is only
// known at runtime, discovered as part of decoding it. [Variant] is
// the built-in implementation; it exists as its own type, rather than
// being folded directly into Variant, so that code receiving a
// dynamically typed value through some other path (for example a
// DynamicStruct field) can treat it uniformly.
type DynamicValue interface {
	Argument
	// Value returns the decoded Go value the DynamicValue wraps. Its
	// concrete type depends on the wire signature that was decoded:
	// basic types decode to their natural Go type, arrays to slices,
	// structs to a [DynamicStruct], dict-entry arrays with basic keys
	// to maps, and nested variants to another [Variant].
	Value() any
}

var variantSignature = Signature("v")

// A Variant carries a single DBus value of a signature not known
// until decode time. It is itself a complete DBus type (VARIANT, wire
// code 'v'): on the wire a variant is its own embedded signature
// followed by a value of that signature.
type Variant struct {
	sig Signature
	val any
}

// NewVariant wraps v, a value of one of the kinds [Marshal] accepts,
// in a Variant with signature determined by v's dynamic type.
func NewVariant(v any) (Variant, error) {
	sig, err := SignatureOf(v)
	if err != nil {
		return Variant{}, err
	}
	return Variant{sig: sig, val: v}, nil
}

func (Variant) SignatureDBus() Signature { return variantSignature }

// Value returns the wrapped value.
func (v Variant) Value() any { return v.val }

// Signature returns the wire signature of the value the Variant
// wraps (not the VARIANT signature itself).
func (v Variant) Signature() Signature { return v.sig }

func (v Variant) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	if err := e.SmallString(v.sig.String()); err != nil {
		return err
	}
	return Marshal(ctx, e, v.val)
}

func (v *Variant) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	sigStr, err := decodeSmallString(d)
	if err != nil {
		return err
	}
	sig, err := ParseSignature(sigStr)
	if err != nil {
		return err
	}
	if !sig.IsSingle() {
		return fmt.Errorf("%w: variant signature %q is not a single complete type", InvalidSignature, sigStr)
	}
	val, err := decodeDynamic(ctx, d, sig)
	if err != nil {
		return err
	}
	v.sig = sig
	v.val = val
	return nil
}

// decodeSmallString reads a DBus SIGNATURE value (a length-byte,
// bytes, nul terminator) off the front of d.
func decodeSmallString(d *fragments.Decoder) (string, error) {
	n, err := d.Uint8()
	if err != nil {
		return "", err
	}
	bs, err := d.Read(int(n) + 1)
	if err != nil {
		return "", err
	}
	return string(bs[:len(bs)-1]), nil
}

// decodeDynamic decodes a value whose signature is known only at
// runtime, recursing into arrays, structs, dict-entry arrays and
// nested variants as needed.
func decodeDynamic(ctx context.Context, d *fragments.Decoder, sig Signature) (any, error) {
	switch sig.FirstCode() {
	case TypeByte:
		var v byte
		return v, mustUnmarshal(ctx, d, &v)
	case TypeBoolean:
		var v bool
		return v, mustUnmarshal(ctx, d, &v)
	case TypeInt16:
		var v int16
		return v, mustUnmarshal(ctx, d, &v)
	case TypeUint16:
		var v uint16
		return v, mustUnmarshal(ctx, d, &v)
	case TypeInt32:
		var v int32
		return v, mustUnmarshal(ctx, d, &v)
	case TypeUint32:
		var v uint32
		return v, mustUnmarshal(ctx, d, &v)
	case TypeInt64:
		var v int64
		return v, mustUnmarshal(ctx, d, &v)
	case TypeUint64:
		var v uint64
		return v, mustUnmarshal(ctx, d, &v)
	case TypeDouble:
		var v float64
		return v, mustUnmarshal(ctx, d, &v)
	case TypeString:
		var v string
		return v, mustUnmarshal(ctx, d, &v)
	case TypeObjectPath:
		var v ObjectPath
		return v, mustUnmarshal(ctx, d, &v)
	case TypeSignature:
		s, err := decodeSmallString(d)
		if err != nil {
			return nil, err
		}
		return ParseSignature(s)
	case TypeUnixFD:
		var v UnixFD
		return v, mustUnmarshal(ctx, d, &v)
	case TypeVariant:
		var v Variant
		return v, mustUnmarshal(ctx, d, &v)
	case TypeArray:
		elemSig, err := sig.ElementSignature()
		if err != nil {
			return nil, err
		}
		if elemSig.FirstCode() == TypeDictEntry {
			return decodeDynamicDict(ctx, d, elemSig)
		}
		var out []any
		_, err = d.Array(containsStructs(elemSig), func(int) error {
			v, err := decodeDynamic(ctx, d, elemSig)
			if err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})
		return out, err
	case TypeStruct:
		fields, err := sig.StructFields()
		if err != nil {
			return nil, err
		}
		var ds DynamicStruct
		err = d.Struct(func() error {
			for _, fsig := range fields {
				v, err := decodeDynamic(ctx, d, fsig)
				if err != nil {
					return err
				}
				ds.Fields = append(ds.Fields, v)
			}
			return nil
		})
		return ds, err
	default:
		return nil, fmt.Errorf("%w: cannot decode dynamic value of signature %q", InvalidSignature, sig)
	}
}

func decodeDynamicDict(ctx context.Context, d *fragments.Decoder, entrySig Signature) (map[any]any, error) {
	keySig, valSig, err := entrySig.DictEntryKV()
	if err != nil {
		return nil, err
	}
	out := map[any]any{}
	_, err = d.Array(true, func(int) error {
		return d.Struct(func() error {
			k, err := decodeDynamic(ctx, d, keySig)
			if err != nil {
				return err
			}
			v, err := decodeDynamic(ctx, d, valSig)
			if err != nil {
				return err
			}
			out[k] = v
			return nil
		})
	})
	return out, err
}

func mustUnmarshal(ctx context.Context, d *fragments.Decoder, v any) error {
	return Unmarshal(ctx, d, v)
}
