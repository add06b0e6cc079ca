package dbus

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/gobus-project/dbus/fragments"
)

// An Argument is any Go value that knows its own DBus wire signature.
// It is the foundation of this package's typed marshaling layer:
// instead of deriving wire shape from struct tags via reflection,
// every encodable type states its signature directly.
type Argument interface {
	// SignatureDBus returns the DBus type signature this value
	// encodes to. It must return the same Signature for every value
	// of the implementing type (reflection-free types aside, see
	// [DynamicValue] for the one exception).
	SignatureDBus() Signature
}

// A Marshaler is an Argument that can encode itself to the DBus wire
// format.
type Marshaler interface {
	Argument
	MarshalDBus(ctx context.Context, e *fragments.Encoder) error
}

// An Unmarshaler is an Argument that can decode itself from the DBus
// wire format.
type Unmarshaler interface {
	Argument
	UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error
}

// ObjectPath is a DBus object path value.
type ObjectPath string

var objectPathSignature = Signature("o")

func (ObjectPath) SignatureDBus() Signature { return objectPathSignature }

func (p ObjectPath) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	e.String(string(p))
	return nil
}

func (p *ObjectPath) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	s, err := d.String()
	if err != nil {
		return err
	}
	*p = ObjectPath(s)
	return nil
}

// containsStructs reports whether values of the given element
// signature are struct-shaped on the wire (structs and dict-entries
// both take 8-byte alignment at the start of each array element).
func containsStructs(elem Signature) bool {
	switch elem.FirstCode() {
	case TypeStruct, TypeDictEntry:
		return true
	default:
		return false
	}
}

// marshalBasic writes a value of one of the DBus basic types, or
// reports ok=false if v is not one of them.
func marshalBasic(e *fragments.Encoder, v any) (ok bool, err error) {
	switch x := v.(type) {
	case byte:
		e.Uint8(x)
	case bool:
		if x {
			e.Uint32(1)
		} else {
			e.Uint32(0)
		}
	case int16:
		e.Uint16(uint16(x))
	case uint16:
		e.Uint16(x)
	case int32:
		e.Uint32(uint32(x))
	case uint32:
		e.Uint32(x)
	case int64:
		e.Uint64(uint64(x))
	case uint64:
		e.Uint64(x)
	case float64:
		e.Uint64(math.Float64bits(x))
	case string:
		e.String(x)
	default:
		return false, nil
	}
	return true, nil
}

func unmarshalBasic(d *fragments.Decoder, v any) (ok bool, err error) {
	switch x := v.(type) {
	case *byte:
		*x, err = d.Uint8()
	case *bool:
		var u uint32
		u, err = d.Uint32()
		*x = u != 0
	case *int16:
		var u uint16
		u, err = d.Uint16()
		*x = int16(u)
	case *uint16:
		*x, err = d.Uint16()
	case *int32:
		var u uint32
		u, err = d.Uint32()
		*x = int32(u)
	case *uint32:
		*x, err = d.Uint32()
	case *int64:
		var u uint64
		u, err = d.Uint64()
		*x = int64(u)
	case *uint64:
		*x, err = d.Uint64()
	case *float64:
		var u uint64
		u, err = d.Uint64()
		*x = math.Float64frombits(u)
	case *string:
		*x, err = d.String()
	default:
		return false, nil
	}
	return true, err
}

// basicSignature returns the signature of one of the built-in basic
// Go types, or "" if v isn't one.
func basicSignature(v any) Signature {
	switch v.(type) {
	case byte:
		return Signature("y")
	case bool:
		return Signature("b")
	case int16:
		return Signature("n")
	case uint16:
		return Signature("q")
	case int32:
		return Signature("i")
	case uint32:
		return Signature("u")
	case int64:
		return Signature("x")
	case uint64:
		return Signature("t")
	case float64:
		return Signature("d")
	case string:
		return Signature("s")
	default:
		return ""
	}
}

// argumentType is the reflect.Type of the Argument interface, used to
// probe a static element type for a signature without a sample value.
var argumentType = reflect.TypeOf((*Argument)(nil)).Elem()

// basicKindSignature returns the signature of one of the built-in
// basic Go kinds, or "" if k isn't one. It mirrors [basicSignature]
// but works from a reflect.Kind alone, so it can classify a static
// element type with no sample value in hand (an empty slice, say).
func basicKindSignature(k reflect.Kind) Signature {
	switch k {
	case reflect.Uint8:
		return Signature("y")
	case reflect.Bool:
		return Signature("b")
	case reflect.Int16:
		return Signature("n")
	case reflect.Uint16:
		return Signature("q")
	case reflect.Int32:
		return Signature("i")
	case reflect.Uint32:
		return Signature("u")
	case reflect.Int64:
		return Signature("x")
	case reflect.Uint64:
		return Signature("t")
	case reflect.Float64:
		return Signature("d")
	case reflect.String:
		return Signature("s")
	default:
		return ""
	}
}

// signatureOfType derives the DBus signature encoded by every value
// of the static Go type t, without needing a sample value. It covers
// the same ground as [SignatureOf] for types whose signature doesn't
// depend on runtime content: basic kinds, [Argument] implementations,
// and slices/arrays/maps built from those. It returns an error for
// element kinds whose signature can only be known from a runtime
// value (interfaces, i.e. dynamically typed elements such as []any).
func signatureOfType(t reflect.Type) (Signature, error) {
	// Named types built on a basic kind (ObjectPath, Signature, ...)
	// implement Argument with their own wire signature, which must
	// win over their underlying basic kind - check Argument first.
	if t.Implements(argumentType) {
		return reflect.Zero(t).Interface().(Argument).SignatureDBus(), nil
	}
	if reflect.PointerTo(t).Implements(argumentType) {
		return reflect.New(t).Interface().(Argument).SignatureDBus(), nil
	}
	if sig := basicKindSignature(t.Kind()); sig != "" {
		return sig, nil
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		elem, err := signatureOfType(t.Elem())
		if err != nil {
			return "", err
		}
		return Signature("a" + elem.String()), nil
	case reflect.Map:
		ks, err := signatureOfType(t.Key())
		if err != nil {
			return "", err
		}
		vs, err := signatureOfType(t.Elem())
		if err != nil {
			return "", err
		}
		return Signature(fmt.Sprintf("a{%s%s}", ks, vs)), nil
	default:
		return "", fmt.Errorf("%w: no static DBus signature known for %s", InvalidSignature, t)
	}
}

// SignatureOf returns the DBus signature that [Marshal] would encode
// v as.
func SignatureOf(v any) (Signature, error) {
	if sig := basicSignature(v); sig != "" {
		return sig, nil
	}
	if a, ok := v.(Argument); ok {
		return a.SignatureDBus(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elemType := rv.Type().Elem()
		if elemType.Kind() != reflect.Interface {
			elem, err := signatureOfType(elemType)
			if err != nil {
				return "", err
			}
			return Signature("a" + elem.String()), nil
		}
		if rv.Len() == 0 {
			return "", fmt.Errorf("%w: cannot infer element signature of empty untyped slice", InvalidSignature)
		}
		elem, err := SignatureOf(rv.Index(0).Interface())
		if err != nil {
			return "", err
		}
		return Signature("a" + elem.String()), nil
	case reflect.Map:
		keyType, valType := rv.Type().Key(), rv.Type().Elem()
		if keyType.Kind() != reflect.Interface && valType.Kind() != reflect.Interface {
			ks, err := signatureOfType(keyType)
			if err != nil {
				return "", err
			}
			vs, err := signatureOfType(valType)
			if err != nil {
				return "", err
			}
			return Signature(fmt.Sprintf("a{%s%s}", ks, vs)), nil
		}
		iter := rv.MapRange()
		if !iter.Next() {
			return "", fmt.Errorf("%w: cannot infer entry signature of empty untyped map", InvalidSignature)
		}
		ks, err := SignatureOf(iter.Key().Interface())
		if err != nil {
			return "", err
		}
		vs, err := SignatureOf(iter.Value().Interface())
		if err != nil {
			return "", err
		}
		return Signature(fmt.Sprintf("a{%s%s}", ks, vs)), nil
	default:
		return "", fmt.Errorf("%w: no DBus signature known for %T", InvalidSignature, v)
	}
}

// Marshal encodes v as a DBus argument onto e. v may be a built-in
// basic Go type (bool, byte, intN/uintN, float64, string), an
// [Argument] implementing [Marshaler], a slice (encoded as a DBus
// array), or a map with basic-typed keys (encoded as a DBus
// array-of-dict-entry).
func Marshal(ctx context.Context, e *fragments.Encoder, v any) error {
	if ok, err := marshalBasic(e, v); ok {
		return err
	}
	if m, ok := v.(Marshaler); ok {
		return m.MarshalDBus(ctx, e)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		elemType := rv.Type().Elem()
		var elemSig Signature
		if elemType.Kind() != reflect.Interface {
			s, err := signatureOfType(elemType)
			if err != nil {
				return err
			}
			elemSig = s
		} else if n > 0 {
			s, err := SignatureOf(rv.Index(0).Interface())
			if err != nil {
				return err
			}
			elemSig = s
		} else {
			return fmt.Errorf("%w: cannot infer element signature of empty untyped slice", InvalidSignature)
		}
		return e.Array(containsStructs(elemSig), func() error {
			for i := 0; i < n; i++ {
				if err := Marshal(ctx, e, rv.Index(i).Interface()); err != nil {
					return err
				}
			}
			return nil
		})
	case reflect.Map:
		keys := rv.MapKeys()
		return e.Array(true, func() error {
			for _, k := range keys {
				if err := e.Struct(func() error {
					if err := Marshal(ctx, e, k.Interface()); err != nil {
						return err
					}
					return Marshal(ctx, e, rv.MapIndex(k).Interface())
				}); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		return fmt.Errorf("%w: cannot marshal value of type %T", InvalidSignature, v)
	}
}

// Unmarshal decodes a DBus argument from d into v, which must be a
// pointer to a built-in basic Go type, an [Unmarshaler], or a pointer
// to a slice or a map. Fixed-size Go arrays are not supported as
// decode targets.
func Unmarshal(ctx context.Context, d *fragments.Decoder, v any) error {
	if ok, err := unmarshalBasic(d, v); ok {
		return err
	}
	if u, ok := v.(Unmarshaler); ok {
		return u.UnmarshalDBus(ctx, d)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return fmt.Errorf("%w: Unmarshal requires a pointer, got %T", TypeMismatch, v)
	}
	elem := rv.Elem()
	switch elem.Kind() {
	case reflect.Slice:
		elemType := elem.Type().Elem()
		structs := elemType.Kind() == reflect.Struct
		if s, err := signatureOfType(elemType); err == nil {
			structs = containsStructs(s)
		}
		out := reflect.MakeSlice(elem.Type(), 0, 0)
		_, err := d.Array(structs, func(int) error {
			ev := reflect.New(elemType)
			if err := Unmarshal(ctx, d, ev.Interface()); err != nil {
				return err
			}
			out = reflect.Append(out, ev.Elem())
			return nil
		})
		if err != nil {
			return err
		}
		elem.Set(out)
		return nil
	case reflect.Map:
		keyType, valType := elem.Type().Key(), elem.Type().Elem()
		out := reflect.MakeMap(elem.Type())
		_, err := d.Array(true, func(int) error {
			return d.Struct(func() error {
				kv := reflect.New(keyType)
				if err := Unmarshal(ctx, d, kv.Interface()); err != nil {
					return err
				}
				vv := reflect.New(valType)
				if err := Unmarshal(ctx, d, vv.Interface()); err != nil {
					return err
				}
				out.SetMapIndex(kv.Elem(), vv.Elem())
				return nil
			})
		})
		if err != nil {
			return err
		}
		elem.Set(out)
		return nil
	default:
		return fmt.Errorf("%w: cannot unmarshal into %T", InvalidSignature, v)
	}
}
