package dbus

import (
	"context"
	"fmt"

	"github.com/gobus-project/dbus/fragments"
)

// DynamicStruct holds the fields of a DBus STRUCT whose signature was
// only discovered at decode time (for example, the payload of a
// [Variant] received from a peer). Fields are decoded the same way
// [Variant] decodes its own payload: basic types to their natural Go
// type, nested structs to another DynamicStruct, arrays to slices,
// and array-of-dict-entry to maps.
//
// Statically known struct shapes should use the Struct1..Struct12
// generic types instead, which give typed field access.
type DynamicStruct struct {
	Fields []any
}

func (s DynamicStruct) SignatureDBus() Signature {
	var parts string
	for _, f := range s.Fields {
		sig, err := SignatureOf(f)
		if err != nil {
			panic(err)
		}
		parts += sig.String()
	}
	return Signature("(" + parts + ")")
}

func (s DynamicStruct) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, f := range s.Fields {
			if err := Marshal(ctx, e, f); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct1 is a DBus STRUCT of one field. The Structs in this file are
// a fixed arity ladder (1 through 12 fields) standing in for the
// variadic generic struct that Go's type system cannot express; a
// struct signature with more than 12 fields is rare enough in
// practice that callers needing one should use [DynamicStruct]
// instead.
type Struct1[T1 any] struct {
	V1 T1
}

func (s Struct1[T1]) SignatureDBus() Signature {
	return structSignature(s.V1)
}

func (s Struct1[T1]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		return Marshal(ctx, e, s.V1)
	})
}

func (s *Struct1[T1]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		return Unmarshal(ctx, d, &s.V1)
	})
}

// Struct2 is a DBus STRUCT of two fields.
type Struct2[T1, T2 any] struct {
	V1 T1
	V2 T2
}

func (s Struct2[T1, T2]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2)
}

func (s Struct2[T1, T2]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		if err := Marshal(ctx, e, s.V1); err != nil {
			return err
		}
		return Marshal(ctx, e, s.V2)
	})
}

func (s *Struct2[T1, T2]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		if err := Unmarshal(ctx, d, &s.V1); err != nil {
			return err
		}
		return Unmarshal(ctx, d, &s.V2)
	})
}

// Struct3 is a DBus STRUCT of three fields.
type Struct3[T1, T2, T3 any] struct {
	V1 T1
	V2 T2
	V3 T3
}

func (s Struct3[T1, T2, T3]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3)
}

func (s Struct3[T1, T2, T3]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct3[T1, T2, T3]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		if err := Unmarshal(ctx, d, &s.V1); err != nil {
			return err
		}
		if err := Unmarshal(ctx, d, &s.V2); err != nil {
			return err
		}
		return Unmarshal(ctx, d, &s.V3)
	})
}

// Struct4 is a DBus STRUCT of four fields.
type Struct4[T1, T2, T3, T4 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
}

func (s Struct4[T1, T2, T3, T4]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3, s.V4)
}

func (s Struct4[T1, T2, T3, T4]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3, s.V4} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct4[T1, T2, T3, T4]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		for _, v := range []any{&s.V1, &s.V2, &s.V3, &s.V4} {
			if err := Unmarshal(ctx, d, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct5 is a DBus STRUCT of five fields.
type Struct5[T1, T2, T3, T4, T5 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
	V5 T5
}

func (s Struct5[T1, T2, T3, T4, T5]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3, s.V4, s.V5)
}

func (s Struct5[T1, T2, T3, T4, T5]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3, s.V4, s.V5} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct5[T1, T2, T3, T4, T5]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		for _, v := range []any{&s.V1, &s.V2, &s.V3, &s.V4, &s.V5} {
			if err := Unmarshal(ctx, d, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct6 is a DBus STRUCT of six fields.
type Struct6[T1, T2, T3, T4, T5, T6 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
	V5 T5
	V6 T6
}

func (s Struct6[T1, T2, T3, T4, T5, T6]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3, s.V4, s.V5, s.V6)
}

func (s Struct6[T1, T2, T3, T4, T5, T6]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3, s.V4, s.V5, s.V6} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct6[T1, T2, T3, T4, T5, T6]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		for _, v := range []any{&s.V1, &s.V2, &s.V3, &s.V4, &s.V5, &s.V6} {
			if err := Unmarshal(ctx, d, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct7 is a DBus STRUCT of seven fields.
type Struct7[T1, T2, T3, T4, T5, T6, T7 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
	V5 T5
	V6 T6
	V7 T7
}

func (s Struct7[T1, T2, T3, T4, T5, T6, T7]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7)
}

func (s Struct7[T1, T2, T3, T4, T5, T6, T7]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct7[T1, T2, T3, T4, T5, T6, T7]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		for _, v := range []any{&s.V1, &s.V2, &s.V3, &s.V4, &s.V5, &s.V6, &s.V7} {
			if err := Unmarshal(ctx, d, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct8 is a DBus STRUCT of eight fields.
type Struct8[T1, T2, T3, T4, T5, T6, T7, T8 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
	V5 T5
	V6 T6
	V7 T7
	V8 T8
}

func (s Struct8[T1, T2, T3, T4, T5, T6, T7, T8]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8)
}

func (s Struct8[T1, T2, T3, T4, T5, T6, T7, T8]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct8[T1, T2, T3, T4, T5, T6, T7, T8]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		for _, v := range []any{&s.V1, &s.V2, &s.V3, &s.V4, &s.V5, &s.V6, &s.V7, &s.V8} {
			if err := Unmarshal(ctx, d, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct9 is a DBus STRUCT of nine fields.
type Struct9[T1, T2, T3, T4, T5, T6, T7, T8, T9 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
	V5 T5
	V6 T6
	V7 T7
	V8 T8
	V9 T9
}

func (s Struct9[T1, T2, T3, T4, T5, T6, T7, T8, T9]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8, s.V9)
}

func (s Struct9[T1, T2, T3, T4, T5, T6, T7, T8, T9]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8, s.V9} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct9[T1, T2, T3, T4, T5, T6, T7, T8, T9]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		for _, v := range []any{&s.V1, &s.V2, &s.V3, &s.V4, &s.V5, &s.V6, &s.V7, &s.V8, &s.V9} {
			if err := Unmarshal(ctx, d, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct10 is a DBus STRUCT of ten fields.
type Struct10[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10 any] struct {
	V1  T1
	V2  T2
	V3  T3
	V4  T4
	V5  T5
	V6  T6
	V7  T7
	V8  T8
	V9  T9
	V10 T10
}

func (s Struct10[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8, s.V9, s.V10)
}

func (s Struct10[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8, s.V9, s.V10} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct10[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		for _, v := range []any{&s.V1, &s.V2, &s.V3, &s.V4, &s.V5, &s.V6, &s.V7, &s.V8, &s.V9, &s.V10} {
			if err := Unmarshal(ctx, d, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct11 is a DBus STRUCT of eleven fields.
type Struct11[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10, T11 any] struct {
	V1  T1
	V2  T2
	V3  T3
	V4  T4
	V5  T5
	V6  T6
	V7  T7
	V8  T8
	V9  T9
	V10 T10
	V11 T11
}

func (s Struct11[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10, T11]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8, s.V9, s.V10, s.V11)
}

func (s Struct11[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10, T11]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8, s.V9, s.V10, s.V11} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct11[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10, T11]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		for _, v := range []any{&s.V1, &s.V2, &s.V3, &s.V4, &s.V5, &s.V6, &s.V7, &s.V8, &s.V9, &s.V10, &s.V11} {
			if err := Unmarshal(ctx, d, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct12 is a DBus STRUCT of twelve fields.
type Struct12[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10, T11, T12 any] struct {
	V1  T1
	V2  T2
	V3  T3
	V4  T4
	V5  T5
	V6  T6
	V7  T7
	V8  T8
	V9  T9
	V10 T10
	V11 T11
	V12 T12
}

func (s Struct12[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10, T11, T12]) SignatureDBus() Signature {
	return structSignature(s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8, s.V9, s.V10, s.V11, s.V12)
}

func (s Struct12[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10, T11, T12]) MarshalDBus(ctx context.Context, e *fragments.Encoder) error {
	return e.Struct(func() error {
		for _, v := range []any{s.V1, s.V2, s.V3, s.V4, s.V5, s.V6, s.V7, s.V8, s.V9, s.V10, s.V11, s.V12} {
			if err := Marshal(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Struct12[T1, T2, T3, T4, T5, T6, T7, T8, T9, T10, T11, T12]) UnmarshalDBus(ctx context.Context, d *fragments.Decoder) error {
	return d.Struct(func() error {
		for _, v := range []any{&s.V1, &s.V2, &s.V3, &s.V4, &s.V5, &s.V6, &s.V7, &s.V8, &s.V9, &s.V10, &s.V11, &s.V12} {
			if err := Unmarshal(ctx, d, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// structSignature computes a struct wire signature from its field
// values, used by the Struct1..Struct12 arity ladder.
func structSignature(fields ...any) Signature {
	var parts string
	for _, f := range fields {
		sig, err := SignatureOf(f)
		if err != nil {
			panic(fmt.Sprintf("computing struct signature: %v", err))
		}
		parts += sig.String()
	}
	return Signature("(" + parts + ")")
}
