package fragments_test

import (
	"bytes"
	"testing"

	"github.com/gobus-project/dbus/fragments"
)

func TestDecoder(t *testing.T) {
	tests := []struct {
		name   string
		in     []byte
		decode func(t *testing.T, d *fragments.Decoder)
	}{
		{
			"raw bytes",
			[]byte{0x01, 0x02, 0x03},
			func(t *testing.T, d *fragments.Decoder) {
				got, err := d.Read(3)
				if err != nil || !bytes.Equal(got, []byte{1, 2, 3}) {
					t.Fatalf("Read(3) = %x, %v", got, err)
				}
			},
		},

		{
			"byte array",
			[]byte{
				0x00, 0x00, 0x00, 0x03,
				0x01, 0x02, 0x03,
			},
			func(t *testing.T, d *fragments.Decoder) {
				got, err := d.Bytes()
				if err != nil || !bytes.Equal(got, []byte{1, 2, 3}) {
					t.Fatalf("Bytes() = %x, %v", got, err)
				}
			},
		},

		{
			"string",
			[]byte{
				0x00, 0x00, 0x00, 0x03,
				0x66, 0x6f, 0x6f,
				0x00,
			},
			func(t *testing.T, d *fragments.Decoder) {
				got, err := d.String()
				if err != nil || got != "foo" {
					t.Fatalf("String() = %q, %v", got, err)
				}
			},
		},

		{
			"uints",
			[]byte{
				0x2a,
				0x00, // pad
				0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
			},
			func(t *testing.T, d *fragments.Decoder) {
				if u8, err := d.Uint8(); err != nil || u8 != 42 {
					t.Fatalf("Uint8() = %d, %v", u8, err)
				}
				if u16, err := d.Uint16(); err != nil || u16 != 66 {
					t.Fatalf("Uint16() = %d, %v", u16, err)
				}
				if u32, err := d.Uint32(); err != nil || u32 != 42 {
					t.Fatalf("Uint32() = %d, %v", u32, err)
				}
				if u64, err := d.Uint64(); err != nil || u64 != 66 {
					t.Fatalf("Uint64() = %d, %v", u64, err)
				}
			},
		},

		{
			"struct padding",
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
			},
			func(t *testing.T, d *fragments.Decoder) {
				err := d.Struct(func() error {
					u64, err := d.Uint64()
					if err != nil || u64 != 66 {
						t.Fatalf("Uint64() = %d, %v", u64, err)
					}
					return nil
				})
				if err != nil {
					t.Fatal(err)
				}
				err = d.Struct(func() error {
					u32, err := d.Uint32()
					if err != nil || u32 != 42 {
						t.Fatalf("Uint32() = %d, %v", u32, err)
					}
					return nil
				})
				if err != nil {
					t.Fatal(err)
				}
			},
		},

		{
			"array",
			[]byte{
				0x00, 0x00, 0x00, 0x04, // length
				0x00, 0x01,
				0x00, 0x02,
			},
			func(t *testing.T, d *fragments.Decoder) {
				var got []uint16
				n, err := d.Array(false, func(i int) error {
					v, err := d.Uint16()
					if err != nil {
						return err
					}
					got = append(got, v)
					return nil
				})
				if err != nil {
					t.Fatal(err)
				}
				if n != 2 || !equalU16(got, []uint16{1, 2}) {
					t.Fatalf("Array() = %d elements %v", n, got)
				}
			},
		},

		{
			"empty array",
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
			},
			func(t *testing.T, d *fragments.Decoder) {
				n, err := d.Array(false, func(int) error {
					t.Fatal("readElement called on empty array")
					return nil
				})
				if err != nil || n != 0 {
					t.Fatalf("Array() = %d, %v", n, err)
				}
			},
		},

		{
			"byte order flag",
			[]byte{'B', 'l', '?'},
			func(t *testing.T, d *fragments.Decoder) {
				if err := d.ByteOrderFlag(); err != nil || d.Order != fragments.BigEndian {
					t.Fatalf("ByteOrderFlag() order=%v err=%v", d.Order, err)
				}
				if err := d.ByteOrderFlag(); err != nil || d.Order != fragments.LittleEndian {
					t.Fatalf("ByteOrderFlag() order=%v err=%v", d.Order, err)
				}
				if err := d.ByteOrderFlag(); err == nil {
					t.Fatal("ByteOrderFlag did not error on invalid byte order")
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := &fragments.Decoder{
				Order: fragments.BigEndian,
				In:    bytes.NewReader(tc.in),
			}
			tc.decode(t, d)
		})
	}
}

func equalU16(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
