package dbus

import "testing"

func TestTypeCodeIsBasic(t *testing.T) {
	basic := []TypeCode{
		TypeByte, TypeBoolean, TypeInt16, TypeUint16, TypeInt32, TypeUint32,
		TypeInt64, TypeUint64, TypeDouble, TypeString, TypeObjectPath,
		TypeSignature, TypeUnixFD,
	}
	for _, c := range basic {
		if !c.IsBasic() {
			t.Errorf("%v.IsBasic() = false, want true", c)
		}
		if c.IsContainer() {
			t.Errorf("%v.IsContainer() = true, want false", c)
		}
	}

	container := []TypeCode{TypeArray, TypeVariant, TypeStruct, TypeDictEntry}
	for _, c := range container {
		if c.IsBasic() {
			t.Errorf("%v.IsBasic() = true, want false", c)
		}
		if !c.IsContainer() {
			t.Errorf("%v.IsContainer() = false, want true", c)
		}
	}

	if TypeInvalid.IsBasic() || TypeInvalid.IsContainer() {
		t.Errorf("TypeInvalid should be neither basic nor container")
	}
}

func TestTypeCodeFixedSize(t *testing.T) {
	tests := []struct {
		code TypeCode
		want int
	}{
		{TypeByte, 1},
		{TypeBoolean, 1},
		{TypeInt16, 2},
		{TypeUint16, 2},
		{TypeInt32, 4},
		{TypeUint32, 4},
		{TypeUnixFD, 4},
		{TypeInt64, 8},
		{TypeUint64, 8},
		{TypeDouble, 8},
		{TypeString, 0},
		{TypeObjectPath, 0},
		{TypeSignature, 0},
		{TypeArray, 0},
	}
	for _, tc := range tests {
		if got := tc.code.fixedSize(); got != tc.want {
			t.Errorf("%v.fixedSize() = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestTypeCodeString(t *testing.T) {
	if got := TypeString.String(); got != "s" {
		t.Errorf("TypeString.String() = %q, want %q", got, "s")
	}
	if got := TypeInvalid.String(); got != "<invalid>" {
		t.Errorf("TypeInvalid.String() = %q, want %q", got, "<invalid>")
	}
}
