package dbus

// A TypeCode is the single-byte wire identifier of a DBus argument
// type, as defined by the DBus specification's type system.
type TypeCode byte

// The complete set of DBus argument type codes.
const (
	TypeInvalid    TypeCode = 0
	TypeByte       TypeCode = 'y'
	TypeBoolean    TypeCode = 'b'
	TypeInt16      TypeCode = 'n'
	TypeUint16     TypeCode = 'q'
	TypeInt32      TypeCode = 'i'
	TypeUint32     TypeCode = 'u'
	TypeInt64      TypeCode = 'x'
	TypeUint64     TypeCode = 't'
	TypeDouble     TypeCode = 'd'
	TypeString     TypeCode = 's'
	TypeObjectPath TypeCode = 'o'
	TypeSignature  TypeCode = 'g'
	TypeUnixFD     TypeCode = 'h'
	TypeArray      TypeCode = 'a'
	TypeVariant    TypeCode = 'v'
	TypeStruct     TypeCode = '('
	TypeStructEnd  TypeCode = ')'
	TypeDictEntry  TypeCode = '{'
	TypeDictEnd    TypeCode = '}'
)

// IsBasic reports whether code is a basic (fixed-shape scalar or
// string-like) type, as opposed to a container type.
func (code TypeCode) IsBasic() bool {
	switch code {
	case TypeByte, TypeBoolean, TypeInt16, TypeUint16, TypeInt32, TypeUint32,
		TypeInt64, TypeUint64, TypeDouble, TypeString, TypeObjectPath,
		TypeSignature, TypeUnixFD:
		return true
	default:
		return false
	}
}

// IsContainer reports whether code is a container type: array,
// variant, struct, or dict-entry.
func (code TypeCode) IsContainer() bool {
	switch code {
	case TypeArray, TypeVariant, TypeStruct, TypeDictEntry:
		return true
	default:
		return false
	}
}

// fixedSize returns the wire size in bytes of a basic, fixed-width
// type, or 0 if code isn't fixed-width (strings, signatures, and all
// containers are not fixed width).
func (code TypeCode) fixedSize() int {
	switch code {
	case TypeByte, TypeBoolean:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeUnixFD:
		return 4
	case TypeInt64, TypeUint64, TypeDouble:
		return 8
	default:
		return 0
	}
}

func (code TypeCode) String() string {
	if code == TypeInvalid {
		return "<invalid>"
	}
	return string(rune(code))
}
