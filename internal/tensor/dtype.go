// Package tensor provides the core tensor types for the gradcheck module.
package tensor

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
//
// Complex tensors are stored as interleaved (real, imag) component pairs;
// their real component type is reported by RealType.
const (
	Float32 DataType = iota
	Float64
	Complex64
	Complex128
	Int32
	Int64
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		panic("unknown data type")
	}
}

// IsComplex reports whether the data type has real and imaginary components.
func (dt DataType) IsComplex() bool {
	return dt == Complex64 || dt == Complex128
}

// IsFloat reports whether the data type is a real floating-point type.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64
}

// RealType returns the component type of the data type: complex types map
// to their real component type, float types map to themselves.
// Panics for integer types, which have no real component type.
func (dt DataType) RealType() DataType {
	switch dt {
	case Float32, Complex64:
		return Float32
	case Float64, Complex128:
		return Float64
	default:
		panic("data type " + dt.String() + " has no real component type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return "unknown"
	}
}
