package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape, dtype DataType) (*RawTensor, error) {
	// Data is already zero-initialized by make()
	return NewRaw(shape, dtype)
}

// Full creates a tensor with every element set to the given value.
// For complex dtypes the value becomes the real component and the
// imaginary component is zero. Integer dtypes truncate.
func Full(shape Shape, dtype DataType, value float64) (*RawTensor, error) {
	t, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}

	switch dtype {
	case Float32:
		data := t.AsFloat32()
		for i := range data {
			data[i] = float32(value)
		}
	case Float64:
		data := t.AsFloat64()
		for i := range data {
			data[i] = value
		}
	case Complex64:
		data := t.AsComplex64()
		for i := range data {
			data[i] = complex(float32(value), 0)
		}
	case Complex128:
		data := t.AsComplex128()
		for i := range data {
			data[i] = complex(value, 0)
		}
	case Int32:
		data := t.AsInt32()
		for i := range data {
			data[i] = int32(value)
		}
	case Int64:
		data := t.AsInt64()
		for i := range data {
			data[i] = int64(value)
		}
	}
	return t, nil
}

// FromFloat32 creates a Float32 tensor from a Go slice.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	t, err := newFromLen(len(data), shape, Float32)
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat32(), data)
	return t, nil
}

// FromFloat64 creates a Float64 tensor from a Go slice.
func FromFloat64(data []float64, shape Shape) (*RawTensor, error) {
	t, err := newFromLen(len(data), shape, Float64)
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat64(), data)
	return t, nil
}

// FromComplex64 creates a Complex64 tensor from a Go slice.
func FromComplex64(data []complex64, shape Shape) (*RawTensor, error) {
	t, err := newFromLen(len(data), shape, Complex64)
	if err != nil {
		return nil, err
	}
	copy(t.AsComplex64(), data)
	return t, nil
}

// FromComplex128 creates a Complex128 tensor from a Go slice.
func FromComplex128(data []complex128, shape Shape) (*RawTensor, error) {
	t, err := newFromLen(len(data), shape, Complex128)
	if err != nil {
		return nil, err
	}
	copy(t.AsComplex128(), data)
	return t, nil
}

// FromInt32 creates an Int32 tensor from a Go slice.
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	t, err := newFromLen(len(data), shape, Int32)
	if err != nil {
		return nil, err
	}
	copy(t.AsInt32(), data)
	return t, nil
}

func newFromLen(n int, shape Shape, dtype DataType) (*RawTensor, error) {
	if n != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			n, shape, shape.NumElements())
	}
	return NewRaw(shape, dtype)
}

// FillUniform fills the tensor with values drawn uniformly from [0, 1).
// For complex dtypes the real and imaginary components are drawn
// independently. Only float and complex dtypes are supported.
// Note: uses math/rand, appropriate for gradient probing where the caller
// controls the source for reproducibility.
func (r *RawTensor) FillUniform(rng *rand.Rand) {
	switch r.dtype {
	case Float32:
		data := r.AsFloat32()
		for i := range data {
			data[i] = rng.Float32()
		}
	case Float64:
		data := r.AsFloat64()
		for i := range data {
			data[i] = rng.Float64()
		}
	case Complex64:
		data := r.AsComplex64()
		for i := range data {
			data[i] = complex(rng.Float32(), rng.Float32())
		}
	case Complex128:
		data := r.AsComplex128()
		for i := range data {
			data[i] = complex(rng.Float64(), rng.Float64())
		}
	default:
		panic("FillUniform only supports float and complex dtypes")
	}
}
