// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types for the gradcheck module.
//
// The package defines shapes, runtime data types (real and complex), and the
// flat RawTensor buffer that values and Jacobians are exchanged in:
//
//	x, _ := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3})
//	x.Shape().NumElements() // 3
package tensor

import (
	"github.com/born-ml/gradcheck/internal/tensor"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
// Zero-sized dimensions are legal and describe empty tensors.
type Shape = tensor.Shape

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants. Complex tensors store interleaved real and
// imaginary components of the corresponding real type.
const (
	Float32    DataType = tensor.Float32
	Float64    DataType = tensor.Float64
	Complex64  DataType = tensor.Complex64
	Complex128 DataType = tensor.Complex128
	Int32      DataType = tensor.Int32
	Int64      DataType = tensor.Int64
)

// RawTensor is the flat row-major tensor buffer with shape and runtime
// type information.
type RawTensor = tensor.RawTensor

// NewRaw creates a new zero-initialized RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.Zeros(shape, dtype)
}

// Full creates a tensor with every element set to value.
func Full(shape Shape, dtype DataType, value float64) (*RawTensor, error) {
	return tensor.Full(shape, dtype, value)
}

// FromFloat32 creates a Float32 tensor from a Go slice.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape)
}

// FromFloat64 creates a Float64 tensor from a Go slice.
func FromFloat64(data []float64, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat64(data, shape)
}

// FromComplex64 creates a Complex64 tensor from a Go slice.
func FromComplex64(data []complex64, shape Shape) (*RawTensor, error) {
	return tensor.FromComplex64(data, shape)
}

// FromComplex128 creates a Complex128 tensor from a Go slice.
func FromComplex128(data []complex128, shape Shape) (*RawTensor, error) {
	return tensor.FromComplex128(data, shape)
}

// FromInt32 creates an Int32 tensor from a Go slice.
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	return tensor.FromInt32(data, shape)
}
