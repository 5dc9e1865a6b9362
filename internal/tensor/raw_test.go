package tensor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeProperties(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Complex64.Size())
	assert.Equal(t, 16, Complex128.Size())

	assert.True(t, Complex64.IsComplex())
	assert.False(t, Float64.IsComplex())
	assert.True(t, Float32.IsFloat())
	assert.False(t, Int32.IsFloat())

	assert.Equal(t, Float32, Complex64.RealType())
	assert.Equal(t, Float64, Complex128.RealType())
	assert.Equal(t, Float64, Float64.RealType())
	assert.Panics(t, func() { Int64.RealType() })
}

func TestNewRawAndViews(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3}, Float32)
	require.NoError(t, err)
	assert.Equal(t, 6, raw.NumElements())
	assert.Equal(t, 24, raw.ByteSize())

	data := raw.AsFloat32()
	require.Len(t, data, 6)
	data[4] = 2.5
	assert.Equal(t, float32(2.5), raw.AsFloat32()[4], "views share the buffer")

	assert.Panics(t, func() { raw.AsFloat64() }, "wrong dtype view must panic")
}

func TestComplexViews(t *testing.T) {
	raw, err := FromComplex64([]complex64{1 + 2i, 3 + 4i}, Shape{2})
	require.NoError(t, err)

	c := raw.AsComplex64()
	assert.Equal(t, complex64(1+2i), c[0])
	assert.Equal(t, complex64(3+4i), c[1])
}

func TestZeroSizedTensor(t *testing.T) {
	raw, err := NewRaw(Shape{0, 3}, Float64)
	require.NoError(t, err)
	assert.Equal(t, 0, raw.NumElements())
	assert.Nil(t, raw.AsFloat64(), "empty view is nil, not a panic")
}

func TestCloneIsDeep(t *testing.T) {
	raw, err := FromFloat64([]float64{1, 2, 3}, Shape{3})
	require.NoError(t, err)

	clone := raw.Clone()
	clone.AsFloat64()[0] = 99
	assert.Equal(t, 1.0, raw.AsFloat64()[0])
}

func TestReshaped(t *testing.T) {
	raw, err := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)

	flat, err := raw.Reshaped(Shape{6})
	require.NoError(t, err)
	assert.Equal(t, Shape{6}, flat.Shape())

	flat.AsFloat32()[0] = 10
	assert.Equal(t, float32(10), raw.AsFloat32()[0], "reshape is a view")

	_, err = raw.Reshaped(Shape{4})
	assert.Error(t, err)
}

func TestFromSliceLengthMismatch(t *testing.T) {
	_, err := FromFloat32([]float32{1, 2}, Shape{3})
	assert.Error(t, err)
}

func TestFillUniform(t *testing.T) {
	raw, err := NewRaw(Shape{100}, Float64)
	require.NoError(t, err)
	raw.FillUniform(rand.New(rand.NewSource(1)))

	for _, v := range raw.AsFloat64() {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}

	// Same seed, same values.
	other, err := NewRaw(Shape{100}, Float64)
	require.NoError(t, err)
	other.FillUniform(rand.New(rand.NewSource(1)))
	assert.Equal(t, raw.AsFloat64(), other.AsFloat64())
}

func TestFillUniformComplex(t *testing.T) {
	raw, err := NewRaw(Shape{8}, Complex128)
	require.NoError(t, err)
	raw.FillUniform(rand.New(rand.NewSource(7)))

	sawDistinctParts := false
	for _, v := range raw.AsComplex128() {
		assert.GreaterOrEqual(t, real(v), 0.0)
		assert.GreaterOrEqual(t, imag(v), 0.0)
		if real(v) != imag(v) {
			sawDistinctParts = true
		}
	}
	assert.True(t, sawDistinctParts, "real and imaginary parts are drawn independently")
}
