package gradcheck

import "github.com/born-ml/gradcheck/internal/tensor"

// Complex tensors are treated as vectors of twice as many reals: an
// implicit trailing dimension of 2 holds the interleaved real and
// imaginary components. All Jacobian row/column arithmetic is in these
// real units.

// flattenSize returns the flattened element count of the shape.
func flattenSize(s tensor.Shape) int {
	return s.NumElements()
}

// realSize returns the flattened real-component count: the element count,
// doubled for complex dtypes.
func realSize(s tensor.Shape, dtype tensor.DataType) int {
	n := flattenSize(s)
	if dtype.IsComplex() {
		n *= 2
	}
	return n
}

// realSliceSize returns the number of real components covered by one
// leading-dimension index, i.e. the product of all but the first dimension
// with the implicit trailing 2 for complex dtypes. Sparse gradient row
// blocks span exactly this many Jacobian rows.
func realSliceSize(s tensor.Shape, dtype tensor.DataType) int {
	n := s.SliceSize()
	if dtype.IsComplex() {
		n *= 2
	}
	return n
}
