package gradcheck

import (
	"github.com/pkg/errors"

	"github.com/born-ml/gradcheck/internal/tensor"
)

// Jacobian is the matrix of partial derivatives of every output component
// with respect to every input component, laid out as rows = input real
// components, columns = output real components. For complex tensors the
// components are interleaved (real, imag), so a complex input doubles the
// rows and a complex output doubles the columns; consumers rely on this
// quadrant layout when slicing.
type Jacobian struct {
	raw *tensor.RawTensor // shape {rows, cols}, dtype Float32 or Float64
}

func newJacobian(rows, cols int, dtype tensor.DataType) (*Jacobian, error) {
	if !dtype.IsFloat() {
		return nil, errors.Errorf("jacobian dtype must be a real float type, got %s", dtype)
	}
	raw, err := tensor.Zeros(tensor.Shape{rows, cols}, dtype)
	if err != nil {
		return nil, errors.Wrap(err, "allocating jacobian")
	}
	return &Jacobian{raw: raw}, nil
}

// Rows returns the number of input real components.
func (j *Jacobian) Rows() int {
	return j.raw.Shape()[0]
}

// Cols returns the number of output real components.
func (j *Jacobian) Cols() int {
	return j.raw.Shape()[1]
}

// At returns the entry at row r, column c.
func (j *Jacobian) At(r, c int) float64 {
	switch j.raw.DType() {
	case tensor.Float32:
		return float64(j.raw.AsFloat32()[r*j.Cols()+c])
	default:
		return j.raw.AsFloat64()[r*j.Cols()+c]
	}
}

// Raw returns the backing 2-D tensor.
func (j *Jacobian) Raw() *tensor.RawTensor {
	return j.raw
}

// add accumulates v into the entry at row r, column c.
func (j *Jacobian) add(r, c int, v float64) {
	switch j.raw.DType() {
	case tensor.Float32:
		j.raw.AsFloat32()[r*j.Cols()+c] += float32(v)
	default:
		j.raw.AsFloat64()[r*j.Cols()+c] += v
	}
}
