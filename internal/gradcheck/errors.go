package gradcheck

import (
	"fmt"

	"github.com/born-ml/gradcheck/internal/tensor"
)

// UnsupportedDTypeError reports that x or y has an element type outside the
// supported float/complex set. It is raised before any evaluation.
type UnsupportedDTypeError struct {
	Name  string // "x" or "y"
	DType tensor.DataType
}

func (e *UnsupportedDTypeError) Error() string {
	return fmt.Sprintf("gradcheck: unsupported dtype %s for %s (want float32, float64, complex64 or complex128)",
		e.DType, e.Name)
}

// ShapeMismatchError reports a shape disagreement: either a caller-supplied
// initial value that does not match the declared input shape, or an
// empty-output gradient whose evaluated shape does not match the input.
type ShapeMismatchError struct {
	Context string
	Want    tensor.Shape
	Got     tensor.Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("gradcheck: %s: shape %v does not match %v", e.Context, e.Got, e.Want)
}

// NonZeroEmptyGradientError reports that the backward pass produced nonzero
// values for a zero-sized output. A correct backward implementation must
// return an all-zero gradient when no output element exists.
type NonZeroEmptyGradientError struct {
	Index int     // flattened real-component index of the first nonzero value
	Value float64 // the offending component
}

func (e *NonZeroEmptyGradientError) Error() string {
	return fmt.Sprintf("gradcheck: empty output produced nonzero gradient (component %d = %g)", e.Index, e.Value)
}

// DerivativeArityError reports that the differentiation mechanism returned
// other than exactly one derivative node for a single (x, y) pair.
type DerivativeArityError struct {
	Got int
}

func (e *DerivativeArityError) Error() string {
	return fmt.Sprintf("gradcheck: engine returned %d derivative nodes for one input, want exactly 1", e.Got)
}
