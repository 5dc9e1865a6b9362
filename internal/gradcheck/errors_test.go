package gradcheck_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradcheck/internal/gradcheck"
	"github.com/born-ml/gradcheck/internal/graph"
	"github.com/born-ml/gradcheck/internal/tensor"
)

// stubNode is a bare engine node for exercising the checker's contract
// errors without a real graph behind it.
type stubNode struct {
	shape tensor.Shape
	dtype tensor.DataType
}

func (n *stubNode) Shape() tensor.Shape    { return n.shape }
func (n *stubNode) DType() tensor.DataType { return n.dtype }

// stubEngine answers every evaluation with a canned gradient and every
// differentiation request with a configurable number of derivative nodes.
type stubEngine struct {
	arity  int
	result gradcheck.Gradient
}

func (e *stubEngine) Constant(shape tensor.Shape, dtype tensor.DataType, _ float64) (gradcheck.Node, error) {
	return &stubNode{shape: shape, dtype: dtype}, nil
}

func (e *stubEngine) Identity(n gradcheck.Node) (gradcheck.Node, error) {
	return &stubNode{shape: n.Shape(), dtype: n.DType()}, nil
}

func (e *stubEngine) Gradients(_ gradcheck.Node, wrt []gradcheck.Node, _ gradcheck.Node) ([]gradcheck.Node, error) {
	out := make([]gradcheck.Node, e.arity)
	for i := range out {
		out[i] = &stubNode{shape: wrt[0].Shape(), dtype: wrt[0].DType()}
	}
	return out, nil
}

func (e *stubEngine) Evaluate(_ gradcheck.Node, _ gradcheck.Feeds) (gradcheck.Gradient, error) {
	return e.result, nil
}

func (e *stubEngine) Run(_ gradcheck.InitOp) error { return nil }

func TestComputeRejectsUnsupportedDType(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{3}, tensor.Int32)
	y := g.Identity(x)

	_, err := gradcheck.Compute(sess, x, tensor.Shape{3}, y, tensor.Shape{3}, nil, nil)
	var dtErr *gradcheck.UnsupportedDTypeError
	require.ErrorAs(t, err, &dtErr)
	assert.Equal(t, "x", dtErr.Name)
	assert.Equal(t, tensor.Int32, dtErr.DType)
}

func TestComputeRejectsInitShapeMismatch(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{3}, tensor.Float32)
	y := g.Identity(x)

	badInit, err := tensor.FromFloat32([]float32{1, 2}, tensor.Shape{2})
	require.NoError(t, err)

	_, err = gradcheck.Compute(sess, x, tensor.Shape{3}, y, tensor.Shape{3}, badInit, nil)
	var shapeErr *gradcheck.ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, tensor.Shape{3}, shapeErr.Want)
	assert.Equal(t, tensor.Shape{2}, shapeErr.Got)
}

func TestComputeDerivativeArity(t *testing.T) {
	x := &stubNode{shape: tensor.Shape{3}, dtype: tensor.Float32}
	y := &stubNode{shape: tensor.Shape{3}, dtype: tensor.Float32}

	for _, arity := range []int{0, 2} {
		eng := &stubEngine{arity: arity}
		_, err := gradcheck.Compute(eng, x, tensor.Shape{3}, y, tensor.Shape{3}, nil, nil)
		var arityErr *gradcheck.DerivativeArityError
		require.ErrorAs(t, err, &arityErr, "arity %d", arity)
		assert.Equal(t, arity, arityErr.Got)
	}
}

// An engine that reports nonzero gradients for a zero-sized output is
// broken and must be surfaced, not masked.
func TestComputeEmptyOutputNonZeroGradient(t *testing.T) {
	x := &stubNode{shape: tensor.Shape{3}, dtype: tensor.Float32}
	y := &stubNode{shape: tensor.Shape{0}, dtype: tensor.Float32}

	bad, err := tensor.FromFloat32([]float32{0, 0.5, 0}, tensor.Shape{3})
	require.NoError(t, err)

	eng := &stubEngine{arity: 1, result: gradcheck.Dense{Values: bad}}
	_, err = gradcheck.Compute(eng, x, tensor.Shape{3}, y, tensor.Shape{0}, nil, nil)
	var nzErr *gradcheck.NonZeroEmptyGradientError
	require.ErrorAs(t, err, &nzErr)
	assert.Equal(t, 1, nzErr.Index)
	assert.Equal(t, 0.5, nzErr.Value)
}

func TestComputeEmptyOutputShapeMismatch(t *testing.T) {
	x := &stubNode{shape: tensor.Shape{3}, dtype: tensor.Float32}
	y := &stubNode{shape: tensor.Shape{0}, dtype: tensor.Float32}

	wrongShape, err := tensor.Zeros(tensor.Shape{4}, tensor.Float32)
	require.NoError(t, err)

	eng := &stubEngine{arity: 1, result: gradcheck.Dense{Values: wrongShape}}
	_, err = gradcheck.Compute(eng, x, tensor.Shape{3}, y, tensor.Shape{0}, nil, nil)
	var shapeErr *gradcheck.ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
}

// A legitimate all-zero sparse result for an empty output passes the
// degenerate check.
func TestComputeEmptyOutputZeroSparse(t *testing.T) {
	x := &stubNode{shape: tensor.Shape{3, 2}, dtype: tensor.Float32}
	y := &stubNode{shape: tensor.Shape{0}, dtype: tensor.Float32}

	zeroBlock, err := tensor.Zeros(tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)

	eng := &stubEngine{arity: 1, result: gradcheck.Sparse{
		Blocks: []gradcheck.Block{{Row: 1, Values: zeroBlock}},
	}}
	jac, err := gradcheck.Compute(eng, x, tensor.Shape{3, 2}, y, tensor.Shape{0}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, jac.Rows())
	assert.Equal(t, 0, jac.Cols())
}

func TestComputeListLengthMismatch(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{2}, tensor.Float32)
	y := g.Identity(x)

	_, err := gradcheck.ComputeList(sess,
		[]gradcheck.Node{x}, []tensor.Shape{{2}, {2}}, y, tensor.Shape{2}, nil, nil)
	assert.Error(t, err)

	_, err = gradcheck.ComputeList(sess,
		[]gradcheck.Node{x}, []tensor.Shape{{2}}, y, tensor.Shape{2},
		[]*tensor.RawTensor{nil, nil}, nil)
	assert.Error(t, err)
}

func TestErrorsAreDistinguishable(t *testing.T) {
	// Wrapped contract errors stay matchable through errors.As.
	base := &gradcheck.DerivativeArityError{Got: 3}
	wrapped := errors.Wrap(base, "while probing")

	var arityErr *gradcheck.DerivativeArityError
	assert.True(t, errors.As(wrapped, &arityErr))
	assert.Equal(t, 3, arityErr.Got)
}
