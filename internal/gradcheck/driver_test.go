package gradcheck_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradcheck/internal/gradcheck"
	"github.com/born-ml/gradcheck/internal/graph"
	"github.com/born-ml/gradcheck/internal/tensor"
)

// assertIdentity checks that jac is the n x n identity matrix.
func assertIdentity(t *testing.T, jac *gradcheck.Jacobian, n int) {
	t.Helper()
	require.Equal(t, n, jac.Rows())
	require.Equal(t, n, jac.Cols())
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			want := 0.0
			if r == c {
				want = 1.0
			}
			assert.Equal(t, want, jac.At(r, c), "entry (%d, %d)", r, c)
		}
	}
}

func TestComputeIdentityJacobian(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{2, 3}, tensor.Float32)
	y := g.Identity(x)

	jac, err := gradcheck.Compute(sess, x, tensor.Shape{2, 3}, y, tensor.Shape{2, 3}, nil, nil)
	require.NoError(t, err)
	assertIdentity(t, jac, 6)
}

func TestComputeIdentityJacobianFloat64(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{4}, tensor.Float64)
	y := g.Identity(x)

	jac, err := gradcheck.Compute(sess, x, tensor.Shape{4}, y, tensor.Shape{4}, nil, nil)
	require.NoError(t, err)
	assertIdentity(t, jac, 4)
}

// A fixed linear map y = A·x must produce exactly A, transposed into the
// checker's rows-are-inputs layout: jac[k][m] = dy_m/dx_k = A[m][k].
func TestComputeLinearMap(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	aData := []float32{1, 2, 3, 4, 5, 6} // A is 2x3
	aRaw, err := tensor.FromFloat32(aData, tensor.Shape{2, 3})
	require.NoError(t, err)
	a := g.Constant(aRaw)

	x := g.Placeholder("x", tensor.Shape{3}, tensor.Float32)
	xCol, err := g.Reshape(x, tensor.Shape{3, 1})
	require.NoError(t, err)
	mm, err := g.MatMul(a, xCol)
	require.NoError(t, err)
	y, err := g.Reshape(mm, tensor.Shape{2})
	require.NoError(t, err)

	xInit, err := tensor.FromFloat32([]float32{0.5, -1, 2}, tensor.Shape{3})
	require.NoError(t, err)

	jac, err := gradcheck.Compute(sess, x, tensor.Shape{3}, y, tensor.Shape{2}, xInit, nil)
	require.NoError(t, err)
	require.Equal(t, 3, jac.Rows())
	require.Equal(t, 2, jac.Cols())

	for m := 0; m < 2; m++ {
		for k := 0; k < 3; k++ {
			assert.Equal(t, float64(aData[m*3+k]), jac.At(k, m), "A[%d][%d]", m, k)
		}
	}
}

// For complex x and y = x the Jacobian has twice the rows and columns and
// is block-diagonal with 2x2 identities: d(Re y)/d(Re x) = 1,
// d(Im y)/d(Im x) = 1, cross terms zero.
func TestComputeComplexRoundTrip(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{3}, tensor.Complex64)
	y := g.Identity(x)

	jac, err := gradcheck.Compute(sess, x, tensor.Shape{3}, y, tensor.Shape{3}, nil, nil)
	require.NoError(t, err)
	assertIdentity(t, jac, 6)
}

func TestComputeComplex128(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{2}, tensor.Complex128)
	y := g.Identity(x)

	jac, err := gradcheck.Compute(sess, x, tensor.Shape{2}, y, tensor.Shape{2}, nil, nil)
	require.NoError(t, err)
	assertIdentity(t, jac, 4)
}

// An output that reads the same input row twice must report the summed
// contribution for that row block, not the last one written.
func TestComputeSparseDuplicateIndices(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("table", tensor.Shape{3, 2}, tensor.Float32)
	idxRaw, err := tensor.FromInt32([]int32{1, 1}, tensor.Shape{2})
	require.NoError(t, err)
	idx := g.Constant(idxRaw)

	gathered, err := g.Gather(x, idx)
	require.NoError(t, err)
	first, err := g.SliceRows(gathered, 0, 1)
	require.NoError(t, err)
	second, err := g.SliceRows(gathered, 1, 1)
	require.NoError(t, err)
	y, err := g.Add(first, second) // y = x[1] + x[1]
	require.NoError(t, err)

	jac, err := gradcheck.Compute(sess, x, tensor.Shape{3, 2}, y, tensor.Shape{1, 2}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 6, jac.Rows())
	require.Equal(t, 2, jac.Cols())

	for r := 0; r < 6; r++ {
		for c := 0; c < 2; c++ {
			want := 0.0
			if r == 2+c { // row block for table row 1
				want = 2.0 // both lookups accumulate
			}
			assert.Equal(t, want, jac.At(r, c), "entry (%d, %d)", r, c)
		}
	}
}

// A zero-sized output still gets one backward evaluation, which must
// succeed when the engine legitimately reports a correctly shaped all-zero
// gradient.
func TestComputeEmptyOutput(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{4, 2}, tensor.Float32)
	y, err := g.SliceRows(x, 1, 0)
	require.NoError(t, err)

	jac, err := gradcheck.Compute(sess, x, tensor.Shape{4, 2}, y, tensor.Shape{0, 2}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, jac.Rows())
	assert.Equal(t, 0, jac.Cols())
}

// List processing is equivalent to independent per-element calls sharing
// one initialization pass.
func TestComputeListMatchesSingle(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x1 := g.Placeholder("x1", tensor.Shape{2}, tensor.Float32)
	x2 := g.Placeholder("x2", tensor.Shape{2}, tensor.Float32)
	y, err := g.Add(x1, x2)
	require.NoError(t, err)

	init1, err := tensor.FromFloat32([]float32{1, 2}, tensor.Shape{2})
	require.NoError(t, err)
	init2, err := tensor.FromFloat32([]float32{3, 4}, tensor.Shape{2})
	require.NoError(t, err)

	shapes := []tensor.Shape{{2}, {2}}
	list, err := gradcheck.ComputeList(sess,
		[]gradcheck.Node{x1, x2}, shapes, y, tensor.Shape{2},
		[]*tensor.RawTensor{init1, init2}, nil)
	require.NoError(t, err)
	require.Len(t, list, 2)

	single1, err := gradcheck.Compute(sess, x1, tensor.Shape{2}, y, tensor.Shape{2}, init1, nil)
	require.NoError(t, err)
	single2, err := gradcheck.Compute(sess, x2, tensor.Shape{2}, y, tensor.Shape{2}, init2, nil)
	require.NoError(t, err)

	assert.Equal(t, single1.Raw().Data(), list[0].Raw().Data())
	assert.Equal(t, single2.Raw().Data(), list[1].Raw().Data())
}

// A nil entry in the initial-value list triggers random initialization for
// that element only.
func TestComputeListPartialInit(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x1 := g.Placeholder("x1", tensor.Shape{2}, tensor.Float32)
	x2 := g.Placeholder("x2", tensor.Shape{2}, tensor.Float32)
	y, err := g.Add(x1, x2)
	require.NoError(t, err)

	init1, err := tensor.FromFloat32([]float32{1, 2}, tensor.Shape{2})
	require.NoError(t, err)

	list, err := gradcheck.ComputeList(sess,
		[]gradcheck.Node{x1, x2}, []tensor.Shape{{2}, {2}}, y, tensor.Shape{2},
		[]*tensor.RawTensor{init1, nil},
		&gradcheck.Options{Rand: rand.New(rand.NewSource(11))})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assertIdentity(t, list[0], 2)
	assertIdentity(t, list[1], 2)
}

// Given an explicit initial value and no init targets, two runs produce
// bit-identical Jacobians.
func TestComputeDeterministic(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{3}, tensor.Float32)
	doubled, err := g.Add(x, x)
	require.NoError(t, err)
	y := g.Identity(doubled)

	xInit, err := tensor.FromFloat32([]float32{0.1, 0.2, 0.3}, tensor.Shape{3})
	require.NoError(t, err)

	first, err := gradcheck.Compute(sess, x, tensor.Shape{3}, y, tensor.Shape{3}, xInit, nil)
	require.NoError(t, err)
	second, err := gradcheck.Compute(sess, x, tensor.Shape{3}, y, tensor.Shape{3}, xInit, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Raw().Data(), second.Raw().Data())

	// And y = x + x has Jacobian 2·I.
	for r := 0; r < 3; r++ {
		assert.Equal(t, 2.0, first.At(r, r))
	}
}

// Init targets seed trainable parameters y depends on besides x, exactly
// once and before any probing.
func TestComputeInitTargets(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{2}, tensor.Float32)
	w := g.Variable("w", tensor.Shape{2}, tensor.Float32)
	y, err := g.Mul(x, w)
	require.NoError(t, err)

	wVal, err := tensor.FromFloat32([]float32{3, 5}, tensor.Shape{2})
	require.NoError(t, err)
	assign, err := g.AssignOp(w, wVal)
	require.NoError(t, err)

	// Without initialization the variable has no value and probing fails.
	_, err = gradcheck.Compute(sess, x, tensor.Shape{2}, y, tensor.Shape{2}, nil, nil)
	require.Error(t, err)

	jac, err := gradcheck.Compute(sess, x, tensor.Shape{2}, y, tensor.Shape{2}, nil,
		&gradcheck.Options{InitTargets: []gradcheck.InitOp{assign}})
	require.NoError(t, err)

	assert.Equal(t, 3.0, jac.At(0, 0))
	assert.Equal(t, 5.0, jac.At(1, 1))
	assert.Equal(t, 0.0, jac.At(0, 1))
	assert.Equal(t, 0.0, jac.At(1, 0))
}

// Extra feeds fix node values for every evaluation without touching
// persistent state.
func TestComputeExtraFeeds(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	x := g.Placeholder("x", tensor.Shape{2}, tensor.Float64)
	p := g.Placeholder("p", tensor.Shape{2}, tensor.Float64)
	y, err := g.Mul(x, p)
	require.NoError(t, err)

	pVal, err := tensor.FromFloat64([]float64{-1, 4}, tensor.Shape{2})
	require.NoError(t, err)

	jac, err := gradcheck.Compute(sess, x, tensor.Shape{2}, y, tensor.Shape{2}, nil,
		&gradcheck.Options{ExtraFeeds: gradcheck.Feeds{p: pVal}})
	require.NoError(t, err)

	assert.Equal(t, -1.0, jac.At(0, 0))
	assert.Equal(t, 4.0, jac.At(1, 1))
}

// Concurrent column probing produces the same matrix as the sequential
// loop: columns are independent evaluations against the immutable input.
func TestComputeParallelMatchesSequential(t *testing.T) {
	g := graph.New()
	sess := graph.NewSession(g)

	aData := []float64{2, -3, 0, 1, 7, 5, -4, 9, 6, 1, 0, 8}
	aRaw, err := tensor.FromFloat64(aData, tensor.Shape{4, 3})
	require.NoError(t, err)
	a := g.Constant(aRaw)

	x := g.Placeholder("x", tensor.Shape{3}, tensor.Float64)
	xCol, err := g.Reshape(x, tensor.Shape{3, 1})
	require.NoError(t, err)
	mm, err := g.MatMul(a, xCol)
	require.NoError(t, err)
	y, err := g.Reshape(mm, tensor.Shape{4})
	require.NoError(t, err)

	xInit, err := tensor.FromFloat64([]float64{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)

	sequential, err := gradcheck.Compute(sess, x, tensor.Shape{3}, y, tensor.Shape{4}, xInit, nil)
	require.NoError(t, err)
	parallel, err := gradcheck.Compute(sess, x, tensor.Shape{3}, y, tensor.Shape{4}, xInit,
		&gradcheck.Options{Parallelism: 4})
	require.NoError(t, err)

	assert.Equal(t, sequential.Raw().Data(), parallel.Raw().Data())
}
