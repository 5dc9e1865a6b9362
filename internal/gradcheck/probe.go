package gradcheck

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/gradcheck/internal/tensor"
)

// probeSpec carries everything one Jacobian assembly needs: the input node
// with its initial value, the output shape and dtype, the seed wiring, and
// the caller's fixed feeds.
type probeSpec struct {
	x           Node
	xInit       *tensor.RawTensor
	yShape      tensor.Shape
	yDType      tensor.DataType
	seed        *seedNodes
	extraFeeds  Feeds
	parallelism int
}

// computeJacobian runs the unit-vector probe loop: for each real component
// of the flattened output it feeds a one-hot seed, evaluates the derivative
// node, and records the result as one Jacobian column.
func computeJacobian(eng Engine, p probeSpec) (*Jacobian, error) {
	xShape := p.xInit.Shape()
	xRealSize := realSize(xShape, p.x.DType())
	yRealSize := realSize(p.yShape, p.yDType)
	xSliceReal := realSliceSize(xShape, p.x.DType())

	jac, err := newJacobian(xRealSize, yRealSize, p.x.DType().RealType())
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"rows": xRealSize,
		"cols": yRealSize,
	}).Debug("gradcheck: probing jacobian")

	// A zero-sized output still gets one backward evaluation, to catch
	// implementations that produce spurious values for empty outputs.
	if yRealSize == 0 {
		if err := probeEmptyOutput(eng, p); err != nil {
			return nil, err
		}
		return jac, nil
	}

	if p.parallelism > 1 {
		// Columns are independent: each evaluation sees only the immutable
		// x value and its own one-hot buffer, and writes a disjoint set of
		// Jacobian entries.
		var g errgroup.Group
		g.SetLimit(p.parallelism)
		for col := 0; col < yRealSize; col++ {
			col := col
			g.Go(func() error {
				return probeColumn(eng, p, jac, col, xSliceReal)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return jac, nil
	}

	for col := 0; col < yRealSize; col++ {
		if err := probeColumn(eng, p, jac, col, xSliceReal); err != nil {
			return nil, err
		}
	}
	return jac, nil
}

// probeColumn evaluates the derivative under a one-hot seed at position col
// and writes the result into column col of the Jacobian.
func probeColumn(eng Engine, p probeSpec, jac *Jacobian, col, xSliceReal int) error {
	probe, err := oneHot(p.yShape, p.yDType, col)
	if err != nil {
		return err
	}

	result, err := eng.Evaluate(p.seed.dx, mergeFeeds(p.extraFeeds, Feeds{
		p.x:         p.xInit,
		p.seed.feed: probe,
	}))
	if err != nil {
		return errors.Wrapf(err, "evaluating derivative for output component %d", col)
	}

	switch grad := result.(type) {
	case Dense:
		vals := realComponents(grad.Values)
		if len(vals) != jac.Rows() {
			return errors.Errorf("dense gradient for output component %d has %d real components, want %d",
				col, len(vals), jac.Rows())
		}
		for row, v := range vals {
			jac.add(row, col, v)
		}

	case Sparse:
		rowLimit := 1
		if xShape := p.xInit.Shape(); len(xShape) > 0 {
			rowLimit = xShape[0]
		}
		for _, block := range grad.Blocks {
			if block.Row < 0 || block.Row >= rowLimit {
				return errors.Errorf("sparse gradient row index %d out of range [0, %d)", block.Row, rowLimit)
			}
			vals := realComponents(block.Values)
			if len(vals) != xSliceReal {
				return errors.Errorf("sparse gradient block for row %d has %d real components, want %d",
					block.Row, len(vals), xSliceReal)
			}
			// Duplicate row indices accumulate additively; they represent
			// summed contributions such as repeated embedding lookups.
			base := block.Row * xSliceReal
			for i, v := range vals {
				jac.add(base+i, col, v)
			}
		}

	default:
		return errors.Errorf("engine returned unknown gradient variant %T", result)
	}

	return nil
}

// probeEmptyOutput evaluates the derivative once with an all-zero seed and
// verifies the backward pass is well behaved for a zero-sized output: the
// result must have exactly x's shape and be exactly zero everywhere.
func probeEmptyOutput(eng Engine, p probeSpec) error {
	zero, err := tensor.Zeros(p.yShape, p.yDType)
	if err != nil {
		return errors.Wrap(err, "allocating empty seed")
	}

	result, err := eng.Evaluate(p.seed.dx, mergeFeeds(p.extraFeeds, Feeds{
		p.x:         p.xInit,
		p.seed.feed: zero,
	}))
	if err != nil {
		return errors.Wrap(err, "evaluating derivative for empty output")
	}

	switch grad := result.(type) {
	case Dense:
		if !grad.Values.Shape().Equal(p.xInit.Shape()) {
			return &ShapeMismatchError{
				Context: "empty-output gradient",
				Want:    p.xInit.Shape(),
				Got:     grad.Values.Shape(),
			}
		}
		return checkAllZero(grad.Values)

	case Sparse:
		for _, block := range grad.Blocks {
			if err := checkAllZero(block.Values); err != nil {
				return err
			}
		}
		return nil

	default:
		return errors.Errorf("engine returned unknown gradient variant %T", result)
	}
}

func checkAllZero(t *tensor.RawTensor) error {
	for i, v := range realComponents(t) {
		if v != 0 {
			return &NonZeroEmptyGradientError{Index: i, Value: v}
		}
	}
	return nil
}

// mergeFeeds combines the caller's fixed feeds with the probe's per-column
// feeds. The probe feeds win on conflict.
func mergeFeeds(extra, probe Feeds) Feeds {
	if len(extra) == 0 {
		return probe
	}
	merged := make(Feeds, len(extra)+len(probe))
	for n, v := range extra {
		merged[n] = v
	}
	for n, v := range probe {
		merged[n] = v
	}
	return merged
}

// oneHot builds a zero tensor of the given shape and dtype with real
// component col set to 1. For complex dtypes even components address real
// parts and odd components imaginary parts.
func oneHot(shape tensor.Shape, dtype tensor.DataType, col int) (*tensor.RawTensor, error) {
	t, err := tensor.Zeros(shape, dtype)
	if err != nil {
		return nil, errors.Wrap(err, "allocating probe buffer")
	}

	switch dtype {
	case tensor.Float32:
		t.AsFloat32()[col] = 1
	case tensor.Float64:
		t.AsFloat64()[col] = 1
	case tensor.Complex64:
		if col%2 == 0 {
			t.AsComplex64()[col/2] = complex(1, 0)
		} else {
			t.AsComplex64()[col/2] = complex(0, 1)
		}
	case tensor.Complex128:
		if col%2 == 0 {
			t.AsComplex128()[col/2] = complex(1, 0)
		} else {
			t.AsComplex128()[col/2] = complex(0, 1)
		}
	default:
		return nil, errors.Errorf("cannot build probe buffer for dtype %s", dtype)
	}
	return t, nil
}

// realComponents flattens a tensor into its real components: float values
// as-is, complex values as interleaved (real, imag) pairs.
func realComponents(t *tensor.RawTensor) []float64 {
	switch t.DType() {
	case tensor.Float32:
		data := t.AsFloat32()
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out
	case tensor.Float64:
		data := t.AsFloat64()
		out := make([]float64, len(data))
		copy(out, data)
		return out
	case tensor.Complex64:
		data := t.AsComplex64()
		out := make([]float64, 2*len(data))
		for i, v := range data {
			out[2*i] = float64(real(v))
			out[2*i+1] = float64(imag(v))
		}
		return out
	case tensor.Complex128:
		data := t.AsComplex128()
		out := make([]float64, 2*len(data))
		for i, v := range data {
			out[2*i] = real(v)
			out[2*i+1] = imag(v)
		}
		return out
	default:
		panic("realComponents: non-numeric dtype " + t.DType().String())
	}
}
