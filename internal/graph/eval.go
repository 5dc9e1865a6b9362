package graph

import (
	"github.com/pkg/errors"

	"github.com/born-ml/gradcheck/internal/gradcheck"
	"github.com/born-ml/gradcheck/internal/tensor"
)

// eval computes the forward value of a node. Feeds override any node,
// including constants; this is what makes the gradient seed feedable.
// Values are memoized in cache for the duration of one evaluation.
func (s *Session) eval(n *Node, feeds gradcheck.Feeds, cache map[*Node]*tensor.RawTensor) (*tensor.RawTensor, error) {
	if fed, ok := feeds[n]; ok {
		if !fed.Shape().Equal(n.shape) || fed.DType() != n.dtype {
			return nil, errors.Errorf("feed for %s has shape %v dtype %s", n, fed.Shape(), fed.DType())
		}
		return fed, nil
	}
	if v, ok := cache[n]; ok {
		return v, nil
	}

	v, err := s.evalOp(n, feeds, cache)
	if err != nil {
		return nil, err
	}
	cache[n] = v
	return v, nil
}

func (s *Session) evalOp(n *Node, feeds gradcheck.Feeds, cache map[*Node]*tensor.RawTensor) (*tensor.RawTensor, error) {
	switch n.kind {
	case opConstant:
		return n.value, nil

	case opPlaceholder:
		return nil, errors.Errorf("placeholder %s must be fed", n)

	case opVariable:
		v, ok := s.variableValue(n)
		if !ok {
			return nil, errors.Errorf("variable %s is uninitialized; run its Assign op first", n)
		}
		return v, nil

	case opIdentity:
		return s.eval(n.inputs[0], feeds, cache)

	case opAdd, opMul:
		a, err := s.eval(n.inputs[0], feeds, cache)
		if err != nil {
			return nil, err
		}
		b, err := s.eval(n.inputs[1], feeds, cache)
		if err != nil {
			return nil, err
		}
		return elementwise(n.kind, a, b)

	case opMatMul:
		a, err := s.eval(n.inputs[0], feeds, cache)
		if err != nil {
			return nil, err
		}
		b, err := s.eval(n.inputs[1], feeds, cache)
		if err != nil {
			return nil, err
		}
		return matMul(a, b)

	case opGather:
		table, err := s.eval(n.inputs[0], feeds, cache)
		if err != nil {
			return nil, err
		}
		indices, err := s.eval(n.inputs[1], feeds, cache)
		if err != nil {
			return nil, err
		}
		return gatherRows(table, indices.AsInt32())

	case opSliceRows:
		x, err := s.eval(n.inputs[0], feeds, cache)
		if err != nil {
			return nil, err
		}
		return sliceRows(x, n.start, n.shape[0])

	case opReshape:
		x, err := s.eval(n.inputs[0], feeds, cache)
		if err != nil {
			return nil, err
		}
		return x.Reshaped(n.shape)

	case opDerivative:
		return nil, errors.Errorf("derivative node %s cannot feed a forward computation", n)

	default:
		return nil, errors.Errorf("cannot evaluate %s", n)
	}
}

// elementwise computes a + b or a * b for matching shapes.
func elementwise(kind opKind, a, b *tensor.RawTensor) (*tensor.RawTensor, error) {
	out, err := tensor.NewRaw(a.Shape(), a.DType())
	if err != nil {
		return nil, err
	}

	mul := kind == opMul
	switch a.DType() {
	case tensor.Float32:
		av, bv, ov := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
		for i := range ov {
			if mul {
				ov[i] = av[i] * bv[i]
			} else {
				ov[i] = av[i] + bv[i]
			}
		}
	case tensor.Float64:
		av, bv, ov := a.AsFloat64(), b.AsFloat64(), out.AsFloat64()
		for i := range ov {
			if mul {
				ov[i] = av[i] * bv[i]
			} else {
				ov[i] = av[i] + bv[i]
			}
		}
	case tensor.Complex64:
		av, bv, ov := a.AsComplex64(), b.AsComplex64(), out.AsComplex64()
		for i := range ov {
			if mul {
				ov[i] = av[i] * bv[i]
			} else {
				ov[i] = av[i] + bv[i]
			}
		}
	case tensor.Complex128:
		av, bv, ov := a.AsComplex128(), b.AsComplex128(), out.AsComplex128()
		for i := range ov {
			if mul {
				ov[i] = av[i] * bv[i]
			} else {
				ov[i] = av[i] + bv[i]
			}
		}
	default:
		return nil, errors.Errorf("%s: unsupported dtype %s", kind, a.DType())
	}
	return out, nil
}

// matMul computes the 2-D product of a {m,k} and b {k,n}.
func matMul(a, b *tensor.RawTensor) (*tensor.RawTensor, error) {
	m, k, n := a.Shape()[0], a.Shape()[1], b.Shape()[1]
	out, err := tensor.NewRaw(tensor.Shape{m, n}, a.DType())
	if err != nil {
		return nil, err
	}

	switch a.DType() {
	case tensor.Float32:
		av, bv, ov := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
		for i := 0; i < m; i++ {
			for l := 0; l < k; l++ {
				ail := av[i*k+l]
				for j := 0; j < n; j++ {
					ov[i*n+j] += ail * bv[l*n+j]
				}
			}
		}
	case tensor.Float64:
		av, bv, ov := a.AsFloat64(), b.AsFloat64(), out.AsFloat64()
		for i := 0; i < m; i++ {
			for l := 0; l < k; l++ {
				ail := av[i*k+l]
				for j := 0; j < n; j++ {
					ov[i*n+j] += ail * bv[l*n+j]
				}
			}
		}
	default:
		return nil, errors.Errorf("MatMul: unsupported dtype %s", a.DType())
	}
	return out, nil
}

// gatherRows copies table rows selected by indices, in index order.
// Duplicate indices are legal; each occurrence produces its own output row.
func gatherRows(table *tensor.RawTensor, indices []int32) (*tensor.RawTensor, error) {
	tableShape := table.Shape()
	outShape := append(tensor.Shape{len(indices)}, tableShape[1:]...)
	out, err := tensor.NewRaw(outShape, table.DType())
	if err != nil {
		return nil, err
	}

	rowBytes := tableShape.SliceSize() * table.DType().Size()
	src, dst := table.Data(), out.Data()
	for i, idx := range indices {
		if idx < 0 || int(idx) >= tableShape[0] {
			return nil, errors.Errorf("Gather: index %d out of range [0, %d)", idx, tableShape[0])
		}
		copy(dst[i*rowBytes:(i+1)*rowBytes], src[int(idx)*rowBytes:(int(idx)+1)*rowBytes])
	}
	return out, nil
}

// sliceRows copies rows [start, start+length) of x. length may be zero.
func sliceRows(x *tensor.RawTensor, start, length int) (*tensor.RawTensor, error) {
	outShape := append(tensor.Shape{length}, x.Shape()[1:]...)
	out, err := tensor.NewRaw(outShape, x.DType())
	if err != nil {
		return nil, err
	}
	rowBytes := x.Shape().SliceSize() * x.DType().Size()
	copy(out.Data(), x.Data()[start*rowBytes:(start+length)*rowBytes])
	return out, nil
}
