package graph

import (
	"github.com/pkg/errors"

	"github.com/born-ml/gradcheck/internal/gradcheck"
	"github.com/born-ml/gradcheck/internal/tensor"
)

// gradAccum accumulates the gradient flowing into one node. Dense
// contributions add elementwise; sparse contributions (from Gather) stay
// as row blocks until the node itself has to propagate further, at which
// point they are densified.
type gradAccum struct {
	dense  *tensor.RawTensor
	blocks []gradcheck.Block
}

// evalDerivative computes d(y)/d(wrt) for a derivative node: a forward
// pass over y's subgraph followed by a reverse walk with additive gradient
// accumulation. The upstream gradient is the evaluated seed value.
func (s *Session) evalDerivative(d *Node, feeds gradcheck.Feeds, cache map[*Node]*tensor.RawTensor) (gradcheck.Gradient, error) {
	spec := d.grad

	// No eager forward pass over y: backward rules evaluate lazily exactly
	// the operand values they need (Mul/MatMul operands, Gather indices),
	// so a derivative stays computable even when unrelated inputs of y are
	// unfed.
	gy, err := s.eval(spec.seed, feeds, cache)
	if err != nil {
		return nil, errors.Wrap(err, "evaluating gradient seed")
	}

	order := topoOrder(spec.y)

	grads := make(map[*Node]*gradAccum)
	if err := addDense(grads, spec.y, gy); err != nil {
		return nil, err
	}

	// Walk the subgraph in reverse topological order: every consumer of a
	// node is processed before the node itself, so its accumulated
	// gradient is complete when it propagates to its inputs.
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		acc, ok := grads[n]
		if !ok || len(n.inputs) == 0 {
			continue
		}
		g, err := densify(acc, n.shape, n.dtype)
		if err != nil {
			return nil, err
		}
		if err := s.backprop(n, g, feeds, cache, grads); err != nil {
			return nil, err
		}
	}

	acc, ok := grads[spec.wrt]
	if !ok {
		// y does not depend on wrt; the derivative is identically zero.
		zero, err := tensor.Zeros(spec.wrt.shape, spec.wrt.dtype)
		if err != nil {
			return nil, err
		}
		return gradcheck.Dense{Values: zero}, nil
	}
	if acc.dense == nil {
		return gradcheck.Sparse{Blocks: acc.blocks}, nil
	}
	v, err := densify(acc, spec.wrt.shape, spec.wrt.dtype)
	if err != nil {
		return nil, err
	}
	return gradcheck.Dense{Values: v}, nil
}

// backprop distributes a node's output gradient to its inputs.
func (s *Session) backprop(n *Node, g *tensor.RawTensor, feeds gradcheck.Feeds,
	cache map[*Node]*tensor.RawTensor, grads map[*Node]*gradAccum) error {

	switch n.kind {
	case opIdentity:
		return addDense(grads, n.inputs[0], g)

	case opAdd:
		if err := addDense(grads, n.inputs[0], g); err != nil {
			return err
		}
		return addDense(grads, n.inputs[1], g)

	case opMul:
		if n.dtype.IsComplex() {
			// Complex product gradients depend on a holomorphy convention
			// this engine does not define.
			return errors.Errorf("Mul: no complex backward for %s", n)
		}
		a, err := s.eval(n.inputs[0], feeds, cache)
		if err != nil {
			return err
		}
		b, err := s.eval(n.inputs[1], feeds, cache)
		if err != nil {
			return err
		}
		ga, err := elementwise(opMul, g, b)
		if err != nil {
			return err
		}
		gb, err := elementwise(opMul, g, a)
		if err != nil {
			return err
		}
		if err := addDense(grads, n.inputs[0], ga); err != nil {
			return err
		}
		return addDense(grads, n.inputs[1], gb)

	case opMatMul:
		a, err := s.eval(n.inputs[0], feeds, cache)
		if err != nil {
			return err
		}
		b, err := s.eval(n.inputs[1], feeds, cache)
		if err != nil {
			return err
		}
		bt, err := transpose2D(b)
		if err != nil {
			return err
		}
		at, err := transpose2D(a)
		if err != nil {
			return err
		}
		ga, err := matMul(g, bt) // d(A@B)/dA = G @ B^T
		if err != nil {
			return err
		}
		gb, err := matMul(at, g) // d(A@B)/dB = A^T @ G
		if err != nil {
			return err
		}
		if err := addDense(grads, n.inputs[0], ga); err != nil {
			return err
		}
		return addDense(grads, n.inputs[1], gb)

	case opGather:
		// One block per lookup, duplicates preserved: a row read twice
		// reports two blocks whose sum is the true gradient. The checker
		// (and any downstream consumer) is responsible for accumulating.
		indices, err := s.eval(n.inputs[1], feeds, cache)
		if err != nil {
			return err
		}
		table := n.inputs[0]
		acc := accumFor(grads, table)
		sliceShape := table.shape[1:].Clone()
		for i, idx := range indices.AsInt32() {
			row, err := sliceRows(g, i, 1)
			if err != nil {
				return err
			}
			values, err := row.Reshaped(sliceShape)
			if err != nil {
				return err
			}
			acc.blocks = append(acc.blocks, gradcheck.Block{Row: int(idx), Values: values})
		}
		return nil

	case opSliceRows:
		// Scatter the slice gradient back into a zero tensor of the input
		// shape. A zero-length slice yields an all-zero gradient, which is
		// exactly what an empty output must report.
		in := n.inputs[0]
		gin, err := tensor.Zeros(in.shape, in.dtype)
		if err != nil {
			return err
		}
		rowBytes := in.shape.SliceSize() * in.dtype.Size()
		copy(gin.Data()[n.start*rowBytes:], g.Data())
		return addDense(grads, in, gin)

	case opReshape:
		gr, err := g.Reshaped(n.inputs[0].shape)
		if err != nil {
			return err
		}
		return addDense(grads, n.inputs[0], gr)

	default:
		return errors.Errorf("no backward rule for %s", n)
	}
}

// topoOrder returns y's subgraph with inputs before consumers.
func topoOrder(y *Node) []*Node {
	var order []*Node
	visited := make(map[*Node]bool)
	var visit func(n *Node)
	visit = func(n *Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, in := range n.inputs {
			visit(in)
		}
		order = append(order, n)
	}
	visit(y)
	return order
}

func accumFor(grads map[*Node]*gradAccum, n *Node) *gradAccum {
	acc, ok := grads[n]
	if !ok {
		acc = &gradAccum{}
		grads[n] = acc
	}
	return acc
}

// addDense accumulates a dense contribution into a node's gradient.
// The contribution is cloned on first touch so fed values are never
// mutated.
func addDense(grads map[*Node]*gradAccum, n *Node, g *tensor.RawTensor) error {
	acc := accumFor(grads, n)
	if acc.dense == nil {
		acc.dense = g.Clone()
		return nil
	}
	return addInto(acc.dense, g)
}

// densify resolves an accumulator to a single dense tensor, scatter-adding
// any sparse blocks.
func densify(acc *gradAccum, shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	dense := acc.dense
	if dense == nil {
		var err error
		dense, err = tensor.Zeros(shape, dtype)
		if err != nil {
			return nil, err
		}
		acc.dense = dense
	}
	if len(acc.blocks) == 0 {
		return dense, nil
	}

	sliceSize := shape.SliceSize()
	for _, block := range acc.blocks {
		flat, err := dense.Reshaped(tensor.Shape{shape.NumElements()})
		if err != nil {
			return nil, err
		}
		target, err := flat.Reshaped(tensor.Shape{shape[0], sliceSize})
		if err != nil {
			return nil, err
		}
		row, err := sliceRows(target, block.Row, 1)
		if err != nil {
			return nil, err
		}
		values, err := block.Values.Reshaped(tensor.Shape{1, sliceSize})
		if err != nil {
			return nil, err
		}
		if err := addInto(row, values); err != nil {
			return nil, err
		}
		// sliceRows copies, so write the summed row back.
		rowBytes := sliceSize * dtype.Size()
		copy(dense.Data()[block.Row*rowBytes:], row.Data())
	}
	acc.blocks = nil
	return dense, nil
}

// addInto accumulates src into dst elementwise.
func addInto(dst, src *tensor.RawTensor) error {
	if dst.DType() != src.DType() || dst.NumElements() != src.NumElements() {
		return errors.Errorf("gradient accumulation mismatch: %v %s vs %v %s",
			dst.Shape(), dst.DType(), src.Shape(), src.DType())
	}
	switch dst.DType() {
	case tensor.Float32:
		d, s := dst.AsFloat32(), src.AsFloat32()
		for i := range d {
			d[i] += s[i]
		}
	case tensor.Float64:
		d, s := dst.AsFloat64(), src.AsFloat64()
		for i := range d {
			d[i] += s[i]
		}
	case tensor.Complex64:
		d, s := dst.AsComplex64(), src.AsComplex64()
		for i := range d {
			d[i] += s[i]
		}
	case tensor.Complex128:
		d, s := dst.AsComplex128(), src.AsComplex128()
		for i := range d {
			d[i] += s[i]
		}
	default:
		return errors.Errorf("cannot accumulate dtype %s", dst.DType())
	}
	return nil
}

// transpose2D returns the transpose of a 2-D float tensor.
func transpose2D(t *tensor.RawTensor) (*tensor.RawTensor, error) {
	m, n := t.Shape()[0], t.Shape()[1]
	out, err := tensor.NewRaw(tensor.Shape{n, m}, t.DType())
	if err != nil {
		return nil, err
	}
	switch t.DType() {
	case tensor.Float32:
		src, dst := t.AsFloat32(), out.AsFloat32()
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				dst[j*m+i] = src[i*n+j]
			}
		}
	case tensor.Float64:
		src, dst := t.AsFloat64(), out.AsFloat64()
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				dst[j*m+i] = src[i*n+j]
			}
		}
	default:
		return nil, errors.Errorf("transpose: unsupported dtype %s", t.DType())
	}
	return out, nil
}
