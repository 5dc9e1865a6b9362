// Package gradcheck implements Jacobian assembly by probing an execution
// engine's reverse-mode differentiation machinery.
//
// Given a graph node y that is a differentiable function of node x, the
// package recovers the Jacobian d(y)/d(x) one column at a time: it feeds a
// one-hot upstream-gradient seed for each flattened output component and
// records the backward result. The engine that builds nodes, differentiates
// and evaluates is an external collaborator described by the Engine
// interface; this package never inspects its internals.
package gradcheck

import (
	"github.com/born-ml/gradcheck/internal/tensor"
)

// Node is an opaque handle to a value in an execution engine's graph.
// It carries shape and element-type metadata only; the engine owns
// everything else about it.
type Node interface {
	Shape() tensor.Shape
	DType() tensor.DataType
}

// Feeds maps feedable nodes to concrete values for one evaluation.
// Feeds are transient: they never mutate the engine's persistent state.
type Feeds map[Node]*tensor.RawTensor

// InitOp is a stateful initialization operation against the execution
// engine, e.g. a variable assignment. Its concrete type is defined by the
// engine that created it and applied through Engine.Run.
type InitOp any

// Gradient is the result of evaluating a derivative node. It is a sealed
// tagged variant: either Dense (one value per input element) or Sparse
// (indexed row blocks of an otherwise zero gradient).
type Gradient interface {
	gradient()
}

// Dense is a gradient carrying one value per input element.
type Dense struct {
	Values *tensor.RawTensor
}

// Block is one row block of a Sparse gradient: the values covering input
// elements [Row*sliceSize, (Row+1)*sliceSize) of the flattened input.
type Block struct {
	Row    int
	Values *tensor.RawTensor
}

// Sparse is an indexed-slices gradient. Duplicate Row values are legal and
// represent contributions that must be summed, e.g. repeated embedding
// lookups of the same row.
type Sparse struct {
	Blocks []Block
}

func (Dense) gradient()  {}
func (Sparse) gradient() {}

// Engine is the external execution engine the checker probes. All methods
// are synchronous; Evaluate blocks until the engine produces a value.
// Sequential calls must observe a consistent snapshot of the parameter
// state initialized through Run.
type Engine interface {
	// Constant builds a constant node of the given shape and dtype with
	// every element set to value.
	Constant(shape tensor.Shape, dtype tensor.DataType, value float64) (Node, error)

	// Identity builds a pass-through node for n, so that a value wired as
	// an upstream gradient stays independently feedable even when the
	// derivative node aliases it.
	Identity(n Node) (Node, error)

	// Gradients requests reverse-mode derivatives of y with respect to
	// each wrt entry, seeded by the value fed to seed. The engine must
	// return exactly one derivative node per wrt entry.
	Gradients(y Node, wrt []Node, seed Node) ([]Node, error)

	// Evaluate computes fetch against the engine's current persistent
	// state, with feeds overriding node values for this call only.
	// Ordinary nodes evaluate to a Dense result; derivative nodes may
	// evaluate to either variant.
	Evaluate(fetch Node, feeds Feeds) (Gradient, error)

	// Run applies a stateful initialization operation.
	Run(op InitOp) error
}
