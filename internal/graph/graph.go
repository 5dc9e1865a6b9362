// Package graph implements a minimal feedable computation-graph engine.
//
// It exists as the reference implementation of the gradcheck.Engine
// contract: nodes are built ahead of time, a Session evaluates them against
// persistent variable state with transient feeds, and derivative nodes run
// a reverse-mode backward pass in the style of a gradient tape. The op set
// is intentionally small; it covers the shapes of computation a gradient
// checker needs to exercise (pass-through, elementwise, linear maps,
// embedding-style lookups with sparse gradients, and zero-sized slices).
package graph

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/born-ml/gradcheck/internal/tensor"
)

type opKind int

const (
	opPlaceholder opKind = iota
	opConstant
	opVariable
	opIdentity
	opAdd
	opMul
	opMatMul
	opGather
	opSliceRows
	opReshape
	opDerivative
)

func (k opKind) String() string {
	switch k {
	case opPlaceholder:
		return "Placeholder"
	case opConstant:
		return "Constant"
	case opVariable:
		return "Variable"
	case opIdentity:
		return "Identity"
	case opAdd:
		return "Add"
	case opMul:
		return "Mul"
	case opMatMul:
		return "MatMul"
	case opGather:
		return "Gather"
	case opSliceRows:
		return "SliceRows"
	case opReshape:
		return "Reshape"
	case opDerivative:
		return "Derivative"
	default:
		return "Unknown"
	}
}

// derivativeSpec records a reverse-mode differentiation request:
// d(y)/d(wrt), seeded by the evaluated value of seed.
type derivativeSpec struct {
	y    *Node
	wrt  *Node
	seed *Node
}

// Node is one value in the graph. It implements gradcheck.Node.
type Node struct {
	graph  *Graph
	id     string
	kind   opKind
	name   string
	shape  tensor.Shape
	dtype  tensor.DataType
	inputs []*Node

	value *tensor.RawTensor // Constant only
	start int               // SliceRows only
	grad  *derivativeSpec   // Derivative only
}

// Shape returns the node's static shape.
func (n *Node) Shape() tensor.Shape {
	return n.shape
}

// DType returns the node's element type.
func (n *Node) DType() tensor.DataType {
	return n.dtype
}

// ID returns the node's unique id.
func (n *Node) ID() string {
	return n.id
}

// String returns a short description for logs and errors.
func (n *Node) String() string {
	if n.name != "" {
		return fmt.Sprintf("%s(%q, %v, %s)", n.kind, n.name, n.shape, n.dtype)
	}
	return fmt.Sprintf("%s(%s, %v, %s)", n.kind, n.id[:8], n.shape, n.dtype)
}

// Graph holds nodes built ahead of evaluation. It is not safe for
// concurrent building; build the graph first, then evaluate.
type Graph struct {
	nodes []*Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

func (g *Graph) add(n *Node) *Node {
	n.graph = g
	n.id = uuid.New().String()
	g.nodes = append(g.nodes, n)
	return n
}

// Placeholder creates a named feedable node. Placeholders have no value of
// their own; every evaluation that reaches one must feed it.
func (g *Graph) Placeholder(name string, shape tensor.Shape, dtype tensor.DataType) *Node {
	return g.add(&Node{kind: opPlaceholder, name: name, shape: shape.Clone(), dtype: dtype})
}

// Constant creates a node holding a fixed value. Like any node it can
// still be overridden by a feed, which is what the gradient-seed wiring
// relies on.
func (g *Graph) Constant(value *tensor.RawTensor) *Node {
	return g.add(&Node{kind: opConstant, shape: value.Shape().Clone(), dtype: value.DType(), value: value})
}

// Variable creates a named stateful node. Its value lives in the Session
// and must be initialized through an Assign op before evaluation.
func (g *Graph) Variable(name string, shape tensor.Shape, dtype tensor.DataType) *Node {
	return g.add(&Node{kind: opVariable, name: name, shape: shape.Clone(), dtype: dtype})
}

// Identity creates a pass-through node.
func (g *Graph) Identity(x *Node) *Node {
	return g.add(&Node{kind: opIdentity, shape: x.shape.Clone(), dtype: x.dtype, inputs: []*Node{x}})
}

// Add creates an element-wise addition node. Shapes and dtypes must match
// exactly; this engine does not broadcast.
func (g *Graph) Add(a, b *Node) (*Node, error) {
	if err := sameShapeAndType(a, b); err != nil {
		return nil, errors.Wrap(err, "Add")
	}
	return g.add(&Node{kind: opAdd, shape: a.shape.Clone(), dtype: a.dtype, inputs: []*Node{a, b}}), nil
}

// Mul creates an element-wise multiplication node.
func (g *Graph) Mul(a, b *Node) (*Node, error) {
	if err := sameShapeAndType(a, b); err != nil {
		return nil, errors.Wrap(err, "Mul")
	}
	return g.add(&Node{kind: opMul, shape: a.shape.Clone(), dtype: a.dtype, inputs: []*Node{a, b}}), nil
}

// MatMul creates a 2-D matrix product node: {m,k} x {k,n} -> {m,n}.
// Float dtypes only.
func (g *Graph) MatMul(a, b *Node) (*Node, error) {
	if !a.dtype.IsFloat() || a.dtype != b.dtype {
		return nil, errors.Errorf("MatMul: needs matching float dtypes, got %s and %s", a.dtype, b.dtype)
	}
	if len(a.shape) != 2 || len(b.shape) != 2 {
		return nil, errors.Errorf("MatMul: needs 2-D operands, got %v and %v", a.shape, b.shape)
	}
	if a.shape[1] != b.shape[0] {
		return nil, errors.Errorf("MatMul: inner dimensions disagree: %v x %v", a.shape, b.shape)
	}
	return g.add(&Node{
		kind:   opMatMul,
		shape:  tensor.Shape{a.shape[0], b.shape[1]},
		dtype:  a.dtype,
		inputs: []*Node{a, b},
	}), nil
}

// Gather creates an embedding-style row lookup: output[i] = table[indices[i]].
// The backward pass of this op reports an indexed-slices (sparse) gradient
// for the table, one block per lookup, duplicates preserved.
func (g *Graph) Gather(table, indices *Node) (*Node, error) {
	if len(table.shape) < 1 {
		return nil, errors.Errorf("Gather: table must have a leading dimension, got %v", table.shape)
	}
	if indices.dtype != tensor.Int32 || len(indices.shape) != 1 {
		return nil, errors.Errorf("Gather: indices must be 1-D int32, got %v %s", indices.shape, indices.dtype)
	}
	outShape := append(tensor.Shape{indices.shape[0]}, table.shape[1:]...)
	return g.add(&Node{kind: opGather, shape: outShape, dtype: table.dtype, inputs: []*Node{table, indices}}), nil
}

// SliceRows creates a leading-dimension slice node covering rows
// [start, start+length). length may be zero, producing an empty output
// whose backward gradient is a correctly shaped all-zero tensor.
func (g *Graph) SliceRows(x *Node, start, length int) (*Node, error) {
	if len(x.shape) < 1 {
		return nil, errors.Errorf("SliceRows: input must have a leading dimension, got %v", x.shape)
	}
	if start < 0 || length < 0 || start+length > x.shape[0] {
		return nil, errors.Errorf("SliceRows: range [%d, %d) out of bounds for dimension %d",
			start, start+length, x.shape[0])
	}
	outShape := append(tensor.Shape{length}, x.shape[1:]...)
	return g.add(&Node{kind: opSliceRows, shape: outShape, dtype: x.dtype, inputs: []*Node{x}, start: start}), nil
}

// Reshape creates a view node under a new shape covering the same elements.
func (g *Graph) Reshape(x *Node, shape tensor.Shape) (*Node, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, "Reshape")
	}
	if shape.NumElements() != x.shape.NumElements() {
		return nil, errors.Errorf("Reshape: %v has %d elements, %v has %d",
			x.shape, x.shape.NumElements(), shape, shape.NumElements())
	}
	return g.add(&Node{kind: opReshape, shape: shape.Clone(), dtype: x.dtype, inputs: []*Node{x}}), nil
}

// Assign is a stateful initialization op: running it through a Session
// stores value as the variable's persistent state.
type Assign struct {
	Target *Node
	Value  *tensor.RawTensor
}

// AssignOp builds an Assign for a variable, checking shape and dtype.
func (g *Graph) AssignOp(v *Node, value *tensor.RawTensor) (*Assign, error) {
	if v.kind != opVariable {
		return nil, errors.Errorf("Assign: target %s is not a variable", v)
	}
	if !value.Shape().Equal(v.shape) || value.DType() != v.dtype {
		return nil, errors.Errorf("Assign: value %v %s does not match variable %s",
			value.Shape(), value.DType(), v)
	}
	return &Assign{Target: v, Value: value}, nil
}

func sameShapeAndType(a, b *Node) error {
	if a.dtype != b.dtype {
		return errors.Errorf("dtype mismatch: %s vs %s", a.dtype, b.dtype)
	}
	if !a.shape.Equal(b.shape) {
		return errors.Errorf("shape mismatch: %v vs %v", a.shape, b.shape)
	}
	return nil
}
