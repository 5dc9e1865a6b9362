package graph

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/born-ml/gradcheck/internal/gradcheck"
	"github.com/born-ml/gradcheck/internal/tensor"
)

// Session evaluates graph nodes against persistent variable state. It
// implements gradcheck.Engine, so a session is what the gradient checker
// probes.
//
// Evaluations are independent: each call builds its own value cache, so
// concurrent Evaluate calls are safe as long as no Run call races them.
type Session struct {
	graph *Graph
	id    string

	mu   sync.RWMutex
	vars map[*Node]*tensor.RawTensor
}

// Compile-time check that Session satisfies the checker's engine contract.
var _ gradcheck.Engine = (*Session)(nil)

// NewSession creates a session for the graph with no variable state.
func NewSession(g *Graph) *Session {
	return &Session{
		graph: g,
		id:    uuid.New().String(),
		vars:  make(map[*Node]*tensor.RawTensor),
	}
}

// Graph returns the session's graph, for building further nodes.
func (s *Session) Graph() *Graph {
	return s.graph
}

// Constant builds a constant node with every element set to value.
// Part of the gradcheck.Engine contract.
func (s *Session) Constant(shape tensor.Shape, dtype tensor.DataType, value float64) (gradcheck.Node, error) {
	raw, err := tensor.Full(shape, dtype, value)
	if err != nil {
		return nil, errors.Wrap(err, "building constant")
	}
	return s.graph.Constant(raw), nil
}

// Identity builds a pass-through node. Part of the gradcheck.Engine contract.
func (s *Session) Identity(n gradcheck.Node) (gradcheck.Node, error) {
	node, err := s.node(n)
	if err != nil {
		return nil, err
	}
	return s.graph.Identity(node), nil
}

// Gradients builds one derivative node per wrt entry: d(y)/d(wrt[i]),
// seeded by the evaluated value of seed. Part of the gradcheck.Engine
// contract.
func (s *Session) Gradients(y gradcheck.Node, wrt []gradcheck.Node, seed gradcheck.Node) ([]gradcheck.Node, error) {
	yNode, err := s.node(y)
	if err != nil {
		return nil, err
	}
	seedNode, err := s.node(seed)
	if err != nil {
		return nil, err
	}
	if !seedNode.shape.Equal(yNode.shape) || seedNode.dtype != yNode.dtype {
		return nil, errors.Errorf("gradient seed %s does not match output %s", seedNode, yNode)
	}

	out := make([]gradcheck.Node, len(wrt))
	for i, w := range wrt {
		wNode, err := s.node(w)
		if err != nil {
			return nil, err
		}
		out[i] = s.graph.add(&Node{
			kind:  opDerivative,
			shape: wNode.shape.Clone(),
			dtype: wNode.dtype,
			grad:  &derivativeSpec{y: yNode, wrt: wNode, seed: seedNode},
		})
	}
	return out, nil
}

// Evaluate computes fetch with the given transient feeds. Ordinary nodes
// evaluate to a Dense result; derivative nodes run the backward pass and
// may evaluate to either variant. Part of the gradcheck.Engine contract.
func (s *Session) Evaluate(fetch gradcheck.Node, feeds gradcheck.Feeds) (gradcheck.Gradient, error) {
	n, err := s.node(fetch)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"session": s.id[:8],
		"fetch":   n.String(),
		"feeds":   len(feeds),
	}).Debug("graph: evaluate")

	cache := make(map[*Node]*tensor.RawTensor)
	if n.kind == opDerivative {
		return s.evalDerivative(n, feeds, cache)
	}
	v, err := s.eval(n, feeds, cache)
	if err != nil {
		return nil, err
	}
	return gradcheck.Dense{Values: v}, nil
}

// Run applies a stateful initialization operation. Only *Assign is known
// to this engine. Part of the gradcheck.Engine contract.
func (s *Session) Run(op gradcheck.InitOp) error {
	assign, ok := op.(*Assign)
	if !ok {
		return errors.Errorf("unknown init op %T", op)
	}
	target, err := s.node(assign.Target)
	if err != nil {
		return err
	}
	if target.kind != opVariable {
		return errors.Errorf("init target %s is not a variable", target)
	}

	s.mu.Lock()
	s.vars[target] = assign.Value.Clone()
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"session":  s.id[:8],
		"variable": target.String(),
	}).Debug("graph: variable initialized")
	return nil
}

// node narrows a gradcheck.Node back to a node of this session's graph.
func (s *Session) node(n gradcheck.Node) (*Node, error) {
	gn, ok := n.(*Node)
	if !ok {
		return nil, errors.Errorf("node %v was not built by this engine", n)
	}
	if gn.graph != s.graph {
		return nil, errors.Errorf("node %s belongs to a different graph", gn)
	}
	return gn, nil
}

func (s *Session) variableValue(n *Node) (*tensor.RawTensor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[n]
	return v, ok
}
