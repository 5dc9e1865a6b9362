// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph provides the reference execution engine for gradient
// checking: a small feedable computation graph with a session that holds
// persistent variable state and answers reverse-mode differentiation
// requests.
//
// Sessions implement gradcheck.Engine, so they plug straight into the
// checker:
//
//	g := graph.New()
//	sess := graph.NewSession(g)
//	x := g.Placeholder("x", tensor.Shape{2, 2}, tensor.Float32)
//	y := g.Identity(x)
//	jac, err := gradcheck.Compute(sess, x, tensor.Shape{2, 2}, y, tensor.Shape{2, 2}, nil, nil)
package graph

import (
	internalgraph "github.com/born-ml/gradcheck/internal/graph"
)

// Graph holds nodes built ahead of evaluation.
type Graph = internalgraph.Graph

// Node is one value in the graph; it implements gradcheck.Node.
type Node = internalgraph.Node

// Session evaluates graph nodes against persistent variable state and
// implements gradcheck.Engine.
type Session = internalgraph.Session

// Assign is a stateful initialization op for a Variable, applied through
// Session.Run or gradcheck.Options.InitTargets.
type Assign = internalgraph.Assign

// New creates an empty graph.
func New() *Graph {
	return internalgraph.New()
}

// NewSession creates a session for the graph with no variable state.
func NewSession(g *Graph) *Session {
	return internalgraph.NewSession(g)
}
