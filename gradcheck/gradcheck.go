// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gradcheck computes Jacobian matrices by probing an execution
// engine's reverse-mode differentiation, one output unit vector at a time.
//
// It is the empirical validation tool for backward-pass implementations:
// if the assembled Jacobian disagrees with what the forward function
// implies, the engine's gradients are wrong. The engine is an external
// collaborator described by the Engine interface; the in-repo graph
// package provides a reference implementation.
//
// Example:
//
//	g := graph.New()
//	sess := graph.NewSession(g)
//	x := g.Placeholder("x", tensor.Shape{3}, tensor.Float32)
//	y := g.Identity(x)
//
//	jac, err := gradcheck.Compute(sess, x, tensor.Shape{3}, y, tensor.Shape{3}, nil, nil)
//	// jac is the 3x3 identity matrix
package gradcheck

import (
	"github.com/born-ml/gradcheck/internal/gradcheck"
	"github.com/born-ml/gradcheck/internal/tensor"
)

// Node is an opaque handle to a value in an execution engine's graph.
type Node = gradcheck.Node

// Feeds maps feedable nodes to concrete values for one evaluation.
type Feeds = gradcheck.Feeds

// InitOp is a stateful initialization operation against the engine.
type InitOp = gradcheck.InitOp

// Gradient is the tagged result of evaluating a derivative node: either
// Dense or Sparse.
type Gradient = gradcheck.Gradient

// Dense is a gradient carrying one value per input element.
type Dense = gradcheck.Dense

// Sparse is an indexed-slices gradient of row blocks; duplicate rows
// represent summed contributions.
type Sparse = gradcheck.Sparse

// Block is one row block of a Sparse gradient.
type Block = gradcheck.Block

// Engine is the execution engine the checker probes.
type Engine = gradcheck.Engine

// Jacobian is the assembled matrix of partial derivatives: one row per
// input real component, one column per output real component.
type Jacobian = gradcheck.Jacobian

// Options configures a gradient-check run; the zero value is valid.
type Options = gradcheck.Options

// Error kinds surfaced by Compute and ComputeList.
type (
	// UnsupportedDTypeError: x or y is outside the float/complex set.
	UnsupportedDTypeError = gradcheck.UnsupportedDTypeError
	// ShapeMismatchError: an initial value or empty-output gradient has
	// the wrong shape.
	ShapeMismatchError = gradcheck.ShapeMismatchError
	// NonZeroEmptyGradientError: a zero-sized output produced a nonzero
	// backward result.
	NonZeroEmptyGradientError = gradcheck.NonZeroEmptyGradientError
	// DerivativeArityError: the engine returned other than one derivative
	// node per input.
	DerivativeArityError = gradcheck.DerivativeArityError
)

// Compute assembles the Jacobian of y with respect to x.
//
// xInit, when non-nil, must match xShape exactly; when nil the input is
// initialized uniformly at random (per real component, imaginary parts
// independent). opts may be nil.
func Compute(eng Engine, x Node, xShape tensor.Shape, y Node, yShape tensor.Shape,
	xInit *tensor.RawTensor, opts *Options) (*Jacobian, error) {
	return gradcheck.Compute(eng, x, xShape, y, yShape, xInit, opts)
}

// ComputeList assembles one Jacobian per input node, in input order,
// sharing a single initialization pass. xInits may be nil (all random) or
// elementwise nil for per-input random initialization.
func ComputeList(eng Engine, xs []Node, xShapes []tensor.Shape, y Node, yShape tensor.Shape,
	xInits []*tensor.RawTensor, opts *Options) ([]*Jacobian, error) {
	return gradcheck.ComputeList(eng, xs, xShapes, y, yShape, xInits, opts)
}
