package gradcheck

import (
	"github.com/pkg/errors"

	"github.com/born-ml/gradcheck/internal/tensor"
)

// seedNodes holds the gradient-seed wiring for one (x, y) pair: the
// feedable node that receives the one-hot probe value, and the derivative
// node that evaluates to d(y)/d(x) under that seed.
type seedNodes struct {
	feed Node // constant beneath the identity; this is what the probe feeds
	dx   Node // derivative of y w.r.t. x, seeded by the identity
}

// buildSeed constructs a constant seed matching y's shape and dtype, wraps
// it behind an identity pass-through, and requests the derivative of y
// with respect to x seeded by the pass-through.
//
// The identity matters: for pass-through ops the derivative node can be
// the seed itself, and fetching a node that is also being fed is not
// generally meaningful. Feeding the constant beneath the identity keeps
// the fetched derivative distinct from the fed value.
func buildSeed(eng Engine, x, y Node, yShape tensor.Shape) (*seedNodes, error) {
	konst, err := eng.Constant(yShape, y.DType(), 1)
	if err != nil {
		return nil, errors.Wrap(err, "building seed constant")
	}
	seed, err := eng.Identity(konst)
	if err != nil {
		return nil, errors.Wrap(err, "wrapping seed in identity")
	}

	grads, err := eng.Gradients(y, []Node{x}, seed)
	if err != nil {
		return nil, errors.Wrap(err, "requesting derivative")
	}
	if len(grads) != 1 {
		return nil, &DerivativeArityError{Got: len(grads)}
	}

	return &seedNodes{feed: konst, dx: grads[0]}, nil
}
