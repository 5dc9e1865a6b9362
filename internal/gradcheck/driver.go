package gradcheck

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/born-ml/gradcheck/internal/tensor"
)

// Options configures one gradient-check run. The zero value is valid:
// sequential probing, no init targets, no extra feeds, time-seeded random
// input initialization.
type Options struct {
	// InitTargets are stateful initialization operations executed, in
	// order, against the engine before any probing. They seed trainable
	// parameters that y depends on besides x. For list inputs they run
	// exactly once, not once per element.
	InitTargets []InitOp

	// ExtraFeeds fixes additional node values during every evaluation.
	// The probe's own feeds (x and the seed) win on conflict.
	ExtraFeeds Feeds

	// Parallelism > 1 evaluates that many Jacobian columns concurrently.
	// The engine must tolerate concurrent Evaluate calls for this to be
	// safe; the default of 0 (or 1) probes strictly sequentially.
	Parallelism int

	// Rand is the source for random input initialization when no explicit
	// initial value is given. nil falls back to a time-seeded source, so
	// set it for reproducible runs.
	Rand *rand.Rand
}

func (o *Options) rng() *rand.Rand {
	if o != nil && o.Rand != nil {
		return o.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (o *Options) parallelism() int {
	if o == nil {
		return 0
	}
	return o.Parallelism
}

func (o *Options) extraFeeds() Feeds {
	if o == nil {
		return nil
	}
	return o.ExtraFeeds
}

// Compute assembles the Jacobian of y with respect to x by probing the
// engine's backward differentiation.
//
// xInit, when non-nil, is the value x is held at during probing and must
// match xShape exactly; when nil a value is drawn uniformly over [0, 1)
// per real component. The returned matrix has one row per real component
// of x and one column per real component of y (complex tensors count each
// element twice, real and imaginary parts interleaved).
//
// Probing mutates the engine's persistent state only through
// opts.InitTargets; every evaluation feed is transient.
func Compute(eng Engine, x Node, xShape tensor.Shape, y Node, yShape tensor.Shape,
	xInit *tensor.RawTensor, opts *Options) (*Jacobian, error) {

	if err := checkDTypes(x, y); err != nil {
		return nil, err
	}

	seed, err := buildSeed(eng, x, y, yShape)
	if err != nil {
		return nil, err
	}

	if err := runInitTargets(eng, opts); err != nil {
		return nil, err
	}

	xInit, err = resolveInit(x, xShape, xInit, opts.rng())
	if err != nil {
		return nil, err
	}

	return computeJacobian(eng, probeSpec{
		x:           x,
		xInit:       xInit,
		yShape:      yShape,
		yDType:      y.DType(),
		seed:        seed,
		extraFeeds:  opts.extraFeeds(),
		parallelism: opts.parallelism(),
	})
}

// ComputeList assembles one Jacobian per input node, in input order.
//
// Each element gets its own seed wiring and is probed independently;
// xInits, when non-nil, must have one entry per input, and a nil entry
// triggers random initialization for that element only. Init targets run
// exactly once, before any element's probing, so every element observes
// the same parameter state.
func ComputeList(eng Engine, xs []Node, xShapes []tensor.Shape, y Node, yShape tensor.Shape,
	xInits []*tensor.RawTensor, opts *Options) ([]*Jacobian, error) {

	if len(xs) != len(xShapes) {
		return nil, errors.Errorf("got %d input nodes but %d input shapes", len(xs), len(xShapes))
	}
	if xInits != nil && len(xInits) != len(xs) {
		return nil, errors.Errorf("got %d input nodes but %d initial values", len(xs), len(xInits))
	}

	if err := checkDTypes(nil, y); err != nil {
		return nil, err
	}
	for _, x := range xs {
		if err := checkDTypes(x, nil); err != nil {
			return nil, err
		}
	}

	// Seeds are wired for every element before anything runs; each element
	// needs its own, since the seeded-gradient shapes may differ.
	seeds := make([]*seedNodes, len(xs))
	for i, x := range xs {
		seed, err := buildSeed(eng, x, y, yShape)
		if err != nil {
			return nil, errors.Wrapf(err, "input %d", i)
		}
		seeds[i] = seed
	}

	if err := runInitTargets(eng, opts); err != nil {
		return nil, err
	}

	rng := opts.rng()
	jacobians := make([]*Jacobian, len(xs))
	for i, x := range xs {
		var init *tensor.RawTensor
		if xInits != nil {
			init = xInits[i]
		}
		init, err := resolveInit(x, xShapes[i], init, rng)
		if err != nil {
			return nil, errors.Wrapf(err, "input %d", i)
		}

		jac, err := computeJacobian(eng, probeSpec{
			x:           x,
			xInit:       init,
			yShape:      yShape,
			yDType:      y.DType(),
			seed:        seeds[i],
			extraFeeds:  opts.extraFeeds(),
			parallelism: opts.parallelism(),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "input %d", i)
		}
		jacobians[i] = jac
	}

	return jacobians, nil
}

// checkDTypes gates both endpoints on the supported numeric set before any
// evaluation happens. Either node may be nil to skip its check.
func checkDTypes(x, y Node) error {
	if x != nil && !supportedDType(x.DType()) {
		return &UnsupportedDTypeError{Name: "x", DType: x.DType()}
	}
	if y != nil && !supportedDType(y.DType()) {
		return &UnsupportedDTypeError{Name: "y", DType: y.DType()}
	}
	return nil
}

func supportedDType(dt tensor.DataType) bool {
	return dt.IsFloat() || dt.IsComplex()
}

func runInitTargets(eng Engine, opts *Options) error {
	if opts == nil {
		return nil
	}
	for i, op := range opts.InitTargets {
		if err := eng.Run(op); err != nil {
			return errors.Wrapf(err, "running init target %d", i)
		}
	}
	if n := len(opts.InitTargets); n > 0 {
		log.WithField("targets", n).Debug("gradcheck: initialized parameters")
	}
	return nil
}

// resolveInit validates a caller-supplied initial value or draws a random
// one matching x's shape and dtype.
func resolveInit(x Node, xShape tensor.Shape, xInit *tensor.RawTensor, rng *rand.Rand) (*tensor.RawTensor, error) {
	if xInit != nil {
		if !xInit.Shape().Equal(xShape) {
			return nil, &ShapeMismatchError{Context: "x initial value", Want: xShape, Got: xInit.Shape()}
		}
		if xInit.DType() != x.DType() {
			return nil, errors.Errorf("x initial value has dtype %s, want %s", xInit.DType(), x.DType())
		}
		return xInit, nil
	}

	init, err := tensor.Zeros(xShape, x.DType())
	if err != nil {
		return nil, errors.Wrap(err, "allocating random initial value")
	}
	init.FillUniform(rng)
	return init, nil
}
