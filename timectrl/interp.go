package timectrl

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// ErrOutOfRange is returned by an ExtrapolateError interpolator asked for a
// value outside its sample range.
var ErrOutOfRange = errors.New("interpolation point outside sampled range")

// Extrapolation says what an Interpolator does outside [xs[0], xs[n-1]].
type Extrapolation int

const (
	// ExtrapolateLinear continues the first or last segment's line.
	ExtrapolateLinear Extrapolation = iota
	// ExtrapolateClamp returns the nearest end sample.
	ExtrapolateClamp
	// ExtrapolateError fails with ErrOutOfRange.
	ExtrapolateError
)

func (e Extrapolation) String() string {
	switch e {
	case ExtrapolateLinear:
		return "linear"
	case ExtrapolateClamp:
		return "clamp"
	case ExtrapolateError:
		return "error"
	default:
		return fmt.Sprintf("Extrapolation(%d)", int(e))
	}
}

// Interpolator is a piecewise-linear function through sorted samples.
type Interpolator struct {
	xs, ys []float64
	policy Extrapolation
}

// NewInterpolator builds a piecewise-linear interpolator. xs must be
// strictly monotonic; a decreasing axis is reversed internally.
func NewInterpolator(xs, ys []float64, policy Extrapolation) (*Interpolator, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("interpolator: %d xs vs %d ys: %w", len(xs), len(ys), model.ErrShapeMismatch)
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("interpolator over %d samples: %w", len(xs), ErrInsufficientSamples)
	}
	x := append([]float64(nil), xs...)
	y := append([]float64(nil), ys...)
	if x[0] > x[len(x)-1] {
		for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
			x[i], x[j] = x[j], x[i]
			y[i], y[j] = y[j], y[i]
		}
	}
	for i := 1; i < len(x); i++ {
		if !(x[i] > x[i-1]) {
			return nil, fmt.Errorf("interpolator: x axis not strictly monotonic at %d (%v, %v)", i, x[i-1], x[i])
		}
	}
	return &Interpolator{xs: x, ys: y, policy: policy}, nil
}

// At evaluates the interpolator at x.
func (ip *Interpolator) At(x float64) (float64, error) {
	n := len(ip.xs)
	if x < ip.xs[0] || x > ip.xs[n-1] {
		switch ip.policy {
		case ExtrapolateClamp:
			if x < ip.xs[0] {
				return ip.ys[0], nil
			}
			return ip.ys[n-1], nil
		case ExtrapolateError:
			return 0, fmt.Errorf("x=%v not in [%v, %v]: %w", x, ip.xs[0], ip.xs[n-1], ErrOutOfRange)
		}
		if x < ip.xs[0] {
			return ip.segment(0, x), nil
		}
		return ip.segment(n-2, x), nil
	}
	// First index with xs[i] >= x; the bracketing segment starts one before.
	i := sort.SearchFloat64s(ip.xs, x)
	if i == 0 {
		return ip.ys[0], nil
	}
	return ip.segment(i-1, x), nil
}

// AtAll evaluates the interpolator at every x.
func (ip *Interpolator) AtAll(xs []float64) ([]float64, error) {
	out := make([]float64, len(xs))
	for i, x := range xs {
		v, err := ip.At(x)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ip *Interpolator) segment(i int, x float64) float64 {
	x0, x1 := ip.xs[i], ip.xs[i+1]
	y0, y1 := ip.ys[i], ip.ys[i+1]
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}
