package smile

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// ErrTooFewKnots is returned when a spectrum has fewer points than a
// not-a-knot cubic needs.
var ErrTooFewKnots = errors.New("too few knots for cubic spline")

// ErrKnotOrder is returned when spline abscissae are not strictly monotonic.
var ErrKnotOrder = errors.New("spline knots not strictly monotonic")

const minKnots = 4

// Spline is a not-a-knot cubic spline that, unlike interp.NotAKnotCubic on
// its own, extends its first and last pieces as polynomials outside the knot
// range instead of holding the end values.
type Spline struct {
	fit           interp.NotAKnotCubic
	lo, hi        hermite
	xFirst, xLast float64
}

// hermite is one spline piece in value/derivative form.
type hermite struct {
	x0, x1, y0, y1, d0, d1 float64
}

func (h hermite) at(x float64) float64 {
	w := h.x1 - h.x0
	t := (x - h.x0) / w
	t2, t3 := t*t, t*t*t
	return (2*t3-3*t2+1)*h.y0 + (t3-2*t2+t)*w*h.d0 + (-2*t3+3*t2)*h.y1 + (t3-t2)*w*h.d1
}

// FitSpline fits ys over strictly increasing xs.
func FitSpline(xs, ys []float64) (*Spline, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("spline: %d knots vs %d values", len(xs), len(ys))
	}
	if len(xs) < minKnots {
		return nil, fmt.Errorf("spline: %d knots: %w", len(xs), ErrTooFewKnots)
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return nil, fmt.Errorf("spline: knot %d (%v) after %v: %w", i, xs[i], xs[i-1], ErrKnotOrder)
		}
	}

	s := &Spline{xFirst: xs[0], xLast: xs[len(xs)-1]}
	if err := s.fit.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("spline: %w", err)
	}
	s.lo = s.piece(xs[0], xs[1])
	s.hi = s.piece(xs[len(xs)-2], xs[len(xs)-1])
	return s, nil
}

func (s *Spline) piece(x0, x1 float64) hermite {
	return hermite{
		x0: x0, x1: x1,
		y0: s.fit.Predict(x0), y1: s.fit.Predict(x1),
		d0: s.fit.PredictDerivative(x0), d1: s.fit.PredictDerivative(x1),
	}
}

// At evaluates the spline, extrapolating with the edge pieces.
func (s *Spline) At(x float64) float64 {
	switch {
	case x < s.xFirst:
		return s.lo.at(x)
	case x > s.xLast:
		return s.hi.at(x)
	default:
		return s.fit.Predict(x)
	}
}
