package smile

import (
	"errors"
	"math"
	"testing"
)

func cubicPoly(x float64) float64 { return 0.002*x*x*x - 0.3*x*x + 4*x - 7 }

func TestSplineReproducesCubic(t *testing.T) {
	xs := []float64{1, 2.5, 3, 4.2, 6, 7.1, 9}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = cubicPoly(x)
	}
	sp, err := FitSpline(xs, ys)
	if err != nil {
		t.Fatalf("FitSpline: %v", err)
	}
	// Inside the knot range and past both ends.
	for _, x := range []float64{-1, 0.5, 1, 2, 3.7, 5, 8.8, 9, 10, 12} {
		if got, want := sp.At(x), cubicPoly(x); math.Abs(got-want) > 1e-8 {
			t.Errorf("At(%v) = %v, want %v", x, got, want)
		}
	}
}

func TestSplineInterpolatesKnots(t *testing.T) {
	xs := []float64{400, 410, 421, 430, 442}
	ys := []float64{3, 9, 4, 12, 1}
	sp, err := FitSpline(xs, ys)
	if err != nil {
		t.Fatalf("FitSpline: %v", err)
	}
	for i := range xs {
		if got := sp.At(xs[i]); math.Abs(got-ys[i]) > 1e-9 {
			t.Errorf("At(%v) = %v, want %v", xs[i], got, ys[i])
		}
	}
}

func TestFitSplineRejectsBadKnots(t *testing.T) {
	if _, err := FitSpline([]float64{1, 2, 3}, []float64{1, 2, 3}); !errors.Is(err, ErrTooFewKnots) {
		t.Fatalf("err = %v, want ErrTooFewKnots", err)
	}
	if _, err := FitSpline([]float64{1, 2, 2, 3}, []float64{1, 2, 3, 4}); !errors.Is(err, ErrKnotOrder) {
		t.Fatalf("err = %v, want ErrKnotOrder", err)
	}
}
