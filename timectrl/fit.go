package timectrl

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// ErrInsufficientSamples is returned when a line cannot be fitted because
// fewer than two samples are available.
var ErrInsufficientSamples = errors.New("insufficient samples for linear fit")

// FitLine returns the least-squares line through (ordinals[i], values[i]).
func FitLine(ordinals, values []float64) (model.TimeModel, error) {
	if len(ordinals) != len(values) {
		return model.TimeModel{}, fmt.Errorf("fit line: %d ordinals vs %d values: %w",
			len(ordinals), len(values), model.ErrShapeMismatch)
	}
	if len(values) < 2 {
		return model.TimeModel{}, fmt.Errorf("fit line over %d samples: %w", len(values), ErrInsufficientSamples)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.TimeModel{}, fmt.Errorf("fit line: non-finite sample %v", v)
		}
	}
	alpha, beta := stat.LinearRegression(ordinals, values, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return model.TimeModel{}, fmt.Errorf("fit line: degenerate ordinals: %w", ErrInsufficientSamples)
	}
	return model.TimeModel{Slope: beta, Intercept: alpha}, nil
}

// FitSequence fits values against their own index 0..n-1.
func FitSequence(values []float64) (model.TimeModel, error) {
	return FitLine(Ordinals(len(values)), values)
}

// Ordinals returns 0, 1, ..., n-1 as floats.
func Ordinals(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

// Evaluate samples m at 0..n-1.
func Evaluate(m model.TimeModel, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = m.At(float64(i))
	}
	return out
}
