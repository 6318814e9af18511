package coreg

import (
	"fmt"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// DefaultSmoothing is the side of the moving-average window applied to the
// covariate surfaces before the offset model is evaluated.
const DefaultSmoothing = 25

// UniformFilter returns the size x size moving average of g. Edges are
// handled by mirroring about the outer cell boundary (d c b a | a b c d),
// so the output keeps the input shape.
func UniformFilter(g *model.Grid, size int) (*model.Grid, error) {
	if size < 1 {
		return nil, fmt.Errorf("uniform filter size %d", size)
	}
	if size == 1 {
		return g.Clone(), nil
	}
	tmp := model.NewGrid(g.Rows, g.Cols)
	for r := 0; r < g.Rows; r++ {
		smooth1D(g.Row(r), tmp.Row(r), size)
	}
	out := model.NewGrid(g.Rows, g.Cols)
	col := make([]float64, g.Rows)
	res := make([]float64, g.Rows)
	for c := 0; c < g.Cols; c++ {
		for r := 0; r < g.Rows; r++ {
			col[r] = tmp.At(r, c)
		}
		smooth1D(col, res, size)
		for r := 0; r < g.Rows; r++ {
			out.Set(r, c, res[r])
		}
	}
	return out, nil
}

// smooth1D writes the moving average of src into dst. The window covers
// size samples starting size/2 before the centre.
func smooth1D(src, dst []float64, size int) {
	n := len(src)
	before := size / 2
	for i := range dst {
		var sum float64
		for k := i - before; k < i-before+size; k++ {
			sum += src[reflectIndex(k, n)]
		}
		dst[i] = sum / float64(size)
	}
}

// reflectIndex folds k into [0, n) by half-sample symmetric reflection.
func reflectIndex(k, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	k %= period
	if k < 0 {
		k += period
	}
	if k >= n {
		k = period - 1 - k
	}
	return k
}
