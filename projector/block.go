package projector

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// BlockAverage averages non-overlapping factor x factor blocks of a
// projected layer. Nodata and NaN cells are left out of each mean; a block
// with no valid cell is nodata. With clampNegative, negative means become
// zero, which is the rule for radiance layers.
func BlockAverage(in *model.OutputRaster, factor int, clampNegative bool) (*model.OutputRaster, error) {
	if factor < 1 {
		return nil, fmt.Errorf("block factor %d: %w", factor, ErrEmptyGrid)
	}
	rows, cols := in.Rows/factor, in.Cols/factor
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%dx%d grid smaller than block %d: %w", in.Rows, in.Cols, factor, ErrEmptyGrid)
	}

	out := model.NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var sum float64
			var n int
			for br := r * factor; br < (r+1)*factor; br++ {
				for bc := c * factor; bc < (c+1)*factor; bc++ {
					v := in.At(br, bc)
					if v == in.NoData || math.IsNaN(v) {
						continue
					}
					sum += v
					n++
				}
			}
			if n == 0 {
				out.Set(r, c, in.NoData)
				continue
			}
			mean := sum / float64(n)
			if clampNegative && mean < 0 {
				mean = 0
			}
			out.Set(r, c, mean)
		}
	}

	m := in.Map
	m.CellSize *= float64(factor)
	return &model.OutputRaster{Grid: out, NoData: in.NoData, Map: m}, nil
}

// BlockFactor returns the integer ratio between the requested resolution
// and the native cell size, or an error when it does not divide evenly.
func BlockFactor(resolution, cellSize float64) (int, error) {
	if !(resolution > 0) || !(cellSize > 0) {
		return 0, fmt.Errorf("resolution %v with cell %v: %w", resolution, cellSize, ErrEmptyGrid)
	}
	f := resolution / cellSize
	n := int(math.Round(f))
	if n < 1 || math.Abs(f-float64(n)) > 1e-9 {
		return 0, fmt.Errorf("resolution %v m is not a multiple of %v m cells", resolution, cellSize)
	}
	return n, nil
}
