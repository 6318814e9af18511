// Package coreg estimates and removes a systematic geolocation offset by
// matching a synthetic broadband image of the scene against a reference
// image on the same map grid.
package coreg

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// WarpWavelengths are the band centres averaged into the warp band. They
// span the 850-880 nm near-infrared window used by common reference
// imagery.
var WarpWavelengths = []float64{850, 860, 870, 880}

// WarpScale is the upper end of the normalised warp band.
const WarpScale = 16000.0

// ErrNoBands is returned when the cube carries no wavelengths to choose from.
var ErrNoBands = errors.New("cube has no bands")

// nearestBand returns the index of the band whose centre is closest to w.
func nearestBand(waves []float64, w float64) int {
	best, bestD := -1, math.Inf(1)
	for i, x := range waves {
		if d := math.Abs(x - w); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// WarpBand averages the bands nearest WarpWavelengths into one swath-shaped
// grid.
func WarpBand(cube *model.Cube, waves []float64) (*model.Grid, error) {
	if err := cube.CheckShape(); err != nil {
		return nil, err
	}
	if len(waves) != cube.Bands {
		return nil, fmt.Errorf("warp band: %d wavelengths for %d bands: %w", len(waves), cube.Bands, model.ErrShapeMismatch)
	}
	if cube.Bands == 0 {
		return nil, ErrNoBands
	}

	out := model.NewGrid(cube.Lines, cube.Samples)
	for _, w := range WarpWavelengths {
		b := nearestBand(waves, w)
		for l := 0; l < cube.Lines; l++ {
			row := out.Row(l)
			for s := range row {
				row[s] += float64(cube.At(l, b, s))
			}
		}
	}
	n := float64(len(WarpWavelengths))
	for i := range out.Data {
		out.Data[i] /= n
	}
	return out, nil
}

// Normalize rescales the valid cells of a projected warp band to
// WarpScale*(v-min)/max in place. Nodata cells are left untouched.
func Normalize(r *model.OutputRaster) {
	lo, hi, ok := r.MinMax(r.NoData)
	if !ok || hi == 0 {
		return
	}
	for i, v := range r.Data {
		if v == r.NoData || math.IsNaN(v) {
			continue
		}
		r.Data[i] = WarpScale * (v - lo) / hi
	}
}
