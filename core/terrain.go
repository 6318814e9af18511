package core

import (
	"math"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// SlopeAspect estimates terrain slope and aspect (degrees) on the swath grid.
// Elevation derivatives along rows and columns are mapped to easting and
// northing derivatives through the local Jacobian of the planar coordinates,
// so the result does not assume the swath is aligned with the map axes.
//
// Aspect is the downslope direction clockwise from north. Flat or degenerate
// cells get slope 0 and aspect 0.
func SlopeAspect(elev, east, north *model.Grid) (slope, aspect *model.Grid, err error) {
	if err := model.CheckShapes("terrain", elev, east, north); err != nil {
		return nil, nil, err
	}
	rows, cols := elev.Rows, elev.Cols
	slope, aspect = model.NewGrid(rows, cols), model.NewGrid(rows, cols)
	if rows < 2 || cols < 2 {
		return slope, aspect, nil
	}

	for r := 0; r < rows; r++ {
		r0, r1 := neighbours(r, rows)
		for c := 0; c < cols; c++ {
			c0, c1 := neighbours(c, cols)

			// Derivatives along columns (across track) and rows (along track).
			zc := (elev.At(r, c1) - elev.At(r, c0)) / float64(c1-c0)
			ec := (east.At(r, c1) - east.At(r, c0)) / float64(c1-c0)
			nc := (north.At(r, c1) - north.At(r, c0)) / float64(c1-c0)
			zr := (elev.At(r1, c) - elev.At(r0, c)) / float64(r1-r0)
			er := (east.At(r1, c) - east.At(r0, c)) / float64(r1-r0)
			nr := (north.At(r1, c) - north.At(r0, c)) / float64(r1-r0)

			det := ec*nr - nc*er
			if math.Abs(det) < 1e-12 || math.IsNaN(det) {
				continue
			}
			// Solve [ec nc; er nr] [p; q] = [zc; zr] for p = dz/dE, q = dz/dN.
			p := (zc*nr - nc*zr) / det
			q := (ec*zr - zc*er) / det

			grad := math.Hypot(p, q)
			slope.Set(r, c, math.Atan(grad)*radToDeg)
			if grad > 0 {
				aspect.Set(r, c, wrapAzimuth(math.Atan2(-p, -q)*radToDeg))
			}
		}
	}
	return slope, aspect, nil
}

// neighbours returns the indices used for a central difference at i, falling
// back to one-sided differences at the edges.
func neighbours(i, n int) (int, int) {
	lo, hi := i-1, i+1
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	return lo, hi
}
