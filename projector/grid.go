// Package projector resamples swath-geometry layers onto a regular map grid
// by nearest-neighbour lookup, and block-averages the result to coarser
// resolutions.
package projector

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/model"
)

// DefaultMargin is the padding, in metres, added around the swath extent
// when the grid origin is derived from the source coordinates.
const DefaultMargin = 100.0

// ErrEmptyGrid is returned when a grid would have no cells or the source
// has no finite coordinates.
var ErrEmptyGrid = errors.New("empty output grid")

// GridSpec defines a north-up output grid. ULX/ULY is the outer corner of
// the upper-left cell.
type GridSpec struct {
	ULX, ULY   float64
	CellSize   float64
	Rows, Cols int
	// SearchRadius bounds the nearest-neighbour lookup. Zero means CellSize.
	SearchRadius float64
	Zone         core.Zone
}

// GridFor derives the grid covering the planar extent of east/north, with
// the origin at (min easting - margin, max northing + margin).
func GridFor(east, north *model.Grid, cellSize, margin float64, zone core.Zone) (GridSpec, error) {
	if err := model.CheckShapes("grid extent", east, north); err != nil {
		return GridSpec{}, err
	}
	if !(cellSize > 0) {
		return GridSpec{}, fmt.Errorf("cell size %v: %w", cellSize, ErrEmptyGrid)
	}
	minE, maxE, okE := east.MinMax(math.NaN())
	minN, maxN, okN := north.MinMax(math.NaN())
	if !okE || !okN {
		return GridSpec{}, fmt.Errorf("no finite source coordinates: %w", ErrEmptyGrid)
	}

	spec := GridSpec{
		ULX:      minE - margin,
		ULY:      maxN + margin,
		CellSize: cellSize,
		Zone:     zone,
	}
	spec.Rows = int(math.Ceil((spec.ULY - minN) / cellSize))
	spec.Cols = int(math.Ceil((maxE - spec.ULX) / cellSize))
	if spec.Rows <= 0 || spec.Cols <= 0 {
		return GridSpec{}, fmt.Errorf("%dx%d cells: %w", spec.Rows, spec.Cols, ErrEmptyGrid)
	}
	return spec, nil
}

// Radius returns the effective search radius.
func (g GridSpec) Radius() float64 {
	if g.SearchRadius > 0 {
		return g.SearchRadius
	}
	return g.CellSize
}

// CellCenter returns the planar coordinates of the centre of cell (r, c).
func (g GridSpec) CellCenter(r, c int) (east, north float64) {
	return g.ULX + (float64(c)+0.5)*g.CellSize, g.ULY - (float64(r)+0.5)*g.CellSize
}

// Coarsen returns the grid produced by averaging factor x factor blocks.
// Trailing rows and columns that do not fill a block are dropped.
func (g GridSpec) Coarsen(factor int) GridSpec {
	if factor <= 1 {
		return g
	}
	out := g
	out.CellSize = g.CellSize * float64(factor)
	out.SearchRadius = 0
	out.Rows = g.Rows / factor
	out.Cols = g.Cols / factor
	return out
}

// MapInfo describes the grid for product headers.
func (g GridSpec) MapInfo() model.MapInfo {
	return model.MapInfo{
		Projection: "UTM",
		ULX:        g.ULX,
		ULY:        g.ULY,
		CellSize:   g.CellSize,
		Zone:       g.Zone.Number,
		North:      g.Zone.North,
		Datum:      "WGS-84",
	}
}
