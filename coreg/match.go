package coreg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/swath-geolocator/model"
)

var (
	// ErrNoOverlap is returned when the reference image has no valid cell in
	// common with the scene on the target grid.
	ErrNoOverlap = errors.New("reference does not overlap scene")
	// ErrNoMatch is returned when too few windows match confidently. Callers
	// skip correction rather than fail the scene.
	ErrNoMatch = errors.New("too few matching windows")
)

// Params tunes the window search.
type Params struct {
	// Window is the side of each square search window, in grid cells.
	Window int
	// MaxShift bounds the integer shift searched along each axis.
	MaxShift int
	// MinCorrelation is the lowest Pearson correlation a window's best shift
	// may have to be kept.
	MinCorrelation float64
	// MinValidFraction is the share of a window that must be valid in both
	// images for a shift to be scored.
	MinValidFraction float64
	// MinTiles is the fewest matched windows the regression is fitted on.
	MinTiles int
	// Workers bounds concurrent window searches.
	Workers int
}

// DefaultParams returns the search settings used by the pipeline.
func DefaultParams() Params {
	return Params{
		Window:           32,
		MaxShift:         8,
		MinCorrelation:   0.6,
		MinValidFraction: 0.8,
		MinTiles:         6,
		Workers:          runtime.GOMAXPROCS(0),
	}
}

// ApplyDefaults fills zero-valued fields from DefaultParams.
func (p *Params) ApplyDefaults() {
	d := DefaultParams()
	if p.Window <= 0 {
		p.Window = d.Window
	}
	if p.MaxShift <= 0 {
		p.MaxShift = d.MaxShift
	}
	if p.MinCorrelation == 0 {
		p.MinCorrelation = d.MinCorrelation
	}
	if p.MinValidFraction == 0 {
		p.MinValidFraction = d.MinValidFraction
	}
	if p.MinTiles <= 0 {
		p.MinTiles = d.MinTiles
	}
	if p.Workers <= 0 {
		p.Workers = d.Workers
	}
}

// Inputs are the projected layers the search runs on. All must share one
// output grid.
type Inputs struct {
	Warp      *model.OutputRaster
	Reference *model.OutputRaster
	Zenith    *model.OutputRaster
	Azimuth   *model.OutputRaster
	Elevation *model.OutputRaster
}

func (in Inputs) validate() error {
	layers := []*model.OutputRaster{in.Warp, in.Reference, in.Zenith, in.Azimuth, in.Elevation}
	grids := make([]*model.Grid, len(layers))
	for i, l := range layers {
		if l == nil {
			return fmt.Errorf("coreg input %d is nil: %w", i, model.ErrShapeMismatch)
		}
		grids[i] = l.Grid
	}
	return model.CheckShapes("coreg inputs", grids...)
}

// Tile is one matched window.
type Tile struct {
	// Row and Col are the window centre on the grid.
	Row, Col int
	// DRow and DCol are the shift, in cells, at which the reference best
	// matches the scene: scene cell (r, c) corresponds to reference cell
	// (r+DRow, c+DCol).
	DRow, DCol  int
	Correlation float64

	Zenith, Azimuth, Elevation float64
}

// Result is a fitted offset model and the windows behind it.
type Result struct {
	Model model.OffsetModel
	Tiles []Tile
}

// Estimate searches every window for its best integer shift and regresses
// the shifts on sensor zenith, sensor azimuth and elevation.
func Estimate(ctx context.Context, in Inputs, p Params) (*Result, error) {
	p.ApplyDefaults()
	if err := in.validate(); err != nil {
		return nil, err
	}

	overlap := 0
	for i := range in.Warp.Data {
		if valid(in.Warp, i) && valid(in.Reference, i) {
			overlap++
		}
	}
	if overlap == 0 {
		return nil, ErrNoOverlap
	}

	type origin struct{ r, c int }
	var windows []origin
	rows, cols := in.Warp.Rows, in.Warp.Cols
	for r := p.MaxShift; r+p.Window+p.MaxShift <= rows; r += p.Window {
		for c := p.MaxShift; c+p.Window+p.MaxShift <= cols; c += p.Window {
			windows = append(windows, origin{r, c})
		}
	}

	found := make([]*Tile, len(windows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for i, w := range windows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found[i] = searchWindow(in, w.r, w.c, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var tiles []Tile
	for _, t := range found {
		if t != nil {
			tiles = append(tiles, *t)
		}
	}
	if len(tiles) < p.MinTiles {
		return nil, fmt.Errorf("%d of %d windows matched, need %d: %w", len(tiles), len(windows), p.MinTiles, ErrNoMatch)
	}

	m, err := fitOffsets(tiles)
	if err != nil {
		return nil, err
	}
	return &Result{Model: m, Tiles: tiles}, nil
}

func valid(r *model.OutputRaster, i int) bool {
	v := r.Data[i]
	return v != r.NoData && !math.IsNaN(v)
}

// searchWindow scores every shift of one window and returns the best match,
// or nil when none is confident enough.
func searchWindow(in Inputs, r0, c0 int, p Params) *Tile {
	cr, cc := r0+p.Window/2, c0+p.Window/2
	ci := cr*in.Warp.Cols + cc
	if !valid(in.Zenith, ci) || !valid(in.Azimuth, ci) || !valid(in.Elevation, ci) {
		return nil
	}

	minValid := int(math.Ceil(p.MinValidFraction * float64(p.Window*p.Window)))
	xs := make([]float64, 0, p.Window*p.Window)
	ys := make([]float64, 0, p.Window*p.Window)
	cols := in.Warp.Cols

	best := Tile{Correlation: math.Inf(-1)}
	for dr := -p.MaxShift; dr <= p.MaxShift; dr++ {
		for dc := -p.MaxShift; dc <= p.MaxShift; dc++ {
			xs, ys = xs[:0], ys[:0]
			for r := r0; r < r0+p.Window; r++ {
				for c := c0; c < c0+p.Window; c++ {
					wi := r*cols + c
					ri := (r+dr)*cols + c + dc
					if !valid(in.Warp, wi) || !valid(in.Reference, ri) {
						continue
					}
					xs = append(xs, in.Warp.Data[wi])
					ys = append(ys, in.Reference.Data[ri])
				}
			}
			if len(xs) < minValid {
				continue
			}
			rho := stat.Correlation(xs, ys, nil)
			if math.IsNaN(rho) {
				continue
			}
			// Ties keep the smallest shift seen first.
			if rho > best.Correlation {
				best.DRow, best.DCol, best.Correlation = dr, dc, rho
			}
		}
	}
	if best.Correlation < p.MinCorrelation {
		return nil
	}
	best.Row, best.Col = cr, cc
	best.Zenith = in.Zenith.Data[ci]
	best.Azimuth = in.Azimuth.Data[ci]
	best.Elevation = in.Elevation.Data[ci]
	return &best
}

// fitOffsets regresses row and column shifts on [1, zenith, azimuth,
// elevation]. The least-squares solution is taken through an SVD so that a
// covariate constant across the scene yields the minimum-norm fit instead of
// a singular system.
func fitOffsets(tiles []Tile) (model.OffsetModel, error) {
	n := len(tiles)
	x := mat.NewDense(n, 4, nil)
	y := mat.NewDense(n, 2, nil)
	for i, t := range tiles {
		x.SetRow(i, []float64{1, t.Zenith, t.Azimuth, t.Elevation})
		y.Set(i, 0, float64(t.DRow))
		y.Set(i, 1, float64(t.DCol))
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return model.OffsetModel{}, fmt.Errorf("offset regression: SVD did not converge: %w", ErrNoMatch)
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return model.OffsetModel{}, fmt.Errorf("offset regression: zero-rank design: %w", ErrNoMatch)
	}
	var beta mat.Dense
	svd.SolveTo(&beta, y, rank)

	axis := func(j int) model.AxisModel {
		return model.AxisModel{
			Intercept: beta.At(0, j),
			Zenith:    beta.At(1, j),
			Azimuth:   beta.At(2, j),
			Elevation: beta.At(3, j),
		}
	}
	return model.OffsetModel{Row: axis(0), Col: axis(1), Tiles: n}, nil
}
