package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrShapeMismatch is returned whenever two arrays handed across a stage
// boundary do not have the shape the receiving stage expects.
var ErrShapeMismatch = errors.New("array shape mismatch")

// Grid is a dense row-major 2-D array of float64 samples. Rows index scan
// lines (along track) and Cols index detector samples (across track), or
// northing/easting rows and columns once projected.
type Grid struct {
	Rows, Cols int
	Data       []float64
}

// NewGrid allocates a zeroed rows x cols grid.
func NewGrid(rows, cols int) *Grid {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	return &Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// NewGridFilled allocates a grid with every cell set to v.
func NewGridFilled(rows, cols int, v float64) *Grid {
	g := NewGrid(rows, cols)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

// GridFromRows copies a slice of equal-length rows into a Grid.
func GridFromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 {
		return NewGrid(0, 0), nil
	}
	g := NewGrid(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != g.Cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", r, len(row), g.Cols, ErrShapeMismatch)
		}
		copy(g.Data[r*g.Cols:], row)
	}
	return g, nil
}

// At returns the sample at (r, c).
func (g *Grid) At(r, c int) float64 { return g.Data[r*g.Cols+c] }

// Set stores v at (r, c).
func (g *Grid) Set(r, c int, v float64) { g.Data[r*g.Cols+c] = v }

// Row returns the backing slice for row r. Writes go through to the grid.
func (g *Grid) Row(r int) []float64 { return g.Data[r*g.Cols : (r+1)*g.Cols] }

// Len is the number of cells.
func (g *Grid) Len() int { return len(g.Data) }

// SameShape reports whether g and o have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g != nil && o != nil && g.Rows == o.Rows && g.Cols == o.Cols
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	if g == nil {
		return nil
	}
	out := &Grid{Rows: g.Rows, Cols: g.Cols, Data: make([]float64, len(g.Data))}
	copy(out.Data, g.Data)
	return out
}

// Trim drops border cells from every edge and returns a new grid.
func (g *Grid) Trim(border int) (*Grid, error) {
	if border == 0 {
		return g.Clone(), nil
	}
	rows, cols := g.Rows-2*border, g.Cols-2*border
	if border < 0 || rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("cannot trim %d cells from %dx%d grid: %w", border, g.Rows, g.Cols, ErrShapeMismatch)
	}
	out := NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		copy(out.Row(r), g.Row(r + border)[border:border+cols])
	}
	return out, nil
}

// MinMax returns the smallest and largest finite samples, skipping NaN and
// any sample equal to skip. ok is false when no sample qualified.
func (g *Grid) MinMax(skip float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range g.Data {
		if math.IsNaN(v) || v == skip {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		ok = true
	}
	return lo, hi, ok
}

// Mean returns the arithmetic mean of all finite samples.
func (g *Grid) Mean() float64 {
	var sum float64
	var n int
	for _, v := range g.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// CheckShapes returns ErrShapeMismatch unless every grid has the same shape
// as the first one. Nil grids are rejected.
func CheckShapes(name string, grids ...*Grid) error {
	if len(grids) == 0 {
		return nil
	}
	first := grids[0]
	if first == nil {
		return fmt.Errorf("%s: nil grid: %w", name, ErrShapeMismatch)
	}
	for i, g := range grids[1:] {
		if g == nil {
			return fmt.Errorf("%s: nil grid at %d: %w", name, i+1, ErrShapeMismatch)
		}
		if !first.SameShape(g) {
			return fmt.Errorf("%s: grid %d is %dx%d, want %dx%d: %w",
				name, i+1, g.Rows, g.Cols, first.Rows, first.Cols, ErrShapeMismatch)
		}
	}
	return nil
}
