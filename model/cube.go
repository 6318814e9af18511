package model

import "fmt"

// Cube is a line-interleaved spectral cube: Lines x Bands x Samples, stored
// row-major so that one scan line is a contiguous Bands*Samples block.
type Cube struct {
	Lines, Bands, Samples int
	Data                  []float32
}

// NewCube allocates a zeroed cube.
func NewCube(lines, bands, samples int) *Cube {
	return &Cube{Lines: lines, Bands: bands, Samples: samples, Data: make([]float32, lines*bands*samples)}
}

// CheckShape validates that Data matches the declared dimensions.
func (c *Cube) CheckShape() error {
	if c == nil {
		return fmt.Errorf("nil cube: %w", ErrShapeMismatch)
	}
	if c.Lines < 0 || c.Bands < 0 || c.Samples < 0 || len(c.Data) != c.Lines*c.Bands*c.Samples {
		return fmt.Errorf("cube declares %dx%dx%d but holds %d values: %w",
			c.Lines, c.Bands, c.Samples, len(c.Data), ErrShapeMismatch)
	}
	return nil
}

// Line returns the Bands*Samples block for line l (band-major within the line).
func (c *Cube) Line(l int) []float32 {
	n := c.Bands * c.Samples
	return c.Data[l*n : (l+1)*n]
}

// At returns the value at (line, band, sample).
func (c *Cube) At(l, b, s int) float32 {
	return c.Data[(l*c.Bands+b)*c.Samples+s]
}

// Set stores v at (line, band, sample).
func (c *Cube) Set(l, b, s int, v float32) {
	c.Data[(l*c.Bands+b)*c.Samples+s] = v
}

// Band extracts one band as a Lines x Samples grid.
func (c *Cube) Band(b int) *Grid {
	g := NewGrid(c.Lines, c.Samples)
	for l := 0; l < c.Lines; l++ {
		row := g.Row(l)
		base := (l*c.Bands + b) * c.Samples
		for s := range row {
			row[s] = float64(c.Data[base+s])
		}
	}
	return g
}
