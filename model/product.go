package model

import "fmt"

// Band interleaves a product can be written in.
const (
	InterleaveBSQ = "bsq"
	InterleaveBIL = "bil"
)

// Product is one output image set: co-registered bands on a shared grid
// plus the metadata written into the product header.
type Product struct {
	Description string
	Bands       []*Grid
	BandNames   []string
	// Wavelength and FWHM are nanometres, one per band, or empty.
	Wavelength []float64
	FWHM       []float64
	Interleave string
	// Map is nil for products left in swath geometry.
	Map *MapInfo
	// NoData is written as the data ignore value when HasNoData is set.
	NoData    float64
	HasNoData bool
}

// Shape returns rows and cols shared by every band.
func (p *Product) Shape() (rows, cols int) {
	if len(p.Bands) == 0 || p.Bands[0] == nil {
		return 0, 0
	}
	return p.Bands[0].Rows, p.Bands[0].Cols
}

// Validate checks band shapes and per-band metadata lengths.
func (p *Product) Validate() error {
	if len(p.Bands) == 0 {
		return fmt.Errorf("product %q has no bands: %w", p.Description, ErrShapeMismatch)
	}
	if err := CheckShapes("product bands", p.Bands...); err != nil {
		return err
	}
	n := len(p.Bands)
	for name, l := range map[string]int{"band names": len(p.BandNames), "wavelength": len(p.Wavelength), "fwhm": len(p.FWHM)} {
		if l != 0 && l != n {
			return fmt.Errorf("%d %s for %d bands: %w", l, name, n, ErrShapeMismatch)
		}
	}
	switch p.Interleave {
	case InterleaveBSQ, InterleaveBIL, "":
	default:
		return fmt.Errorf("unknown interleave %q", p.Interleave)
	}
	return nil
}

// ProductFromRasters builds a projected product from layers sharing one grid.
func ProductFromRasters(description string, layers []*OutputRaster, names []string) *Product {
	p := &Product{Description: description, BandNames: names, Interleave: InterleaveBSQ}
	for _, l := range layers {
		p.Bands = append(p.Bands, l.Grid)
	}
	if len(layers) > 0 {
		m := layers[0].Map
		p.Map = &m
		p.NoData = layers[0].NoData
		p.HasNoData = true
	}
	return p
}
