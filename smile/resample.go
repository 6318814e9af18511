// Package smile assembles the two detector sub-arrays of a hyperspectral
// cube into one spectrum per pixel, optionally resampling each line onto the
// canonical wavelength grid to remove spectral smile.
package smile

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// ErrNoBands is returned when dropping boundary bands leaves a sub-array
// empty.
var ErrNoBands = errors.New("no bands left after boundary trim")

// Config controls assembly. Zero values are replaced by the defaults in
// ApplyDefaults.
type Config struct {
	// VNIRDrop is the number of leading VNIR bands (archive order) discarded.
	VNIRDrop int
	// SWIRDrop is the number of trailing SWIR bands (archive order) discarded.
	SWIRDrop int
	// Trim is the border, in pixels, removed from every spatial edge.
	Trim int
	// Scale multiplies every radiance value.
	Scale float64
	// Workers bounds the number of lines processed at once.
	Workers int
}

// DefaultConfig returns the archive's standard assembly settings.
func DefaultConfig() Config {
	return Config{
		VNIRDrop: 6,
		SWIRDrop: 3,
		Trim:     2,
		Scale:    1.0 / 1000.0,
		Workers:  runtime.GOMAXPROCS(0),
	}
}

// ApplyDefaults fills zero-valued fields. Trim and the drop counts are left
// alone so that zero can be requested explicitly.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Scale == 0 {
		c.Scale = d.Scale
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
}

// Result is the assembled radiance cube and its band metadata.
type Result struct {
	Cube       *model.Cube
	Wavelength []float64
	FWHM       []float64
	// Corrected reports whether the smile surface was applied.
	Corrected bool
}

// subArray is one detector's kept band range in archive order, plus the
// ascending canonical wavelengths the output is written on.
type subArray struct {
	cube     *model.Cube
	first    int
	count    int
	reversed bool
	waves    []float64
	fwhm     []float64
}

func newSubArray(cube *model.Cube, waves, fwhm []float64, first, count int) (subArray, error) {
	if count <= 0 {
		return subArray{}, ErrNoBands
	}
	w := append([]float64(nil), waves[first:first+count]...)
	f := append([]float64(nil), fwhm[first:first+count]...)
	reversed := w[0] > w[len(w)-1]
	if reversed {
		reverse(w)
		reverse(f)
	}
	return subArray{cube: cube, first: first, count: count, reversed: reversed, waves: w, fwhm: f}, nil
}

// spectrum copies sample s of line l into dst in ascending wavelength order.
func (a subArray) spectrum(l, s int, dst []float64) {
	for i := 0; i < a.count; i++ {
		b := a.first + i
		if a.reversed {
			b = a.first + a.count - 1 - i
		}
		dst[i] = float64(a.cube.At(l, b, s))
	}
}

// Assemble merges the VNIR and SWIR cubes of a scene. surface, when not nil,
// is the smoothed shift surface: one row per raw scan line holding the
// observed centre wavelength of every kept band, VNIR columns first. Each
// line's spectra are resampled from those wavelengths onto the canonical
// grid with a not-a-knot cubic spline before assembly.
//
// Lines are processed concurrently; output line i always comes from input
// line i+Trim.
func Assemble(ctx context.Context, scene *model.Scene, surface *model.Grid, cfg Config) (*Result, error) {
	cfg.ApplyDefaults()
	if err := scene.VNIR.CheckShape(); err != nil {
		return nil, fmt.Errorf("vnir: %w", err)
	}
	if err := scene.SWIR.CheckShape(); err != nil {
		return nil, fmt.Errorf("swir: %w", err)
	}
	v, s := scene.VNIR, scene.SWIR
	if v.Lines != s.Lines || v.Samples != s.Samples {
		return nil, fmt.Errorf("vnir %dx%d vs swir %dx%d: %w", v.Lines, v.Samples, s.Lines, s.Samples, model.ErrShapeMismatch)
	}
	if len(scene.VNIRWaves) != v.Bands || len(scene.VNIRFWHM) != v.Bands ||
		len(scene.SWIRWaves) != s.Bands || len(scene.SWIRFWHM) != s.Bands {
		return nil, fmt.Errorf("band metadata does not match cube bands: %w", model.ErrShapeMismatch)
	}

	vnir, err := newSubArray(v, scene.VNIRWaves, scene.VNIRFWHM, cfg.VNIRDrop, v.Bands-cfg.VNIRDrop)
	if err != nil {
		return nil, fmt.Errorf("vnir: %w", err)
	}
	swir, err := newSubArray(s, scene.SWIRWaves, scene.SWIRFWHM, 0, s.Bands-cfg.SWIRDrop)
	if err != nil {
		return nil, fmt.Errorf("swir: %w", err)
	}

	lines, samples := v.Lines-2*cfg.Trim, v.Samples-2*cfg.Trim
	if lines <= 0 || samples <= 0 {
		return nil, fmt.Errorf("cannot trim %d pixels from %dx%d swath: %w", cfg.Trim, v.Lines, v.Samples, model.ErrShapeMismatch)
	}
	bands := vnir.count + swir.count
	if surface != nil && (surface.Rows != v.Lines || surface.Cols != bands) {
		return nil, fmt.Errorf("shift surface is %dx%d, want %dx%d: %w",
			surface.Rows, surface.Cols, v.Lines, bands, model.ErrShapeMismatch)
	}

	out := model.NewCube(lines, bands, samples)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for l := 0; l < lines; l++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return assembleLine(out, l, l+cfg.Trim, vnir, swir, surface, cfg)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		Cube:       out,
		Wavelength: append(append([]float64(nil), vnir.waves...), swir.waves...),
		FWHM:       append(append([]float64(nil), vnir.fwhm...), swir.fwhm...),
		Corrected:  surface != nil,
	}, nil
}

// assembleLine fills output line dst from raw line src. It writes only into
// dst's block of out.
func assembleLine(out *model.Cube, dst, src int, vnir, swir subArray, surface *model.Grid, cfg Config) error {
	var vx, sx []float64
	if surface != nil {
		row := surface.Row(src)
		vx, sx = row[:vnir.count], row[vnir.count:]
	}

	vBuf := make([]float64, vnir.count)
	sBuf := make([]float64, swir.count)
	for s := 0; s < out.Samples; s++ {
		raw := s + cfg.Trim
		vnir.spectrum(src, raw, vBuf)
		swir.spectrum(src, raw, sBuf)

		vSpec, sSpec := vBuf, sBuf
		if surface != nil {
			var err error
			if vSpec, err = resample(vx, vBuf, vnir.waves); err != nil {
				return fmt.Errorf("line %d sample %d vnir: %w", src, raw, err)
			}
			if sSpec, err = resample(sx, sBuf, swir.waves); err != nil {
				return fmt.Errorf("line %d sample %d swir: %w", src, raw, err)
			}
		}

		for b, val := range vSpec {
			out.Set(dst, b, s, float32(val*cfg.Scale))
		}
		for b, val := range sSpec {
			out.Set(dst, vnir.count+b, s, float32(val*cfg.Scale))
		}
	}
	return nil
}

// resample fits ys over the observed wavelengths xs and evaluates the fit at
// the canonical wavelengths. A surface row stored in descending order is
// accepted and reversed.
func resample(xs, ys, canonical []float64) ([]float64, error) {
	if len(xs) > 1 && xs[0] > xs[len(xs)-1] {
		xs = reversed(xs)
		ys = reversed(ys)
	}
	sp, err := FitSpline(xs, ys)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(canonical))
	for i, w := range canonical {
		out[i] = sp.At(w)
	}
	return out, nil
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}

func reversed(v []float64) []float64 {
	out := append([]float64(nil), v...)
	reverse(out)
	return out
}
