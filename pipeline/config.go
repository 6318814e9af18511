// Package pipeline runs one scene from archive to gridded products:
// temporal alignment, geometry, optional smile correction and
// co-registration, then projection and persistence.
package pipeline

import (
	"fmt"
	"math"
	"runtime"

	"github.com/signalsfoundry/swath-geolocator/coreg"
	"github.com/signalsfoundry/swath-geolocator/model"
	"github.com/signalsfoundry/swath-geolocator/projector"
	"github.com/signalsfoundry/swath-geolocator/smile"
	"github.com/signalsfoundry/swath-geolocator/timectrl"
)

// Config holds everything a scene run needs. It is passed explicitly; the
// pipeline reads no process-wide state.
type Config struct {
	// CellSize is the sensor's native ground sample distance in metres and
	// the base output grid cell.
	// Default: 30
	CellSize float64

	// Resolution is the output cell size in metres. It must be a whole
	// multiple of CellSize; larger values block-average the base grid.
	// Products left in swath geometry ignore it.
	// Default: CellSize
	Resolution float64

	// Project enables map-grid projection. When false, products are written
	// in swath geometry.
	// Default: true
	Project bool

	// Margin pads the output grid around the swath extent, in metres.
	// Default: 100
	Margin float64

	// GPSLeapSeconds is the GPS minus UTC offset applied to telemetry times.
	// Zero is honoured; negative values fall back to the default.
	// Default: 17
	GPSLeapSeconds float64

	// Trim is the border, in pixels, dropped from every edge of the raw
	// swath. Zero is honoured.
	// Default: 2
	Trim int

	// NoData is written to output cells with no source pixel. Zero is
	// honoured; NaN falls back to the default.
	// Default: -9999
	NoData float64

	// Interleave is the product interleave, bsq or bil.
	// Default: bil
	Interleave string

	// Coreg enables co-registration when a reference source is present.
	// Default: true
	Coreg bool

	// RequireOverlap makes a reference with no overlap fatal instead of
	// skipping correction.
	// Default: false
	RequireOverlap bool

	// Smoothing is the uniform filter size applied to the offset model's
	// covariate surfaces.
	// Default: 25
	Smoothing int

	CoregParams coreg.Params
	Smile       smile.Config

	// WorkDir is where per-scene workspaces are created. Empty means the
	// system temporary directory.
	WorkDir string

	// KeepWorkspace leaves the scene workspace in place after the run.
	// Default: false
	KeepWorkspace bool

	// Workers bounds every parallel stage.
	// Default: GOMAXPROCS
	Workers int
}

// DefaultConfig returns a Config with the archive's standard settings.
func DefaultConfig() Config {
	return Config{
		CellSize:       30,
		Resolution:     30,
		Project:        true,
		Margin:         projector.DefaultMargin,
		GPSLeapSeconds: timectrl.DefaultGPSLeapSeconds,
		Trim:           2,
		NoData:         model.DefaultNoData,
		Interleave:     model.InterleaveBIL,
		Coreg:          true,
		Smoothing:      coreg.DefaultSmoothing,
		CoregParams:    coreg.DefaultParams(),
		Smile:          smile.DefaultConfig(),
		Workers:        runtime.GOMAXPROCS(0),
	}
}

// ApplyDefaults fills numeric fields that are zero or invalid. Boolean
// switches are taken as given, and so are Trim, GPSLeapSeconds and NoData,
// where zero is a real setting; start from DefaultConfig to get theirs.
func (c Config) ApplyDefaults() Config {
	d := DefaultConfig()
	if c.CellSize <= 0 {
		c.CellSize = d.CellSize
	}
	if c.Resolution <= 0 {
		c.Resolution = c.CellSize
	}
	if c.Margin <= 0 {
		c.Margin = d.Margin
	}
	if c.GPSLeapSeconds < 0 || math.IsNaN(c.GPSLeapSeconds) {
		c.GPSLeapSeconds = d.GPSLeapSeconds
	}
	if c.Trim < 0 {
		c.Trim = d.Trim
	}
	if math.IsNaN(c.NoData) {
		c.NoData = d.NoData
	}
	if c.Interleave == "" {
		c.Interleave = d.Interleave
	}
	if c.Smoothing <= 0 {
		c.Smoothing = d.Smoothing
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	c.CoregParams.ApplyDefaults()
	if c.CoregParams.Workers <= 0 || c.CoregParams.Workers > c.Workers {
		c.CoregParams.Workers = c.Workers
	}
	c.Smile.ApplyDefaults()
	c.Smile.Workers = c.Workers
	c.Smile.Trim = c.Trim
	return c
}

// Validate reports settings that cannot produce a product.
func (c Config) Validate() error {
	if _, err := projector.BlockFactor(c.Resolution, c.CellSize); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Interleave {
	case model.InterleaveBIL, model.InterleaveBSQ:
	default:
		return fmt.Errorf("config: unknown interleave %q", c.Interleave)
	}
	return nil
}
