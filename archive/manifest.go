// Package archive reads and writes unpacked instrument products: a JSON
// manifest describing the scene plus one raw little-endian array object per
// cube or grid, optionally zstd-compressed.
package archive

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// ManifestName is the object every unpacked product is rooted at.
const ManifestName = "manifest.json"

// ErrMissingField is returned when a required manifest entry or array is
// absent. It is an input error and fatal for the scene.
var ErrMissingField = errors.New("product field missing")

// Element types an array may be stored as.
const (
	Float32 = "float32"
	Float64 = "float64"
)

// Compression codecs an array may be stored with.
const (
	CompressionNone = ""
	CompressionZstd = "zstd"
)

// ArrayRef points at one raw array object.
type ArrayRef struct {
	Object      string `json:"object"`
	Shape       []int  `json:"shape"`
	DType       string `json:"dtype"`
	Compression string `json:"compression,omitempty"`
}

func (a *ArrayRef) size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

func (a *ArrayRef) check(field string, dims int) error {
	if a == nil || a.Object == "" {
		return fmt.Errorf("%s: %w", field, ErrMissingField)
	}
	if len(a.Shape) != dims {
		return fmt.Errorf("%s: shape %v, want %d dims: %w", field, a.Shape, dims, model.ErrShapeMismatch)
	}
	for _, d := range a.Shape {
		if d <= 0 {
			return fmt.Errorf("%s: shape %v has an empty axis: %w", field, a.Shape, model.ErrShapeMismatch)
		}
	}
	return nil
}

// TelemetryRecord is one satellite position sample as archived.
type TelemetryRecord struct {
	Week    int     `json:"gps_week"`
	Seconds float64 `json:"gps_seconds"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
}

// Manifest describes one unpacked product.
type Manifest struct {
	ID string `json:"id"`

	VNIR *ArrayRef `json:"vnir_cube"`
	SWIR *ArrayRef `json:"swir_cube"`

	VNIRWavelength []float64 `json:"vnir_wavelength"`
	VNIRFWHM       []float64 `json:"vnir_fwhm"`
	SWIRWavelength []float64 `json:"swir_wavelength"`
	SWIRFWHM       []float64 `json:"swir_fwhm"`

	// LineTimes are fractional days since 2000-01-01, one per scan line.
	LineTimes []float64 `json:"line_times_mjd2000"`

	Longitude *ArrayRef `json:"longitude"`
	Latitude  *ArrayRef `json:"latitude"`

	Telemetry []TelemetryRecord `json:"telemetry"`
}

// validate checks the manifest is complete and internally consistent.
func (m *Manifest) validate() error {
	if m.ID == "" {
		return fmt.Errorf("id: %w", ErrMissingField)
	}
	if err := m.VNIR.check("vnir_cube", 3); err != nil {
		return err
	}
	if err := m.SWIR.check("swir_cube", 3); err != nil {
		return err
	}
	if err := m.Longitude.check("longitude", 2); err != nil {
		return err
	}
	if err := m.Latitude.check("latitude", 2); err != nil {
		return err
	}
	for name, v := range map[string][]float64{
		"vnir_wavelength":    m.VNIRWavelength,
		"vnir_fwhm":          m.VNIRFWHM,
		"swir_wavelength":    m.SWIRWavelength,
		"swir_fwhm":          m.SWIRFWHM,
		"line_times_mjd2000": m.LineTimes,
	} {
		if len(v) == 0 {
			return fmt.Errorf("%s: %w", name, ErrMissingField)
		}
	}
	if len(m.Telemetry) == 0 {
		return fmt.Errorf("telemetry: %w", ErrMissingField)
	}
	return nil
}
