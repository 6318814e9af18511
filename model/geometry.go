package model

import "fmt"

// TimeModel is a linear map from an ordinal (line or sample number) to UTC
// seconds of day.
type TimeModel struct {
	Slope, Intercept float64
}

// At evaluates the model at ordinal i.
func (m TimeModel) At(i float64) float64 { return m.Slope*i + m.Intercept }

// GeolocationGrid carries per-pixel geodetic position. Longitude and
// Latitude are degrees, Elevation metres above the ellipsoid.
type GeolocationGrid struct {
	Longitude, Latitude, Elevation *Grid
}

// Validate checks the three layers share one shape.
func (g *GeolocationGrid) Validate() error {
	if g == nil {
		return fmt.Errorf("nil geolocation grid: %w", ErrShapeMismatch)
	}
	return CheckShapes("geolocation", g.Longitude, g.Latitude, g.Elevation)
}

// Clone deep-copies all layers.
func (g *GeolocationGrid) Clone() *GeolocationGrid {
	return &GeolocationGrid{
		Longitude: g.Longitude.Clone(),
		Latitude:  g.Latitude.Clone(),
		Elevation: g.Elevation.Clone(),
	}
}

// Shape returns rows, cols of the grid.
func (g *GeolocationGrid) Shape() (int, int) { return g.Longitude.Rows, g.Longitude.Cols }

// ViewGeometryGrid is the per-pixel observation geometry. Angles are in
// degrees, Pathlength in metres and UTCTime in decimal hours.
type ViewGeometryGrid struct {
	Pathlength    *Grid
	SensorAzimuth *Grid
	SensorZenith  *Grid
	SolarAzimuth  *Grid
	SolarZenith   *Grid
	Phase         *Grid
	Slope         *Grid
	Aspect        *Grid
	CosineI       *Grid
	UTCTime       *Grid
}

// ObservableNames lists the layer order used for the observables product.
var ObservableNames = []string{
	"path length",
	"to-sensor azimuth",
	"to-sensor zenith",
	"to-sun azimuth",
	"to-sun zenith",
	"phase",
	"slope",
	"aspect",
	"cosine i",
	"utc time",
}

// Layers returns the grids in ObservableNames order.
func (v *ViewGeometryGrid) Layers() []*Grid {
	return []*Grid{
		v.Pathlength, v.SensorAzimuth, v.SensorZenith,
		v.SolarAzimuth, v.SolarZenith, v.Phase,
		v.Slope, v.Aspect, v.CosineI, v.UTCTime,
	}
}

// Validate checks every layer is present and shares one shape.
func (v *ViewGeometryGrid) Validate() error {
	if v == nil {
		return fmt.Errorf("nil view geometry: %w", ErrShapeMismatch)
	}
	return CheckShapes("view geometry", v.Layers()...)
}

// AxisModel is one axis of an OffsetModel: offset in pixels as a linear
// function of sensor zenith, sensor azimuth (degrees) and elevation (m).
type AxisModel struct {
	Intercept, Zenith, Azimuth, Elevation float64
}

// At evaluates the axis model.
func (m AxisModel) At(zenith, azimuth, elevation float64) float64 {
	return m.Intercept + m.Zenith*zenith + m.Azimuth*azimuth + m.Elevation*elevation
}

// OffsetModel predicts the systematic geolocation error in output-grid
// pixels along rows (northing, positive = south) and columns (easting).
type OffsetModel struct {
	Row, Col AxisModel
	// Tiles is the number of matched windows the model was fitted on.
	Tiles int
}

// ECEF is an Earth-centred Earth-fixed position in metres.
type ECEF struct {
	X, Y, Z float64
}
