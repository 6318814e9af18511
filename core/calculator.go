package core

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/swath-geolocator/model"
	"github.com/signalsfoundry/swath-geolocator/timectrl"
)

// GeometryInput is everything the calculator needs for one swath.
type GeometryInput struct {
	Geo *model.GeolocationGrid
	// Satellite holds one ECEF position (metres) per row of Geo.
	Satellite []model.ECEF
	// LineSeconds is the UTC seconds of day of each row, used for the
	// UTC time layer.
	LineSeconds []float64
	// MeanTime is the single instant used for the solar ephemeris.
	MeanTime time.Time
	Zone     Zone
}

// Geometry is the calculator's output: the per-pixel view geometry together
// with the planar coordinates it was derived from.
type Geometry struct {
	View *model.ViewGeometryGrid
	// East and North are the pixel positions in the scene zone (metres).
	East, North *model.Grid
}

// ComputeGeometry derives every observable layer for a swath. The satellite
// is reduced to one planar origin per line; solar angles use one ephemeris
// for the whole scene.
func ComputeGeometry(in GeometryInput) (*Geometry, error) {
	if err := in.Geo.Validate(); err != nil {
		return nil, err
	}
	rows, cols := in.Geo.Shape()
	if len(in.Satellite) != rows {
		return nil, fmt.Errorf("geometry: %d satellite positions for %d lines: %w",
			len(in.Satellite), rows, model.ErrShapeMismatch)
	}
	if len(in.LineSeconds) != rows {
		return nil, fmt.Errorf("geometry: %d line times for %d lines: %w",
			len(in.LineSeconds), rows, model.ErrShapeMismatch)
	}

	east, north, _, err := GridToUTM(in.Geo, in.Zone)
	if err != nil {
		return nil, err
	}

	view := &model.ViewGeometryGrid{
		Pathlength:    model.NewGrid(rows, cols),
		SensorAzimuth: model.NewGrid(rows, cols),
		SensorZenith:  model.NewGrid(rows, cols),
		SolarAzimuth:  model.NewGrid(rows, cols),
		SolarZenith:   model.NewGrid(rows, cols),
		Phase:         model.NewGrid(rows, cols),
		CosineI:       model.NewGrid(rows, cols),
		UTCTime:       model.NewGrid(rows, cols),
	}
	view.Slope, view.Aspect, err = SlopeAspect(in.Geo.Elevation, east, north)
	if err != nil {
		return nil, err
	}

	sun := SunAt(in.MeanTime)
	lon, lat, elev := in.Geo.Longitude, in.Geo.Latitude, in.Geo.Elevation

	for r := 0; r < rows; r++ {
		sat := Vec3{X: in.Satellite[r].X, Y: in.Satellite[r].Y, Z: in.Satellite[r].Z}
		sub := ECEFToGeodetic(sat)
		se, sn, err := GeodeticToUTM(sub.Lon, sub.Lat, in.Zone)
		if err != nil {
			return nil, fmt.Errorf("geometry: satellite at line %d: %w", r, err)
		}
		satPlanar := Vec3{X: se, Y: sn, Z: sub.Height}
		hours := timectrl.DecimalHours(in.LineSeconds[r])

		for c := 0; c < cols; c++ {
			i := r*cols + c
			ground := GeodeticToECEF(lon.Data[i], lat.Data[i], elev.Data[i])
			view.Pathlength.Data[i] = Pathlength(sat, ground)

			groundPlanar := Vec3{X: east.Data[i], Y: north.Data[i], Z: elev.Data[i]}
			vz, va := SensorAngles(satPlanar, groundPlanar)
			view.SensorZenith.Data[i], view.SensorAzimuth.Data[i] = vz, va

			sz, sa := sun.Angles(lon.Data[i], lat.Data[i])
			view.SolarZenith.Data[i], view.SolarAzimuth.Data[i] = sz, sa

			view.Phase.Data[i] = PhaseAngle(sz, sa, vz, va) * radToDeg
			view.CosineI.Data[i] = CosineI(sz, sa, view.Slope.Data[i], view.Aspect.Data[i])
			view.UTCTime.Data[i] = hours
		}
	}

	return &Geometry{View: view, East: east, North: north}, nil
}
