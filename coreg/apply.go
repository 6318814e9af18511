package coreg

import (
	"fmt"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// Surfaces are the swath-shaped covariates the offset model is evaluated
// on, before smoothing.
type Surfaces struct {
	Zenith, Azimuth, Elevation *model.Grid
}

// Apply shifts the planar swath coordinates by the offset the model predicts
// from smoothed covariates: east moves by cellSize*col offset and north by
// -cellSize*row offset (rows grow southwards). The inputs are not modified.
func Apply(east, north *model.Grid, s Surfaces, m model.OffsetModel, cellSize float64, smoothing int) (*model.Grid, *model.Grid, error) {
	if err := model.CheckShapes("coreg apply", east, north, s.Zenith, s.Azimuth, s.Elevation); err != nil {
		return nil, nil, err
	}
	zn, err := UniformFilter(s.Zenith, smoothing)
	if err != nil {
		return nil, nil, fmt.Errorf("smooth zenith: %w", err)
	}
	az, err := UniformFilter(s.Azimuth, smoothing)
	if err != nil {
		return nil, nil, fmt.Errorf("smooth azimuth: %w", err)
	}
	el, err := UniformFilter(s.Elevation, smoothing)
	if err != nil {
		return nil, nil, fmt.Errorf("smooth elevation: %w", err)
	}

	outE, outN := east.Clone(), north.Clone()
	for i := range outE.Data {
		outE.Data[i] += cellSize * m.Col.At(zn.Data[i], az.Data[i], el.Data[i])
		outN.Data[i] -= cellSize * m.Row.At(zn.Data[i], az.Data[i], el.Data[i])
	}
	return outE, outN, nil
}
