package dem

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// Source answers elevation queries for whole swath grids from a TileStore.
type Source struct {
	store *TileStore
	// SeaLevelFill reads missing tiles as 0 m instead of failing.
	SeaLevelFill bool
}

// NewSource wraps store.
func NewSource(store *TileStore, seaLevelFill bool) *Source {
	return &Source{store: store, SeaLevelFill: seaLevelFill}
}

// Elevation returns the bilinear terrain height, in metres, for every
// (lon, lat) pair. Non-finite positions yield NaN.
func (s *Source) Elevation(lons, lats *model.Grid) (*model.Grid, error) {
	if err := model.CheckShapes("elevation query", lons, lats); err != nil {
		return nil, err
	}
	out := model.NewGrid(lons.Rows, lons.Cols)
	for i := range out.Data {
		lon, lat := lons.Data[i], lats.Data[i]
		if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
			out.Data[i] = math.NaN()
			continue
		}
		h, err := s.At(lon, lat)
		if err != nil {
			return nil, err
		}
		out.Data[i] = h
	}
	return out, nil
}

// At returns the height at one position.
func (s *Source) At(lon, lat float64) (float64, error) {
	tl, tn := TileFor(lon, lat)
	t, err := s.store.Tile(tl, tn)
	if err != nil {
		if s.SeaLevelFill && isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("elevation at (%.5f, %.5f): %w", lon, lat, err)
	}
	return t.At(lon, lat), nil
}
