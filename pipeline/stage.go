package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/model"
)

// ErrStageTransition is returned when a scene is moved through the stage
// machine out of order.
var ErrStageTransition = errors.New("invalid stage transition")

// Stage is where a scene's geolocation stands.
type Stage int

const (
	// StageRaw is geolocation as delivered by the archive.
	StageRaw Stage = iota
	// StageCorrected is geolocation after the offset model was applied and
	// every dependent layer recomputed.
	StageCorrected
)

func (s Stage) String() string {
	switch s {
	case StageRaw:
		return "raw"
	case StageCorrected:
		return "corrected"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// viewInputs are the parts of the geometry computation that do not depend
// on where the pixels are.
type viewInputs struct {
	satellite   []model.ECEF
	lineSeconds []float64
	meanTime    time.Time
	zone        core.Zone
}

// sceneState pairs a geolocation grid with the geometry derived from it.
// States are immutable; a transition returns a new state.
type sceneState struct {
	stage    Stage
	geo      *model.GeolocationGrid
	geometry *core.Geometry
}

func computeState(stage Stage, geo *model.GeolocationGrid, in viewInputs) (*sceneState, error) {
	g, err := core.ComputeGeometry(core.GeometryInput{
		Geo:         geo,
		Satellite:   in.satellite,
		LineSeconds: in.lineSeconds,
		MeanTime:    in.meanTime,
		Zone:        in.zone,
	})
	if err != nil {
		return nil, fmt.Errorf("%s geometry: %w", stage, err)
	}
	return &sceneState{stage: stage, geo: geo, geometry: g}, nil
}

// newRawState computes the geometry of the uncorrected swath.
func newRawState(geo *model.GeolocationGrid, in viewInputs) (*sceneState, error) {
	return computeState(StageRaw, geo, in)
}

// correct moves a raw scene to the corrected stage. Every geometry layer,
// solar angles included, is recomputed from the corrected grid.
func (s *sceneState) correct(geo *model.GeolocationGrid, in viewInputs) (*sceneState, error) {
	if s.stage != StageRaw {
		return nil, fmt.Errorf("%s -> %s: %w", s.stage, StageCorrected, ErrStageTransition)
	}
	if err := model.CheckShapes("corrected geolocation", s.geo.Longitude, geo.Longitude); err != nil {
		return nil, err
	}
	return computeState(StageCorrected, geo, in)
}
