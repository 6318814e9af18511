package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/swath-geolocator/model"
	"github.com/signalsfoundry/swath-geolocator/timectrl"
)

// ErrPropagation is returned when SGP4 yields a non-finite state.
var ErrPropagation = errors.New("sgp4 propagation failed")

// OrbitalSGP4Model propagates a two-line element set. It stands in for the
// archive's own position telemetry when synthesising scenes.
type OrbitalSGP4Model struct {
	sat satellite.Satellite
}

// NewOrbitalModelFromTLE constructs an orbital model from TLE lines.
func NewOrbitalModelFromTLE(line1, line2 string) *OrbitalSGP4Model {
	return &OrbitalSGP4Model{sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS72)}
}

// PositionAt returns the ECEF position in metres at t. go-satellite works
// in kilometres and whole seconds.
func (m *OrbitalSGP4Model) PositionAt(t time.Time) (model.ECEF, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	p := model.ECEF{X: posECEF.X * kmToM, Y: posECEF.Y * kmToM, Z: posECEF.Z * kmToM}
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
		return model.ECEF{}, fmt.Errorf("propagate to %s: %w", t.Format(time.RFC3339), ErrPropagation)
	}
	return p, nil
}

// Telemetry samples the orbit n times from start at the given step, stamping
// each sample with GPS week/seconds the way the archive does.
func (m *OrbitalSGP4Model) Telemetry(start time.Time, step time.Duration, n int, leapSeconds float64) ([]model.SatellitePositionSample, error) {
	out := make([]model.SatellitePositionSample, 0, n)
	for i := 0; i < n; i++ {
		t := start.Add(time.Duration(i) * step)
		p, err := m.PositionAt(t)
		if err != nil {
			return nil, err
		}
		week, sec := timectrl.TimeToGPS(t, leapSeconds)
		out = append(out, model.SatellitePositionSample{Week: week, Seconds: sec, X: p.X, Y: p.Y, Z: p.Z})
	}
	return out, nil
}
