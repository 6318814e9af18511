package timectrl

import (
	"fmt"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// Track is the result of aligning telemetry with scan lines.
type Track struct {
	// Ground and Satellite are the fitted time models, both in UTC
	// seconds of day on the same day frame.
	Ground, Satellite model.TimeModel
	// LineTimes is Ground evaluated at every line ordinal.
	LineTimes []float64
	// Positions is the satellite ECEF position at every line time.
	Positions []model.ECEF
}

// AlignScene converts raw archive time stamps (MJD2000 days for lines, GPS
// week/seconds for telemetry) to seconds of day and aligns them.
func AlignScene(lineDays []float64, telemetry []model.SatellitePositionSample, leapSeconds float64) (*Track, error) {
	lineSec := make([]float64, len(lineDays))
	for i, d := range lineDays {
		lineSec[i] = MJD2000ToSecondsOfDay(d)
	}
	satSec := make([]float64, len(telemetry))
	pos := make([]model.ECEF, len(telemetry))
	for i, s := range telemetry {
		satSec[i] = GPSToSecondsOfDay(s.Week, s.Seconds, leapSeconds)
		pos[i] = model.ECEF{X: s.X, Y: s.Y, Z: s.Z}
	}
	return Align(lineSec, satSec, pos)
}

// Align fits a line to the ground line times and another to the satellite
// sample times, smooths each position axis with its own line over the
// sample ordinal, then interpolates the smoothed positions over the fitted
// satellite time axis at every fitted line time. Lines outside the
// telemetry window are linearly extrapolated.
func Align(lineSeconds, satSeconds []float64, positions []model.ECEF) (*Track, error) {
	if len(satSeconds) != len(positions) {
		return nil, fmt.Errorf("align: %d telemetry times vs %d positions: %w",
			len(satSeconds), len(positions), model.ErrShapeMismatch)
	}
	if len(lineSeconds) < 2 {
		return nil, fmt.Errorf("align: %d scan lines: %w", len(lineSeconds), ErrInsufficientSamples)
	}
	if len(satSeconds) < 2 {
		return nil, fmt.Errorf("align: %d telemetry samples: %w", len(satSeconds), ErrInsufficientSamples)
	}

	lines := UnwrapDay(lineSeconds)
	sats := sameDayFrame(lines, UnwrapDay(satSeconds))

	ground, err := FitSequence(lines)
	if err != nil {
		return nil, fmt.Errorf("fit ground time: %w", err)
	}
	satellite, err := FitSequence(sats)
	if err != nil {
		return nil, fmt.Errorf("fit satellite time: %w", err)
	}

	lineTimes := Evaluate(ground, len(lines))
	satTimes := Evaluate(satellite, len(sats))

	axes := [3][]float64{
		make([]float64, len(positions)),
		make([]float64, len(positions)),
		make([]float64, len(positions)),
	}
	for i, p := range positions {
		axes[0][i], axes[1][i], axes[2][i] = p.X, p.Y, p.Z
	}

	var perLine [3][]float64
	for a, values := range axes {
		fit, err := FitSequence(values)
		if err != nil {
			return nil, fmt.Errorf("fit position axis %d: %w", a, err)
		}
		ip, err := NewInterpolator(satTimes, Evaluate(fit, len(values)), ExtrapolateLinear)
		if err != nil {
			return nil, fmt.Errorf("position axis %d: %w", a, err)
		}
		if perLine[a], err = ip.AtAll(lineTimes); err != nil {
			return nil, err
		}
	}

	out := make([]model.ECEF, len(lineTimes))
	for i := range out {
		out[i] = model.ECEF{X: perLine[0][i], Y: perLine[1][i], Z: perLine[2][i]}
	}
	return &Track{
		Ground:    ground,
		Satellite: satellite,
		LineTimes: lineTimes,
		Positions: out,
	}, nil
}

// sameDayFrame shifts the satellite series by whole days so that its first
// sample lies within half a day of the first line.
func sameDayFrame(lines, sats []float64) []float64 {
	if len(lines) == 0 || len(sats) == 0 {
		return sats
	}
	var shift float64
	for d := sats[0] - lines[0]; d > secondsPerDay/2; d -= secondsPerDay {
		shift -= secondsPerDay
	}
	for d := sats[0] - lines[0]; d < -secondsPerDay/2; d += secondsPerDay {
		shift += secondsPerDay
	}
	if shift == 0 {
		return sats
	}
	out := make([]float64, len(sats))
	for i, s := range sats {
		out[i] = s + shift
	}
	return out
}
