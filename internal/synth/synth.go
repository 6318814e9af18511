// Package synth fabricates raw scenes from a two-line element set so the
// pipeline can be run end to end without archive data.
package synth

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/model"
	"github.com/signalsfoundry/swath-geolocator/timectrl"
)

// ErrOptions is returned for options that cannot produce a scene.
var ErrOptions = errors.New("invalid synthetic scene options")

const earthRadius = 6371008.8

// Options describes the scene to fabricate.
type Options struct {
	ID         string
	TLE1, TLE2 string
	// Start is the time of the first scan line.
	Start          time.Time
	Lines, Samples int
	LinePeriod     time.Duration
	// GSD is the cross-track pixel spacing in metres.
	GSD float64
	// VNIRBands and SWIRBands are stored with wavelengths descending, the
	// way the detector reads them out.
	VNIRBands, SWIRBands int
	TelemetryStep        time.Duration
	LeapSeconds          float64
}

// DefaultOptions returns a small ISS-like scene.
func DefaultOptions() Options {
	return Options{
		ID:            "SYNTH_0001",
		TLE1:          "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990",
		TLE2:          "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760",
		Start:         time.Date(2021, time.October, 2, 14, 30, 0, 0, time.UTC),
		Lines:         256,
		Samples:       256,
		LinePeriod:    4340 * time.Microsecond,
		GSD:           30,
		VNIRBands:     24,
		SWIRBands:     32,
		TelemetryStep: time.Second,
		LeapSeconds:   timectrl.DefaultGPSLeapSeconds,
	}
}

func (o Options) validate() error {
	switch {
	case o.Lines < 2 || o.Samples < 1:
		return fmt.Errorf("%dx%d swath: %w", o.Lines, o.Samples, ErrOptions)
	case o.VNIRBands < 10 || o.SWIRBands < 8:
		return fmt.Errorf("%d vnir and %d swir bands, need at least 10 and 8: %w", o.VNIRBands, o.SWIRBands, ErrOptions)
	case o.LinePeriod <= 0 || o.TelemetryStep <= 0 || !(o.GSD > 0):
		return fmt.Errorf("non-positive period, step or gsd: %w", ErrOptions)
	}
	return nil
}

// Scene propagates the orbit over the acquisition, lays a nadir-centred
// swath across the ground track and fills both sub-cubes with a smooth
// pattern.
func Scene(o Options) (*model.Scene, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	orbit := core.NewOrbitalModelFromTLE(o.TLE1, o.TLE2)

	// Telemetry starts two samples early and ends a few late so every line
	// is bracketed.
	span := time.Duration(o.Lines) * o.LinePeriod
	n := int(span/o.TelemetryStep) + 5
	first := o.Start.Add(-2 * o.TelemetryStep)
	telemetry, err := orbit.Telemetry(first, o.TelemetryStep, n, o.LeapSeconds)
	if err != nil {
		return nil, err
	}
	track, err := newTrack(telemetry, first, o.TelemetryStep, o.Start)
	if err != nil {
		return nil, err
	}

	lon := model.NewGrid(o.Lines, o.Samples)
	lat := model.NewGrid(o.Lines, o.Samples)
	days := make([]float64, o.Lines)
	for l := 0; l < o.Lines; l++ {
		t := (time.Duration(l) * o.LinePeriod).Seconds()
		days[l] = timectrl.TimeToMJD2000(o.Start.Add(time.Duration(l) * o.LinePeriod))
		sub, crossE, crossN, err := track.nadir(t)
		if err != nil {
			return nil, err
		}
		for s := 0; s < o.Samples; s++ {
			off := (float64(s) - float64(o.Samples-1)/2) * o.GSD
			la := sub.Lat + off*crossN/earthRadius*180/math.Pi
			lo := sub.Lon + off*crossE/(earthRadius*math.Cos(la*math.Pi/180))*180/math.Pi
			lon.Set(l, s, lo)
			lat.Set(l, s, la)
		}
	}

	vnirWaves, vnirFWHM := descending(1000, 400, o.VNIRBands, 10)
	swirWaves, swirFWHM := descending(2500, 920, o.SWIRBands, 12)
	return &model.Scene{
		ID:        o.ID,
		VNIR:      fill(lon, lat, vnirWaves),
		SWIR:      fill(lon, lat, swirWaves),
		VNIRWaves: vnirWaves,
		SWIRWaves: swirWaves,
		VNIRFWHM:  vnirFWHM,
		SWIRFWHM:  swirFWHM,
		LineTimes: days,
		Longitude: lon,
		Latitude:  lat,
		Telemetry: telemetry,
	}, nil
}

// track interpolates the whole-second SGP4 samples to any line time.
type track struct {
	axes [3]*timectrl.Interpolator
}

func newTrack(samples []model.SatellitePositionSample, first time.Time, step time.Duration, start time.Time) (*track, error) {
	ts := make([]float64, len(samples))
	var vals [3][]float64
	for a := range vals {
		vals[a] = make([]float64, len(samples))
	}
	offset := first.Sub(start).Seconds()
	for i, s := range samples {
		ts[i] = offset + float64(i)*step.Seconds()
		vals[0][i], vals[1][i], vals[2][i] = s.X, s.Y, s.Z
	}
	tr := &track{}
	for a := range vals {
		ip, err := timectrl.NewInterpolator(ts, vals[a], timectrl.ExtrapolateLinear)
		if err != nil {
			return nil, err
		}
		tr.axes[a] = ip
	}
	return tr, nil
}

func (tr *track) at(t float64) (core.Vec3, error) {
	var v [3]float64
	for a, ip := range tr.axes {
		x, err := ip.At(t)
		if err != nil {
			return core.Vec3{}, err
		}
		v[a] = x
	}
	return core.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// nadir returns the sub-satellite point at t and the unit vector, in local
// east/north components, pointing right of the direction of travel.
func (tr *track) nadir(t float64) (core.Geodetic, float64, float64, error) {
	p, err := tr.at(t)
	if err != nil {
		return core.Geodetic{}, 0, 0, err
	}
	q, err := tr.at(t + 1)
	if err != nil {
		return core.Geodetic{}, 0, 0, err
	}
	sub := core.ECEFToGeodetic(p)
	v := core.ECEFToENU(q.Sub(p), sub.Lon, sub.Lat)
	h := math.Hypot(v.X, v.Y)
	if h == 0 {
		return core.Geodetic{}, 0, 0, fmt.Errorf("stationary ground track at %v s: %w", t, ErrOptions)
	}
	return sub, v.Y / h, -v.X / h, nil
}

func descending(hi, lo float64, n int, fwhm float64) ([]float64, []float64) {
	waves := make([]float64, n)
	widths := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for b := range waves {
		waves[b] = hi - float64(b)*step
		widths[b] = fwhm
	}
	return waves, widths
}

// fill writes radiance in archive units (scaled by 1000) for a ground
// pattern that repeats every few hundred metres.
func fill(lon, lat *model.Grid, waves []float64) *model.Cube {
	c := model.NewCube(lon.Rows, len(waves), lon.Cols)
	for l := 0; l < lon.Rows; l++ {
		for s := 0; s < lon.Cols; s++ {
			lo, la := lon.At(l, s)*math.Pi/180, lat.At(l, s)*math.Pi/180
			ground := 2 + math.Sin(lo*earthRadius/250) + math.Cos(la*earthRadius/330)
			for b, w := range waves {
				c.Set(l, b, s, float32(1000*ground*(1+w/2500)))
			}
		}
	}
	return c
}
