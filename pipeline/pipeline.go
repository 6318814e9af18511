package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/coreg"
	"github.com/signalsfoundry/swath-geolocator/internal/logging"
	"github.com/signalsfoundry/swath-geolocator/internal/observability"
	"github.com/signalsfoundry/swath-geolocator/model"
	"github.com/signalsfoundry/swath-geolocator/projector"
	"github.com/signalsfoundry/swath-geolocator/smile"
	"github.com/signalsfoundry/swath-geolocator/timectrl"
)

// ErrMissingDependency is returned by New when a required collaborator is
// nil.
var ErrMissingDependency = errors.New("missing pipeline dependency")

// Stage names used for spans, metrics and logs.
const (
	stageScene     = "scene"
	stageRead      = "read"
	stageAlign     = "align"
	stageAssemble  = "assemble"
	stageElevation = "elevation"
	stageGeometry  = "geometry"
	stageCoreg     = "coreg"
	stageProject   = "project"
	stageWrite     = "write"
)

// Product kinds, appended to the scene ID to name each product.
const (
	productRadiance = "rad"
	productLocation = "loc"
	productObserved = "obs"
)

// Reasons a co-registration was skipped.
const (
	SkipNoOverlap = "no_overlap"
	SkipNoMatch   = "no_match"
)

// LocationNames is the layer order of the location product.
var LocationNames = []string{"longitude (WGS-84)", "latitude (WGS-84)", "elevation (m)"}

// ArchiveOpener prepares a scene inside a workspace directory, for example
// by unpacking a zipped product into it.
type ArchiveOpener func(ctx context.Context, workspace string) (ArchiveReader, error)

// Deps are the collaborators of a run.
type Deps struct {
	Open      ArchiveOpener
	Elevation ElevationSource
	// Reference may be nil, in which case co-registration is skipped.
	Reference ReferenceSource
	Writer    ProductWriter
	// SmileSurface, when set, enables smile correction.
	SmileSurface *model.Grid

	Logger  logging.Logger
	Metrics *observability.PipelineCollector
}

// Pipeline processes scenes with a fixed configuration.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  logging.Logger
}

// Result summarises one processed scene.
type Result struct {
	SceneID string
	RunID   string
	Stage   Stage
	Zone    core.Zone
	// Grid is the grid the products were written on. It is zero for
	// products left in swath geometry.
	Grid projector.GridSpec
	// Offset is the applied offset model, nil when co-registration did not
	// run or was skipped.
	Offset *model.OffsetModel
	// CoregSkipped names why co-registration was skipped, if it was.
	CoregSkipped string
	// Raw is the geolocation before correction and Final the one the
	// products were projected from. They are the same grid when no
	// correction was applied.
	Raw, Final *model.GeolocationGrid
	Products   []string
}

// New validates cfg and returns a pipeline bound to deps.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Open == nil:
		return nil, fmt.Errorf("archive: %w", ErrMissingDependency)
	case deps.Elevation == nil:
		return nil, fmt.Errorf("elevation: %w", ErrMissingDependency)
	case deps.Writer == nil:
		return nil, fmt.Errorf("writer: %w", ErrMissingDependency)
	}
	log := deps.Logger
	if log == nil {
		log = logging.Noop()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: log}, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// scene carries intermediate products between stages of one run.
type scene struct {
	raw      *model.Scene
	track    *timectrl.Track
	in       viewInputs
	lon, lat *model.Grid
	assembly *smile.Result
	state    *sceneState
}

// Run processes one scene end to end. The scene workspace is released on
// every return path, after the failure has been logged.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	ctx, runID := logging.EnsureRunID(ctx)
	log := p.log.With(logging.String("run_id", runID))
	ctx, span := observability.StartStage(ctx, stageScene)
	defer func() { observability.EndStage(span, err) }()

	ws, err := NewWorkspace(p.cfg.WorkDir, "scene", p.cfg.KeepWorkspace)
	if err != nil {
		p.deps.Metrics.ObserveScene(observability.OutcomeFailed)
		return nil, err
	}
	defer func() { ws.Release(ctx, log) }()
	defer func() {
		if err != nil {
			log.Error(ctx, "scene failed", logging.Err(err))
			p.deps.Metrics.ObserveScene(observability.OutcomeFailed)
			return
		}
		p.deps.Metrics.ObserveScene(observability.OutcomeSuccess)
	}()

	res = &Result{RunID: runID}
	sc := &scene{}

	if err = p.stage(ctx, log, stageRead, func(ctx context.Context) error {
		reader, err := p.deps.Open(ctx, ws.Dir)
		if err != nil {
			return err
		}
		sc.raw, err = reader.ReadScene(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	res.SceneID = sc.raw.ID
	ctx, log = logging.WithSceneLogger(ctx, p.log, sc.raw.ID)
	log.Info(ctx, "scene opened",
		logging.Int("lines", sc.raw.VNIR.Lines),
		logging.Int("samples", sc.raw.VNIR.Samples),
		logging.Int("telemetry", len(sc.raw.Telemetry)))

	if err = p.stage(ctx, log, stageAlign, func(context.Context) error { return p.align(sc) }); err != nil {
		return nil, err
	}
	if err = p.stage(ctx, log, stageAssemble, func(ctx context.Context) error {
		var err error
		sc.assembly, err = smile.Assemble(ctx, sc.raw, p.deps.SmileSurface, p.cfg.Smile)
		return err
	}); err != nil {
		return nil, err
	}

	var geo *model.GeolocationGrid
	if err = p.stage(ctx, log, stageElevation, func(context.Context) error {
		elev, err := p.deps.Elevation.Elevation(sc.lon, sc.lat)
		if err != nil {
			return err
		}
		geo = &model.GeolocationGrid{Longitude: sc.lon, Latitude: sc.lat, Elevation: elev}
		sc.in.zone, err = core.ZoneForScene(sc.lon, sc.lat)
		return err
	}); err != nil {
		return nil, err
	}
	res.Zone = sc.in.zone

	if err = p.stage(ctx, log, stageGeometry, func(context.Context) error {
		var err error
		sc.state, err = newRawState(geo, sc.in)
		return err
	}); err != nil {
		return nil, err
	}
	res.Raw = sc.state.geo

	if p.cfg.Coreg && p.deps.Reference != nil {
		if err = p.stage(ctx, log, stageCoreg, func(ctx context.Context) error {
			return p.coregister(ctx, log, sc, res)
		}); err != nil {
			return nil, err
		}
	} else {
		log.Info(ctx, "co-registration disabled")
	}
	res.Stage = sc.state.stage
	res.Final = sc.state.geo

	var products map[string]*model.Product
	if err = p.stage(ctx, log, stageProject, func(ctx context.Context) error {
		var err error
		if p.cfg.Project {
			products, res.Grid, err = p.project(ctx, sc)
		} else {
			products = p.swathProducts(sc)
		}
		return err
	}); err != nil {
		return nil, err
	}

	if err = p.stage(ctx, log, stageWrite, func(ctx context.Context) error {
		return p.write(ctx, log, sc.raw.ID, products, res)
	}); err != nil {
		return nil, err
	}

	log.Info(ctx, "scene complete",
		logging.String("stage", res.Stage.String()),
		logging.String("zone", res.Zone.String()),
		logging.Int("products", len(res.Products)))
	return res, nil
}

// write stores the three products. They form one output, so when any write
// fails every product of the scene, including the failed one, is removed
// again before the error is returned.
func (p *Pipeline) write(ctx context.Context, log logging.Logger, id string, products map[string]*model.Product, res *Result) error {
	var written []string
	for _, kind := range []string{productRadiance, productLocation, productObserved} {
		name := id + "_" + kind
		written = append(written, name)
		if err := p.deps.Writer.WriteProduct(ctx, name, products[kind]); err != nil {
			p.discard(ctx, log, written)
			return fmt.Errorf("product %s: %w", name, err)
		}
	}
	res.Products = written
	return nil
}

// discard removes products of a failed write. It runs detached from the
// run context, which may be the reason the write failed.
func (p *Pipeline) discard(ctx context.Context, log logging.Logger, names []string) {
	ctx = context.WithoutCancel(ctx)
	for i := len(names) - 1; i >= 0; i-- {
		if err := p.deps.Writer.DeleteProduct(ctx, names[i]); err != nil {
			log.Error(ctx, "removing partial product failed",
				logging.String("product", names[i]), logging.Err(err))
		}
	}
}

// stage runs fn inside a span, records its duration and logs completion.
func (p *Pipeline) stage(ctx context.Context, log logging.Logger, name string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := observability.StartStage(ctx, name)
	err := fn(ctx)
	observability.EndStage(span, err)
	d := time.Since(start)
	p.deps.Metrics.ObserveStage(name, d)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Debug(ctx, "stage complete", logging.String("stage", name), logging.Duration("duration", d))
	return nil
}

// align fits the time models and trims the swath border from every
// per-line and per-pixel input.
func (p *Pipeline) align(sc *scene) error {
	track, err := timectrl.AlignScene(sc.raw.LineTimes, sc.raw.Telemetry, p.cfg.GPSLeapSeconds)
	if err != nil {
		return err
	}
	n, t := len(track.LineTimes), p.cfg.Trim
	if n-2*t <= 0 {
		return fmt.Errorf("cannot trim %d lines from %d: %w", t, n, model.ErrShapeMismatch)
	}
	sc.track = track
	sc.in.satellite = append([]model.ECEF(nil), track.Positions[t:n-t]...)
	sc.in.lineSeconds = append([]float64(nil), track.LineTimes[t:n-t]...)
	sc.in.meanTime = timectrl.MeanTime(sc.raw.LineTimes[t : n-t])

	if sc.lon, err = sc.raw.Longitude.Trim(t); err != nil {
		return fmt.Errorf("longitude: %w", err)
	}
	if sc.lat, err = sc.raw.Latitude.Trim(t); err != nil {
		return fmt.Errorf("latitude: %w", err)
	}
	return nil
}

// coregister estimates the offset model on the base grid and, when it can
// be fitted, moves the scene to the corrected stage. A reference that does
// not overlap or does not match leaves the scene raw.
func (p *Pipeline) coregister(ctx context.Context, log logging.Logger, sc *scene, res *Result) error {
	raw := sc.state
	view := raw.geometry.View
	spec, err := projector.GridFor(raw.geometry.East, raw.geometry.North, p.cfg.CellSize, p.cfg.Margin, sc.in.zone)
	if err != nil {
		return err
	}
	idx, err := projector.NewIndex(ctx, raw.geometry.East, raw.geometry.North, spec)
	if err != nil {
		return err
	}

	warp, err := coreg.WarpBand(sc.assembly.Cube, sc.assembly.Wavelength)
	if err != nil {
		return err
	}
	warpR, err := idx.Project(warp, p.cfg.NoData)
	if err != nil {
		return err
	}
	coreg.Normalize(warpR)

	ref, err := p.deps.Reference.Resample(spec, sc.in.zone)
	if err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	if err := model.CheckShapes("reference", warpR.Grid, ref); err != nil {
		return err
	}
	refR := &model.OutputRaster{Grid: ref.Clone(), NoData: p.cfg.NoData, Map: spec.MapInfo()}
	for i, v := range refR.Data {
		if math.IsNaN(v) {
			refR.Data[i] = p.cfg.NoData
		}
	}

	cov, err := idx.ProjectAll(ctx, []*model.Grid{view.SensorZenith, view.SensorAzimuth, raw.geo.Elevation}, p.cfg.NoData, p.cfg.Workers)
	if err != nil {
		return err
	}

	est, err := coreg.Estimate(ctx, coreg.Inputs{
		Warp:      warpR,
		Reference: refR,
		Zenith:    cov[0],
		Azimuth:   cov[1],
		Elevation: cov[2],
	}, p.cfg.CoregParams)
	switch {
	case errors.Is(err, coreg.ErrNoOverlap) && !p.cfg.RequireOverlap:
		p.skipCoreg(ctx, log, res, SkipNoOverlap, err)
		return nil
	case errors.Is(err, coreg.ErrNoMatch):
		p.skipCoreg(ctx, log, res, SkipNoMatch, err)
		return nil
	case err != nil:
		return err
	}

	east, north, err := coreg.Apply(raw.geometry.East, raw.geometry.North, coreg.Surfaces{
		Zenith:    view.SensorZenith,
		Azimuth:   view.SensorAzimuth,
		Elevation: raw.geo.Elevation,
	}, est.Model, p.cfg.CellSize, p.cfg.Smoothing)
	if err != nil {
		return err
	}
	lon, lat, err := core.UTMToGrid(east, north, sc.in.zone)
	if err != nil {
		return err
	}
	elev, err := p.deps.Elevation.Elevation(lon, lat)
	if err != nil {
		return fmt.Errorf("corrected elevation: %w", err)
	}
	corrected, err := raw.correct(&model.GeolocationGrid{Longitude: lon, Latitude: lat, Elevation: elev}, sc.in)
	if err != nil {
		return err
	}
	sc.state = corrected

	m := est.Model
	res.Offset = &m
	meanRow, meanCol := meanShift(est.Tiles)
	p.deps.Metrics.SetCoregModel(m.Tiles, meanRow, meanCol)
	log.Info(ctx, "co-registration applied",
		logging.Int("tiles", m.Tiles),
		logging.Float64("coverage", idx.Coverage()),
		logging.Float64("mean_row_shift", meanRow),
		logging.Float64("mean_col_shift", meanCol))
	return nil
}

func (p *Pipeline) skipCoreg(ctx context.Context, log logging.Logger, res *Result, reason string, err error) {
	res.CoregSkipped = reason
	p.deps.Metrics.IncCoregSkipped(reason)
	log.Warn(ctx, "co-registration skipped, keeping uncorrected geolocation",
		logging.String("reason", reason), logging.Err(err))
}

func meanShift(tiles []coreg.Tile) (row, col float64) {
	if len(tiles) == 0 {
		return 0, 0
	}
	for _, t := range tiles {
		row += float64(t.DRow)
		col += float64(t.DCol)
	}
	n := float64(len(tiles))
	return row / n, col / n
}

// project resamples every layer onto the map grid through one shared index
// and block-averages to the requested resolution.
func (p *Pipeline) project(ctx context.Context, sc *scene) (map[string]*model.Product, projector.GridSpec, error) {
	g := sc.state.geometry
	spec, err := projector.GridFor(g.East, g.North, p.cfg.CellSize, p.cfg.Margin, sc.in.zone)
	if err != nil {
		return nil, projector.GridSpec{}, err
	}
	idx, err := projector.NewIndex(ctx, g.East, g.North, spec)
	if err != nil {
		return nil, projector.GridSpec{}, err
	}

	cube := sc.assembly.Cube
	bands := make([]*model.Grid, cube.Bands)
	for b := range bands {
		bands[b] = cube.Band(b)
	}
	geo := sc.state.geo
	layers := map[string][]*model.Grid{
		productRadiance: bands,
		productLocation: {geo.Longitude, geo.Latitude, geo.Elevation},
		productObserved: g.View.Layers(),
	}

	factor, err := projector.BlockFactor(p.cfg.Resolution, p.cfg.CellSize)
	if err != nil {
		return nil, projector.GridSpec{}, err
	}

	out := make(map[string]*model.Product, len(layers))
	for kind, src := range layers {
		rasters, err := idx.ProjectAll(ctx, src, p.cfg.NoData, p.cfg.Workers)
		if err != nil {
			return nil, projector.GridSpec{}, fmt.Errorf("%s: %w", kind, err)
		}
		// Radiance goes through the block pass even at the native cell size
		// so negatives are clamped at every resolution.
		if factor > 1 || kind == productRadiance {
			for i, r := range rasters {
				if rasters[i], err = projector.BlockAverage(r, factor, kind == productRadiance); err != nil {
					return nil, projector.GridSpec{}, fmt.Errorf("%s: %w", kind, err)
				}
			}
		}
		p.deps.Metrics.SetNoDataFraction(kind, 1-rasters[0].ValidFraction())
		out[kind] = p.describe(kind, sc, model.ProductFromRasters(description(kind, sc.raw.ID), rasters, nil))
	}
	return out, spec.Coarsen(factor), nil
}

// swathProducts packages the layers unprojected, one value per trimmed
// swath pixel.
func (p *Pipeline) swathProducts(sc *scene) map[string]*model.Product {
	cube := sc.assembly.Cube
	bands := make([]*model.Grid, cube.Bands)
	for b := range bands {
		bands[b] = cube.Band(b)
	}
	geo := sc.state.geo
	layers := map[string][]*model.Grid{
		productRadiance: bands,
		productLocation: {geo.Longitude, geo.Latitude, geo.Elevation},
		productObserved: sc.state.geometry.View.Layers(),
	}
	out := make(map[string]*model.Product, len(layers))
	for kind, l := range layers {
		out[kind] = p.describe(kind, sc, &model.Product{Description: description(kind, sc.raw.ID), Bands: l})
	}
	return out
}

// describe fills the per-kind band metadata shared by both geometries.
func (p *Pipeline) describe(kind string, sc *scene, prod *model.Product) *model.Product {
	prod.Interleave = p.cfg.Interleave
	switch kind {
	case productRadiance:
		prod.Wavelength = sc.assembly.Wavelength
		prod.FWHM = sc.assembly.FWHM
	case productLocation:
		prod.BandNames = LocationNames
	case productObserved:
		prod.BandNames = model.ObservableNames
	}
	return prod
}

func description(kind, id string) string {
	switch kind {
	case productRadiance:
		return "at-sensor radiance " + id
	case productLocation:
		return "pixel location " + id
	default:
		return "observation geometry " + id
	}
}
