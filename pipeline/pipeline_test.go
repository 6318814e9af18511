package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/coreg"
	"github.com/signalsfoundry/swath-geolocator/internal/observability"
	"github.com/signalsfoundry/swath-geolocator/model"
	"github.com/signalsfoundry/swath-geolocator/projector"
	"github.com/signalsfoundry/swath-geolocator/timectrl"
)

const (
	testLines   = 160
	testSamples = 140
	pixelMetres = 25.0
	demHeight   = 200.0
	firstDay    = 9000.75
	lineStep    = 0.004
)

var (
	originLon = -117.02
	originLat = 40.0
	stepLat   = pixelMetres / 111000.0
	stepLon   = pixelMetres / (111320.0 * math.Cos(originLat*math.Pi/180))
	testZone  = core.ZoneFor(originLon, originLat)
)

// ground is a smooth pattern defined everywhere in the test zone.
func ground(east, north float64) float64 {
	return 2 + math.Sin(2*math.Pi*east/250) + math.Cos(2*math.Pi*north/330) +
		0.5*math.Sin(2*math.Pi*(east+north)/410)
}

// testScene builds a raw scene whose pixels image the ground (dE, dN) metres
// away from where their geolocation says they are.
func testScene(t *testing.T, dE, dN float64) *model.Scene {
	t.Helper()
	lon := model.NewGrid(testLines, testSamples)
	lat := model.NewGrid(testLines, testSamples)
	vnirWaves := make([]float64, 10)
	swirWaves := make([]float64, 8)
	for b := range vnirWaves {
		vnirWaves[b] = 600 + 30*float64(b)
	}
	for b := range swirWaves {
		swirWaves[b] = 900 + 100*float64(b)
	}
	vnir := model.NewCube(testLines, len(vnirWaves), testSamples)
	swir := model.NewCube(testLines, len(swirWaves), testSamples)

	for r := 0; r < testLines; r++ {
		for c := 0; c < testSamples; c++ {
			lo, la := originLon+float64(c)*stepLon, originLat-float64(r)*stepLat
			lon.Set(r, c, lo)
			lat.Set(r, c, la)
			e, n, err := core.GeodeticToUTM(lo, la, testZone)
			if err != nil {
				t.Fatalf("GeodeticToUTM: %v", err)
			}
			v := float32(1000 * ground(e+dE, n+dN))
			for b := range vnirWaves {
				vnir.Set(r, b, c, v)
			}
			for b := range swirWaves {
				swir.Set(r, b, c, v)
			}
		}
	}

	days := make([]float64, testLines)
	for i := range days {
		days[i] = firstDay + float64(i)*lineStep/86400
	}
	start := timectrl.MJD2000ToTime(firstDay)
	midLon := originLon + float64(testSamples/2)*stepLon
	var telemetry []model.SatellitePositionSample
	for k := 0; k < 5; k++ {
		dt := -1 + 0.5*float64(k)
		p := core.GeodeticToECEF(midLon, originLat+0.01-0.063*dt, 600000)
		week, sec := timectrl.TimeToGPS(start.Add(time.Duration(dt*float64(time.Second))), timectrl.DefaultGPSLeapSeconds)
		telemetry = append(telemetry, model.SatellitePositionSample{Week: week, Seconds: sec, X: p.X, Y: p.Y, Z: p.Z})
	}

	fwhm := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = 10
		}
		return out
	}
	return &model.Scene{
		ID:        "TEST_0001",
		VNIR:      vnir,
		SWIR:      swir,
		VNIRWaves: vnirWaves,
		SWIRWaves: swirWaves,
		VNIRFWHM:  fwhm(len(vnirWaves)),
		SWIRFWHM:  fwhm(len(swirWaves)),
		LineTimes: days,
		Longitude: lon,
		Latitude:  lat,
		Telemetry: telemetry,
	}
}

type sceneReader struct{ scene *model.Scene }

func (r sceneReader) ReadScene(context.Context) (*model.Scene, error) { return r.scene, nil }

func openScene(s *model.Scene) ArchiveOpener {
	return func(context.Context, string) (ArchiveReader, error) { return sceneReader{scene: s}, nil }
}

type flatDEM struct {
	height float64
	err    error
	calls  int
}

func (d *flatDEM) Elevation(lons, _ *model.Grid) (*model.Grid, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return model.NewGridFilled(lons.Rows, lons.Cols, d.height), nil
}

// groundReference renders the true ground pattern on the requested grid.
type groundReference struct{}

func (groundReference) Resample(spec projector.GridSpec, _ core.Zone) (*model.Grid, error) {
	g := model.NewGrid(spec.Rows, spec.Cols)
	for r := 0; r < spec.Rows; r++ {
		for c := 0; c < spec.Cols; c++ {
			g.Set(r, c, ground(spec.CellCenter(r, c)))
		}
	}
	return g, nil
}

// emptyReference covers nothing.
type emptyReference struct{}

func (emptyReference) Resample(spec projector.GridSpec, _ core.Zone) (*model.Grid, error) {
	return model.NewGridFilled(spec.Rows, spec.Cols, math.NaN()), nil
}

type memWriter struct {
	mu       sync.Mutex
	products map[string]*model.Product
	err      error
	// failOn, when positive, fails that write call (1-based) with err after
	// storing the product, like a header write failing after the data.
	failOn  int
	calls   int
	deleted []string
}

func (w *memWriter) WriteProduct(_ context.Context, name string, p *model.Product) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil && w.failOn == 0 {
		return w.err
	}
	if w.products == nil {
		w.products = make(map[string]*model.Product)
	}
	w.products[name] = p
	if w.calls == w.failOn {
		return w.err
	}
	return nil
}

func (w *memWriter) DeleteProduct(_ context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.products, name)
	w.deleted = append(w.deleted, name)
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WorkDir = t.TempDir()
	cfg.Workers = 4
	return cfg
}

func run(t *testing.T, cfg Config, deps Deps) (*Result, error) {
	t.Helper()
	p, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p.Run(context.Background())
}

func sameValues(a, b *model.Grid) bool {
	if !a.SameShape(b) {
		return false
	}
	for i := range a.Data {
		x, y := a.Data[i], b.Data[i]
		if x != y && !(math.IsNaN(x) && math.IsNaN(y)) {
			return false
		}
	}
	return true
}

func TestRunWithoutCoregKeepsRawGeolocation(t *testing.T) {
	s := testScene(t, 0, 0)
	cfg := testConfig(t)
	cfg.Coreg = false
	w := &memWriter{}

	res, err := run(t, cfg, Deps{Open: openScene(s), Elevation: &flatDEM{height: demHeight}, Writer: w})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stage != StageRaw || res.Offset != nil || res.CoregSkipped != "" {
		t.Fatalf("result = %+v, want raw stage with no offset", res)
	}
	if res.Final != res.Raw {
		t.Fatalf("final geolocation is not the raw grid")
	}
	wantLon, _ := s.Longitude.Trim(cfg.Trim)
	wantLat, _ := s.Latitude.Trim(cfg.Trim)
	if !sameValues(res.Final.Longitude, wantLon) || !sameValues(res.Final.Latitude, wantLat) {
		t.Fatalf("final geolocation differs from trimmed archive geolocation")
	}
	if res.Zone != testZone {
		t.Fatalf("zone = %v, want %v", res.Zone, testZone)
	}

	want := map[string]int{"TEST_0001_rad": 9, "TEST_0001_loc": 3, "TEST_0001_obs": 10}
	if len(res.Products) != len(want) {
		t.Fatalf("products = %v", res.Products)
	}
	for name, bands := range want {
		p := w.products[name]
		if p == nil {
			t.Fatalf("product %s not written", name)
		}
		if len(p.Bands) != bands {
			t.Fatalf("%s has %d bands, want %d", name, len(p.Bands), bands)
		}
		if p.Map == nil || p.Map.CellSize != cfg.CellSize || p.Map.Zone != testZone.Number {
			t.Fatalf("%s map info = %+v", name, p.Map)
		}
		if rows, cols := p.Shape(); rows != res.Grid.Rows || cols != res.Grid.Cols {
			t.Fatalf("%s is %dx%d, grid is %dx%d", name, rows, cols, res.Grid.Rows, res.Grid.Cols)
		}
		if p.Interleave != model.InterleaveBIL {
			t.Fatalf("%s interleave = %q", name, p.Interleave)
		}
	}
	rad := w.products["TEST_0001_rad"]
	if len(rad.Wavelength) != 9 || rad.Wavelength[0] != 780 || rad.Wavelength[8] != 1300 {
		t.Fatalf("radiance wavelengths = %v", rad.Wavelength)
	}
}

func TestRunSkippedCoregMatchesDisabledCoreg(t *testing.T) {
	s := testScene(t, 0, 0)

	off := testConfig(t)
	off.Coreg = false
	disabled, err := run(t, off, Deps{Open: openScene(s), Elevation: &flatDEM{height: demHeight}, Writer: &memWriter{}})
	if err != nil {
		t.Fatalf("Run without coreg: %v", err)
	}

	metrics, err := observability.NewPipelineCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	on := testConfig(t)
	skipped, err := run(t, on, Deps{
		Open:      openScene(s),
		Elevation: &flatDEM{height: demHeight},
		Reference: emptyReference{},
		Writer:    &memWriter{},
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("Run with empty reference: %v", err)
	}
	if skipped.CoregSkipped != SkipNoOverlap || skipped.Stage != StageRaw {
		t.Fatalf("skip = %q stage = %v", skipped.CoregSkipped, skipped.Stage)
	}
	a, b := disabled.Final, skipped.Final
	if !sameValues(a.Longitude, b.Longitude) || !sameValues(a.Latitude, b.Latitude) || !sameValues(a.Elevation, b.Elevation) {
		t.Fatalf("skipped co-registration changed geolocation")
	}
	if got := testutil.ToFloat64(metrics.CoregSkipped.WithLabelValues(SkipNoOverlap)); got != 1 {
		t.Fatalf("coreg skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Scenes.WithLabelValues(observability.OutcomeSuccess)); got != 1 {
		t.Fatalf("successful scenes = %v, want 1", got)
	}
}

func TestRunAppliesCoregistration(t *testing.T) {
	const dE, dN = 60.0, -30.0
	s := testScene(t, dE, dN)
	dem := &flatDEM{height: demHeight}
	cfg := testConfig(t)

	res, err := run(t, cfg, Deps{Open: openScene(s), Elevation: dem, Reference: groundReference{}, Writer: &memWriter{}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stage != StageCorrected || res.Offset == nil {
		t.Fatalf("stage = %v offset = %v skipped = %q", res.Stage, res.Offset, res.CoregSkipped)
	}
	if dem.calls != 2 {
		t.Fatalf("elevation queried %d times, want 2", dem.calls)
	}

	wantLon, _ := s.Longitude.Trim(cfg.Trim)
	if !sameValues(res.Raw.Longitude, wantLon) {
		t.Fatalf("raw geolocation was modified by correction")
	}

	rawE, rawN, _, err := core.GridToUTM(res.Raw, res.Zone)
	if err != nil {
		t.Fatalf("raw UTM: %v", err)
	}
	finE, finN, _, err := core.GridToUTM(res.Final, res.Zone)
	if err != nil {
		t.Fatalf("final UTM: %v", err)
	}
	var sumE, sumN float64
	for i := range rawE.Data {
		sumE += finE.Data[i] - rawE.Data[i]
		sumN += finN.Data[i] - rawN.Data[i]
	}
	n := float64(rawE.Len())
	if got := sumE / n; math.Abs(got-dE) > 15 {
		t.Fatalf("mean east correction = %.1f m, want about %.0f", got, dE)
	}
	if got := sumN / n; math.Abs(got-dN) > 15 {
		t.Fatalf("mean north correction = %.1f m, want about %.0f", got, dN)
	}
}

func TestRunRequireOverlapFailsAndCleansUp(t *testing.T) {
	metrics, err := observability.NewPipelineCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	cfg := testConfig(t)
	cfg.RequireOverlap = true
	w := &memWriter{}

	_, err = run(t, cfg, Deps{
		Open:      openScene(testScene(t, 0, 0)),
		Elevation: &flatDEM{height: demHeight},
		Reference: emptyReference{},
		Writer:    w,
		Metrics:   metrics,
	})
	if !errors.Is(err, coreg.ErrNoOverlap) {
		t.Fatalf("err = %v, want ErrNoOverlap", err)
	}
	if len(w.products) != 0 {
		t.Fatalf("failed scene wrote %d products", len(w.products))
	}
	entries, err := os.ReadDir(cfg.WorkDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace left behind: %v", entries)
	}
	if got := testutil.ToFloat64(metrics.Scenes.WithLabelValues(observability.OutcomeFailed)); got != 1 {
		t.Fatalf("failed scenes = %v, want 1", got)
	}
}

func TestRunKeepWorkspace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Coreg = false
	cfg.KeepWorkspace = true

	var seen string
	open := func(_ context.Context, dir string) (ArchiveReader, error) {
		seen = dir
		return sceneReader{scene: testScene(t, 0, 0)}, nil
	}
	if _, err := run(t, cfg, Deps{Open: open, Elevation: &flatDEM{height: demHeight}, Writer: &memWriter{}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if info, err := os.Stat(seen); err != nil || !info.IsDir() {
		t.Fatalf("workspace %q not kept: %v", seen, err)
	}
}

func TestRunSwathGeometry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Coreg = false
	cfg.Project = false
	w := &memWriter{}

	res, err := run(t, cfg, Deps{Open: openScene(testScene(t, 0, 0)), Elevation: &flatDEM{height: demHeight}, Writer: w})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Grid != (projector.GridSpec{}) {
		t.Fatalf("swath run reported grid %+v", res.Grid)
	}
	for _, name := range res.Products {
		p := w.products[name]
		if p.Map != nil || p.HasNoData {
			t.Fatalf("%s carries map info in swath geometry", name)
		}
		if rows, cols := p.Shape(); rows != testLines-2*cfg.Trim || cols != testSamples-2*cfg.Trim {
			t.Fatalf("%s is %dx%d", name, rows, cols)
		}
	}
}

func TestRunBlockAveragesToResolution(t *testing.T) {
	cfg := testConfig(t)
	cfg.Coreg = false
	cfg.Resolution = 60
	w := &memWriter{}

	res, err := run(t, cfg, Deps{Open: openScene(testScene(t, 0, 0)), Elevation: &flatDEM{height: demHeight}, Writer: w})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Grid.CellSize != 60 {
		t.Fatalf("grid cell = %v, want 60", res.Grid.CellSize)
	}
	rad := w.products["TEST_0001_rad"]
	if rows, cols := rad.Shape(); rows != res.Grid.Rows || cols != res.Grid.Cols {
		t.Fatalf("radiance is %dx%d, grid is %dx%d", rows, cols, res.Grid.Rows, res.Grid.Cols)
	}
	if rad.Map.CellSize != 60 {
		t.Fatalf("radiance cell = %v", rad.Map.CellSize)
	}
	for _, v := range rad.Bands[0].Data {
		if v < 0 && v != cfg.NoData {
			t.Fatalf("negative radiance %v after block average", v)
		}
	}
}

func TestRunClampsNegativeRadianceAtNativeResolution(t *testing.T) {
	s := testScene(t, 0, 0)
	for _, data := range [][]float32{s.VNIR.Data, s.SWIR.Data} {
		for i, v := range data {
			data[i] = -float32(math.Abs(float64(v))) - 1
		}
	}
	cfg := testConfig(t)
	cfg.Coreg = false
	w := &memWriter{}

	res, err := run(t, cfg, Deps{Open: openScene(s), Elevation: &flatDEM{height: demHeight}, Writer: w})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Grid.CellSize != cfg.CellSize {
		t.Fatalf("grid cell = %v, want native %v", res.Grid.CellSize, cfg.CellSize)
	}
	rad := w.products["TEST_0001_rad"]
	var valid int
	for b, band := range rad.Bands {
		for _, v := range band.Data {
			if v == cfg.NoData {
				continue
			}
			if v != 0 {
				t.Fatalf("band %d holds %v, want negatives clamped to 0", b, v)
			}
			valid++
		}
	}
	if valid == 0 {
		t.Fatalf("radiance has no valid cells")
	}
	// Only radiance is clamped.
	var negative bool
	for _, v := range w.products["TEST_0001_loc"].Bands[0].Data {
		negative = negative || (v < 0 && v != cfg.NoData)
	}
	if !negative {
		t.Fatalf("western longitudes were clamped in the location product")
	}
}

func TestRunFailedWriteRemovesEveryProduct(t *testing.T) {
	errDisk := errors.New("disk full")
	cfg := testConfig(t)
	cfg.Coreg = false
	w := &memWriter{err: errDisk, failOn: 3}

	res, err := run(t, cfg, Deps{Open: openScene(testScene(t, 0, 0)), Elevation: &flatDEM{height: demHeight}, Writer: w})
	if !errors.Is(err, errDisk) || res != nil {
		t.Fatalf("res = %v err = %v, want disk error", res, err)
	}
	if w.calls != 3 {
		t.Fatalf("write calls = %d, want 3", w.calls)
	}
	if len(w.products) != 0 {
		t.Fatalf("partial output left behind: %v", w.products)
	}
	want := []string{"TEST_0001_obs", "TEST_0001_loc", "TEST_0001_rad"}
	if len(w.deleted) != len(want) {
		t.Fatalf("deleted = %v, want %v", w.deleted, want)
	}
	for i := range want {
		if w.deleted[i] != want[i] {
			t.Fatalf("deleted = %v, want %v", w.deleted, want)
		}
	}
}

func TestRunFailures(t *testing.T) {
	errOpen := errors.New("unzip failed")
	errDisk := errors.New("disk full")

	tests := []struct {
		name string
		deps func(s *model.Scene) Deps
		want error
	}{
		{
			name: "open",
			deps: func(*model.Scene) Deps {
				return Deps{
					Open:      func(context.Context, string) (ArchiveReader, error) { return nil, errOpen },
					Elevation: &flatDEM{},
					Writer:    &memWriter{},
				}
			},
			want: errOpen,
		},
		{
			name: "elevation",
			deps: func(s *model.Scene) Deps {
				return Deps{Open: openScene(s), Elevation: &flatDEM{err: errDisk}, Writer: &memWriter{}}
			},
			want: errDisk,
		},
		{
			name: "writer",
			deps: func(s *model.Scene) Deps {
				return Deps{Open: openScene(s), Elevation: &flatDEM{}, Writer: &memWriter{err: errDisk}}
			},
			want: errDisk,
		},
		{
			name: "telemetry",
			deps: func(s *model.Scene) Deps {
				s.Telemetry = s.Telemetry[:1]
				return Deps{Open: openScene(s), Elevation: &flatDEM{}, Writer: &memWriter{}}
			},
			want: timectrl.ErrInsufficientSamples,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Coreg = false
			_, err := run(t, cfg, tt.deps(testScene(t, 0, 0)))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	full := Deps{Open: openScene(nil), Elevation: &flatDEM{}, Writer: &memWriter{}}
	tests := []struct {
		name  string
		strip func(*Deps)
	}{
		{"archive", func(d *Deps) { d.Open = nil }},
		{"elevation", func(d *Deps) { d.Elevation = nil }},
		{"writer", func(d *Deps) { d.Writer = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := full
			tt.strip(&d)
			if _, err := New(DefaultConfig(), d); !errors.Is(err, ErrMissingDependency) {
				t.Fatalf("err = %v, want ErrMissingDependency", err)
			}
		})
	}
	if _, err := New(DefaultConfig(), full); err != nil {
		t.Fatalf("New with all deps: %v", err)
	}
}
