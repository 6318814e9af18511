package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/swath-geolocator/archive"
	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/dem"
	"github.com/signalsfoundry/swath-geolocator/envi"
	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/internal/logging"
	"github.com/signalsfoundry/swath-geolocator/internal/observability"
	"github.com/signalsfoundry/swath-geolocator/model"
	"github.com/signalsfoundry/swath-geolocator/pipeline"
	"github.com/signalsfoundry/swath-geolocator/reference"
)

// Config is the command line of one run.
type Config struct {
	Input          string
	Output         string
	WorkDir        string
	DEM            string
	SeaLevelFill   bool
	SmileSurface   string
	Reference      string
	ReferenceZone  string
	Resolution     float64
	Project        bool
	Coreg          bool
	RequireOverlap bool
	GPSLeapSeconds float64
	NoData         float64
	Trim           int
	Interleave     string
	Workers        int
	KeepWorkspace  bool
	MetricsFile    string
	MetricsAddress string
}

func parseFlags(args []string) (Config, error) {
	d := pipeline.DefaultConfig()
	var cfg Config
	fs := flag.NewFlagSet("geolocate", flag.ContinueOnError)
	fs.StringVar(&cfg.Input, "input", "", "zipped product, unpacked product directory or s3://bucket/prefix")
	fs.StringVar(&cfg.Output, "out", "", "output directory or s3://bucket/prefix")
	fs.StringVar(&cfg.WorkDir, "work-dir", "", "directory for scene workspaces (default: system temp)")
	fs.StringVar(&cfg.DEM, "dem", "", "directory or s3://bucket/prefix holding 1x1 degree elevation tiles")
	fs.BoolVar(&cfg.SeaLevelFill, "dem-sea-level", false, "use 0 m where no elevation tile exists instead of failing")
	fs.StringVar(&cfg.SmileSurface, "smile", "", "ENVI shift surface (band 0) enabling smile correction")
	fs.StringVar(&cfg.Reference, "reference", "", "single-band GeoTIFF with a world file to co-register against")
	fs.StringVar(&cfg.ReferenceZone, "reference-zone", "", "UTM zone of the reference, e.g. 33N (default: scene zone)")
	fs.Float64Var(&cfg.Resolution, "resolution", d.Resolution, "output cell size in metres, a multiple of 30")
	fs.BoolVar(&cfg.Project, "project", d.Project, "project products onto a UTM grid")
	fs.BoolVar(&cfg.Coreg, "coreg", d.Coreg, "co-register against -reference when given")
	fs.BoolVar(&cfg.RequireOverlap, "require-overlap", d.RequireOverlap, "fail the scene when the reference does not overlap it")
	fs.Float64Var(&cfg.GPSLeapSeconds, "leap-seconds", d.GPSLeapSeconds, "GPS-UTC offset applied to telemetry; 0 applies none")
	fs.Float64Var(&cfg.NoData, "nodata", d.NoData, "value written to output cells with no source pixel")
	fs.IntVar(&cfg.Trim, "trim", d.Trim, "pixels dropped from every swath edge")
	fs.StringVar(&cfg.Interleave, "interleave", d.Interleave, "product interleave: bil or bsq")
	fs.IntVar(&cfg.Workers, "workers", d.Workers, "parallel workers")
	fs.BoolVar(&cfg.KeepWorkspace, "keep-workspace", false, "leave the scene workspace in place")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file on exit")
	fs.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "serve /metrics on this address while running")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Input == "" || cfg.Output == "" || cfg.DEM == "" {
		return Config{}, errors.New("-input, -out and -dem are required")
	}
	return cfg, nil
}

func (c Config) pipelineConfig() pipeline.Config {
	p := pipeline.DefaultConfig()
	p.Resolution = c.Resolution
	p.Project = c.Project
	p.Coreg = c.Coreg
	p.RequireOverlap = c.RequireOverlap
	p.GPSLeapSeconds = c.GPSLeapSeconds
	p.NoData = c.NoData
	p.Trim = c.Trim
	p.Interleave = strings.ToLower(c.Interleave)
	p.Workers = c.Workers
	p.WorkDir = c.WorkDir
	p.KeepWorkspace = c.KeepWorkspace
	return p
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "geolocation failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log logging.Logger) error {
	collector, err := observability.NewPipelineCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if cfg.MetricsFile != "" {
		defer func() {
			if err := collector.WriteToTextfile(cfg.MetricsFile); err != nil {
				log.Warn(ctx, "failed to write metrics file", logging.String("path", cfg.MetricsFile), logging.Err(err))
			}
		}()
	}
	if srv := serveMetrics(cfg.MetricsAddress, collector, log); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	deps, err := dependencies(cfg, collector, log)
	if err != nil {
		return err
	}
	p, err := pipeline.New(cfg.pipelineConfig(), deps)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	log.Info(ctx, "products written",
		logging.String("scene_id", res.SceneID),
		logging.String("out", cfg.Output),
		logging.Any("products", res.Products),
		logging.String("stage", res.Stage.String()))
	return nil
}

// dependencies wires the collaborators named on the command line.
func dependencies(cfg Config, collector *observability.PipelineCollector, log logging.Logger) (pipeline.Deps, error) {
	outFA, outLoc, err := fileaccess.Open(cfg.Output)
	if err != nil {
		return pipeline.Deps{}, fmt.Errorf("output: %w", err)
	}

	demFA, demLoc, err := fileaccess.Open(cfg.DEM)
	if err != nil {
		return pipeline.Deps{}, fmt.Errorf("dem: %w", err)
	}
	tiles := dem.NewTileStoreAt(demFA, demLoc)
	tiles.Subscribe(func(ev dem.Event) {
		switch ev.Type {
		case dem.EventTileLoaded:
			collector.IncElevationTile("loaded")
			log.Debug(context.Background(), "elevation tile loaded",
				logging.String("tile", ev.Name), logging.String("object", ev.Object), logging.Duration("duration", ev.Duration))
		case dem.EventTileMissing:
			collector.IncElevationTile("missing")
			log.Warn(context.Background(), "elevation tile missing", logging.String("tile", ev.Name))
		}
	})

	deps := pipeline.Deps{
		Open:      opener(cfg.Input),
		Elevation: dem.NewSource(tiles, cfg.SeaLevelFill),
		Writer:    envi.NewWriter(outFA, outLoc),
		Logger:    log,
		Metrics:   collector,
	}

	if cfg.SmileSurface != "" {
		surface, err := readSurface(cfg.SmileSurface)
		if err != nil {
			return pipeline.Deps{}, fmt.Errorf("smile surface: %w", err)
		}
		deps.SmileSurface = surface
	}

	if cfg.Reference != "" {
		var zone *core.Zone
		if cfg.ReferenceZone != "" {
			z, err := core.ParseZone(cfg.ReferenceZone)
			if err != nil {
				return pipeline.Deps{}, err
			}
			zone = &z
		}
		refFA, refLoc, err := fileaccess.Open(dirOf(cfg.Reference))
		if err != nil {
			return pipeline.Deps{}, fmt.Errorf("reference: %w", err)
		}
		deps.Reference = reference.NewSource(refFA, refLoc.Root, refLoc.Key(baseOf(cfg.Reference)), zone)
	}
	return deps, nil
}

// opener returns how the input is staged into the scene workspace: zips
// are unpacked into it, directories and buckets are read in place.
func opener(input string) pipeline.ArchiveOpener {
	return func(ctx context.Context, workspace string) (pipeline.ArchiveReader, error) {
		if strings.HasSuffix(strings.ToLower(input), ".zip") {
			dir, err := archive.Extract(input, workspace)
			if err != nil {
				return nil, err
			}
			return archive.NewLocalReader(dir), nil
		}
		fa, loc, err := fileaccess.Open(input)
		if err != nil {
			return nil, err
		}
		return archive.NewReader(fa, loc.Root, loc.Prefix), nil
	}
}

func readSurface(target string) (*model.Grid, error) {
	fa, loc, err := fileaccess.Open(dirOf(target))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(baseOf(target), envi.HeaderSuffix)
	return envi.ReadBand(fa, loc, name, 0)
}

func dirOf(target string) string {
	i := strings.LastIndex(target, "/")
	switch {
	case i < 0:
		return "."
	case i == 0:
		return "/"
	default:
		return target[:i]
	}
}

func baseOf(target string) string {
	return target[strings.LastIndex(target, "/")+1:]
}

func serveMetrics(addr string, collector *observability.PipelineCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
