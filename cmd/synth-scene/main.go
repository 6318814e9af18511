// Command synth-scene writes a synthetic unpacked product propagated from a
// TLE, for exercising geolocate without archive data.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/signalsfoundry/swath-geolocator/archive"
	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/internal/logging"
	"github.com/signalsfoundry/swath-geolocator/internal/synth"
)

type config struct {
	Out         string
	Compression string
	Options     synth.Options
}

func parseFlags(args []string) (config, error) {
	cfg := config{Options: synth.DefaultOptions()}
	o := &cfg.Options
	start := o.Start.Format(time.RFC3339Nano)

	fs := flag.NewFlagSet("synth-scene", flag.ContinueOnError)
	fs.StringVar(&cfg.Out, "out", "", "directory or s3://bucket/prefix the product directory is written under")
	fs.StringVar(&cfg.Compression, "compression", archive.CompressionZstd, "array compression: zstd or none")
	fs.StringVar(&o.ID, "id", o.ID, "scene identifier, also the product directory name")
	fs.StringVar(&o.TLE1, "tle1", o.TLE1, "first TLE line")
	fs.StringVar(&o.TLE2, "tle2", o.TLE2, "second TLE line")
	fs.StringVar(&start, "start", start, "UTC time of the first scan line (RFC 3339)")
	fs.IntVar(&o.Lines, "lines", o.Lines, "scan lines")
	fs.IntVar(&o.Samples, "samples", o.Samples, "pixels per line")
	fs.DurationVar(&o.LinePeriod, "line-period", o.LinePeriod, "time between scan lines")
	fs.Float64Var(&o.GSD, "gsd", o.GSD, "cross-track pixel spacing in metres")
	fs.IntVar(&o.VNIRBands, "vnir-bands", o.VNIRBands, "VNIR bands")
	fs.IntVar(&o.SWIRBands, "swir-bands", o.SWIRBands, "SWIR bands")
	fs.DurationVar(&o.TelemetryStep, "telemetry-step", o.TelemetryStep, "spacing of position telemetry")
	fs.Float64Var(&o.LeapSeconds, "leap-seconds", o.LeapSeconds, "GPS-UTC offset stamped on telemetry")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if cfg.Out == "" {
		return config{}, errors.New("-out is required")
	}
	if cfg.Compression == "none" {
		cfg.Compression = archive.CompressionNone
	}
	t, err := time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return config{}, fmt.Errorf("-start: %w", err)
	}
	o.Start = t.UTC()
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logging.NewFromEnv()
	if err := run(cfg); err != nil {
		log.Error(context.Background(), "synthesis failed", logging.Err(err))
		os.Exit(1)
	}
	log.Info(context.Background(), "wrote synthetic product",
		logging.String("scene_id", cfg.Options.ID),
		logging.String("out", cfg.Out),
		logging.Int("lines", cfg.Options.Lines),
		logging.Int("samples", cfg.Options.Samples))
}

func run(cfg config) error {
	fa, loc, err := fileaccess.Open(cfg.Out)
	if err != nil {
		return err
	}
	scene, err := synth.Scene(cfg.Options)
	if err != nil {
		return err
	}
	return archive.WriteScene(fa, loc.Root, loc.Key(cfg.Options.ID), scene, cfg.Compression)
}
