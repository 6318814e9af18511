package archive

import (
	"context"
	"fmt"
	"path"

	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/model"
)

// Reader loads an unpacked product rooted at Dir through a FileAccess, so a
// product may sit in the local workspace or in a bucket.
type Reader struct {
	fa   fileaccess.FileAccess
	root string
	dir  string
}

// NewReader returns a reader for the product whose manifest is
// <dir>/manifest.json under root.
func NewReader(fa fileaccess.FileAccess, root, dir string) *Reader {
	return &Reader{fa: fa, root: root, dir: dir}
}

// NewLocalReader reads a product from a local directory.
func NewLocalReader(dir string) *Reader {
	return NewReader(&fileaccess.FSAccess{}, dir, "")
}

// Manifest reads and validates the product manifest.
func (r *Reader) Manifest() (*Manifest, error) {
	var m Manifest
	if err := r.fa.ReadJSON(r.root, path.Join(r.dir, ManifestName), &m, false); err != nil {
		if r.fa.IsNotFoundError(err) {
			return nil, fmt.Errorf("%s: %w", ManifestName, ErrMissingField)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", m.ID, err)
	}
	return &m, nil
}

// ReadScene loads every array the manifest references and assembles the
// scene, checking that cubes, grids, band metadata and line times agree.
func (r *Reader) ReadScene(ctx context.Context) (*model.Scene, error) {
	m, err := r.Manifest()
	if err != nil {
		return nil, err
	}

	vnir, err := r.cube(ctx, "vnir_cube", m.VNIR)
	if err != nil {
		return nil, err
	}
	swir, err := r.cube(ctx, "swir_cube", m.SWIR)
	if err != nil {
		return nil, err
	}
	lon, err := r.grid(ctx, "longitude", m.Longitude)
	if err != nil {
		return nil, err
	}
	lat, err := r.grid(ctx, "latitude", m.Latitude)
	if err != nil {
		return nil, err
	}

	if vnir.Lines != swir.Lines || vnir.Samples != swir.Samples {
		return nil, fmt.Errorf("vnir %dx%d vs swir %dx%d: %w",
			vnir.Lines, vnir.Samples, swir.Lines, swir.Samples, model.ErrShapeMismatch)
	}
	if lon.Rows != vnir.Lines || lon.Cols != vnir.Samples {
		return nil, fmt.Errorf("geolocation grid %dx%d vs cube %dx%d: %w",
			lon.Rows, lon.Cols, vnir.Lines, vnir.Samples, model.ErrShapeMismatch)
	}
	if err := model.CheckShapes("reference row geolocation", lon, lat); err != nil {
		return nil, err
	}
	if len(m.LineTimes) != vnir.Lines {
		return nil, fmt.Errorf("%d line times for %d lines: %w", len(m.LineTimes), vnir.Lines, model.ErrShapeMismatch)
	}
	if len(m.VNIRWavelength) != vnir.Bands || len(m.VNIRFWHM) != vnir.Bands {
		return nil, fmt.Errorf("vnir band metadata vs %d bands: %w", vnir.Bands, model.ErrShapeMismatch)
	}
	if len(m.SWIRWavelength) != swir.Bands || len(m.SWIRFWHM) != swir.Bands {
		return nil, fmt.Errorf("swir band metadata vs %d bands: %w", swir.Bands, model.ErrShapeMismatch)
	}

	tel := make([]model.SatellitePositionSample, len(m.Telemetry))
	for i, t := range m.Telemetry {
		tel[i] = model.SatellitePositionSample{Week: t.Week, Seconds: t.Seconds, X: t.X, Y: t.Y, Z: t.Z}
	}

	return &model.Scene{
		ID:        m.ID,
		VNIR:      vnir,
		SWIR:      swir,
		VNIRWaves: m.VNIRWavelength,
		SWIRWaves: m.SWIRWavelength,
		VNIRFWHM:  m.VNIRFWHM,
		SWIRFWHM:  m.SWIRFWHM,
		LineTimes: m.LineTimes,
		Longitude: lon,
		Latitude:  lat,
		Telemetry: tel,
	}, nil
}

func (r *Reader) object(ctx context.Context, field string, ref *ArrayRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := r.fa.ReadObject(r.root, path.Join(r.dir, ref.Object))
	if err != nil {
		if r.fa.IsNotFoundError(err) {
			return nil, fmt.Errorf("%s object %s: %w", field, ref.Object, ErrMissingField)
		}
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return raw, nil
}

func (r *Reader) cube(ctx context.Context, field string, ref *ArrayRef) (*model.Cube, error) {
	raw, err := r.object(ctx, field, ref)
	if err != nil {
		return nil, err
	}
	data, err := decodeFloat32s(ref, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &model.Cube{Lines: ref.Shape[0], Bands: ref.Shape[1], Samples: ref.Shape[2], Data: data}, nil
}

func (r *Reader) grid(ctx context.Context, field string, ref *ArrayRef) (*model.Grid, error) {
	raw, err := r.object(ctx, field, ref)
	if err != nil {
		return nil, err
	}
	data, err := decodeFloats(ref, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &model.Grid{Rows: ref.Shape[0], Cols: ref.Shape[1], Data: data}, nil
}
