package archive

import (
	"fmt"
	"path"

	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/model"
)

// Array object names used by WriteScene.
const (
	vnirObject      = "vnir.f32"
	swirObject      = "swir.f32"
	longitudeObject = "longitude.f64"
	latitudeObject  = "latitude.f64"
)

// WriteScene stores scene as an unpacked product under dir. Array objects
// are written before the manifest so a partially written product never has
// one.
func WriteScene(fa fileaccess.FileAccess, root, dir string, scene *model.Scene, compression string) error {
	if err := scene.VNIR.CheckShape(); err != nil {
		return fmt.Errorf("vnir: %w", err)
	}
	if err := scene.SWIR.CheckShape(); err != nil {
		return fmt.Errorf("swir: %w", err)
	}
	if err := model.CheckShapes("reference row geolocation", scene.Longitude, scene.Latitude); err != nil {
		return err
	}

	m := Manifest{
		ID:             scene.ID,
		VNIRWavelength: scene.VNIRWaves,
		VNIRFWHM:       scene.VNIRFWHM,
		SWIRWavelength: scene.SWIRWaves,
		SWIRFWHM:       scene.SWIRFWHM,
		LineTimes:      scene.LineTimes,
	}
	for _, t := range scene.Telemetry {
		m.Telemetry = append(m.Telemetry, TelemetryRecord{Week: t.Week, Seconds: t.Seconds, X: t.X, Y: t.Y, Z: t.Z})
	}

	type object struct {
		ref  **ArrayRef
		name string
		typ  string
		dims []int
		raw  []byte
	}
	v, s := scene.VNIR, scene.SWIR
	objects := []object{
		{&m.VNIR, vnirObject, Float32, []int{v.Lines, v.Bands, v.Samples}, encodeFloat32s(v.Data)},
		{&m.SWIR, swirObject, Float32, []int{s.Lines, s.Bands, s.Samples}, encodeFloat32s(s.Data)},
		{&m.Longitude, longitudeObject, Float64, []int{scene.Longitude.Rows, scene.Longitude.Cols}, encodeFloat64s(scene.Longitude.Data)},
		{&m.Latitude, latitudeObject, Float64, []int{scene.Latitude.Rows, scene.Latitude.Cols}, encodeFloat64s(scene.Latitude.Data)},
	}
	for _, o := range objects {
		name := o.name
		if compression == CompressionZstd {
			name += ".zst"
		}
		data, err := compress(compression, o.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := fa.WriteObject(root, path.Join(dir, name), data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		*o.ref = &ArrayRef{Object: name, Shape: o.dims, DType: o.typ, Compression: compression}
	}

	if err := m.validate(); err != nil {
		return err
	}
	return fa.WriteJSON(root, path.Join(dir, ManifestName), &m)
}
