package envi

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/model"
)

func twoBandProduct(interleave string) *model.Product {
	a, _ := model.GridFromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	b, _ := model.GridFromRows([][]float64{{10, 20, 30}, {40, 50, 60}})
	return &model.Product{
		Description: "test radiance",
		Bands:       []*model.Grid{a, b},
		BandNames:   []string{"b1", "b2"},
		Wavelength:  []float64{450.5, 550},
		FWHM:        []float64{10, 12.25},
		Interleave:  interleave,
		Map: &model.MapInfo{
			Projection: "UTM", ULX: 500000, ULY: 4100000.5, CellSize: 30,
			Zone: 33, North: true, Datum: "WGS-84",
		},
		NoData:    model.DefaultNoData,
		HasNoData: true,
	}
}

func floats(t *testing.T, raw []byte) []float32 {
	t.Helper()
	if len(raw)%4 != 0 {
		t.Fatalf("%d bytes is not float32 data", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out
}

func TestWriteProductInterleave(t *testing.T) {
	tests := []struct {
		interleave string
		want       []float32
	}{
		{model.InterleaveBSQ, []float32{1, 2, 3, 4, 5, 6, 10, 20, 30, 40, 50, 60}},
		{model.InterleaveBIL, []float32{1, 2, 3, 10, 20, 30, 4, 5, 6, 40, 50, 60}},
	}
	for _, tt := range tests {
		t.Run(tt.interleave, func(t *testing.T) {
			dir := t.TempDir()
			fa := &fileaccess.FSAccess{}
			w := NewWriter(fa, fileaccess.Location{Root: dir, Prefix: "out"})
			if err := w.WriteProduct(context.Background(), "scene_rad", twoBandProduct(tt.interleave)); err != nil {
				t.Fatalf("WriteProduct: %v", err)
			}

			raw, err := fa.ReadObject(dir, "out/scene_rad")
			if err != nil {
				t.Fatalf("read data: %v", err)
			}
			got := floats(t, raw)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d values, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("value %d=%v, want %v", i, got[i], tt.want[i])
				}
			}

			hdr, err := fa.ReadObject(dir, "out/scene_rad.hdr")
			if err != nil {
				t.Fatalf("read header: %v", err)
			}
			fields, err := ParseHeader(string(hdr))
			if err != nil {
				t.Fatalf("ParseHeader: %v", err)
			}
			checks := map[string]string{
				"samples":           "3",
				"lines":             "2",
				"bands":             "2",
				"data type":         "4",
				"interleave":        tt.interleave,
				"byte order":        "0",
				"wavelength":        "450.5, 550",
				"fwhm":              "10, 12.25",
				"band names":        "b1, b2",
				"data ignore value": "-9999",
				"map info":          "UTM, 1.000, 1.000, 500000, 4100000.5, 30, 30, 33, North, WGS-84, units=Meters",
			}
			for k, want := range checks {
				if fields[k] != want {
					t.Fatalf("header %q=%q, want %q", k, fields[k], want)
				}
			}
		})
	}
}

func TestWriteProductRejectsBadShape(t *testing.T) {
	p := twoBandProduct(model.InterleaveBSQ)
	p.Bands[1] = model.NewGrid(3, 3)
	w := NewWriter(&fileaccess.FSAccess{}, fileaccess.Location{Root: t.TempDir()})
	if err := w.WriteProduct(context.Background(), "x", p); err == nil {
		t.Fatalf("expected shape error")
	}
}

func TestWriteProductCancelledWritesNoHeader(t *testing.T) {
	dir := t.TempDir()
	fa := &fileaccess.FSAccess{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewWriter(fa, fileaccess.Location{Root: dir})
	if err := w.WriteProduct(ctx, "x", twoBandProduct(model.InterleaveBSQ)); err == nil {
		t.Fatalf("expected context error")
	}
	if _, err := fa.ReadObject(dir, "x.hdr"); !fa.IsNotFoundError(err) {
		t.Fatalf("header should not exist, err=%v", err)
	}
}

func TestDeleteProduct(t *testing.T) {
	dir := t.TempDir()
	fa := &fileaccess.FSAccess{}
	w := NewWriter(fa, fileaccess.Location{Root: dir, Prefix: "out"})
	ctx := context.Background()
	if err := w.WriteProduct(ctx, "scene_rad", twoBandProduct(model.InterleaveBSQ)); err != nil {
		t.Fatalf("WriteProduct: %v", err)
	}
	if err := w.DeleteProduct(ctx, "scene_rad"); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	for _, key := range []string{"out/scene_rad", "out/scene_rad.hdr"} {
		if _, err := fa.ReadObject(dir, key); !fa.IsNotFoundError(err) {
			t.Fatalf("%s still exists, err=%v", key, err)
		}
	}
	if err := w.DeleteProduct(ctx, "never_written"); err != nil {
		t.Fatalf("DeleteProduct of missing product: %v", err)
	}
}

func TestHeaderSouthernHemisphere(t *testing.T) {
	p := twoBandProduct(model.InterleaveBSQ)
	p.Map.North = false
	fields, err := ParseHeader(Header(p))
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if want := "UTM, 1.000, 1.000, 500000, 4100000.5, 30, 30, 33, South, WGS-84, units=Meters"; fields["map info"] != want {
		t.Fatalf("map info = %q, want %q", fields["map info"], want)
	}
}

func TestParseHeaderMultiline(t *testing.T) {
	fields, err := ParseHeader("ENVI\nsamples = 4\nwavelength = {\n 400,\n 500 }\ndescription = {x}\n")
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if fields["samples"] != "4" || fields["wavelength"] != "400, 500" || fields["description"] != "x" {
		t.Fatalf("fields=%v", fields)
	}
	if _, err := ParseHeader("samples = 4\n"); err == nil {
		t.Fatalf("expected error without ENVI magic")
	}
}
