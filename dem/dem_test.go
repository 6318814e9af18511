package dem

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/model"
)

const testSize = 11

// plane is linear in lon/lat so bilinear sampling reproduces it exactly.
func plane(lon, lat float64) float64 {
	return 100 + 1000*(lon-math.Floor(lon)) - 500*(lat-math.Floor(lat))
}

func planeHeights(lat, lon int) []int16 {
	out := make([]int16, testSize*testSize)
	for r := 0; r < testSize; r++ {
		for c := 0; c < testSize; c++ {
			la := float64(lat+1) - float64(r)/float64(testSize-1)
			lo := float64(lon) + float64(c)/float64(testSize-1)
			out[r*testSize+c] = int16(math.Round(100 + 1000*(lo-float64(lon)) - 500*(la-float64(lat))))
		}
	}
	return out
}

func hgtBytes(h []int16) []byte {
	buf := make([]byte, 2*len(h))
	for i, v := range h {
		binary.BigEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

func tiffBytes(t *testing.T, h []int16) []byte {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, testSize, testSize))
	for i, v := range h {
		img.SetGray16(i%testSize, i/testSize, color.Gray16{Y: uint16(v)})
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatalf("tiff.Encode: %v", err)
	}
	return buf.Bytes()
}

func zipBytes(t *testing.T, name string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTileName(t *testing.T) {
	tests := []struct {
		lat, lon int
		want     string
	}{
		{45, -122, "N45W122"},
		{-1, 0, "S01E000"},
		{0, 9, "N00E009"},
		{-34, 151, "S34E151"},
	}
	for _, tt := range tests {
		if got := TileName(tt.lat, tt.lon); got != tt.want {
			t.Fatalf("TileName(%d,%d)=%s, want %s", tt.lat, tt.lon, got, tt.want)
		}
	}
	if la, lo := TileFor(-121.5, 45.2); la != 45 || lo != -122 {
		t.Fatalf("TileFor=%d,%d", la, lo)
	}
	if la, lo := TileFor(0.5, -0.5); la != -1 || lo != 0 {
		t.Fatalf("TileFor=%d,%d", la, lo)
	}
}

func TestTileFormats(t *testing.T) {
	h := planeHeights(45, 9)
	tests := []struct {
		name string
		file string
		data func(t *testing.T) []byte
	}{
		{"hgt", "N45E009.hgt", func(*testing.T) []byte { return hgtBytes(h) }},
		{"tiff", "N45E009.tif", func(t *testing.T) []byte { return tiffBytes(t, h) }},
		{"zipped hgt", "N45E009.zip", func(t *testing.T) []byte { return zipBytes(t, "N45E009.hgt", hgtBytes(h)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, tt.file, tt.data(t))
			src := NewSource(NewLocalTileStore(dir), false)

			for _, p := range [][2]float64{{9.0, 45.0}, {9.25, 45.5}, {9.95, 45.05}, {9.5, 45.999}} {
				got, err := src.At(p[0], p[1])
				if err != nil {
					t.Fatalf("At(%v): %v", p, err)
				}
				if want := plane(p[0], p[1]); math.Abs(got-want) > 0.6 {
					t.Fatalf("At(%v)=%.3f, want %.3f", p, got, want)
				}
			}
		})
	}
}

func TestDecodeHGTRejectsNonSquare(t *testing.T) {
	if _, err := DecodeHGT(0, 0, make([]byte, 10)); err == nil {
		t.Fatalf("expected error for non-square tile")
	}
}

func TestVoidSamplesAreSkipped(t *testing.T) {
	tile, err := newTile(0, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	tile.Data = []float64{10, math.NaN(), 10, 10}
	if got := tile.At(0.5, 0.5); got != 10 {
		t.Fatalf("At with one void=%v, want 10", got)
	}
	tile.Data = []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	if got := tile.At(0.5, 0.5); got != 0 {
		t.Fatalf("all-void At=%v, want 0", got)
	}
}

func TestMissingTile(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalTileStore(dir)

	var mu sync.Mutex
	var events []Event
	unsubscribe := store.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	lons := model.NewGridFilled(2, 2, 9.5)
	lats := model.NewGridFilled(2, 2, 45.5)
	_, err := NewSource(store, false).Elevation(lons, lats)
	if !errors.Is(err, ErrTileNotFound) {
		t.Fatalf("err=%v, want ErrTileNotFound", err)
	}

	filled, err := NewSource(store, true).Elevation(lons, lats)
	if err != nil {
		t.Fatalf("sea-level fill: %v", err)
	}
	for _, v := range filled.Data {
		if v != 0 {
			t.Fatalf("filled elevation %v, want 0", v)
		}
	}

	mu.Lock()
	n := len(events)
	mu.Unlock()
	if n != 1 || events[0].Type != EventTileMissing || events[0].Name != "N45E009" {
		t.Fatalf("events=%+v, want one missing event", events)
	}
	unsubscribe()
}

func TestElevationGridAndCaching(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "N45E009.hgt", hgtBytes(planeHeights(45, 9)))
	writeFile(t, dir, "N45E010.hgt", hgtBytes(planeHeights(45, 10)))
	store := NewLocalTileStore(dir)

	loads := 0
	store.Subscribe(func(e Event) {
		if e.Type == EventTileLoaded {
			loads++
		}
	})

	lons, _ := model.GridFromRows([][]float64{{9.2, 9.8, 10.3}, {9.2, math.NaN(), 10.7}})
	lats, _ := model.GridFromRows([][]float64{{45.1, 45.4, 45.6}, {45.9, 45.5, 45.3}})
	got, err := NewSource(store, false).Elevation(lons, lats)
	if err != nil {
		t.Fatalf("Elevation: %v", err)
	}
	for i, v := range got.Data {
		if math.IsNaN(lons.Data[i]) {
			if !math.IsNaN(v) {
				t.Fatalf("cell %d: want NaN for NaN input, got %v", i, v)
			}
			continue
		}
		if want := plane(lons.Data[i], lats.Data[i]); math.Abs(v-want) > 0.6 {
			t.Fatalf("cell %d=%.3f, want %.3f", i, v, want)
		}
	}
	if loads != 2 || store.Len() != 2 {
		t.Fatalf("loads=%d cached=%d, want 2 each", loads, store.Len())
	}
	if store.Cached(45, 10) == nil {
		t.Fatalf("N45E010 not cached")
	}
}

func TestElevationShapeMismatch(t *testing.T) {
	src := NewSource(NewLocalTileStore(t.TempDir()), true)
	if _, err := src.Elevation(model.NewGrid(2, 2), model.NewGrid(2, 3)); !errors.Is(err, model.ErrShapeMismatch) {
		t.Fatalf("err=%v, want ErrShapeMismatch", err)
	}
}

func TestTileStoreAtPrefix(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "srtm"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "srtm"), "N45E009.hgt", hgtBytes(planeHeights(45, 9)))

	store := NewTileStoreAt(&fileaccess.FSAccess{}, fileaccess.Location{Root: dir, Prefix: "srtm"})
	got, err := NewSource(store, false).At(9.5, 45.5)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if want := plane(9.5, 45.5); math.Abs(got-want) > 1 {
		t.Fatalf("height %v, want %v", got, want)
	}
}
