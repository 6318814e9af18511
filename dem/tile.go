// Package dem samples terrain height from 1x1 degree elevation tiles.
package dem

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"

	"golang.org/x/image/tiff"
)

// voidValue marks missing samples in SRTM products.
const voidValue = -32768

// Tile is one square elevation tile whose outer samples sit exactly on the
// integer-degree boundaries. Lat and Lon are its south-west corner.
type Tile struct {
	Lat, Lon int
	// Size is the number of samples along each side.
	Size int
	// Data is row-major from the north edge, metres; voids are NaN.
	Data []float64
}

// TileName returns the conventional name of the tile whose south-west
// corner is (lat, lon), for example N45W122.
func TileName(lat, lon int) string {
	ns, ew := 'N', 'E'
	if lat < 0 {
		ns, lat = 'S', -lat
	}
	if lon < 0 {
		ew, lon = 'W', -lon
	}
	return fmt.Sprintf("%c%02d%c%03d", ns, lat, ew, lon)
}

// TileFor returns the corner of the tile containing (lon, lat).
func TileFor(lon, lat float64) (tileLat, tileLon int) {
	return int(math.Floor(lat)), int(math.Floor(lon))
}

// Name is the tile's conventional name.
func (t *Tile) Name() string { return TileName(t.Lat, t.Lon) }

func newTile(lat, lon, size int) (*Tile, error) {
	if size < 2 {
		return nil, fmt.Errorf("tile %s: %d samples per side", TileName(lat, lon), size)
	}
	return &Tile{Lat: lat, Lon: lon, Size: size, Data: make([]float64, size*size)}, nil
}

func heightOf(v int16) float64 {
	if v == voidValue {
		return math.NaN()
	}
	return float64(v)
}

// DecodeHGT parses a raw SRTM .hgt tile: a square of big-endian int16.
func DecodeHGT(lat, lon int, data []byte) (*Tile, error) {
	n := int(math.Round(math.Sqrt(float64(len(data) / 2))))
	if 2*n*n != len(data) {
		return nil, fmt.Errorf("tile %s: %d bytes is not a square int16 grid", TileName(lat, lon), len(data))
	}
	t, err := newTile(lat, lon, n)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = heightOf(int16(binary.BigEndian.Uint16(data[2*i:])))
	}
	return t, nil
}

// DecodeTIFF parses a single-band GeoTIFF tile. 16-bit samples are read as
// signed heights, 8-bit samples as unsigned.
func DecodeTIFF(lat, lon int, r io.Reader) (*Tile, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", TileName(lat, lon), err)
	}
	b := img.Bounds()
	if b.Dx() != b.Dy() {
		return nil, fmt.Errorf("tile %s: %dx%d image is not square", TileName(lat, lon), b.Dx(), b.Dy())
	}
	t, err := newTile(lat, lon, b.Dx())
	if err != nil {
		return nil, err
	}
	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			var h float64
			switch im := img.(type) {
			case *image.Gray16:
				h = heightOf(int16(im.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			case *image.Gray:
				h = float64(im.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			default:
				return nil, fmt.Errorf("tile %s: unsupported pixel model %T", TileName(lat, lon), img)
			}
			t.Data[y*t.Size+x] = h
		}
	}
	return t, nil
}

// At returns the bilinear height at (lon, lat), which must lie inside the
// tile. Void neighbours are dropped and the remaining weights renormalised;
// a cell with no valid neighbour reads as sea level.
func (t *Tile) At(lon, lat float64) float64 {
	step := float64(t.Size - 1)
	fr := (float64(t.Lat+1) - lat) * step
	fc := (lon - float64(t.Lon)) * step
	r0 := clampIndex(int(math.Floor(fr)), t.Size-2)
	c0 := clampIndex(int(math.Floor(fc)), t.Size-2)
	dr, dc := fr-float64(r0), fc-float64(c0)

	var sum, wsum float64
	for _, n := range [4]struct {
		r, c int
		w    float64
	}{
		{r0, c0, (1 - dr) * (1 - dc)},
		{r0, c0 + 1, (1 - dr) * dc},
		{r0 + 1, c0, dr * (1 - dc)},
		{r0 + 1, c0 + 1, dr * dc},
	} {
		v := t.Data[n.r*t.Size+n.c]
		if math.IsNaN(v) || n.w == 0 {
			continue
		}
		sum += n.w * v
		wsum += n.w
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

func clampIndex(i, hi int) int {
	if i < 0 {
		return 0
	}
	if i > hi {
		return hi
	}
	return i
}
