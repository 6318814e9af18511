package model

// DefaultNoData is the sentinel written to output cells with no source pixel.
const DefaultNoData = -9999.0

// MapInfo georeferences a regular output grid: upper-left corner of the
// upper-left cell in projected metres, square cells, UTM zone and hemisphere.
type MapInfo struct {
	Projection string
	ULX, ULY   float64
	CellSize   float64
	Zone       int
	North      bool
	Datum      string
}

// OutputRaster is one projected layer.
type OutputRaster struct {
	*Grid
	NoData float64
	Map    MapInfo
}

// Valid reports whether cell (r, c) holds a projected value.
func (o *OutputRaster) Valid(r, c int) bool { return o.At(r, c) != o.NoData }

// ValidFraction is the share of cells that are not nodata.
func (o *OutputRaster) ValidFraction() float64 {
	if o.Len() == 0 {
		return 0
	}
	n := 0
	for _, v := range o.Data {
		if v != o.NoData {
			n++
		}
	}
	return float64(n) / float64(o.Len())
}
