package projector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/model"
)

var testZone = core.Zone{Number: 33, North: true}

// rotatedSwath lays a rows x cols swath on a 30 m lattice rotated by a few
// degrees, the way a real along-track swath sits on a north-up grid.
func rotatedSwath(rows, cols int) (east, north *model.Grid) {
	const cell, angle = 30.0, 8 * math.Pi / 180
	sin, cos := math.Sincos(angle)
	east, north = model.NewGrid(rows, cols), model.NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x, y := float64(c)*cell, -float64(r)*cell
			east.Set(r, c, 400000+x*cos-y*sin)
			north.Set(r, c, 5000000+x*sin+y*cos)
		}
	}
	return east, north
}

func ramp(rows, cols int, k float64) *model.Grid {
	g := model.NewGrid(rows, cols)
	for i := range g.Data {
		g.Data[i] = k * float64(i)
	}
	return g
}

func buildIndex(t *testing.T, rows, cols int) (*Index, *model.Grid, *model.Grid) {
	t.Helper()
	east, north := rotatedSwath(rows, cols)
	spec, err := GridFor(east, north, 30, DefaultMargin, testZone)
	if err != nil {
		t.Fatalf("GridFor: %v", err)
	}
	idx, err := NewIndex(context.Background(), east, north, spec)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return idx, east, north
}

func TestGridForOriginAndExtent(t *testing.T) {
	east, north := rotatedSwath(20, 15)
	spec, err := GridFor(east, north, 30, DefaultMargin, testZone)
	if err != nil {
		t.Fatalf("GridFor: %v", err)
	}
	minE, maxE, _ := east.MinMax(math.NaN())
	minN, maxN, _ := north.MinMax(math.NaN())
	if spec.ULX != minE-100 || spec.ULY != maxN+100 {
		t.Fatalf("origin = (%v, %v)", spec.ULX, spec.ULY)
	}
	if spec.ULX+float64(spec.Cols)*30 < maxE || spec.ULY-float64(spec.Rows)*30 > minN {
		t.Fatalf("grid %dx%d does not cover the swath", spec.Rows, spec.Cols)
	}
	if m := spec.MapInfo(); m.Zone != 33 || !m.North || m.CellSize != 30 {
		t.Fatalf("map info = %+v", m)
	}
}

func TestProjectIsDeterministicAndAligned(t *testing.T) {
	idx, _, _ := buildIndex(t, 25, 18)

	a, err := idx.Project(ramp(25, 18, 1), model.DefaultNoData)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	again, _ := idx.Project(ramp(25, 18, 1), model.DefaultNoData)
	for i := range a.Data {
		if a.Data[i] != again.Data[i] {
			t.Fatalf("cell %d differs between runs: %v vs %v", i, a.Data[i], again.Data[i])
		}
	}

	// A second layer with no nodata-valued samples must land on the same cells.
	b, _ := idx.Project(ramp(25, 18, -3), model.DefaultNoData)
	for i := range a.Data {
		if (a.Data[i] == model.DefaultNoData) != (b.Data[i] == model.DefaultNoData) {
			t.Fatalf("cell %d valid in one layer only", i)
		}
		if a.Data[i] != model.DefaultNoData && b.Data[i] != -3*a.Data[i] {
			t.Fatalf("cell %d maps to different sources: %v vs %v", i, a.Data[i], b.Data[i])
		}
	}
	if idx.Coverage() <= 0 || idx.Coverage() >= 1 {
		t.Fatalf("coverage = %v, want partial for a rotated swath", idx.Coverage())
	}
}

func TestProjectEmitsNodataOutsideRadius(t *testing.T) {
	idx, east, north := buildIndex(t, 12, 10)
	out, err := idx.Project(model.NewGridFilled(12, 10, 7), model.DefaultNoData)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	spec := idx.spec
	r2 := spec.Radius() * spec.Radius()
	for r := 0; r < spec.Rows; r++ {
		for c := 0; c < spec.Cols; c++ {
			e, n := spec.CellCenter(r, c)
			near := false
			for i := range east.Data {
				de, dn := east.Data[i]-e, north.Data[i]-n
				if de*de+dn*dn < r2 {
					near = true
					break
				}
			}
			got := out.At(r, c)
			switch {
			case near && got != 7:
				t.Fatalf("cell (%d,%d) has a source but got %v", r, c, got)
			case !near && got != model.DefaultNoData:
				t.Fatalf("cell (%d,%d) has no source but got %v", r, c, got)
			}
		}
	}
	// The margin alone guarantees the corner cell is empty.
	if out.At(0, 0) != model.DefaultNoData {
		t.Fatalf("corner = %v, want nodata", out.At(0, 0))
	}
}

func TestProjectRejectsWrongShape(t *testing.T) {
	idx, _, _ := buildIndex(t, 6, 6)
	if _, err := idx.Project(model.NewGrid(6, 5), -1); !errors.Is(err, model.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestProjectAllKeepsOrder(t *testing.T) {
	idx, _, _ := buildIndex(t, 10, 8)
	layers := []*model.Grid{
		model.NewGridFilled(10, 8, 1),
		model.NewGridFilled(10, 8, 2),
		model.NewGridFilled(10, 8, 3),
	}
	out, err := idx.ProjectAll(context.Background(), layers, model.DefaultNoData, 2)
	if err != nil {
		t.Fatalf("ProjectAll: %v", err)
	}
	for i, o := range out {
		if _, hi, _ := o.MinMax(model.DefaultNoData); hi != float64(i+1) {
			t.Fatalf("layer %d max = %v", i, hi)
		}
	}
}

func TestNewIndexIgnoresNonFiniteSources(t *testing.T) {
	east, north := rotatedSwath(5, 5)
	spec, _ := GridFor(east, north, 30, DefaultMargin, testZone)
	for i := range east.Data {
		east.Data[i] = math.NaN()
	}
	if _, err := NewIndex(context.Background(), east, north, spec); !errors.Is(err, ErrEmptyGrid) {
		t.Fatalf("err = %v, want ErrEmptyGrid", err)
	}
}

func TestBlockAverage(t *testing.T) {
	const nd = model.DefaultNoData
	g, _ := model.GridFromRows([][]float64{
		{1, 3, nd, nd, -4, -2},
		{5, 7, nd, nd, 1, 1},
		{9, 9, 9, 9, 9, 9},
	})
	in := &model.OutputRaster{Grid: g, NoData: nd, Map: model.MapInfo{CellSize: 30}}

	out, err := BlockAverage(in, 2, false)
	if err != nil {
		t.Fatalf("BlockAverage: %v", err)
	}
	if out.Rows != 1 || out.Cols != 3 {
		t.Fatalf("shape = %dx%d, want 1x3", out.Rows, out.Cols)
	}
	want := []float64{4, nd, -1}
	for i, w := range want {
		if out.Data[i] != w {
			t.Fatalf("block %d = %v, want %v", i, out.Data[i], w)
		}
	}
	if out.Map.CellSize != 60 {
		t.Fatalf("cell size = %v, want 60", out.Map.CellSize)
	}

	clamped, _ := BlockAverage(in, 2, true)
	if clamped.Data[2] != 0 || clamped.Data[1] != nd {
		t.Fatalf("clamped = %v", clamped.Data)
	}
}

func TestBlockFactor(t *testing.T) {
	if f, err := BlockFactor(90, 30); err != nil || f != 3 {
		t.Fatalf("BlockFactor(90, 30) = %d, %v", f, err)
	}
	if _, err := BlockFactor(45, 30); err == nil {
		t.Fatal("expected error for 45 m on 30 m cells")
	}
}
