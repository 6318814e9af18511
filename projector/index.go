package projector

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// noSource marks an output cell with no source pixel within the radius.
const noSource = -1

// Index maps every output cell of a GridSpec to the flat index of its
// nearest source pixel. It is immutable once built, so one Index can serve
// any number of layers concurrently and all of them share the same
// pixel-to-pixel correspondence.
type Index struct {
	spec       GridSpec
	srcRows    int
	srcCols    int
	cells      []int
	validCells int
}

// NewIndex builds a k-d tree over the source planar coordinates and resolves
// every output cell centre against it. Source pixels with non-finite
// coordinates are ignored.
func NewIndex(ctx context.Context, east, north *model.Grid, spec GridSpec) (*Index, error) {
	if err := model.CheckShapes("projection source", east, north); err != nil {
		return nil, err
	}
	if spec.Rows <= 0 || spec.Cols <= 0 || !(spec.CellSize > 0) {
		return nil, fmt.Errorf("grid %dx%d cell %v: %w", spec.Rows, spec.Cols, spec.CellSize, ErrEmptyGrid)
	}

	pts := make(sourcePixels, 0, east.Len())
	for i := range east.Data {
		e, n := east.Data[i], north.Data[i]
		if math.IsNaN(e) || math.IsNaN(n) || math.IsInf(e, 0) || math.IsInf(n, 0) {
			continue
		}
		pts = append(pts, sourcePixel{east: e, north: n, index: i})
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("no finite source coordinates: %w", ErrEmptyGrid)
	}
	tree := kdtree.New(pts, false)

	idx := &Index{
		spec:    spec,
		srcRows: east.Rows,
		srcCols: east.Cols,
		cells:   make([]int, spec.Rows*spec.Cols),
	}
	r2 := spec.Radius() * spec.Radius()

	// Rows are resolved in parallel; each worker writes only its own rows.
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	counts := make([]int, spec.Rows)
	for r := 0; r < spec.Rows; r++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := idx.cells[r*spec.Cols : (r+1)*spec.Cols]
			for c := range row {
				e, n := spec.CellCenter(r, c)
				got, d2 := tree.Nearest(sourcePixel{east: e, north: n})
				if got == nil || d2 >= r2 {
					row[c] = noSource
					continue
				}
				row[c] = got.(sourcePixel).index
				counts[r]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, n := range counts {
		idx.validCells += n
	}
	return idx, nil
}

// Coverage is the fraction of output cells that have a source pixel.
func (x *Index) Coverage() float64 {
	if len(x.cells) == 0 {
		return 0
	}
	return float64(x.validCells) / float64(len(x.cells))
}

// Project resamples one source layer onto the grid. Cells with no source
// pixel within the search radius are set to nodata exactly.
func (x *Index) Project(band *model.Grid, nodata float64) (*model.OutputRaster, error) {
	if band == nil || band.Rows != x.srcRows || band.Cols != x.srcCols {
		return nil, fmt.Errorf("project: layer does not match %dx%d source: %w", x.srcRows, x.srcCols, model.ErrShapeMismatch)
	}
	out := model.NewGrid(x.spec.Rows, x.spec.Cols)
	for i, src := range x.cells {
		if src == noSource {
			out.Data[i] = nodata
			continue
		}
		out.Data[i] = band.Data[src]
	}
	return &model.OutputRaster{Grid: out, NoData: nodata, Map: x.spec.MapInfo()}, nil
}

// ProjectAll projects several layers with bounded parallelism. The output
// order matches the input order.
func (x *Index) ProjectAll(ctx context.Context, bands []*model.Grid, nodata float64, workers int) ([]*model.OutputRaster, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]*model.OutputRaster, len(bands))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, b := range bands {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := x.Project(b, nodata)
			if err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
