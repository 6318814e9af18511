package projector

import "gonum.org/v1/gonum/spatial/kdtree"

// sourcePixel is a swath pixel in planar coordinates, carrying its flat
// index into the source grid.
type sourcePixel struct {
	east, north float64
	index       int
}

func (p sourcePixel) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(sourcePixel)
	if d == 0 {
		return p.east - q.east
	}
	return p.north - q.north
}

func (p sourcePixel) Dims() int { return 2 }

// Distance is the squared planar distance.
func (p sourcePixel) Distance(c kdtree.Comparable) float64 {
	q := c.(sourcePixel)
	de, dn := p.east-q.east, p.north-q.north
	return de*de + dn*dn
}

func (p sourcePixel) coord(d kdtree.Dim) float64 {
	if d == 0 {
		return p.east
	}
	return p.north
}

type sourcePixels []sourcePixel

func (p sourcePixels) Index(i int) kdtree.Comparable { return p[i] }
func (p sourcePixels) Len() int                      { return len(p) }
func (p sourcePixels) Pivot(d kdtree.Dim) int        { return plane{dim: d, sourcePixels: p}.Pivot() }
func (p sourcePixels) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// plane sorts source pixels along one dimension for median partitioning.
type plane struct {
	dim kdtree.Dim
	sourcePixels
}

func (p plane) Less(i, j int) bool {
	return p.sourcePixels[i].coord(p.dim) < p.sourcePixels[j].coord(p.dim)
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.sourcePixels = p.sourcePixels[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.sourcePixels[i], p.sourcePixels[j] = p.sourcePixels[j], p.sourcePixels[i]
}
