// Package reference loads an orthorectified single-band image used as the
// co-registration target and resamples it onto the pipeline's output grid.
package reference

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"path"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/tiff"

	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/model"
	"github.com/signalsfoundry/swath-geolocator/projector"
)

// ErrZoneMismatch is returned when the target grid is in a different UTM
// zone from the reference image.
var ErrZoneMismatch = errors.New("reference image zone differs from target grid")

// WorldFile is the six-term affine of an ESRI world file. C and F locate the
// centre of the upper-left pixel.
type WorldFile struct {
	A, D, B, E, C, F float64
}

// ParseWorldFile reads the six numbers of a .tfw/.wld file.
func ParseWorldFile(data []byte) (WorldFile, error) {
	var v []float64
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		f, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return WorldFile{}, fmt.Errorf("world file line %d: %w", len(v)+1, err)
		}
		v = append(v, f)
	}
	if err := sc.Err(); err != nil {
		return WorldFile{}, err
	}
	if len(v) != 6 {
		return WorldFile{}, fmt.Errorf("world file has %d terms, want 6", len(v))
	}
	w := WorldFile{A: v[0], D: v[1], B: v[2], E: v[3], C: v[4], F: v[5]}
	if w.A*w.E-w.B*w.D == 0 {
		return WorldFile{}, fmt.Errorf("world file transform is singular")
	}
	return w, nil
}

// Pixel maps planar coordinates to fractional pixel coordinates (x right,
// y down), with integers at pixel centres.
func (w WorldFile) Pixel(east, north float64) (x, y float64) {
	det := w.A*w.E - w.B*w.D
	de, dn := east-w.C, north-w.F
	return (w.E*de - w.B*dn) / det, (w.A*dn - w.D*de) / det
}

// Image is a georeferenced single-band reference raster.
type Image struct {
	Data  *model.Grid
	World WorldFile
	Zone  core.Zone
}

// Load reads <name>.tif and its world file (<name>.tfw, else <name>.wld)
// from root. zone is the UTM zone the world file coordinates are in.
func Load(fa fileaccess.FileAccess, root, name string, zone core.Zone) (*Image, error) {
	base := strings.TrimSuffix(name, path.Ext(name))
	raw, err := fa.ReadObject(root, base+".tif")
	if err != nil {
		return nil, fmt.Errorf("reference image: %w", err)
	}
	grid, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("reference image %s: %w", base, err)
	}

	var world []byte
	for _, ext := range []string{".tfw", ".wld"} {
		world, err = fa.ReadObject(root, base+ext)
		if err == nil || !fa.IsNotFoundError(err) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("reference world file: %w", err)
	}
	w, err := ParseWorldFile(world)
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", base, err)
	}
	return &Image{Data: grid, World: w, Zone: zone}, nil
}

// Source loads a reference image on first use. Without a fixed zone the
// image is taken to be in the zone of the first grid it is asked for, which
// is how references prepared per scene are delivered.
type Source struct {
	fa         fileaccess.FileAccess
	root, name string
	zone       *core.Zone

	once sync.Once
	img  *Image
	err  error
}

// NewSource returns a lazily loaded reference. zone may be nil.
func NewSource(fa fileaccess.FileAccess, root, name string, zone *core.Zone) *Source {
	return &Source{fa: fa, root: root, name: name, zone: zone}
}

// Resample loads the image if needed and resamples it onto spec.
func (s *Source) Resample(spec projector.GridSpec, zone core.Zone) (*model.Grid, error) {
	s.once.Do(func() {
		z := zone
		if s.zone != nil {
			z = *s.zone
		}
		s.img, s.err = Load(s.fa, s.root, s.name, z)
	})
	if s.err != nil {
		return nil, s.err
	}
	return s.img.Resample(spec, zone)
}

func decode(raw []byte) (*model.Grid, error) {
	img, err := tiff.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	g := model.NewGrid(b.Dy(), b.Dx())
	for y := 0; y < g.Rows; y++ {
		for x := 0; x < g.Cols; x++ {
			px, py := b.Min.X+x, b.Min.Y+y
			switch im := img.(type) {
			case *image.Gray16:
				g.Set(y, x, float64(im.Gray16At(px, py).Y))
			case *image.Gray:
				g.Set(y, x, float64(im.GrayAt(px, py).Y))
			default:
				// Multi-channel input is reduced to luminance.
				r, gg, bb, _ := img.At(px, py).RGBA()
				g.Set(y, x, 0.299*float64(r)+0.587*float64(gg)+0.114*float64(bb))
			}
		}
	}
	return g, nil
}

// Resample bilinearly samples the image at every cell centre of spec.
// Cells whose four neighbours are not all inside the image are NaN.
func (im *Image) Resample(spec projector.GridSpec, zone core.Zone) (*model.Grid, error) {
	if zone != im.Zone || spec.Zone != im.Zone {
		return nil, fmt.Errorf("reference %s vs grid %s: %w", im.Zone, zone, ErrZoneMismatch)
	}
	out := model.NewGrid(spec.Rows, spec.Cols)
	for r := 0; r < spec.Rows; r++ {
		for c := 0; c < spec.Cols; c++ {
			e, n := spec.CellCenter(r, c)
			x, y := im.World.Pixel(e, n)
			out.Set(r, c, im.bilinear(x, y))
		}
	}
	return out, nil
}

func (im *Image) bilinear(x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	ix, iy := int(x0), int(y0)
	if ix < 0 || iy < 0 || ix >= im.Data.Cols || iy >= im.Data.Rows {
		return math.NaN()
	}
	dx, dy := x-x0, y-y0
	ix1, iy1 := ix+1, iy+1
	if ix1 >= im.Data.Cols {
		if dx > 0 {
			return math.NaN()
		}
		ix1 = ix
	}
	if iy1 >= im.Data.Rows {
		if dy > 0 {
			return math.NaN()
		}
		iy1 = iy
	}
	return (1-dx)*(1-dy)*im.Data.At(iy, ix) + dx*(1-dy)*im.Data.At(iy, ix1) +
		(1-dx)*dy*im.Data.At(iy1, ix) + dx*dy*im.Data.At(iy1, ix1)
}
