// Package envi writes products as ENVI raw images: a flat little-endian
// float32 data object plus a plain-text .hdr describing it. It also reads
// single bands back, which is how auxiliary surfaces are supplied.
package envi

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/model"
)

// ENVI data type code for 32-bit float.
const dataTypeFloat32 = 4

// HeaderSuffix is appended to the data object name for its header.
const HeaderSuffix = ".hdr"

// Writer stores products through a FileAccess under a location.
type Writer struct {
	fa  fileaccess.FileAccess
	loc fileaccess.Location
}

// NewWriter returns a writer targeting loc.
func NewWriter(fa fileaccess.FileAccess, loc fileaccess.Location) *Writer {
	return &Writer{fa: fa, loc: loc}
}

// Location is where products are written.
func (w *Writer) Location() fileaccess.Location { return w.loc }

// WriteProduct writes the data object and then the header. A product
// without a header is incomplete, so a failure part way leaves no header
// behind.
func (w *Writer) WriteProduct(ctx context.Context, name string, p *model.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("product %s: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	name = fileaccess.MakeValidObjectName(name)
	key := w.loc.Key(name)

	if err := w.fa.WriteObject(w.loc.Root, key, encode(p)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.fa.WriteObject(w.loc.Root, key+HeaderSuffix, []byte(Header(p))); err != nil {
		return fmt.Errorf("write %s%s: %w", key, HeaderSuffix, err)
	}
	return nil
}

// DeleteProduct removes the header and then the data object of a product.
// Objects that do not exist are not an error.
func (w *Writer) DeleteProduct(_ context.Context, name string) error {
	key := w.loc.Key(fileaccess.MakeValidObjectName(name))
	for _, k := range []string{key + HeaderSuffix, key} {
		if err := w.fa.DeleteObject(w.loc.Root, k); err != nil && !w.fa.IsNotFoundError(err) {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

func encode(p *model.Product) []byte {
	rows, cols := p.Shape()
	nb := len(p.Bands)
	buf := make([]byte, 4*rows*cols*nb)
	put := func(i int, v float64) {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	i := 0
	if p.Interleave == model.InterleaveBIL {
		for r := 0; r < rows; r++ {
			for _, b := range p.Bands {
				for _, v := range b.Row(r) {
					put(i, v)
					i++
				}
			}
		}
		return buf
	}
	for _, b := range p.Bands {
		for _, v := range b.Data {
			put(i, v)
			i++
		}
	}
	return buf
}

// Header renders the ENVI header for p.
func Header(p *model.Product) string {
	rows, cols := p.Shape()
	interleave := p.Interleave
	if interleave == "" {
		interleave = model.InterleaveBSQ
	}

	var b strings.Builder
	b.WriteString("ENVI\n")
	fmt.Fprintf(&b, "description = {%s}\n", p.Description)
	fmt.Fprintf(&b, "samples = %d\n", cols)
	fmt.Fprintf(&b, "lines = %d\n", rows)
	fmt.Fprintf(&b, "bands = %d\n", len(p.Bands))
	b.WriteString("header offset = 0\n")
	b.WriteString("file type = ENVI Standard\n")
	fmt.Fprintf(&b, "data type = %d\n", dataTypeFloat32)
	fmt.Fprintf(&b, "interleave = %s\n", interleave)
	b.WriteString("byte order = 0\n")
	if p.Map != nil {
		m := p.Map
		hemi := core.Zone{Number: m.Zone, North: m.North}.Hemisphere()
		fmt.Fprintf(&b, "map info = {%s, 1.000, 1.000, %s, %s, %s, %s, %d, %s, %s, units=Meters}\n",
			m.Projection, num(m.ULX), num(m.ULY), num(m.CellSize), num(m.CellSize), m.Zone, hemi, m.Datum)
	}
	if len(p.Wavelength) > 0 {
		b.WriteString("wavelength units = Nanometers\n")
		fmt.Fprintf(&b, "wavelength = {%s}\n", joinFloats(p.Wavelength))
	}
	if len(p.FWHM) > 0 {
		fmt.Fprintf(&b, "fwhm = {%s}\n", joinFloats(p.FWHM))
	}
	if len(p.BandNames) > 0 {
		fmt.Fprintf(&b, "band names = {%s}\n", strings.Join(p.BandNames, ", "))
	}
	if p.HasNoData {
		fmt.Fprintf(&b, "data ignore value = %s\n", num(p.NoData))
	}
	return b.String()
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = num(f)
	}
	return strings.Join(parts, ", ")
}
