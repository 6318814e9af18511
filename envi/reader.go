package envi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/model"
)

// ENVI data type code for 64-bit float.
const dataTypeFloat64 = 5

// ErrUnsupported is returned for headers describing layouts the reader
// does not handle.
var ErrUnsupported = errors.New("unsupported ENVI layout")

// layout is the part of a header needed to locate pixels.
type layout struct {
	samples, lines, bands int
	offset                int
	dataType              int
	interleave            string
	bigEndian             bool
}

func parseLayout(h map[string]string) (layout, error) {
	var l layout
	ints := []struct {
		key      string
		dst      *int
		optional bool
	}{
		{"samples", &l.samples, false},
		{"lines", &l.lines, false},
		{"bands", &l.bands, false},
		{"data type", &l.dataType, false},
		{"header offset", &l.offset, true},
	}
	for _, f := range ints {
		v, ok := h[f.key]
		if !ok {
			if f.optional {
				continue
			}
			return layout{}, fmt.Errorf("header has no %q", f.key)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return layout{}, fmt.Errorf("header %q: %w", f.key, err)
		}
		*f.dst = n
	}
	l.interleave = strings.ToLower(h["interleave"])
	if l.interleave == "" {
		l.interleave = model.InterleaveBSQ
	}
	l.bigEndian = h["byte order"] == "1"
	return l, nil
}

func (l layout) size() int {
	if l.dataType == dataTypeFloat64 {
		return 8
	}
	return 4
}

// index returns the element index of (line, band, sample).
func (l layout) index(line, band, sample int) (int, error) {
	switch l.interleave {
	case model.InterleaveBSQ:
		return (band*l.lines+line)*l.samples + sample, nil
	case model.InterleaveBIL:
		return (line*l.bands+band)*l.samples + sample, nil
	case "bip":
		return (line*l.samples+sample)*l.bands + band, nil
	default:
		return 0, fmt.Errorf("interleave %q: %w", l.interleave, ErrUnsupported)
	}
}

// ReadBand reads one band of the ENVI image name (without the header
// suffix) as a lines x samples grid. Float32 and float64 data in either
// byte order and any of the three interleaves are accepted.
func ReadBand(fa fileaccess.FileAccess, loc fileaccess.Location, name string, band int) (*model.Grid, error) {
	key := loc.Key(name)
	hdr, err := fa.ReadObject(loc.Root, key+HeaderSuffix)
	if err != nil {
		return nil, fmt.Errorf("read %s%s: %w", key, HeaderSuffix, err)
	}
	fields, err := ParseHeader(string(hdr))
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", key, HeaderSuffix, err)
	}
	l, err := parseLayout(fields)
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", key, HeaderSuffix, err)
	}
	if l.dataType != dataTypeFloat32 && l.dataType != dataTypeFloat64 {
		return nil, fmt.Errorf("data type %d: %w", l.dataType, ErrUnsupported)
	}
	if band < 0 || band >= l.bands {
		return nil, fmt.Errorf("band %d of %d: %w", band, l.bands, model.ErrShapeMismatch)
	}

	raw, err := fa.ReadObject(loc.Root, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	want := l.offset + l.size()*l.samples*l.lines*l.bands
	if len(raw) < want {
		return nil, fmt.Errorf("%s holds %d bytes, header needs %d: %w", key, len(raw), want, model.ErrShapeMismatch)
	}
	raw = raw[l.offset:]

	var order binary.ByteOrder = binary.LittleEndian
	if l.bigEndian {
		order = binary.BigEndian
	}
	out := model.NewGrid(l.lines, l.samples)
	for r := 0; r < l.lines; r++ {
		for c := 0; c < l.samples; c++ {
			i, err := l.index(r, band, c)
			if err != nil {
				return nil, err
			}
			var v float64
			if l.dataType == dataTypeFloat64 {
				v = math.Float64frombits(order.Uint64(raw[8*i:]))
			} else {
				v = float64(math.Float32frombits(order.Uint32(raw[4*i:])))
			}
			out.Set(r, c, v)
		}
	}
	return out, nil
}
