package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom/proj"

	"github.com/signalsfoundry/swath-geolocator/model"
)

// ErrNoCoordinates is returned when a zone is requested for a scene with
// no finite coordinates.
var ErrNoCoordinates = errors.New("no finite coordinates")

// Zone identifies a UTM zone and hemisphere.
type Zone struct {
	Number int
	North  bool
}

// Hemisphere returns "North" or "South", as written into map info.
func (z Zone) Hemisphere() string {
	if z.North {
		return "North"
	}
	return "South"
}

func (z Zone) String() string {
	return fmt.Sprintf("%d%s", z.Number, z.Hemisphere()[:1])
}

// ParseZone reads a zone written as its number and hemisphere letter, for
// example "33N" or "11s".
func ParseZone(s string) (Zone, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return Zone{}, fmt.Errorf("utm zone %q: want number and N or S", s)
	}
	hemi := s[len(s)-1]
	if hemi != 'N' && hemi != 'S' {
		return Zone{}, fmt.Errorf("utm zone %q: want number and N or S", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 1 || n > 60 {
		return Zone{}, fmt.Errorf("utm zone %q: number must be 1-60", s)
	}
	return Zone{Number: n, North: hemi == 'N'}, nil
}

// CentralMeridian is the zone's central longitude in degrees.
func (z Zone) CentralMeridian() float64 { return float64(z.Number)*6 - 183 }

// ZoneFor returns the zone containing a single point, honouring the Norway
// and Svalbard exceptions.
func ZoneFor(lon, lat float64) Zone {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	lon -= 180
	n := int(math.Floor((lon+180)/6)) + 1
	if n > 60 {
		n = 60
	}
	switch {
	case lat >= 56 && lat < 64 && lon >= 3 && lon < 12:
		n = 32
	case lat >= 72 && lat < 84:
		switch {
		case lon >= 0 && lon < 9:
			n = 31
		case lon >= 9 && lon < 21:
			n = 33
		case lon >= 21 && lon < 33:
			n = 35
		case lon >= 33 && lon < 42:
			n = 37
		}
	}
	return Zone{Number: n, North: lat >= 0}
}

// ZoneForScene picks one zone for a whole scene from the centre of its
// longitude/latitude bounding box, so every pixel is projected with the same
// zone regardless of which zone it falls in individually.
func ZoneForScene(lon, lat *model.Grid) (Zone, error) {
	if err := model.CheckShapes("zone", lon, lat); err != nil {
		return Zone{}, err
	}
	lonLo, lonHi, ok := lon.MinMax(math.NaN())
	if !ok {
		return Zone{}, fmt.Errorf("scene longitude: %w", ErrNoCoordinates)
	}
	latLo, latHi, ok := lat.MinMax(math.NaN())
	if !ok {
		return Zone{}, fmt.Errorf("scene latitude: %w", ErrNoCoordinates)
	}
	return ZoneFor((lonLo+lonHi)/2, (latLo+latHi)/2), nil
}

// longLatProj is the geographic source system of every zone transform.
const longLatProj = "+proj=longlat +datum=WGS84 +no_defs"

// zoneTransform holds both directions between geographic coordinates and
// one zone. Transforms are built once per zone and shared.
type zoneTransform struct {
	forward, inverse proj.Transformer
}

var zoneTransforms sync.Map // Zone -> *zoneTransform

// proj4 returns the proj4 definition of the zone on WGS-84.
func (z Zone) proj4() string {
	def := fmt.Sprintf("+proj=utm +zone=%d", z.Number)
	if !z.North {
		def += " +south"
	}
	return def + " +datum=WGS84 +units=m +no_defs"
}

func transformFor(z Zone) (*zoneTransform, error) {
	if t, ok := zoneTransforms.Load(z); ok {
		return t.(*zoneTransform), nil
	}
	if z.Number < 1 || z.Number > 60 {
		return nil, fmt.Errorf("utm zone %d: number must be 1-60", z.Number)
	}
	geoSR, err := proj.Parse(longLatProj)
	if err != nil {
		return nil, fmt.Errorf("while parsing geographic projection: %w", err)
	}
	utmSR, err := proj.Parse(z.proj4())
	if err != nil {
		return nil, fmt.Errorf("while parsing zone %v: %w", z, err)
	}
	forward, err := geoSR.NewTransform(utmSR)
	if err != nil {
		return nil, fmt.Errorf("while creating zone %v transform: %w", z, err)
	}
	inverse, err := utmSR.NewTransform(geoSR)
	if err != nil {
		return nil, fmt.Errorf("while creating zone %v inverse: %w", z, err)
	}
	t, _ := zoneTransforms.LoadOrStore(z, &zoneTransform{forward: forward, inverse: inverse})
	return t.(*zoneTransform), nil
}

// GeodeticToUTM projects longitude/latitude (degrees) into the given zone,
// returning easting and northing in metres.
func GeodeticToUTM(lon, lat float64, z Zone) (east, north float64, err error) {
	t, err := transformFor(z)
	if err != nil {
		return 0, 0, err
	}
	return t.forward(lon, lat)
}

// UTMToGeodetic inverts GeodeticToUTM.
func UTMToGeodetic(east, north float64, z Zone) (lon, lat float64, err error) {
	t, err := transformFor(z)
	if err != nil {
		return 0, 0, err
	}
	return t.inverse(east, north)
}

// GridToUTM projects every pixel of a geolocation grid into zone z. NaN
// coordinates stay NaN. The returned up layer is a copy of the elevation.
func GridToUTM(geo *model.GeolocationGrid, z Zone) (east, north, up *model.Grid, err error) {
	if err := geo.Validate(); err != nil {
		return nil, nil, nil, err
	}
	t, err := transformFor(z)
	if err != nil {
		return nil, nil, nil, err
	}
	rows, cols := geo.Shape()
	east, north = model.NewGrid(rows, cols), model.NewGrid(rows, cols)
	if err := apply(t.forward, geo.Longitude, geo.Latitude, east, north); err != nil {
		return nil, nil, nil, err
	}
	return east, north, geo.Elevation.Clone(), nil
}

// UTMToGrid inverts GridToUTM for easting/northing grids, returning
// longitude and latitude grids.
func UTMToGrid(east, north *model.Grid, z Zone) (lon, lat *model.Grid, err error) {
	if err := model.CheckShapes("utm", east, north); err != nil {
		return nil, nil, err
	}
	t, err := transformFor(z)
	if err != nil {
		return nil, nil, err
	}
	lon, lat = model.NewGrid(east.Rows, east.Cols), model.NewGrid(east.Rows, east.Cols)
	if err := apply(t.inverse, east, north, lon, lat); err != nil {
		return nil, nil, err
	}
	return lon, lat, nil
}

func apply(tr proj.Transformer, xs, ys, outX, outY *model.Grid) error {
	for i, x := range xs.Data {
		y := ys.Data[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			outX.Data[i], outY.Data[i] = math.NaN(), math.NaN()
			continue
		}
		var err error
		if outX.Data[i], outY.Data[i], err = tr(x, y); err != nil {
			return fmt.Errorf("cell %d (%v, %v): %w", i, x, y, err)
		}
	}
	return nil
}
