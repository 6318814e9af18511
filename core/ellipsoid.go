package core

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A   = 6378137.0             // semi-major axis (metres)
	wgs84F   = 1.0 / 298.257223563   // flattening
	wgs84E2  = wgs84F * (2 - wgs84F) // first eccentricity squared
	wgs84B   = wgs84A * (1 - wgs84F) // semi-minor axis (metres)
	wgs84EP2 = wgs84E2 / (1 - wgs84E2)

	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Geodetic is a WGS-84 position: longitude and latitude in degrees, height
// in metres above the ellipsoid.
type Geodetic struct {
	Lon, Lat, Height float64
}

// GeodeticToECEF converts a geodetic position to ECEF metres.
func GeodeticToECEF(lon, lat, h float64) Vec3 {
	phi := lat * degToRad
	lam := lon * degToRad
	sinPhi, cosPhi := math.Sincos(phi)
	sinLam, cosLam := math.Sincos(lam)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinPhi*sinPhi)

	return Vec3{
		X: (n + h) * cosPhi * cosLam,
		Y: (n + h) * cosPhi * sinLam,
		Z: (n*(1-wgs84E2) + h) * sinPhi,
	}
}

// ECEFToGeodetic converts ECEF metres to a geodetic position. Latitude is
// seeded with Bowring's parametric estimate and refined until it moves by
// less than 1e-14 rad, which keeps the round trip well under a millimetre.
func ECEFToGeodetic(p Vec3) Geodetic {
	lon := math.Atan2(p.Y, p.X)
	rho := math.Hypot(p.X, p.Y)

	if rho < 1e-9 {
		// On the polar axis.
		lat := math.Copysign(90, p.Z)
		return Geodetic{Lon: 0, Lat: lat, Height: math.Abs(p.Z) - wgs84B}
	}

	beta := math.Atan2(p.Z*wgs84A, rho*wgs84B)
	sinB, cosB := math.Sincos(beta)
	lat := math.Atan2(p.Z+wgs84EP2*wgs84B*sinB*sinB*sinB, rho-wgs84E2*wgs84A*cosB*cosB*cosB)

	for i := 0; i < 10; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		next := math.Atan2(p.Z+wgs84E2*n*sinLat, rho)
		done := math.Abs(next-lat) < 1e-14
		lat = next
		if done {
			break
		}
	}

	sinLat, cosLat := math.Sincos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	var h float64
	if math.Abs(cosLat) > 1e-10 {
		h = rho/cosLat - n
	} else {
		h = math.Abs(p.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{Lon: lon * radToDeg, Lat: lat * radToDeg, Height: h}
}

// ECEFToENU rotates an ECEF displacement into the local east-north-up frame
// at the given geodetic origin.
func ECEFToENU(d Vec3, lon, lat float64) Vec3 {
	sinPhi, cosPhi := math.Sincos(lat * degToRad)
	sinLam, cosLam := math.Sincos(lon * degToRad)
	return Vec3{
		X: -sinLam*d.X + cosLam*d.Y,
		Y: -sinPhi*cosLam*d.X - sinPhi*sinLam*d.Y + cosPhi*d.Z,
		Z: cosPhi*cosLam*d.X + cosPhi*sinLam*d.Y + sinPhi*d.Z,
	}
}
