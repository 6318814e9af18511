package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// SolarEphemeris is the sun's apparent position at one instant, expressed
// as the subsolar point.
type SolarEphemeris struct {
	Time        time.Time
	Declination float64 // degrees
	SubsolarLon float64 // degrees east
	EqTime      float64 // equation of time, minutes
}

// julianDate returns the Julian date of t, including sub-second precision.
func julianDate(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	return satellite.JDay(year, int(month), day, hour, min, sec) + float64(t.Nanosecond())/8.64e13
}

// SunAt evaluates the NOAA low-precision solar ephemeris at t.
func SunAt(t time.Time) SolarEphemeris {
	t = t.UTC()
	jc := (julianDate(t) - 2451545.0) / 36525.0

	l0 := math.Mod(280.46646+jc*(36000.76983+jc*0.0003032), 360)
	m := 357.52911 + jc*(35999.05029-0.0001537*jc)
	e := 0.016708634 - jc*(0.000042037+0.0000001267*jc)

	mRad := m * degToRad
	c := math.Sin(mRad)*(1.914602-jc*(0.004817+0.000014*jc)) +
		math.Sin(2*mRad)*(0.019993-0.000101*jc) +
		math.Sin(3*mRad)*0.000289

	omega := (125.04 - 1934.136*jc) * degToRad
	lambda := (l0 + c - 0.00569 - 0.00478*math.Sin(omega)) * degToRad

	eps0 := 23 + (26+(21.448-jc*(46.815+jc*(0.00059-0.001813*jc)))/60)/60
	eps := (eps0 + 0.00256*math.Cos(omega)) * degToRad

	decl := math.Asin(math.Sin(eps) * math.Sin(lambda))

	y := math.Tan(eps / 2)
	y *= y
	l0Rad := l0 * degToRad
	eqTime := 4 * radToDeg * (y*math.Sin(2*l0Rad) -
		2*e*math.Sin(mRad) +
		4*e*y*math.Sin(mRad)*math.Cos(2*l0Rad) -
		0.5*y*y*math.Sin(4*l0Rad) -
		1.25*e*e*math.Sin(2*mRad))

	minutes := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60 + float64(t.Nanosecond())/6e10
	return SolarEphemeris{
		Time:        t,
		Declination: decl * radToDeg,
		SubsolarLon: wrapLongitude((720 - (minutes + eqTime)) / 4),
		EqTime:      eqTime,
	}
}

// Angles returns the solar zenith and azimuth (degrees, azimuth clockwise
// from north in [0, 360)) seen from a ground point. Atmospheric refraction is
// not applied.
func (s SolarEphemeris) Angles(lon, lat float64) (zenith, azimuth float64) {
	phi := lat * degToRad
	delta := s.Declination * degToRad
	h := (lon - s.SubsolarLon) * degToRad

	sinPhi, cosPhi := math.Sincos(phi)
	sinD, cosD := math.Sincos(delta)
	sinH, cosH := math.Sincos(h)

	cosZ := clampUnit(sinPhi*sinD + cosPhi*cosD*cosH)
	zenith = math.Acos(cosZ) * radToDeg
	azimuth = wrapAzimuth(math.Atan2(-cosD*sinH, cosPhi*sinD-sinPhi*cosD*cosH) * radToDeg)
	return zenith, azimuth
}

func wrapLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func wrapAzimuth(az float64) float64 {
	az = math.Mod(az, 360)
	if az < 0 {
		az += 360
	}
	return az
}
