package core

import "math"

// clampUnit pins a cosine into [-1, 1] so that rounding just outside the
// domain does not turn acos into NaN.
func clampUnit(c float64) float64 {
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

// Pathlength is the straight-line distance in metres between the sensor and
// a ground point, both in ECEF metres.
func Pathlength(sensor, ground Vec3) float64 {
	return sensor.DistanceTo(ground)
}

// SensorAngles returns the zenith and azimuth (degrees) of the direction
// from a ground point to the sensor. Both points are given in the scene's
// planar frame as easting, northing and height.
func SensorAngles(sensor, ground Vec3) (zenith, azimuth float64) {
	d := sensor.Sub(ground)
	n := d.Norm()
	if n == 0 {
		return 0, 0
	}
	zenith = 90 - math.Asin(clampUnit(d.Z/n))*radToDeg
	azimuth = wrapAzimuth(math.Atan2(d.X, d.Y) * radToDeg)
	return zenith, azimuth
}

// PhaseFromCosine is acos with its argument clamped to [-1, 1], in radians.
func PhaseFromCosine(c float64) float64 {
	return math.Acos(clampUnit(c))
}

// PhaseAngle is the angle in radians between the to-sun and to-sensor
// directions at a ground point, from the spherical law of cosines. Inputs
// are degrees.
func PhaseAngle(solarZenith, solarAzimuth, sensorZenith, sensorAzimuth float64) float64 {
	sz, vz := solarZenith*degToRad, sensorZenith*degToRad
	dAz := (solarAzimuth - sensorAzimuth) * degToRad
	return PhaseFromCosine(math.Cos(sz)*math.Cos(vz) + math.Sin(sz)*math.Sin(vz)*math.Cos(dAz))
}

// CosineI is the cosine of the local solar illumination angle on a tilted
// surface. All inputs are degrees.
func CosineI(solarZenith, solarAzimuth, slope, aspect float64) float64 {
	sz, s := solarZenith*degToRad, slope*degToRad
	rel := (solarAzimuth - aspect) * degToRad
	return math.Cos(sz)*math.Cos(s) + math.Sin(sz)*math.Sin(s)*math.Cos(rel)
}
