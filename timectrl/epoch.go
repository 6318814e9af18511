// Package timectrl aligns satellite telemetry with image scan lines. Both
// series are reduced to UTC seconds of day, fitted with straight lines, and
// the satellite position is evaluated at every fitted line time.
package timectrl

import (
	"math"
	"time"
)

const (
	secondsPerDay  = 86400.0
	secondsPerWeek = 7 * secondsPerDay
)

// DefaultGPSLeapSeconds is the GPS-UTC offset applied to telemetry time
// stamps. The archive's own line times agree with 17 s rather than the
// nominal 18 s, so that is the default; it is a configuration value.
const DefaultGPSLeapSeconds = 17.0

var (
	mjd2000Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	gpsEpoch     = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)
)

// MJD2000ToTime converts fractional days since 2000-01-01T00:00Z to a UTC
// time with microsecond resolution.
func MJD2000ToTime(days float64) time.Time {
	whole := math.Floor(days)
	frac := days - whole
	micros := math.Round(frac * secondsPerDay * 1e6)
	return mjd2000Epoch.AddDate(0, 0, int(whole)).Add(time.Duration(micros) * time.Microsecond)
}

// TimeToMJD2000 is the inverse of MJD2000ToTime.
func TimeToMJD2000(t time.Time) float64 {
	return t.UTC().Sub(mjd2000Epoch).Seconds() / secondsPerDay
}

// MJD2000ToSecondsOfDay converts an MJD2000 day count to UTC seconds since
// midnight.
func MJD2000ToSecondsOfDay(days float64) float64 {
	return SecondsOfDay(MJD2000ToTime(days))
}

// GPSToTime converts a GPS week number and seconds-of-week to UTC using the
// supplied leap-second offset.
func GPSToTime(week int, seconds, leapSeconds float64) time.Time {
	offset := seconds - leapSeconds
	return gpsEpoch.AddDate(0, 0, 7*week).Add(time.Duration(math.Round(offset*1e9)) * time.Nanosecond)
}

// TimeToGPS is the inverse of GPSToTime.
func TimeToGPS(t time.Time, leapSeconds float64) (week int, seconds float64) {
	elapsed := t.UTC().Sub(gpsEpoch).Seconds() + leapSeconds
	week = int(math.Floor(elapsed / secondsPerWeek))
	return week, elapsed - float64(week)*secondsPerWeek
}

// GPSToSecondsOfDay converts GPS week/seconds to UTC seconds since midnight.
func GPSToSecondsOfDay(week int, seconds, leapSeconds float64) float64 {
	return SecondsOfDay(GPSToTime(week, seconds, leapSeconds))
}

// SecondsOfDay returns the seconds elapsed since UTC midnight of t's day.
func SecondsOfDay(t time.Time) float64 {
	t = t.UTC()
	h, m, s := t.Clock()
	return float64(h*3600+m*60+s) + float64(t.Nanosecond())/1e9
}

// DecimalHours converts seconds since a midnight to decimal hours of that
// day, wrapping whole days away.
func DecimalHours(seconds float64) float64 { return math.Mod(seconds, 86400) / 3600.0 }

// MeanTime returns the UTC instant at the mean of a set of MJD2000 day
// counts. Solar geometry for a whole scene is evaluated at this instant.
func MeanTime(days []float64) time.Time {
	if len(days) == 0 {
		return mjd2000Epoch
	}
	var sum float64
	for _, d := range days {
		sum += d
	}
	return MJD2000ToTime(sum / float64(len(days)))
}

// UnwrapDay makes a seconds-of-day series continuous across UTC midnight:
// whenever a value drops by more than half a day relative to its
// predecessor, one day is added to it and everything after it.
func UnwrapDay(values []float64) []float64 {
	out := make([]float64, len(values))
	var shift float64
	for i, v := range values {
		if i > 0 {
			prev := values[i-1]
			if prev-v > secondsPerDay/2 {
				shift += secondsPerDay
			} else if v-prev > secondsPerDay/2 {
				shift -= secondsPerDay
			}
		}
		out[i] = v + shift
	}
	return out
}
