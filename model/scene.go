package model

// SatellitePositionSample is one raw telemetry record: GPS week number,
// GPS seconds-of-week and the ECEF position in metres.
type SatellitePositionSample struct {
	Week    int
	Seconds float64
	X, Y, Z float64
}

// Scene is everything the instrument archive supplies for one acquisition,
// before trimming or any geometric processing.
type Scene struct {
	ID string

	// VNIR and SWIR sub-cubes as they come off the detector, with the
	// per-band centre wavelengths and FWHM (nm) in detector order.
	VNIR, SWIR           *Cube
	VNIRWaves, SWIRWaves []float64
	VNIRFWHM, SWIRFWHM   []float64

	// LineTimes holds one acquisition time per scan line, in fractional
	// days since 2000-01-01T00:00:00Z.
	LineTimes []float64

	// Longitude and Latitude of the reference detector row, Lines x Samples.
	Longitude, Latitude *Grid

	Telemetry []SatellitePositionSample
}
