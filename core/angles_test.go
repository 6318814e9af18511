package core

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/swath-geolocator/model"
)

func TestPhaseFromCosineClampsDomain(t *testing.T) {
	if got := PhaseFromCosine(1 + 1e-9); got != 0 {
		t.Fatalf("PhaseFromCosine(1+1e-9) = %v, want 0", got)
	}
	if got := PhaseFromCosine(-1 - 1e-9); got != math.Pi {
		t.Fatalf("PhaseFromCosine(-1-1e-9) = %v, want pi", got)
	}
	if got := PhaseFromCosine(0.5); math.Abs(got-math.Pi/3) > 1e-15 {
		t.Fatalf("PhaseFromCosine(0.5) = %v", got)
	}
}

func TestPhaseAngle(t *testing.T) {
	cases := []struct {
		name                   string
		sz, sa, vz, va, wantDg float64
	}{
		{"coincident", 30, 120, 30, 120, 0},
		{"both overhead", 0, 0, 0, 200, 0},
		{"opposite azimuths", 30, 0, 30, 180, 60},
		{"nadir sensor", 40, 75, 0, 0, 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PhaseAngle(tc.sz, tc.sa, tc.vz, tc.va) * radToDeg
			if math.IsNaN(got) || math.Abs(got-tc.wantDg) > 1e-5 {
				t.Fatalf("PhaseAngle = %v deg, want %v", got, tc.wantDg)
			}
		})
	}
}

func TestSensorAngles(t *testing.T) {
	ground := Vec3{X: 500000, Y: 4000000, Z: 100}

	zn, _ := SensorAngles(Vec3{X: 500000, Y: 4000000, Z: 600100}, ground)
	if math.Abs(zn) > 1e-9 {
		t.Fatalf("overhead zenith = %v", zn)
	}

	// Sensor 45 degrees up towards the east.
	zn, az := SensorAngles(Vec3{X: 501000, Y: 4000000, Z: 1100}, ground)
	if math.Abs(zn-45) > 1e-9 || math.Abs(az-90) > 1e-9 {
		t.Fatalf("east sensor = (%v, %v), want (45, 90)", zn, az)
	}

	// Towards the north-west: azimuth stays in [0, 360).
	_, az = SensorAngles(Vec3{X: 499000, Y: 4001000, Z: 1100}, ground)
	if math.Abs(az-315) > 1e-9 {
		t.Fatalf("north-west azimuth = %v, want 315", az)
	}
}

func TestCosineIFlatTerrain(t *testing.T) {
	for _, sz := range []float64{0, 20, 60, 89} {
		got := CosineI(sz, 137, 0, 0)
		if math.Abs(got-math.Cos(sz*degToRad)) > 1e-15 {
			t.Fatalf("CosineI(%v) on flat = %v", sz, got)
		}
	}
	// Slope facing the sun by its zenith angle is lit head on.
	if got := CosineI(35, 210, 35, 210); math.Abs(got-1) > 1e-12 {
		t.Fatalf("CosineI facing sun = %v, want 1", got)
	}
}

func TestSunAtSolstice(t *testing.T) {
	sun := SunAt(time.Date(2021, time.June, 21, 12, 0, 0, 0, time.UTC))
	if math.Abs(sun.Declination-23.43) > 0.1 {
		t.Fatalf("declination = %v", sun.Declination)
	}
	if math.Abs(sun.SubsolarLon) > 1.5 {
		t.Fatalf("subsolar longitude = %v, want near Greenwich at noon", sun.SubsolarLon)
	}
	zn, _ := sun.Angles(0, 23.44)
	if zn > 1.5 {
		t.Fatalf("zenith at the subsolar point = %v", zn)
	}

	// Mid-morning at 45N: sun in the eastern half of the sky.
	morning := SunAt(time.Date(2021, time.June, 21, 8, 0, 0, 0, time.UTC))
	zn, az := morning.Angles(0, 45)
	if az < 45 || az > 135 {
		t.Fatalf("morning azimuth = %v", az)
	}
	if zn < 20 || zn > 70 {
		t.Fatalf("morning zenith = %v", zn)
	}
}

func TestSlopeAspectPlanarRamp(t *testing.T) {
	const rows, cols, cell = 4, 5, 30.0
	east, north := model.NewGrid(rows, cols), model.NewGrid(rows, cols)
	westward, southward := model.NewGrid(rows, cols), model.NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			e, n := float64(c)*cell, -float64(r)*cell
			east.Set(r, c, e)
			north.Set(r, c, n)
			westward.Set(r, c, 0.1*e)  // rises to the east, faces west
			southward.Set(r, c, 0.2*n) // rises to the north, faces south
		}
	}

	slope, aspect, err := SlopeAspect(westward, east, north)
	if err != nil {
		t.Fatalf("SlopeAspect: %v", err)
	}
	for i := range slope.Data {
		if math.Abs(slope.Data[i]-math.Atan(0.1)*radToDeg) > 1e-9 || math.Abs(aspect.Data[i]-270) > 1e-9 {
			t.Fatalf("cell %d: slope %v aspect %v", i, slope.Data[i], aspect.Data[i])
		}
	}

	slope, aspect, _ = SlopeAspect(southward, east, north)
	if math.Abs(slope.At(2, 2)-math.Atan(0.2)*radToDeg) > 1e-9 || math.Abs(aspect.At(2, 2)-180) > 1e-9 {
		t.Fatalf("south-facing: slope %v aspect %v", slope.At(2, 2), aspect.At(2, 2))
	}

	flat, _, _ := SlopeAspect(model.NewGrid(rows, cols), east, north)
	if lo, hi, _ := flat.MinMax(math.NaN()); lo != 0 || hi != 0 {
		t.Fatalf("flat slope range = [%v, %v]", lo, hi)
	}
}
