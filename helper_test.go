package landfall

import (
	"math"
	"testing"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gonum/matrix/mat64"
)

func assertPanic(t *testing.T, f func()) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("code did not panic")
		}
	}()
	f()
}

func vectorsEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

var testEpoch = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// testBody is airless and non-rotating so that predictions stay easy to
// reason about.
var testBody = CelestialBody{
	Name:   "Testa",
	Radius: 600e3,
	μ:      3.5316e12,
}

func identityAttitude() *mat64.Dense {
	return mat64.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// testVehicle returns a capable vehicle at the given altitude above lat/lon
// zero, with the given inertial velocity.
func testVehicle(alt float64, v []float64) VehicleState {
	r := testBody.Radius + alt
	return VehicleState{
		DT:                   testEpoch,
		R:                    []float64{r, 0, 0},
		V:                    v,
		Attitude:             identityAttitude(),
		W:                    []float64{0, 0, 0},
		Mass:                 10000,
		MaxThrustAccel:       20,
		MaxTorque:            []float64{30e3, 30e3, 10e3},
		MoI:                  []float64{80e3, 80e3, 25e3},
		FuelMass:             4000,
		FuelFlow:             20,
		MaxTemperature:       1800,
		HasControlAuthority:  true,
		EnginesActive:        true,
		HasNonManualThruster: true,
	}
}

// orbitalVehicle returns a vehicle on a circular equatorial orbit.
func orbitalVehicle(alt float64) VehicleState {
	vOrbit := math.Sqrt(testBody.GM() / (testBody.Radius + alt))
	return testVehicle(alt, []float64{0, vOrbit, 0})
}

// recorder is an Actuators sink remembering the last commands.
type recorder struct {
	throttle   float64
	thrustDir  []float64
	steering   []float64
	chutes     int
	drops      int
	warpedTo   time.Time
	warpCalls  int
	throttleOn bool
}

func (r *recorder) SetThrottle(f float64) {
	r.throttle = f
	r.throttleOn = f > 0
}
func (r *recorder) SetThrustDirection(v []float64) { r.thrustDir = v }
func (r *recorder) SetAttitude(m *mat64.Dense)     {}
func (r *recorder) SetSteering(v []float64)        { r.steering = v }
func (r *recorder) DeployParachutes()              { r.chutes++ }
func (r *recorder) DropStage()                     { r.drops++ }
func (r *recorder) WarpTo(dt time.Time) {
	r.warpedTo = dt
	r.warpCalls++
}

func testLogger() kitlog.Logger {
	return kitlog.NewNopLogger()
}

func testAutopilot(terrain Terrain) (*Autopilot, *recorder) {
	rec := &recorder{}
	ap := NewAutopilot(DefaultSettings(), testBody, terrain, rec, testLogger())
	return ap, rec
}
