package landfall

import (
	"errors"
	"time"

	"github.com/gonum/matrix/mat64"
)

// Start precondition failures. None of these can occur once the stage machine
// is running; resource exhaustion mid-flight downgrades to HardLanding instead.
var (
	ErrNoActiveEngines     = errors.New("landfall: no active engines")
	ErrManualThrustersOnly = errors.New("landfall: no non-manual thruster available")
	ErrDiscontinuousOrbit  = errors.New("landfall: discontinuous starting orbit")
	ErrNoTarget            = errors.New("landfall: no landing target set")
)

// VehicleState is the read-only per-tick snapshot of the vehicle supplied by
// the host. The core never mutates it; it only issues commands through the
// Actuators sink.
type VehicleState struct {
	DT       time.Time
	R        []float64    // m, inertial position
	V        []float64    // m/s, inertial velocity
	Attitude *mat64.Dense // body-to-world rotation
	W        []float64    // rad/s, angular velocity in body frame

	Mass           float64   // kg
	MaxThrustAccel float64   // m/s², at full throttle
	MaxTorque      []float64 // N·m per body axis
	MoI            []float64 // kg·m² per body axis

	FuelMass float64 // kg available
	FuelFlow float64 // kg/s at full throttle

	DragCoeff       float64 // m², Cd·A
	Temperature     float64 // K, hottest part
	MaxTemperature  float64 // K, thermal margin
	DynamicPressure float64 // Pa, sensed

	HasControlAuthority  bool
	EnginesActive        bool
	HasNonManualThruster bool
	Landed               bool
}

// Altitude returns the altitude above the body datum.
func (s VehicleState) Altitude(b CelestialBody) float64 {
	return norm(s.R) - b.Radius
}

// SurfaceVelocity returns the velocity relative to the rotating surface.
func (s VehicleState) SurfaceVelocity(b CelestialBody) []float64 {
	return sub(s.V, b.SurfaceVelocity(s.R))
}

// Up returns the local vertical unit vector.
func (s VehicleState) Up() []float64 {
	return unit(s.R)
}

// VerticalSpeed returns the signed rate of altitude change (negative when
// descending).
func (s VehicleState) VerticalSpeed() float64 {
	return dot(s.V, s.Up())
}

// HorizontalVelocity returns the surface-relative velocity with the vertical
// component removed.
func (s VehicleState) HorizontalVelocity(b CelestialBody) []float64 {
	v := s.SurfaceVelocity(b)
	up := s.Up()
	return sub(v, scale(dot(v, up), up))
}

// HoverTime returns how long the remaining fuel can hold the vehicle in a
// hover, in seconds. Returns +Inf for a vehicle that needs no thrust to hover.
func (s VehicleState) HoverTime(b CelestialBody) float64 {
	g := b.Gravity(norm(s.R))
	if s.MaxThrustAccel <= 0 || s.FuelFlow <= 0 {
		return 0
	}
	hover := g / s.MaxThrustAccel // hover throttle fraction
	if hover <= 0 {
		return 0
	}
	return s.FuelMass / (s.FuelFlow * hover)
}

// Actuators is the command sink through which the core steers the vehicle.
// Hosts without a capability (warp, parachutes, staging) may no-op it.
type Actuators interface {
	SetThrottle(f float64)               // f in [0,1]
	SetThrustDirection(v []float64)      // world-frame desired thrust direction
	SetAttitude(m *mat64.Dense)          // absolute desired attitude
	SetSteering(v []float64)             // per-axis command in [-1,1]
	DeployParachutes()
	DropStage()
	WarpTo(dt time.Time)
}
