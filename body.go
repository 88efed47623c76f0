package landfall

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/julian"
)

const j2000 = 2451545.0

// CelestialBody defines the rotating body above which a landing takes place.
// Atmosphere parameters may be zero for an airless body.
type CelestialBody struct {
	Name           string
	Radius         float64 // m
	μ              float64 // m³/s²
	RotationPeriod float64 // s, sidereal
	AtmosphereAlt  float64 // m, altitude of the sensible atmosphere top
	ρ0             float64 // kg/m³, datum air density
	ScaleHeight    float64 // m
}

// GM returns μ (which is unexported because it's a lowercase letter).
func (b CelestialBody) GM() float64 {
	return b.μ
}

// String implements the Stringer interface.
func (b CelestialBody) String() string {
	return b.Name + " body"
}

// Gravity returns the gravitational acceleration at the given radius.
func (b CelestialBody) Gravity(r float64) float64 {
	return b.μ / (r * r)
}

// HasAtmosphere returns whether this body carries a sensible atmosphere.
func (b CelestialBody) HasAtmosphere() bool {
	return b.AtmosphereAlt > 0 && b.ρ0 > 0
}

// Density returns the air density at the given altitude above the datum,
// using an exponential atmosphere.
func (b CelestialBody) Density(alt float64) float64 {
	if !b.HasAtmosphere() || alt > b.AtmosphereAlt {
		return 0
	}
	return b.ρ0 * math.Exp(-alt/b.ScaleHeight)
}

// RotationRate returns the angular velocity of the body in rad/s.
func (b CelestialBody) RotationRate() float64 {
	if b.RotationPeriod == 0 {
		return 0
	}
	return 2 * math.Pi / b.RotationPeriod
}

// RotationAngle returns the body rotation angle in radians at a given time,
// with phase zero at the J2000 epoch.
func (b CelestialBody) RotationAngle(dt time.Time) float64 {
	if b.RotationPeriod == 0 {
		return 0
	}
	days := julian.TimeToJD(dt) - j2000
	return 2 * math.Pi * math.Mod(days*86400/b.RotationPeriod, 1)
}

// GeoAt converts an inertial position to latitude/longitude (degrees) and
// altitude above the datum (meters) at a given time.
func (b CelestialBody) GeoAt(R []float64, dt time.Time) (lat, lon, alt float64) {
	fixed := BCI2BCBF(R, b.RotationAngle(dt))
	r := norm(fixed)
	if r == 0 {
		return 0, 0, -b.Radius
	}
	lat = math.Asin(fixed[2]/r) * rad2deg
	lon = math.Atan2(fixed[1], fixed[0]) * rad2deg
	alt = r - b.Radius
	return
}

// WorldAt converts latitude/longitude (degrees) and altitude above the datum
// to an inertial position at a given time.
func (b CelestialBody) WorldAt(lat, lon, alt float64, dt time.Time) []float64 {
	return BCBF2BCI(GEO2BCBF(b, lat, lon, alt), b.RotationAngle(dt))
}

// SurfaceVelocity returns the velocity of the surface co-rotating point under
// the given inertial position.
func (b CelestialBody) SurfaceVelocity(R []float64) []float64 {
	return cross([]float64{0, 0, b.RotationRate()}, R)
}

// SurfaceDistance returns the great-circle distance in meters between two
// latitude/longitude points given in degrees.
func (b CelestialBody) SurfaceDistance(lat1, lon1, lat2, lon2 float64) float64 {
	φ1, φ2 := lat1*deg2rad, lat2*deg2rad
	sΔφ := math.Sin((φ2 - φ1) / 2)
	sΔλ := math.Sin((lon2 - lon1) * deg2rad / 2)
	h := sΔφ*sΔφ + math.Cos(φ1)*math.Cos(φ2)*sΔλ*sΔλ
	return 2 * b.Radius * math.Asin(math.Min(1, math.Sqrt(h)))
}

/* A couple of reference bodies, mostly used by tests and cmd/landsim. */

// Earth is home.
var Earth = CelestialBody{
	Name:           "Earth",
	Radius:         6378136.3,
	μ:              3.986004415e14,
	RotationPeriod: 86164.0905,
	AtmosphereAlt:  140e3,
	ρ0:             1.225,
	ScaleHeight:    8500,
}

// Luna is that rock around home.
var Luna = CelestialBody{
	Name:           "Luna",
	Radius:         1737400,
	μ:              4.902800066e12,
	RotationPeriod: 2360591.5,
}
