package landfall

import (
	"fmt"
	"time"
)

// Target is a surface-fixed landing point, or a co-moving vessel to approach.
// Targets are value types: relocation returns a new value (copy-on-relocate),
// so no component ever observes a half-updated target.
type Target struct {
	Name     string
	Lat, Lon float64 // degrees
	Alt      float64 // m above the datum
	Vessel   bool    // a rendezvous target rather than a terrain waypoint
}

// String implements the Stringer interface.
func (t Target) String() string {
	kind := "site"
	if t.Vessel {
		kind = "vessel"
	}
	return fmt.Sprintf("%s %q (%.4f°, %.4f°)", kind, t.Name, t.Lat, t.Lon)
}

// WorldPosition returns the inertial position of the target at a given time.
func (t Target) WorldPosition(b CelestialBody, dt time.Time) []float64 {
	return b.WorldAt(t.Lat, t.Lon, t.Alt, dt)
}

// DistanceTo returns the great-circle distance from the sub-vehicle point to
// the target.
func (t Target) DistanceTo(b CelestialBody, s VehicleState) float64 {
	lat, lon, _ := b.GeoAt(s.R, s.DT)
	return b.SurfaceDistance(lat, lon, t.Lat, t.Lon)
}

// Relocated returns a copy of the target moved to new coordinates. The copy is
// always a terrain waypoint, never a vessel.
func (t Target) Relocated(lat, lon, alt float64) Target {
	return Target{Name: t.Name, Lat: lat, Lon: lon, Alt: alt}
}

// SamePlace returns whether both targets name the same surface coordinates.
func (t Target) SamePlace(o Target) bool {
	return t.Lat == o.Lat && t.Lon == o.Lon
}
