package landfall

import (
	"math"
	"time"

	"github.com/ChristopherRabotin/ode"
)

// Event marks a notable point along a predicted trajectory.
type Event struct {
	DT       time.Time
	R, V     []float64
	Altitude float64 // m above the datum
}

// PathPoint is one sample of a predicted path.
type PathPoint struct {
	DT       time.Time
	R, V     []float64
	Lat, Lon float64 // degrees
	Alt      float64 // m above the datum
}

// Trajectory is an immutable prediction of where the vehicle goes if it does
// nothing, plus the brake window it would need to not do that. A new
// prediction replaces the old reference; nothing mutates a built Trajectory.
type Trajectory struct {
	StartDT        time.Time
	Body           CelestialBody
	Target         Target
	TargetAltitude float64

	ΔRadial  float64 // deg, along-track delta to the target; positive = short of it
	ΔAngular float64 // deg, cross-track delta

	DistanceToTarget float64 // m, ≥ 0
	BrakeStart       Event
	BrakeEnd         Event
	FlyOver          Event
	SurfacePoint     PathPoint
	Impacts          bool // false for a path that never crossed the terrain

	FuelNeeded     float64 // kg for the brake burn
	MaxTemperature float64 // K, full variant only
	WillOverheat   bool    // full variant only

	path []PathPoint
}

// ballistic integrates a coasting state through gravity and drag. It
// implements the ode.Integrable interface.
type ballistic struct {
	body    CelestialBody
	terrain Terrain
	cfg     Settings

	dragOverMass float64
	startDT      time.Time
	elapsed      float64
	R, V         []float64
	path         []PathPoint
	maxQ         float64
	hit, bad     bool
}

// GetState returns the state for the integrator.
func (b *ballistic) GetState() []float64 {
	return []float64{b.R[0], b.R[1], b.R[2], b.V[0], b.V[1], b.V[2]}
}

// SetState sets the updated state and records the path sample.
func (b *ballistic) SetState(t float64, s []float64) {
	b.R = []float64{s[0], s[1], s[2]}
	b.V = []float64{s[3], s[4], s[5]}
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b.bad = true
			return
		}
	}
	dt := b.startDT.Add(time.Duration(b.elapsed * float64(time.Second)))
	lat, lon, alt := b.body.GeoAt(b.R, dt)
	b.path = append(b.path, PathPoint{DT: dt, R: b.R, V: b.V, Lat: lat, Lon: lon, Alt: alt})

	vAir := sub(b.V, b.body.SurfaceVelocity(b.R))
	q := 0.5 * b.body.Density(alt) * dot(vAir, vAir)
	if q > b.maxQ {
		b.maxQ = q
	}
	if alt <= b.terrain.Altitude(lat, lon) {
		b.hit = true
	}
}

// Stop implements the stop call of the integrator.
func (b *ballistic) Stop(t float64) bool {
	if b.hit || b.bad || b.elapsed > b.cfg.SimHorizon {
		return true
	}
	b.elapsed += b.cfg.SimStep
	return false
}

// Func is the integration function: two-body gravity plus exponential
// atmosphere drag against the co-rotating airflow.
func (b *ballistic) Func(t float64, f []float64) (fDot []float64) {
	fDot = make([]float64, 6)
	R := []float64{f[0], f[1], f[2]}
	V := []float64{f[3], f[4], f[5]}
	r := norm(R)
	if r < 1 {
		b.bad = true
		return
	}
	bodyAcc := -b.body.GM() / math.Pow(r, 3)
	fDot[0], fDot[1], fDot[2] = V[0], V[1], V[2]
	fDot[3] = bodyAcc * R[0]
	fDot[4] = bodyAcc * R[1]
	fDot[5] = bodyAcc * R[2]
	vAir := sub(V, b.body.SurfaceVelocity(R))
	if ρ := b.body.Density(r - b.body.Radius); ρ > 0 && b.dragOverMass > 0 {
		drag := scale(-0.5*ρ*norm(vAir)*b.dragOverMass, vAir)
		for i := 0; i < 3; i++ {
			fDot[3+i] += drag[i]
		}
	}
	for i := 0; i < 6; i++ {
		if math.IsNaN(fDot[i]) {
			b.bad = true
			fDot[i] = 0
		}
	}
	return
}

// Predict integrates the do-nothing trajectory from the given vehicle state
// and derives the landing events against the target. Deterministic for
// identical inputs. The full variant additionally computes the thermal
// profile; callers on a tight tick budget pass full=false.
func Predict(st VehicleState, body CelestialBody, terrain Terrain, target Target, cfg Settings, full bool) (*Trajectory, error) {
	for _, v := range append(append([]float64{}, st.R...), st.V...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrDiscontinuousOrbit
		}
	}
	sim := &ballistic{
		body:    body,
		terrain: terrain,
		cfg:     cfg,
		startDT: st.DT,
		R:       st.R,
		V:       st.V,
	}
	if st.Mass > 0 {
		sim.dragOverMass = st.DragCoeff / st.Mass
	}
	ode.NewRK4(0, cfg.SimStep, sim).Solve()
	if sim.bad || len(sim.path) == 0 {
		return nil, ErrDiscontinuousOrbit
	}

	tr := &Trajectory{
		StartDT:        st.DT,
		Body:           body,
		Target:         target,
		TargetAltitude: terrain.Altitude(target.Lat, target.Lon),
		Impacts:        sim.hit,
		path:           sim.path,
	}
	tr.derive(st, cfg, sim.maxQ, full)
	return tr, nil
}

func (tr *Trajectory) derive(st VehicleState, cfg Settings, maxQ float64, full bool) {
	// Fly-over: the sample of closest surface approach to the target.
	flyIdx := 0
	best := math.Inf(1)
	for i, p := range tr.path {
		d := tr.Body.SurfaceDistance(p.Lat, p.Lon, tr.Target.Lat, tr.Target.Lon)
		if d < best {
			best, flyIdx = d, i
		}
	}
	fly := tr.path[flyIdx]
	tr.FlyOver = Event{DT: fly.DT, R: fly.R, V: fly.V, Altitude: fly.Alt}

	// Surface point: the impact sample, or the sub-vehicle point at closest
	// approach for a path that never comes down.
	surf := tr.path[len(tr.path)-1]
	if !tr.Impacts {
		surf = fly
	}
	tr.SurfacePoint = surf
	tr.DistanceToTarget = tr.Body.SurfaceDistance(surf.Lat, surf.Lon, tr.Target.Lat, tr.Target.Lon)

	// Brake window. The burn must be over by the earlier of impact and
	// fly-over; it starts a margined brake duration before that.
	brakeEndDT := surf.DT
	if fly.DT.Before(brakeEndDT) {
		brakeEndDT = fly.DT
	}
	endPt := tr.PointAt(brakeEndDT)
	vBrake := norm(sub(endPt.V, tr.Body.SurfaceVelocity(endPt.R)))
	τ := math.Inf(1)
	if st.MaxThrustAccel > 0 {
		τ = vBrake / st.MaxThrustAccel
	}
	window := brakeEndDT.Sub(tr.StartDT).Seconds()
	lead := math.Min(τ*(1+cfg.BrakeMargin), window)
	brakeStartDT := brakeEndDT.Add(-time.Duration(lead * float64(time.Second)))
	startPt := tr.PointAt(brakeStartDT)
	tr.BrakeEnd = Event{DT: brakeEndDT, R: endPt.R, V: endPt.V, Altitude: endPt.Alt}
	tr.BrakeStart = Event{DT: brakeStartDT, R: startPt.R, V: startPt.V, Altitude: startPt.Alt}

	if st.FuelFlow > 0 && !math.IsInf(τ, 1) {
		tr.FuelNeeded = st.FuelFlow * τ
	} else if math.IsInf(τ, 1) {
		tr.FuelNeeded = math.Inf(1)
	}

	// Along/cross-track split of the landing error.
	up := unit(surf.R)
	toTarget := sub(tr.Target.WorldPosition(tr.Body, surf.DT), surf.R)
	horiz := sub(toTarget, scale(dot(toTarget, up), up))
	hv := sub(surf.V, tr.Body.SurfaceVelocity(surf.R))
	hv = sub(hv, scale(dot(hv, up), up))
	if n := norm(hv); n > 1e-6 {
		along := scale(1/n, hv)
		tr.ΔRadial = dot(horiz, along) / tr.Body.Radius * rad2deg
		tr.ΔAngular = dot(horiz, cross(up, along)) / tr.Body.Radius * rad2deg
	} else {
		tr.ΔRadial = norm(horiz) / tr.Body.Radius * rad2deg
	}

	if full {
		tr.MaxTemperature = cfg.AmbientTemp + maxQ*cfg.HeatingK
		tr.WillOverheat = st.MaxTemperature > 0 && tr.MaxTemperature > st.MaxTemperature
	}
}

// Path returns the sampled predicted path, for rendering. Read-only.
func (tr *Trajectory) Path() []PathPoint {
	return tr.path
}

// PointAt returns the interpolated path point at a given time. Times outside
// the path are clamped to its ends.
func (tr *Trajectory) PointAt(dt time.Time) PathPoint {
	n := len(tr.path)
	if dt.Before(tr.path[0].DT) || n == 1 {
		return tr.path[0]
	}
	if !dt.Before(tr.path[n-1].DT) {
		return tr.path[n-1]
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if tr.path[mid].DT.After(dt) {
			hi = mid
		} else {
			lo = mid
		}
	}
	a, b := tr.path[lo], tr.path[hi]
	span := b.DT.Sub(a.DT).Seconds()
	if span <= 0 {
		return a
	}
	f := dt.Sub(a.DT).Seconds() / span
	R := add(a.R, scale(f, sub(b.R, a.R)))
	V := add(a.V, scale(f, sub(b.V, a.V)))
	lat, lon, alt := tr.Body.GeoAt(R, dt)
	return PathPoint{DT: dt, R: R, V: V, Lat: lat, Lon: lon, Alt: alt}
}

// AboveUntil returns the last time the predicted path stays more than margin
// meters above the landing-site altitude. Obstacle scans clip their window
// here so the expected terminal descent is not mistaken for an obstruction.
func (tr *Trajectory) AboveUntil(margin float64) time.Time {
	floor := tr.SurfacePoint.Alt + margin
	for _, p := range tr.path {
		if p.Alt < floor {
			return p.DT
		}
	}
	return tr.path[len(tr.path)-1].DT
}

// TimeToBrake returns the countdown in seconds to the brake start.
func (tr *Trajectory) TimeToBrake(now time.Time) float64 {
	return tr.BrakeStart.DT.Sub(now).Seconds()
}

// EnoughFuel returns whether the available fuel covers the brake burn with the
// given reserve factor.
func (tr *Trajectory) EnoughFuel(available, safety float64) bool {
	return tr.FuelNeeded*safety <= available
}

// WithinTolerance returns whether the predicted landing point is within dtol
// meters of the target.
func (tr *Trajectory) WithinTolerance(dtol float64) bool {
	return tr.DistanceToTarget <= dtol
}
