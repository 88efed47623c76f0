package landfall

import (
	"time"
)

// LandingStage enumerates the phases of the landing state machine. StageNone
// is the only inactive state; every other stage means a landing is in
// progress. Transitions head toward the terminal stages, with lateral jumps
// to StageHardLanding on resource failures and back to StageDecelerate on
// obstacle or overheat detection.
type LandingStage uint8

const (
	StageNone LandingStage = iota
	StageWait
	StageDecelerate
	StageCoast
	StageHardLanding
	StageSoftLanding
	StageApproach
	StageLand
	StageLandHere
)

func (s LandingStage) String() string {
	switch s {
	case StageNone:
		return "None"
	case StageWait:
		return "Wait"
	case StageDecelerate:
		return "Decelerate"
	case StageCoast:
		return "Coast"
	case StageHardLanding:
		return "HardLanding"
	case StageSoftLanding:
		return "SoftLanding"
	case StageApproach:
		return "Approach"
	case StageLand:
		return "Land"
	case StageLandHere:
		return "LandHere"
	}
	panic("cannot stringify unknown landing stage")
}

// stageState is one variant of the stage machine: each stage carries only the
// timers and flags it needs, and tick returns the next variant instead of
// mutating shared state.
type stageState interface {
	Stage() LandingStage
	tick(ap *Autopilot, st VehicleState) stageState
}

type noneStage struct{}

func (noneStage) Stage() LandingStage { return StageNone }

func (n noneStage) tick(ap *Autopilot, st VehicleState) stageState { return n }

// waitStage orients for the braking burn and waits for the optimal brake
// start, re-scanning the terrain ahead and hunting for a flatter site nearby.
type waitStage struct {
	lastPredict time.Time
}

func (*waitStage) Stage() LandingStage { return StageWait }

func (w *waitStage) tick(ap *Autopilot, st VehicleState) stageState {
	if st.Landed {
		return ap.touchdown(st)
	}
	if ap.traj == nil || st.DT.Sub(w.lastPredict).Seconds() >= ap.cfg.TrajectoryRefresh {
		if ap.predict(st, true) == nil {
			w.lastPredict = st.DT
			ap.scanner = nil
			stop := ap.traj.AboveUntil(2 * ap.cfg.ClearanceOffset)
			if ap.traj.FlyOver.DT.Before(stop) {
				stop = ap.traj.FlyOver.DT
			}
			if stop.After(ap.traj.BrakeStart.DT) {
				ap.scanner = NewObstacleSearch(ap.traj, ap.terrain,
					ap.traj.BrakeStart.DT, stop, ap.cfg.ClearanceOffset)
			}
			if ap.flatten == nil && !ap.target.Vessel {
				ap.flatten = NewTerrainFlatSiteSearch(ap.terrain, ap.body,
					ap.target.Lat, ap.target.Lon, ap.cfg.Footprint,
					ap.cfg.FlatSiteMaxDist, ap.cfg.FlatSiteTolerance)
			}
		}
	}
	tr := ap.traj
	if tr == nil {
		return w
	}

	scanning := false
	if ap.scanner != nil {
		scanning = ap.scanner.Step(ap.cfg.ObstacleBudget)
	}
	if ap.flatten != nil && !ap.flatten.Step(ap.cfg.FlatSiteBudget) {
		ap.adoptFlatSite()
		if ap.traj == nil {
			if ap.predict(st, true) != nil {
				return w
			}
			w.lastPredict = st.DT
			tr = ap.traj
		}
	}

	aim := ap.correctedRetrograde(st)
	ap.att.SetThrustDirection(aim)
	countdown := tr.TimeToBrake(st.DT)
	perr := ap.pointingError(st, aim)
	if countdown <= ap.cfg.CorrectionWindow && tr.DistanceToTarget > ap.cfg.DistanceDeadzone &&
		perr < ap.cfg.MaxPointingError {
		ap.act.SetThrottle(ap.cfg.WaitThrottle * (1 - perr/ap.cfg.MaxPointingError))
	} else {
		ap.act.SetThrottle(0)
	}

	if ap.scanner != nil && ap.scanner.Obstruction() > 0 {
		return ap.transition(newDecelerate(true), "obstacle ahead")
	}
	if tr.WillOverheat {
		return ap.transition(newDecelerate(false), "predicted overheat")
	}
	pressure := 0.0
	if ap.body.ρ0 > 0 {
		pressure = ap.body.Density(st.Altitude(ap.body)) / ap.body.ρ0
	}
	if countdown <= ap.cfg.ReactionTime*(1+pressure) {
		return ap.transition(newDecelerate(false), "brake point reached")
	}
	if !scanning && countdown > ap.cfg.CorrectionWindow {
		ap.act.WarpTo(tr.BrakeStart.DT.Add(-time.Duration(ap.cfg.WarpLead * float64(time.Second))))
	}
	ap.setStatus("waiting for brake point, T-%.0fs", countdown)
	return w
}

// decelStage kills the surface-relative velocity down to a safe descent
// profile. A flagged collision holds a full retro burn until a timer clears,
// then restarts the landing from waitStage.
type decelStage struct {
	collided  bool
	holdUntil time.Time
}

func newDecelerate(collided bool) *decelStage {
	return &decelStage{collided: collided}
}

func (*decelStage) Stage() LandingStage { return StageDecelerate }

func (d *decelStage) tick(ap *Autopilot, st VehicleState) stageState {
	if st.Landed {
		return ap.touchdown(st)
	}
	ap.predict(st, false)
	tr := ap.traj
	if tr == nil {
		return d
	}
	if !tr.EnoughFuel(st.FuelMass, ap.cfg.FuelSafety) {
		return ap.transition(newHardLanding(), "insufficient fuel")
	}

	if d.collided {
		if d.holdUntil.IsZero() {
			d.holdUntil = st.DT.Add(time.Duration(ap.cfg.CollisionHold * float64(time.Second)))
		}
		ap.att.SetThrustDirection(scale(-1, unit(st.SurfaceVelocity(ap.body))))
		ap.act.SetThrottle(1)
		if st.DT.After(d.holdUntil) {
			return ap.transition(&waitStage{}, "collision hold cleared")
		}
		ap.setStatus("braking clear of obstacle")
		return d
	}

	if ap.cfg.UseAerobrake && st.DynamicPressure > 0.5*ap.cfg.MaxDynamicPress {
		ap.att.SetThrustDirection(scale(-1, unit(st.SurfaceVelocity(ap.body))))
		ap.act.SetThrottle(0)
		ap.setStatus("aerobraking")
		return d
	}

	burn := ap.brakeVector(st)
	if norm(burn) <= ap.cfg.DecelVelocityTol {
		ap.act.SetThrottle(0)
		return ap.transition(&coastStage{lastDistance: tr.DistanceToTarget}, "velocity target reached")
	}
	// Gravity feedforward keeps a purely vertical burn from stalling at the
	// hover throttle.
	demand := add(scale(ap.body.Gravity(norm(st.R)), st.Up()),
		scale(-1/ap.cfg.ThrottleResponse, burn))
	ap.att.SetThrustDirection(unit(demand))
	if st.MaxThrustAccel > 0 {
		ap.act.SetThrottle(clamp01(norm(demand) / st.MaxThrustAccel))
	} else {
		ap.act.SetThrottle(0)
	}
	ap.setStatus("decelerating, Δv=%.1f m/s", norm(burn))
	return d
}

/// brakeVector is the surface-relative velocity that deceleration must remove:
// all of the horizontal component plus whatever sink rate exceeds the descent
// limit.
func (ap *Autopilot) brakeVector(st VehicleState) []float64 {
	v := st.SurfaceVelocity(ap.body)
	up := st.Up()
	vert := dot(v, up)
	excess := sub(v, scale(vert, up))
	if safe := -ap.cfg.MaxDescentSpeed; vert < safe {
		excess = add(excess, scale(vert-safe, up))
	}
	return excess
}

// coastStage glides toward the target, re-arming deceleration when the
// prediction drifts away or the thermal margin goes negative, and commits to
// the final descent once the brake window opens.
type coastStage struct {
	lastDistance float64
	lastFull     time.Time
}

func (*coastStage) Stage() LandingStage { return StageCoast }

func (c *coastStage) tick(ap *Autopilot, st VehicleState) stageState {
	if st.Landed {
		return ap.touchdown(st)
	}
	full := st.DT.Sub(c.lastFull).Seconds() >= ap.cfg.TrajectoryRefresh
	if ap.predict(st, full) == nil && full {
		c.lastFull = st.DT
	}
	tr := ap.traj
	if tr == nil {
		return c
	}

	ap.att.SetThrustDirection(ap.correctedRetrograde(st))
	ap.act.SetThrottle(0)

	if tr.WillOverheat {
		return ap.transition(newDecelerate(false), "predicted overheat")
	}
	// Ignore prediction jitter below the minimum change threshold.
	if tr.DistanceToTarget > c.lastDistance+ap.cfg.MinDistanceChange {
		return ap.transition(newDecelerate(false), "trajectory drifting off target")
	}
	if tr.DistanceToTarget < c.lastDistance {
		c.lastDistance = tr.DistanceToTarget
	}

	if tr.TimeToBrake(st.DT) <= ap.cfg.ReactionTime {
		if !st.HasControlAuthority {
			return ap.transition(newHardLanding(), "no control authority")
		}
		if st.MaxThrustAccel <= ap.body.Gravity(norm(st.R)) {
			return ap.transition(newHardLanding(), "insufficient thrust")
		}
		if st.HoverTime(ap.body) < ap.cfg.HoverTimeMargin || !tr.EnoughFuel(st.FuelMass, ap.cfg.FuelSafety) {
			return ap.transition(newHardLanding(), "insufficient fuel")
		}
		return ap.transition(&softLandingStage{}, "entering final descent")
	}
	// Flying past the target with room to correct: brake some more.
	if tr.ΔRadial < 0 && tr.DistanceToTarget > ap.cfg.DistanceDeadzone {
		return ap.transition(newDecelerate(false), "overshooting target")
	}
	ap.setStatus("coasting, %.0f m to target", tr.DistanceToTarget)
	return c
}

// hardLandingStage is the degraded-but-supported terminal path: minimize
// impact speed with whatever thrust, drag and parachutes remain.
type hardLandingStage struct {
	chutesOut  bool
	dropped    bool
	highQSince time.Time
}

func newHardLanding() *hardLandingStage {
	return &hardLandingStage{}
}

func (*hardLandingStage) Stage() LandingStage { return StageHardLanding }

func (h *hardLandingStage) tick(ap *Autopilot, st VehicleState) stageState {
	if st.Landed {
		return ap.touchdown(st)
	}
	ap.predict(st, false)

	v := st.SurfaceVelocity(ap.body)
	speed := norm(v)
	ap.att.SetThrustDirection(scale(-1, unit(v)))
	throttle := 0.0
	if st.FuelMass > 0 && speed > ap.cfg.ImpactSpeed {
		throttle = clamp01((speed - ap.cfg.ImpactSpeed) / (st.MaxThrustAccel * ap.cfg.ThrottleResponse))
	}
	ap.act.SetThrottle(throttle)

	if !h.chutesOut && ap.body.HasAtmosphere() {
		// Overshooting the target: drag helps, deploy as soon as possible.
		// Otherwise deploy as late as safe, once dynamic pressure allows.
		overshoot := ap.traj != nil && ap.traj.ΔRadial < 0
		if overshoot || st.DynamicPressure < ap.cfg.MaxChuteQ {
			ap.act.DeployParachutes()
			h.chutesOut = true
		}
	}
	if st.DynamicPressure > ap.cfg.MaxDynamicPress {
		if h.highQSince.IsZero() {
			h.highQSince = st.DT
		}
		if !h.dropped && st.DT.Sub(h.highQSince).Seconds() > ap.cfg.HighQTimeout {
			ap.act.DropStage()
			h.dropped = true
		}
	} else {
		h.highQSince = time.Time{}
	}
	ap.setStatus("emergency descent, %.0f m/s", speed)
	return h
}

// softLandingStage is the final powered approach: correct the landing-site
// error, dodge last-moment collisions, and hand over to a terminal descent.
type softLandingStage struct{}

func (*softLandingStage) Stage() LandingStage { return StageSoftLanding }

func (s *softLandingStage) tick(ap *Autopilot, st VehicleState) stageState {
	if st.Landed {
		return ap.touchdown(st)
	}
	ap.predict(st, false)
	tr := ap.traj
	if tr == nil {
		return s
	}

	if ap.altAGL(st) > 2*ap.cfg.ClearanceOffset {
		if corr := ap.collisionCorrection(st); norm(corr) > 0 {
			// Re-target to the predicted surface point and cancel the
			// collision vector before resuming the approach.
			ap.SetTarget(ap.target.Relocated(tr.SurfacePoint.Lat, tr.SurfacePoint.Lon, tr.SurfacePoint.Alt))
			ap.att.SetThrustDirection(unit(corr))
			ap.act.SetThrottle(clamp01(norm(corr) / (st.MaxThrustAccel * ap.cfg.ThrottleResponse)))
			ap.setStatus("avoiding terrain, %.0f m obstruction", norm(corr))
			return s
		}
	}

	settled := ap.flyToward(st, ap.target, -ap.descentRate(st))
	if settled {
		if ap.landASAP {
			return ap.transition(&landStage{here: true}, "landing at surface point")
		}
		if tr.DistanceToTarget > ap.cfg.ApproachDistance {
			return ap.transition(&approachStage{}, "transiting to target")
		}
		return ap.transition(&landStage{}, "over target")
	}
	ap.setStatus("final approach, %.0f m to target", tr.DistanceToTarget)
	return s
}

// approachStage transits horizontally to the target at a held altitude.
type approachStage struct{}

func (*approachStage) Stage() LandingStage { return StageApproach }

func (a *approachStage) tick(ap *Autopilot, st VehicleState) stageState {
	if st.Landed {
		return ap.touchdown(st)
	}
	ap.predict(st, false)
	ap.flyToward(st, ap.target, 0)
	dist := ap.target.DistanceTo(ap.body, st)
	if dist <= ap.cfg.Dtol {
		return ap.transition(&landStage{}, "target in range")
	}
	if st.HoverTime(ap.body) < ap.cfg.HoverTimeMargin {
		return ap.transition(&landStage{here: true}, "fuel low")
	}
	ap.setStatus("approaching target, %.0f m", dist)
	return a
}

// landStage is the terminal vertical descent, at the target or, with here
// set, wherever the vehicle currently is.
type landStage struct {
	here bool
}

func (l *landStage) Stage() LandingStage {
	if l.here {
		return StageLandHere
	}
	return StageLand
}

func (l *landStage) tick(ap *Autopilot, st VehicleState) stageState {
	if st.Landed {
		return ap.touchdown(st)
	}
	ap.predict(st, false)
	want := ap.target
	if l.here {
		lat, lon, _ := ap.body.GeoAt(st.R, st.DT)
		want = ap.target.Relocated(lat, lon, ap.terrain.Altitude(lat, lon))
	}
	ap.flyToward(st, want, -ap.descentRate(st))
	ap.setStatus("touching down, %.0f m AGL", ap.altAGL(st))
	return l
}

// descentRate is the altitude-hold descent profile: sink faster when high,
// never slower than the touchdown speed.
func (ap *Autopilot) descentRate(st VehicleState) float64 {
	return clamp(ap.altAGL(st)/ap.cfg.DescentDivider, ap.cfg.TouchdownSpeed, ap.cfg.MaxDescentSpeed)
}

// flyToward issues thrust commands steering the vehicle toward the target at
// the given vertical speed (negative = descend), with gravity feedforward and
// proportional feedback. It reports whether the velocity error is small
// enough to consider the maneuver settled.
func (ap *Autopilot) flyToward(st VehicleState, tgt Target, wantVSpeed float64) bool {
	up := st.Up()
	toTarget := sub(tgt.WorldPosition(ap.body, st.DT), st.R)
	toTargetH := sub(toTarget, scale(dot(toTarget, up), up))
	wantHV := []float64{0, 0, 0}
	if d := norm(toTargetH); d > ap.cfg.Dtol/2 {
		speed := clamp(d/ap.cfg.ThrottleResponse, 0, ap.cfg.ApproachSpeed)
		wantHV = scale(speed/d, toTargetH)
	}
	hv := st.HorizontalVelocity(ap.body)
	vErr := add(sub(wantHV, hv), scale(wantVSpeed-st.VerticalSpeed(), up))

	g := ap.body.Gravity(norm(st.R))
	demand := add(scale(g, up), scale(1/ap.cfg.ThrottleResponse, vErr))
	ap.att.SetThrustDirection(unit(demand))
	if st.MaxThrustAccel > 0 {
		ap.act.SetThrottle(clamp01(norm(demand) / st.MaxThrustAccel))
	} else {
		ap.act.SetThrottle(0)
	}
	return norm(sub(wantHV, hv)) < ap.cfg.DecelVelocityTol
}
