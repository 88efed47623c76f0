package landfall

import (
	"fmt"
	"math"
	"time"

	kitlog "github.com/go-kit/kit/log"
)

// Autopilot is the landing stage machine. The host ticks it once per control
// cycle (Tick) and ticks the attitude loop every physics step (TickAttitude);
// everything else is driven from those two entry points. Single-threaded,
// cooperative: long searches advance a budgeted number of steps per tick.
type Autopilot struct {
	cfg     Settings
	body    CelestialBody
	terrain Terrain
	act     Actuators
	att     *AttitudeLoop
	logger  kitlog.Logger

	target   Target
	state    stageState
	traj     *Trajectory
	scanner  *ObstacleSearch
	flatten  *FlatSiteSearch
	landASAP bool
	status   string
}

// NewAutopilot assembles a landing autopilot above the given body.
func NewAutopilot(cfg Settings, body CelestialBody, terrain Terrain, act Actuators, logger kitlog.Logger) *Autopilot {
	return &Autopilot{
		cfg:     cfg,
		body:    body,
		terrain: terrain,
		act:     act,
		att:     NewAttitudeLoop(cfg, act, kitlog.With(logger, "subsys", "att")),
		logger:  logger,
		state:   noneStage{},
		status:  "inactive",
	}
}

// SetTarget sets the landing target. Allowed any time; the next prediction
// picks it up.
func (ap *Autopilot) SetTarget(t Target) {
	ap.target = t
	ap.att.SetTarget(t, ap.body)
}

// Target returns the current landing target (possibly relocated by the
// flat-site search).
func (ap *Autopilot) Target() Target {
	return ap.target
}

// SetLandASAP selects the land-as-soon-as-possible policy: the final descent
// happens at the predicted surface point instead of correcting toward the
// target.
func (ap *Autopilot) SetLandASAP(asap bool) {
	ap.landASAP = asap
}

// Stage returns the active landing stage; StageNone means inactive.
func (ap *Autopilot) Stage() LandingStage {
	return ap.state.Stage()
}

// Status returns a human-readable line for the UI.
func (ap *Autopilot) Status() string {
	return ap.status
}

// Trajectory returns the most recent prediction, for rendering. May be nil.
func (ap *Autopilot) Trajectory() *Trajectory {
	return ap.traj
}

// Attitude returns the attitude loop, which the host must tick every physics
// step.
func (ap *Autopilot) Attitude() *AttitudeLoop {
	return ap.att
}

// Start validates the setup preconditions and arms the stage machine. It never
// enters the state machine on a violation: a vehicle without usable engines or
// on a discontinuous orbit is reported to the operator instead.
func (ap *Autopilot) Start(st VehicleState) error {
	if ap.target == (Target{}) {
		return ErrNoTarget
	}
	if !st.EnginesActive {
		return ErrNoActiveEngines
	}
	if !st.HasNonManualThruster {
		return ErrManualThrustersOnly
	}
	tr, err := Predict(st, ap.body, ap.terrain, ap.target, ap.cfg, true)
	if err != nil {
		return err
	}
	ap.traj = tr
	ap.scanner = nil
	ap.flatten = nil
	ap.att.Enable(true)
	ap.state = &waitStage{}
	ap.status = "armed"
	ap.logger.Log("level", "notice", "subsys", "land", "status", "started",
		"target", ap.target, "dist(m)", fmt.Sprintf("%.0f", tr.DistanceToTarget))
	return nil
}

// Abort stops the landing and releases control back to the host.
func (ap *Autopilot) Abort() {
	ap.logger.Log("level", "warning", "subsys", "land", "status", "aborted", "stage", ap.Stage())
	ap.Reset()
}

// Reset unconditionally returns the machine to StageNone and clears every
// session so no partial state leaks into the next activation.
func (ap *Autopilot) Reset() {
	ap.state = noneStage{}
	ap.traj = nil
	ap.scanner = nil
	ap.flatten = nil
	ap.att.Enable(false)
	ap.act.SetThrottle(0)
	ap.status = "inactive"
}

// Tick runs one control cycle against the supplied vehicle snapshot.
func (ap *Autopilot) Tick(st VehicleState) {
	if ap.Stage() == StageNone {
		return
	}
	ap.state = ap.state.tick(ap, st)
	ap.publishMetrics(st)
}

// TickAttitude runs one physics step of the attitude loop. It holds the last
// desired direction until the stage machine updates it.
func (ap *Autopilot) TickAttitude(st VehicleState, Δt float64) {
	ap.att.Tick(st, Δt)
}

// predict refreshes the trajectory. On failure the previous prediction stays
// in place and the stage logic keeps working with it.
func (ap *Autopilot) predict(st VehicleState, full bool) error {
	tr, err := Predict(st, ap.body, ap.terrain, ap.target, ap.cfg, full)
	if err != nil {
		ap.logger.Log("level", "warning", "subsys", "traj", "err", err)
		return err
	}
	ap.traj = tr
	return nil
}

// transition logs and returns the next stage variant.
func (ap *Autopilot) transition(next stageState, reason string) stageState {
	ap.logger.Log("level", "info", "subsys", "land",
		"stage", ap.state.Stage(), "next", next.Stage(), "reason", reason)
	return next
}

// touchdown finishes a terminal stage: everything is cleared and control is
// handed back to the host.
func (ap *Autopilot) touchdown(st VehicleState) stageState {
	ap.logger.Log("level", "notice", "subsys", "land", "status", "touchdown",
		"fuel(kg)", fmt.Sprintf("%.1f", st.FuelMass))
	ap.act.SetThrottle(0)
	ap.att.Enable(false)
	ap.traj = nil
	ap.scanner = nil
	ap.flatten = nil
	ap.status = "landed"
	return noneStage{}
}

func (ap *Autopilot) setStatus(format string, args ...interface{}) {
	ap.status = fmt.Sprintf(format, args...)
}

// altAGL returns the altitude above the terrain directly below.
func (ap *Autopilot) altAGL(st VehicleState) float64 {
	lat, lon, alt := ap.body.GeoAt(st.R, st.DT)
	return alt - ap.terrain.Altitude(lat, lon)
}

// pointingError returns the angle between the thrust axis and the aim vector.
func (ap *Autopilot) pointingError(st VehicleState, aim []float64) float64 {
	return angleBetween(bodyToWorld(st.Attitude, thrustAxis), aim)
}

// correctedRetrograde is the braking attitude: surface retrograde pulled
// toward canceling the predicted landing error.
func (ap *Autopilot) correctedRetrograde(st VehicleState) []float64 {
	retro := scale(-1, unit(st.SurfaceVelocity(ap.body)))
	tr := ap.traj
	if tr == nil {
		return retro
	}
	e := sub(tr.Target.WorldPosition(ap.body, tr.SurfacePoint.DT), tr.SurfacePoint.R)
	gain := ap.cfg.CorrectionGain * clamp01(norm(e)/ap.cfg.CorrectionScale)
	return unit(add(retro, scale(gain, unit(e))))
}

// avoidanceWindows is how many sub-windows the near-term collision check
// bisects per tick. The look-ahead is short, so a synchronous sweep is cheap.
const avoidanceWindows = 10

// collisionCorrection returns a world-frame escape vector when the path ahead
// dips within the safety offset of terrain, and zero otherwise.
func (ap *Autopilot) collisionCorrection(st VehicleState) []float64 {
	if ap.traj == nil {
		return []float64{0, 0, 0}
	}
	stop := st.DT.Add(time.Duration(ap.cfg.AvoidanceWindow * float64(time.Second)))
	if cut := ap.traj.AboveUntil(2 * ap.cfg.ClearanceOffset); cut.Before(stop) {
		stop = cut
	}
	if !stop.After(st.DT) {
		return []float64{0, 0, 0}
	}
	width := stop.Sub(st.DT) / avoidanceWindows
	worst := math.Inf(-1)
	for i := 0; i < avoidanceWindows; i++ {
		lo := st.DT.Add(time.Duration(i) * width)
		if o := WorstClearance(ap.traj, ap.terrain, lo, lo.Add(width), ap.cfg.ClearanceOffset); o > worst {
			worst = o
		}
	}
	if worst <= 0 {
		return []float64{0, 0, 0}
	}
	return scale(worst, st.Up())
}

// adoptFlatSite relocates the target to the converged flat-site result if it
// qualifies: flat enough, actually elsewhere, and never over a vessel target.
// Copy-on-relocate: the optimizer result only becomes the target here.
func (ap *Autopilot) adoptFlatSite() {
	defer func() { ap.flatten = nil }()
	if ap.flatten == nil || ap.target.Vessel {
		return
	}
	lat, lon, score := ap.flatten.Best()
	if score > ap.cfg.UnevennessLimit {
		return
	}
	if lat == ap.target.Lat && lon == ap.target.Lon {
		return
	}
	relocated := ap.target.Relocated(lat, lon, ap.terrain.Altitude(lat, lon))
	ap.logger.Log("level", "info", "subsys", "land", "status", "target relocated",
		"from", ap.target, "to", relocated, "unevenness(m)", fmt.Sprintf("%.2f", score))
	ap.SetTarget(relocated)
	ap.traj = nil // force a fresh prediction against the new target
}
