package landfall

import (
	"math"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gonum/matrix/mat64"
)

// AttitudeMode defines what the attitude loop points the vehicle at. All
// celestial modes reduce to a desired world thrust direction; the hold and
// kill-rotation modes track a locked reference attitude instead.
type AttitudeMode uint8

const (
	// ModeOff disables steering output.
	ModeOff AttitudeMode = iota
	// ModeThrust tracks the direction set via SetThrustDirection.
	ModeThrust
	// ModeHold freezes the attitude at the first tick it is selected.
	ModeHold
	// ModeKillRotation locks a reference once the spin stops decreasing.
	ModeKillRotation
	// ModePrograde and friends track fixed celestial directions.
	ModePrograde
	ModeRetrograde
	ModeNormal
	ModeAntiNormal
	ModeRadialIn
	ModeRadialOut
	ModeToTarget
	ModeFromTarget
)

func (m AttitudeMode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeThrust:
		return "thrust"
	case ModeHold:
		return "hold"
	case ModeKillRotation:
		return "killrot"
	case ModePrograde:
		return "prograde"
	case ModeRetrograde:
		return "retrograde"
	case ModeNormal:
		return "normal"
	case ModeAntiNormal:
		return "antinormal"
	case ModeRadialIn:
		return "radial-"
	case ModeRadialOut:
		return "radial+"
	case ModeToTarget:
		return "target"
	case ModeFromTarget:
		return "antitarget"
	}
	panic("cannot stringify unknown attitude mode")
}

// thrustAxis is the engine thrust direction in the body frame.
var thrustAxis = []float64{0, 0, 1}

// AttitudeLoop turns a desired thrust direction or orientation into a steering
// command, ticked every physics step. Gains adapt to the vehicle's control
// authority and to the steering error so the loop softens on large errors and
// stiffens for precision hold.
type AttitudeLoop struct {
	cfg    Settings
	act    Actuators
	logger kitlog.Logger

	mode    AttitudeMode
	thrust  []float64    // desired world thrust direction (vector modes)
	ref     *mat64.Dense // locked reference attitude (hold/killrot)
	target  Target
	body    CelestialBody
	enabled bool

	integral []float64
	lastErr  []float64
	haveErr  bool
	// last two spin magnitudes, to avoid re-locking mid-oscillation
	lastW [2]float64
}

// NewAttitudeLoop returns an attitude loop feeding the given actuator sink.
func NewAttitudeLoop(cfg Settings, act Actuators, logger kitlog.Logger) *AttitudeLoop {
	return &AttitudeLoop{
		cfg:      cfg,
		act:      act,
		logger:   logger,
		integral: make([]float64, 3),
		lastErr:  make([]float64, 3),
	}
}

// Enable switches the loop on or off; disabling resets all feedback memory.
func (l *AttitudeLoop) Enable(on bool) {
	if l.enabled && !on {
		l.Reset()
	}
	l.enabled = on
}

// Reset clears feedback memory and any locked reference.
func (l *AttitudeLoop) Reset() {
	l.integral = make([]float64, 3)
	l.lastErr = make([]float64, 3)
	l.haveErr = false
	l.ref = nil
	l.mode = ModeOff
	l.lastW = [2]float64{}
}

// SetThrustDirection sets a world-frame thrust direction target for the next
// ticks and selects ModeThrust.
// Hosts that can steer natively get the direction forwarded; hosts that
// cannot are served by the per-axis commands from Tick.
func (l *AttitudeLoop) SetThrustDirection(v []float64) {
	l.thrust = unit(v)
	l.mode = ModeThrust
	if l.act != nil {
		l.act.SetThrustDirection(l.thrust)
	}
}

// SetMode selects an orientation mode. Switching away from hold/killrot drops
// the locked reference.
func (l *AttitudeLoop) SetMode(m AttitudeMode) {
	if m != l.mode {
		l.ref = nil
	}
	l.mode = m
}

// SetTarget supplies the target used by the target-relative modes.
func (l *AttitudeLoop) SetTarget(t Target, b CelestialBody) {
	l.target = t
	l.body = b
}

// Mode returns the currently selected mode.
func (l *AttitudeLoop) Mode() AttitudeMode {
	return l.mode
}

// desiredWorld resolves the current mode to a world-frame thrust direction,
// or nil when the mode tracks a reference attitude instead.
func (l *AttitudeLoop) desiredWorld(st VehicleState) []float64 {
	switch l.mode {
	case ModeThrust:
		return l.thrust
	case ModePrograde:
		return unit(st.V)
	case ModeRetrograde:
		return scale(-1, unit(st.V))
	case ModeNormal:
		return unit(cross(st.R, st.V))
	case ModeAntiNormal:
		return scale(-1, unit(cross(st.R, st.V)))
	case ModeRadialOut:
		return unit(st.R)
	case ModeRadialIn:
		return scale(-1, unit(st.R))
	case ModeToTarget:
		return unit(sub(l.target.WorldPosition(l.body, st.DT), st.R))
	case ModeFromTarget:
		return scale(-1, unit(sub(l.target.WorldPosition(l.body, st.DT), st.R)))
	}
	return nil
}

// steeringError returns the orientation error in the body frame, in radians
// per axis.
func (l *AttitudeLoop) steeringError(st VehicleState) []float64 {
	if d := l.desiredWorld(st); d != nil {
		want := worldToBody(st.Attitude, d)
		angle := angleBetween(thrustAxis, want)
		axis := unit(cross(thrustAxis, want))
		err := scale(angle, axis)
		if angle > l.cfg.SplitAngle {
			// Nearly anti-parallel: rotating about both axes at once is
			// unstable, so command the dominant one first.
			if math.Abs(err[0]) >= math.Abs(err[1]) {
				err[1] = 0
			} else {
				err[0] = 0
			}
		}
		return err
	}

	switch l.mode {
	case ModeHold:
		if l.ref == nil {
			l.lock(st)
		}
	case ModeKillRotation:
		w := norm(st.W)
		// Re-lock only once the spin stops decreasing across two samples.
		if l.ref == nil || (w >= l.lastW[0] && l.lastW[0] <= l.lastW[1]) {
			l.lock(st)
		}
	default:
		return []float64{0, 0, 0}
	}
	// Rotation from current to reference: skew-symmetric part of refᵀ·cur.
	var e mat64.Dense
	e.Mul(l.ref.T(), st.Attitude)
	return []float64{
		0.5 * (e.At(2, 1) - e.At(1, 2)),
		0.5 * (e.At(0, 2) - e.At(2, 0)),
		0.5 * (e.At(1, 0) - e.At(0, 1)),
	}
}

// Tick computes and issues the steering command for one physics step. It
// returns the per-axis command in [-1, 1].
func (l *AttitudeLoop) Tick(st VehicleState, Δt float64) []float64 {
	cmd := []float64{0, 0, 0}
	if !l.enabled || l.mode == ModeOff || Δt <= 0 {
		return cmd
	}
	err := l.steeringError(st)
	errMag := norm(err)
	// Soften gains near large errors, stiffen near small ones.
	errFactor := 1 / (1 + clamp(errMag, 0, math.Pi)*l.cfg.ErrorSoftening)
	totalMoI := st.MoI[0] + st.MoI[1] + st.MoI[2]

	for i := 0; i < 3; i++ {
		avail := 0.0
		if st.MoI[i] > 0 {
			avail = st.MaxTorque[i] / st.MoI[i] // rad/s² available on this axis
		}
		if avail <= 0 {
			continue
		}
		authority := 1 / avail
		kp := l.cfg.AttP * authority * errFactor
		ki := l.cfg.AttI * authority * errFactor
		momentum := st.MoI[i] * st.W[i]
		kd := l.cfg.AttD * authority / (1 + math.Abs(momentum)*l.cfg.MomentumDamping)

		l.integral[i] = clamp(l.integral[i]+err[i]*Δt, -l.cfg.IntegralLimit, l.cfg.IntegralLimit)
		deriv := 0.0
		if l.haveErr {
			deriv = (err[i] - l.lastErr[i]) / Δt
		}
		// Inertia compensation against stored momentum on lopsided vehicles,
		// softened as the total moment of inertia grows.
		comp := -sign(momentum) * momentum * momentum / st.MaxTorque[i] *
			l.cfg.InertiaFactor / (1 + totalMoI*1e-6)

		out := kp*err[i] + ki*l.integral[i] + kd*deriv + comp
		cmd[i] = clamp(out/avail, -1, 1)
	}

	copy(l.lastErr, err)
	l.haveErr = true
	l.lastW[1] = l.lastW[0]
	l.lastW[0] = norm(st.W)
	if l.act != nil {
		l.act.SetSteering(cmd)
	}
	return cmd
}

// lock freezes the current attitude as the tracking reference and forwards it
// to hosts with a native attitude hold.
func (l *AttitudeLoop) lock(st VehicleState) {
	l.ref = mat64.DenseCopyOf(st.Attitude)
	if l.act != nil {
		l.act.SetAttitude(l.ref)
	}
}

func (l *AttitudeLoop) holdLocked() bool { return l.ref != nil }
