package landfall

import (
	"math"
	"testing"
	"time"
)

func TestLandingStageString(t *testing.T) {
	for s := StageNone; s <= StageLandHere; s++ {
		if s.String() == "" {
			t.Fatalf("stage %d stringified empty", s)
		}
	}
	assertPanic(t, func() {
		_ = LandingStage(99).String()
	})
}

func TestStartPreconditions(t *testing.T) {
	ap, _ := testAutopilot(FlatTerrain(0))
	st := testVehicle(25e3, []float64{-100, 0, 0})
	if err := ap.Start(st); err != ErrNoTarget {
		t.Fatalf("expected ErrNoTarget, got %v", err)
	}
	ap.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})

	st.EnginesActive = false
	if err := ap.Start(st); err != ErrNoActiveEngines {
		t.Fatalf("expected ErrNoActiveEngines, got %v", err)
	}
	st.EnginesActive = true

	st.HasNonManualThruster = false
	if err := ap.Start(st); err != ErrManualThrustersOnly {
		t.Fatalf("expected ErrManualThrustersOnly, got %v", err)
	}
	st.HasNonManualThruster = true

	st.V[0] = math.NaN()
	if err := ap.Start(st); err != ErrDiscontinuousOrbit {
		t.Fatalf("expected ErrDiscontinuousOrbit, got %v", err)
	}
	st.V[0] = -100

	if err := ap.Start(st); err != nil {
		t.Fatalf("a valid setup must start, got %v", err)
	}
	if ap.Stage() != StageWait {
		t.Fatalf("a started autopilot waits for the brake point, got %s", ap.Stage())
	}
	if ap.Trajectory() == nil {
		t.Fatal("starting must leave a prediction in place")
	}
}

func TestTickInactive(t *testing.T) {
	ap, rec := testAutopilot(FlatTerrain(0))
	ap.Tick(testVehicle(25e3, []float64{-100, 0, 0}))
	if ap.Stage() != StageNone {
		t.Fatalf("an inactive autopilot must stay inactive, got %s", ap.Stage())
	}
	if rec.throttleOn {
		t.Fatal("an inactive autopilot must not command thrust")
	}
}

func TestAbortReleasesControl(t *testing.T) {
	ap, rec := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad"})
	st := testVehicle(25e3, []float64{-100, 0, 0})
	if err := ap.Start(st); err != nil {
		t.Fatalf("Start failed: %s", err)
	}
	ap.Abort()
	if ap.Stage() != StageNone {
		t.Fatalf("abort must return to StageNone, got %s", ap.Stage())
	}
	if ap.Trajectory() != nil || ap.scanner != nil || ap.flatten != nil {
		t.Fatal("abort must clear every session")
	}
	if rec.throttle != 0 {
		t.Fatalf("abort must cut the throttle, got %f", rec.throttle)
	}
}

// startedWait puts a fresh autopilot in waitStage with the prediction for st
// already in place and no refresh due, so a test can inject its own trajectory
// tweaks before ticking.
func startedWait(t *testing.T, st VehicleState) (*Autopilot, *recorder) {
	t.Helper()
	ap, rec := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})
	if err := ap.Start(st); err != nil {
		t.Fatalf("Start failed: %s", err)
	}
	ap.state = &waitStage{lastPredict: st.DT}
	return ap, rec
}

func TestWaitObstacleTransition(t *testing.T) {
	st := testVehicle(25e3, []float64{-100, 0, 0})
	ap, _ := startedWait(t, st)
	ap.scanner = &ObstacleSearch{worst: 30, next: obstacleWindows}
	ap.Tick(st)
	if ap.Stage() != StageDecelerate {
		t.Fatalf("a positive obstruction must decelerate, got %s", ap.Stage())
	}
	if d, ok := ap.state.(*decelStage); !ok || !d.collided {
		t.Fatal("an obstacle deceleration must carry the collided flag")
	}
}

func TestWaitOverheatTransition(t *testing.T) {
	st := testVehicle(25e3, []float64{-100, 0, 0})
	ap, _ := startedWait(t, st)
	ap.traj.WillOverheat = true
	ap.Tick(st)
	if ap.Stage() != StageDecelerate {
		t.Fatalf("a predicted overheat must decelerate, got %s", ap.Stage())
	}
	if d := ap.state.(*decelStage); d.collided {
		t.Fatal("an overheat deceleration must not carry the collided flag")
	}
}

func TestWaitBrakePointTransition(t *testing.T) {
	st := testVehicle(25e3, []float64{-100, 0, 0})
	ap, _ := startedWait(t, st)
	ap.traj.BrakeStart.DT = st.DT.Add(time.Second)
	ap.Tick(st)
	if ap.Stage() != StageDecelerate {
		t.Fatalf("reaching the brake point must decelerate, got %s", ap.Stage())
	}
}

func TestWaitWarpsWhenIdle(t *testing.T) {
	st := testVehicle(25e3, []float64{-100, 0, 0})
	ap, rec := startedWait(t, st)
	ap.traj.BrakeStart.DT = st.DT.Add(10 * time.Minute)
	ap.scanner = &ObstacleSearch{next: obstacleWindows, worst: math.Inf(-1)}
	ap.Tick(st)
	if ap.Stage() != StageWait {
		t.Fatalf("a distant brake point keeps waiting, got %s", ap.Stage())
	}
	if rec.warpCalls == 0 {
		t.Fatal("an idle wait far from the brake point must request warp")
	}
	lead := ap.traj.BrakeStart.DT.Sub(rec.warpedTo).Seconds()
	if lead < ap.cfg.WarpLead-1 {
		t.Fatalf("warp must aim ahead of the brake point, lead %f s", lead)
	}
}

func TestWaitDoesNotWarpWhileScanning(t *testing.T) {
	st := testVehicle(25e3, []float64{-100, 0, 0})
	ap, rec := startedWait(t, st)
	ap.traj.BrakeStart.DT = st.DT.Add(10 * time.Minute)
	ap.scanner = NewObstacleSearch(ap.traj, ap.terrain, st.DT, st.DT.Add(time.Minute), ap.cfg.ClearanceOffset)
	ap.Tick(st)
	if rec.warpCalls != 0 {
		t.Fatal("warp must wait for the terrain sweep to finish")
	}
}

func TestDecelInsufficientFuel(t *testing.T) {
	st := testVehicle(25e3, []float64{-100, 1500, 0})
	st.FuelMass = 5
	ap, _ := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad"})
	ap.state = newDecelerate(false)
	ap.Tick(st)
	if ap.Stage() != StageHardLanding {
		t.Fatalf("running out of fuel mid-brake must degrade to a hard landing, got %s", ap.Stage())
	}
}

func TestDecelCollisionHold(t *testing.T) {
	st := testVehicle(25e3, []float64{-100, 200, 0})
	ap, rec := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad"})
	d := newDecelerate(true)
	ap.state = d

	ap.Tick(st)
	if ap.Stage() != StageDecelerate {
		t.Fatalf("the collision hold must keep decelerating, got %s", ap.Stage())
	}
	if rec.throttle != 1 {
		t.Fatalf("the collision hold burns at full throttle, got %f", rec.throttle)
	}
	armed := d.holdUntil
	if armed.IsZero() {
		t.Fatal("the first collided tick must arm the hold timer")
	}

	// Re-ticking at the same instant must not push the timer out.
	ap.Tick(st)
	if !d.holdUntil.Equal(armed) {
		t.Fatal("re-ticking must not re-arm the hold timer")
	}

	late := st
	late.DT = st.DT.Add(time.Duration((ap.cfg.CollisionHold + 1) * float64(time.Second)))
	ap.Tick(late)
	if ap.Stage() != StageWait {
		t.Fatalf("a cleared hold restarts the wait, got %s", ap.Stage())
	}
}

func TestDecelToCoast(t *testing.T) {
	st := testVehicle(25e3, []float64{-1, 0, 0})
	ap, rec := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad"})
	ap.state = newDecelerate(false)
	ap.Tick(st)
	if ap.Stage() != StageCoast {
		t.Fatalf("a nulled velocity must coast, got %s", ap.Stage())
	}
	if rec.throttle != 0 {
		t.Fatalf("coasting begins with the throttle cut, got %f", rec.throttle)
	}
}

func TestCoastHardLandingDowngrades(t *testing.T) {
	// Low and fast: the brake point is already due when coast decides.
	base := testVehicle(2000, []float64{-150, 0, 0})

	cases := []struct {
		name   string
		tweak  func(*VehicleState)
		expect LandingStage
	}{
		{"no control authority", func(s *VehicleState) { s.HasControlAuthority = false }, StageHardLanding},
		{"insufficient thrust", func(s *VehicleState) { s.MaxThrustAccel = 1 }, StageHardLanding},
		{"insufficient fuel", func(s *VehicleState) { s.FuelMass = 1 }, StageHardLanding},
		{"healthy", func(s *VehicleState) {}, StageSoftLanding},
	}
	for _, tc := range cases {
		st := base
		tc.tweak(&st)
		ap, _ := testAutopilot(FlatTerrain(0))
		ap.SetTarget(Target{Name: "pad"})
		ap.state = &coastStage{lastDistance: math.Inf(1)}
		ap.Tick(st)
		if ap.Stage() != tc.expect {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expect, ap.Stage())
		}
	}
}

func TestCoastReDecelerateOnDrift(t *testing.T) {
	st := testVehicle(25e3, []float64{-100, 200, 0})
	st.MaxThrustAccel = 200 // short brake lead keeps the countdown comfortably open
	ap, _ := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})
	ap.state = &coastStage{lastDistance: 0}
	ap.Tick(st)
	if ap.Stage() != StageDecelerate {
		t.Fatalf("a drifting prediction must re-decelerate, got %s", ap.Stage())
	}
}

func TestCoastReDecelerateOnOvershoot(t *testing.T) {
	// Moving east, target behind the predicted landing point.
	st := testVehicle(25e3, []float64{-100, 400, 0})
	st.MaxThrustAccel = 200
	ap, _ := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})
	ap.state = &coastStage{lastDistance: math.Inf(1)}
	ap.Tick(st)
	if ap.Stage() != StageDecelerate {
		t.Fatalf("overshooting the target must re-decelerate, got %s", ap.Stage())
	}
	tr := ap.Trajectory()
	if tr == nil || tr.ΔRadial >= 0 {
		t.Fatal("the overshoot case needs a negative along-track delta")
	}
}

func TestHardLandingThrottlePolicy(t *testing.T) {
	ap, rec := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad"})
	ap.state = newHardLanding()

	fast := testVehicle(5000, []float64{-100, 0, 0})
	ap.Tick(fast)
	if rec.throttle <= 0 {
		t.Fatal("a fast emergency descent must brake on remaining thrust")
	}

	slow := testVehicle(5000, []float64{-5, 0, 0})
	ap.Tick(slow)
	if rec.throttle != 0 {
		t.Fatalf("below the impact speed the throttle stays cut, got %f", rec.throttle)
	}
	if rec.chutes != 0 {
		t.Fatal("an airless body has no use for parachutes")
	}
}

func TestHardLandingChutesOnce(t *testing.T) {
	thick := testBody
	thick.AtmosphereAlt = 70e3
	thick.ρ0 = 1.2
	thick.ScaleHeight = 8500
	rec := &recorder{}
	ap := NewAutopilot(DefaultSettings(), thick, FlatTerrain(0), rec, testLogger())
	ap.SetTarget(Target{Name: "pad"})
	ap.state = newHardLanding()

	st := testVehicle(5000, []float64{-100, 0, 0})
	st.DynamicPressure = ap.cfg.MaxChuteQ / 2
	ap.Tick(st)
	ap.Tick(st)
	if rec.chutes != 1 {
		t.Fatalf("parachutes deploy exactly once, got %d", rec.chutes)
	}
}

func TestHardLandingDropsStageOnSustainedQ(t *testing.T) {
	thick := testBody
	thick.AtmosphereAlt = 70e3
	thick.ρ0 = 1.2
	thick.ScaleHeight = 8500
	rec := &recorder{}
	ap := NewAutopilot(DefaultSettings(), thick, FlatTerrain(0), rec, testLogger())
	ap.SetTarget(Target{Name: "pad"})
	h := newHardLanding()
	ap.state = h

	st := testVehicle(50e3, []float64{-100, 2000, 0})
	st.DynamicPressure = ap.cfg.MaxDynamicPress * 2
	ap.Tick(st)
	if rec.drops != 0 {
		t.Fatal("a transient pressure spike must not drop the stage")
	}
	late := st
	late.DT = st.DT.Add(time.Duration((ap.cfg.HighQTimeout + 1) * float64(time.Second)))
	ap.Tick(late)
	if rec.drops != 1 {
		t.Fatalf("sustained overpressure must drop the stage once, got %d", rec.drops)
	}
	ap.Tick(late)
	if rec.drops != 1 {
		t.Fatalf("the stage drops at most once, got %d", rec.drops)
	}
}

func TestSoftLandingHandsOver(t *testing.T) {
	// Hovering right above the target: the approach is already settled.
	st := testVehicle(300, []float64{0, 0, 0})
	ap, _ := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})
	ap.state = &softLandingStage{}
	ap.Tick(st)
	if ap.Stage() != StageLand {
		t.Fatalf("settled over the target must hand over to Land, got %s", ap.Stage())
	}

	ap2, _ := testAutopilot(FlatTerrain(0))
	ap2.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})
	ap2.SetLandASAP(true)
	ap2.state = &softLandingStage{}
	ap2.Tick(st)
	if ap2.Stage() != StageLandHere {
		t.Fatalf("land-ASAP must terminate at the surface point, got %s", ap2.Stage())
	}
}

func TestApproachReachesTarget(t *testing.T) {
	st := testVehicle(300, []float64{0, 0, 0})
	ap, _ := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})
	ap.state = &approachStage{}
	ap.Tick(st)
	if ap.Stage() != StageLand {
		t.Fatalf("arriving over the target must land, got %s", ap.Stage())
	}
}

func TestApproachFuelLowLandsHere(t *testing.T) {
	st := testVehicle(300, []float64{0, 0, 0})
	st.R = GEO2BCBF(testBody, 0, 1, 300) // ~10 km short of the pad
	st.FuelMass = 50
	ap, _ := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})
	ap.state = &approachStage{}
	ap.Tick(st)
	if ap.Stage() != StageLandHere {
		t.Fatalf("low fuel mid-transit must land in place, got %s", ap.Stage())
	}
}

func TestTouchdownFinishes(t *testing.T) {
	st := testVehicle(0, []float64{0, 0, 0})
	st.Landed = true
	ap, rec := testAutopilot(FlatTerrain(0))
	ap.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})
	ap.state = &landStage{}
	ap.Tick(st)
	if ap.Stage() != StageNone {
		t.Fatalf("touchdown must finish the landing, got %s", ap.Stage())
	}
	if rec.throttle != 0 {
		t.Fatalf("touchdown must cut the throttle, got %f", rec.throttle)
	}
	if ap.Status() != "landed" {
		t.Fatalf("expected landed status, got %q", ap.Status())
	}
}

// TestVerticalDescentScenario flies the terminal stages against a toy vertical
// dynamics model: thrust is applied exactly along the commanded direction.
// TestDescentScenario flies the whole program closed loop: a vehicle dropped
// vertically over the pad from 5 km, stepped with toy Euler physics that obeys
// the throttle and thrust direction the autopilot commands.
func TestDescentScenario(t *testing.T) {
	cfg := DefaultSettings()
	rec := &recorder{}
	ap := NewAutopilot(cfg, testBody, FlatTerrain(0), rec, testLogger())
	ap.SetTarget(Target{Name: "pad", Lat: 0, Lon: 0})

	st := testVehicle(5000, []float64{-50, 0, 0})
	if err := ap.Start(st); err != nil {
		t.Fatalf("Start failed: %s", err)
	}
	seq := []LandingStage{ap.Stage()}
	const Δt = 0.1
	touchdownSpeed := 0.0
	for i := 0; i < 20000; i++ {
		ap.Tick(st)
		if s := ap.Stage(); s != seq[len(seq)-1] {
			seq = append(seq, s)
		}
		if ap.Stage() == StageNone {
			break
		}
		g := testBody.Gravity(norm(st.R))
		acc := scale(-g, st.Up())
		if rec.throttle > 0 && st.FuelMass > 0 && len(rec.thrustDir) == 3 {
			acc = add(acc, scale(rec.throttle*st.MaxThrustAccel, unit(rec.thrustDir)))
			st.FuelMass = math.Max(0, st.FuelMass-st.FuelFlow*rec.throttle*Δt)
		}
		st.V = add(st.V, scale(Δt, acc))
		st.R = add(st.R, scale(Δt, st.V))
		st.DT = st.DT.Add(time.Duration(Δt * float64(time.Second)))
		if norm(st.R) <= testBody.Radius {
			touchdownSpeed = norm(st.V)
			st.R = scale(testBody.Radius/norm(st.R), st.R)
			st.V = []float64{0, 0, 0}
			st.Landed = true
		}
	}
	if ap.Stage() != StageNone {
		t.Fatalf("the descent never finished, stuck in %s at %.0f m", ap.Stage(), norm(st.R)-testBody.Radius)
	}
	if !st.Landed {
		t.Fatal("the landing finished without touching down")
	}
	if touchdownSpeed > 3*cfg.TouchdownSpeed {
		t.Fatalf("touchdown at %f m/s is a crash", touchdownSpeed)
	}
	want := []LandingStage{StageWait, StageDecelerate, StageCoast, StageSoftLanding, StageLand, StageNone}
	for i, w := range want {
		if i >= len(seq) || seq[i] != w {
			t.Fatalf("stage sequence %v, want %v", seq, want)
		}
	}
}
