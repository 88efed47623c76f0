package landfall

import (
	"fmt"
	"math"
	"os"

	"github.com/spf13/viper"
)

// Settings gathers every tuning constant of the guidance core. A value is
// built once (DefaultSettings or LoadSettings) and injected at construction;
// nothing reads configuration ambiently after that.
type Settings struct {
	// Trajectory prediction
	SimStep     float64 // s, integration step
	SimHorizon  float64 // s, give up on a surface crossing after this long
	BrakeMargin float64 // fraction of extra brake time budgeted
	AmbientTemp float64 // K
	HeatingK    float64 // K per Pa of dynamic pressure
	FuelSafety  float64 // reserve factor on predicted fuel

	// Stage machine
	TrajectoryRefresh float64 // s between full predictions while waiting
	Dtol              float64 // m, touchdown distance tolerance
	DistanceDeadzone  float64 // m, suppress correction burns below this
	MinDistanceChange float64 // m, ignore smaller prediction jitter
	ReactionTime      float64 // s, brake commit margin
	CorrectionWindow  float64 // s, no time-warp within this of brake start
	WarpLead          float64 // s, warp aims this far before brake start
	CorrectionGain    float64 // retrograde correction blending
	CorrectionScale   float64 // m, landing error that saturates the correction
	WaitThrottle      float64 // correction burn throttle ceiling while waiting
	MaxPointingError  float64 // rad, correction burns gated above this
	DecelVelocityTol  float64 // m/s, deceleration considered complete below this
	CollisionHold     float64 // s, hold retro burn after a flagged collision
	ThrottleResponse  float64 // s, velocity excess nulled over this long
	HoverTimeMargin   float64 // s of hover fuel required for a soft landing
	ApproachDistance  float64 // m, beyond this SoftLanding hands over to Approach
	ApproachSpeed     float64 // m/s, horizontal transit speed
	MaxDescentSpeed   float64 // m/s
	TouchdownSpeed    float64 // m/s
	DescentDivider    float64 // desired sink rate = altitude / divider
	ImpactSpeed       float64 // m/s, hard-landing thrust engages above this
	MaxDynamicPress   float64 // Pa, structural limit
	HighQTimeout      float64 // s over the limit before dropping staged mass
	MaxChuteQ         float64 // Pa, parachutes safe below this
	UseAerobrake      bool

	// Obstacle scanning
	ClearanceOffset float64 // m, safety offset over terrain
	ObstacleBudget  int     // sub-windows bisected per tick
	AvoidanceWindow float64 // s of look-ahead during final descent

	// Flat-site search
	FlatSiteBudget    int     // score evaluations per tick
	FlatSiteMaxDist   float64 // m from the original target
	UnevennessLimit   float64 // m, acceptable site roughness
	Footprint         float64 // m, vehicle footprint
	FlatSiteTolerance float64 // m, convergence tolerance on the score

	// Attitude loop
	AttP            float64
	AttI            float64
	AttD            float64
	IntegralLimit   float64
	ErrorSoftening  float64 // gain softening with steering error magnitude
	MomentumDamping float64 // derivative damping per unit angular momentum
	InertiaFactor   float64 // momentum compensation softening
	SplitAngle      float64 // rad, two-component error decomposition above this
}

// DefaultSettings returns the flight-tested defaults.
func DefaultSettings() Settings {
	return Settings{
		SimStep:     0.5,
		SimHorizon:  4 * 3600,
		BrakeMargin: 0.5,
		AmbientTemp: 270,
		HeatingK:    0.15,
		FuelSafety:  1.2,

		TrajectoryRefresh: 5,
		Dtol:              50,
		DistanceDeadzone:  100,
		MinDistanceChange: 50,
		ReactionTime:      5,
		CorrectionWindow:  60,
		WarpLead:          15,
		CorrectionGain:    0.5,
		CorrectionScale:   5000,
		WaitThrottle:      0.1,
		MaxPointingError:  0.3,
		DecelVelocityTol:  2,
		CollisionHold:     10,
		ThrottleResponse:  2,
		HoverTimeMargin:   10,
		ApproachDistance:  500,
		ApproachSpeed:     20,
		MaxDescentSpeed:   30,
		TouchdownSpeed:    2,
		DescentDivider:    10,
		ImpactSpeed:       10,
		MaxDynamicPress:   40e3,
		HighQTimeout:      5,
		MaxChuteQ:         20e3,

		ClearanceOffset: 50,
		ObstacleBudget:  4,
		AvoidanceWindow: 10,

		FlatSiteBudget:    12,
		FlatSiteMaxDist:   2000,
		UnevennessLimit:   2,
		Footprint:         8,
		FlatSiteTolerance: 0.1,

		AttP:            0.9,
		AttI:            0.05,
		AttD:            0.4,
		IntegralLimit:   0.5,
		ErrorSoftening:  1.5,
		MomentumDamping: 0.01,
		InertiaFactor:   0.05,
		SplitAngle:      150 * math.Pi / 180,
	}
}

// LoadSettings returns the defaults overridden by conf.toml in the directory
// named by the LANDFALL_CONFIG environment variable. An unset variable is not
// an error: the defaults are returned as-is so the core stays usable as a
// plain library.
func LoadSettings() (Settings, error) {
	s := DefaultSettings()
	confPath := os.Getenv("LANDFALL_CONFIG")
	if confPath == "" {
		return s, nil
	}
	viper.SetConfigName("conf")
	viper.AddConfigPath(confPath)
	if err := viper.ReadInConfig(); err != nil {
		return s, fmt.Errorf("%s/conf.toml not found", confPath)
	}
	set := func(key string, dst *float64) {
		if viper.IsSet(key) {
			*dst = viper.GetFloat64(key)
		}
	}
	set("landing.dtol", &s.Dtol)
	set("landing.reaction_time", &s.ReactionTime)
	set("landing.correction_window", &s.CorrectionWindow)
	set("landing.touchdown_speed", &s.TouchdownSpeed)
	set("landing.max_descent_speed", &s.MaxDescentSpeed)
	set("landing.hover_time_margin", &s.HoverTimeMargin)
	set("landing.fuel_safety", &s.FuelSafety)
	set("landing.max_dynamic_pressure", &s.MaxDynamicPress)
	set("scan.clearance_offset", &s.ClearanceOffset)
	set("scan.unevenness_limit", &s.UnevennessLimit)
	set("scan.flat_site_max_distance", &s.FlatSiteMaxDist)
	set("attitude.p", &s.AttP)
	set("attitude.i", &s.AttI)
	set("attitude.d", &s.AttD)
	if viper.IsSet("landing.use_aerobrake") {
		s.UseAerobrake = viper.GetBool("landing.use_aerobrake")
	}
	if viper.IsSet("scan.obstacle_budget") {
		s.ObstacleBudget = viper.GetInt("scan.obstacle_budget")
	}
	if viper.IsSet("scan.flat_site_budget") {
		s.FlatSiteBudget = viper.GetInt("scan.flat_site_budget")
	}
	return s, nil
}
