package landfall

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageGauge       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landfall_stage"})
	distanceGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landfall_distance_to_target_meters"})
	fuelNeededGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landfall_fuel_needed_kg"})
	fuelGauge        = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landfall_fuel_available_kg"})
	altitudeGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landfall_altitude_meters"})
	obstructionGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landfall_obstruction_meters"})
	unevennessGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landfall_best_unevenness_meters"})
	maxTempGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landfall_predicted_max_temperature_kelvin"})
)

func init() {
	prometheus.MustRegister(
		stageGauge, distanceGauge, fuelNeededGauge, fuelGauge,
		altitudeGauge, obstructionGauge, unevennessGauge, maxTempGauge,
	)
}

// publishMetrics exports the per-tick telemetry of the stage machine.
func (ap *Autopilot) publishMetrics(st VehicleState) {
	stageGauge.Set(float64(ap.Stage()))
	fuelGauge.Set(st.FuelMass)
	altitudeGauge.Set(st.Altitude(ap.body))
	if tr := ap.traj; tr != nil {
		distanceGauge.Set(tr.DistanceToTarget)
		if !math.IsInf(tr.FuelNeeded, 1) {
			fuelNeededGauge.Set(tr.FuelNeeded)
		}
		maxTempGauge.Set(tr.MaxTemperature)
	}
	if ap.scanner != nil {
		obstructionGauge.Set(ap.scanner.Obstruction())
	}
	if ap.flatten != nil {
		if _, _, score := ap.flatten.Best(); !math.IsInf(score, 1) {
			unevennessGauge.Set(score)
		}
	}
}
