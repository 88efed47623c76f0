package main

import (
	"encoding/json"
	"flag"
	"math"
	"net/http"
	"os"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gonum/matrix/mat64"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HebaruSan/landfall"
)

var (
	tgtLat    = flag.Float64("lat", 0.35, "target latitude (deg)")
	tgtLon    = flag.Float64("lon", 12.5, "target longitude (deg)")
	asap      = flag.Bool("asap", false, "land as soon as possible")
	addr      = flag.String("addr", ":8086", "telemetry listen address")
	exportCSV = flag.String("export", "", "CSV file for the initial predicted path")
)

// hostVehicle is a toy rigid-body stand-in for a real vehicle: attitude
// snaps to the commanded thrust direction, thrust applies along it.
type hostVehicle struct {
	st       landfall.VehicleState
	throttle float64
	aim      []float64
	body     landfall.CelestialBody
	terrain  landfall.Terrain
}

func (h *hostVehicle) SetThrottle(f float64)          { h.throttle = f }
func (h *hostVehicle) SetThrustDirection(v []float64) { h.aim = v }
func (h *hostVehicle) SetAttitude(m *mat64.Dense)     {}
func (h *hostVehicle) SetSteering(v []float64)        {}
func (h *hostVehicle) DeployParachutes()              {}
func (h *hostVehicle) DropStage()                     {}
func (h *hostVehicle) WarpTo(dt time.Time)            {}

// step advances the toy physics by Δt seconds.
func (h *hostVehicle) step(Δt float64) {
	st := &h.st
	if h.aim != nil {
		st.Attitude = attitudeFor(h.aim)
	}
	r := 0.0
	for _, v := range st.R {
		r += v * v
	}
	r = math.Sqrt(r)
	g := h.body.Gravity(r)
	acc := []float64{0, 0, 0}
	for i := range acc {
		acc[i] = -g * st.R[i] / r
	}
	thrust := 0.0
	if st.FuelMass > 0 {
		thrust = h.throttle * st.MaxThrustAccel
	}
	if h.aim != nil {
		for i := range acc {
			acc[i] += thrust * h.aim[i]
		}
	}
	for i := range acc {
		st.V[i] += acc[i] * Δt
		st.R[i] += st.V[i] * Δt
	}
	st.FuelMass = math.Max(0, st.FuelMass-st.FuelFlow*h.throttle*Δt)
	st.DT = st.DT.Add(time.Duration(Δt * float64(time.Second)))

	lat, lon, alt := h.body.GeoAt(st.R, st.DT)
	if alt <= h.terrain.Altitude(lat, lon) {
		st.Landed = true
		st.V = []float64{0, 0, 0}
	}
}

// attitudeFor builds a body-to-world matrix with the thrust axis (+Z) along d.
func attitudeFor(d []float64) *mat64.Dense {
	z := d
	ref := []float64{1, 0, 0}
	if math.Abs(z[0]) > 0.9 {
		ref = []float64{0, 1, 0}
	}
	x := crossUnit(ref, z)
	y := crossUnit(z, x)
	return mat64.NewDense(3, 3, []float64{
		x[0], y[0], z[0],
		x[1], y[1], z[1],
		x[2], y[2], z[2],
	})
}

func crossUnit(a, b []float64) []float64 {
	c := []float64{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
	n := math.Sqrt(c[0]*c[0] + c[1]*c[1] + c[2]*c[2])
	for i := range c {
		c[i] /= n
	}
	return c
}

func main() {
	flag.Parse()
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger, "app", "landsim")

	cfg, err := landfall.LoadSettings()
	if err != nil {
		logger.Log("level", "critical", "err", err)
		os.Exit(1)
	}
	body := landfall.Luna
	terrain := landfall.FlatTerrain(0)
	start := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	host := &hostVehicle{body: body, terrain: terrain}
	host.st = landfall.VehicleState{
		DT:                   start,
		R:                    body.WorldAt(*tgtLat, *tgtLon-3, 25e3, start),
		Attitude:             mat64.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		W:                    []float64{0, 0, 0},
		Mass:                 12000,
		MaxThrustAccel:       22,
		MaxTorque:            []float64{40e3, 40e3, 12e3},
		MoI:                  []float64{90e3, 90e3, 30e3},
		FuelMass:             5000,
		FuelFlow:             25,
		MaxTemperature:       1800,
		HasControlAuthority:  true,
		EnginesActive:        true,
		HasNonManualThruster: true,
	}
	// Roughly orbital speed, eastward.
	vOrbit := math.Sqrt(body.GM() / (body.Radius + 25e3))
	east := crossUnit([]float64{0, 0, 1}, host.st.R)
	host.st.V = []float64{east[0] * vOrbit, east[1] * vOrbit, east[2] * vOrbit}

	ap := landfall.NewAutopilot(cfg, body, terrain, host, logger)
	ap.SetTarget(landfall.Target{Name: "pad", Lat: *tgtLat, Lon: *tgtLon})
	ap.SetLandASAP(*asap)
	if err := ap.Start(host.st); err != nil {
		logger.Log("level", "critical", "err", err)
		os.Exit(1)
	}
	if *exportCSV != "" {
		ap.Trajectory().Export(landfall.ExportConfig{Filename: *exportCSV, AsCSV: true})
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"stage":  ap.Stage().String(),
			"status": ap.Status(),
			"fuel":   host.st.FuelMass,
		})
	}).Methods("GET")
	go http.ListenAndServe(*addr, router)

	const Δt = 0.1
	for i := 0; ap.Stage() != landfall.StageNone && i < 10_000_000; i++ {
		ap.Tick(host.st)
		ap.TickAttitude(host.st, Δt)
		host.step(Δt)
	}
	logger.Log("level", "notice", "status", ap.Status(), "fuel(kg)", host.st.FuelMass)
}
