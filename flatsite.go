package landfall

import (
	"math"
)

// ScoreFunc rates a candidate surface coordinate; lower is flatter. A score of
// +Inf marks an unusable candidate.
type ScoreFunc func(lat, lon float64) float64

// FeasibleFunc reports whether a candidate may be considered at all. The
// search core never checks boundaries itself; infeasible candidates simply
// score +Inf, steering the descent back inward.
type FeasibleFunc func(lat, lon float64) bool

// Unevenness scores the local terrain roughness at a candidate: the mean of
// four elevation deltas sampled half a footprint away in each compass
// direction. Water scores +Inf.
func Unevenness(terrain Terrain, body CelestialBody, lat, lon, footprint float64) float64 {
	if terrain.IsWater(lat, lon) {
		return math.Inf(1)
	}
	offset := footprint / 2 / body.Radius * rad2deg
	h0 := terrain.Altitude(lat, lon)
	sum := 0.0
	for _, d := range [][2]float64{{offset, 0}, {-offset, 0}, {0, offset}, {0, -offset}} {
		sum += math.Abs(terrain.Altitude(lat+d[0], lon+d[1]) - h0)
	}
	return sum / 4
}

// FlatSiteSearch is a resumable derivative-free pattern search over nearby
// surface coordinates, minimizing a score subject to a feasibility predicate.
// It advances a bounded number of score evaluations per tick.
type FlatSiteSearch struct {
	score    ScoreFunc
	feasible FeasibleFunc

	lat, lon  float64 // current best candidate
	best      float64
	step      float64 // degrees
	minStep   float64
	tol       float64
	converged bool
}

// NewFlatSiteSearch seeds a search at the given origin with an initial step in
// degrees and a convergence tolerance on the score.
func NewFlatSiteSearch(score ScoreFunc, feasible FeasibleFunc, lat, lon, step, tol float64) *FlatSiteSearch {
	s := &FlatSiteSearch{
		score:    score,
		feasible: feasible,
		lat:      lat,
		lon:      lon,
		step:     step,
		minStep:  step / 1024,
		tol:      tol,
	}
	s.best = s.eval(lat, lon)
	return s
}

// NewTerrainFlatSiteSearch builds the standard landing-site search: unevenness
// scoring over the given terrain, constrained to maxDistance meters from the
// origin, with the initial step proportional to the vehicle footprint.
func NewTerrainFlatSiteSearch(terrain Terrain, body CelestialBody, lat, lon, footprint, maxDistance, tol float64) *FlatSiteSearch {
	score := func(la, lo float64) float64 {
		return Unevenness(terrain, body, la, lo, footprint)
	}
	feasible := func(la, lo float64) bool {
		return body.SurfaceDistance(lat, lon, la, lo) <= maxDistance
	}
	step := 2 * footprint / body.Radius * rad2deg
	return NewFlatSiteSearch(score, feasible, lat, lon, step, tol)
}

func (s *FlatSiteSearch) eval(lat, lon float64) float64 {
	if !s.feasible(lat, lon) {
		return math.Inf(1)
	}
	return s.score(lat, lon)
}

// Step advances the search by at most budget score evaluations and reports
// whether it is still scanning. False means Best holds the converged result.
func (s *FlatSiteSearch) Step(budget int) bool {
	for !s.converged && budget >= 4 {
		budget -= 4
		bestLat, bestLon, bestScore := s.lat, s.lon, s.best
		for _, d := range [][2]float64{{s.step, 0}, {-s.step, 0}, {0, s.step}, {0, -s.step}} {
			la, lo := s.lat+d[0], s.lon+d[1]
			if sc := s.eval(la, lo); sc < bestScore {
				bestLat, bestLon, bestScore = la, lo, sc
			}
		}
		improvement := 0.0
		if bestScore < s.best {
			improvement = s.best - bestScore
			s.lat, s.lon, s.best = bestLat, bestLon, bestScore
		}
		if improvement <= s.tol {
			s.step /= 2
			if s.step < s.minStep {
				s.converged = true
			}
		}
	}
	return !s.converged
}

// Converged returns whether the search has finished.
func (s *FlatSiteSearch) Converged() bool {
	return s.converged
}

// Best returns the flattest coordinate found so far and its score.
func (s *FlatSiteSearch) Best() (lat, lon, score float64) {
	return s.lat, s.lon, s.best
}
