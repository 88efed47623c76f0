package landfall

import (
	"math"
	"time"
)

// bisectionStep is the time resolution of the clearance line search, in seconds.
const bisectionStep = 0.01

// obstacleWindows is how many equal sub-windows a full-path sweep bisects.
const obstacleWindows = 100

// clearanceAt returns the predicted altitude above terrain at a given time
// along the trajectory.
func clearanceAt(tr *Trajectory, terrain Terrain, dt time.Time) float64 {
	p := tr.PointAt(dt)
	return p.Alt - terrain.Altitude(p.Lat, p.Lon)
}

// WorstClearance bisects the given time window for the point of lowest ground
// clearance and returns offset minus that clearance: a positive result means
// the path dips within offset meters of the terrain. This is a local line
// search biased toward the deepest dip near the window midpoint, not a global
// minimum over the window; callers re-run it against a moving window.
func WorstClearance(tr *Trajectory, terrain Terrain, start, stop time.Time, offset float64) float64 {
	span := stop.Sub(start).Seconds()
	if span <= 0 {
		return offset - clearanceAt(tr, terrain, start)
	}
	mid := span / 2
	step := span / 2
	at := func(s float64) float64 {
		return clearanceAt(tr, terrain, start.Add(time.Duration(s*float64(time.Second))))
	}
	lowest := at(mid)
	for step >= bisectionStep {
		h := step / 2
		left, right := at(math.Max(0, mid-h)), at(math.Min(span, mid+h))
		if left < right {
			mid = math.Max(0, mid-h)
			if left < lowest {
				lowest = left
			}
		} else {
			mid = math.Min(span, mid+h)
			if right < lowest {
				lowest = right
			}
		}
		step = h
	}
	return offset - lowest
}

// ObstacleSearch is a resumable full-path sweep: the brake window is split
// into equal sub-windows, each bisected for its worst clearance, a budgeted
// few per tick so a multi-second terrain sweep never stalls a control tick.
// One session answers one "is there an obstacle ahead" query and is discarded
// once scanned.
type ObstacleSearch struct {
	tr      *Trajectory
	terrain Terrain
	start   time.Time
	width   time.Duration
	offset  float64

	next  int
	worst float64
}

// NewObstacleSearch prepares a sweep of the [start, stop] window.
func NewObstacleSearch(tr *Trajectory, terrain Terrain, start, stop time.Time, offset float64) *ObstacleSearch {
	if stop.Before(start) {
		start, stop = stop, start
	}
	return &ObstacleSearch{
		tr:      tr,
		terrain: terrain,
		start:   start,
		width:   stop.Sub(start) / obstacleWindows,
		offset:  offset,
		worst:   math.Inf(-1),
	}
}

// Step advances the sweep by at most budget sub-windows and reports whether
// searching still produces progress. False means Obstruction holds the final
// answer.
func (s *ObstacleSearch) Step(budget int) bool {
	for ; budget > 0 && s.next < obstacleWindows; budget-- {
		lo := s.start.Add(time.Duration(s.next) * s.width)
		if o := WorstClearance(s.tr, s.terrain, lo, lo.Add(s.width), s.offset); o > s.worst {
			s.worst = o
		}
		s.next++
	}
	return s.next < obstacleWindows
}

// Done returns whether the sweep is exhausted.
func (s *ObstacleSearch) Done() bool {
	return s.next >= obstacleWindows
}

// Obstruction returns the worst obstruction margin found so far. Positive
// means the path comes within the safety offset of terrain.
func (s *ObstacleSearch) Obstruction() float64 {
	if math.IsInf(s.worst, -1) {
		return 0
	}
	return s.worst
}
