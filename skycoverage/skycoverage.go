// Package skycoverage implements spec §4.4: a time-bounded window of
// (station, pointing, time) observations per station, scored so Subcon can
// prefer candidates that spread pointings across the sky instead of
// repeatedly revisiting the same patch. Grounded on station's Event-cursor
// style of "advance and drop what fell outside the window" bookkeeping.
package skycoverage

import (
	"math"

	"github.com/vievs/vlbisched/antenna"
)

// Entry is one past (pointing, time) observation recorded for a station.
type Entry struct {
	Pointing antenna.PointingVector
	Time     float64 // seconds-since-session-start
}

// Group maintains the sliding window of recent pointings for one station,
// or for collocated stations that share one Group (spec §4.4:
// "time-bounded window of (station_id, pointing, time) tuples").
type Group struct {
	StationID    int
	MaxInfluenceDistance float64 // radians
	MaxInfluenceTime     float64 // seconds

	entries []Entry

	// cache holds the first score computed for a given pointing during one
	// Subcon scoring pass, keyed by a coarse quantization of (az, el); read
	// by CalcScoreSubcon, written by CalcScore, so twin antennas scoring
	// the same patch within one subnetting arm don't double-count (spec
	// §4.4 rationale).
	cache map[cacheKey]float64
}

type cacheKey struct {
	az, el int64 // quantized to ~0.001 rad
}

const quantStep = 0.001

func quantize(az, el float64) cacheKey {
	return cacheKey{int64(math.Round(az / quantStep)), int64(math.Round(el / quantStep))}
}

// NewGroup builds an empty Group keyed by stationID; other stations may
// share it.
func NewGroup(stationID int, maxInfluenceDistance, maxInfluenceTime float64) *Group {
	return &Group{
		StationID:            stationID,
		MaxInfluenceDistance: maxInfluenceDistance,
		MaxInfluenceTime:     maxInfluenceTime,
		cache:                map[cacheKey]float64{},
	}
}

// ResetCache clears the per-pointing cache; called once per Subcon scoring
// pass before any CalcScore/CalcScoreSubcon calls, since the cache's
// lifetime is "one scoring pass", not the group's lifetime.
func (g *Group) ResetCache() {
	for k := range g.cache {
		delete(g.cache, k)
	}
}

// Update records a newly committed pointing and drops entries that have
// aged out of MaxInfluenceTime, keeping the window bounded.
func (g *Group) Update(pv antenna.PointingVector, at float64) {
	g.entries = append(g.entries, Entry{Pointing: pv, Time: at})
	cutoff := at - g.MaxInfluenceTime
	kept := g.entries[:0]
	for _, e := range g.entries {
		if e.Time >= cutoff {
			kept = append(kept, e)
		}
	}
	g.entries = kept
}

// fDist is the monotone-increasing distance term of spec §4.4: 0 when
// coincident, 1 when >= MaxInfluenceDistance.
func fDist(distance, maxInfluenceDistance float64) float64 {
	if maxInfluenceDistance <= 0 {
		return 1
	}
	if distance >= maxInfluenceDistance {
		return 1
	}
	return distance / maxInfluenceDistance
}

// gTime is the monotone-increasing time term of spec §4.4: 0 when
// simultaneous, 1 when >= MaxInfluenceTime.
func gTime(age, maxInfluenceTime float64) float64 {
	if maxInfluenceTime <= 0 {
		return 1
	}
	if age >= maxInfluenceTime {
		return 1
	}
	return age / maxInfluenceTime
}

// nearest returns the smallest angular distance and smallest age among the
// window's entries relative to pv/at. If the window is empty, both terms
// saturate to 1 (no nearby history to penalize against).
func (g *Group) nearest(pv antenna.PointingVector, at float64) (distance, age float64, any bool) {
	distance, age = math.Inf(1), math.Inf(1)
	for _, e := range g.entries {
		d := angularSeparation(pv, e.Pointing)
		if d < distance {
			distance = d
		}
		a := at - e.Time
		if a < age {
			age = a
		}
		any = true
	}
	return distance, age, any
}

// angularSeparation approximates great-circle separation between two
// horizontal-coordinate pointings via the standard az/el law of cosines.
func angularSeparation(a, b antenna.PointingVector) float64 {
	cosd := math.Sin(a.El)*math.Sin(b.El) + math.Cos(a.El)*math.Cos(b.El)*math.Cos(a.Az-b.Az)
	if cosd > 1 {
		cosd = 1
	} else if cosd < -1 {
		cosd = -1
	}
	return math.Acos(cosd)
}

// CalcScore computes the score for a candidate pointing and writes it into
// the per-pointing cache (spec §4.4: "the first writes into a per-pointing
// cache").
func (g *Group) CalcScore(pv antenna.PointingVector, at float64) float64 {
	score := g.rawScore(pv, at)
	g.cache[quantize(pv.Az, pv.El)] = score
	return score
}

// CalcScoreSubcon reads the cached score for pv if present (computed
// earlier in the same scoring pass by CalcScore for a twin antenna sharing
// the pointing), falling back to a fresh computation otherwise. This is
// the "reads it" half of spec §4.4's calc_score/calc_score_subcon split.
func (g *Group) CalcScoreSubcon(pv antenna.PointingVector, at float64) float64 {
	if s, ok := g.cache[quantize(pv.Az, pv.El)]; ok {
		return s
	}
	return g.rawScore(pv, at)
}

func (g *Group) rawScore(pv antenna.PointingVector, at float64) float64 {
	distance, age, any := g.nearest(pv, at)
	if !any {
		return 1
	}
	return fDist(distance, g.MaxInfluenceDistance) * gTime(age, g.MaxInfluenceTime)
}
