// Package scan implements the Scan/ScanTimes/Observation entities and the
// construction/validation pipeline of spec §4.5. A Scan starts as an
// unaligned draft built from a set of station pointings and is walked
// through several ordered passes, each of which may drop stations or the
// whole scan; Validate reports whether the survivor still meets the
// minimum-station and minimum-observation bar spec §4.5 requires.
package scan

import (
	"math"
	"sort"
	"time"

	"github.com/vievs/vlbisched/antenna"
	"github.com/vievs/vlbisched/astro"
	"github.com/vievs/vlbisched/network"
	"github.com/vievs/vlbisched/source"
	"github.com/vievs/vlbisched/station"
)

// ID identifies a committed scan.
type ID int

// Type tags how a scan was produced (spec §4.6: "each half's type is
// tagged subnetting").
type Type int

const (
	Single Type = iota
	Subnetting
	Fillin
	Calibrator
)

// Observation is one station-pair baseline within a Scan (spec §3).
type Observation struct {
	Station1, Station2 station.ID
	Duration           time.Duration
	Band               string // the band that drove the required duration
	StartFlux          float64
}

// ScanTimes carries the per-station timeline of one scan (spec §3).
type ScanTimes struct {
	EndOfPreviousScan map[station.ID]time.Time
	EndOfFieldSystem  map[station.ID]time.Time
	EndOfSlew         map[station.ID]time.Time
	EndOfIdle         map[station.ID]time.Time // == scan start, after shared preob alignment
	ScanEnd           map[station.ID]time.Time
}

func newScanTimes() ScanTimes {
	return ScanTimes{
		EndOfPreviousScan: map[station.ID]time.Time{},
		EndOfFieldSystem:  map[station.ID]time.Time{},
		EndOfSlew:         map[station.ID]time.Time{},
		EndOfIdle:         map[station.ID]time.Time{},
		ScanEnd:           map[station.ID]time.Time{},
	}
}

// Scan is the spec §3 entity under construction or already committed.
type Scan struct {
	ID       ID
	SourceID source.ID
	Type     Type

	Stations []station.ID
	Pointing map[station.ID]antenna.PointingVector

	Times        ScanTimes
	Observations []Observation

	FixedDuration bool
}

// MaxEnd returns the latest per-station scan end, the "max-end-time" spec
// §4.6's subnetting/pre-scoring logic compares across candidates.
func (s *Scan) MaxEnd() time.Time {
	var max time.Time
	for _, t := range s.Times.ScanEnd {
		if t.After(max) {
			max = t
		}
	}
	return max
}

// Context bundles the shared read-only state the construction pipeline
// needs: the owning tables, borrowed by index per spec §9 ("Subcon holds
// only borrowed references ... into Scheduler's owned tables").
type Context struct {
	Stations   map[station.ID]*station.Station
	Sources    map[source.ID]*source.Source
	Tables     *astro.Tables
	Efficiency float64            // recording efficiency, 0 < eff <= 1
	RecordRate map[string]float64 // band -> recording rate (bits/s)
	Network    *network.Network   // optional: global ignore/require baseline sets
}

// requiredSNR returns the strictest (highest) min_snr across source and
// both stations for a band, spec §4.5 step 4.
func requiredSNR(band string, src *source.Source, st1, st2 *station.Station) float64 {
	req := src.Parameters().MinSNR[band]
	if v, ok := st1.Parameters().MinSNR[band]; ok && v > req {
		req = v
	}
	if v, ok := st2.Parameters().MinSNR[band]; ok && v > req {
		req = v
	}
	return req
}

// New builds a draft scan from a candidate pointing set and walks it
// through the full spec §4.5 pipeline. minStations is the floor below
// which the scan is infeasible; prevEnd supplies each station's
// end-of-previous-observing instant.
func New(id ID, src *source.Source, candidates map[station.ID]antenna.PointingVector, prevEnd map[station.ID]time.Time, minStations int, typ Type, ctx *Context) (*Scan, bool) {
	s := &Scan{
		ID:       id,
		SourceID: src.ID,
		Type:     typ,
		Pointing: map[station.ID]antenna.PointingVector{},
		Times:    newScanTimes(),
	}
	for st, pv := range candidates {
		s.Stations = append(s.Stations, st)
		s.Pointing[st] = pv
		s.Times.EndOfPreviousScan[st] = prevEnd[st]
	}
	sort.Slice(s.Stations, func(i, j int) bool { return s.Stations[i] < s.Stations[j] })

	if !s.earliestStartPass(ctx, src, minStations) {
		return s, false
	}
	if !s.idleTimeCapPass(ctx, minStations) {
		return s, false
	}
	if !s.sunDistancePass(ctx, src) {
		return s, false
	}
	if !s.baselineConstructionPass(ctx, minStations) {
		return s, false
	}
	if src.Parameters().FixedScanDuration > 0 {
		s.applyFixedDuration(src.Parameters().FixedScanDuration)
	} else {
		if !s.perBaselineDurationPass(ctx, src) {
			return s, false
		}
		if !s.perStationDurationPass(ctx, src, minStations) {
			return s, false
		}
	}
	return s, s.Validate(minStations)
}

// NewFillin builds a short single-station fillin scan (spec §4.7 step 6:
// "a reduced §4.5 pipeline"): only the earliest-start and idle-time-cap
// passes apply, and a fixed observing duration is used directly since a
// one-station fillin has no baseline to size against an SNR target.
func NewFillin(id ID, src *source.Source, st station.ID, pv antenna.PointingVector, prevEnd time.Time, duration time.Duration, ctx *Context) (*Scan, bool) {
	s := &Scan{
		ID:       id,
		SourceID: src.ID,
		Type:     Fillin,
		Stations: []station.ID{st},
		Pointing: map[station.ID]antenna.PointingVector{st: pv},
		Times:    newScanTimes(),
	}
	s.Times.EndOfPreviousScan[st] = prevEnd
	if !s.earliestStartPass(ctx, src, 1) {
		return s, false
	}
	if !s.idleTimeCapPass(ctx, 1) {
		return s, false
	}
	s.applyFixedDuration(duration)
	return s, len(s.Stations) == 1
}

// dropStation removes st from every bookkeeping structure of the
// in-progress scan.
func (s *Scan) dropStation(st station.ID) {
	for i, id := range s.Stations {
		if id == st {
			s.Stations = append(s.Stations[:i], s.Stations[i+1:]...)
			break
		}
	}
	delete(s.Pointing, st)
	delete(s.Times.EndOfPreviousScan, st)
	delete(s.Times.EndOfFieldSystem, st)
	delete(s.Times.EndOfSlew, st)
	delete(s.Times.EndOfIdle, st)
	delete(s.Times.ScanEnd, st)
	kept := s.Observations[:0]
	for _, o := range s.Observations {
		if o.Station1 != st && o.Station2 != st {
			kept = append(kept, o)
		}
	}
	s.Observations = kept
}

// earliestStartPass is spec §4.5 step 1.
func (s *Scan) earliestStartPass(ctx *Context, src *source.Source, minStations int) bool {
	srcp := src.Parameters()
	for _, st := range append([]station.ID(nil), s.Stations...) {
		stn := ctx.Stations[st]
		stnp := stn.Parameters()
		if stnp.MaxNumberOfScans > 0 && stn.Stats.NumberOfScans >= stnp.MaxNumberOfScans {
			s.dropStation(st)
			continue
		}
		prev := s.Times.EndOfPreviousScan[st]
		fsEnd := prev.Add(stn.Wait.FieldSystem)
		s.Times.EndOfFieldSystem[st] = fsEnd

		target := s.Pointing[st]
		current := antenna.PointingVector{Az: stn.Current.Az, El: stn.Current.El}
		slew, err := stn.Kinematics.SlewTime(current, target)
		if err != nil || slew > stnp.MaxSlewTime {
			s.dropStation(st)
			continue
		}
		dist, err := stn.Kinematics.SlewDistance(current, target)
		minDist := math.Max(stnp.MinSlewDistance, srcp.MinSlewDistance)
		maxDist := math.Min(stnp.MaxSlewDistance, srcp.MaxSlewDistance)
		if err != nil || dist < minDist || dist > maxDist {
			s.dropStation(st)
			continue
		}
		s.Times.EndOfSlew[st] = fsEnd.Add(time.Duration(slew * float64(time.Second)))
	}
	return len(s.Stations) >= minStations
}

// idleTimeCapPass is spec §4.5 step 2: align every surviving station to
// the latest end-of-slew plus shared preob, dropping stations whose
// induced idle exceeds their max_wait, repeating until stable.
func (s *Scan) idleTimeCapPass(ctx *Context, minStations int) bool {
	for {
		if len(s.Stations) == 0 {
			return false
		}
		var latest time.Time
		for _, st := range s.Stations {
			if t := s.Times.EndOfSlew[st]; t.After(latest) {
				latest = t
			}
		}
		dropped := false
		for _, st := range append([]station.ID(nil), s.Stations...) {
			stn := ctx.Stations[st]
			idle := latest.Sub(s.Times.EndOfSlew[st])
			if float64(idle)/float64(time.Second) > stn.Parameters().MaxWait {
				s.dropStation(st)
				dropped = true
			}
		}
		if dropped {
			continue
		}
		for _, st := range s.Stations {
			s.Times.EndOfIdle[st] = latest.Add(ctx.Stations[st].Wait.Preob)
		}
		return len(s.Stations) >= minStations
	}
}

// sunDistancePass implements spec §4.3's sun_distance constraint, evaluated
// once per candidate at its earliest observing start: sun_distance is a
// function of source and time only, so a source too close to the Sun is
// infeasible for every participating station at once, not station by
// station.
func (s *Scan) sunDistancePass(ctx *Context, src *source.Source) bool {
	min := src.Parameters().MinSunDistance
	if min <= 0 || ctx.Tables == nil {
		return true
	}
	return src.SunDistance(s.scanStart(), ctx.Tables) >= min
}

// baselineConstructionPass is spec §4.5 step 3.
func (s *Scan) baselineConstructionPass(ctx *Context, minStations int) bool {
	src := ctx.Sources[s.SourceID]
	used := map[station.ID]bool{}
	s.Observations = nil
	for i := 0; i < len(s.Stations); i++ {
		for j := i + 1; j < len(s.Stations); j++ {
			a, b := s.Stations[i], s.Stations[j]
			if ctx.Network != nil && ctx.Network.IsIgnored(a, b) {
				continue
			}
			if isIgnoredBaseline(src, ctx.Stations[a].Parameters(), ctx.Stations[b].Parameters(), a, b) {
				continue
			}
			s.Observations = append(s.Observations, Observation{Station1: a, Station2: b})
			used[a], used[b] = true, true
		}
	}
	for _, st := range append([]station.ID(nil), s.Stations...) {
		if !used[st] {
			s.dropStation(st)
		}
	}
	return len(s.Stations) >= minStations
}

func isIgnoredBaseline(src *source.Source, p1, p2 station.Parameters, a, b station.ID) bool {
	key := [2]int{int(a), int(b)}
	if a > b {
		key = [2]int{int(b), int(a)}
	}
	if src.Parameters().IgnoreBaselines[key] {
		return true
	}
	if p1.IgnoreBaselines[key] || p2.IgnoreBaselines[key] {
		return true
	}
	return false
}

// perBaselineDurationPass is spec §4.5 step 4.
func (s *Scan) perBaselineDurationPass(ctx *Context, src *source.Source) bool {
	gmst := astroGMST(ctx, s.scanStart())
	kept := s.Observations[:0]
	for _, o := range s.Observations {
		st1, st2 := ctx.Stations[o.Station1], ctx.Stations[o.Station2]
		baselineXYZ := st1.PositionXYZ.Sub(st2.PositionXYZ)

		bestDur := time.Duration(-1)
		bestBand := ""
		for band, rate := range ctx.RecordRate {
			flux := src.ObservedFlux(band, gmst, baselineXYZ)
			req := requiredSNR(band, src, st1, st2)
			if req <= 0 || flux <= 0 || ctx.Efficiency <= 0 || rate <= 0 {
				continue
			}
			sefd1 := sefdAt(st1, o.Station1, s)
			sefd2 := sefdAt(st2, o.Station2, s)
			// SNR = eff*S/sqrt(sefd1*sefd2) * sqrt(rate*(tau - midob))
			k := req * math.Sqrt(sefd1*sefd2) / (ctx.Efficiency * flux)
			extra := k * k / rate
			tau := st1.Wait.Midob.Seconds() + extra
			dur := time.Duration(tau * float64(time.Second))
			if dur > bestDur {
				bestDur, bestBand = dur, band
			}
		}
		required := ctx.Network != nil && ctx.Network.IsRequired(o.Station1, o.Station2)
		if bestDur < 0 {
			continue // no band produced a usable duration: drop baseline
		}
		// Take the maximum over bands, then clamp once; if clamping at the
		// top is impossible, the whole baseline is dropped, not just the
		// offending band (spec §4.5 step 4) — unless the baseline was
		// declared required via network.Network.Require, in which case it
		// is clamped to MaxScan instead of dropped.
		if lo := time.Duration(src.Parameters().MinScan * float64(time.Second)); bestDur < lo {
			bestDur = lo
		}
		if maxScan := src.Parameters().MaxScan; !math.IsInf(maxScan, 1) {
			hi := time.Duration(maxScan * float64(time.Second))
			if bestDur > hi {
				if !required {
					continue // clamping at the top impossible: drop the baseline
				}
				bestDur = hi
			}
		}
		o.Duration = bestDur
		o.Band = bestBand
		kept = append(kept, o)
	}
	s.Observations = kept
	return len(s.Observations) > 0
}

func sefdAt(st *station.Station, id station.ID, s *Scan) float64 {
	pv := s.Pointing[id]
	var sefd float64
	for _, m := range st.SEFD {
		v := m.At(pv.El)
		if v > sefd {
			sefd = v
		}
	}
	if sefd <= 0 {
		sefd = 1
	}
	return sefd
}

func (s *Scan) scanStart() time.Time {
	var latest time.Time
	for _, t := range s.Times.EndOfIdle {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}

func astroGMST(ctx *Context, at time.Time) float64 {
	if ctx.Tables == nil {
		return 0
	}
	return ctx.Tables.GMST(at)
}

// perStationDurationPass is spec §4.5 step 5: each station's duration is
// the max baseline duration it participates in; if that exceeds max_scan,
// drop the most-involved station (ties by highest SEFD max, then latest
// slew end).
func (s *Scan) perStationDurationPass(ctx *Context, src *source.Source, minStations int) bool {
	for {
		durByStation := map[station.ID]time.Duration{}
		countByStation := map[station.ID]int{}
		for _, o := range s.Observations {
			if o.Duration > durByStation[o.Station1] {
				durByStation[o.Station1] = o.Duration
			}
			if o.Duration > durByStation[o.Station2] {
				durByStation[o.Station2] = o.Duration
			}
			countByStation[o.Station1]++
			countByStation[o.Station2]++
		}
		var over []station.ID
		for _, st := range s.Stations {
			stn := ctx.Stations[st]
			maxScan := math.Min(stn.Parameters().MaxScan, src.Parameters().MaxScan)
			if float64(durByStation[st])/float64(time.Second) > maxScan {
				over = append(over, st)
			}
			s.Times.ScanEnd[st] = s.scanStart().Add(durByStation[st])
		}
		if len(over) == 0 {
			return len(s.Stations) >= minStations && len(s.Observations) > 0
		}
		worst := over[0]
		for _, st := range over[1:] {
			if countByStation[st] > countByStation[worst] {
				worst = st
				continue
			}
			if countByStation[st] == countByStation[worst] {
				if maxSEFD(ctx.Stations[st]) > maxSEFD(ctx.Stations[worst]) {
					worst = st
				} else if maxSEFD(ctx.Stations[st]) == maxSEFD(ctx.Stations[worst]) &&
					s.Times.EndOfSlew[st].After(s.Times.EndOfSlew[worst]) {
					worst = st
				}
			}
		}
		s.dropStation(worst)
		if len(s.Stations) < minStations {
			return false
		}
		if !s.baselineConstructionPass(ctx, minStations) || !s.perBaselineDurationPass(ctx, src) {
			return false
		}
	}
}

func maxSEFD(st *station.Station) float64 {
	max := 0.0
	for _, m := range st.SEFD {
		if m.Base > max {
			max = m.Base
		}
	}
	return max
}

// applyFixedDuration is spec §4.5 step 6: bypass steps 4-5 and apply the
// source's fixed duration unconditionally to every station/observation.
func (s *Scan) applyFixedDuration(d time.Duration) {
	s.FixedDuration = true
	for i := range s.Observations {
		s.Observations[i].Duration = d
	}
	start := s.scanStart()
	for _, st := range s.Stations {
		s.Times.ScanEnd[st] = start.Add(d)
	}
}

// Validate reports whether the scan still meets spec §4.5's pass bar: at
// least min_stations and at least one observation.
func (s *Scan) Validate(minStations int) bool {
	return len(s.Stations) >= minStations && len(s.Observations) > 0
}
