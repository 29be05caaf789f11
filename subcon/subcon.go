// Package subcon implements the selection engine of spec §4.6: candidate
// construction (single-source and subnetting pairs), scoring, and winner
// selection via a priority queue with rigorous re-verification of the
// top-scoring candidate. The priority queue is stdlib container/heap —
// the one place in this module stdlib is the ecosystem's own answer,
// mirrored by every scheduler-shaped repo in the retrieved corpus (see
// DESIGN.md) — keyed by cheap score with a stable (source, stations)
// tie-break, per spec §5 "Ordering guarantees".
package subcon

import (
	"container/heap"
	"math"
	"sort"
	"time"

	"github.com/vievs/vlbisched/antenna"
	"github.com/vievs/vlbisched/astro"
	"github.com/vievs/vlbisched/diagnostics"
	"github.com/vievs/vlbisched/scan"
	"github.com/vievs/vlbisched/skycoverage"
	"github.com/vievs/vlbisched/source"
	"github.com/vievs/vlbisched/station"
	"github.com/vievs/vlbisched/timesys"
	"github.com/vievs/vlbisched/weight"
)

// Config is the subset of the §6 configuration surface subcon needs.
type Config struct {
	Subnetting               bool
	MinNumberOfStations      int
	SubnettingMinAngle       float64 // radians
	SubnettingMaxAngle       float64 // radians
	SubnettingTimeTolerance  time.Duration
	Weights                  weight.Factors
	MaxInfluenceDistance     float64
	MaxInfluenceTime         float64

	// Parallactic enables the parallactic-angle-coverage scoring bonus of
	// VieSchedpp's ParallacticAngleBlock. Nil disables it entirely.
	Parallactic *ParallacticMode
}

// ParallacticMode implements the parallactic-angle-coverage scoring bonus:
// prefer the candidate whose parallactic angle at a reference station
// differs maximally from the angles already observed there, bounded by a
// short rolling per-station history (original_source/Misc/
// ParallacticAngleBlock.{h,cpp}'s distanceScaling, standing in for its
// static "already observed angles" bookkeeping).
type ParallacticMode struct {
	DistanceScaling float64
	HistoryLimit    int

	history map[station.ID][]float64
}

// NewParallacticMode builds an empty ParallacticMode.
func NewParallacticMode(distanceScaling float64, historyLimit int) *ParallacticMode {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &ParallacticMode{DistanceScaling: distanceScaling, HistoryLimit: historyLimit, history: map[station.ID][]float64{}}
}

func circularDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

// bonus returns distanceScaling times the smallest circular distance
// between angle and any angle already recorded for st. An empty history
// saturates to the maximum bonus (π): there is nothing nearby to penalize
// against, mirroring skycoverage.Group's empty-window behavior.
func (p *ParallacticMode) bonus(st station.ID, angle float64) float64 {
	hist := p.history[st]
	if len(hist) == 0 {
		return p.DistanceScaling * math.Pi
	}
	min := math.Pi
	for _, h := range hist {
		if d := circularDistance(angle, h); d < min {
			min = d
		}
	}
	return p.DistanceScaling * min
}

// Record folds a committed scan's parallactic angle at st into its rolling
// history, called by the scheduler once a winner actually commits (subcon
// itself only scores candidates, it never knows which one wins until the
// scheduler says so).
func (p *ParallacticMode) Record(st station.ID, angle float64) {
	hist := append(p.history[st], angle)
	if len(hist) > p.HistoryLimit {
		hist = hist[len(hist)-p.HistoryLimit:]
	}
	p.history[st] = hist
}

// referenceStation picks the lowest-id station of a candidate as the
// parallactic-angle reference point, a deterministic stand-in for
// ParallacticAngleBlock::allowedStations' operator-configured station list.
func referenceStation(s *scan.Scan) (station.ID, bool) {
	if len(s.Stations) == 0 {
		return 0, false
	}
	ref := s.Stations[0]
	for _, id := range s.Stations[1:] {
		if id < ref {
			ref = id
		}
	}
	return ref, true
}

// parallacticAngleOf evaluates s's parallactic angle at its reference
// station, or false if the pointing never recorded an hour angle (e.g. a
// fillin scan's PointingVector built without CalcAzEl).
func parallacticAngleOf(env *Environment, s *scan.Scan) (station.ID, float64, bool) {
	ref, ok := referenceStation(s)
	if !ok {
		return 0, 0, false
	}
	pv := s.Pointing[ref]
	if !pv.HasHADec {
		return 0, 0, false
	}
	stn := env.Stations[ref]
	return ref, stn.ParallacticAngle(pv.HA, pv.Dec), true
}

// Environment bundles everything Build needs to read, all borrowed by
// reference per spec §9 ("Subcon holds only borrowed references / indices
// ... plus its own owned candidate Scans until a winner is chosen").
type Environment struct {
	Stations   map[station.ID]*station.Station
	Sources    map[source.ID]*source.Source
	SkyGroups  map[station.ID]*skycoverage.Group
	Tables     *astro.Tables
	System     timesys.System
	Sink       diagnostics.Sink
	ScanCtx    *scan.Context
}

// WinnerKind distinguishes the three outcomes of spec §4.6's
// Option<Winner> = Single(Scan) | Pair(Scan, Scan) | None.
type WinnerKind int

const (
	None WinnerKind = iota
	Single
	Pair
)

// Winner is the result of one Build call.
type Winner struct {
	Kind WinnerKind
	A, B *scan.Scan
}

// candidate is one queued scan or subnetting pair, with its cheap/rigorous
// score and an identity fingerprint used to detect the winner-selection
// fixed point.
type candidate struct {
	a, b     *scan.Scan // b is nil for a Single candidate
	score    float64
	rigorous bool
	index    int // heap.Interface bookkeeping
}

func (c *candidate) identity() string {
	id := scanIdentity(c.a)
	if c.b != nil {
		id += "|" + scanIdentity(c.b)
	}
	return id
}

func scanIdentity(s *scan.Scan) string {
	ids := append([]station.ID(nil), s.Stations...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := int(s.SourceID) * 1_000_000
	for _, id := range ids {
		out = out*31 + int(id)
	}
	return sortKey(out)
}

func sortKey(v int) string {
	// A cheap, deterministic stringification; collisions are astronomically
	// unlikely for any realistic station/source id range. Two candidates
	// with equal scores and colliding keys compare as equal in queue.Less,
	// so their relative order is whatever container/heap leaves.
	if v < 0 {
		v = -v
	}
	digits := [20]byte{}
	i := len(digits)
	if v == 0 {
		return "0"
	}
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}

// queue is a max-heap of candidates ordered by score, with a stable
// (source id, station ids) tie-break so identical scores always resolve
// the same way regardless of insertion order (spec §5).
type queue []*candidate

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].score != q[j].score {
		return q[i].score > q[j].score
	}
	return q[i].identity() < q[j].identity()
}
func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *queue) Push(x any) {
	c := x.(*candidate)
	c.index = len(*q)
	*q = append(*q, c)
}
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return c
}

// Build assembles the Subcon at time t and returns the winner, following
// spec §4.6 end to end: construction, subnetting expansion, pre-scoring,
// scoring, and rigorous-escalation winner selection.
func Build(env *Environment, cfg Config, t time.Time, network stationSet) (Winner, error) {
	minStations := cfg.MinNumberOfStations
	if minStations < 2 {
		minStations = 2
	}

	singles := buildSingleScans(env, cfg, t, minStations)
	if len(singles) == 0 && !cfg.Subnetting {
		return Winner{Kind: None}, nil
	}

	var pairs [][2]*scan.Scan
	if cfg.Subnetting {
		pairs = buildSubnettingPairs(env, cfg, t, minStations, singles)
	}
	if len(singles) == 0 && len(pairs) == 0 {
		return Winner{Kind: None}, nil
	}

	astas, asrcs := fairnessTerms(env, network, singles, pairs)
	minReq, maxReq := requiredTimeBounds(singles, pairs)

	for _, g := range env.SkyGroups {
		g.ResetCache()
	}

	q := &queue{}
	heap.Init(q)
	for _, s := range singles {
		c := &candidate{a: s}
		c.score = score(env, cfg, s, nil, astas, asrcs, minReq, maxReq)
		heap.Push(q, c)
	}
	for _, p := range pairs {
		c := &candidate{a: p[0], b: p[1]}
		c.score = score(env, cfg, p[0], p[1], astas, asrcs, minReq, maxReq)
		heap.Push(q, c)
	}

	return selectWinner(env, cfg, q, minStations, astas, asrcs, minReq, maxReq)
}

// stationSet is the minimal surface Build needs from network.Network,
// kept as an interface so subcon does not import network and create a
// cycle; scheduler supplies *network.Network, which satisfies this.
type stationSet interface {
	Stations() []station.ID
	MaxObservations() int
}

// buildSingleScans is spec §4.6 "Construction": every eligible source gets
// its maximal candidate built from every station that can see it.
func buildSingleScans(env *Environment, cfg Config, t time.Time, minStations int) []*scan.Scan {
	var out []*scan.Scan
	var ids []source.ID
	for id := range env.Sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var stIDs []station.ID
	for id := range env.Stations {
		stIDs = append(stIDs, id)
	}
	sort.Slice(stIDs, func(i, j int) bool { return stIDs[i] < stIDs[j] })

	nextID := 1
	for _, srcID := range ids {
		src := env.Sources[srcID]
		if !src.EligibleAt(t) {
			continue
		}
		srcp := src.Parameters()
		pointings := map[station.ID]antenna.PointingVector{}
		prevEnd := map[station.ID]time.Time{}
		for _, stID := range stIDs {
			stn := env.Stations[stID]
			p := stn.Parameters()
			if !p.Available || p.IgnoreSources[int(srcID)] || srcp.IgnoreStations[int(stID)] {
				continue
			}
			pv := stn.CalcAzEl(station.Simple, env.Tables, t, src.RA, src.Dec)
			if !stn.Kinematics.Visible(pv, math.Max(p.MinElevation, srcp.MinElevation)) {
				continue
			}
			pointings[stID] = pv
			prev := stn.Current.Time
			if prev.Before(t) {
				prev = t
			}
			prevEnd[stID] = prev
		}
		if len(pointings) < minStations {
			continue
		}
		if !hasRequiredStations(srcp.RequiredStations, pointings) {
			continue
		}
		s, ok := scan.New(scan.ID(nextID), src, pointings, prevEnd, minStations, scan.Single, env.ScanCtx)
		nextID++
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

// hasRequiredStations reports whether every station id named in
// required (spec §3's Source.required_stations) is present among a
// candidate's surviving pointings. An empty/nil required set imposes no
// constraint.
func hasRequiredStations(required map[int]bool, pointings map[station.ID]antenna.PointingVector) bool {
	for id, want := range required {
		if !want {
			continue
		}
		if _, ok := pointings[station.ID(id)]; !ok {
			return false
		}
	}
	return true
}

// buildSubnettingPairs is spec §4.6 "Subnetting expansion".
func buildSubnettingPairs(env *Environment, cfg Config, t time.Time, minStations int, singles []*scan.Scan) [][2]*scan.Scan {
	var pairs [][2]*scan.Scan
	nextID := 100000
	for i := 0; i < len(singles); i++ {
		for j := i + 1; j < len(singles); j++ {
			a, b := singles[i], singles[j]
			srcA, srcB := env.Sources[a.SourceID], env.Sources[b.SourceID]
			angle := astro.AngularDistance(srcA.Unit, srcB.Unit)
			if angle < cfg.SubnettingMinAngle || angle > cfg.SubnettingMaxAngle {
				continue
			}
			intersection, exclusiveA, exclusiveB := splitStations(a.Stations, b.Stations)
			k := len(intersection)
			for mask := 0; mask < (1 << uint(k)); mask++ {
				var toA, toB []station.ID
				for bit := 0; bit < k; bit++ {
					if mask&(1<<uint(bit)) != 0 {
						toA = append(toA, intersection[bit])
					} else {
						toB = append(toB, intersection[bit])
					}
				}
				stationsA := append(append([]station.ID(nil), exclusiveA...), toA...)
				stationsB := append(append([]station.ID(nil), exclusiveB...), toB...)
				if len(stationsA) < minStations || len(stationsB) < minStations {
					continue
				}
				scanA, okA := rebuild(env, srcA, a, stationsA, minStations, nextID)
				nextID++
				if !okA {
					continue
				}
				scanB, okB := rebuild(env, srcB, b, stationsB, minStations, nextID)
				nextID++
				if !okB {
					continue
				}
				diff := scanA.MaxEnd().Sub(scanB.MaxEnd())
				if diff < 0 {
					diff = -diff
				}
				if diff > cfg.SubnettingTimeTolerance {
					continue
				}
				pairs = append(pairs, [2]*scan.Scan{scanA, scanB})
			}
		}
	}
	return pairs
}

func splitStations(a, b []station.ID) (intersection, exclusiveA, exclusiveB []station.ID) {
	inB := map[station.ID]bool{}
	for _, id := range b {
		inB[id] = true
	}
	inA := map[station.ID]bool{}
	for _, id := range a {
		inA[id] = true
		if inB[id] {
			intersection = append(intersection, id)
		} else {
			exclusiveA = append(exclusiveA, id)
		}
	}
	for _, id := range b {
		if !inA[id] {
			exclusiveB = append(exclusiveB, id)
		}
	}
	sort.Slice(intersection, func(i, j int) bool { return intersection[i] < intersection[j] })
	return intersection, exclusiveA, exclusiveB
}

// rebuild reconstructs a scan restricted to the given station subset,
// reusing the original candidate's pointings and previous-end times.
func rebuild(env *Environment, src *source.Source, orig *scan.Scan, stations []station.ID, minStations int, id int) (*scan.Scan, bool) {
	pointings := map[station.ID]antenna.PointingVector{}
	prevEnd := map[station.ID]time.Time{}
	for _, st := range stations {
		pv, ok := orig.Pointing[st]
		if !ok {
			return nil, false
		}
		pointings[st] = pv
		prevEnd[st] = orig.Times.EndOfPreviousScan[st]
	}
	return scan.New(scan.ID(id), src, pointings, prevEnd, minStations, scan.Subnetting, env.ScanCtx)
}

// fairnessTerms computes astas[s]/asrcs[r] (spec §4.6 pre-scoring helpers).
func fairnessTerms(env *Environment, network stationSet, singles []*scan.Scan, pairs [][2]*scan.Scan) (map[station.ID]float64, map[source.ID]float64) {
	var total, count float64
	stationBaselines := map[station.ID]int{}
	for _, stID := range network.Stations() {
		stn := env.Stations[stID]
		n := stn.Stats.NumberOfObservations
		stationBaselines[stID] = n
		total += float64(n)
		count++
	}
	mean := 0.0
	if count > 0 {
		mean = total / count
	}
	astas := map[station.ID]float64{}
	for stID, n := range stationBaselines {
		behind := mean - float64(n)
		if behind < 0 {
			behind = 0
		}
		astas[stID] = behind
	}

	maxScans := 0
	for _, src := range env.Sources {
		if src.Stats.NumberOfScans > maxScans {
			maxScans = src.Stats.NumberOfScans
		}
	}
	asrcs := map[source.ID]float64{}
	for id, src := range env.Sources {
		if maxScans == 0 {
			asrcs[id] = 0
			continue
		}
		asrcs[id] = float64(maxScans-src.Stats.NumberOfScans) / float64(maxScans)
	}
	return astas, asrcs
}

// requiredTimeBounds is the min/max over every candidate's max-end-time
// (spec §4.6 pre-scoring helpers).
func requiredTimeBounds(singles []*scan.Scan, pairs [][2]*scan.Scan) (min, max time.Time) {
	update := func(t time.Time) {
		if min.IsZero() || t.Before(min) {
			min = t
		}
		if t.After(max) {
			max = t
		}
	}
	for _, s := range singles {
		update(s.MaxEnd())
	}
	for _, p := range pairs {
		update(p[0].MaxEnd())
		update(p[1].MaxEnd())
	}
	return min, max
}

// score implements spec §4.6's scoring table. b is nil for Single
// candidates; for Pair candidates the terms are combined across both arms.
func score(env *Environment, cfg Config, a, b *scan.Scan, astas map[station.ID]float64, asrcs map[source.ID]float64, minReq, maxReq time.Time) float64 {
	terms := combinedTerms(env, a)
	if b != nil {
		tb := combinedTerms(env, b)
		terms = weight.Terms{
			NumberOfObservations: terms.NumberOfObservations + tb.NumberOfObservations,
			AverageStations:      terms.AverageStations + tb.AverageStations,
			AverageSources:       terms.AverageSources + tb.AverageSources,
			Duration:             (terms.Duration + tb.Duration) / 2,
			SkyCoverage:          (terms.SkyCoverage + tb.SkyCoverage) / 2,
			LowElevation:         (terms.LowElevation + tb.LowElevation) / 2,
			IdleTime:             (terms.IdleTime + tb.IdleTime) / 2,
			Closures:             (terms.Closures + tb.Closures) / 2,
		}
	}
	maxObs := float64(env.ScanCtxMaxObservations())
	if maxObs > 0 {
		terms.NumberOfObservations /= maxObs
	}
	terms.AverageSources = termAverageSources(a, asrcs, maxObs, b, asrcs)
	terms.AverageStations = termAverageStations(a, b, astas)
	terms.Duration = termDuration(a, b, minReq, maxReq)
	total := cfg.Weights.Score(terms)
	if cfg.Parallactic != nil {
		total += parallacticBonus(env, cfg.Parallactic, a)
		if b != nil {
			total += parallacticBonus(env, cfg.Parallactic, b)
		}
	}
	total += focusBonus(env, a)
	if b != nil {
		total += focusBonus(env, b)
	}
	return total
}

func parallacticBonus(env *Environment, mode *ParallacticMode, s *scan.Scan) float64 {
	ref, angle, ok := parallacticAngleOf(env, s)
	if !ok {
		return 0
	}
	return mode.bonus(ref, angle)
}

// focusBonus implements the optional "try_to_focus" behavior of spec §3:
// once a source has been observed, bias subsequent candidate scoring
// toward repeating it for a limited number of additional scans.
func focusBonus(env *Environment, s *scan.Scan) float64 {
	src := env.Sources[s.SourceID]
	if src == nil {
		return 0
	}
	fb := src.Parameters().TryToFocus
	if fb == nil || !fb.FocusIfObserved || src.Stats.NumberOfScans == 0 {
		return 0
	}
	if fb.MaxFocusScans > 0 && src.Stats.NumberOfScans > fb.MaxFocusScans {
		return 0
	}
	return fb.BonusWeight
}

func (e *Environment) ScanCtxMaxObservations() int {
	k := len(e.Stations)
	return k * (k - 1) / 2
}

// combinedTerms folds a candidate scan's scoring terms, including the mean
// SkyCoverage score across its stations. Within one scan, the first station
// to touch a given coverage Group computes and caches the score (CalcScore);
// any other station sharing that same Group (a collocated twin antenna,
// spec §4.4) reads the cached value instead of recomputing it
// (CalcScoreSubcon), matching skycoverage.Group's documented write/read
// split.
func combinedTerms(env *Environment, s *scan.Scan) weight.Terms {
	var sky float64
	n := 0
	seen := map[*skycoverage.Group]bool{}
	for _, st := range s.Stations {
		g := env.SkyGroups[st]
		if g == nil {
			continue
		}
		at := env.System.ToSeconds(s.MaxEnd())
		if seen[g] {
			sky += g.CalcScoreSubcon(s.Pointing[st], at)
		} else {
			sky += g.CalcScore(s.Pointing[st], at)
			seen[g] = true
		}
		n++
	}
	if n > 0 {
		sky /= float64(n)
	}
	return weight.Terms{
		NumberOfObservations: float64(len(s.Observations)),
		SkyCoverage:          sky,
	}
}

func termAverageStations(a, b *scan.Scan, astas map[station.ID]float64) float64 {
	sum := stationFairnessSum(a, astas)
	if b != nil {
		sum += stationFairnessSum(b, astas)
	}
	return sum
}

func stationFairnessSum(s *scan.Scan, astas map[station.ID]float64) float64 {
	n := len(s.Stations)
	if n <= 1 {
		return 0
	}
	var sum float64
	pairCount := map[station.ID]int{}
	for _, o := range s.Observations {
		pairCount[o.Station1]++
		pairCount[o.Station2]++
	}
	for _, st := range s.Stations {
		sum += astas[st] * float64(pairCount[st]) / float64(n-1)
	}
	return sum
}

func termAverageSources(a *scan.Scan, asrcsA map[source.ID]float64, maxObs float64, b *scan.Scan, asrcsB map[source.ID]float64) float64 {
	if maxObs <= 0 {
		return 0
	}
	v := asrcsA[a.SourceID] * float64(len(a.Observations)) / maxObs
	if b != nil {
		v += asrcsB[b.SourceID] * float64(len(b.Observations)) / maxObs
	}
	return v
}

func termDuration(a, b *scan.Scan, minReq, maxReq time.Time) float64 {
	span := maxReq.Sub(minReq).Seconds()
	if span <= 0 {
		return 1
	}
	end := a.MaxEnd()
	if b != nil && b.MaxEnd().After(end) {
		end = b.MaxEnd()
	}
	v := 1 - end.Sub(minReq).Seconds()/span
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

// selectWinner runs the rigorous-escalation loop of spec §4.6: pop top,
// rigorously re-check, re-score, push back; stop when the top is unchanged
// between pops.
func selectWinner(env *Environment, cfg Config, q *queue, minStations int, astas map[station.ID]float64, asrcs map[source.ID]float64, minReq, maxReq time.Time) (Winner, error) {
	var lastIdentity string
	for q.Len() > 0 {
		top := heap.Pop(q).(*candidate)
		if top.rigorous && top.identity() == lastIdentity {
			if top.b != nil {
				return Winner{Kind: Pair, A: top.a, B: top.b}, nil
			}
			return Winner{Kind: Single, A: top.a}, nil
		}
		id := top.identity()
		a, okA := rigorousUpdate(env, top.a, minStations)
		if !okA {
			env.Sink.Infof("subcon: candidate for source %d dropped during rigorous update", top.a.SourceID)
			continue
		}
		top.a = a
		if top.b != nil {
			b, okB := rigorousUpdate(env, top.b, minStations)
			if !okB {
				continue
			}
			diff := a.MaxEnd().Sub(b.MaxEnd())
			if diff < 0 {
				diff = -diff
			}
			if diff > cfg.SubnettingTimeTolerance {
				continue
			}
			top.b = b
		}
		top.rigorous = true
		top.score = score(env, cfg, top.a, top.b, astas, asrcs, minReq, maxReq)
		lastIdentity = id
		heap.Push(q, top)
	}
	return Winner{Kind: None}, nil
}

// rigorousUpdate re-evaluates each station's pointing with the rigorous
// az/el model at that station's ScanEnd and replaces the candidate's
// pointing with the result. A station is removed when the result is NaN,
// is not visible, or jumps in azimuth by more than π/2 on two evaluations;
// the evaluation time stays the same across the loop's iterations, so at
// most one such jump is counted. end_of_slew and the other scan times are
// not recomputed.
func rigorousUpdate(env *Environment, s *scan.Scan, minStations int) (*scan.Scan, bool) {
	for _, st := range append([]station.ID(nil), s.Stations...) {
		stn := env.Stations[st]
		src := env.Sources[s.SourceID]
		prevAz := s.Pointing[st].Az
		crossings := 0
		var refined antenna.PointingVector
		end := s.Times.ScanEnd[st]
		for iter := 0; iter < 4; iter++ {
			refined = stn.CalcAzEl(station.Rigorous, env.Tables, end, src.RA, src.Dec)
			if math.Abs(refined.Az-prevAz) > math.Pi/2 {
				crossings++
				if crossings >= 2 {
					break
				}
			}
			prevAz = refined.Az
		}
		if crossings >= 2 || math.IsNaN(refined.Az) {
			removeStation(s, st)
			continue
		}
		if !stn.Kinematics.Visible(refined, math.Max(stn.Parameters().MinElevation, src.Parameters().MinElevation)) {
			removeStation(s, st)
			continue
		}
		s.Pointing[st] = refined
	}
	return s, s.Validate(minStations)
}

func removeStation(s *scan.Scan, st station.ID) {
	kept := s.Stations[:0]
	for _, id := range s.Stations {
		if id != st {
			kept = append(kept, id)
		}
	}
	s.Stations = kept
	delete(s.Pointing, st)
	keptObs := s.Observations[:0]
	for _, o := range s.Observations {
		if o.Station1 != st && o.Station2 != st {
			keptObs = append(keptObs, o)
		}
	}
	s.Observations = keptObs
}
