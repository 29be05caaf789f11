// Package scheduler implements the outer loop of spec §4.7: it owns every
// Station, Source, Scan and the Network, drives decision points, applies
// parameter-timeline events, restricts eligibility under an optional scan
// sequence cadence, builds and commits a Subcon winner, and optionally
// inserts fillin and tagalong scans. Grounded on busoc/assist's Assist
// struct, which is the teacher's analogous "owns everything, drives a
// loop over time, emits a result list" aggregate (assist.go/schedule.go).
package scheduler

import (
	"sort"
	"time"

	"github.com/vievs/vlbisched/antenna"
	"github.com/vievs/vlbisched/astro"
	"github.com/vievs/vlbisched/diagnostics"
	"github.com/vievs/vlbisched/network"
	"github.com/vievs/vlbisched/scan"
	"github.com/vievs/vlbisched/skycoverage"
	"github.com/vievs/vlbisched/source"
	"github.com/vievs/vlbisched/station"
	"github.com/vievs/vlbisched/subcon"
	"github.com/vievs/vlbisched/timesys"
)

// Sequence is the optional custom cadence of spec §6 ("scan_sequence:
// {cadence, targets[mod]→[source_id]}").
type Sequence struct {
	Cadence int
	Targets map[int][]source.ID
}

// HighImpact is a precomputed window spec §4.7 step 4 can preempt the
// current winner for, in favor of a specific source.
type HighImpact struct {
	Start, End time.Time
	SourceID   source.ID
}

// CalibratorBlock is the supplemented calibrator-block mode: VieSchedpp
// periodically inserts a block of high-SNR fringe-finder scans on a fixed
// cadence (original_source's ParallacticAngleBlock-adjacent calibrator
// cadence). It reuses the same cadence-restriction shape ScanSequence
// already gives step 2, rather than a parallel mechanism.
type CalibratorBlock struct {
	Cadence   int
	SourceIDs []source.ID
}

// active reports whether the block fires at the given selection index.
func (c *CalibratorBlock) active(selectionIndex int) bool {
	return c != nil && c.Cadence > 0 && selectionIndex%c.Cadence == 0
}

// Scheduler is the spec §3/§9 aggregate: sole owner of every Station,
// Source, Scan, and the Network (spec §9: "Scheduler exclusively owns the
// Vec<Station>, Vec<Source>, Vec<Scan> and Network").
type Scheduler struct {
	System    timesys.System
	Network   *network.Network
	Stations  map[station.ID]*station.Station
	Sources   map[source.ID]*source.Source
	SkyGroups map[station.ID]*skycoverage.Group
	Tables    *astro.Tables
	Sink      diagnostics.Sink

	Config  subcon.Config
	ScanCtx *scan.Context

	Sequence   *Sequence
	HighImpact []HighImpact
	Calibrator *CalibratorBlock

	FillinDuringSelection bool
	FillinAPosteriori     bool

	Scans []*scan.Scan

	nextScanID     int
	selectionIndex int
}

// New builds a Scheduler ready to Run. SkyGroups is allocated one Group per
// distinct station.Station.CoverageGroup (spec §4.4: "groups stations that
// share a coverage account, e.g. collocated twin antennas"), not one per
// station id, so twin antennas sharing a pad genuinely share a cache and
// CalcScore's shared-cache branch is reachable.
func New(system timesys.System, net *network.Network, stations map[station.ID]*station.Station, sources map[source.ID]*source.Source, tables *astro.Tables, sink diagnostics.Sink, cfg subcon.Config, scanCtx *scan.Context) *Scheduler {
	groups := map[string]*skycoverage.Group{}
	sky := map[station.ID]*skycoverage.Group{}
	for id, st := range stations {
		key := st.CoverageGroup
		if key == "" {
			key = st.Name
		}
		g, ok := groups[key]
		if !ok {
			g = skycoverage.NewGroup(int(id), cfg.MaxInfluenceDistance, cfg.MaxInfluenceTime)
			groups[key] = g
		}
		sky[id] = g
	}
	return &Scheduler{
		System:     system,
		Network:    net,
		Stations:   stations,
		Sources:    sources,
		SkyGroups:  sky,
		Tables:     tables,
		Sink:       sink,
		Config:     cfg,
		ScanCtx:    scanCtx,
		nextScanID: 1,
	}
}

// currentTime is spec §4.7's "current time": the minimum over stations of
// end_of_previous_observing, clamped to the session window.
func (s *Scheduler) currentTime() time.Time {
	t := s.System.End
	any := false
	for _, stn := range s.Stations {
		c := stn.Current.Time
		if c.IsZero() {
			c = s.System.Start
		}
		if !any || c.Before(t) {
			t, any = c, true
		}
	}
	if !any || t.Before(s.System.Start) {
		t = s.System.Start
	}
	return t
}

// Run drives the outer loop until termination (spec §4.7): every
// candidate Subcon is empty, or the earliest next-commitment time exceeds
// session end.
func (s *Scheduler) Run() ([]*scan.Scan, error) {
	for {
		t := s.currentTime()
		if !t.Before(s.System.End) {
			break
		}

		s.applyEvents(t)

		calibrating := false
		restrict := s.applyCalibratorBlock()
		if restrict != nil {
			calibrating = true
		} else {
			restrict = s.applyScanSequence()
		}
		restoreSources := s.restrictSources(restrict)

		env := s.environment()
		win, err := subcon.Build(env, s.Config, t, s.Network)
		restoreSources()
		if err != nil {
			return s.Scans, err
		}

		if winPre, ok := s.applyHighImpact(t, win, env); ok {
			win = winPre
		}

		if calibrating {
			tagCalibrator(win)
		}

		if win.Kind == subcon.None {
			next := s.earliestEventBoundary(t)
			if next.IsZero() || !next.After(t) {
				s.Sink.Infof("scheduler: empty subcon at %s, no further events, terminating", t)
				break
			}
			s.Sink.Infof("scheduler: empty subcon at %s, advancing to %s", t, next)
			s.advanceIdleStationsTo(next)
			continue
		}

		s.commit(win)
		s.selectionIndex++

		if s.FillinDuringSelection {
			s.fillinPass(t)
		}
	}

	if s.FillinAPosteriori {
		s.aposterioriFillin()
	}

	sort.Slice(s.Scans, func(i, j int) bool { return s.Scans[i].MaxEnd().Before(s.Scans[j].MaxEnd()) })
	return s.Scans, nil
}

// applyEvents is spec §4.7 step 1: apply every parameter event whose time
// has arrived, for every station and source.
func (s *Scheduler) applyEvents(t time.Time) (hardBreak bool) {
	for _, stn := range s.Stations {
		if stn.CheckForNewEvent(t) {
			hardBreak = true
		}
	}
	for _, src := range s.Sources {
		if src.CheckForNewEvent(t) {
			hardBreak = true
		}
	}
	return hardBreak
}

// applyScanSequence is spec §4.7 step 2: if the cadence is active and the
// current selection index matches a configured target, restrict eligible
// sources to the target set. Returns nil if no restriction applies.
func (s *Scheduler) applyScanSequence() map[source.ID]bool {
	if s.Sequence == nil || s.Sequence.Cadence <= 0 {
		return nil
	}
	mod := s.selectionIndex % s.Sequence.Cadence
	targets, ok := s.Sequence.Targets[mod]
	if !ok || len(targets) == 0 {
		return nil
	}
	anyEligible := false
	for _, id := range targets {
		if src, ok := s.Sources[id]; ok && src.EligibleAt(s.currentTime()) {
			anyEligible = true
		}
	}
	if !anyEligible {
		s.Sink.Infof("scheduler: scan sequence target not eligible at tick %d, skipping restriction", s.selectionIndex)
		return nil
	}
	out := map[source.ID]bool{}
	for _, id := range targets {
		out[id] = true
	}
	return out
}

// applyCalibratorBlock is the CalibratorBlock half of spec §4.7 step 2: on
// its own fixed cadence, restrict the decision point to the configured
// calibrator source set, the same restriction shape applyScanSequence uses
// for its own cadence targets.
func (s *Scheduler) applyCalibratorBlock() map[source.ID]bool {
	if !s.Calibrator.active(s.selectionIndex) {
		return nil
	}
	anyEligible := false
	for _, id := range s.Calibrator.SourceIDs {
		if src, ok := s.Sources[id]; ok && src.EligibleAt(s.currentTime()) {
			anyEligible = true
		}
	}
	if !anyEligible {
		return nil
	}
	out := map[source.ID]bool{}
	for _, id := range s.Calibrator.SourceIDs {
		out[id] = true
	}
	return out
}

// tagCalibrator marks every scan in win as a calibrator scan, so the
// committed sequence records which scans came from the calibrator block
// rather than ordinary source selection.
func tagCalibrator(win subcon.Winner) {
	if win.A != nil {
		win.A.Type = scan.Calibrator
	}
	if win.B != nil {
		win.B.Type = scan.Calibrator
	}
}

// restrictSources temporarily marks every source outside targets
// unavailable, returning a restore function.
func (s *Scheduler) restrictSources(targets map[source.ID]bool) func() {
	if targets == nil {
		return func() {}
	}
	type saved struct {
		id  source.ID
		was bool
	}
	var changed []saved
	for id, src := range s.Sources {
		if targets[id] {
			continue
		}
		if src.Parameters().Available {
			changed = append(changed, saved{id, true})
			src.SetAvailable(false)
		}
	}
	return func() {
		for _, c := range changed {
			s.Sources[c.id].SetAvailable(c.was)
		}
	}
}

func (s *Scheduler) environment() *subcon.Environment {
	return &subcon.Environment{
		Stations:  s.Stations,
		Sources:   s.Sources,
		SkyGroups: s.SkyGroups,
		Tables:    s.Tables,
		System:    s.System,
		Sink:      s.Sink,
		ScanCtx:   s.ScanCtx,
	}
}

// overlaps reports whether two [start, end) windows share any instant,
// adapted from busoc/assist/periods.go's Period.Overlaps.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// SetHighImpact installs the scheduler's precomputed high-impact windows,
// logging (never rejecting) any pair that overlaps: spec §4.7 step 4 does
// not forbid overlapping windows, but a silent overlap is worth a warning
// since only the first matching window in iteration order ever preempts.
func (s *Scheduler) SetHighImpact(windows []HighImpact) {
	s.HighImpact = windows
	if s.Sink == nil {
		return
	}
	for i := range windows {
		for j := i + 1; j < len(windows); j++ {
			if overlaps(windows[i].Start, windows[i].End, windows[j].Start, windows[j].End) {
				s.Sink.Warnf("high-impact windows %d and %d overlap", i, j)
			}
		}
	}
}

// applyHighImpact is spec §4.7 step 4: if a precomputed high-impact window
// opens within the upcoming decision, preempt toward its source by
// rebuilding the Subcon restricted to that source alone.
func (s *Scheduler) applyHighImpact(t time.Time, current subcon.Winner, env *subcon.Environment) (subcon.Winner, bool) {
	for _, hi := range s.HighImpact {
		if t.Before(hi.Start) || !t.Before(hi.End) {
			continue
		}
		src, ok := s.Sources[hi.SourceID]
		if !ok || !src.EligibleAt(t) {
			continue
		}
		restore := s.restrictSources(map[source.ID]bool{hi.SourceID: true})
		win, err := subcon.Build(env, s.Config, t, s.Network)
		restore()
		if err == nil && win.Kind != subcon.None {
			return win, true
		}
	}
	return current, false
}

// commit is spec §4.7 step 5.
func (s *Scheduler) commit(win subcon.Winner) {
	switch win.Kind {
	case subcon.Single:
		s.commitOne(win.A)
	case subcon.Pair:
		s.commitOne(win.A)
		s.commitOne(win.B)
	}
}

func (s *Scheduler) commitOne(sc *scan.Scan) {
	sc.ID = scan.ID(s.nextScanID)
	s.nextScanID++
	for _, stID := range sc.Stations {
		stn := s.Stations[stID]
		pv := sc.Pointing[stID]
		end := sc.Times.ScanEnd[stID]
		start := sc.Times.EndOfIdle[stID]
		slewEnd := sc.Times.EndOfSlew[stID]
		fsEnd := sc.Times.EndOfFieldSystem[stID]
		preob := stn.Wait.Preob
		idle := start.Sub(slewEnd) - preob
		if idle < 0 {
			idle = 0
		}
		var stObs int
		for _, o := range sc.Observations {
			if o.Station1 == stID || o.Station2 == stID {
				stObs++
			}
		}
		stn.UpdateStatistics(start, fsEnd.Sub(sc.Times.EndOfPreviousScan[stID]), slewEnd.Sub(fsEnd), idle, preob, end.Sub(start), stObs)
		stn.Commit(pv, end)
		if g := s.SkyGroups[stID]; g != nil {
			g.Update(pv, s.System.ToSeconds(end))
		}
	}
	var observations int
	for _, o := range sc.Observations {
		observations++
		s.Network.RecordObservation(o.Station1, o.Station2, o.Duration.Seconds())
	}
	if src, ok := s.Sources[sc.SourceID]; ok {
		src.RecordScan(sc.MaxEnd(), observations)
	}
	if s.Config.Parallactic != nil {
		for _, stID := range sc.Stations {
			pv := sc.Pointing[stID]
			if pv.HasHADec {
				s.Config.Parallactic.Record(stID, s.Stations[stID].ParallacticAngle(pv.HA, pv.Dec))
			}
		}
	}
	s.Scans = append(s.Scans, sc)
}

// earliestEventBoundary returns the earliest upcoming station/source event
// time strictly after t, or the zero time if none remain.
func (s *Scheduler) earliestEventBoundary(t time.Time) time.Time {
	var best time.Time
	consider := func(at time.Time) {
		if at.After(t) && (best.IsZero() || at.Before(best)) {
			best = at
		}
	}
	for _, stn := range s.Stations {
		consider(stn.NextEventAfter(t))
	}
	for _, src := range s.Sources {
		consider(src.NextEventAfter(t))
	}
	return best
}

// advanceIdleStationsTo fast-forwards every station's current-time marker
// to next when the Subcon is empty, the spec §7 EmptySubcon remedy
// ("advance current time to the earliest event boundary").
func (s *Scheduler) advanceIdleStationsTo(next time.Time) {
	for _, stn := range s.Stations {
		if stn.Current.Time.Before(next) {
			stn.Commit(antenna.PointingVector{Az: stn.Current.Az, El: stn.Current.El}, next)
		}
	}
}

// fillinPass is spec §4.7 step 6.
func (s *Scheduler) fillinPass(t time.Time) {
	for stID, stn := range s.Stations {
		if !stn.Parameters().AvailableForFillin {
			continue
		}
		if isBusyInLastCommit(s.Scans, stID) {
			continue
		}
		nextCommit, hasNext := s.nextCommitmentFor(stID, t)
		if !hasNext {
			continue
		}
		fillin, ok := s.buildFillin(stID, t, nextCommit)
		if !ok {
			continue
		}
		s.commitOne(fillin)
	}
}

// fillinDuration picks how long a fillin scan should run: the source's
// fixed duration if configured, else its min_scan, else a short default,
// never exceeding the idle budget available before the next commitment.
func fillinDuration(src *source.Source, budget time.Duration) time.Duration {
	d := src.Parameters().FixedScanDuration
	if d <= 0 && src.Parameters().MinScan > 0 {
		d = time.Duration(src.Parameters().MinScan * float64(time.Second))
	}
	if d <= 0 {
		d = 30 * time.Second
	}
	if d > budget {
		return 0
	}
	return d
}

func isBusyInLastCommit(scans []*scan.Scan, st station.ID) bool {
	if len(scans) == 0 {
		return false
	}
	last := scans[len(scans)-1]
	for _, id := range last.Stations {
		if id == st {
			return true
		}
	}
	return false
}

// nextCommitmentFor finds the station's next scheduled scan start after t,
// so fillin can check the "must return to required end-pointing on time"
// rule (spec §4.7 step 6, FillinEndposition).
func (s *Scheduler) nextCommitmentFor(st station.ID, t time.Time) (*scan.Scan, bool) {
	var best *scan.Scan
	for _, sc := range s.Scans {
		start, ok := sc.Times.EndOfIdle[st]
		if !ok || !start.After(t) {
			continue
		}
		if best == nil || start.Before(best.Times.EndOfIdle[st]) {
			best = sc
		}
	}
	return best, best != nil
}

// buildFillin constructs a short single-station-compatible scan for st
// between t and the next commitment, enforcing the endpoint-preservation
// rule: the fillin's end pointing plus the slew back to nextCommit's start
// must land no later than nextCommit's end_of_field_system (spec §8
// invariant 8, FillinEndposition).
func (s *Scheduler) buildFillin(st station.ID, t time.Time, nextCommit *scan.Scan) (*scan.Scan, bool) {
	stn := s.Stations[st]
	deadline := nextCommit.Times.EndOfFieldSystem[st]
	if deadline.IsZero() {
		deadline = nextCommit.Times.EndOfIdle[st]
	}
	budget := deadline.Sub(t)
	if budget <= 0 {
		return nil, false
	}

	var ids []source.ID
	for id := range s.Sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, srcID := range ids {
		src := s.Sources[srcID]
		if !src.EligibleAt(t) {
			continue
		}
		pv := stn.CalcAzEl(station.Simple, s.Tables, t, src.RA, src.Dec)
		if !stn.Kinematics.Visible(pv, src.Parameters().MinElevation) {
			continue
		}
		duration := fillinDuration(src, budget)
		if duration <= 0 {
			continue
		}
		sc, ok := scan.NewFillin(scan.ID(0), src, st, pv, stn.Current.Time, duration, s.ScanCtx)
		if !ok {
			continue
		}
		end := sc.Times.ScanEnd[st]
		returnPV := nextCommit.Pointing[st]
		backSlew, err := stn.Kinematics.SlewTime(sc.Pointing[st], returnPV)
		if err != nil {
			continue
		}
		arrival := end.Add(time.Duration(backSlew * float64(time.Second)))
		if arrival.After(deadline) {
			continue
		}
		return sc, true
	}
	return nil, false
}

// aposterioriFillin is spec §4.7's optional second pass: re-walk the
// committed timeline and insert fillin scans into gaps the main loop left
// behind, under the same endpoint-preservation rules.
func (s *Scheduler) aposterioriFillin() {
	sort.Slice(s.Scans, func(i, j int) bool { return s.Scans[i].MaxEnd().Before(s.Scans[j].MaxEnd()) })
	for stID, stn := range s.Stations {
		if !stn.Parameters().AvailableForFillin {
			continue
		}
		for i := 0; i+1 < len(s.Scans); i++ {
			cur, next := s.Scans[i], s.Scans[i+1]
			if !stationIn(cur, stID) || stationIn(next, stID) {
				continue
			}
			t := cur.MaxEnd()
			fillin, ok := s.buildFillin(stID, t, next)
			if ok {
				s.commitOne(fillin)
			}
		}
	}
}

func stationIn(sc *scan.Scan, st station.ID) bool {
	for _, id := range sc.Stations {
		if id == st {
			return true
		}
	}
	return false
}

// Tagalong inserts a flagged station into every already-committed scan it
// could have physically participated in, without altering committed times
// (spec §4.7 "Tagalong mode").
func (s *Scheduler) Tagalong(st station.ID) {
	stn := s.Stations[st]
	for _, sc := range s.Scans {
		if stationIn(sc, st) {
			continue
		}
		src := s.Sources[sc.SourceID]
		start := sc.Times.EndOfIdle[minKey(sc.Times.EndOfIdle)]
		pv := stn.CalcAzEl(station.Rigorous, s.Tables, start, src.RA, src.Dec)
		if !stn.Kinematics.Visible(pv, src.Parameters().MinElevation) {
			continue
		}
		slew, err := stn.Kinematics.SlewTime(antenna.PointingVector{Az: stn.Current.Az, El: stn.Current.El}, pv)
		if err != nil || time.Duration(slew*float64(time.Second)) > start.Sub(stn.Current.Time) {
			continue
		}
		sc.Stations = append(sc.Stations, st)
		sc.Pointing[st] = pv
		sc.Times.ScanEnd[st] = sc.MaxEnd()
		stn.Commit(pv, sc.MaxEnd())
	}
}

func minKey(m map[station.ID]time.Time) station.ID {
	var best station.ID
	first := true
	for k := range m {
		if first || k < best {
			best, first = k, false
		}
	}
	return best
}
