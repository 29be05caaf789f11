// Package station implements the per-antenna state machine of spec §3/§4.2:
// current pointing, a lazy parameter-event timeline, and cumulative
// statistics. The event-timeline shape (an ordered slice advanced by a
// cursor, replacing the active Parameters wholesale) is grounded on
// busoc/assist's Schedule.Periods()/Filter() ordered-by-start-time slices.
package station

import (
	"math"
	"sort"
	"time"

	"github.com/vievs/vlbisched/antenna"
	"github.com/vievs/vlbisched/astro"
	"github.com/vievs/vlbisched/timesys"
)

// ID identifies a station; cross-entity links use plain integer ids per
// spec §9, never pointers across component boundaries.
type ID int

// Parameters is the Station variant of spec §3's Parameters entity.
type Parameters struct {
	Available           bool
	AvailableForFillin  bool
	Weight              float64
	MinSNR              map[string]float64
	MinElevation        float64
	MaxSlewTime         float64
	MinSlewDistance     float64
	MaxSlewDistance     float64
	MaxWait             float64
	MinScan             float64
	MaxScan             float64
	IgnoreSources       map[int]bool
	IgnoreBaselines     map[[2]int]bool
	MaxNumberOfScans    int
}

// DefaultParameters returns permissive defaults, the zero-config baseline
// every Event timeline starts from.
func DefaultParameters() Parameters {
	return Parameters{
		Available:          true,
		AvailableForFillin: true,
		Weight:             1,
		MinSNR:             map[string]float64{},
		MaxScan:            math.Inf(1),
		MaxSlewTime:        math.Inf(1),
		MaxSlewDistance:    math.Inf(1),
		MaxWait:            math.Inf(1),
	}
}

// Event is {apply_at_time, soft_transition, new_parameters} of spec §3.
type Event struct {
	ApplyAt time.Time
	Soft    bool
	Params  Parameters
}

// SEFDModel is a per-band SEFD, optionally with an elevation-dependent
// polynomial correction (spec §3 "receiver equipment").
type SEFDModel struct {
	Base          float64
	ElevationPoly []float64 // coefficients c0 + c1*el + c2*el^2 + ...
}

// At evaluates the SEFD at the given elevation (radians).
func (m SEFDModel) At(elevation float64) float64 {
	v := m.Base
	pow := 1.0
	for _, c := range m.ElevationPoly {
		v += c * pow
		pow *= elevation
	}
	return v
}

// WaitTimes are the four constant per-scan overheads of spec §3.
type WaitTimes struct {
	FieldSystem time.Duration
	Preob       time.Duration
	Midob       time.Duration
	Postob      time.Duration
}

// CurrentPointing is the station's live state, spec §3.
type CurrentPointing struct {
	Az, El float64
	Time   time.Time
}

// Stats are the incremental totals and histograms of spec §4.2.
type Stats struct {
	ObservingTime        time.Duration
	SlewTime             time.Duration
	IdleTime             time.Duration
	FieldSystemTime      time.Duration
	PreobTime            time.Duration
	NumberOfScans        int
	NumberOfObservations int
	ScanStartsByQuarterHour [96]int
}

func (s *Stats) recordScanStart(t time.Time) {
	q := (t.Hour()*60 + t.Minute()) / 15
	if q < 0 {
		q = 0
	}
	if q >= len(s.ScanStartsByQuarterHour) {
		q = len(s.ScanStartsByQuarterHour) - 1
	}
	s.ScanStartsByQuarterHour[q]++
}

// Station is the spec §3 entity.
type Station struct {
	ID          ID
	Name        string
	Latitude    float64 // radians
	Longitude   float64 // radians
	PositionXYZ astro.Vector3
	Kinematics  antenna.Kinematics
	SEFD        map[string]SEFDModel
	Wait        WaitTimes

	// CoverageGroup names the skycoverage.Group this station shares a
	// coverage account with (spec §4.4: "groups stations that share a
	// coverage account, e.g. collocated twin antennas"). Empty means the
	// station is its own group.
	CoverageGroup string

	events []Event
	cursor int
	active Parameters

	Current   CurrentPointing
	FirstScan bool

	Stats Stats
}

// New builds a Station with an empty event timeline and DefaultParameters
// active from session start.
func New(id ID, name string) *Station {
	return &Station{
		ID:        id,
		Name:      name,
		SEFD:      map[string]SEFDModel{},
		FirstScan: true,
		active:    DefaultParameters(),
	}
}

// SetEvents installs the parameter timeline, sorted by ApplyAt the way
// busoc/assist sorts its Period slices before use.
func (s *Station) SetEvents(events []Event) {
	s.events = append([]Event(nil), events...)
	sort.Slice(s.events, func(i, j int) bool { return s.events[i].ApplyAt.Before(s.events[j].ApplyAt) })
	s.cursor = 0
}

// Parameters returns the currently active Parameters.
func (s *Station) Parameters() Parameters {
	return s.active
}

// CheckForNewEvent advances the event cursor past every event with
// ApplyAt <= t, replacing the active Parameters. Returns true if any
// traversed event was hard (spec §4.2): a hard transition must not be
// crossed while a scan commitment on this station is in flight.
func (s *Station) CheckForNewEvent(t time.Time) (hardBreak bool) {
	for s.cursor < len(s.events) && !s.events[s.cursor].ApplyAt.After(t) {
		e := s.events[s.cursor]
		s.active = e.Params
		if !e.Soft {
			hardBreak = true
		}
		s.cursor++
	}
	return hardBreak
}

// NextEventAfter returns the ApplyAt of the first event strictly after t,
// or the zero time if none remain. Used by the scheduler's EmptySubcon
// remedy (spec §7: "advance current time to the earliest event boundary").
func (s *Station) NextEventAfter(t time.Time) time.Time {
	for _, e := range s.events {
		if e.ApplyAt.After(t) {
			return e.ApplyAt
		}
	}
	return time.Time{}
}

// AzElModel selects the simple (no-nutation) or rigorous az/el computation
// of spec §4.2.
type AzElModel int

const (
	Simple AzElModel = iota
	Rigorous
)

// CalcAzEl computes the station-local pointing at time t for a source with
// the given RA/Dec (J2000, radians), writing the result into a returned
// PointingVector. In Rigorous mode, nutation/Earth-velocity terms from the
// shared astro.Tables are layered on top (spec §9: no global mutable astro
// state — tables is borrowed from the owning Scheduler).
func (s *Station) CalcAzEl(model AzElModel, tables *astro.Tables, at time.Time, sourceRA, sourceDec float64) antenna.PointingVector {
	gmst := timesys.GMST(at)
	ha := gmst + s.Longitude - sourceRA
	az, el := topocentricAzEl(ha, sourceDec, s.Latitude)
	pv := antenna.PointingVector{StationID: int(s.ID), Az: az, El: el, HA: ha, Dec: sourceDec, HasHADec: true}
	if model == Rigorous && tables != nil {
		pv = applyRigorousCorrections(pv, tables, at)
	}
	return pv
}

// topocentricAzEl is the standard spherical-trig conversion from
// hour-angle/declination/latitude to azimuth/elevation.
func topocentricAzEl(ha, dec, lat float64) (az, el float64) {
	sinEl := math.Sin(dec)*math.Sin(lat) + math.Cos(dec)*math.Cos(lat)*math.Cos(ha)
	el = math.Asin(clamp(sinEl, -1, 1))
	cosAz := (math.Sin(dec) - math.Sin(el)*math.Sin(lat)) / (math.Cos(el) * math.Cos(lat))
	az = math.Acos(clamp(cosAz, -1, 1))
	if math.Sin(ha) > 0 {
		az = 2*math.Pi - az
	}
	return az, el
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyRigorousCorrections layers the CIO-locator term onto a simple-model
// pointing, the "rigorous" branch of spec §4.2. The shift is small
// (sub-arcsecond) and applied as a first-order perturbation of azimuth
// rather than a full frame rotation, adequate for scheduling-grade
// pointing (spec's AstroProvider is explicitly a pure function of time,
// not a correlation-grade astrometric engine).
func applyRigorousCorrections(pv antenna.PointingVector, tables *astro.Tables, at time.Time) antenna.PointingVector {
	_, _, s := tables.Nutation(at)
	pv.Az += s
	return pv
}

// ParallacticAngle computes the parallactic angle (radians) of a pointing
// at this station's latitude, the standard tan(q) = sin(H) /
// (tan(lat)*cos(dec) - sin(dec)*cos(H)) formula evaluated with atan2 for a
// full-circle result.
func (s *Station) ParallacticAngle(ha, dec float64) float64 {
	return math.Atan2(math.Sin(ha), math.Tan(s.Latitude)*math.Cos(dec)-math.Sin(dec)*math.Cos(ha))
}

// UpdateStatistics folds one committed scan's per-station time breakdown
// into Stats, mirroring busoc/assist's accumulation of per-label counts
// and durations in list.go's TimeROC/TimeCER helpers.
func (s *Station) UpdateStatistics(scanStart time.Time, fieldSystem, slew, idle, preob, observing time.Duration, observations int) {
	s.Stats.FieldSystemTime += fieldSystem
	s.Stats.SlewTime += slew
	s.Stats.IdleTime += idle
	s.Stats.PreobTime += preob
	s.Stats.ObservingTime += observing
	s.Stats.NumberOfScans++
	s.Stats.NumberOfObservations += observations
	s.Stats.recordScanStart(scanStart)
}

// Commit moves the station's current pointing forward to pvEnd and clears
// FirstScan, the state transition spec §4.7 step 5 describes.
func (s *Station) Commit(pvEnd antenna.PointingVector, at time.Time) {
	s.Current = CurrentPointing{Az: pvEnd.Az, El: pvEnd.El, Time: at}
	s.FirstScan = false
	s.Kinematics.FirstScan = false
}
