// Package source implements the Source entity of spec §3/§4.3: flux model,
// parameter timeline, precomputed unit vector, and cumulative statistics.
// The event-timeline/Parameters-cursor shape mirrors station's, since both
// are the same Parameters-timeline pattern applied to a different entity
// (spec §3: "both Station and Source have a separate variant").
package source

import (
	"math"
	"sort"
	"time"

	"github.com/vievs/vlbisched/astro"
)

// ID identifies a source; cross-entity links use plain integer ids.
type ID int

// FluxModelKind distinguishes the two closed-set flux model shapes spec
// §4.3 describes, encoded as a tagged variant rather than an interface
// hierarchy (spec §9 design note, same choice as antenna.AxisType).
type FluxModelKind int

const (
	// Tabulated holds (flux, log10(baseline)) breakpoints, evaluated by
	// linear interpolation between the two bracketing points.
	Tabulated FluxModelKind = iota
	// SpectralIndex is the closed-form S = S0 * (B/B0)^alpha model.
	SpectralIndex
)

// FluxPoint is one breakpoint of a Tabulated model.
type FluxPoint struct {
	Log10Baseline float64 // log10(baseline length, meters)
	FluxJansky    float64
}

// BandFluxModel is one band's flux model for one source (spec §4.3: "flux
// model per band").
type BandFluxModel struct {
	Kind FluxModelKind

	// Tabulated fields; Points must be sorted by Log10Baseline.
	Points []FluxPoint

	// SpectralIndex fields: S = ReferenceFlux * (B/ReferenceBaseline)^Index.
	ReferenceFlux     float64
	ReferenceBaseline float64
	Index             float64
}

// evaluate returns the flux in Jansky for a baseline of the given length
// (meters).
func (m BandFluxModel) evaluate(baselineLength float64) float64 {
	switch m.Kind {
	case SpectralIndex:
		if m.ReferenceBaseline <= 0 || baselineLength <= 0 {
			return m.ReferenceFlux
		}
		return m.ReferenceFlux * math.Pow(baselineLength/m.ReferenceBaseline, m.Index)
	default:
		return m.evaluateTabulated(baselineLength)
	}
}

func (m BandFluxModel) evaluateTabulated(baselineLength float64) float64 {
	n := len(m.Points)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return m.Points[0].FluxJansky
	}
	logB := math.Log10(math.Max(baselineLength, 1e-9))
	if logB <= m.Points[0].Log10Baseline {
		return m.Points[0].FluxJansky
	}
	if logB >= m.Points[n-1].Log10Baseline {
		return m.Points[n-1].FluxJansky
	}
	for i := 1; i < n; i++ {
		if logB <= m.Points[i].Log10Baseline {
			a, b := m.Points[i-1], m.Points[i]
			span := b.Log10Baseline - a.Log10Baseline
			if span <= 0 {
				return a.FluxJansky
			}
			frac := (logB - a.Log10Baseline) / span
			return a.FluxJansky + frac*(b.FluxJansky-a.FluxJansky)
		}
	}
	return m.Points[n-1].FluxJansky
}

// supremum returns the model's maximum attainable flux, used by
// IsStrongEnough (spec §4.3: "max over all bands of the model's supremum").
func (m BandFluxModel) supremum() float64 {
	switch m.Kind {
	case SpectralIndex:
		if m.Index <= 0 {
			// Flux rises without bound as baseline -> 0; the reference
			// flux at the reference baseline is the practical cap any
			// real network baseline approaches.
			return m.ReferenceFlux
		}
		max := m.ReferenceFlux
		return max
	default:
		max := 0.0
		for _, p := range m.Points {
			if p.FluxJansky > max {
				max = p.FluxJansky
			}
		}
		return max
	}
}

// Parameters is the Source variant of spec §3's Parameters entity.
type Parameters struct {
	Available            bool
	AvailableForFillin    bool
	Weight                float64
	MinSNR                map[string]float64
	MinElevation          float64
	MaxSlewTime           float64
	MinSlewDistance       float64
	MaxSlewDistance       float64
	MaxWait               float64
	MinScan               float64
	MaxScan               float64
	MinNumberOfStations   int
	MinFlux               float64
	MinRepeat             time.Duration
	MinSunDistance        float64
	IgnoreSources         map[int]bool
	IgnoreStations        map[int]bool
	IgnoreBaselines       map[[2]int]bool
	RequiredStations      map[int]bool
	FixedScanDuration     time.Duration // zero means "not set"
	TryToFocus            *FocusBehavior
	MaxNumberOfScans      int
}

// FocusBehavior is the optional "try_to_focus" behavior block of spec §3:
// once a source has been observed, bias subsequent candidate scoring
// toward repeating it for a limited number of additional scans.
type FocusBehavior struct {
	BonusWeight     float64
	MaxFocusScans   int
	FocusIfObserved bool
}

// DefaultParameters returns permissive defaults.
func DefaultParameters() Parameters {
	return Parameters{
		Available:          true,
		AvailableForFillin: true,
		Weight:             1,
		MinSNR:             map[string]float64{},
		MinNumberOfStations: 2,
		MaxScan:            math.Inf(1),
		MaxSlewTime:        math.Inf(1),
		MaxSlewDistance:    math.Inf(1),
		MaxWait:            math.Inf(1),
	}
}

// Event is {apply_at_time, soft_transition, new_parameters}, the Source
// variant of station.Event.
type Event struct {
	ApplyAt time.Time
	Soft    bool
	Params  Parameters
}

// Stats are the cumulative totals of spec §3: "last-scan-time,
// number-of-scans, number-of-observations".
type Stats struct {
	LastScanTime         time.Time
	NumberOfScans        int
	NumberOfObservations int
}

// Source is the spec §3 entity.
type Source struct {
	ID      ID
	Name    string
	AltName string

	RA, Dec float64 // J2000, radians
	Unit    astro.Vector3 // precomputed unit vector, invariant: norm == 1

	Flux map[string]BandFluxModel // band -> model
	// FallbackFlux is used by ObservedFlux when a band has no entry in
	// Flux, spec §4.3: "returns a configured fallback".
	FallbackFlux float64

	events []Event
	cursor int
	active Parameters

	Stats Stats
}

// New builds a Source with its unit vector precomputed from RA/Dec, the
// invariant spec §3 requires hold for the entity's entire lifetime.
func New(id ID, name string, ra, dec float64) *Source {
	return &Source{
		ID:     id,
		Name:   name,
		RA:     ra,
		Dec:    dec,
		Unit:   astro.UnitVector(ra, dec),
		Flux:   map[string]BandFluxModel{},
		active: DefaultParameters(),
	}
}

// SetEvents installs the parameter timeline, sorted by ApplyAt.
func (s *Source) SetEvents(events []Event) {
	s.events = append([]Event(nil), events...)
	sort.Slice(s.events, func(i, j int) bool { return s.events[i].ApplyAt.Before(s.events[j].ApplyAt) })
	s.cursor = 0
}

// Parameters returns the currently active Parameters.
func (s *Source) Parameters() Parameters {
	return s.active
}

// CheckForNewEvent advances the event cursor past every event with
// ApplyAt <= t, mirroring station.Station.CheckForNewEvent. Whenever a
// traversed event changes MinFlux, IsStrongEnough is re-checked against
// the new threshold and the source is forced unavailable if it no longer
// clears it, the same re-validation original_source's
// Source::checkForNewEvent performs on every min-flux change.
func (s *Source) CheckForNewEvent(t time.Time) (hardBreak bool) {
	for s.cursor < len(s.events) && !s.events[s.cursor].ApplyAt.After(t) {
		e := s.events[s.cursor]
		oldMinFlux := s.active.MinFlux
		s.active = e.Params
		if !e.Soft {
			hardBreak = true
		}
		s.cursor++
		if s.active.MinFlux != oldMinFlux {
			if ok, _ := s.IsStrongEnough(s.active); !ok {
				s.active.Available = false
			}
		}
	}
	return hardBreak
}

// NextEventAfter returns the ApplyAt of the first event strictly after t,
// or the zero time if none remain, mirroring station.Station.NextEventAfter.
func (s *Source) NextEventAfter(t time.Time) time.Time {
	for _, e := range s.events {
		if e.ApplyAt.After(t) {
			return e.ApplyAt
		}
	}
	return time.Time{}
}

// SetAvailable overrides the active Parameters' Available flag directly,
// bypassing the event timeline. Used by the scheduler to temporarily
// restrict eligibility under a scan-sequence cadence (spec §4.7 step 2)
// without disturbing the source's real event history.
func (s *Source) SetAvailable(v bool) {
	s.active.Available = v
}

// EligibleAt reports whether the source's cadence constraint is satisfied
// at t: spec §4.6 "cadence satisfied: t >= last_scan_time + min_repeat".
// A source that has already reached its configured MaxNumberOfScans is
// never eligible again, regardless of cadence.
func (s *Source) EligibleAt(t time.Time) bool {
	if !s.active.Available {
		return false
	}
	if s.active.MaxNumberOfScans > 0 && s.Stats.NumberOfScans >= s.active.MaxNumberOfScans {
		return false
	}
	if s.Stats.LastScanTime.IsZero() {
		return true
	}
	return !t.Before(s.Stats.LastScanTime.Add(s.active.MinRepeat))
}

// ObservedFlux implements spec §4.3 observed_flux: projects the baseline
// vector into the (u, v) plane at the given hour angle and evaluates the
// band's flux model at the resulting baseline length. gmst is Greenwich
// Mean Sidereal Time in radians; baselineXYZ is the geocentric Δ(x,y,z)
// between the two stations, meters.
func (s *Source) ObservedFlux(band string, gmst float64, baselineXYZ astro.Vector3) float64 {
	m, ok := s.Flux[band]
	if !ok {
		return s.FallbackFlux
	}
	u, v := s.projectUV(gmst, baselineXYZ)
	length := math.Hypot(u, v)
	return m.evaluate(length)
}

// projectUV computes the standard VLBI (u, v) projection of a geocentric
// baseline vector onto the plane perpendicular to the source direction,
// given the hour angle h = gmst - ra.
func (s *Source) projectUV(gmst float64, baselineXYZ astro.Vector3) (u, v float64) {
	h := gmst - s.RA
	sinH, cosH := math.Sin(h), math.Cos(h)
	sinD, cosD := math.Sin(s.Dec), math.Cos(s.Dec)
	dx, dy, dz := baselineXYZ[0], baselineXYZ[1], baselineXYZ[2]
	u = dx*sinH + dy*cosH
	v = -dx*sinD*cosH + dy*sinD*sinH + dz*cosD
	return u, v
}

// IsStrongEnough implements spec §4.3 is_strong_enough: the maximum over
// all bands of the model's supremum, compared against min_flux.
func (s *Source) IsStrongEnough(params Parameters) (ok bool, maxFlux float64) {
	for _, m := range s.Flux {
		if sup := m.supremum(); sup > maxFlux {
			maxFlux = sup
		}
	}
	return maxFlux >= params.MinFlux, maxFlux
}

// SunDistance implements spec §4.3 sun_distance(t): angular distance from
// the source to the Sun's apparent position at t.
func (s *Source) SunDistance(t time.Time, tables *astro.Tables) float64 {
	ra, dec := tables.SunPosition(t)
	return astro.AngularDistance(s.Unit, astro.UnitVector(ra, dec))
}

// RecordScan folds one committed scan into Stats. LastScanTime never
// decreases (spec §3 invariant) even if called out of chronological order.
func (s *Source) RecordScan(t time.Time, observations int) {
	if t.After(s.Stats.LastScanTime) {
		s.Stats.LastScanTime = t
	}
	s.Stats.NumberOfScans++
	s.Stats.NumberOfObservations += observations
}
