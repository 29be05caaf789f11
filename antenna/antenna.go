// Package antenna implements the pointing kinematics of spec §4.1: slew
// time between two pointings, azimuth unwrap against cable-wrap sectors,
// and visibility against a horizon mask. Axis types and wrap sectors are a
// small closed set, encoded as tagged variants with per-variant closed-form
// methods (spec §9 design note), not an interface hierarchy.
package antenna

import (
	"math"
)

// AxisType is the two-axis mount kind of an antenna (spec §3).
type AxisType int

const (
	AzEl AxisType = iota
	HaDec
	XYEW
	Equatorial
)

func (a AxisType) String() string {
	switch a {
	case AzEl:
		return "AZEL"
	case HaDec:
		return "HADEC"
	case XYEW:
		return "XYEW"
	case Equatorial:
		return "EQUATORIAL"
	default:
		return "UNKNOWN"
	}
}

// AxisRate describes one axis's rate, acceleration/constant-overhead and
// settle time, used by SlewTime.
type AxisRate struct {
	RatePerSec        float64 // rad/s
	ConstantOverhead  float64 // rad "dead" travel not subject to rate
	SettleTime        float64 // seconds, added once travel has started
}

// travelTime is the per-axis slew-time closed form of spec §4.1: the
// required angular travel is max(0, |Δ| - constant_overhead) / rate plus
// axis-specific settle.
func (r AxisRate) travelTime(delta float64) float64 {
	d := math.Abs(delta) - r.ConstantOverhead
	if d <= 0 {
		return 0
	}
	if r.RatePerSec <= 0 {
		return math.Inf(1)
	}
	return d/r.RatePerSec + r.SettleTime
}

// PointingVector is the {station, source, az, el, time} tuple of spec §3.
// Azimuth is carried unwrapped relative to whatever reference the caller
// last resolved it against.
type PointingVector struct {
	StationID int
	SourceID  int
	Az        float64
	El        float64
	Time      float64 // seconds-since-session-start
	HA, Dec   float64
	HasHADec  bool
}

// WrapSector labels one of the up to three legal azimuth arcs (spec §3/§9).
type WrapSector int

const (
	SectorCCW WrapSector = iota
	SectorNeutral
	SectorCW
	SectorNone
)

// CableWrap models the azimuth-mechanics constraint of spec §3/glossary:
// up to three legal arcs (ccw/n/cw) plus a ±2π ambiguity on the neutral
// axis.
type CableWrap struct {
	CCWLow, CCWHigh         float64
	HasCCW                  bool
	NeutralLow, NeutralHigh float64
	HasNeutral              bool
	CWLow, CWHigh           float64
	HasCW                   bool
}

// LimitsOf returns (lo, hi) for the given sector.
func (w CableWrap) LimitsOf(s WrapSector) (lo, hi float64, ok bool) {
	switch s {
	case SectorCCW:
		return w.CCWLow, w.CCWHigh, w.HasCCW
	case SectorNeutral:
		return w.NeutralLow, w.NeutralHigh, w.HasNeutral
	case SectorCW:
		return w.CWLow, w.CWHigh, w.HasCW
	default:
		return 0, 0, false
	}
}

// SectorOf returns the sector containing az, or SectorNone.
func (w CableWrap) SectorOf(az float64) WrapSector {
	for _, s := range [...]WrapSector{SectorCCW, SectorNeutral, SectorCW} {
		if lo, hi, ok := w.LimitsOf(s); ok && az >= lo && az <= hi {
			return s
		}
	}
	return SectorNone
}

// candidates returns every az+2πk ambiguity of az that lies inside a legal
// sector, tagged with the sector it landed in.
func (w CableWrap) candidates(az float64) []struct {
	Az     float64
	Sector WrapSector
} {
	var out []struct {
		Az     float64
		Sector WrapSector
	}
	base := math.Mod(az, 2*math.Pi)
	if base < 0 {
		base += 2 * math.Pi
	}
	for k := -2; k <= 2; k++ {
		a := base + float64(k)*2*math.Pi
		if s := w.SectorOf(a); s != SectorNone {
			out = append(out, struct {
				Az     float64
				Sector WrapSector
			}{a, s})
		}
	}
	return out
}

// ErrInfeasibleSlew is returned by UnwrapNear/CalcUnwrappedAz/SlewTime when
// no azimuth ambiguity lies inside any legal wrap sector.
var ErrInfeasibleSlew = infeasibleErr{"no azimuth ambiguity lies within a legal wrap sector"}

type infeasibleErr struct{ msg string }

func (e infeasibleErr) Error() string { return e.msg }

// UnwrapNear chooses the ambiguity of pv.Az closest to azRef that lies
// inside a legal sector; ties prefer the sector azRef itself would resolve
// to (spec §4.1 "prefer staying in the same sector as previous").
func (w CableWrap) UnwrapNear(azRef float64, pv PointingVector) (PointingVector, error) {
	cands := w.candidates(pv.Az)
	if len(cands) == 0 {
		return pv, ErrInfeasibleSlew
	}
	refSector := w.SectorOf(math.Mod(azRef, 2*math.Pi))
	best := cands[0]
	bestDelta := math.Abs(best.Az - azRef)
	for _, c := range cands[1:] {
		delta := math.Abs(c.Az - azRef)
		switch {
		case delta < bestDelta-1e-12:
			best, bestDelta = c, delta
		case math.Abs(delta-bestDelta) <= 1e-12 && c.Sector == refSector && best.Sector != refSector:
			best, bestDelta = c, delta
		}
	}
	out := pv
	out.Az = best.Az
	return out, nil
}

// CalcUnwrappedAz unwraps pv against the station's current pointing,
// spec §4.1's primary entry point.
func (w CableWrap) CalcUnwrappedAz(previous PointingVector, pv PointingVector) (PointingVector, error) {
	return w.UnwrapNear(previous.Az, pv)
}

// HorizonMask is a piecewise-linear el_min(az) lookup (spec §4.1).
type HorizonMask struct {
	// Az/El are parallel, sorted-by-Az breakpoints; the mask wraps at 2π.
	Az []float64
	El []float64
}

// ElevationLimit evaluates the piecewise-linear mask at az.
func (m HorizonMask) ElevationLimit(az float64) float64 {
	if len(m.Az) == 0 {
		return 0
	}
	a := math.Mod(az, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	n := len(m.Az)
	if a <= m.Az[0] {
		return m.El[0]
	}
	if a >= m.Az[n-1] {
		return m.El[n-1]
	}
	for i := 1; i < n; i++ {
		if a <= m.Az[i] {
			lo, hi := m.Az[i-1], m.Az[i]
			frac := (a - lo) / (hi - lo)
			return m.El[i-1] + frac*(m.El[i]-m.El[i-1])
		}
	}
	return m.El[n-1]
}

// Kinematics bundles the two-axis mechanics plus cable wrap and horizon
// mask of one station's antenna (spec §3 "Station ... antenna kinematics").
type Kinematics struct {
	Axis          AxisType
	First         AxisRate
	Second        AxisRate
	SlewOverhead  float64 // fixed per-slew overhead added once
	Wrap          CableWrap
	Mask          HorizonMask
	MinElevation  float64
	FirstScan     bool // spec §3: slew from current is zero when true
}

// axisDeltas returns the per-axis angular travel for the
// antenna's mount type: (Δaz, Δel) for AzEl, (Δha, Δdec) for HaDec. Other
// mount types fall back to (Δaz, Δel) as a reasonable default since spec
// only details AzEl/HaDec explicitly.
func (k Kinematics) axisDeltas(from, to PointingVector) (d1, d2 float64) {
	switch k.Axis {
	case HaDec:
		return to.HA - from.HA, to.Dec - from.Dec
	default:
		return to.Az - from.Az, to.El - from.El
	}
}

// SlewTime returns the antenna-level slew time in seconds between two
// pointings, or (0, ErrInfeasibleSlew) if no unwrap ambiguity is legal.
// Per spec §3: if FirstScan, the slew from "current" is defined as zero.
func (k Kinematics) SlewTime(current, target PointingVector) (float64, error) {
	if k.FirstScan {
		return 0, nil
	}
	unwrapped, err := k.Wrap.CalcUnwrappedAz(current, target)
	if err != nil {
		return 0, err
	}
	d1, d2 := k.axisDeltas(current, unwrapped)
	t1 := k.First.travelTime(d1)
	t2 := k.Second.travelTime(d2)
	return math.Max(t1, t2) + k.SlewOverhead, nil
}

// SlewDistance returns the larger of the two per-axis angular deltas
// (radians) of slewing from current to target — the same axisDeltas
// SlewTime already computes, expressed as distance rather than travel
// time. Per spec §3, if FirstScan the slew distance from "current" is
// defined as zero.
func (k Kinematics) SlewDistance(current, target PointingVector) (float64, error) {
	if k.FirstScan {
		return 0, nil
	}
	unwrapped, err := k.Wrap.CalcUnwrappedAz(current, target)
	if err != nil {
		return 0, err
	}
	d1, d2 := k.axisDeltas(current, unwrapped)
	return math.Max(math.Abs(d1), math.Abs(d2)), nil
}

// Visible implements spec §4.1's visibility predicate: elevation above the
// stricter of the station/source minimum and the horizon mask, and the
// azimuth inside a legal wrap sector.
func (k Kinematics) Visible(pv PointingVector, minElSource float64) bool {
	minEl := math.Max(k.MinElevation, minElSource)
	if pv.El < minEl {
		return false
	}
	if pv.El < k.Mask.ElevationLimit(pv.Az) {
		return false
	}
	return k.Wrap.SectorOf(pv.Az) != SectorNone
}
