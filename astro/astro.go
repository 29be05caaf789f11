// Package astro is the pure-function-of-time astronomical provider spec
// §4.1/§4.3/§6 requires: source unit vectors in the inertial frame, Earth
// velocity (for aberration), nutation X/Y/S sampled on a grid with linear
// interpolation, and sun position. Grounded on ChristopherRabotin-smd's use
// of github.com/soniakeys/meeus/julian for Julian-day conversion (the only
// meeus subpackage the corpus actually imports); nutation/sun-position use
// the same low-precision closed-form series VieSchedpp's
// AstronomicalParameters.{h,cpp} tabulates, since no example in the corpus
// wires meeus's nutation/solar/sidereal subpackages (see DESIGN.md).
package astro

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/julian"

	"github.com/vievs/vlbisched/timesys"
)

// Vector3 is a plain Cartesian or unit vector; kept as a named array (not a
// matrix type) the way spec §3 describes per-entity fields as plain floats.
type Vector3 [3]float64

func (v Vector3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func (v Vector3) Scale(k float64) Vector3 {
	return Vector3{v[0] * k, v[1] * k, v[2] * k}
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

func (v Vector3) Dot(o Vector3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// AngularDistance returns the angle in radians between two unit vectors.
func AngularDistance(a, b Vector3) float64 {
	cross := Vector3{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
	return math.Atan2(cross.Norm(), a.Dot(b))
}

// Constants mirrors the small fixed set of IAU coefficients VieSchedpp's
// AstronomicalParameters.{h,cpp} tabulates (obliquity polynomial, Earth
// rotation rate), carried here instead of scattering magic numbers.
type Constants struct {
	// ObliquityJ2000 is the mean obliquity of the ecliptic at J2000.0 (rad).
	ObliquityJ2000 float64
	// ObliquityRatePerCentury is the linear term of the obliquity drift.
	ObliquityRatePerCentury float64
	// EarthRotationRate is Earth's mean angular velocity (rad/s), used for
	// the Earth-velocity-aberration term in the rigorous az/el model.
	EarthRotationRate float64
}

// DefaultConstants are the IAU 1980-era values VieSchedpp uses.
var DefaultConstants = Constants{
	ObliquityJ2000:          23.43929111 * math.Pi / 180,
	ObliquityRatePerCentury: -46.8150 / 3600 * math.Pi / 180,
	EarthRotationRate:       7.2921158553e-5,
}

// NutationSample is one grid point of the interpolated nutation series.
type NutationSample struct {
	T    time.Time
	X, Y float64 // nutation in longitude/obliquity components (rad)
	S    float64 // CIO locator (rad), negligible at this precision but
	// retained so rigorous az/el can apply it uniformly.
}

// Tables is the per-Scheduler, per-worker astronomical cache: built once at
// session start, read-only thereafter (spec §5, §9 "no global mutable
// state"). It owns the nutation grid and exposes Earth velocity / sun
// position / GMST as pure functions of time.
type Tables struct {
	constants Constants
	grid      []NutationSample
}

// BuildTables samples the nutation series on an evenly spaced grid across
// [start,end] with the given step, the way spec §2 describes "nutation
// X/Y/S sampled on a grid with linear interpolation".
func BuildTables(start, end time.Time, step time.Duration) *Tables {
	if step <= 0 {
		step = 15 * time.Minute
	}
	t := &Tables{constants: DefaultConstants}
	for at := start; !at.After(end); at = at.Add(step) {
		t.grid = append(t.grid, t.sampleNutation(at))
	}
	if len(t.grid) < 2 {
		t.grid = append(t.grid, t.sampleNutation(end))
	}
	return t
}

// sampleNutation evaluates the truncated IAU 1980-style nutation series
// (principal lunar-node term plus the solar semi-annual term, sufficient for scheduling-grade
// pointing, not for correlation-grade astrometry) at t.
func (t *Tables) sampleNutation(at time.Time) NutationSample {
	jd := julian.TimeToJD(at)
	jc := (jd - 2451545.0) / 36525
	// Mean longitude of the ascending node of the Moon (deg), IAU 1980.
	omega := math.Mod(125.04452-1934.136261*jc, 360) * math.Pi / 180
	// Mean longitude of the Sun (deg).
	meanSunLon := math.Mod(280.4665+36000.7698*jc, 360) * math.Pi / 180
	dPsi := -17.20*math.Sin(omega) - 1.32*math.Sin(2*meanSunLon)
	dEps := 9.20*math.Cos(omega) + 0.57*math.Cos(2*meanSunLon)
	const asToRad = math.Pi / (180 * 3600)
	return NutationSample{
		T: at,
		X: dPsi * asToRad / 1000,
		Y: dEps * asToRad / 1000,
		S: -(dPsi * asToRad / 1000) * math.Sin(t.constants.ObliquityJ2000) / 2,
	}
}

// Nutation interpolates X/Y/S linearly between the two grid points
// bracketing t, as spec §2 requires.
func (t *Tables) Nutation(at time.Time) (x, y, s float64) {
	if len(t.grid) == 0 {
		return 0, 0, 0
	}
	if !at.After(t.grid[0].T) {
		g := t.grid[0]
		return g.X, g.Y, g.S
	}
	last := t.grid[len(t.grid)-1]
	if !at.Before(last.T) {
		return last.X, last.Y, last.S
	}
	lo := 0
	for i := 1; i < len(t.grid); i++ {
		if t.grid[i].T.After(at) {
			lo = i - 1
			break
		}
		lo = i
	}
	hi := lo + 1
	if hi >= len(t.grid) {
		g := t.grid[lo]
		return g.X, g.Y, g.S
	}
	a, b := t.grid[lo], t.grid[hi]
	span := b.T.Sub(a.T).Seconds()
	if span <= 0 {
		return a.X, a.Y, a.S
	}
	frac := at.Sub(a.T).Seconds() / span
	lerp := func(p, q float64) float64 { return p + (q-p)*frac }
	return lerp(a.X, b.X), lerp(a.Y, b.Y), lerp(a.S, b.S)
}

// EarthVelocity returns Earth's barycentric velocity in km/s at t, the
// source of the annual-aberration correction in the rigorous az/el model.
// Uses the mean circular-orbit approximation (magnitude ~29.78 km/s,
// direction perpendicular to the Sun vector in the ecliptic plane):
// adequate for the sub-arcsecond-level pointing this scheduler needs,
// unlike the VSOP87 series ChristopherRabotin-smd uses for mission design
// which requires bundled ephemeris data files this module does not ship.
func (t *Tables) EarthVelocity(at time.Time) Vector3 {
	const meanOrbitalSpeedKmS = 29.7859
	sunLon := meanSunEclipticLongitude(at)
	// Velocity leads position by 90 degrees along the orbit.
	dir := sunLon + math.Pi/2
	obliquity := t.obliquity(at)
	xe, ye, ze := eclipticToEquatorial(math.Cos(dir), math.Sin(dir), 0, obliquity)
	return Vector3{xe, ye, ze}.Scale(meanOrbitalSpeedKmS)
}

// SunPosition returns the apparent geocentric right ascension/declination
// of the Sun (radians) at t, used by source.SunDistance (spec §4.3).
func (t *Tables) SunPosition(at time.Time) (ra, dec float64) {
	lon := meanSunEclipticLongitude(at)
	obliquity := t.obliquity(at)
	x, y, z := eclipticToEquatorial(math.Cos(lon), math.Sin(lon), 0, obliquity)
	ra = math.Atan2(y, x)
	if ra < 0 {
		ra += 2 * math.Pi
	}
	dec = math.Asin(z)
	return ra, dec
}

// GMST delegates to timesys.GMST; kept as a Tables method so callers that
// already hold a *Tables do not need a second import for it.
func (t *Tables) GMST(at time.Time) float64 {
	return timesys.GMST(at)
}

func (t *Tables) obliquity(at time.Time) float64 {
	jc := (julian.TimeToJD(at) - 2451545.0) / 36525
	return t.constants.ObliquityJ2000 + t.constants.ObliquityRatePerCentury*jc
}

// meanSunEclipticLongitude returns the Sun's mean ecliptic longitude (rad)
// via the standard low-precision two-term series.
func meanSunEclipticLongitude(at time.Time) float64 {
	jc := (julian.TimeToJD(at) - 2451545.0) / 36525
	meanLon := math.Mod(280.46646+36000.76983*jc, 360)
	meanAnomaly := math.Mod(357.52911+35999.05029*jc, 360) * math.Pi / 180
	center := (1.914602-0.004817*jc)*math.Sin(meanAnomaly) + 0.019993*math.Sin(2*meanAnomaly)
	lon := math.Mod(meanLon+center, 360)
	if lon < 0 {
		lon += 360
	}
	return lon * math.Pi / 180
}

func eclipticToEquatorial(x, y, z, obliquity float64) (xe, ye, ze float64) {
	ce, se := math.Cos(obliquity), math.Sin(obliquity)
	xe = x
	ye = y*ce - z*se
	ze = y*se + z*ce
	return
}

// UnitVector converts (ra, dec) in radians to a J2000 celestial unit
// vector, the precomputed per-source value spec §3 requires.
func UnitVector(ra, dec float64) Vector3 {
	cd := math.Cos(dec)
	return Vector3{cd * math.Cos(ra), cd * math.Sin(ra), math.Sin(dec)}
}
