// Package timesys owns the session epoch and the conversions between
// internal seconds-since-start and calendar time, plus GMST. Grounded on
// busoc/assist's SOY/Leap handling (schedule.go) for the calendar-time
// bookkeeping, and on the Julian-day convention used throughout
// tejzpr-go-swisseph's examples for the GMST computation.
package timesys

import (
	"math"
	"time"
)

// Leap mirrors busoc/assist's GPS/UTC leap offset constant.
const Leap = 18 * time.Second

// System is the session's time reference: every internal computation works
// in seconds-since-start so that antenna/source arithmetic stays in plain
// float64 seconds, and calendar time is only reconstituted at the edges
// (logging, output, TOML in/out).
type System struct {
	Start time.Time
	End   time.Time
}

// New builds a System for the half-open window [start, end).
func New(start, end time.Time) System {
	return System{Start: start, End: end}
}

// Duration is the total session length.
func (s System) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// ToSeconds converts a calendar time into seconds elapsed since Start.
// Negative for times before the session, this is intentional: candidate
// construction upstream is expected to reject those, not this layer.
func (s System) ToSeconds(t time.Time) float64 {
	return t.Sub(s.Start).Seconds()
}

// ToTime converts seconds-since-start back to a calendar time.
func (s System) ToTime(sec float64) time.Time {
	return s.Start.Add(time.Duration(sec * float64(time.Second)))
}

// Contains reports whether t falls inside the session window.
func (s System) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// SOY reproduces busoc/assist's seconds-of-year (GPS) computation: the
// time distance from the first instant of t's year, with the leap offset
// folded in the same way schedule.go's SOY() does.
func SOY(t time.Time) int64 {
	day := 24 * time.Hour
	year := t.AddDate(0, 0, -t.YearDay()+1).Truncate(day)
	stamp := t.Add(Leap)
	return stamp.Unix() - year.Unix()
}

// julianDay0 is the Julian day number at 2000-01-01T12:00:00 UTC (J2000.0).
const julianDay0 = 2451545.0

// JulianDay returns the Julian day (UT1-flavoured, leap seconds ignored the
// way a pure scheduling function of time is allowed to) for t, following
// the Julday(year, month, day, hour, calendar) convention named in
// tejzpr-go-swisseph's examples, specialised to the Gregorian calendar.
func JulianDay(t time.Time) float64 {
	t = t.UTC()
	y, m, d := t.Date()
	if m <= 2 {
		y--
		m += 12
	}
	a := y / 100
	b := 2 - a + a/4
	hour := float64(t.Hour()) + float64(t.Minute())/60 + (float64(t.Second())+float64(t.Nanosecond())/1e9)/3600
	jd := math.Floor(365.25*float64(y+4716)) + math.Floor(30.6001*float64(m+1)) + float64(d) + hour/24 + float64(b) - 1524.5
	return jd
}

// J2000Centuries returns the number of Julian centuries since J2000.0 for t,
// the standard argument to low-precision nutation/precession series.
func J2000Centuries(t time.Time) float64 {
	return (JulianDay(t) - julianDay0) / 36525
}

// GMST returns Greenwich Mean Sidereal Time in radians for t, using the
// IAU 1982 polynomial (the low-precision series also used by swisseph's
// sidtime wrapper), reduced into [0, 2π).
func GMST(t time.Time) float64 {
	jd := JulianDay(t)
	// Julian centuries since J2000.0 at the preceding 0h UT.
	tUT := (math.Floor(jd-0.5) + 0.5 - julianDay0) / 36525
	// Seconds of GMST at 0h UT, IAU 1982 expression.
	secs := 24110.54841 + 8640184.812866*tUT + 0.093104*tUT*tUT - 6.2e-6*tUT*tUT*tUT
	// Add the sidereal-to-solar rate scaled fractional day.
	fracDay := jd - math.Floor(jd-0.5) - 0.5
	secs += fracDay * 86400 * 1.00273790935
	const secondsPerDay = 86400.0
	frac := math.Mod(secs, secondsPerDay)
	if frac < 0 {
		frac += secondsPerDay
	}
	return frac / secondsPerDay * 2 * math.Pi
}
