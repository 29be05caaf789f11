package station

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vievs/vlbisched/antenna"
)

func TestDefaultParametersPermissive(t *testing.T) {
	p := DefaultParameters()
	assert.True(t, p.Available)
	assert.True(t, p.AvailableForFillin)
	assert.True(t, math.IsInf(p.MaxScan, 1))
}

func TestCheckForNewEventAppliesInOrderAndReportsHardBreak(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := New(1, "WETTZELL")

	soft := DefaultParameters()
	soft.Weight = 2
	hard := DefaultParameters()
	hard.Available = false

	st.SetEvents([]Event{
		{ApplyAt: base.Add(time.Hour), Soft: true, Params: soft},
		{ApplyAt: base, Soft: true, Params: DefaultParameters()}, // out of order on purpose
		{ApplyAt: base.Add(2 * time.Hour), Soft: false, Params: hard},
	})

	assert.False(t, st.CheckForNewEvent(base.Add(30*time.Minute)))
	assert.Equal(t, DefaultParameters(), st.Parameters())

	assert.False(t, st.CheckForNewEvent(base.Add(90*time.Minute)))
	assert.Equal(t, 2.0, st.Parameters().Weight)

	assert.True(t, st.CheckForNewEvent(base.Add(3*time.Hour)))
	assert.False(t, st.Parameters().Available)
}

func TestNextEventAfterReturnsZeroWhenExhausted(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := New(1, "WETTZELL")
	st.SetEvents([]Event{{ApplyAt: base, Params: DefaultParameters()}})
	assert.True(t, st.NextEventAfter(base).IsZero())
}

func TestNextEventAfterFindsNextBoundary(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := New(1, "WETTZELL")
	st.SetEvents([]Event{
		{ApplyAt: base, Params: DefaultParameters()},
		{ApplyAt: base.Add(time.Hour), Params: DefaultParameters()},
	})
	assert.True(t, st.NextEventAfter(base).Equal(base.Add(time.Hour)))
}

func TestCalcAzElZenithOverlapsLatitude(t *testing.T) {
	st := New(1, "ONSALA")
	st.Latitude = 0.9
	st.Longitude = 0

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ra := 0.0
	dec := st.Latitude
	pv := st.CalcAzEl(Simple, nil, at, ra, dec)
	// a source at dec == latitude transits near zenith at some hour angle;
	// at an arbitrary hour angle it should at least be a valid finite pointing.
	assert.False(t, math.IsNaN(pv.Az))
	assert.False(t, math.IsNaN(pv.El))
	assert.LessOrEqual(t, pv.El, math.Pi/2+1e-9)
}

func TestSEFDModelAt(t *testing.T) {
	m := SEFDModel{Base: 500, ElevationPoly: []float64{0, 100}}
	assert.InDelta(t, 500, m.At(0), 1e-9)
	assert.InDelta(t, 600, m.At(1), 1e-9)
}

func TestCommitUpdatesCurrentPointingAndClearsFirstScan(t *testing.T) {
	st := New(1, "HOBART26")
	assert.True(t, st.FirstScan)
	at := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	st.Commit(antenna.PointingVector{Az: 1, El: 2}, at)
	assert.False(t, st.FirstScan)
	assert.Equal(t, 1.0, st.Current.Az)
	assert.Equal(t, 2.0, st.Current.El)
	assert.True(t, st.Current.Time.Equal(at))
}

func TestStatsRecordScanStartClampsQuarterHourIndex(t *testing.T) {
	var s Stats
	at := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	s.recordScanStart(at)
	assert.Equal(t, 1, s.ScanStartsByQuarterHour[95])
}
