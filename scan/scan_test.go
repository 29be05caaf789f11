package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vievs/vlbisched/antenna"
	"github.com/vievs/vlbisched/astro"
	"github.com/vievs/vlbisched/source"
	"github.com/vievs/vlbisched/station"
)

func wrapFullCircle() antenna.CableWrap {
	return antenna.CableWrap{NeutralLow: -100, NeutralHigh: 100, HasNeutral: true}
}

func newTestStation(id station.ID, name string, x, y, z float64) *station.Station {
	st := station.New(id, name)
	st.PositionXYZ = astro.Vector3{x, y, z}
	st.Kinematics = antenna.Kinematics{
		Wrap:   wrapFullCircle(),
		First:  antenna.AxisRate{RatePerSec: 1},
		Second: antenna.AxisRate{RatePerSec: 1},
	}
	st.Wait = station.WaitTimes{
		FieldSystem: 0,
		Preob:       0,
		Midob:       30 * time.Second,
		Postob:      0,
	}
	st.SEFD = map[string]station.SEFDModel{"X": {Base: 500}}
	st.SetEvents(nil)
	return st
}

// activateParams installs params as the source's active Parameters by
// giving it a single event dated at the zero time and then walking the
// cursor forward, since Parameters are only ever changed through the
// event-timeline mechanism.
func activateParams(src *source.Source, params source.Parameters) {
	src.SetEvents([]source.Event{{ApplyAt: time.Time{}, Params: params}})
	src.CheckForNewEvent(time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC))
}

func newTestSource() *source.Source {
	src := source.New(1, "3C273", 1.0, 0.3)
	src.Flux["X"] = source.BandFluxModel{Kind: source.SpectralIndex, ReferenceFlux: 5.0, ReferenceBaseline: 1e7, Index: 0}
	params := source.DefaultParameters()
	params.MinSNR = map[string]float64{"X": 10}
	params.MinScan = 10
	params.MaxScan = 600
	activateParams(src, params)
	return src
}

func newTestContext(stations map[station.ID]*station.Station, src *source.Source) *Context {
	return &Context{
		Stations:   stations,
		Sources:    map[source.ID]*source.Source{src.ID: src},
		Tables:     astro.BuildTables(time.Time{}, time.Time{}.Add(time.Hour), time.Minute),
		Efficiency: 0.9,
		RecordRate: map[string]float64{"X": 2e9},
	}
}

func TestNewBuildsValidTwoStationScan(t *testing.T) {
	st1 := newTestStation(1, "A", 0, 0, 0)
	st2 := newTestStation(2, "B", 1e7, 0, 0)
	src := newTestSource()
	ctx := newTestContext(map[station.ID]*station.Station{1: st1, 2: st2}, src)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candidates := map[station.ID]antenna.PointingVector{
		1: {Az: 1, El: 1},
		2: {Az: 1, El: 1},
	}
	prevEnd := map[station.ID]time.Time{1: at, 2: at}

	sc, ok := New(1, src, candidates, prevEnd, 2, Single, ctx)
	require.True(t, ok)
	assert.Len(t, sc.Stations, 2)
	require.Len(t, sc.Observations, 1)
	assert.Greater(t, sc.Observations[0].Duration, time.Duration(0))
	assert.True(t, sc.Validate(2))
}

func TestNewFailsBelowMinStationsFloor(t *testing.T) {
	st1 := newTestStation(1, "A", 0, 0, 0)
	src := newTestSource()
	ctx := newTestContext(map[station.ID]*station.Station{1: st1}, src)

	at := time.Now()
	candidates := map[station.ID]antenna.PointingVector{1: {Az: 1, El: 1}}
	prevEnd := map[station.ID]time.Time{1: at}

	_, ok := New(1, src, candidates, prevEnd, 2, Single, ctx)
	assert.False(t, ok)
}

func TestFixedScanDurationSkipsSNRPasses(t *testing.T) {
	st1 := newTestStation(1, "A", 0, 0, 0)
	st2 := newTestStation(2, "B", 1e7, 0, 0)
	src := newTestSource()
	params := src.Parameters()
	params.FixedScanDuration = 45 * time.Second
	activateParams(src, params)

	ctx := newTestContext(map[station.ID]*station.Station{1: st1, 2: st2}, src)
	at := time.Now()
	candidates := map[station.ID]antenna.PointingVector{1: {Az: 1, El: 1}, 2: {Az: 1, El: 1}}
	prevEnd := map[station.ID]time.Time{1: at, 2: at}

	sc, ok := New(1, src, candidates, prevEnd, 2, Single, ctx)
	require.True(t, ok)
	for _, end := range sc.Times.ScanEnd {
		start := sc.Times.EndOfIdle[sc.Stations[0]]
		assert.Equal(t, 45*time.Second, end.Sub(start))
	}
}

func TestNewFillinSkipsBaselineConstruction(t *testing.T) {
	st1 := newTestStation(1, "A", 0, 0, 0)
	src := newTestSource()
	ctx := newTestContext(map[station.ID]*station.Station{1: st1}, src)

	at := time.Now()
	sc, ok := NewFillin(1, src, 1, antenna.PointingVector{Az: 1, El: 1}, at, 20*time.Second, ctx)
	require.True(t, ok)
	assert.Empty(t, sc.Observations)
	assert.Len(t, sc.Stations, 1)
}

func TestMaxEndIsLatestAcrossStations(t *testing.T) {
	s := &Scan{Times: newScanTimes()}
	t1 := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	s.Times.ScanEnd[1] = t1
	s.Times.ScanEnd[2] = t2
	assert.True(t, s.MaxEnd().Equal(t2))
}

// TestPerBaselineDurationPassDropsBaselineWhenAnyBandExceedsMaxScan exercises
// spec §4.5 step 4's "take the maximum over bands, then clamp once" rule: a
// baseline whose S-band duration alone would need clamping must be dropped
// entirely, not kept on the cheaper X-band duration.
func TestPerBaselineDurationPassDropsBaselineWhenAnyBandExceedsMaxScan(t *testing.T) {
	st1 := newTestStation(1, "A", 0, 0, 0)
	st2 := newTestStation(2, "B", 1e7, 0, 0)
	st1.SEFD["S"] = station.SEFDModel{Base: 500}
	st2.SEFD["S"] = station.SEFDModel{Base: 500}

	src := newTestSource()
	src.Flux["S"] = source.BandFluxModel{Kind: source.SpectralIndex, ReferenceFlux: 5.0, ReferenceBaseline: 1e7, Index: 0}
	params := src.Parameters()
	params.MinSNR["S"] = 10000 // unreachable within max_scan at this flux/SEFD
	activateParams(src, params)

	ctx := newTestContext(map[station.ID]*station.Station{1: st1, 2: st2}, src)
	ctx.RecordRate["S"] = 2e9

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candidates := map[station.ID]antenna.PointingVector{1: {Az: 1, El: 1}, 2: {Az: 1, El: 1}}
	prevEnd := map[station.ID]time.Time{1: at, 2: at}

	_, ok := New(1, src, candidates, prevEnd, 2, Single, ctx)
	assert.False(t, ok)
}
