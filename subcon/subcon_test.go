package subcon

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func wrapFullCircle() antenna.CableWrap {
	return antenna.CableWrap{NeutralLow: -100, NeutralHigh: 100, HasNeutral: true}
}

// newTestStation accepts any elevation the simple az/el model returns
// (MinElevation/mask both set far below the physical [-pi/2, pi/2] range)
// so fixtures don't depend on the sign of a computed pointing.
func newTestStation(id station.ID, name string, x, y, z float64) *station.Station {
	st := station.New(id, name)
	st.PositionXYZ = astro.Vector3{x, y, z}
	st.Kinematics = antenna.Kinematics{
		Wrap:         wrapFullCircle(),
		First:        antenna.AxisRate{RatePerSec: 1},
		Second:       antenna.AxisRate{RatePerSec: 1},
		MinElevation: -10,
		Mask:         antenna.HorizonMask{Az: []float64{0, 2 * 3.141592653589793}, El: []float64{-10, -10}},
	}
	st.Wait = station.WaitTimes{Midob: 30 * time.Second}
	st.SEFD = map[string]station.SEFDModel{"X": {Base: 500}}
	params := station.DefaultParameters()
	params.MinElevation = -10
	activateStationParams(st, params)
	return st
}

func activateSourceParams(src *source.Source, params source.Parameters) {
	src.SetEvents([]source.Event{{ApplyAt: time.Time{}, Params: params}})
	src.CheckForNewEvent(time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC))
}

func activateStationParams(st *station.Station, params station.Parameters) {
	st.SetEvents([]station.Event{{ApplyAt: time.Time{}, Params: params}})
	st.CheckForNewEvent(time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC))
}

func newTestSourceAt(id source.ID, name string, ra, dec float64) *source.Source {
	src := source.New(id, name, ra, dec)
	src.Flux["X"] = source.BandFluxModel{Kind: source.SpectralIndex, ReferenceFlux: 5.0, ReferenceBaseline: 1e7, Index: 0}
	params := source.DefaultParameters()
	params.MinSNR = map[string]float64{"X": 10}
	params.MinScan = 10
	params.MaxScan = 600
	activateSourceParams(src, params)
	return src
}

type fakeNetwork struct {
	ids []station.ID
}

func (f fakeNetwork) Stations() []station.ID { return f.ids }
func (f fakeNetwork) MaxObservations() int   { n := len(f.ids); return n * (n - 1) / 2 }

func newTestEnvironment(stations map[station.ID]*station.Station, sources map[source.ID]*source.Source) *Environment {
	groups := map[station.ID]*skycoverage.Group{}
	for id := range stations {
		groups[id] = skycoverage.NewGroup(int(id), 0.1, 3600)
	}
	tables := astro.BuildTables(time.Time{}, time.Time{}.Add(24*time.Hour), time.Minute)
	return &Environment{
		Stations:  stations,
		Sources:   sources,
		SkyGroups: groups,
		Tables:    tables,
		System:    timesys.New(time.Time{}, time.Time{}.Add(24*time.Hour)),
		Sink:      diagnostics.Discard{},
		ScanCtx: &scan.Context{
			Stations:   stations,
			Sources:    sources,
			Tables:     tables,
			Efficiency: 0.9,
			RecordRate: map[string]float64{"X": 2e9},
		},
	}
}

func TestBuildReturnsSingleWinnerFromTwoStationNetwork(t *testing.T) {
	st1 := newTestStation(1, "A", 0, 0, 0)
	st2 := newTestStation(2, "B", 1e7, 0, 0)
	stations := map[station.ID]*station.Station{1: st1, 2: st2}

	src := newTestSourceAt(1, "3C273", 1.0, 0.3)
	sources := map[source.ID]*source.Source{1: src}

	env := newTestEnvironment(stations, sources)
	cfg := Config{MinNumberOfStations: 2, Weights: weightsFavoringObservations()}

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	win, err := Build(env, cfg, at, fakeNetwork{ids: []station.ID{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, Single, win.Kind)
	require.NotNil(t, win.A)
	assert.Len(t, win.A.Stations, 2)
}

func TestBuildReturnsNoneWhenNoSourceIsEligible(t *testing.T) {
	st1 := newTestStation(1, "A", 0, 0, 0)
	st2 := newTestStation(2, "B", 1e7, 0, 0)
	stations := map[station.ID]*station.Station{1: st1, 2: st2}

	src := newTestSourceAt(1, "3C273", 1.0, 0.3)
	params := src.Parameters()
	params.Available = false
	activateSourceParams(src, params)
	sources := map[source.ID]*source.Source{1: src}

	env := newTestEnvironment(stations, sources)
	cfg := Config{MinNumberOfStations: 2, Weights: weightsFavoringObservations()}

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	win, err := Build(env, cfg, at, fakeNetwork{ids: []station.ID{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, None, win.Kind)
}

func TestBuildReturnsNoneWhenBelowMinStations(t *testing.T) {
	st1 := newTestStation(1, "A", 0, 0, 0)
	stations := map[station.ID]*station.Station{1: st1}

	src := newTestSourceAt(1, "3C273", 1.0, 0.3)
	sources := map[source.ID]*source.Source{1: src}

	env := newTestEnvironment(stations, sources)
	cfg := Config{MinNumberOfStations: 2, Weights: weightsFavoringObservations()}

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	win, err := Build(env, cfg, at, fakeNetwork{ids: []station.ID{1}})
	require.NoError(t, err)
	assert.Equal(t, None, win.Kind)
}

func TestBuildFindsWinnerWithSubnettingEnabled(t *testing.T) {
	st1 := newTestStation(1, "A", 0, 0, 0)
	st2 := newTestStation(2, "B", 1e7, 0, 0)
	st3 := newTestStation(3, "C", 0, 1e7, 0)
	st4 := newTestStation(4, "D", 1e7, 1e7, 0)
	stations := map[station.ID]*station.Station{1: st1, 2: st2, 3: st3, 4: st4}

	srcA := newTestSourceAt(1, "3C273", 1.0, 0.3)
	srcB := newTestSourceAt(2, "3C279", 2.5, -0.2)
	sources := map[source.ID]*source.Source{1: srcA, 2: srcB}

	env := newTestEnvironment(stations, sources)
	cfg := Config{
		MinNumberOfStations:     2,
		Subnetting:              true,
		SubnettingMinAngle:      0,
		SubnettingMaxAngle:      3.2,
		SubnettingTimeTolerance: time.Hour,
		Weights:                 weightsFavoringObservations(),
	}

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	win, err := Build(env, cfg, at, fakeNetwork{ids: []station.ID{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.NotEqual(t, None, win.Kind)
}

// weightsFavoringObservations drives the winner toward whichever candidate
// records the most observations, the cheapest score term to reason about
// in a hand-built fixture.
func weightsFavoringObservations() weight.Factors {
	return weight.Factors{NumberOfObservations: 1}
}

func TestParallacticModeBonusSaturatesOnEmptyHistory(t *testing.T) {
	p := NewParallacticMode(2.0, 5)
	assert.InDelta(t, 2.0*math.Pi, p.bonus(1, 0.4), 1e-9)
}

func TestParallacticModeBonusShrinksNearRecordedAngle(t *testing.T) {
	p := NewParallacticMode(1.0, 5)
	p.Record(1, 0.5)
	assert.InDelta(t, 0, p.bonus(1, 0.5), 1e-9)
	assert.InDelta(t, math.Pi, p.bonus(1, 0.5+math.Pi), 1e-9)
}

func TestParallacticModeHistoryIsTrimmedToLimit(t *testing.T) {
	p := NewParallacticMode(1.0, 2)
	p.Record(1, 0.1)
	p.Record(1, 0.2)
	p.Record(1, 0.3)
	assert.Equal(t, []float64{0.2, 0.3}, p.history[1])
}

func TestParallacticModeHistoryIsPerStation(t *testing.T) {
	p := NewParallacticMode(1.0, 5)
	p.Record(1, 0.5)
	assert.InDelta(t, math.Pi, p.bonus(2, 0.5), 1e-9)
}

func TestCircularDistanceWrapsAtPi(t *testing.T) {
	assert.InDelta(t, 0.2, circularDistance(0.1, -0.1), 1e-9)
	assert.InDelta(t, 0, circularDistance(0.1, 0.1+2*math.Pi), 1e-9)
}
