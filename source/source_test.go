package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vievs/vlbisched/astro"
)

func TestFluxModelTabulatedInterpolates(t *testing.T) {
	m := BandFluxModel{
		Kind: Tabulated,
		Points: []FluxPoint{
			{Log10Baseline: 6, FluxJansky: 2.0},
			{Log10Baseline: 8, FluxJansky: 1.0},
		},
	}
	// baseline length 1e7 -> log10 == 7, halfway between the two points.
	got := m.evaluate(1e7)
	assert.InDelta(t, 1.5, got, 1e-6)
}

func TestFluxModelTabulatedClampsAtEdges(t *testing.T) {
	m := BandFluxModel{
		Kind:   Tabulated,
		Points: []FluxPoint{{Log10Baseline: 6, FluxJansky: 2.0}, {Log10Baseline: 8, FluxJansky: 1.0}},
	}
	assert.Equal(t, 2.0, m.evaluate(1))
	assert.Equal(t, 1.0, m.evaluate(1e12))
}

func TestFluxModelSpectralIndexClosedForm(t *testing.T) {
	m := BandFluxModel{Kind: SpectralIndex, ReferenceFlux: 4.0, ReferenceBaseline: 1e6, Index: -1}
	got := m.evaluate(2e6)
	assert.InDelta(t, 2.0, got, 1e-9)
}

func TestIsStrongEnoughUsesMaxSupremumAcrossBands(t *testing.T) {
	s := New(1, "3C273", 0, 0)
	s.Flux["X"] = BandFluxModel{Kind: Tabulated, Points: []FluxPoint{{Log10Baseline: 6, FluxJansky: 0.5}}}
	s.Flux["S"] = BandFluxModel{Kind: Tabulated, Points: []FluxPoint{{Log10Baseline: 6, FluxJansky: 3.0}}}

	ok, max := s.IsStrongEnough(Parameters{MinFlux: 1})
	assert.True(t, ok)
	assert.InDelta(t, 3.0, max, 1e-9)

	ok, _ = s.IsStrongEnough(Parameters{MinFlux: 10})
	assert.False(t, ok)
}

func TestEligibleAtRespectsMinRepeatCadence(t *testing.T) {
	s := New(1, "3C273", 0, 0)
	s.SetEvents(nil)
	s.active.MinRepeat = time.Hour
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, s.EligibleAt(base)) // never observed yet

	s.RecordScan(base, 2)
	assert.False(t, s.EligibleAt(base.Add(30*time.Minute)))
	assert.True(t, s.EligibleAt(base.Add(time.Hour)))
}

func TestEligibleAtFalseWhenUnavailable(t *testing.T) {
	s := New(1, "3C273", 0, 0)
	s.SetAvailable(false)
	assert.False(t, s.EligibleAt(time.Now().Truncate(0)))
}

func TestRecordScanNeverDecreasesLastScanTime(t *testing.T) {
	s := New(1, "3C273", 0, 0)
	later := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	s.RecordScan(later, 1)
	s.RecordScan(earlier, 1)

	assert.True(t, s.Stats.LastScanTime.Equal(later))
	assert.Equal(t, 2, s.Stats.NumberOfScans)
	assert.Equal(t, 2, s.Stats.NumberOfObservations)
}

func TestSunDistanceUsesTablesSunPosition(t *testing.T) {
	start := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	tables := astro.BuildTables(start, start.Add(time.Hour), time.Minute)
	s := New(1, "ANTISOLAR", 0, 0)
	d := s.SunDistance(start, tables)
	assert.GreaterOrEqual(t, d, 0.0)
}

func TestNewPrecomputesUnitVectorWithUnitNorm(t *testing.T) {
	s := New(1, "3C273", 1.2, -0.3)
	assert.InDelta(t, 1.0, s.Unit.Norm(), 1e-12)
}
