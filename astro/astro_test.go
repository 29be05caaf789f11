package astro

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVector3Ops(t *testing.T) {
	a := Vector3{1, 2, 3}
	b := Vector3{4, 5, 6}
	assert.Equal(t, Vector3{5, 7, 9}, a.Add(b))
	assert.Equal(t, Vector3{-3, -3, -3}, a.Sub(b))
	assert.InDelta(t, 32.0, a.Dot(b), 1e-9)
	assert.InDelta(t, math.Sqrt(14), a.Norm(), 1e-9)
	scaled := a.Scale(2)
	assert.Equal(t, Vector3{2, 4, 6}, scaled)
}

func TestUnitVectorHasUnitNorm(t *testing.T) {
	u := UnitVector(1.234, -0.5)
	assert.InDelta(t, 1.0, u.Norm(), 1e-12)
}

func TestAngularDistanceZeroForSameDirection(t *testing.T) {
	u := UnitVector(0.3, 0.4)
	assert.InDelta(t, 0.0, AngularDistance(u, u), 1e-9)
}

func TestAngularDistanceOppositeIsPi(t *testing.T) {
	u := UnitVector(0, 0)
	v := UnitVector(math.Pi, 0)
	assert.InDelta(t, math.Pi, AngularDistance(u, v), 1e-6)
}

func TestBuildTablesCoversSessionWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)
	tables := BuildTables(start, end, 10*time.Minute)

	for _, at := range []time.Time{start, start.Add(3 * time.Hour), end.Add(-time.Second)} {
		x, y, s := tables.Nutation(at)
		assert.False(t, math.IsNaN(x))
		assert.False(t, math.IsNaN(y))
		assert.False(t, math.IsNaN(s))
	}
}

func TestTablesGMSTMatchesTimesys(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tables := BuildTables(start, start.Add(time.Hour), time.Minute)
	g := tables.GMST(start)
	assert.GreaterOrEqual(t, g, 0.0)
	assert.Less(t, g, 2*math.Pi)
}

func TestSunPositionWithinBounds(t *testing.T) {
	start := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	tables := BuildTables(start, start.Add(time.Hour), time.Minute)
	ra, dec := tables.SunPosition(start)
	assert.GreaterOrEqual(t, ra, 0.0)
	assert.Less(t, ra, 2*math.Pi)
	assert.LessOrEqual(t, math.Abs(dec), 0.5)
}
