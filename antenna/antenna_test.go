package antenna

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAxisRateTravelTime(t *testing.T) {
	r := AxisRate{RatePerSec: 0.1, ConstantOverhead: 0.05, SettleTime: 2}
	assert.Equal(t, 0.0, r.travelTime(0.05))
	got := r.travelTime(0.15)
	assert.InDelta(t, (0.15-0.05)/0.1+2, got, 1e-9)
}

func TestAxisRateZeroRateIsInfeasible(t *testing.T) {
	r := AxisRate{RatePerSec: 0}
	assert.True(t, math.IsInf(r.travelTime(1), 1))
}

func wrapFullCircle() CableWrap {
	return CableWrap{NeutralLow: -2 * math.Pi, NeutralHigh: 2 * math.Pi, HasNeutral: true}
}

func TestCableWrapUnwrapNearPrefersClosestAmbiguity(t *testing.T) {
	w := wrapFullCircle()
	pv := PointingVector{Az: 0.1}
	out, err := w.UnwrapNear(-2*math.Pi+0.2, pv)
	assert.NoError(t, err)
	assert.InDelta(t, 0.1-2*math.Pi, out.Az, 1e-9)
}

func TestCableWrapInfeasibleWhenNoLegalSector(t *testing.T) {
	w := CableWrap{} // no sector configured at all
	_, err := w.UnwrapNear(0, PointingVector{Az: 1})
	assert.ErrorIs(t, err, ErrInfeasibleSlew)
}

func TestHorizonMaskInterpolatesLinearly(t *testing.T) {
	m := HorizonMask{Az: []float64{0, math.Pi}, El: []float64{0.1, 0.3}}
	got := m.ElevationLimit(math.Pi / 2)
	assert.InDelta(t, 0.2, got, 1e-9)
}

func TestKinematicsSlewTimeZeroOnFirstScan(t *testing.T) {
	k := Kinematics{FirstScan: true, Wrap: wrapFullCircle()}
	d, err := k.SlewTime(PointingVector{}, PointingVector{Az: 1, El: 1})
	assert.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestKinematicsSlewTimeTakesMaxOfAxes(t *testing.T) {
	k := Kinematics{
		Wrap:   wrapFullCircle(),
		First:  AxisRate{RatePerSec: 1},
		Second: AxisRate{RatePerSec: 10},
	}
	current := PointingVector{Az: 0, El: 0}
	target := PointingVector{Az: 1, El: 1}
	d, err := k.SlewTime(current, target)
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9) // azimuth axis dominates at rate 1 rad/s
}

func TestKinematicsVisibleRejectsBelowHorizonMask(t *testing.T) {
	k := Kinematics{
		Wrap: wrapFullCircle(),
		Mask: HorizonMask{Az: []float64{0, 2 * math.Pi}, El: []float64{0.2, 0.2}},
	}
	assert.False(t, k.Visible(PointingVector{Az: 1, El: 0.1}, 0))
	assert.True(t, k.Visible(PointingVector{Az: 1, El: 0.3}, 0))
}

func TestKinematicsVisibleRejectsOutsideWrapSector(t *testing.T) {
	k := Kinematics{Wrap: CableWrap{CCWLow: 0, CCWHigh: 1, HasCCW: true}}
	assert.False(t, k.Visible(PointingVector{Az: 2, El: 1}, 0))
	assert.True(t, k.Visible(PointingVector{Az: 0.5, El: 1}, 0))
}
