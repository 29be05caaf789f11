package network

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vievs/vlbisched/station"
)

func TestNewBaselineCanonicalOrder(t *testing.T) {
	assert.Equal(t, Baseline{1, 2}, NewBaseline(2, 1))
	assert.Equal(t, Baseline{1, 2}, NewBaseline(1, 2))
}

func TestMaxObservationsIsNChooseTwo(t *testing.T) {
	n := New([]station.ID{1, 2, 3, 4})
	assert.Equal(t, 6, n.MaxObservations())
	assert.Len(t, n.Baselines(), 6)
}

func TestIgnoreAndRequireAreSymmetric(t *testing.T) {
	n := New([]station.ID{1, 2})
	n.Ignore(1, 2)
	assert.True(t, n.IsIgnored(2, 1))
	n.Require(1, 2)
	assert.True(t, n.IsRequired(2, 1))
}

func TestRecordObservationAccumulates(t *testing.T) {
	n := New([]station.ID{1, 2})
	n.RecordObservation(1, 2, 30)
	n.RecordObservation(2, 1, 60)

	snap := n.StatsSnapshot()
	s := snap[NewBaseline(1, 2)]
	assert.Equal(t, 2, s.NumberOfObservations)
	assert.InDelta(t, 90.0, s.ObservingSeconds, 1e-9)
}

func TestStationsReturnsSortedCopy(t *testing.T) {
	n := New([]station.ID{3, 1, 2})
	ids := n.Stations()
	assert.Equal(t, []station.ID{1, 2, 3}, ids)
	ids[0] = 99
	assert.Equal(t, []station.ID{1, 2, 3}, n.Stations()) // defensive copy
}
