package weight

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactorsScoreIsWeightedSum(t *testing.T) {
	f := Factors{NumberOfObservations: 2, Duration: 3}
	terms := Terms{NumberOfObservations: 1, Duration: 1, SkyCoverage: 100}
	assert.InDelta(t, 5.0, f.Score(terms), 1e-9)
}

func TestFactorsAllZero(t *testing.T) {
	assert.True(t, Factors{}.AllZero())
	assert.False(t, Factors{Duration: 0.1}.AllZero())
}

func TestMultiSchedulingExecuteRunsAllJobsConcurrentlyBounded(t *testing.T) {
	jobs := []Job{{ID: 1}, {ID: 2}, {ID: 3}}
	m := MultiScheduling{
		Jobs:    jobs,
		Workers: 2,
		Run: func(ctx context.Context, job Job) (Summary, error) {
			return Summary{JobID: job.ID, Seed: job.Seed, NumberOfScans: job.ID * 10}, nil
		},
	}

	var buf bytes.Buffer
	summaries, err := m.Execute(context.Background(), &buf)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	for i, s := range summaries {
		assert.Equal(t, i+1, s.JobID)
	}

	r := csv.NewReader(&buf)
	rows, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, csvHeader, rows[0])
	assert.Len(t, rows, 1+len(jobs))
}

func TestMultiSchedulingExecutePropagatesFirstError(t *testing.T) {
	boom := assert.AnError
	m := MultiScheduling{
		Jobs:    []Job{{ID: 1}, {ID: 2}},
		Workers: 2,
		Run: func(ctx context.Context, job Job) (Summary, error) {
			if job.ID == 2 {
				return Summary{}, boom
			}
			return Summary{JobID: job.ID}, nil
		},
	}
	var buf bytes.Buffer
	_, err := m.Execute(context.Background(), &buf)
	assert.ErrorIs(t, err, boom)
}
