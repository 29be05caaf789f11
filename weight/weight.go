// Package weight implements WeightFactors (spec §4.6/§6 scoring
// coefficients) and the MultiScheduling parameter-sweep worker pool of
// spec §5. The fan-out/fan-in pattern — independent per-worker state,
// merged through one writer lock — is grounded on busoc/assist's
// single-writer-lock digest merge (alliop.go's io.Writer funnel) and on
// golang.org/x/sync/errgroup, present in the FengXuebin-gnssgo dependency
// graph, for bounded concurrent fan-out.
package weight

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Factors are the named scalar scoring coefficients of spec §4.6's table
// and §6's config surface (weight_*).
type Factors struct {
	NumberOfObservations float64
	AverageStations      float64
	AverageSources       float64
	Duration             float64
	SkyCoverage          float64
	LowElevation         float64
	IdleTime             float64
	Closures             float64
}

// Terms are one candidate's per-factor values, combined by Score as a
// weighted sum (spec §4.6: "Each candidate's score is a weighted sum of
// terms"). Score applies no normalization of its own; subcon's scoring
// scales some terms into [0, 1], but AverageStations (a sum of
// per-station observation deficits) has no upper bound.
type Terms struct {
	NumberOfObservations float64
	AverageStations      float64
	AverageSources       float64
	Duration             float64
	SkyCoverage          float64
	LowElevation         float64
	IdleTime             float64
	Closures             float64
}

// Score computes the weighted sum spec §4.6 defines as a candidate's
// cheap/rigorous score.
func (f Factors) Score(t Terms) float64 {
	return f.NumberOfObservations*t.NumberOfObservations +
		f.AverageStations*t.AverageStations +
		f.AverageSources*t.AverageSources +
		f.Duration*t.Duration +
		f.SkyCoverage*t.SkyCoverage +
		f.LowElevation*t.LowElevation +
		f.IdleTime*t.IdleTime +
		f.Closures*t.Closures
}

// AllZero reports whether every weight is zero — a ConfigInconsistency
// condition spec §7 requires be caught at setup.
func (f Factors) AllZero() bool {
	return f.NumberOfObservations == 0 && f.AverageStations == 0 &&
		f.AverageSources == 0 && f.Duration == 0 && f.SkyCoverage == 0 &&
		f.LowElevation == 0 && f.IdleTime == 0 && f.Closures == 0
}

// Job is one independent (Factors, seed) combination of a multi-scheduling
// parameter sweep (spec §5: "the runner produces K independent
// (Scheduler, Parameters) jobs").
type Job struct {
	ID      int
	Factors Factors
	Seed    uint64
}

// Summary is one job's output statistics row, written to the merged CSV.
// Field order matches the CSV column order.
type Summary struct {
	JobID                int
	Seed                 uint64
	NumberOfScans         int
	NumberOfObservations  int
	ObservingSeconds      float64
	IdleSeconds           float64
}

func (s Summary) row() []string {
	return []string{
		strconv.Itoa(s.JobID),
		strconv.FormatUint(s.Seed, 10),
		strconv.Itoa(s.NumberOfScans),
		strconv.Itoa(s.NumberOfObservations),
		strconv.FormatFloat(s.ObservingSeconds, 'f', 3, 64),
		strconv.FormatFloat(s.IdleSeconds, 'f', 3, 64),
	}
}

var csvHeader = []string{"job_id", "seed", "number_of_scans", "number_of_observations", "observing_seconds", "idle_seconds"}

// RunFunc runs one job to completion. Each invocation must own its
// complete copy of the data model (spec §5: "no shared mutable state
// across workers"); the Scheduler package supplies the concrete
// implementation.
type RunFunc func(ctx context.Context, job Job) (Summary, error)

// MultiScheduling fans a batch of Jobs out across a bounded worker pool
// and merges their Summaries into one CSV, serialized by a single writer
// lock (spec §5: "the only coordination is a final merge ... serialized by
// a single writer lock").
type MultiScheduling struct {
	Jobs    []Job
	Workers int // <= 0 means len(Jobs)
	Run     RunFunc
}

// Execute runs every job, at most Workers at a time. Once all jobs have
// finished it sorts the Summaries by JobID and writes them to w as CSV.
// On a job error it returns the first error and writes nothing; jobs
// launched after the failure still run, with a cancelled context.
func (m MultiScheduling) Execute(ctx context.Context, w io.Writer) ([]Summary, error) {
	workers := m.Workers
	if workers <= 0 || workers > len(m.Jobs) {
		workers = len(m.Jobs)
	}
	if workers == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	summaries := make([]Summary, 0, len(m.Jobs))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)
	for _, job := range m.Jobs {
		job := job
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			sum, err := m.Run(gctx, job)
			if err != nil {
				return fmt.Errorf("job %d: %w", job.ID, err)
			}
			mu.Lock()
			summaries = append(summaries, sum)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].JobID < summaries[j].JobID })
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return summaries, err
	}
	for _, s := range summaries {
		if err := cw.Write(s.row()); err != nil {
			return summaries, err
		}
	}
	cw.Flush()
	return summaries, cw.Error()
}
