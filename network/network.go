// Package network owns the baseline-indexed state spec §3a describes: the
// aggregate view of which station pairs exist, which are ignored, which
// are required, and their cumulative statistics. Grounded on
// FengXuebin-gnssgo's Nav/Obs structs, which own satellite/baseline-
// indexed arrays alongside the per-entity state rather than scattering
// pair bookkeeping across individual stations.
package network

import (
	"sort"

	"github.com/vievs/vlbisched/station"
)

// Baseline identifies an unordered station pair, always stored with the
// smaller id first so it can be used as a map key regardless of the order
// the pair was formed in.
type Baseline [2]station.ID

// NewBaseline normalizes (a, b) into canonical order.
func NewBaseline(a, b station.ID) Baseline {
	if a > b {
		a, b = b, a
	}
	return Baseline{a, b}
}

// Stats are the cumulative per-baseline totals the statistics CSV writer
// consumes (spec §6: "Statistics per station, baseline, and source are
// derivable from this vector").
type Stats struct {
	NumberOfObservations int
	ObservingSeconds     float64
}

// Network is the Scheduler-owned aggregate of spec §3: list of stations
// (held elsewhere, by id) plus the baseline-indexed ignore/required sets
// and statistics this package owns.
type Network struct {
	stationIDs []station.ID

	ignored  map[Baseline]bool
	required map[Baseline]bool
	stats    map[Baseline]*Stats
}

// New builds a Network over the given station ids.
func New(ids []station.ID) *Network {
	n := &Network{
		stationIDs: append([]station.ID(nil), ids...),
		ignored:    map[Baseline]bool{},
		required:   map[Baseline]bool{},
		stats:      map[Baseline]*Stats{},
	}
	sort.Slice(n.stationIDs, func(i, j int) bool { return n.stationIDs[i] < n.stationIDs[j] })
	return n
}

// Stations returns the station ids in stable (sorted) order.
func (n *Network) Stations() []station.ID {
	return append([]station.ID(nil), n.stationIDs...)
}

// Baselines returns every unordered pair of the network's stations, the
// "N(N-1)/2 over full network" denominator spec §4.6's observations term
// needs.
func (n *Network) Baselines() []Baseline {
	var out []Baseline
	for i := 0; i < len(n.stationIDs); i++ {
		for j := i + 1; j < len(n.stationIDs); j++ {
			out = append(out, NewBaseline(n.stationIDs[i], n.stationIDs[j]))
		}
	}
	return out
}

// MaxObservations is N(N-1)/2 for the current station count.
func (n *Network) MaxObservations() int {
	k := len(n.stationIDs)
	return k * (k - 1) / 2
}

// Ignore marks a baseline as globally ignored (spec §3: "ignore_baselines
// (set of IDs)").
func (n *Network) Ignore(a, b station.ID) {
	n.ignored[NewBaseline(a, b)] = true
}

// IsIgnored reports whether the baseline is globally ignored.
func (n *Network) IsIgnored(a, b station.ID) bool {
	return n.ignored[NewBaseline(a, b)]
}

// Require marks a baseline as required; this is distinct from spec §3's
// per-entity "required_stations" (a required *station set*) — it models a
// network-wide required *baseline*: when a required baseline's duration
// exceeds MaxScan, scan's per-baseline duration pass clamps it to MaxScan
// instead of dropping the baseline.
func (n *Network) Require(a, b station.ID) {
	n.required[NewBaseline(a, b)] = true
}

// IsRequired reports whether the baseline was declared required.
func (n *Network) IsRequired(a, b station.ID) bool {
	return n.required[NewBaseline(a, b)]
}

// RecordObservation folds one committed observation's statistics into the
// owning baseline's Stats.
func (n *Network) RecordObservation(a, b station.ID, durationSeconds float64) {
	bl := NewBaseline(a, b)
	s, ok := n.stats[bl]
	if !ok {
		s = &Stats{}
		n.stats[bl] = s
	}
	s.NumberOfObservations++
	s.ObservingSeconds += durationSeconds
}

// StatsSnapshot returns a snapshot of every baseline's accumulated statistics, the
// form a per-baseline statistics report is built from.
func (n *Network) StatsSnapshot() map[Baseline]Stats {
	out := make(map[Baseline]Stats, len(n.stats))
	for k, v := range n.stats {
		out[k] = *v
	}
	return out
}
