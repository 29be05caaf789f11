package main

import (
	"math"
	"strconv"

	"github.com/vievs/vlbisched/antenna"
	"github.com/vievs/vlbisched/astro"
	"github.com/vievs/vlbisched/config"
	"github.com/vievs/vlbisched/diagnostics"
	"github.com/vievs/vlbisched/source"
	"github.com/vievs/vlbisched/station"
	"github.com/vievs/vlbisched/weight"
)

// axisOf maps a config axis tag onto the antenna package's closed AxisType
// set (config.StationConfig.Axis validates against the same four values).
func axisOf(tag string) antenna.AxisType {
	switch tag {
	case "HADEC":
		return antenna.HaDec
	case "XYEW":
		return antenna.XYEW
	case "EQUATORIAL":
		return antenna.Equatorial
	default:
		return antenna.AzEl
	}
}

// buildStations constructs one station.Station per [[stations]] block, with
// a permissive default Kinematics (the per-axis rates any real deployment
// tunes in TOML are left for a future stations-kinematics config table;
// SPEC_FULL.md's station.Kinematics wiring is exercised here end to end).
func buildStations(cfg *config.Config) (map[station.ID]*station.Station, error) {
	out := map[station.ID]*station.Station{}
	for i, sc := range cfg.Stations {
		id := station.ID(i + 1)
		st := station.New(id, sc.Name)
		st.Latitude = sc.Latitude * deg2rad
		st.Longitude = sc.Longitude * deg2rad
		st.PositionXYZ = astro.Vector3{sc.X, sc.Y, sc.Z}
		st.Kinematics = antenna.Kinematics{
			Axis:   axisOf(sc.Axis),
			First:  antenna.AxisRate{RatePerSec: 0.03, SettleTime: 2},
			Second: antenna.AxisRate{RatePerSec: 0.02, SettleTime: 2},
			Wrap: antenna.CableWrap{
				NeutralLow: -2 * math.Pi, NeutralHigh: 2 * math.Pi, HasNeutral: true,
			},
			Mask:         antenna.HorizonMask{Az: []float64{0, 2 * math.Pi}, El: []float64{5 * deg2rad, 5 * deg2rad}},
			MinElevation: 5 * deg2rad,
			FirstScan:    true,
		}
		st.CoverageGroup = sc.SkyCoverageGroup
		params := station.DefaultParameters()
		if len(sc.MinSNR) > 0 {
			params.MinSNR = sc.MinSNR
		}
		st.SetEvents([]station.Event{{ApplyAt: cfg.Session.Start, Params: params}})
		st.CheckForNewEvent(cfg.Session.Start)
		out[id] = st
	}
	if len(out) == 0 {
		return nil, diagnostics.ConfigError("no stations built from config")
	}
	return out, nil
}

// buildSources constructs one source.Source per [[sources]] block.
func buildSources(cfg *config.Config) (map[source.ID]*source.Source, error) {
	out := map[source.ID]*source.Source{}
	for i, sc := range cfg.Sources {
		id := source.ID(i + 1)
		src := source.New(id, sc.Name, sc.RA*deg2rad, sc.Dec*deg2rad)
		params := source.DefaultParameters()
		if len(sc.MinSNR) > 0 {
			params.MinSNR = sc.MinSNR
		}
		src.SetEvents([]source.Event{{ApplyAt: cfg.Session.Start, Params: params}})
		src.CheckForNewEvent(cfg.Session.Start)
		out[id] = src
	}
	if len(out) == 0 {
		return nil, diagnostics.ConfigError("no sources built from config")
	}
	return out, nil
}

// resolveTargets maps a scan_sequence's string-keyed targets onto source
// ids, converting each modulus key back to int and skipping any name
// config.Validate didn't already guarantee exists.
func resolveTargets(targets map[string][]string, sources map[source.ID]*source.Source) map[int][]source.ID {
	byName := map[string]source.ID{}
	for id, s := range sources {
		byName[s.Name] = id
	}
	out := map[int][]source.ID{}
	for key, names := range targets {
		mod, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		var ids []source.ID
		for _, n := range names {
			if id, ok := byName[n]; ok {
				ids = append(ids, id)
			}
		}
		out[mod] = ids
	}
	return out
}

// resolveSourceNames maps a plain list of source names onto ids, skipping
// any name config.Validate didn't already guarantee exists.
func resolveSourceNames(names []string, sources map[source.ID]*source.Source) []source.ID {
	byName := map[string]source.ID{}
	for id, s := range sources {
		byName[s.Name] = id
	}
	var out []source.ID
	for _, n := range names {
		if id, ok := byName[n]; ok {
			out = append(out, id)
		}
	}
	return out
}

func toFactors(w config.Weights) weight.Factors {
	return weight.Factors{
		NumberOfObservations: w.NumberOfObservations,
		AverageStations:      w.AverageStations,
		AverageSources:       w.AverageSources,
		Duration:             w.Duration,
		SkyCoverage:          w.SkyCoverage,
		LowElevation:         w.LowElevation,
		IdleTime:             w.IdleTime,
		Closures:             w.Closures,
	}
}

const deg2rad = math.Pi / 180
