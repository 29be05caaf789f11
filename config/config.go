// Package config is the TOML configuration surface of spec §6, decoded
// with github.com/midbel/toml exactly the way busoc/assist's settings.go
// decodes its own TOML documents, and validated with
// github.com/go-playground/validator/v10 (grounded on de-bkg-gognss's use
// of the same package) before the engine ever runs.
package config

import (
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/midbel/toml"

	"github.com/vievs/vlbisched/diagnostics"
)

// StationConfig is one [[stations]] TOML block.
type StationConfig struct {
	Name      string  `toml:"name" validate:"required"`
	Latitude  float64 `toml:"latitude_deg" validate:"gte=-90,lte=90"`
	Longitude float64 `toml:"longitude_deg" validate:"gte=-180,lte=180"`
	X         float64 `toml:"x"`
	Y         float64 `toml:"y"`
	Z         float64 `toml:"z"`
	Axis      string  `toml:"axis" validate:"oneof=AZEL HADEC XYEW EQUATORIAL"`

	// SkyCoverageGroup names the shared coverage account this station
	// belongs to (spec §4.4: collocated twin antennas share one account).
	// Left empty, the station is its own group.
	SkyCoverageGroup string `toml:"sky_coverage_group"`

	// MinSNR is the per-band minimum SNR floor this station's receiver
	// equipment imposes (spec §3 Station.min_snr, keyed by band name).
	MinSNR map[string]float64 `toml:"min_snr"`
}

// SourceConfig is one [[sources]] TOML block.
type SourceConfig struct {
	Name string  `toml:"name" validate:"required"`
	RA   float64 `toml:"ra_deg" validate:"gte=0,lte=360"`
	Dec  float64 `toml:"dec_deg" validate:"gte=-90,lte=90"`

	// MinSNR is the per-band minimum SNR floor required to detect this
	// source (spec §3 Source.min_snr, keyed by band name).
	MinSNR map[string]float64 `toml:"min_snr"`
}

// ScanSequence is the optional cadence override of spec §6
// ("scan_sequence: {cadence, targets[mod]→[source_id]}"). Targets is keyed
// by the decimal string form of the modulus rather than int, since TOML
// table keys are strings; config.go's own consumers convert back to int.
type ScanSequence struct {
	Cadence int                 `toml:"cadence" validate:"gte=0"`
	Targets map[string][]string `toml:"targets"`
}

// Weights mirrors weight.Factors as TOML fields (weight_* keys, spec §6).
type Weights struct {
	NumberOfObservations float64 `toml:"weight_number_of_observations"`
	AverageStations      float64 `toml:"weight_average_stations"`
	AverageSources       float64 `toml:"weight_average_sources"`
	Duration             float64 `toml:"weight_duration"`
	SkyCoverage          float64 `toml:"weight_sky_coverage"`
	LowElevation         float64 `toml:"weight_low_elevation"`
	IdleTime             float64 `toml:"weight_idle_time"`
	Closures             float64 `toml:"weight_closures"`
}

// Session is the global time window and session-level switches of §6.
type Session struct {
	Start time.Time `toml:"start" validate:"required"`
	End   time.Time `toml:"end" validate:"required,gtfield=Start"`

	Subnetting                bool   `toml:"subnetting"`
	FillinDuringSelection     bool   `toml:"fillin_during_selection"`
	FillinAPosteriori         bool   `toml:"fillin_a_posteriori"`
	MinNumberOfStationsSubcon int    `toml:"min_number_of_stations_per_subcon" validate:"gte=2"`
	SubnettingMinAngleDeg     float64 `toml:"subnetting_min_angle_deg"`
	SubnettingMaxAngleDeg     float64 `toml:"subnetting_max_angle_deg"`
	SubnettingToleranceSec    int     `toml:"subnetting_time_tolerance_sec"`
	MaxInfluenceTimeSec       float64 `toml:"max_influence_time_sec"`
	MaxInfluenceDistanceRad   float64 `toml:"max_influence_distance_rad"`
	Seed                      uint64  `toml:"seed"`

	ParallacticMode *ParallacticConfig `toml:"parallactic_mode"`
	CalibratorBlock *CalibratorConfig  `toml:"calibrator_block"`
}

// ParallacticConfig configures subcon's ParallacticAngleBlock-derived
// scoring bonus (spec's supplemented parallactic-angle-coverage mode).
type ParallacticConfig struct {
	DistanceScaling float64 `toml:"distance_scaling"`
	HistoryLimit    int     `toml:"history_limit"`
}

// CalibratorConfig configures the scheduler's periodic calibrator-block
// cadence (spec's supplemented calibrator-block mode).
type CalibratorConfig struct {
	Cadence int      `toml:"cadence" validate:"omitempty,gte=1"`
	Sources []string `toml:"sources"`
}

// Config is the top-level decoded document.
type Config struct {
	Session  Session          `toml:"session"`
	Weights  Weights          `toml:"weights"`
	Stations []StationConfig  `toml:"stations"`
	Sources  []SourceConfig   `toml:"sources"`
	Sequence *ScanSequence    `toml:"scan_sequence"`
}

// Load decodes a TOML config document from path the way
// busoc/assist.settings.go decodes its fileset documents.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, diagnostics.ConfigError("open config %s: %v", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a TOML config document from r and validates it.
func Decode(r io.Reader) (*Config, error) {
	var c Config
	if err := toml.NewDecoder(r).Decode(&c); err != nil {
		return nil, diagnostics.ConfigError("decode config: %v", err)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = validator.New()

// Validate runs struct-tag validation plus the cross-field checks spec §7
// names explicitly (ConfigInconsistency: "a referenced source id does not
// exist, weights are all zero, session duration <= 0").
func Validate(c *Config) error {
	if err := validate.Struct(c); err != nil {
		return diagnostics.ConfigError("config validation failed: %v", err)
	}
	if !c.Session.End.After(c.Session.Start) {
		return diagnostics.ConfigError("session duration must be positive")
	}
	if len(c.Stations) == 0 {
		return diagnostics.ConfigError("at least one station is required")
	}
	if len(c.Sources) == 0 {
		return diagnostics.ConfigError("at least one source is required")
	}
	w := c.Weights
	if w.NumberOfObservations == 0 && w.AverageStations == 0 && w.AverageSources == 0 &&
		w.Duration == 0 && w.SkyCoverage == 0 && w.LowElevation == 0 &&
		w.IdleTime == 0 && w.Closures == 0 {
		return diagnostics.ConfigError("at least one scoring weight must be non-zero")
	}
	names := map[string]bool{}
	for _, s := range c.Sources {
		names[s.Name] = true
	}
	if c.Sequence != nil {
		for _, targets := range c.Sequence.Targets {
			for _, name := range targets {
				if !names[name] {
					return diagnostics.ConfigError("scan_sequence target %q is not a known source", name)
				}
			}
		}
	}
	if c.Session.CalibratorBlock != nil {
		for _, name := range c.Session.CalibratorBlock.Sources {
			if !names[name] {
				return diagnostics.ConfigError("calibrator_block source %q is not a known source", name)
			}
		}
	}
	return nil
}
