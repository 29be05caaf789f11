package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vievs/vlbisched/diagnostics"
)

const validDoc = `
[session]
start = 2026-03-01T00:00:00Z
end = 2026-03-01T06:00:00Z
subnetting = true
min_number_of_stations_per_subcon = 2

[weights]
weight_number_of_observations = 1.0

[[stations]]
name = "WETTZELL"
latitude_deg = 49.1
longitude_deg = 12.9
axis = "AZEL"

[[stations]]
name = "ONSALA60"
latitude_deg = 57.4
longitude_deg = 11.9
axis = "AZEL"

[[sources]]
name = "3C273"
ra_deg = 187.3
dec_deg = 2.05

[scan_sequence]
cadence = 2

[scan_sequence.targets]
"0" = ["3C273"]
`

func TestDecodeValidDocument(t *testing.T) {
	cfg, err := Decode(strings.NewReader(validDoc))
	require.NoError(t, err)
	assert.Len(t, cfg.Stations, 2)
	assert.Len(t, cfg.Sources, 1)
	assert.Equal(t, "3C273", cfg.Sources[0].Name)
	require.NotNil(t, cfg.Sequence)
	assert.Equal(t, []string{"3C273"}, cfg.Sequence.Targets["0"])
}

func TestValidateRejectsNonPositiveSessionDuration(t *testing.T) {
	cfg, err := Decode(strings.NewReader(validDoc))
	require.NoError(t, err)
	cfg.Session.End = cfg.Session.Start
	err = Validate(cfg)
	require.Error(t, err)
	assert.True(t, diagnostics.Is(err, diagnostics.ConfigInconsistency))
}

func TestValidateRejectsAllZeroWeights(t *testing.T) {
	cfg, err := Decode(strings.NewReader(validDoc))
	require.NoError(t, err)
	cfg.Weights = Weights{}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownScanSequenceTarget(t *testing.T) {
	cfg, err := Decode(strings.NewReader(validDoc))
	require.NoError(t, err)
	cfg.Sequence.Targets["0"] = []string{"DOES-NOT-EXIST"}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsEmptyStations(t *testing.T) {
	cfg, err := Decode(strings.NewReader(validDoc))
	require.NoError(t, err)
	cfg.Stations = nil
	assert.Error(t, Validate(cfg))
}

func TestDecodeParallacticModeAndCalibratorBlock(t *testing.T) {
	doc := validDoc + `
[session.parallactic_mode]
distance_scaling = 0.5
history_limit = 10

[session.calibrator_block]
cadence = 5
sources = ["3C273"]
`
	cfg, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.NotNil(t, cfg.Session.ParallacticMode)
	assert.Equal(t, 0.5, cfg.Session.ParallacticMode.DistanceScaling)
	require.NotNil(t, cfg.Session.CalibratorBlock)
	assert.Equal(t, []string{"3C273"}, cfg.Session.CalibratorBlock.Sources)
}

func TestValidateRejectsUnknownCalibratorBlockSource(t *testing.T) {
	doc := validDoc + `
[session.calibrator_block]
cadence = 5
sources = ["DOES-NOT-EXIST"]
`
	cfg, err := Decode(strings.NewReader(doc))
	require.Error(t, err)
	assert.Nil(t, cfg)
}
