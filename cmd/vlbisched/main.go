// Command vlbisched runs the scan-selection scheduler end to end: decode a
// TOML session document, build the station/source/network state, run the
// scheduler loop, and print the resulting scan sequence. The flag handling
// and log setup mirror busoc/assist/main.go's init(); the tabular schedule
// printout mirrors busoc/assist/list.go's ListEntries fixed-width columns.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/vievs/vlbisched/astro"
	"github.com/vievs/vlbisched/config"
	"github.com/vievs/vlbisched/diagnostics"
	"github.com/vievs/vlbisched/network"
	"github.com/vievs/vlbisched/scan"
	"github.com/vievs/vlbisched/scheduler"
	"github.com/vievs/vlbisched/station"
	"github.com/vievs/vlbisched/subcon"
	"github.com/vievs/vlbisched/timesys"
)

const (
	Version = "0.1.0"
	Program = "vlbisched"
)

const helpText = `vlbisched: VLBI scan-selection scheduler

Usage: vlbisched [options] <session.toml>

session.toml describes the observing session: the time window, the
stations and sources taking part, the scoring weights, and the optional
scan-sequence cadence. See SPEC_FULL.md for the document layout.
`

func init() {
	log.SetOutput(os.Stderr)
	log.SetPrefix(fmt.Sprintf("[%s-%s] ", Program, Version))
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, helpText)
		os.Exit(2)
	}
}

func main() {
	var (
		version = flag.Bool("version", false, "print version and exit")
		csvPath = flag.String("csv", "", "write the committed scan sequence to this CSV file")
	)
	flag.Parse()

	if *version {
		fmt.Fprintf(os.Stderr, "%s-%s\n", Program, Version)
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
	}

	if err := run(flag.Arg(0), *csvPath); err != nil {
		log.Println(err)
		os.Exit(int(diagnostics.CodeOf(err)) % 256)
	}
}

func run(path, csvPath string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	sys := timesys.New(cfg.Session.Start, cfg.Session.End)
	tables := astro.BuildTables(cfg.Session.Start, cfg.Session.End, time.Minute)

	stations, err := buildStations(cfg)
	if err != nil {
		return err
	}
	sources, err := buildSources(cfg)
	if err != nil {
		return err
	}

	ids := make([]station.ID, 0, len(stations))
	for id := range stations {
		ids = append(ids, id)
	}
	net := network.New(ids)

	scanCtx := &scan.Context{
		Stations:   stations,
		Sources:    sources,
		Tables:     tables,
		Efficiency: 0.9,
		RecordRate: map[string]float64{"X": 2e9, "S": 2e9},
		Network:    net,
	}

	subconCfg := subcon.Config{
		Subnetting:              cfg.Session.Subnetting,
		MinNumberOfStations:     cfg.Session.MinNumberOfStationsSubcon,
		SubnettingMinAngle:      cfg.Session.SubnettingMinAngleDeg * math.Pi / 180,
		SubnettingMaxAngle:      cfg.Session.SubnettingMaxAngleDeg * math.Pi / 180,
		SubnettingTimeTolerance: time.Duration(cfg.Session.SubnettingToleranceSec) * time.Second,
		Weights:                toFactors(cfg.Weights),
		MaxInfluenceDistance:    cfg.Session.MaxInfluenceDistanceRad,
		MaxInfluenceTime:        cfg.Session.MaxInfluenceTimeSec,
	}
	if pm := cfg.Session.ParallacticMode; pm != nil {
		subconCfg.Parallactic = subcon.NewParallacticMode(pm.DistanceScaling, pm.HistoryLimit)
	}

	sink := diagnostics.NewLogSink(fmt.Sprintf("[%s-%s] ", Program, Version))
	sched := scheduler.New(sys, net, stations, sources, tables, sink, subconCfg, scanCtx)
	sched.FillinDuringSelection = cfg.Session.FillinDuringSelection
	sched.FillinAPosteriori = cfg.Session.FillinAPosteriori
	if cfg.Sequence != nil {
		sched.Sequence = &scheduler.Sequence{Cadence: cfg.Sequence.Cadence, Targets: resolveTargets(cfg.Sequence.Targets, sources)}
	}
	if cb := cfg.Session.CalibratorBlock; cb != nil {
		sched.Calibrator = &scheduler.CalibratorBlock{Cadence: cb.Cadence, SourceIDs: resolveSourceNames(cb.Sources, sources)}
	}
	sched.SetHighImpact(nil)

	scans, err := sched.Run()
	if err != nil {
		return err
	}

	printSchedule(scans, stations, sources)

	if csvPath != "" {
		return writeScheduleCSV(csvPath, scans, stations, sources)
	}
	return nil
}
