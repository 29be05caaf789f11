package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/vievs/vlbisched/scan"
	"github.com/vievs/vlbisched/source"
	"github.com/vievs/vlbisched/station"
)

// earliestIdle is the common start time of a scan: the earliest EndOfIdle
// across its participating stations (spec §3: EndOfIdle == scan start,
// after shared preob alignment).
func earliestIdle(sc *scan.Scan) time.Time {
	var t time.Time
	first := true
	for _, st := range sc.Stations {
		v := sc.Times.EndOfIdle[st]
		if first || v.Before(t) {
			t, first = v, false
		}
	}
	return t
}

// printSchedule prints the committed scan sequence as a fixed-width table,
// the texture of busoc/assist/list.go's ListEntries printout adapted to
// scan/station/source columns instead of ROC/CER command columns.
func printSchedule(scans []*scan.Scan, stations map[station.ID]*station.Station, sources map[source.ID]*source.Source) {
	fmt.Printf("%4s | %-20s | %-20s | %-8s | %s", "#", "START", "SOURCE", "TYPE", "STATIONS")
	fmt.Println()
	for i, sc := range scans {
		start := earliestIdle(sc)
		ids := make([]string, 0, len(sc.Stations))
		for _, st := range sc.Stations {
			name := strconv.Itoa(int(st))
			if s, ok := stations[st]; ok {
				name = s.Name
			}
			ids = append(ids, name)
		}
		sort.Strings(ids)
		typ := "single"
		if sc.Type == scan.Subnetting {
			typ = "subnet"
		}
		srcName := strconv.Itoa(int(sc.SourceID))
		if s, ok := sources[sc.SourceID]; ok {
			srcName = s.Name
		}
		fmt.Printf("%4d | %-20s | %-20s | %-8s | %v", i+1, start.Format("2006-01-02T15:04:05"), srcName, typ, ids)
		fmt.Println()
	}
	fmt.Printf("total scans: %d", len(scans))
	fmt.Println()
}

// writeScheduleCSV writes the same rows as printSchedule to a CSV file,
// grounded on weight.MultiScheduling.Execute's encoding/csv usage.
func writeScheduleCSV(path string, scans []*scan.Scan, stations map[station.ID]*station.Station, sources map[source.ID]*source.Source) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"index", "start", "source", "type", "stations", "observations"}); err != nil {
		return err
	}
	for i, sc := range scans {
		start := earliestIdle(sc)
		ids := make([]string, 0, len(sc.Stations))
		for _, st := range sc.Stations {
			name := strconv.Itoa(int(st))
			if s, ok := stations[st]; ok {
				name = s.Name
			}
			ids = append(ids, name)
		}
		typ := "single"
		if sc.Type == scan.Subnetting {
			typ = "subnet"
		}
		srcName := strconv.Itoa(int(sc.SourceID))
		if s, ok := sources[sc.SourceID]; ok {
			srcName = s.Name
		}
		row := []string{
			strconv.Itoa(i + 1),
			start.Format("2006-01-02T15:04:05"),
			srcName,
			typ,
			fmt.Sprint(ids),
			strconv.Itoa(len(sc.Observations)),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
