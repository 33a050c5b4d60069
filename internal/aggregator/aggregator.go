// Package aggregator merges the completion logs of repeated runs into one
// set of durations per test point.
//
// Test ids restart at 0 in every run, so records are keyed by group and
// parameter value instead. The point of a record is taken from the run's
// parameter log when available. Otherwise it is derived from the record's
// position in its group: the n-th id of a group range is the n-th declared
// value of that group.
package aggregator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/m-lab/shapebench/internal/classifier"
	"github.com/m-lab/shapebench/internal/persistence"
	"github.com/m-lab/shapebench/pkg/experiment/model"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
	"github.com/montanaflynn/stats"
)

// ErrUnmatched is the error wrapped by the diagnostics of records that
// cannot be mapped to a declared test point.
var ErrUnmatched = errors.New("record does not match any test point")

// Source is one run.
type Source struct {
	// Name identifies the run in diagnostics. Defaults to CompletionLog.
	Name string
	// CompletionLog is the path of the raw completion log.
	CompletionLog string
	// ParamLog is the optional path of the run's parameter log.
	ParamLog string
}

func (s Source) name() string {
	if s.Name != "" {
		return s.Name
	}
	return s.CompletionLog
}

// DiscoverRuns returns one Source per run directory under resultsDir, as
// written by the driver. Sources are ordered by the modification time of
// their completion log.
func DiscoverRuns(resultsDir string) ([]Source, error) {
	logs, err := filepath.Glob(filepath.Join(resultsDir, "*", spec.ClientLogName))
	if err != nil {
		return nil, err
	}
	type run struct {
		src Source
		mod int64
	}
	runs := make([]run, 0, len(logs))
	for _, l := range logs {
		info, err := os.Stat(l)
		if err != nil {
			return nil, err
		}
		dir := filepath.Dir(l)
		src := Source{Name: filepath.Base(dir), CompletionLog: l}
		if p := filepath.Join(dir, spec.ParamLogName); fileExists(p) {
			src.ParamLog = p
		}
		runs = append(runs, run{src: src, mod: info.ModTime().UnixNano()})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].mod != runs[j].mod {
			return runs[i].mod < runs[j].mod
		}
		return runs[i].src.Name < runs[j].src.Name
	})
	sources := make([]Source, 0, len(runs))
	for _, r := range runs {
		sources = append(sources, r.src)
	}
	return sources, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Config is the configuration of Aggregate.
type Config struct {
	// Ranges is the id partition of the runs without a parameter log.
	Ranges classifier.Ranges
	// Declared lists the points of each group in dispatch order.
	Declared map[model.TestGroup][]model.TestPoint
}

// Result is the output of Aggregate.
type Result struct {
	// Points are sorted by group, then by ascending parameter value.
	Points []model.AggregatedPoint
	// Sources lists every requested source, in order.
	Sources []string
	// Missing lists the sources whose completion log does not exist.
	Missing []string
	// Uncovered lists the declared points no source contributed to.
	Uncovered []model.TestPoint
	// Diagnostics lists the records excluded from aggregation.
	Diagnostics []model.Diagnostic
}

type accumulator struct {
	point     model.TestPoint
	durations []float64
	runs      map[int]bool
}

type aggregation struct {
	config Config
	acc    map[model.PointKey]*accumulator
	res    *Result
}

// Aggregate reads every source and groups the observed durations by test
// point. A source whose completion log does not exist contributes zero
// records and is reported in Result.Missing. Other read errors are returned.
func Aggregate(sources []Source, config Config) (*Result, error) {
	if len(config.Ranges) > 0 {
		if err := config.Ranges.Validate(); err != nil {
			return nil, err
		}
	}
	a := &aggregation{
		config: config,
		acc:    map[model.PointKey]*accumulator{},
		res:    &Result{Sources: []string{}, Points: []model.AggregatedPoint{}},
	}
	for i, src := range sources {
		a.res.Sources = append(a.res.Sources, src.name())
		var err error
		if src.ParamLog != "" {
			err = a.addJoined(i, src)
		} else {
			err = a.addPositional(i, src)
		}
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("Log source not found", "source", src.name(), "error", err)
			a.res.Missing = append(a.res.Missing, src.name())
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	a.finish(len(sources))
	return a.res, nil
}

func (a *aggregation) add(run int, p model.TestPoint, d float64) {
	k := p.Key()
	acc, ok := a.acc[k]
	if !ok {
		acc = &accumulator{point: p, runs: map[int]bool{}}
		a.acc[k] = acc
	}
	acc.durations = append(acc.durations, d)
	acc.runs[run] = true
}

func (a *aggregation) diagnose(src string, l classifier.Line, format string, args ...interface{}) {
	msg := fmt.Sprintf("%v: ", ErrUnmatched) + fmt.Sprintf(format, args...)
	a.res.Diagnostics = append(a.res.Diagnostics, model.Diagnostic{
		Source: src, Line: l.Number, TestID: l.TestID, Message: msg,
	})
	log.Warn("Excluding record", "source", src, "line", l.Number, "id", l.TestID,
		"reason", msg)
}

// addPositional classifies the completion log with the configured ranges
// and maps each record to the declared point at its offset in the range.
func (a *aggregation) addPositional(run int, src Source) error {
	if len(a.config.Ranges) == 0 {
		return fmt.Errorf("%s: no parameter log and no id ranges", src.name())
	}
	cl, err := classifier.ClassifyFile(src.CompletionLog, a.config.Ranges)
	if err != nil {
		return err
	}
	a.res.Diagnostics = append(a.res.Diagnostics, cl.Diagnostics...)
	for _, c := range cl.Records {
		rg, _ := a.config.Ranges.Lookup(c.Group)
		offset := int(c.TestID - rg.First)
		declared := a.config.Declared[c.Group]
		if offset >= len(declared) {
			a.diagnose(src.name(), c.Line, "%s has only %d declared values",
				c.Group, len(declared))
			continue
		}
		a.add(run, declared[offset], c.DurationMS)
	}
	return nil
}

// addJoined joins the completion log with the parameter log by test id.
func (a *aggregation) addJoined(run int, src Source) error {
	rows, err := persistence.ReadParamLog(src.ParamLog)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("Parameter log not found, using id ranges",
				"source", src.name(), "paramlog", src.ParamLog)
			return a.addPositional(run, src)
		}
		return fmt.Errorf("reading %s: %w", src.ParamLog, err)
	}
	// Ids restart in every run, so a parameter log holding several runs
	// cannot be joined unambiguously. The first row of an id wins.
	byID := make(map[uint64]persistence.ParamRow, len(rows))
	runIDs := map[string]bool{}
	for _, r := range rows {
		runIDs[r.RunID] = true
		if _, ok := byID[r.TestID]; !ok {
			byID[r.TestID] = r
		}
	}
	if len(runIDs) > 1 {
		msg := fmt.Sprintf("%s holds %d runs, only the first row of each test id is used",
			src.ParamLog, len(runIDs))
		a.res.Diagnostics = append(a.res.Diagnostics, model.Diagnostic{
			Source: src.name(), Message: msg,
		})
		log.Warn("Parameter log mixes runs", "source", src.name(), "paramlog", src.ParamLog,
			"runs", len(runIDs))
	}

	fp, err := os.Open(src.CompletionLog)
	if err != nil {
		return err
	}
	defer fp.Close()
	lines, _, err := classifier.Parse(fp)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src.CompletionLog, err)
	}
	seen := map[uint64]bool{}
	for _, l := range lines {
		if seen[l.TestID] {
			a.diagnose(src.name(), l, "%v", classifier.ErrDuplicateTestID)
			continue
		}
		seen[l.TestID] = true
		row, ok := byID[l.TestID]
		if !ok {
			a.diagnose(src.name(), l, "%v: %d is not in %s",
				classifier.ErrUnknownTestID, l.TestID, src.ParamLog)
			continue
		}
		g, err := model.ParseGroup(row.Group)
		if err != nil {
			a.diagnose(src.name(), l, "%v", err)
			continue
		}
		a.add(run, model.TestPoint{
			Group:          g,
			ParameterValue: row.ParameterValue,
			ParameterUnit:  row.ParameterUnit,
			FileSize:       row.FileSize,
			Bandwidth:      row.Bandwidth,
			Delay:          row.Delay,
		}, l.DurationMS)
	}
	return nil
}

func (a *aggregation) finish(expected int) {
	for _, acc := range a.acc {
		a.res.Points = append(a.res.Points, summarize(acc, expected))
	}
	sort.Slice(a.res.Points, func(i, j int) bool {
		return less(a.res.Points[i].Key(), a.res.Points[j].Key())
	})
	for _, g := range model.Groups() {
		for _, p := range a.config.Declared[g] {
			if _, ok := a.acc[p.Key()]; !ok {
				a.res.Uncovered = append(a.res.Uncovered, p)
			}
		}
	}
	for _, p := range a.res.Uncovered {
		log.Warn("Test point not covered by any run", "group", p.Group,
			"value", p.ParameterValue, "unit", p.ParameterUnit)
	}
	for _, p := range a.res.Points {
		if !p.Complete() {
			log.Warn("Incomplete test point", "group", p.Group,
				"value", p.ParameterValue, "runs", p.Runs, "expected", p.ExpectedRuns)
		}
	}
}

func less(a, b model.PointKey) bool {
	if a.Group != b.Group {
		return a.Group.Number() < b.Group.Number()
	}
	return a.ParameterValue < b.ParameterValue
}

func summarize(acc *accumulator, expected int) model.AggregatedPoint {
	d := stats.Float64Data(acc.durations)
	p := model.AggregatedPoint{
		Group:          acc.point.Group,
		ParameterValue: acc.point.ParameterValue,
		ParameterUnit:  acc.point.ParameterUnit,
		Durations:      acc.durations,
		Runs:           len(acc.runs),
		ExpectedRuns:   expected,
	}
	// The stats functions only fail on empty input, which cannot happen
	// here.
	p.Mean, _ = stats.Mean(d)
	p.Median, _ = stats.Median(d)
	p.StdDev, _ = stats.StandardDeviation(d)
	p.Min, _ = stats.Min(d)
	p.Max, _ = stats.Max(d)
	return p
}
