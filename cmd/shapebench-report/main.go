package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/shapebench/internal/aggregator"
	"github.com/m-lab/shapebench/internal/classifier"
	"github.com/m-lab/shapebench/internal/cli"
	"github.com/m-lab/shapebench/internal/correlator"
	"github.com/m-lab/shapebench/internal/persistence"
	"github.com/m-lab/shapebench/internal/plan"
	"github.com/m-lab/shapebench/internal/theory"
	"github.com/m-lab/shapebench/pkg/experiment/model"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

// defaultRunLogs are looked up under <input-dir>/experiment when no -runlog
// is given.
var defaultRunLogs = []string{
	"test_results.log",
	"results2.log",
	"results3.log",
	"results4.log",
	"results5.log",
}

var (
	flagInputDir  = flag.String("input-dir", ".", "Directory containing the experiment/ and theory/ logs")
	flagResults   = flag.String("results", "", "Driver results directory: aggregate every run directory under it")
	flagOutput    = flag.String("output", "parsed_results.json", "JSON report to write")
	flagCSVDir    = flag.String("csvdir", "", "If set, write one CSV table per group to this directory")
	flagDataDir   = flag.String("datadir", "", "If set, archive the correlated records as JSON under this directory")
	flagMatrix    = flag.String("matrix", "", "YAML test matrix the runs used (default: built-in matrix)")
	flagRanges    = flag.String("ranges", "", "Test id ranges, e.g. FileSize=0-5,Bandwidth=6-9,Delay=10-15 (default: derived from the matrix)")
	flagTheory    = flag.String("theory", "", "Theory log (default: <input-dir>/theory/theo_results.log if present, otherwise computed)")
	flagTolerance = flag.Float64("tolerance", spec.DefaultTolerance, "Distance under which a theoretical sample is an exact match")
	flagSummary   = flag.Bool("summary", false, "Print a summary of the report")
	flagCSV       = flag.String("csv", "", "Convert this completion log to CSV on stdout and exit")

	flagRunLogs   = flagx.StringArray{}
	flagParamLogs = flagx.StringArray{}

	flagLogLevel = cli.LogLevel(flag.CommandLine)
)

func init() {
	flag.Var(&flagRunLogs, "runlog", "Completion log of a run (can be repeated)")
	flag.Var(&flagParamLogs, "paramlog", "Parameter log of the run given by the -runlog at the same position (can be repeated)")
}

func sources() []aggregator.Source {
	logs := []string(flagRunLogs)
	if len(logs) == 0 && *flagResults != "" {
		src, err := aggregator.DiscoverRuns(*flagResults)
		rtx.Must(err, "Failed to list runs in %s", *flagResults)
		if len(src) == 0 {
			log.Fatal("No runs found", "results", *flagResults)
		}
		log.Info("Found runs", "results", *flagResults, "runs", len(src))
		return src
	}
	if len(logs) == 0 {
		for _, name := range defaultRunLogs {
			logs = append(logs, filepath.Join(*flagInputDir, "experiment", name))
		}
	}
	params := []string(flagParamLogs)
	src := make([]aggregator.Source, 0, len(logs))
	for i, l := range logs {
		s := aggregator.Source{CompletionLog: l}
		if i < len(params) {
			s.ParamLog = params[i]
		}
		src = append(src, s)
	}
	return src
}

func theorySeries() []model.TheoreticalSeries {
	p := *flagTheory
	if p == "" {
		p = filepath.Join(*flagInputDir, "theory", "theo_results.log")
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			log.Info("No theory log, computing the theoretical series")
			return theory.DefaultConfig().Series()
		}
	}
	fp, err := os.Open(p)
	rtx.Must(err, "Failed to open theory log")
	defer fp.Close()
	series, err := theory.ParseLog(fp)
	rtx.Must(err, "Failed to parse theory log %s", p)
	log.Info("Loaded theory log", "path", p, "series", len(series))
	return series
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")
	cli.SetupLogging(flagLogLevel.Value)

	if *flagCSV != "" {
		fp, err := os.Open(*flagCSV)
		rtx.Must(err, "Failed to open %s", *flagCSV)
		defer fp.Close()
		rtx.Must(classifier.ConvertCSV(fp, os.Stdout), "Failed to convert %s", *flagCSV)
		return
	}

	matrix := plan.Default()
	var err error
	if *flagMatrix != "" {
		matrix, err = plan.Load(*flagMatrix)
		rtx.Must(err, "Failed to load matrix %s", *flagMatrix)
	}
	sweeps, err := matrix.Sweeps()
	rtx.Must(err, "Invalid matrix")
	ranges := plan.Ranges(sweeps)
	if *flagRanges != "" {
		ranges, err = classifier.ParseRanges(*flagRanges)
		rtx.Must(err, "Invalid ranges")
	}
	declared := plan.Declared(sweeps)
	for _, rg := range ranges {
		if n := len(declared[rg.Group]); n != rg.Len() {
			log.Warn("Range size differs from the declared values", "group", rg.Group,
				"range", rg.String(), "declared", n)
		}
	}

	agg, err := aggregator.Aggregate(sources(), aggregator.Config{
		Ranges:   ranges,
		Declared: declared,
	})
	rtx.Must(err, "Failed to aggregate run logs")

	report := correlator.BuildReport(correlator.Input{
		Points:      agg.Points,
		Series:      theorySeries(),
		Tolerance:   *flagTolerance,
		Sources:     agg.Sources,
		Missing:     agg.Missing,
		Uncovered:   agg.Uncovered,
		Ranges:      ranges,
		Diagnostics: agg.Diagnostics,
	})
	rtx.Must(persistence.WriteJSONFile(*flagOutput, report), "Failed to write %s", *flagOutput)
	log.Info("Saved parsed data", "path", *flagOutput, "groups", len(report.Groups),
		"missing", len(agg.Missing), "uncovered", len(agg.Uncovered),
		"diagnostics", len(agg.Diagnostics))

	if *flagCSVDir != "" {
		paths, err := correlator.ExportCSV(report, *flagCSVDir)
		rtx.Must(err, "Failed to export CSV tables")
		log.Info("Exported CSV tables", "paths", paths)
	}
	if *flagDataDir != "" {
		var records []model.CorrelatedRecord
		for _, g := range model.Groups() {
			if gr, ok := report.Groups[g]; ok {
				records = append(records, gr.Records...)
			}
		}
		df, err := persistence.WriteDataFile(*flagDataDir, "shapebench", "correlated",
			uuid.NewString(), records)
		rtx.Must(err, "Failed to archive correlated records")
		log.Info("Archived correlated records", "path", df.Path)
	}
	if *flagSummary {
		correlator.WriteSummary(os.Stdout, report)
	}
}
