package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/shapebench/internal/cli"
	"github.com/m-lab/shapebench/internal/persistence"
	"github.com/m-lab/shapebench/internal/theory"
	"github.com/m-lab/shapebench/internal/units"
)

var (
	flagOutput     = flag.String("output", "theory/theo_results.log", "Theory log to write")
	flagJSON       = flag.String("json", "", "If set, also write the series as JSON to this file")
	flagDataDir    = flag.String("datadir", "", "If set, archive the series as JSON under this directory")
	flagFileSize   = flag.String("baseline.file-size", "1MB", "File size held fixed by the bandwidth and delay sweeps")
	flagBandwidth  = flag.String("baseline.bandwidth", "10Mbps", "Bandwidth held fixed by the size and delay sweeps")
	flagDelay      = flag.String("baseline.delay", "10ms", "Delay held fixed by the size and bandwidth sweeps")
	flagSizeCount  = flag.Int("file-size.count", 10240, "Number of 1 KB file size samples")
	flagBWCount    = flag.Int("bandwidth.count", 20, "Number of 1 Mbps bandwidth samples")
	flagDelayCount = flag.Int("delay.count", 100, "Number of 1 ms delay samples")

	flagLogLevel = cli.LogLevel(flag.CommandLine)
)

// seriesConfig builds the model configuration from the flags.
func seriesConfig() (theory.Config, error) {
	config := theory.DefaultConfig()
	size, err := units.ParseSize(*flagFileSize)
	if err != nil {
		return config, fmt.Errorf("baseline file size: %w", err)
	}
	bw, err := units.ParseBandwidth(*flagBandwidth)
	if err != nil {
		return config, fmt.Errorf("baseline bandwidth: %w", err)
	}
	delay, err := units.ParseDelay(*flagDelay)
	if err != nil {
		return config, fmt.Errorf("baseline delay: %w", err)
	}
	for name, n := range map[string]int{
		"file-size.count": *flagSizeCount,
		"bandwidth.count": *flagBWCount,
		"delay.count":     *flagDelayCount,
	} {
		if n <= 0 {
			return config, fmt.Errorf("%s must be positive, got %d", name, n)
		}
	}
	config.Baseline = theory.Baseline{
		FileSizeBytes:        float64(size),
		BandwidthBytesPerSec: bw,
		DelaySec:             delay.Seconds(),
	}
	config.FileSize.Count = *flagSizeCount
	config.Bandwidth.Count = *flagBWCount
	config.Delay.Count = *flagDelayCount
	return config, nil
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")
	cli.SetupLogging(flagLogLevel.Value)

	config, err := seriesConfig()
	rtx.Must(err, "Invalid model configuration")
	series := config.Series()

	rtx.Must(os.MkdirAll(filepath.Dir(*flagOutput), 0755), "Failed to create output directory")
	fp, err := os.Create(*flagOutput)
	rtx.Must(err, "Failed to create %s", *flagOutput)
	rtx.Must(theory.WriteLog(fp, series), "Failed to write %s", *flagOutput)
	rtx.Must(fp.Close(), "Failed to close %s", *flagOutput)
	log.Info("Theoretical results written", "path", *flagOutput)

	if *flagJSON != "" {
		rtx.Must(persistence.WriteJSONFile(*flagJSON, series), "Failed to write %s", *flagJSON)
	}
	if *flagDataDir != "" {
		df, err := persistence.WriteDataFile(*flagDataDir, "theory", "series",
			uuid.NewString(), series)
		rtx.Must(err, "Failed to archive series")
		log.Info("Archived series", "path", df.Path)
	}
}
