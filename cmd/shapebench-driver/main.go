package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/shapebench/internal/cli"
	"github.com/m-lab/shapebench/internal/driver"
	"github.com/m-lab/shapebench/internal/monitor"
	"github.com/m-lab/shapebench/internal/persistence"
	"github.com/m-lab/shapebench/internal/plan"
	"github.com/m-lab/shapebench/internal/shaping"
	"github.com/m-lab/shapebench/internal/transfer"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

var (
	flagServer      = flag.String("server", spec.DefaultServerIP, "Address of the receiver")
	flagPort        = flag.Int("port", spec.DefaultServerPort, "Port of the receiver")
	flagClient      = flag.String("client", "./bin/client", "Path to the transfer client binary")
	flagTestFiles   = flag.String("test-files", "./test_files", "Directory to create test files in")
	flagResults     = flag.String("results", "./results", "Directory to write the logs to, one subdirectory per run")
	flagDataDir     = flag.String("datadir", "", "If set, archive the run records as JSON under this directory")
	flagMatrix      = flag.String("matrix", "", "YAML test matrix (default: built-in matrix)")
	flagInterface   = flag.String("interface", "", "Interface to shape (default: the route to -server)")
	flagTimeout     = flag.Duration("timeout", spec.DefaultTransferTimeout, "Timeout of each transfer")
	flagProgress    = flag.Bool("progress", false, "Show a progress bar instead of per-transfer output")
	flagShow        = flag.Bool("show-shaping", true, "Print the shaping rules after every change")
	flagNoShaping   = flag.Bool("no-shaping", false, "Do not shape the interface")
	flagMonitorAddr = flag.String("monitor.addr", "", "If set, serve the live monitor websocket on this address")
	flagDebug       = flag.Bool("debug", false, "Print debug output")

	flagPolicy = flagx.Enum{
		Options: []string{string(driver.PolicyAbort), string(driver.PolicyContinue)},
		Value:   string(driver.PolicyAbort),
	}
	flagLogLevel = cli.LogLevel(flag.CommandLine)
)

func init() {
	flag.Var(&flagPolicy, "policy", "Transfer failure policy (abort|continue)")
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")
	cli.SetupLogging(flagLogLevel.Value)

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_, err := os.Stat(*flagClient)
	rtx.Must(err, "Client binary not found")

	matrix := plan.Default()
	if *flagMatrix != "" {
		matrix, err = plan.Load(*flagMatrix)
		rtx.Must(err, "Failed to load matrix %s", *flagMatrix)
	}
	sweeps, err := matrix.Sweeps()
	rtx.Must(err, "Invalid matrix")
	ranges := plan.Ranges(sweeps)
	log.Info("Test id ranges", "ranges", ranges.String())

	var shaper shaping.Controller = shaping.Noop{}
	if !*flagNoShaping {
		rtx.Must(shaping.CheckSudo(ctx, nil), "Network shaping requires sudo privileges")
		shaper = shaping.New(ctx, nil, *flagServer, *flagInterface)
	}

	session, err := driver.NewSession(*flagResults)
	rtx.Must(err, "Failed to open logs in %s", *flagResults)

	config := driver.DefaultConfig()
	config.ServerIP = *flagServer
	config.Port = *flagPort
	config.TestFileDir = *flagTestFiles
	config.Timeout = *flagTimeout
	config.Policy = driver.Policy(flagPolicy.Value)
	config.ShowShaping = *flagShow

	emitters := driver.Multi{}
	if *flagProgress {
		emitters = append(emitters, driver.NewProgressBar(len(plan.Points(sweeps)), os.Stderr))
	} else {
		emitters = append(emitters, driver.HumanReadable{Debug: *flagDebug})
	}
	if *flagMonitorAddr != "" {
		b := monitor.New()
		defer b.Close()
		mux := http.NewServeMux()
		mux.Handle(spec.MonitorPath, b)
		srv := &http.Server{
			Addr:        *flagMonitorAddr,
			Handler:     mux,
			ReadTimeout: time.Minute,
		}
		go func() {
			err := srv.ListenAndServe()
			if !errors.Is(err, http.ErrServerClosed) {
				rtx.Must(err, "Could not start monitor server")
			}
		}()
		defer srv.Close()
		log.Info("Monitor listening", "addr", *flagMonitorAddr, "path", spec.MonitorPath)
		emitters = append(emitters, b)
	}
	config.Emitter = emitters

	log.Info("Testing", "server", *flagServer, "port", *flagPort, "run", session.RunID,
		"logs", session.Dir, "policy", config.Policy)
	d := driver.New(config, session, shaper, transfer.NewCommand(*flagClient))
	records, runErr := d.Run(ctx, sweeps)

	if *flagDataDir != "" {
		df, err := persistence.WriteDataFile(*flagDataDir, "shapebench", "run",
			session.RunID, records)
		if err != nil {
			log.Error("Failed to archive records", "error", err)
		} else {
			log.Info("Archived records", "path", df.Path, "size", df.Size)
		}
	}
	if err := session.Close(); err != nil {
		log.Error("Failed to close logs", "error", err)
	}
	if runErr != nil {
		log.Error("Transmission failed, exiting", "error", runErr)
		promSrv.Close()
		cancel()
		os.Exit(1)
	}
	log.Info("All tests completed", "transfers", len(records))
}
