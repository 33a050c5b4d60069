package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/shapebench/internal/cli"
	"github.com/m-lab/shapebench/internal/listener"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

var (
	flagServer       = flag.String("server", spec.DefaultServerIP, "Address to receive on")
	flagPort         = flag.Int("port", spec.DefaultServerPort, "Port to receive on")
	flagBinary       = flag.String("binary", "./bin/server", "Path to the receiver binary")
	flagClientBinary = flag.String("client-binary", "./bin/client", "Path to the client binary, only hashed")
	flagOutput       = flag.String("output", "./results", "Directory for the received file and the completion log")
	flagPause        = flag.Duration("pause", spec.ListenerPause, "Pause between two receiver invocations")

	flagLogLevel = cli.LogLevel(flag.CommandLine)
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")
	cli.SetupLogging(flagLogLevel.Value)

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	if _, err := os.Stat(*flagBinary); err != nil {
		log.Warn("Receiver binary not found", "path", *flagBinary)
	}
	rtx.Must(os.MkdirAll(*flagOutput, 0755), "Failed to create %s", *flagOutput)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l := listener.New(listener.Config{
		Binary:       *flagBinary,
		ClientBinary: *flagClientBinary,
		ServerIP:     *flagServer,
		Port:         *flagPort,
		OutputDir:    *flagOutput,
		Pause:        *flagPause,
	}, nil)
	n, err := l.Run(ctx)
	rtx.Must(err, "Listener failed")
	log.Info("Listener stopped", "received", n, "log", l.LogPath())
}
