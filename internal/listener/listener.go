// Package listener runs the receiver binary in a loop on the server side
// and writes one completion line per received file.
package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/shapebench/internal/persistence"
	"github.com/m-lab/shapebench/internal/transfer"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// receiveError is logged in place of the receiver output when it cannot be
// started.
const receiveError = "Receive Error"

var receivedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shapebench_listener_received_total",
		Help: "Number of receiver invocations, by result.",
	},
	[]string{"result"},
)

// RunFunc runs the receiver once and returns its standard output.
type RunFunc func(ctx context.Context, binary string, args ...string) (string, error)

// Exec runs binary with os/exec.
func Exec(ctx context.Context, binary string, args ...string) (string, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	err := cmd.Run()
	return stdout.String(), err
}

// Config is the configuration of a Listener.
type Config struct {
	// Binary is the receiver, invoked as "<binary> <ip> <port> <file>".
	Binary string
	// ClientBinary is only hashed, to record which client was used.
	ClientBinary string
	ServerIP     string
	Port         int
	// OutputDir holds the received file and the completion log.
	OutputDir string
	// Pause is observed between two invocations.
	Pause time.Duration
}

// Listener produces the server-side completion log.
type Listener struct {
	config Config
	run    RunFunc
	now    func() time.Time
}

// New returns a Listener. If run is nil, Exec is used.
func New(config Config, run RunFunc) *Listener {
	if run == nil {
		run = Exec
	}
	return &Listener{config: config, run: run, now: time.Now}
}

// LogPath returns the path of the completion log.
func (l *Listener) LogPath() string {
	return filepath.Join(l.config.OutputDir, spec.ServerLogName)
}

func hashLine(prefix, binary string) string {
	h, err := transfer.HashFile(binary)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Sprintf("%s: Binary file not found: %s", prefix, binary)
		}
		return fmt.Sprintf("%s: Error hashing binary: %v", prefix, err)
	}
	return fmt.Sprintf("%s: %s", prefix, h)
}

// Run records the binary hashes and then invokes the receiver until ctx is
// canceled. The n-th invocation is logged with index n, starting at 0, as
//
//	[YYYY-MM-DD HH:MM:SS] [n] <receiver output>
//
// Run returns the number of logged invocations.
func (l *Listener) Run(ctx context.Context) (int, error) {
	lf, err := persistence.OpenLog(l.LogPath())
	if err != nil {
		return 0, err
	}
	defer lf.Close()

	if err := lf.Append(hashLine("Binary Hash", l.config.Binary)); err != nil {
		return 0, err
	}
	if l.config.ClientBinary != "" {
		if err := lf.Append(hashLine("Client Binary Hash", l.config.ClientBinary)); err != nil {
			return 0, err
		}
	}

	received := filepath.Join(l.config.OutputDir, spec.ReceivedFileName)
	log.Info("Listener started", "binary", l.config.Binary,
		"addr", fmt.Sprintf("%s:%d", l.config.ServerIP, l.config.Port),
		"log", l.LogPath())
	for index := 0; ; index++ {
		out, err := l.run(ctx, l.config.Binary, l.config.ServerIP,
			fmt.Sprint(l.config.Port), received)
		if ctx.Err() != nil {
			removeReceived(received)
			return index, nil
		}
		result := strings.TrimSpace(out)
		if err != nil {
			log.Warn("Receiver failed", "index", index, "error", err)
			receivedTotal.WithLabelValues("error").Inc()
			if result == "" {
				result = receiveError
			}
		} else {
			receivedTotal.WithLabelValues("ok").Inc()
		}
		log.Debug("Listener result", "index", index, "result", result)
		ts := l.now().UTC().Format(spec.TimestampLayout)
		if err := lf.Append(fmt.Sprintf("[%s] [%d] %s", ts, index, result)); err != nil {
			return index, err
		}
		removeReceived(received)

		t := time.NewTimer(l.config.Pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return index + 1, nil
		case <-t.C:
		}
	}
}

func removeReceived(p string) {
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Cannot remove received file", "path", p, "error", err)
	}
}
