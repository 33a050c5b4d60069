// Package transfer runs the file transfer client and creates the files it
// sends.
package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/m-lab/shapebench/internal/units"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

var (
	// ErrTransferTimeout is returned when a transfer exceeds its timeout.
	ErrTransferTimeout = errors.New("transfer timed out")
	// ErrTransferFailed is returned when the client exits with a non-zero
	// status or cannot be started.
	ErrTransferFailed = errors.New("transfer failed")
)

var reportedRegexp = regexp.MustCompile(spec.ReportedDurationPattern)

// Request describes one transfer.
type Request struct {
	ServerIP string
	Port     int
	FilePath string
	Timeout  time.Duration
}

// Result is the outcome of a transfer.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	// DurationMS is the duration printed by the client if any, otherwise the
	// elapsed wall clock time.
	DurationMS float64
	// Reported is true if DurationMS was printed by the client.
	Reported bool
}

// Client transfers a file to the server.
type Client interface {
	Transfer(ctx context.Context, req Request) (Result, error)
}

// Command is a Client running an external binary as
// "<binary> <server_ip> <port> <file>".
type Command struct {
	Binary string
}

// NewCommand returns a Command for binary.
func NewCommand(binary string) *Command {
	return &Command{Binary: binary}
}

// Transfer runs the client binary and waits for it to exit or for the
// request timeout to expire.
func (c *Command) Transfer(ctx context.Context, req Request) (Result, error) {
	if req.Timeout <= 0 {
		req.Timeout = spec.DefaultTransferTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Binary, req.ServerIP,
		strconv.Itoa(req.Port), req.FilePath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the client may keep the output pipes open after a kill.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  elapsed,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	res.DurationMS, res.Reported = ReportedDuration(res.Stdout)
	if !res.Reported {
		res.DurationMS = units.Milliseconds(elapsed)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w after %v", ErrTransferTimeout, req.Timeout)
	}
	if err != nil {
		return res, fmt.Errorf("%w: %v: %s", ErrTransferFailed, err, res.Stderr)
	}
	return res, nil
}

// ReportedDuration extracts the duration from a
// "Complete transmission in N ms" line, if present.
func ReportedDuration(output string) (float64, bool) {
	m := reportedRegexp.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// TestFileName returns the name of the test file for size, e.g. "1KB.txt".
func TestFileName(size string) string {
	return size + ".txt"
}

// CreateTestFile creates dir/<size>.txt with the given size, like
// "truncate -s". An existing file is resized.
func CreateTestFile(dir, size string) (string, error) {
	n, err := units.ParseSize(size)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	p := filepath.Join(dir, TestFileName(size))
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := f.Truncate(n); err != nil {
		return "", fmt.Errorf("creating %s (%s): %w", p,
			units.TruncateSize(size), err)
	}
	return p, nil
}

// HashFile returns the hex encoded SHA-256 digest of the file at p.
func HashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
