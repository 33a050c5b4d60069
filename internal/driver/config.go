package driver

import (
	"errors"
	"fmt"
	"time"

	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

// Policy decides what happens when a transfer fails or times out.
type Policy string

const (
	// PolicyAbort stops the run at the first failed transfer.
	PolicyAbort = Policy("abort")
	// PolicyContinue records the failure and proceeds with the next point.
	PolicyContinue = Policy("continue")
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid driver config")

// Config is the configuration for a Driver.
type Config struct {
	// ServerIP and Port identify the receiver.
	ServerIP string
	Port     int

	// TestFileDir is where test files are created.
	TestFileDir string

	// Timeout bounds each transfer.
	Timeout time.Duration

	// Policy is the transfer failure policy.
	Policy Policy

	// ClearSettle is observed after clearing shaping rules, ApplySettle
	// after applying them and TransferPause between transfers.
	ClearSettle   time.Duration
	ApplySettle   time.Duration
	TransferPause time.Duration

	// ShowShaping prints the interface rules after every change.
	ShowShaping bool

	// Emitter receives progress events. If nil, nothing is emitted.
	Emitter Emitter
}

// DefaultConfig returns a Config with the default server address, timeout,
// settle delays and the abort policy.
func DefaultConfig() Config {
	return Config{
		ServerIP:      spec.DefaultServerIP,
		Port:          spec.DefaultServerPort,
		TestFileDir:   "test_files",
		Timeout:       spec.DefaultTransferTimeout,
		Policy:        PolicyAbort,
		ClearSettle:   spec.ClearSettleDelay,
		ApplySettle:   spec.ApplySettleDelay,
		TransferPause: spec.TransferPause,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.ServerIP == "":
		return fmt.Errorf("%w: empty server address", ErrInvalidConfig)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case c.Policy != PolicyAbort && c.Policy != PolicyContinue:
		return fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, c.Policy)
	case c.ClearSettle < 0 || c.ApplySettle < 0 || c.TransferPause < 0:
		return fmt.Errorf("%w: negative delay", ErrInvalidConfig)
	}
	return nil
}
