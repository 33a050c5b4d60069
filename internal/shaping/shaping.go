// Package shaping configures delay and rate limits on a network interface
// through tcconfig (tcset, tcdel, tcshow).
package shaping

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"
)

var (
	// ErrNoInterface is returned when no network interface can be found.
	ErrNoInterface = errors.New("no network interface")
	// ErrToolUnavailable is returned when a tcconfig tool cannot be run.
	ErrToolUnavailable = errors.New("tcconfig tool unavailable")
	// ErrNoSudo is returned by CheckSudo.
	ErrNoSudo = errors.New("sudo is not available without a password")
)

// probeTTL is how long the result of a tool availability probe is reused.
const probeTTL = 5 * time.Minute

var devRegexp = regexp.MustCompile(`\bdev\s+(\S+)`)

// Shape is a set of link conditions in tcconfig syntax.
type Shape struct {
	Delay string
	Rate  string
}

func (s Shape) String() string {
	return fmt.Sprintf("%s/%s", s.Rate, s.Delay)
}

// Controller applies and removes link conditions.
type Controller interface {
	Apply(ctx context.Context, s Shape) error
	Clear(ctx context.Context) error
	Show(ctx context.Context) (string, error)
	Interface() string
}

// RunFunc runs a command and returns its combined output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Exec runs the command with os/exec.
func Exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// TCConfig is a Controller backed by the tcconfig command line tools.
type TCConfig struct {
	// Prefix is prepended to every command, e.g. ["sudo"].
	Prefix []string

	iface string
	run   RunFunc
	tools *ttlcache.Cache[string, []string]
}

// NewTCConfig returns a TCConfig shaping iface. Commands run through run, or
// Exec if run is nil. Commands are prefixed with sudo.
func NewTCConfig(iface string, run RunFunc) *TCConfig {
	if run == nil {
		run = Exec
	}
	return &TCConfig{
		Prefix: []string{"sudo"},
		iface:  iface,
		run:    run,
		tools: ttlcache.New(
			ttlcache.WithTTL[string, []string](probeTTL),
			ttlcache.WithDisableTouchOnHit[string, []string](),
		),
	}
}

// Interface returns the shaped interface name.
func (tc *TCConfig) Interface() string {
	return tc.iface
}

// tool returns the command line that invokes the named tcconfig tool. The
// tool is probed with --version, first as an executable and then as a
// python module. Successful probes are cached.
func (tc *TCConfig) tool(ctx context.Context, name string) ([]string, error) {
	if item := tc.tools.Get(name); item != nil {
		return item.Value(), nil
	}
	candidates := [][]string{
		{name},
		{"python3", "-m", "tcconfig." + name},
	}
	for _, c := range candidates {
		args := append(append([]string{}, c[1:]...), "--version")
		if _, err := tc.run(ctx, c[0], args...); err == nil {
			tc.tools.Set(name, c, ttlcache.DefaultTTL)
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (install with: pip install tcconfig)",
		ErrToolUnavailable, name)
}

// Available reports whether tcset can be run.
func (tc *TCConfig) Available(ctx context.Context) bool {
	_, err := tc.tool(ctx, "tcset")
	return err == nil
}

func (tc *TCConfig) exec(ctx context.Context, tool []string, args ...string) ([]byte, error) {
	argv := append(append(append([]string{}, tc.Prefix...), tool...), args...)
	log.Debug("Running", "cmd", strings.Join(argv, " "))
	return tc.run(ctx, argv[0], argv[1:]...)
}

// Apply configures s on the interface, replacing any existing rule.
func (tc *TCConfig) Apply(ctx context.Context, s Shape) error {
	if tc.iface == "" {
		return ErrNoInterface
	}
	tool, err := tc.tool(ctx, "tcset")
	if err != nil {
		return err
	}
	out, err := tc.exec(ctx, tool, tc.iface, "--overwrite", "--delay", s.Delay,
		"--rate", s.Rate)
	if err != nil {
		return fmt.Errorf("tcset %s %s: %w: %s", tc.iface, s, err,
			strings.TrimSpace(string(out)))
	}
	return nil
}

// Clear removes every rule from the interface. Without tcconfig it falls
// back to deleting the root qdisc.
func (tc *TCConfig) Clear(ctx context.Context) error {
	if tc.iface == "" {
		return ErrNoInterface
	}
	var (
		out []byte
		err error
	)
	if tool, terr := tc.tool(ctx, "tcdel"); terr == nil {
		out, err = tc.exec(ctx, tool, tc.iface, "--all")
	} else {
		out, err = tc.exec(ctx, []string{"tc"}, "qdisc", "del", "dev", tc.iface, "root")
	}
	if err != nil {
		return fmt.Errorf("clearing %s: %w: %s", tc.iface, err,
			strings.TrimSpace(string(out)))
	}
	return nil
}

// Show returns the current rules of the interface as printed by tcshow.
func (tc *TCConfig) Show(ctx context.Context) (string, error) {
	if tc.iface == "" {
		return "", ErrNoInterface
	}
	tool, err := tc.tool(ctx, "tcshow")
	if err != nil {
		return "", err
	}
	out, err := tc.exec(ctx, tool, tc.iface)
	if err != nil {
		return "", fmt.Errorf("tcshow %s: %w", tc.iface, err)
	}
	return string(out), nil
}

// Noop is a Controller that does nothing. It is used when shaping is not
// possible on this host.
type Noop struct{}

func (Noop) Apply(context.Context, Shape) error { return nil }
func (Noop) Clear(context.Context) error { return nil }
func (Noop) Show(context.Context) (string, error) { return "", nil }
func (Noop) Interface() string { return "" }

// CheckSudo verifies that commands can be run with sudo without prompting
// for a password.
func CheckSudo(ctx context.Context, run RunFunc) error {
	if run == nil {
		run = Exec
	}
	if _, err := run(ctx, "sudo", "-n", "true"); err != nil {
		return fmt.Errorf("%w: %v", ErrNoSudo, err)
	}
	return nil
}

// DetectInterface returns the interface used to reach serverIP, or the one
// of the default route if serverIP is empty or unroutable.
func DetectInterface(ctx context.Context, run RunFunc, serverIP string) (string, error) {
	if run == nil {
		run = Exec
	}
	if serverIP != "" {
		if out, err := run(ctx, "ip", "route", "get", serverIP); err == nil {
			if m := devRegexp.FindSubmatch(out); m != nil {
				return string(m[1]), nil
			}
		}
	}
	out, err := run(ctx, "ip", "route", "show", "default")
	if err == nil {
		if m := devRegexp.FindSubmatch(out); m != nil {
			return string(m[1]), nil
		}
	}
	return "", ErrNoInterface
}

// New returns a Controller for the interface used to reach serverIP. If
// iface is not empty it is used as is. When no interface is found or
// tcconfig is not installed, shaping is skipped with a warning and a Noop
// controller is returned.
func New(ctx context.Context, run RunFunc, serverIP, iface string) Controller {
	if iface == "" {
		var err error
		iface, err = DetectInterface(ctx, run, serverIP)
		if err != nil {
			log.Warn("No interface found, skipping shaping", "server", serverIP,
				"error", err)
			return Noop{}
		}
	}
	tc := NewTCConfig(iface, run)
	if !tc.Available(ctx) {
		log.Warn("tcconfig not found, skipping shaping",
			"hint", "pip install tcconfig", "interface", iface)
		return Noop{}
	}
	log.Info("Using interface", "interface", iface)
	return tc
}
