// Package cli holds the flag helpers shared by the shapebench binaries.
package cli

import (
	"flag"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
)

var levels = map[string]log.Level{
	"debug": log.DebugLevel,
	"info":  log.InfoLevel,
	"warn":  log.WarnLevel,
	"error": log.ErrorLevel,
}

// LogLevel registers the -log.level flag on fs and returns its value.
func LogLevel(fs *flag.FlagSet) *flagx.Enum {
	level := &flagx.Enum{
		Options: []string{"debug", "info", "warn", "error"},
		Value:   "info",
	}
	fs.Var(level, "log.level", "Log level (debug|info|warn|error)")
	return level
}

// SetupLogging configures the default logger with timestamps, the caller
// and the given level.
func SetupLogging(level string) {
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	if l, ok := levels[level]; ok {
		log.SetLevel(l)
	}
}
