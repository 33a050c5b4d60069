// Package units parses the bandwidth, delay and size strings accepted by
// tcconfig and truncate ("10Mbps", "10ms", "1MB").
//
// Multiples are binary: 1 Mbps is 1024*1024 bits per second and 1 KB is
// 1024 bytes. This matches the closed-form model the results are compared to.
package units

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidUnit is returned when a string cannot be parsed.
var ErrInvalidUnit = errors.New("invalid unit")

const (
	kilo = 1024
	mega = 1024 * 1024
	giga = 1024 * 1024 * 1024
)

// splitNumber splits "10Mbps" into 10 and "mbps" (lowercase).
func splitNumber(s string) (float64, string, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
	return v, strings.ToLower(strings.TrimSpace(s[i:])), nil
}

// ParseBandwidth returns the rate described by s in bytes per second.
func ParseBandwidth(s string) (float64, error) {
	v, unit, err := splitNumber(s)
	if err != nil {
		return 0, err
	}
	var bits float64
	switch unit {
	case "bps", "bit", "bits":
		bits = v
	case "kbps", "kbit", "k":
		bits = v * kilo
	case "mbps", "mbit", "m":
		bits = v * mega
	case "gbps", "gbit", "g":
		bits = v * giga
	default:
		return 0, fmt.Errorf("%w: bandwidth %q", ErrInvalidUnit, s)
	}
	if bits <= 0 {
		return 0, fmt.Errorf("%w: bandwidth must be positive: %q", ErrInvalidUnit, s)
	}
	return bits / 8, nil
}

// BandwidthMbps converts bytes per second to Mbps.
func BandwidthMbps(bytesPerSec float64) float64 {
	return bytesPerSec * 8 / mega
}

// MbpsToBytes converts Mbps to bytes per second.
func MbpsToBytes(mbps float64) float64 {
	return mbps * mega / 8
}

// ParseDelay parses a delay such as "10ms" or "1s". A bare number is
// interpreted as milliseconds, as tcconfig does.
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		s = strconv.FormatFloat(v, 'f', -1, 64) + "ms"
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: delay %q", ErrInvalidUnit, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: negative delay %q", ErrInvalidUnit, s)
	}
	return d, nil
}

// Milliseconds returns d as fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ParseSize returns the number of bytes described by s ("1KB", "10MB", "512").
func ParseSize(s string) (int64, error) {
	v, unit, err := splitNumber(s)
	if err != nil {
		return 0, err
	}
	var mult float64
	switch unit {
	case "", "b":
		mult = 1
	case "k", "kb", "kib":
		mult = kilo
	case "m", "mb", "mib":
		mult = mega
	case "g", "gb", "gib":
		mult = giga
	default:
		return 0, fmt.Errorf("%w: size %q", ErrInvalidUnit, s)
	}
	return int64(v * mult), nil
}

// SizeKB converts bytes to KB.
func SizeKB(bytes int64) float64 {
	return float64(bytes) / kilo
}

// TruncateSize converts "1KB" into the "1K" form accepted by truncate -s.
func TruncateSize(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "B", "")
}
