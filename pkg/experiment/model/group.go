package model

import (
	"fmt"
	"strings"
)

// TestGroup is one of the three sweep dimensions.
type TestGroup string

const (
	// GroupFileSize varies the file size at fixed bandwidth and delay.
	GroupFileSize = TestGroup("FileSize")
	// GroupBandwidth varies the bandwidth at fixed delay and file size.
	GroupBandwidth = TestGroup("Bandwidth")
	// GroupDelay varies the delay at fixed bandwidth and file size.
	GroupDelay = TestGroup("Delay")
)

// Groups returns all the test groups in dispatch order.
func Groups() []TestGroup {
	return []TestGroup{GroupFileSize, GroupBandwidth, GroupDelay}
}

// Number returns the 1-based position of the group in dispatch order, or 0
// for an unknown group.
func (g TestGroup) Number() int {
	for i, v := range Groups() {
		if v == g {
			return i + 1
		}
	}
	return 0
}

// Unit returns the unit of the group's parameter value.
func (g TestGroup) Unit() string {
	switch g {
	case GroupFileSize:
		return "KB"
	case GroupBandwidth:
		return "Mbps"
	case GroupDelay:
		return "ms"
	}
	return ""
}

// Label returns the human readable test name used in the parameter log.
func (g TestGroup) Label() string {
	switch g {
	case GroupFileSize:
		return "TEST 1: Different File Sizes"
	case GroupBandwidth:
		return "TEST 2: Different Bandwidths"
	case GroupDelay:
		return "TEST 3: Different Delays"
	}
	return string(g)
}

// Valid says whether g is a known group.
func (g TestGroup) Valid() bool {
	return g.Number() != 0
}

// ParseGroup accepts a group name ("Delay"), a test number ("3"), or a test
// label ("TEST 3: Different Delays").
func ParseGroup(s string) (TestGroup, error) {
	s = strings.TrimSpace(s)
	for _, g := range Groups() {
		if strings.EqualFold(s, string(g)) || s == fmt.Sprint(g.Number()) {
			return g, nil
		}
		prefix := fmt.Sprintf("TEST %d", g.Number())
		rest, ok := strings.CutPrefix(strings.ToUpper(s), prefix)
		if ok && (rest == "" || rest[0] < '0' || rest[0] > '9') {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown test group %q", s)
}
