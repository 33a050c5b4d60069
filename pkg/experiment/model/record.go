// Package model contains the data types produced and consumed by the
// measurement pipeline.
package model

import "time"

// Status is the outcome of a transfer attempt.
type Status string

const (
	// StatusPending is the status of a dispatched, not yet completed transfer.
	StatusPending = Status("pending")
	// StatusSuccess means the client exited with code zero.
	StatusSuccess = Status("success")
	// StatusFailure means the client exited with a non-zero code or could
	// not be started.
	StatusFailure = Status("failure")
	// StatusTimeout means the client was killed after the timeout.
	StatusTimeout = Status("timeout")
)

// PointKey identifies a test point across runs.
type PointKey struct {
	Group          TestGroup
	ParameterValue float64
}

// TestPoint is one logical configuration under test. Only the varying field
// differs from the group's fixed baseline.
type TestPoint struct {
	// Group is the sweep this point belongs to.
	Group TestGroup
	// ParameterValue is the value of the varying parameter, expressed in
	// ParameterUnit.
	ParameterValue float64
	// ParameterUnit is the unit of ParameterValue (KB, Mbps or ms).
	ParameterUnit string

	// FileSize is the transferred file size, e.g. "1MB".
	FileSize string
	// Bandwidth is the shaped rate, e.g. "10Mbps".
	Bandwidth string
	// Delay is the added latency, e.g. "10ms".
	Delay string
}

// Key returns the cross-run key of this point.
func (p TestPoint) Key() PointKey {
	return PointKey{Group: p.Group, ParameterValue: p.ParameterValue}
}

// TestRecord is one concrete transfer attempt.
type TestRecord struct {
	// TestID is unique and strictly increasing within a run. It is the only
	// join key between the parameter log and the completion log.
	TestID uint64
	// RunID identifies the run this record belongs to.
	RunID string
	// Point is the configuration under test.
	Point TestPoint
	// FilePath is the path of the transferred file.
	FilePath string

	Status Status
	// DurationMS is only meaningful when Status is StatusSuccess.
	DurationMS float64 `json:",omitempty"`
	// ExitCode is the exit code of the transfer client.
	ExitCode int
	// Error describes the failure, if any.
	Error string `json:",omitempty"`

	StartTime time.Time
	EndTime   time.Time
}

// HasDuration says whether DurationMS carries a measurement.
func (r *TestRecord) HasDuration() bool {
	return r.Status == StatusSuccess
}

// RawLogLine is a completion record recovered from free-form log text.
type RawLogLine struct {
	Timestamp  time.Time
	TestID     uint64
	DurationMS float64
}
