package model

import "time"

// AggregatedPoint is the join of all the durations observed for the same
// (group, parameter value) across several runs.
type AggregatedPoint struct {
	Group          TestGroup
	ParameterValue float64
	ParameterUnit  string

	// Durations are the individual observations in source order.
	Durations []float64
	Mean      float64
	Median    float64
	StdDev    float64
	Min       float64
	Max       float64

	// Runs is the number of sources that contributed at least one duration.
	Runs int
	// ExpectedRuns is the number of sources that were requested.
	ExpectedRuns int
}

// Key returns the cross-run key of this point.
func (p AggregatedPoint) Key() PointKey {
	return PointKey{Group: p.Group, ParameterValue: p.ParameterValue}
}

// Complete says whether every expected run contributed to this point.
func (p AggregatedPoint) Complete() bool {
	return p.Runs >= p.ExpectedRuns
}

// TheoreticalSeries is a dense, regularly spaced sweep of the closed-form
// model over one parameter.
type TheoreticalSeries struct {
	Group           TestGroup
	ParameterUnit   string
	ParameterValues []float64
	TimesMS         []float64
}

// Len returns the number of samples in the series.
func (s TheoreticalSeries) Len() int {
	return len(s.ParameterValues)
}

// CorrelatedRecord carries both the experimental and the theoretical value
// for a test point.
type CorrelatedRecord struct {
	Group          TestGroup
	ParameterValue float64
	ParameterUnit  string

	ExperimentalMean float64
	ExperimentalRuns []float64
	Runs             int
	ExpectedRuns     int

	TheoreticalValue float64
	// TheoreticalParameter is the parameter value of the selected
	// theoretical sample.
	TheoreticalParameter float64
	// Exact is true when the selected sample is within tolerance.
	Exact bool
}

// GroupReport is the per-group section of a Report. All the slices are
// aligned and sorted by ascending parameter value.
type GroupReport struct {
	Group       TestGroup
	Description string
	Unit        string

	ParameterValues   []float64
	ExperimentalMeans []float64
	ExperimentalRuns  [][]float64
	TheoreticalValues []float64

	Records []CorrelatedRecord
}

// ReportMetadata describes how a Report was produced.
type ReportMetadata struct {
	Description string
	Version     string
	CreatedAt   time.Time
	Sources     []string
	Missing     []string `json:",omitempty"`
	// Uncovered lists the declared points no source contributed to.
	Uncovered []TestPoint `json:",omitempty"`
	// Ranges maps each group to its test id interval, e.g. "0-5".
	Ranges    map[TestGroup]string `json:",omitempty"`
	Tolerance float64
}

// Diagnostic is a non-fatal problem found while building a Report.
type Diagnostic struct {
	Source  string
	Line    int    `json:",omitempty"`
	TestID  uint64 `json:",omitempty"`
	Message string
}

// Report is the final structured artifact of the pipeline.
type Report struct {
	Metadata    ReportMetadata
	Groups      map[TestGroup]*GroupReport
	Diagnostics []Diagnostic `json:",omitempty"`
}

// TableRow is a row of the flat per-group export.
type TableRow struct {
	Parameter          float64 `csv:"parameter"`
	TheoreticalTimeMS  float64 `csv:"theoretical_time_ms"`
	ExperimentalTimeMS float64 `csv:"experimental_time_ms"`
}
