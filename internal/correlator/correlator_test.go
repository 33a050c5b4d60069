package correlator

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/m-lab/go/testingx"
	"github.com/m-lab/shapebench/internal/classifier"
	"github.com/m-lab/shapebench/internal/theory"
	"github.com/m-lab/shapebench/pkg/experiment/model"
)

func TestNearest(t *testing.T) {
	s := model.TheoreticalSeries{
		Group:           model.GroupBandwidth,
		ParameterValues: []float64{9.98, 10.02},
		TimesMS:         []float64{1, 2},
	}
	tests := []struct {
		name      string
		value     float64
		tolerance float64
		want      float64
		exact     bool
	}{
		{name: "tie goes to the lower sample", value: 10.0, tolerance: 0.05, want: 9.98, exact: true},
		{name: "closer upper sample", value: 10.01, tolerance: 0.05, want: 10.02, exact: true},
		{name: "nearest outside tolerance", value: 12, tolerance: 0.01, want: 10.02},
		{name: "below the series", value: 1, tolerance: 0.01, want: 9.98},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := Nearest(s, tt.value, tt.tolerance)
			if !ok {
				t.Fatalf("Nearest() found no sample")
			}
			if m.Parameter != tt.want || m.Exact != tt.exact {
				t.Errorf("Nearest() = %+v, want parameter %f exact %v", m, tt.want, tt.exact)
			}
		})
	}
	if _, ok := Nearest(model.TheoreticalSeries{}, 1, 0.01); ok {
		t.Errorf("Nearest() on an empty series found a sample")
	}
}

func testPoints() []model.AggregatedPoint {
	return []model.AggregatedPoint{
		{Group: model.GroupDelay, ParameterValue: 100, ParameterUnit: "ms",
			Durations: []float64{1020}, Mean: 1020, Runs: 1, ExpectedRuns: 1},
		{Group: model.GroupBandwidth, ParameterValue: 10, ParameterUnit: "Mbps",
			Durations: []float64{830, 840}, Mean: 835, Runs: 2, ExpectedRuns: 2},
		{Group: model.GroupBandwidth, ParameterValue: 1, ParameterUnit: "Mbps",
			Durations: []float64{8100}, Mean: 8100, Runs: 1, ExpectedRuns: 2},
		{Group: model.GroupFileSize, ParameterValue: 1024, ParameterUnit: "KB",
			Durations: []float64{825}, Mean: 825, Runs: 1, ExpectedRuns: 1},
	}
}

func TestCorrelate(t *testing.T) {
	series := theory.DefaultConfig().Series()
	records := Correlate(testPoints(), series, 0.01)
	if len(records) != 4 {
		t.Fatalf("Correlate() returned %d records", len(records))
	}
	var order []string
	for _, r := range records {
		order = append(order, r.Group.Label())
	}
	want := []string{
		model.GroupFileSize.Label(),
		model.GroupBandwidth.Label(),
		model.GroupBandwidth.Label(),
		model.GroupDelay.Label(),
	}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
	if records[1].ParameterValue != 1 || records[2].ParameterValue != 10 {
		t.Errorf("bandwidth records not sorted: %+v", records[1:3])
	}
	// 1MB file at 10Mbps and 10ms.
	if math.Abs(records[0].TheoreticalValue-820) > 1e-9 || !records[0].Exact {
		t.Errorf("unexpected file size record: %+v", records[0])
	}
	if math.Abs(records[3].TheoreticalValue-1000) > 1e-9 {
		t.Errorf("unexpected delay record: %+v", records[3])
	}

	// Groups without a series are left out.
	records = Correlate(testPoints(), series[:1], 0.01)
	if len(records) != 1 || records[0].Group != model.GroupFileSize {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestReport(t *testing.T) {
	ranges := classifier.Ranges{
		{Group: model.GroupFileSize, First: 0, Last: 5},
		{Group: model.GroupBandwidth, First: 6, Last: 11},
		{Group: model.GroupDelay, First: 12, Last: 17},
	}
	r := BuildReport(Input{
		Points:    testPoints(),
		Series:    theory.DefaultConfig().Series(),
		Tolerance: 0.01,
		Sources:   []string{"a.log", "b.log"},
		Missing:   []string{"b.log"},
		Uncovered: []model.TestPoint{
			{Group: model.GroupDelay, ParameterValue: 100, ParameterUnit: "ms"},
		},
		Ranges: ranges,
		Diagnostics: []model.Diagnostic{
			{Source: "a.log", Line: 3, TestID: 42, Message: "unknown test id"},
		},
	})
	if len(r.Groups) != 3 || r.Metadata.Ranges[model.GroupBandwidth] != "6-11" {
		t.Fatalf("unexpected report: %+v", r)
	}
	if len(r.Metadata.Uncovered) != 1 || r.Metadata.Uncovered[0].ParameterValue != 100 {
		t.Errorf("uncovered points not reported: %+v", r.Metadata.Uncovered)
	}
	bw := r.Groups[model.GroupBandwidth]
	if diff := cmp.Diff([]float64{1, 10}, bw.ParameterValues); diff != "" {
		t.Errorf("parameter values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]float64{{8100}, {830, 840}}, bw.ExperimentalRuns); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
	if bw.Unit != "Mbps" || bw.Description != "TEST 2: Different Bandwidths" {
		t.Errorf("unexpected group header: %s %s", bw.Unit, bw.Description)
	}

	want := []model.TableRow{
		{Parameter: 1, TheoreticalTimeMS: 8020, ExperimentalTimeMS: 8100},
		{Parameter: 10, TheoreticalTimeMS: 820, ExperimentalTimeMS: 835},
	}
	approx := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff(want, Table(r, model.GroupBandwidth), approx); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
	if len(Table(r, model.TestGroup("Loss"))) != 0 {
		t.Errorf("Table() of an unknown group is not empty")
	}

	dir := t.TempDir()
	paths, err := ExportCSV(r, dir)
	testingx.Must(t, err, "ExportCSV failed")
	if len(paths) != 3 || filepath.Base(paths[1]) != "test_2_data.csv" {
		t.Fatalf("ExportCSV() = %v", paths)
	}
	b, err := os.ReadFile(paths[1])
	testingx.Must(t, err, "cannot read table")
	if !strings.HasPrefix(string(b), "parameter,theoretical_time_ms,experimental_time_ms\n") {
		t.Errorf("unexpected header:\n%s", b)
	}
	got := []model.TableRow{}
	testingx.Must(t, gocsv.UnmarshalBytes(b, &got), "cannot parse table")
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("exported table mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	WriteSummary(&buf, r)
	for _, s := range []string{"Tests found: 3", "missing: b.log", "Indices 6-11: TEST 2",
		"(1/2 runs)", "Diagnostics: 1", "Uncovered points: 1",
		"uncovered: TEST 3: Different Delays 100ms"} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("summary does not contain %q:\n%s", s, buf.String())
		}
	}
}
