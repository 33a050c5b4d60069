package model

import "testing"

func TestParseGroup(t *testing.T) {
	tests := []struct {
		in      string
		want    TestGroup
		wantErr bool
	}{
		{in: "Delay", want: GroupDelay},
		{in: " bandwidth ", want: GroupBandwidth},
		{in: "1", want: GroupFileSize},
		{in: "TEST 2: Different Bandwidths", want: GroupBandwidth},
		{in: "test 3", want: GroupDelay},
		{in: "TEST 1: Different File Sizes", want: GroupFileSize},
		{in: "TEST 10", wantErr: true},
		{in: "TEST 12: Different Losses", wantErr: true},
		{in: "TEST 4", wantErr: true},
		{in: "Jitter", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseGroup(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGroup(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGroup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTestGroup(t *testing.T) {
	for i, g := range Groups() {
		if g.Number() != i+1 {
			t.Errorf("%s.Number() = %d, want %d", g, g.Number(), i+1)
		}
		if !g.Valid() {
			t.Errorf("%s should be valid", g)
		}
		back, err := ParseGroup(g.Label())
		if err != nil || back != g {
			t.Errorf("ParseGroup(%q) = %q, %v", g.Label(), back, err)
		}
	}
	if TestGroup("x").Valid() || TestGroup("x").Unit() != "" {
		t.Error("unknown group should be invalid and have no unit")
	}
	if GroupBandwidth.Unit() != "Mbps" {
		t.Errorf("unexpected unit %q", GroupBandwidth.Unit())
	}
}

func TestAggregatedPoint_Complete(t *testing.T) {
	p := AggregatedPoint{Group: GroupDelay, ParameterValue: 5, Runs: 2, ExpectedRuns: 3}
	if p.Complete() {
		t.Error("2/3 runs should be incomplete")
	}
	if p.Key() != (PointKey{Group: GroupDelay, ParameterValue: 5}) {
		t.Errorf("unexpected key %v", p.Key())
	}
	p.Runs = 3
	if !p.Complete() {
		t.Error("3/3 runs should be complete")
	}
}
