package classifier

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/m-lab/shapebench/pkg/experiment/model"
)

func TestParseRanges(t *testing.T) {
	got, err := ParseRanges("FileSize=0-5, Bandwidth=6-9,3=10-15")
	if err != nil {
		t.Fatalf("ParseRanges() error = %v", err)
	}
	if diff := cmp.Diff(testRanges, got); diff != "" {
		t.Errorf("ParseRanges() mismatch (-want +got):\n%s", diff)
	}
	if got.String() != "FileSize=0-5,Bandwidth=6-9,Delay=10-15" {
		t.Errorf("String() = %s", got.String())
	}

	for _, invalid := range []string{
		"",
		"FileSize=0-5,Bandwidth=5-9",
		"FileSize=0-5,FileSize=6-9",
		"FileSize=5-0",
		"FileSize",
		"FileSize=0",
		"Latency=0-5",
		"FileSize=a-5",
	} {
		if _, err := ParseRanges(invalid); !errors.Is(err, ErrInvalidRanges) {
			t.Errorf("ParseRanges(%q) error = %v, want ErrInvalidRanges", invalid, err)
		}
	}
}

func TestConsecutive(t *testing.T) {
	got := Consecutive(model.Groups(), []int{6, 4, 6})
	if diff := cmp.Diff(testRanges, got); diff != "" {
		t.Errorf("Consecutive() mismatch (-want +got):\n%s", diff)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	skipped := Consecutive(model.Groups(), []int{2, 0, 1})
	if len(skipped) != 2 || skipped[1].Group != model.GroupDelay || skipped[1].First != 2 {
		t.Errorf("Consecutive() with empty group = %v", skipped)
	}
}

func TestRanges_Classify(t *testing.T) {
	tests := []struct {
		id   uint64
		want model.TestGroup
		ok   bool
	}{
		{id: 0, want: model.GroupFileSize, ok: true},
		{id: 5, want: model.GroupFileSize, ok: true},
		{id: 6, want: model.GroupBandwidth, ok: true},
		{id: 15, want: model.GroupDelay, ok: true},
		{id: 16},
	}
	for _, tt := range tests {
		got, ok := testRanges.Classify(tt.id)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Classify(%d) = %s, %v; want %s, %v", tt.id, got, ok, tt.want, tt.ok)
		}
	}
	if rg, ok := testRanges.Lookup(model.GroupBandwidth); !ok || rg.Len() != 4 {
		t.Errorf("Lookup() = %v, %v", rg, ok)
	}
	if m := testRanges.Map(); m[model.GroupDelay] != "10-15" {
		t.Errorf("Map() = %v", m)
	}
}
