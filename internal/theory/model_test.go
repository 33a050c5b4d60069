package theory

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/m-lab/go/testingx"
	"github.com/m-lab/shapebench/pkg/experiment/model"
)

func TestTimeMS(t *testing.T) {
	got := TimeMS(1_048_576, 1_310_720, 0.01)
	if math.Abs(got-820) > 1e-9 {
		t.Errorf("TimeMS() = %f, want 820", got)
	}
	if got := TimeMS(0, 1, 0.5); got != 1000 {
		t.Errorf("TimeMS() with empty file = %f, want 1000", got)
	}
}

func TestAxis_Values(t *testing.T) {
	got := Axis{Min: 1, Step: 0.5, Count: 4}.Values()
	want := []float64{1, 1.5, 2, 2.5}
	if len(got) != len(want) {
		t.Fatalf("Values() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values()[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestConfig_Series(t *testing.T) {
	series := DefaultConfig().Series()
	if len(series) != 3 {
		t.Fatalf("Series() returned %d series", len(series))
	}
	tests := []struct {
		group  model.TestGroup
		len    int
		index  int
		value  float64
		timeMS float64
	}{
		// 1 KB at 10 Mbps + 20 ms round trip.
		{group: model.GroupFileSize, len: 10240, index: 0, value: 1, timeMS: 1024/1310720.0*1000 + 20},
		// 1 MB at 10 Mbps.
		{group: model.GroupBandwidth, len: 20, index: 9, value: 10, timeMS: 820},
		// 1 MB at 10 Mbps with 50 ms of delay.
		{group: model.GroupDelay, len: 100, index: 49, value: 50, timeMS: 900},
	}
	for i, tt := range tests {
		s := series[i]
		if s.Group != tt.group || s.Len() != tt.len || len(s.TimesMS) != tt.len {
			t.Errorf("series %d: group %s len %d/%d", i, s.Group, s.Len(), len(s.TimesMS))
			continue
		}
		if s.ParameterUnit != tt.group.Unit() {
			t.Errorf("series %d: unit %s", i, s.ParameterUnit)
		}
		if s.ParameterValues[tt.index] != tt.value ||
			math.Abs(s.TimesMS[tt.index]-tt.timeMS) > 1e-9 {
			t.Errorf("series %d: sample %d = (%f, %f), want (%f, %f)", i, tt.index,
				s.ParameterValues[tt.index], s.TimesMS[tt.index], tt.value, tt.timeMS)
		}
	}
}

func TestLog(t *testing.T) {
	cfg := Config{
		Baseline:  DefaultBaseline(),
		FileSize:  Axis{Min: 1, Step: 1, Count: 3},
		Bandwidth: Axis{Min: 1, Step: 1, Count: 2},
		Delay:     Axis{Min: 1, Step: 1, Count: 2},
	}
	buf := &bytes.Buffer{}
	testingx.Must(t, WriteLog(buf, cfg.Series()), "cannot write theory log")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d lines, want 7", len(lines))
	}
	if lines[4] != "[Test 2] 2.0 Mbps; 4020.0000 ms" {
		t.Errorf("unexpected bandwidth line: %q", lines[4])
	}
	if lines[5] != "[Test 3] 1.0 ms delay; 802.0000 ms" {
		t.Errorf("unexpected delay line: %q", lines[5])
	}

	// Noise is skipped when reading the log back.
	input := "theoretical results\n" + buf.String()
	series, err := ParseLog(strings.NewReader(input))
	testingx.Must(t, err, "cannot parse theory log")
	if len(series) != 3 {
		t.Fatalf("ParseLog() returned %d series", len(series))
	}
	if series[0].Len() != 3 || series[1].Len() != 2 || series[2].Len() != 2 {
		t.Errorf("ParseLog() lengths = %d/%d/%d", series[0].Len(), series[1].Len(), series[2].Len())
	}
	if series[1].ParameterValues[1] != 2 || series[1].TimesMS[1] != 4020 {
		t.Errorf("ParseLog() bandwidth sample = %f, %f", series[1].ParameterValues[1], series[1].TimesMS[1])
	}
}
