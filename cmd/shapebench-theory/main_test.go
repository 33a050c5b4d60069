package main

import (
	"flag"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/m-lab/go/testingx"
	"github.com/m-lab/shapebench/internal/theory"
)

func setFlag(t *testing.T, name, value string) {
	old := flag.Lookup(name).Value.String()
	testingx.Must(t, flag.Set(name, value), "cannot set -%s", name)
	t.Cleanup(func() { flag.Set(name, old) })
}

func Test_seriesConfig(t *testing.T) {
	config, err := seriesConfig()
	testingx.Must(t, err, "default flags are invalid")
	approx := cmpopts.EquateApprox(0, 1e-12)
	if diff := cmp.Diff(theory.DefaultConfig(), config, approx); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}

	setFlag(t, "file-size.count", "3")
	setFlag(t, "bandwidth.count", "4")
	setFlag(t, "delay.count", "5")
	config, err = seriesConfig()
	testingx.Must(t, err, "seriesConfig failed")
	series := config.Series()
	for i, want := range []int{3, 4, 5} {
		if series[i].Len() != want {
			t.Errorf("%s series has %d samples, want %d", series[i].Group, series[i].Len(), want)
		}
	}
	// Counts are sample counts: 4 bandwidth samples end at 4 Mbps.
	if last := series[1].ParameterValues[3]; last != 4 {
		t.Errorf("last bandwidth sample = %g, want 4", last)
	}

	setFlag(t, "delay.count", "0")
	if _, err := seriesConfig(); err == nil {
		t.Errorf("seriesConfig() with no delay samples did not fail")
	}
	setFlag(t, "delay.count", "5")
	setFlag(t, "baseline.bandwidth", "fast")
	if _, err := seriesConfig(); err == nil {
		t.Errorf("seriesConfig() with an invalid bandwidth did not fail")
	}
}
