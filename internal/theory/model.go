// Package theory implements the closed-form transfer time model
//
//	time = file_size / bandwidth + 2 * delay
//
// and the dense one-axis sweeps the experimental results are compared to.
package theory

import (
	"github.com/m-lab/shapebench/internal/units"
	"github.com/m-lab/shapebench/pkg/experiment/model"
)

// TimeMS returns the predicted transfer time in milliseconds.
func TimeMS(fileSizeBytes, bandwidthBytesPerSec, delaySec float64) float64 {
	return (fileSizeBytes/bandwidthBytesPerSec + 2*delaySec) * 1000
}

// Baseline holds the physical parameters that stay fixed while a sweep
// varies one of them.
type Baseline struct {
	FileSizeBytes        float64
	BandwidthBytesPerSec float64
	DelaySec             float64
}

// DefaultBaseline is 1 MB over 10 Mbps with 10 ms of delay.
func DefaultBaseline() Baseline {
	return Baseline{
		FileSizeBytes:        1024 * 1024,
		BandwidthBytesPerSec: units.MbpsToBytes(10),
		DelaySec:             0.01,
	}
}

// Axis is an evenly spaced range of Count samples starting at Min.
type Axis struct {
	Min   float64
	Step  float64
	Count int
}

// Values returns the samples of the axis.
func (a Axis) Values() []float64 {
	v := make([]float64, 0, a.Count)
	for i := 0; i < a.Count; i++ {
		v = append(v, a.Min+a.Step*float64(i))
	}
	return v
}

// Config describes the three sweeps. FileSize is expressed in KB, Bandwidth
// in Mbps and Delay in ms.
type Config struct {
	Baseline  Baseline
	FileSize  Axis
	Bandwidth Axis
	Delay     Axis
}

// DefaultConfig returns 1 KB to 10 MB in 1 KB steps, 1 to 20 Mbps in 1 Mbps
// steps and 1 to 100 ms in 1 ms steps.
func DefaultConfig() Config {
	return Config{
		Baseline:  DefaultBaseline(),
		FileSize:  Axis{Min: 1, Step: 1, Count: 10240},
		Bandwidth: Axis{Min: 1, Step: 1, Count: 20},
		Delay:     Axis{Min: 1, Step: 1, Count: 100},
	}
}

// SweepFileSize varies the file size (KB) at the baseline bandwidth and delay.
func SweepFileSize(b Baseline, a Axis) model.TheoreticalSeries {
	s := newSeries(model.GroupFileSize, a)
	for _, kb := range s.ParameterValues {
		s.TimesMS = append(s.TimesMS, TimeMS(kb*1024, b.BandwidthBytesPerSec, b.DelaySec))
	}
	return s
}

// SweepBandwidth varies the bandwidth (Mbps) at the baseline size and delay.
func SweepBandwidth(b Baseline, a Axis) model.TheoreticalSeries {
	s := newSeries(model.GroupBandwidth, a)
	for _, mbps := range s.ParameterValues {
		s.TimesMS = append(s.TimesMS, TimeMS(b.FileSizeBytes, units.MbpsToBytes(mbps), b.DelaySec))
	}
	return s
}

// SweepDelay varies the delay (ms) at the baseline size and bandwidth.
func SweepDelay(b Baseline, a Axis) model.TheoreticalSeries {
	s := newSeries(model.GroupDelay, a)
	for _, ms := range s.ParameterValues {
		s.TimesMS = append(s.TimesMS, TimeMS(b.FileSizeBytes, b.BandwidthBytesPerSec, ms/1000))
	}
	return s
}

func newSeries(g model.TestGroup, a Axis) model.TheoreticalSeries {
	return model.TheoreticalSeries{
		Group:           g,
		ParameterUnit:   g.Unit(),
		ParameterValues: a.Values(),
		TimesMS:         make([]float64, 0, a.Count),
	}
}

// Series returns the three sweeps in dispatch order.
func (c Config) Series() []model.TheoreticalSeries {
	return []model.TheoreticalSeries{
		SweepFileSize(c.Baseline, c.FileSize),
		SweepBandwidth(c.Baseline, c.Bandwidth),
		SweepDelay(c.Baseline, c.Delay),
	}
}
