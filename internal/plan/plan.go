// Package plan enumerates the test matrix: a file size sweep at fixed
// conditions, a bandwidth sweep and a delay sweep, in this dispatch order.
package plan

import (
	"errors"
	"fmt"
	"os"

	"github.com/m-lab/shapebench/internal/classifier"
	"github.com/m-lab/shapebench/internal/units"
	"github.com/m-lab/shapebench/pkg/experiment/model"
	"gopkg.in/yaml.v3"
)

// ErrInvalidMatrix is returned by Validate.
var ErrInvalidMatrix = errors.New("invalid matrix")

// Baseline holds the values that stay fixed while a sweep varies one
// parameter.
type Baseline struct {
	FileSize  string `yaml:"file_size"`
	Bandwidth string `yaml:"bandwidth"`
	Delay     string `yaml:"delay"`
}

// Matrix is the test matrix configuration.
type Matrix struct {
	Baseline   Baseline `yaml:"baseline"`
	FileSizes  []string `yaml:"file_sizes"`
	Bandwidths []string `yaml:"bandwidths"`
	Delays     []string `yaml:"delays"`
}

// Sweep is one "hold two fixed, vary one" step of the matrix.
type Sweep struct {
	Group  model.TestGroup
	Name   string
	Points []model.TestPoint
}

// FileSizes returns the distinct file sizes needed by the sweep, in order.
func (s Sweep) FileSizes() []string {
	seen := map[string]bool{}
	sizes := []string{}
	for _, p := range s.Points {
		if !seen[p.FileSize] {
			seen[p.FileSize] = true
			sizes = append(sizes, p.FileSize)
		}
	}
	return sizes
}

// Default returns the reference matrix: 1KB to 10MB at 10Mbps/10ms, 1 to
// 20 Mbps with a 1MB file and 10ms delay, 0 to 100 ms with a 1MB file at
// 10Mbps.
func Default() Matrix {
	return Matrix{
		Baseline: Baseline{
			FileSize:  "1MB",
			Bandwidth: "10Mbps",
			Delay:     "10ms",
		},
		FileSizes:  []string{"1KB", "5KB", "25KB", "100KB", "1MB", "10MB"},
		Bandwidths: []string{"1Mbps", "2Mbps", "4Mbps", "5Mbps", "10Mbps", "20Mbps"},
		Delays:     []string{"0ms", "5ms", "10ms", "20ms", "50ms", "100ms"},
	}
}

// Load reads a YAML matrix from path. Omitted fields keep their default
// value.
func Load(path string) (Matrix, error) {
	m := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, m.Validate()
}

// Validate checks that every value of the matrix can be parsed.
func (m Matrix) Validate() error {
	if len(m.FileSizes)+len(m.Bandwidths)+len(m.Delays) == 0 {
		return fmt.Errorf("%w: no test points", ErrInvalidMatrix)
	}
	for _, s := range append([]string{m.Baseline.FileSize}, m.FileSizes...) {
		if _, err := units.ParseSize(s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMatrix, err)
		}
	}
	for _, s := range append([]string{m.Baseline.Bandwidth}, m.Bandwidths...) {
		if _, err := units.ParseBandwidth(s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMatrix, err)
		}
	}
	for _, s := range append([]string{m.Baseline.Delay}, m.Delays...) {
		if _, err := units.ParseDelay(s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMatrix, err)
		}
	}
	return nil
}

// Sweeps returns the three sweeps in dispatch order. Empty sweeps are
// omitted.
func (m Matrix) Sweeps() ([]Sweep, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	sweeps := []Sweep{}
	add := func(g model.TestGroup, values []string, point func(string) model.TestPoint) error {
		if len(values) == 0 {
			return nil
		}
		s := Sweep{Group: g, Name: g.Label()}
		for _, v := range values {
			p := point(v)
			pv, err := ParameterValue(g, v)
			if err != nil {
				return err
			}
			p.Group, p.ParameterValue, p.ParameterUnit = g, pv, g.Unit()
			s.Points = append(s.Points, p)
		}
		sweeps = append(sweeps, s)
		return nil
	}
	b := m.Baseline
	steps := []struct {
		group  model.TestGroup
		values []string
		point  func(string) model.TestPoint
	}{
		{model.GroupFileSize, m.FileSizes, func(v string) model.TestPoint {
			return model.TestPoint{FileSize: v, Bandwidth: b.Bandwidth, Delay: b.Delay}
		}},
		{model.GroupBandwidth, m.Bandwidths, func(v string) model.TestPoint {
			return model.TestPoint{FileSize: b.FileSize, Bandwidth: v, Delay: b.Delay}
		}},
		{model.GroupDelay, m.Delays, func(v string) model.TestPoint {
			return model.TestPoint{FileSize: b.FileSize, Bandwidth: b.Bandwidth, Delay: v}
		}},
	}
	for _, st := range steps {
		if err := add(st.group, st.values, st.point); err != nil {
			return nil, err
		}
	}
	return sweeps, nil
}

// ParameterValue converts the string value of the varying parameter of g to
// its numeric form: KB for file sizes, Mbps for bandwidths, ms for delays.
func ParameterValue(g model.TestGroup, v string) (float64, error) {
	switch g {
	case model.GroupFileSize:
		b, err := units.ParseSize(v)
		return units.SizeKB(b), err
	case model.GroupBandwidth:
		b, err := units.ParseBandwidth(v)
		return units.BandwidthMbps(b), err
	case model.GroupDelay:
		d, err := units.ParseDelay(v)
		return units.Milliseconds(d), err
	}
	return 0, fmt.Errorf("%w: unknown group %q", ErrInvalidMatrix, g)
}

// Points returns every point of sweeps in dispatch order.
func Points(sweeps []Sweep) []model.TestPoint {
	points := []model.TestPoint{}
	for _, s := range sweeps {
		points = append(points, s.Points...)
	}
	return points
}

// Ranges derives the test id partition produced by dispatching sweeps with
// ids starting at 0.
func Ranges(sweeps []Sweep) classifier.Ranges {
	groups := make([]model.TestGroup, 0, len(sweeps))
	sizes := make([]int, 0, len(sweeps))
	for _, s := range sweeps {
		groups = append(groups, s.Group)
		sizes = append(sizes, len(s.Points))
	}
	return classifier.Consecutive(groups, sizes)
}

// Declared returns the ordered points of each group.
func Declared(sweeps []Sweep) map[model.TestGroup][]model.TestPoint {
	d := map[model.TestGroup][]model.TestPoint{}
	for _, s := range sweeps {
		d[s.Group] = append(d[s.Group], s.Points...)
	}
	return d
}
