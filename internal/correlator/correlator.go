// Package correlator joins aggregated experimental points with the
// theoretical series and assembles the final report.
package correlator

import (
	"math"
	"sort"

	"github.com/m-lab/shapebench/pkg/experiment/model"
)

// Match is the theoretical sample selected for an experimental value.
type Match struct {
	// Index is the position of the sample in the series.
	Index     int
	Parameter float64
	TimeMS    float64
	// Distance is the absolute difference between the sample parameter and
	// the experimental value.
	Distance float64
	// Exact is true when Distance is within the tolerance.
	Exact bool
}

// Nearest returns the sample of s whose parameter is closest to value. On
// ties the lower parameter wins. It returns false only if s is empty: when
// no sample is within tolerance the nearest one is still returned, with
// Exact set to false.
func Nearest(s model.TheoreticalSeries, value, tolerance float64) (Match, bool) {
	best := Match{Index: -1}
	for i, p := range s.ParameterValues {
		if i >= len(s.TimesMS) {
			break
		}
		d := math.Abs(p - value)
		if best.Index < 0 || d < best.Distance || (d == best.Distance && p < best.Parameter) {
			best = Match{Index: i, Parameter: p, TimeMS: s.TimesMS[i], Distance: d}
		}
	}
	if best.Index < 0 {
		return Match{}, false
	}
	best.Exact = best.Distance <= tolerance
	return best, true
}

// Correlate returns one record per point whose group has a non-empty
// theoretical series. Records are sorted by group, then by ascending
// parameter value.
func Correlate(points []model.AggregatedPoint, series []model.TheoreticalSeries,
	tolerance float64) []model.CorrelatedRecord {
	byGroup := map[model.TestGroup]model.TheoreticalSeries{}
	for _, s := range series {
		byGroup[s.Group] = s
	}
	records := []model.CorrelatedRecord{}
	for _, p := range points {
		s, ok := byGroup[p.Group]
		if !ok {
			continue
		}
		m, ok := Nearest(s, p.ParameterValue, tolerance)
		if !ok {
			continue
		}
		records = append(records, model.CorrelatedRecord{
			Group:                p.Group,
			ParameterValue:       p.ParameterValue,
			ParameterUnit:        p.ParameterUnit,
			ExperimentalMean:     p.Mean,
			ExperimentalRuns:     p.Durations,
			Runs:                 p.Runs,
			ExpectedRuns:         p.ExpectedRuns,
			TheoreticalValue:     m.TimeMS,
			TheoreticalParameter: m.Parameter,
			Exact:                m.Exact,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Group != b.Group {
			return a.Group.Number() < b.Group.Number()
		}
		return a.ParameterValue < b.ParameterValue
	})
	return records
}
