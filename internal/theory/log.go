package theory

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/m-lab/shapebench/pkg/experiment/model"
)

// Theory log lines look like
//
//	[Test 1] 1.0 KB; 10.0012 ms
//	[Test 2] 1.0 Mbps; 28.0001 ms
//	[Test 3] 5.0 ms delay; 90.0000 ms
var logPatterns = map[model.TestGroup]*regexp.Regexp{
	model.GroupFileSize:  regexp.MustCompile(`^\[Test (1)\] ([\d.]+) KB; ([\d.]+) ms`),
	model.GroupBandwidth: regexp.MustCompile(`^\[Test (2)\] ([\d.]+) Mbps; ([\d.]+) ms`),
	model.GroupDelay:     regexp.MustCompile(`^\[Test (3)\] ([\d.]+) ms delay; ([\d.]+) ms`),
}

// FormatLine formats a theoretical sample.
func FormatLine(g model.TestGroup, value, timeMS float64) string {
	switch g {
	case model.GroupFileSize:
		return fmt.Sprintf("[Test 1] %.1f KB; %.4f ms", value, timeMS)
	case model.GroupBandwidth:
		return fmt.Sprintf("[Test 2] %.1f Mbps; %.4f ms", value, timeMS)
	default:
		return fmt.Sprintf("[Test 3] %.1f ms delay; %.4f ms", value, timeMS)
	}
}

// WriteLog writes every sample of series to w, one per line.
func WriteLog(w io.Writer, series []model.TheoreticalSeries) error {
	bw := bufio.NewWriter(w)
	for _, s := range series {
		for i := range s.ParameterValues {
			if _, err := fmt.Fprintln(bw, FormatLine(s.Group, s.ParameterValues[i], s.TimesMS[i])); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// ParseLog reads a theory log. Lines that do not match any of the known
// formats are skipped. Series are returned in dispatch order and only for
// groups present in the log.
func ParseLog(r io.Reader) ([]model.TheoreticalSeries, error) {
	byGroup := map[model.TestGroup]*model.TheoreticalSeries{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		for g, re := range logPatterns {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			v, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				break
			}
			t, err := strconv.ParseFloat(m[3], 64)
			if err != nil {
				break
			}
			s, ok := byGroup[g]
			if !ok {
				s = &model.TheoreticalSeries{Group: g, ParameterUnit: g.Unit()}
				byGroup[g] = s
			}
			s.ParameterValues = append(s.ParameterValues, v)
			s.TimesMS = append(s.TimesMS, t)
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	series := []model.TheoreticalSeries{}
	for _, g := range model.Groups() {
		if s, ok := byGroup[g]; ok {
			series = append(series, *s)
		}
	}
	return series, nil
}
