// Package classifier recovers completion records from free-form status logs
// and assigns each of them to the test group that produced it.
//
// Only lines of the shape
//
//	[2024-01-01 00:00:00] [7] Complete transmission in 901 ms
//
// carry data. Any other line is unstructured noise and is ignored.
package classifier

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gocarina/gocsv"
	"github.com/m-lab/shapebench/pkg/experiment/model"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

// ErrUnknownTestID is the error wrapped by the diagnostics of records whose
// id is outside every configured range.
var ErrUnknownTestID = errors.New("unknown test id")

// ErrDuplicateTestID is the error wrapped by the diagnostics of records
// whose id was already seen in the same log.
var ErrDuplicateTestID = errors.New("duplicate test id")

var completionRe = regexp.MustCompile(spec.CompletionPattern)

// Line is a completion record together with its position in the log.
type Line struct {
	model.RawLogLine
	// Number is the 1-based line number in the source.
	Number int
}

// Classified is a completion record assigned to a group.
type Classified struct {
	Line
	Group model.TestGroup
}

// Result is the outcome of classifying one log.
type Result struct {
	// Source is the name of the classified log (usually its path).
	Source string
	// Records are the classified records in log order.
	Records []Classified
	// Diagnostics lists the records excluded from classification.
	Diagnostics []model.Diagnostic
	// Ignored is the number of lines that are not completion records.
	Ignored int
}

// ByGroup returns the records of each group, preserving log order.
func (r *Result) ByGroup() map[model.TestGroup][]Classified {
	m := map[model.TestGroup][]Classified{}
	for _, c := range r.Records {
		m[c.Group] = append(m[c.Group], c)
	}
	return m
}

// ParseLine parses a completion line. It returns false for any line that does
// not have the exact completion shape.
func ParseLine(line string) (model.RawLogLine, bool) {
	m := completionRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return model.RawLogLine{}, false
	}
	ts, err := time.Parse(spec.TimestampLayout, m[1])
	if err != nil {
		return model.RawLogLine{}, false
	}
	id, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return model.RawLogLine{}, false
	}
	d, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return model.RawLogLine{}, false
	}
	return model.RawLogLine{Timestamp: ts, TestID: id, DurationMS: d}, true
}

// FormatLine returns the completion line for the given record.
func FormatLine(r model.RawLogLine) string {
	return fmt.Sprintf("[%s] [%d] Complete transmission in %s ms",
		r.Timestamp.UTC().Format(spec.TimestampLayout), r.TestID,
		strconv.FormatFloat(r.DurationMS, 'f', -1, 64))
}

// Parse returns every completion record in r, in order, together with the
// number of ignored lines.
func Parse(r io.Reader) ([]Line, int, error) {
	lines := []Line{}
	ignored := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		raw, ok := ParseLine(scanner.Text())
		if !ok {
			ignored++
			continue
		}
		lines = append(lines, Line{RawLogLine: raw, Number: n})
	}
	if err := scanner.Err(); err != nil {
		return nil, ignored, err
	}
	return lines, ignored, nil
}

// Classify parses r and assigns each completion record to a group using
// ranges. Records outside every range, and repeated ids, are excluded and
// reported as diagnostics. The returned error is only non-nil when r cannot
// be read.
func Classify(source string, r io.Reader, ranges Ranges) (*Result, error) {
	lines, ignored, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}
	res := &Result{Source: source, Records: []Classified{}, Ignored: ignored}
	seen := map[uint64]int{}
	for _, l := range lines {
		if first, dup := seen[l.TestID]; dup {
			res.Diagnostics = append(res.Diagnostics, model.Diagnostic{
				Source: source, Line: l.Number, TestID: l.TestID,
				Message: fmt.Sprintf("%v: first seen on line %d", ErrDuplicateTestID, first),
			})
			log.Warn("duplicate test id", "source", source, "line", l.Number, "id", l.TestID)
			continue
		}
		seen[l.TestID] = l.Number
		g, ok := ranges.Classify(l.TestID)
		if !ok {
			res.Diagnostics = append(res.Diagnostics, model.Diagnostic{
				Source: source, Line: l.Number, TestID: l.TestID,
				Message: fmt.Sprintf("%v: %d is outside %s", ErrUnknownTestID, l.TestID, ranges),
			})
			log.Warn("unknown test index", "source", source, "line", l.Number, "id", l.TestID)
			continue
		}
		res.Records = append(res.Records, Classified{Line: l, Group: g})
	}
	return res, nil
}

// ClassifyFile classifies the log at path. A missing file is returned as an
// error satisfying errors.Is(err, fs.ErrNotExist).
func ClassifyFile(path string, ranges Ranges) (*Result, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return Classify(path, fp, ranges)
}

// csvRow is a row of the completion log CSV conversion.
type csvRow struct {
	Timestamp          string  `csv:"timestamp"`
	TestID             uint64  `csv:"test_id"`
	TransmissionTimeMS float64 `csv:"transmission_time_ms"`
}

// ConvertCSV writes every completion record in r to w as CSV with the
// columns timestamp, test_id and transmission_time_ms.
func ConvertCSV(r io.Reader, w io.Writer) error {
	lines, _, err := Parse(r)
	if err != nil {
		return err
	}
	rows := make([]csvRow, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, csvRow{
			Timestamp:          l.Timestamp.Format(spec.TimestampLayout),
			TestID:             l.TestID,
			TransmissionTimeMS: l.DurationMS,
		})
	}
	return gocsv.Marshal(&rows, w)
}
