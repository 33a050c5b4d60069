package correlator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gocarina/gocsv"
	"github.com/m-lab/shapebench/internal/classifier"
	"github.com/m-lab/shapebench/pkg/experiment/model"
	"github.com/m-lab/shapebench/pkg/version"
)

// Description is the description of every report.
const Description = "Transfer time under shaped network conditions"

// Input is everything BuildReport needs.
type Input struct {
	Points      []model.AggregatedPoint
	Series      []model.TheoreticalSeries
	Tolerance   float64
	Sources     []string
	Missing     []string
	Uncovered   []model.TestPoint
	Ranges      classifier.Ranges
	Diagnostics []model.Diagnostic
}

// BuildReport correlates the input and groups the records by test group.
func BuildReport(in Input) *model.Report {
	r := &model.Report{
		Metadata: model.ReportMetadata{
			Description: Description,
			Version:     version.Version,
			CreatedAt:   time.Now().UTC(),
			Sources:     in.Sources,
			Missing:     in.Missing,
			Uncovered:   in.Uncovered,
			Tolerance:   in.Tolerance,
		},
		Groups:      map[model.TestGroup]*model.GroupReport{},
		Diagnostics: in.Diagnostics,
	}
	if len(in.Ranges) > 0 {
		r.Metadata.Ranges = in.Ranges.Map()
	}
	for _, rec := range Correlate(in.Points, in.Series, in.Tolerance) {
		g, ok := r.Groups[rec.Group]
		if !ok {
			g = &model.GroupReport{
				Group:       rec.Group,
				Description: rec.Group.Label(),
				Unit:        rec.Group.Unit(),
			}
			r.Groups[rec.Group] = g
		}
		g.ParameterValues = append(g.ParameterValues, rec.ParameterValue)
		g.ExperimentalMeans = append(g.ExperimentalMeans, rec.ExperimentalMean)
		g.ExperimentalRuns = append(g.ExperimentalRuns, rec.ExperimentalRuns)
		g.TheoreticalValues = append(g.TheoreticalValues, rec.TheoreticalValue)
		g.Records = append(g.Records, rec)
	}
	return r
}

// Table returns the flat rows of group g, in ascending parameter order.
func Table(r *model.Report, g model.TestGroup) []model.TableRow {
	rows := []model.TableRow{}
	gr, ok := r.Groups[g]
	if !ok {
		return rows
	}
	for _, rec := range gr.Records {
		rows = append(rows, model.TableRow{
			Parameter:          rec.ParameterValue,
			TheoreticalTimeMS:  rec.TheoreticalValue,
			ExperimentalTimeMS: rec.ExperimentalMean,
		})
	}
	return rows
}

// TableName returns the name of the CSV table of g, e.g. "test_1_data.csv".
func TableName(g model.TestGroup) string {
	return fmt.Sprintf("test_%d_data.csv", g.Number())
}

// ExportCSV writes one table per group of r to dir and returns their paths.
func ExportCSV(r *model.Report, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	paths := []string{}
	for _, g := range model.Groups() {
		if _, ok := r.Groups[g]; !ok {
			continue
		}
		p := filepath.Join(dir, TableName(g))
		fp, err := os.Create(p)
		if err != nil {
			return paths, err
		}
		rows := Table(r, g)
		err = gocsv.Marshal(&rows, fp)
		if cerr := fp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, fmt.Errorf("writing %s: %w", p, err)
		}
		log.Debug("Exported CSV", "path", p, "rows", len(rows))
		paths = append(paths, p)
	}
	return paths, nil
}

// WriteSummary prints a human-readable summary of r.
func WriteSummary(w io.Writer, r *model.Report) {
	fmt.Fprintf(w, "\n=== %s ===\n", r.Metadata.Description)
	fmt.Fprintf(w, "Tests found: %d\n", len(r.Groups))
	fmt.Fprintf(w, "Sources: %d (missing: %d)\n", len(r.Metadata.Sources),
		len(r.Metadata.Missing))
	for _, m := range r.Metadata.Missing {
		fmt.Fprintf(w, "  missing: %s\n", m)
	}
	if len(r.Metadata.Uncovered) > 0 {
		fmt.Fprintf(w, "Uncovered points: %d\n", len(r.Metadata.Uncovered))
		for _, p := range r.Metadata.Uncovered {
			fmt.Fprintf(w, "  uncovered: %s %g%s\n", p.Group.Label(), p.ParameterValue,
				p.ParameterUnit)
		}
	}
	if len(r.Metadata.Ranges) > 0 {
		fmt.Fprintln(w, "\nTest Index Mapping:")
		for _, g := range model.Groups() {
			if rg, ok := r.Metadata.Ranges[g]; ok {
				fmt.Fprintf(w, "  Indices %s: %s\n", rg, g.Label())
			}
		}
	}
	for _, g := range model.Groups() {
		gr, ok := r.Groups[g]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\n%s (%s)\n", gr.Description, gr.Unit)
		for _, rec := range gr.Records {
			marker := ""
			if !rec.Exact {
				marker = fmt.Sprintf(" (nearest: %g)", rec.TheoreticalParameter)
			}
			fmt.Fprintf(w, "  %10g: experimental %10.2f ms (%d/%d runs), theoretical %10.2f ms%s\n",
				rec.ParameterValue, rec.ExperimentalMean, rec.Runs, rec.ExpectedRuns,
				rec.TheoreticalValue, marker)
		}
	}
	if len(r.Diagnostics) > 0 {
		fmt.Fprintf(w, "\nDiagnostics: %d\n", len(r.Diagnostics))
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "  %s:%d: %s\n", d.Source, d.Line, d.Message)
		}
	}
}
