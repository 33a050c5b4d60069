package driver

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/m-lab/shapebench/internal/plan"
	"github.com/m-lab/shapebench/pkg/experiment/model"
)

// Emitter is an interface for emitting driver progress.
type Emitter interface {
	// OnSweepStart is called before the first transfer of a sweep.
	OnSweepStart(s plan.Sweep)
	// OnTransferStart is called when a transfer is dispatched.
	OnTransferStart(r model.TestRecord)
	// OnRecord is called when a transfer completes, fails or times out.
	OnRecord(r model.TestRecord)
	// OnError is called on errors.
	OnError(err error)
	// OnDebug is called to print debug information.
	OnDebug(msg string)
	// OnSummary is called at the end of the run.
	OnSummary(records []model.TestRecord)
}

// HumanReadable prints human-readable output to Out, or stdout if Out is
// nil. It can be configured to include debug output, too.
type HumanReadable struct {
	Debug bool
	Out   io.Writer
}

func (e HumanReadable) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

// OnSweepStart prints the sweep name and its points.
func (e HumanReadable) OnSweepStart(s plan.Sweep) {
	fmt.Fprintf(e.out(), "\n== %s (%d points) ==\n", s.Name, len(s.Points))
}

// OnTransferStart prints the point under test.
func (e HumanReadable) OnTransferStart(r model.TestRecord) {
	fmt.Fprintf(e.out(), "[%d] Testing %s=%g%s (size %s, rate %s, delay %s)\n",
		r.TestID, r.Point.Group, r.Point.ParameterValue, r.Point.ParameterUnit,
		r.Point.FileSize, r.Point.Bandwidth, r.Point.Delay)
}

// OnRecord prints the outcome of a transfer.
func (e HumanReadable) OnRecord(r model.TestRecord) {
	if r.Status == model.StatusSuccess {
		fmt.Fprintf(e.out(), "[%d] OK %.2f ms\n", r.TestID, r.DurationMS)
		return
	}
	fmt.Fprintf(e.out(), "[%d] %s: %s\n", r.TestID, r.Status, r.Error)
}

// OnError is called on errors.
func (e HumanReadable) OnError(err error) {
	fmt.Fprintln(e.out(), err)
}

// OnDebug is called to print debug information.
func (e HumanReadable) OnDebug(msg string) {
	if e.Debug {
		fmt.Fprintf(e.out(), "DEBUG: %s\n", msg)
	}
}

// OnSummary prints per-status counts.
func (e HumanReadable) OnSummary(records []model.TestRecord) {
	counts := map[model.Status]int{}
	for _, r := range records {
		counts[r.Status]++
	}
	fmt.Fprintln(e.out())
	fmt.Fprintf(e.out(), "Test results: %d transfers\n", len(records))
	for _, s := range []model.Status{model.StatusSuccess, model.StatusFailure,
		model.StatusTimeout} {
		fmt.Fprintf(e.out(), "  %s: %d\n", s, counts[s])
	}
}

// ProgressBar renders a progress bar over the whole run.
type ProgressBar struct {
	mu  sync.Mutex
	bar *pb.ProgressBar
}

// NewProgressBar returns a ProgressBar for total transfers writing to w.
func NewProgressBar(total int, w io.Writer) *ProgressBar {
	bar := pb.New(total)
	if w != nil {
		bar.SetWriter(w)
	}
	return &ProgressBar{bar: bar.Start()}
}

// OnSweepStart shows the sweep name as the bar prefix.
func (p *ProgressBar) OnSweepStart(s plan.Sweep) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Set("prefix", fmt.Sprintf("TEST %d", s.Group.Number()))
}

func (p *ProgressBar) OnTransferStart(model.TestRecord) {}

// OnRecord advances the bar.
func (p *ProgressBar) OnRecord(model.TestRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Increment()
}

func (p *ProgressBar) OnError(error) {}

func (p *ProgressBar) OnDebug(string) {}

// OnSummary completes the bar.
func (p *ProgressBar) OnSummary([]model.TestRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Finish()
}

// Multi forwards every event to all its emitters, in order.
type Multi []Emitter

func (m Multi) OnSweepStart(s plan.Sweep) {
	for _, e := range m {
		e.OnSweepStart(s)
	}
}

func (m Multi) OnTransferStart(r model.TestRecord) {
	for _, e := range m {
		e.OnTransferStart(r)
	}
}

func (m Multi) OnRecord(r model.TestRecord) {
	for _, e := range m {
		e.OnRecord(r)
	}
}

func (m Multi) OnError(err error) {
	for _, e := range m {
		e.OnError(err)
	}
}

func (m Multi) OnDebug(msg string) {
	for _, e := range m {
		e.OnDebug(msg)
	}
}

func (m Multi) OnSummary(records []model.TestRecord) {
	for _, e := range m {
		e.OnSummary(records)
	}
}

// Checks that the emitters implement Emitter.
var (
	_ Emitter = HumanReadable{}
	_ Emitter = &ProgressBar{}
	_ Emitter = Multi{}
)
