// Package driver runs the test matrix: it shapes the interface, dispatches
// one transfer per test point and durably logs the parameters and the
// outcome of each transfer under the same test id.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/shapebench/internal/classifier"
	"github.com/m-lab/shapebench/internal/persistence"
	"github.com/m-lab/shapebench/internal/plan"
	"github.com/m-lab/shapebench/internal/shaping"
	"github.com/m-lab/shapebench/internal/transfer"
	"github.com/m-lab/shapebench/pkg/experiment/model"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

// ErrShapingFailed is wrapped by the error of the points whose shape could
// not be applied.
var ErrShapingFailed = errors.New("shaping failed")

// Driver executes sweeps sequentially. It must not be used concurrently.
type Driver struct {
	config  Config
	session *Session
	shaper  shaping.Controller
	client  transfer.Client
	emitter Emitter

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
	// createFile creates the test file for a size in a directory.
	createFile func(dir, size string) (string, error)
}

// New returns a Driver.
func New(config Config, session *Session, shaper shaping.Controller,
	client transfer.Client) *Driver {
	var emitter Emitter = Multi{}
	if config.Emitter != nil {
		emitter = config.Emitter
	}
	return &Driver{
		config:     config,
		session:    session,
		shaper:     shaper,
		client:     client,
		emitter:    emitter,
		sleep:      sleepContext,
		createFile: transfer.CreateTestFile,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes sweeps in order and returns the records of every dispatched
// transfer. Shaping is cleared when Run returns, including on failure.
//
// With PolicyAbort, the first failed transfer stops the run and its error
// is returned; with PolicyContinue, failures are only recorded. A point
// whose shape could not be applied is a failed transfer: it is logged as
// such and never transferred.
func (d *Driver) Run(ctx context.Context, sweeps []plan.Sweep) ([]model.TestRecord, error) {
	if err := d.config.Validate(); err != nil {
		return nil, err
	}
	records := []model.TestRecord{}
	defer func() {
		d.clear(context.WithoutCancel(ctx))
		d.emitter.OnSummary(records)
	}()

	for _, s := range sweeps {
		d.emitter.OnSweepStart(s)
		log.Info("Starting sweep", "name", s.Name, "points", len(s.Points),
			"ids", d.idRange(len(s.Points)))

		d.clear(ctx)
		if err := d.sleep(ctx, d.config.ClearSettle); err != nil {
			return records, err
		}
		files := map[string]string{}
		for _, size := range s.FileSizes() {
			p, err := d.createFile(d.config.TestFileDir, size)
			if err != nil {
				return records, fmt.Errorf("creating test file %s: %w", size, err)
			}
			d.emitter.OnDebug(fmt.Sprintf("created %s (%s)", p, size))
			files[size] = p
		}

		var current *shaping.Shape
		// shapeErr is the error of the last apply. Points under a shape that
		// could not be applied are failed without a transfer.
		var shapeErr error
		for _, p := range s.Points {
			shape := shaping.Shape{Delay: p.Delay, Rate: p.Bandwidth}
			if current == nil || *current != shape {
				if current != nil {
					d.clear(ctx)
					if err := d.sleep(ctx, d.config.ClearSettle); err != nil {
						return records, err
					}
				}
				shapeErr = d.apply(ctx, shape)
				current = &shape
				if shapeErr == nil {
					if err := d.sleep(ctx, d.config.ApplySettle); err != nil {
						return records, err
					}
				}
			}

			var rec model.TestRecord
			var err error
			if shapeErr != nil {
				rec, err = d.skipTransfer(p, files[p.FileSize], shapeErr)
			} else {
				rec, err = d.runTransfer(ctx, p, files[p.FileSize])
			}
			records = append(records, rec)
			if err != nil {
				if d.config.Policy == PolicyAbort || ctx.Err() != nil {
					return records, fmt.Errorf("test %d (%s): %w", rec.TestID, s.Name, err)
				}
				log.Warn("Transfer failed, continuing", "id", rec.TestID,
					"status", rec.Status, "error", err)
			}
			if err := d.sleep(ctx, d.config.TransferPause); err != nil {
				return records, err
			}
		}
	}
	return records, nil
}

// idRange describes the ids the next n allocations will return.
func (d *Driver) idRange(n int) string {
	first := d.session.nextID.Load()
	return fmt.Sprintf("%d-%d", first, first+uint64(n)-1)
}

func (d *Driver) clear(ctx context.Context) {
	err := d.shaper.Clear(ctx)
	if err != nil && !errors.Is(err, shaping.ErrNoInterface) {
		log.Warn("Failed to clear shaping", "interface", d.shaper.Interface(),
			"error", err)
		shapingOperations.WithLabelValues("clear", "error").Inc()
		return
	}
	shapingOperations.WithLabelValues("clear", "ok").Inc()
}

func (d *Driver) apply(ctx context.Context, shape shaping.Shape) error {
	log.Info("Setting shaping", "interface", d.shaper.Interface(),
		"delay", shape.Delay, "rate", shape.Rate)
	if err := d.shaper.Apply(ctx, shape); err != nil {
		log.Error("Failed to apply shaping", "shape", shape, "error", err)
		shapingOperations.WithLabelValues("apply", "error").Inc()
		return fmt.Errorf("%w: %s: %v", ErrShapingFailed, shape, err)
	}
	shapingOperations.WithLabelValues("apply", "ok").Inc()
	if d.config.ShowShaping {
		out, err := d.shaper.Show(ctx)
		if err != nil {
			log.Warn("Cannot show shaping rules", "error", err)
			return nil
		}
		d.emitter.OnDebug("current network settings:\n" + out)
	}
	return nil
}

// newRecord allocates a test id for p and logs its parameters.
func (d *Driver) newRecord(p model.TestPoint, file string) (model.TestRecord, error) {
	rec := model.TestRecord{
		TestID:    d.session.AllocateTestID(),
		RunID:     d.session.RunID,
		Point:     p,
		FilePath:  file,
		Status:    model.StatusPending,
		StartTime: time.Now(),
	}
	row := persistence.ParamRow{
		TestID:         rec.TestID,
		TestName:       p.Group.Label(),
		Group:          string(p.Group),
		ParameterValue: p.ParameterValue,
		ParameterUnit:  p.ParameterUnit,
		Bandwidth:      p.Bandwidth,
		Delay:          p.Delay,
		FileSize:       p.FileSize,
		FilePath:       file,
		RunID:          rec.RunID,
	}
	if err := d.session.ParamLog().Write(row); err != nil {
		return rec, fmt.Errorf("writing parameter log: %w", err)
	}
	return rec, nil
}

// skipTransfer records p as failed without transferring, because its shape
// could not be applied. The test id is still allocated so the id partition
// of the run is preserved.
func (d *Driver) skipTransfer(p model.TestPoint, file string, cause error) (model.TestRecord, error) {
	rec, err := d.newRecord(p, file)
	if err != nil {
		return rec, err
	}
	d.emitter.OnTransferStart(rec)
	rec.EndTime = rec.StartTime
	rec.ExitCode = -1
	rec.Status = model.StatusFailure
	rec.Error = cause.Error()
	transfersTotal.WithLabelValues(string(p.Group), string(rec.Status)).Inc()

	err = cause
	line := failureLine(rec.EndTime.UTC(), rec.TestID, "Shaping failed")
	if lerr := d.session.ClientLog().Append(line); lerr != nil {
		err = errors.Join(err, fmt.Errorf("writing completion log: %w", lerr))
	}
	d.emitter.OnError(err)
	d.emitter.OnRecord(rec)
	return rec, err
}

// runTransfer allocates a test id, logs the parameters, runs the transfer
// and logs its outcome.
func (d *Driver) runTransfer(ctx context.Context, p model.TestPoint, file string) (model.TestRecord, error) {
	rec, err := d.newRecord(p, file)
	if err != nil {
		return rec, err
	}
	d.emitter.OnTransferStart(rec)

	res, err := d.client.Transfer(ctx, transfer.Request{
		ServerIP: d.config.ServerIP,
		Port:     d.config.Port,
		FilePath: file,
		Timeout:  d.config.Timeout,
	})
	rec.EndTime = time.Now()
	rec.ExitCode = res.ExitCode

	var line string
	ts := rec.EndTime.UTC()
	switch {
	case err == nil:
		rec.Status = model.StatusSuccess
		rec.DurationMS = res.DurationMS
		line = classifier.FormatLine(model.RawLogLine{
			Timestamp:  ts,
			TestID:     rec.TestID,
			DurationMS: res.DurationMS,
		})
		transferDuration.WithLabelValues(string(p.Group)).Observe(res.DurationMS / 1000)
	case errors.Is(err, transfer.ErrTransferTimeout):
		rec.Status = model.StatusTimeout
		rec.Error = err.Error()
		line = failureLine(ts, rec.TestID, "Transfer timed out")
	default:
		rec.Status = model.StatusFailure
		rec.Error = err.Error()
		line = failureLine(ts, rec.TestID, "Transfer failed (exit code "+
			strconv.Itoa(res.ExitCode)+")")
	}
	transfersTotal.WithLabelValues(string(p.Group), string(rec.Status)).Inc()

	if lerr := d.session.ClientLog().Append(line); lerr != nil {
		err = errors.Join(err, fmt.Errorf("writing completion log: %w", lerr))
	}
	if err != nil {
		d.emitter.OnError(err)
	}
	d.emitter.OnRecord(rec)
	return rec, err
}

func failureLine(ts time.Time, id uint64, msg string) string {
	return fmt.Sprintf("[%s] [%d] %s", ts.Format(spec.TimestampLayout), id, msg)
}
