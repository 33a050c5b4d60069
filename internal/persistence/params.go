package persistence

import (
	"errors"
	"os"
	"sync"

	"github.com/gocarina/gocsv"
)

// ParamRow is a row of the structured parameter log. The group and the
// parameter value are embedded so a completion log can be joined by test id
// without relying on the id range partition.
type ParamRow struct {
	TestID         uint64  `csv:"test_id"`
	TestName       string  `csv:"test_name"`
	Group          string  `csv:"group"`
	ParameterValue float64 `csv:"parameter_value"`
	ParameterUnit  string  `csv:"parameter_unit"`
	Bandwidth      string  `csv:"bandwidth"`
	Delay          string  `csv:"delay"`
	FileSize       string  `csv:"file_size"`
	FilePath       string  `csv:"file_path"`
	RunID          string  `csv:"run_id"`
}

// ParamLog is an append-only CSV log of ParamRow. The header is written only
// when the file is empty.
type ParamLog struct {
	mu   sync.Mutex
	fp   *os.File
	path string
}

// OpenParamLog opens (or creates) the parameter log at p for appending.
func OpenParamLog(p string) (*ParamLog, error) {
	fp, err := openAppend(p)
	if err != nil {
		return nil, err
	}
	return &ParamLog{fp: fp, path: p}, nil
}

// Path returns the path of the log.
func (l *ParamLog) Path() string {
	return l.path
}

// Write appends row and syncs the file.
func (l *ParamLog) Write(row ParamRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, err := l.fp.Stat()
	if err != nil {
		return err
	}
	rows := []ParamRow{row}
	if info.Size() == 0 {
		err = gocsv.Marshal(&rows, l.fp)
	} else {
		err = gocsv.MarshalWithoutHeaders(&rows, l.fp)
	}
	if err != nil {
		return err
	}
	return l.fp.Sync()
}

// Close syncs and closes the log.
func (l *ParamLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fp.Sync(); err != nil {
		l.fp.Close()
		return err
	}
	return l.fp.Close()
}

// ReadParamLog reads all the rows of the parameter log at p.
func ReadParamLog(p string) ([]ParamRow, error) {
	fp, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	rows := []ParamRow{}
	err = gocsv.UnmarshalFile(fp, &rows)
	if errors.Is(err, gocsv.ErrEmptyCSVFile) {
		return rows, nil
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}
