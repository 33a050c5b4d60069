package driver

import (
	"errors"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/m-lab/shapebench/internal/persistence"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

// Session holds the per-run state: the run id, the test id counter and the
// opened logs. Test ids start at 0 and are never reused within a session.
// Each session writes its logs to its own run directory, so ids restarting
// at 0 in a later run never collide with earlier ones.
type Session struct {
	RunID      string
	ResultsDir string
	// Dir is the run directory, ResultsDir/RunID.
	Dir string

	nextID    atomic.Uint64
	clientLog *persistence.LogFile
	paramLog  *persistence.ParamLog
}

// NewSession creates a session writing its logs to a new run directory under
// resultsDir.
func NewSession(resultsDir string) (*Session, error) {
	runID := uuid.NewString()
	dir := filepath.Join(resultsDir, runID)
	clientLog, err := persistence.OpenLog(filepath.Join(dir, spec.ClientLogName))
	if err != nil {
		return nil, err
	}
	paramLog, err := persistence.OpenParamLog(filepath.Join(dir, spec.ParamLogName))
	if err != nil {
		clientLog.Close()
		return nil, err
	}
	return &Session{
		RunID:      runID,
		ResultsDir: resultsDir,
		Dir:        dir,
		clientLog:  clientLog,
		paramLog:   paramLog,
	}, nil
}

// AllocateTestID returns the next test id.
func (s *Session) AllocateTestID() uint64 {
	return s.nextID.Add(1) - 1
}

// ClientLog returns the completion log of this session.
func (s *Session) ClientLog() *persistence.LogFile {
	return s.clientLog
}

// ParamLog returns the parameter log of this session.
func (s *Session) ParamLog() *persistence.ParamLog {
	return s.paramLog
}

// Close syncs and closes the logs.
func (s *Session) Close() error {
	return errors.Join(s.clientLog.Close(), s.paramLog.Close())
}
