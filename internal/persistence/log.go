package persistence

import (
	"os"
	"path/filepath"
	"sync"
)

// LogFile is an append-only text log. Every line is synced to disk before
// Append returns, so already collected measurements survive a crash. A
// LogFile never truncates an existing file.
type LogFile struct {
	mu   sync.Mutex
	fp   *os.File
	path string
}

// OpenLog opens (or creates) the log at p for appending. Parent directories
// are created as needed.
func OpenLog(p string) (*LogFile, error) {
	fp, err := openAppend(p)
	if err != nil {
		return nil, err
	}
	return &LogFile{fp: fp, path: p}, nil
}

func openAppend(p string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
}

// Path returns the path of the log.
func (l *LogFile) Path() string {
	return l.path
}

// Append writes line followed by a newline and syncs the file.
func (l *LogFile) Append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.fp.WriteString(line + "\n"); err != nil {
		return err
	}
	return l.fp.Sync()
}

// Close syncs and closes the log.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fp.Sync(); err != nil {
		l.fp.Close()
		return err
	}
	return l.fp.Close()
}
