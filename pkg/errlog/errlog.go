// Package errlog persists accuracy-test errors. Sinks implement
// calibration.ErrorSink and are opened once per test run.
package errlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teslashibe/go-gaze/pkg/calibration"
)

// TimeLayout is the timestamp used in log file names.
const TimeLayout = "02-01-2006_15.04.05"

// FileName returns <prefix>_<stab|raw>_<dd-mm-yyyy_HH.MM.SS>.txt.
func FileName(prefix string, stabilized bool, t time.Time) string {
	mode := "raw"
	if stabilized {
		mode = "stab"
	}
	return fmt.Sprintf("%s_%s_%s.txt", prefix, mode, t.Format(TimeLayout))
}

// TextSink writes one error value per line.
type TextSink struct {
	path string

	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	closed bool
}

// CreateText creates dir if needed and opens a new log file in it.
func CreateText(dir, prefix string, stabilized bool, now time.Time) (*TextSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("errlog: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(prefix, stabilized, now))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("errlog: %w", err)
	}
	return &TextSink{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the log file path.
func (s *TextSink) Path() string {
	return s.path
}

// Record implements calibration.ErrorSink.
func (s *TextSink) Record(rec calibration.TestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if _, err := fmt.Fprintf(s.w, "%f\n", rec.Error); err != nil {
		return fmt.Errorf("errlog: write %s: %w", s.path, err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *TextSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.w.Flush(), s.f.Close())
}

type discard struct{}

func (discard) Record(calibration.TestRecord) error { return nil }
func (discard) Close() error { return nil }

// Discard accepts and drops every record.
var Discard calibration.ErrorSink = discard{}

type multi []calibration.ErrorSink

// Multi fans records out to every sink. A failing sink does not stop the
// others; errors are joined.
func Multi(sinks ...calibration.ErrorSink) calibration.ErrorSink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Record(rec calibration.TestRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Record(rec))
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
