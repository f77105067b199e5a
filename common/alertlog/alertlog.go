// Package alertlog reads and writes the append-only NDJSON alert log.
package alertlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joshuaworth/hoistwaywatch/common/models"
)

// HeaderNote marks the first record of a new alert log.
const HeaderNote = "hoistwaywatch alerts log start"

// maxLineSize bounds a single alert log line when reading.
const maxLineSize = 1 << 20

// Header is the non-alert record written when a log file is created.
type Header struct {
	Timestamp time.Time `json:"ts"`
	Note      string    `json:"note"`
}

// Log is an append-only NDJSON file. Every line is synced before Append
// returns.
type Log struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open opens path for appending, creating parent directories as needed. A
// header record is written when the file is new or empty.
func Open(path string, now func() time.Time) (*Log, error) {
	if path == "" {
		return nil, errors.New("alert log path is required")
	}
	if now == nil {
		now = time.Now
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create alert log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open alert log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat alert log: %w", err)
	}

	l := &Log{path: path, f: f}
	if info.Size() == 0 {
		header, err := json.Marshal(Header{Timestamp: now().UTC(), Note: HeaderNote})
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := l.Append(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes line followed by a newline and syncs the file.
func (l *Log) Append(line []byte) error {
	if bytes.ContainsAny(line, "\r\n") {
		return errors.New("alert log line must not contain newlines")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := l.f.Write(buf); err != nil {
		return fmt.Errorf("write alert log: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync alert log: %w", err)
	}
	return nil
}

// Close closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// ReadResult is the outcome of reading an alert log.
type ReadResult struct {
	Alerts  []*models.Alert
	Skipped int
}

// Read parses every alert line in r. Blank lines are ignored; header records
// and any other line that is not a valid alert are counted in Skipped.
func Read(r io.Reader) (*ReadResult, error) {
	res := &ReadResult{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		alert, err := models.ParseAlert(line)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Alerts = append(res.Alerts, alert)
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read alert log: %w", err)
	}
	return res, nil
}

// ReadFile opens and reads the alert log at path.
func ReadFile(path string) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()
	return Read(f)
}
