// Package eventlog writes the per-machine event log, one
// "<timestamp> - <message>" line per record.
package eventlog

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampLayout is the wall-clock layout of every line.
const TimestampLayout = time.DateTime

// Separator sits between the timestamp and the message.
const Separator = " - "

// A Writer prefixes every line it receives with the current wall-clock time.
type Writer struct {
	lock sync.Mutex
	w    io.Writer
	now  func() time.Time
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// Write writes p as one or more timestamped lines. A missing trailing newline
// is added.
func (w *Writer) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	stamp := w.now().Format(TimestampLayout) + Separator

	var out bytes.Buffer
	for _, line := range bytes.SplitAfter(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		out.WriteString(stamp)
		out.Write(line)

		if line[len(line)-1] != '\n' {
			out.WriteByte('\n')
		}
	}

	_, err := w.w.Write(out.Bytes())
	if err != nil {
		return 0, err
	}

	return len(p), nil
}

// NewLogger creates a logger whose lines follow the event log format.
func NewLogger(w io.Writer) *log.Logger {
	return log.New(NewWriter(w), "", 0)
}

// FileName returns the log file name of a machine.
func FileName(machineID int) string {
	return fmt.Sprintf("machine_%d.log", machineID)
}

// OpenFile creates (or truncates) the log file of a machine in dir and
// returns a logger writing to it. The caller closes the file.
func OpenFile(dir string, machineID int) (*log.Logger, *os.File, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, nil, err
	}

	path := filepath.Join(dir, FileName(machineID))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, err
	}

	return NewLogger(f), f, nil
}
