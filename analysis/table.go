package analysis

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File names written by AnalyzeDir.
const (
	LogicalClockFile = "logical_clock.txt"
	QueueLengthFile  = "queue_length.txt"
	SummaryFile      = "summary.csv"
)

const timestampWidth = 10

func columnHeader(ml *MachineLog) string {
	return fmt.Sprintf("Machine %d (%d ticks/s)", ml.ID, ml.TickRate)
}

// WriteValueTable writes one series of every machine as a table. Rows are
// grouped by second in chronological order; a machine with several samples in
// the same second shows the last one, and a machine without a sample in that
// second shows an empty cell.
func WriteValueTable(
	w io.Writer,
	logs []*MachineLog,
	series func(*MachineLog) []Sample,
) error {
	headers := make([]string, len(logs))
	valueWidth := 0

	for i, ml := range logs {
		headers[i] = columnHeader(ml)
		valueWidth = max(valueWidth, len(headers[i])+4)
	}

	bw := bufio.NewWriter(w)

	header := padRight("Timestamp", timestampWidth)
	for _, h := range headers {
		header += " | " + padRight(h, valueWidth-3)
	}

	fmt.Fprintln(bw, header)
	fmt.Fprintln(bw, strings.Repeat("-",
		max(0, timestampWidth+(valueWidth+3)*len(logs)-3)))

	rows := make(map[time.Time][]string)
	for i, ml := range logs {
		for _, s := range series(ml) {
			row, ok := rows[s.Time]
			if !ok {
				row = make([]string, len(logs))
				rows[s.Time] = row
			}

			row[i] = fmt.Sprint(s.Value)
		}
	}

	stamps := make([]time.Time, 0, len(rows))
	for t := range rows {
		stamps = append(stamps, t)
	}

	sort.Slice(stamps, func(i, j int) bool {
		return stamps[i].Before(stamps[j])
	})

	for _, t := range stamps {
		line := padRight(t.Format(time.TimeOnly), timestampWidth)
		for _, v := range rows[t] {
			line += " | " + padRight(v, valueWidth-3)
		}

		fmt.Fprintln(bw, line)
	}

	return bw.Flush()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}

	return s + strings.Repeat(" ", width-len(s))
}

func logicalClocks(ml *MachineLog) []Sample {
	return ml.LogicalClocks
}

func queueLengths(ml *MachineLog) []Sample {
	return ml.QueueLengths
}

func writeTableFile(
	path string,
	logs []*MachineLog,
	series func(*MachineLog) []Sample,
) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	err = WriteValueTable(f, logs, series)
	if err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// A Report lists what AnalyzeDir read and wrote.
type Report struct {
	Logs             []*MachineLog
	Summary          Summary
	LogicalClockPath string
	QueueLengthPath  string
	SummaryPath      string
}

// AnalyzeDir reads every machine log in dir and writes the logical clock
// table, the queue length table and a summary next to them.
func AnalyzeDir(dir string) (*Report, error) {
	logs, err := ReadDir(dir)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Logs:             logs,
		Summary:          Summarize(logs),
		LogicalClockPath: filepath.Join(dir, LogicalClockFile),
		QueueLengthPath:  filepath.Join(dir, QueueLengthFile),
		SummaryPath:      filepath.Join(dir, SummaryFile),
	}

	err = writeTableFile(report.LogicalClockPath, logs, logicalClocks)
	if err != nil {
		return nil, err
	}

	err = writeTableFile(report.QueueLengthPath, logs, queueLengths)
	if err != nil {
		return nil, err
	}

	err = WriteSummaryCSV(report.SummaryPath, report.Summary)
	if err != nil {
		return nil, err
	}

	return report, nil
}
