// Package analysis reads machine event logs back and tabulates the logical
// clock and queue length of every machine over time.
package analysis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sarchlab/lamportvm/eventlog"
)

// ErrNoLogs is returned when a directory holds no machine log.
var ErrNoLogs = errors.New("no machine log found")

// ErrNoTickRate is returned when a log does not announce its clock rate.
var ErrNoTickRate = errors.New("tick rate not found")

var (
	tickRatePattern     = regexp.MustCompile(`clock rate: (\d+)`)
	logicalClockPattern = regexp.MustCompile(`Logical clock: (\d+)`)
	queueLengthPattern  = regexp.MustCompile(`Queue length: (\d+)`)
	logFilePattern      = regexp.MustCompile(`^machine_(\d+)\.log$`)
)

// A Sample is one value read from a log line.
type Sample struct {
	Time  time.Time
	Value uint64
}

// A MachineLog holds the series read from the log of one machine.
type MachineLog struct {
	ID int

	// TickRate is zero if the log never announced it.
	TickRate int

	LogicalClocks []Sample
	QueueLengths  []Sample
}

// ParseLine splits an event log line into its timestamp and message.
func ParseLine(line string) (time.Time, string, bool) {
	stamp, msg, found := strings.Cut(
		strings.TrimSpace(line), eventlog.Separator)
	if !found {
		return time.Time{}, "", false
	}

	t, err := time.Parse(eventlog.TimestampLayout, stamp)
	if err != nil {
		return time.Time{}, "", false
	}

	return t, msg, true
}

func extractValue(msg string, pattern *regexp.Regexp) (uint64, bool) {
	match := pattern.FindStringSubmatch(msg)
	if match == nil {
		return 0, false
	}

	v, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// ReadLog reads the series of one machine. Lines that are not event log
// lines are skipped. The tick rate is taken from the first line.
func ReadLog(r io.Reader, machineID int) (*MachineLog, error) {
	ml := &MachineLog{ID: machineID}
	scanner := bufio.NewScanner(r)
	first := true

	for scanner.Scan() {
		t, msg, ok := ParseLine(scanner.Text())

		if first {
			first = false

			if rate, found := extractValue(msg, tickRatePattern); found {
				ml.TickRate = int(rate)
			}
		}

		if !ok {
			continue
		}

		if v, found := extractValue(msg, logicalClockPattern); found {
			ml.LogicalClocks = append(ml.LogicalClocks, Sample{t, v})
		}

		if v, found := extractValue(msg, queueLengthPattern); found {
			ml.QueueLengths = append(ml.QueueLengths, Sample{t, v})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ml, nil
}

// ReadLogFile reads the log of one machine from a file.
func ReadLogFile(path string, machineID int) (*MachineLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadLog(f, machineID)
}

// DiscoverLogs returns the IDs of the machines that left a log in dir, in
// increasing order.
func DiscoverLogs(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var ids []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		match := logFilePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}

		id, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoLogs, dir)
	}

	sort.Ints(ids)

	return ids, nil
}

// ReadDir reads every machine log in dir. Every log must carry a tick rate.
func ReadDir(dir string) ([]*MachineLog, error) {
	ids, err := DiscoverLogs(dir)
	if err != nil {
		return nil, err
	}

	logs := make([]*MachineLog, 0, len(ids))
	for _, id := range ids {
		path := filepath.Join(dir, eventlog.FileName(id))

		ml, err := ReadLogFile(path, id)
		if err != nil {
			return nil, err
		}

		if ml.TickRate == 0 {
			return nil, fmt.Errorf("%w in %s", ErrNoTickRate, path)
		}

		logs = append(logs, ml)
	}

	return logs, nil
}
