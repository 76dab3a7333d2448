package analysis

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sarchlab/lamportvm/datarecording"
	"github.com/sarchlab/lamportvm/machine"
)

// A MachineSummary condenses the run of one machine.
type MachineSummary struct {
	ID             int
	TickRate       int
	Cycles         int
	FinalClock     uint64
	MaxQueueLength uint64
}

// A Summary condenses a whole run.
type Summary struct {
	Machines []MachineSummary

	// MaxDrift is the largest gap between the clocks of two machines observed
	// at the end of the same second.
	MaxDrift uint64
}

// Summarize computes the summary of the logs of a run.
func Summarize(logs []*MachineLog) Summary {
	s := Summary{}

	for _, ml := range logs {
		ms := MachineSummary{
			ID:       ml.ID,
			TickRate: ml.TickRate,
			Cycles:   len(ml.LogicalClocks),
		}

		if n := len(ml.LogicalClocks); n > 0 {
			ms.FinalClock = ml.LogicalClocks[n-1].Value
		}

		for _, q := range ml.QueueLengths {
			ms.MaxQueueLength = max(ms.MaxQueueLength, q.Value)
		}

		s.Machines = append(s.Machines, ms)
	}

	series := make([][]Sample, len(logs))
	for i, ml := range logs {
		series[i] = ml.LogicalClocks
	}

	s.MaxDrift = maxDrift(series)

	return s
}

// maxDrift walks the seconds of a run in order and, at the end of each, takes
// the gap between the largest and smallest clock among the machines that have
// produced a value so far.
func maxDrift(series [][]Sample) uint64 {
	stampSet := make(map[time.Time]bool)
	for _, samples := range series {
		for _, s := range samples {
			stampSet[s.Time] = true
		}
	}

	stamps := make([]time.Time, 0, len(stampSet))
	for t := range stampSet {
		stamps = append(stamps, t)
	}

	sort.Slice(stamps, func(i, j int) bool {
		return stamps[i].Before(stamps[j])
	})

	next := make([]int, len(series))
	current := make([]uint64, len(series))
	seen := make([]bool, len(series))

	var drift uint64
	for _, t := range stamps {
		for i, samples := range series {
			for next[i] < len(samples) && !samples[next[i]].Time.After(t) {
				current[i] = samples[next[i]].Value
				seen[i] = true
				next[i]++
			}
		}

		var lo, hi uint64
		first := true
		for i := range series {
			if !seen[i] {
				continue
			}

			if first {
				lo, hi = current[i], current[i]
				first = false
				continue
			}

			lo = min(lo, current[i])
			hi = max(hi, current[i])
		}

		drift = max(drift, hi-lo)
	}

	return drift
}

// WriteSummaryCSV writes one row per machine followed by the drift.
func WriteSummaryCSV(path string, s Summary) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{
		"Machine", "TickRate", "Cycles", "FinalClock", "MaxQueueLength",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, m := range s.Machines {
		err := w.Write([]string{
			fmt.Sprint(m.ID),
			fmt.Sprint(m.TickRate),
			fmt.Sprint(m.Cycles),
			fmt.Sprint(m.FinalClock),
			fmt.Sprint(m.MaxQueueLength),
		})
		if err != nil {
			return err
		}
	}

	err = w.Write([]string{"MaxDrift", fmt.Sprint(s.MaxDrift), "", "", ""})
	if err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return f.Close()
}

// ReadRecording rebuilds the machine logs from the cycle table of a SQLite
// recording. Timestamps are truncated to the second, as in the event logs.
// Tick rates are not recorded and stay zero.
func ReadRecording(ctx context.Context, path string) ([]*MachineLog, error) {
	reader := datarecording.NewSQLiteReader(path)

	err := reader.Init()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	reader.MapTable(machine.CycleTableName, machine.CycleRecord{})

	rows, _, err := reader.QueryTable(ctx, machine.CycleTableName,
		datarecording.QueryParams{OrderBy: "MachineID, WallTime"})
	if err != nil {
		return nil, err
	}

	byID := make(map[int]*MachineLog)
	var ids []int

	for _, row := range rows {
		rec := row.(*machine.CycleRecord)

		ml, ok := byID[rec.MachineID]
		if !ok {
			ml = &MachineLog{ID: rec.MachineID}
			byID[rec.MachineID] = ml
			ids = append(ids, rec.MachineID)
		}

		t := time.Unix(int64(rec.WallTime), 0)
		ml.LogicalClocks = append(ml.LogicalClocks,
			Sample{Time: t, Value: rec.LogicalClock})

		if rec.Kind == machine.EventReceive.String() {
			ml.QueueLengths = append(ml.QueueLengths,
				Sample{Time: t, Value: uint64(rec.QueueLength)})
		}
	}

	sort.Ints(ids)

	logs := make([]*MachineLog, 0, len(ids))
	for _, id := range ids {
		logs = append(logs, byID[id])
	}

	return logs, nil
}
