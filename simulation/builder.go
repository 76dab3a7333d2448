package simulation

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/xid"

	"github.com/sarchlab/lamportvm/config"
	"github.com/sarchlab/lamportvm/datarecording"
	"github.com/sarchlab/lamportvm/eventlog"
	"github.com/sarchlab/lamportvm/machine"
	"github.com/sarchlab/lamportvm/monitoring"
)

// Builder can be used to build a simulation.
type Builder struct {
	config     config.Config
	machineIDs []int
	clockRates map[int]machine.ClockRate
	monitor    *monitoring.Monitor
}

// MakeBuilder creates a new builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		config: config.Default(),
	}
}

// WithConfig sets the configuration of the run.
func (b Builder) WithConfig(c config.Config) Builder {
	b.config = c
	return b
}

// WithMachineIDs restricts the simulation to some machines of the topology.
// The others are expected to run in other processes.
func (b Builder) WithMachineIDs(ids ...int) Builder {
	b.machineIDs = append([]int(nil), ids...)
	return b
}

// WithClockRate fixes the clock rate of one machine instead of drawing it.
func (b Builder) WithClockRate(id int, rate machine.ClockRate) Builder {
	rates := make(map[int]machine.ClockRate, len(b.clockRates)+1)
	for k, v := range b.clockRates {
		rates[k] = v
	}

	rates[id] = rate
	b.clockRates = rates

	return b
}

// WithMonitor uses the given monitor instead of the one the configuration
// asks for. The caller starts its server.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

func (b Builder) ids() []int {
	if b.machineIDs != nil {
		return b.machineIDs
	}

	ids := make([]int, b.config.NumMachines)
	for i := range ids {
		ids[i] = i
	}

	return ids
}

// Build creates the machines and opens their logs. Every machine is bound to
// its address when Build returns.
func (b Builder) Build() (*Simulation, error) {
	err := b.config.Validate()
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		id:     xid.New().String(),
		config: b.config,
	}

	err = b.buildRecorder(s)
	if err != nil {
		return nil, err
	}

	for _, id := range b.ids() {
		err = b.buildMachine(s, id)
		if err != nil {
			return nil, errors.Join(err, s.release())
		}
	}

	err = b.buildMonitor(s)
	if err != nil {
		return nil, errors.Join(err, s.release())
	}

	return s, nil
}

func (b Builder) buildRecorder(s *Simulation) error {
	if b.config.RecordDB == "" {
		return nil
	}

	recorder, err := datarecording.New(b.config.RecordDB)
	if err != nil {
		return err
	}

	cycleRecorder, err := machine.NewCycleRecorder(recorder)
	if err != nil {
		return errors.Join(err, recorder.Close())
	}

	execRecorder, err := datarecording.NewExecRecorder(recorder)
	if err != nil {
		return errors.Join(err, recorder.Close())
	}

	execRecorder.Start()
	execRecorder.Set("Run ID", s.id)
	execRecorder.Set("Machines", fmt.Sprint(b.ids()))

	s.recorder = recorder
	s.cycleRecorder = cycleRecorder
	s.execRecorder = execRecorder

	return nil
}

func (b Builder) buildMachine(s *Simulation, id int) error {
	logger, file, err := eventlog.OpenFile(b.config.LogDir, id)
	if err != nil {
		return err
	}

	s.logFiles = append(s.logFiles, file)

	mb := machine.MakeBuilder().
		WithID(id).
		WithTopology(b.config.Topology()).
		WithActionPolicy(b.config.Policy()).
		WithSeed(b.config.Seed).
		WithStartupDelay(b.config.StartupDelay()).
		WithClockRate(b.clockRates[id]).
		WithLogger(logger)

	if s.cycleRecorder != nil {
		mb = mb.WithHook(s.cycleRecorder)
	}

	m, err := mb.Build()
	if err != nil {
		return fmt.Errorf("machine %d: %w", id, err)
	}

	s.machines = append(s.machines, m)

	return nil
}

func (b Builder) buildMonitor(s *Simulation) error {
	monitor := b.monitor
	ownServer := false

	if monitor == nil && b.config.MonitorPort != 0 {
		monitor = monitoring.NewMonitor().WithPortNumber(b.config.MonitorPort)
		ownServer = true
	}

	if monitor == nil {
		return nil
	}

	for _, m := range s.machines {
		monitor.RegisterMachine(m)
	}

	s.monitor = monitor

	if ownServer {
		_, err := monitor.StartServer()
		if err != nil {
			return err
		}

		s.ownMonitor = true
	}

	return nil
}

// LogPath returns where the log of a machine is written.
func LogPath(c config.Config, id int) string {
	return filepath.Join(c.LogDir, eventlog.FileName(id))
}

func closeAll[T io.Closer](closers []T) error {
	var errs []error
	for _, c := range closers {
		err := c.Close()
		if err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
