// Package simulation runs a set of machines together for a given time.
package simulation

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/lamportvm/config"
	"github.com/sarchlab/lamportvm/datarecording"
	"github.com/sarchlab/lamportvm/machine"
	"github.com/sarchlab/lamportvm/monitoring"
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("simulation already run")

// A Simulation owns the machines of one run together with their logs, the
// optional recorder and the optional monitor.
type Simulation struct {
	id     string
	config config.Config

	machines []*machine.Machine
	logFiles []*os.File

	recorder      datarecording.DataRecorder
	cycleRecorder *machine.CycleRecorder
	execRecorder  *datarecording.ExecRecorder

	monitor    *monitoring.Monitor
	ownMonitor bool

	ran         atomic.Bool
	releaseOnce sync.Once
	releaseErr  error
}

// ID returns the unique identifier of the run.
func (s *Simulation) ID() string {
	return s.id
}

// Config returns the configuration of the run.
func (s *Simulation) Config() config.Config {
	return s.config
}

// Machines returns the machines of the run, in the order they were built.
func (s *Simulation) Machines() []*machine.Machine {
	return append([]*machine.Machine(nil), s.machines...)
}

// Machine returns the machine with the given ID, or nil.
func (s *Simulation) Machine(id int) *machine.Machine {
	for _, m := range s.machines {
		if m.ID() == id {
			return m
		}
	}

	return nil
}

// Recorder returns the data recorder, or nil if recording is disabled.
func (s *Simulation) Recorder() datarecording.DataRecorder {
	return s.recorder
}

// Monitor returns the monitor, or nil if monitoring is disabled.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Run starts every machine and stops them all once the duration has elapsed
// or ctx is done, whichever comes first. A zero duration runs until ctx is
// done. A machine stopped before it got to start is not an error. Run releases
// the resources of the simulation before returning.
func (s *Simulation) Run(ctx context.Context, duration time.Duration) error {
	if !s.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	var g errgroup.Group
	for _, m := range s.machines {
		g.Go(func() error {
			err := m.Start()
			if errors.Is(err, machine.ErrStopped) {
				return nil
			}

			return err
		})
	}

	s.wait(ctx, duration)

	s.stopMachines()

	err := g.Wait()

	return errors.Join(err, s.release())
}

func (s *Simulation) wait(ctx context.Context, duration time.Duration) {
	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	done := make(chan struct{})
	defer close(done)

	if s.monitor != nil && duration > 0 {
		go s.trackProgress(duration, done)
	}

	select {
	case <-deadline:
	case <-ctx.Done():
	}
}

func (s *Simulation) trackProgress(duration time.Duration, done <-chan struct{}) {
	bar := s.monitor.CreateProgressBar(
		"Simulation "+s.id, uint64(duration/time.Second))
	defer s.monitor.CompleteProgressBar(bar)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bar.IncrementFinished(1)
		case <-done:
			return
		}
	}
}

func (s *Simulation) stopMachines() {
	for _, m := range s.machines {
		// Stop only fails when closing the listener fails, which leaves
		// nothing else to clean up.
		_ = m.Stop()
	}
}

// Close stops the machines of a simulation that is not running and releases
// its resources. It does not need to be called after Run.
func (s *Simulation) Close() error {
	s.stopMachines()
	return s.release()
}

func (s *Simulation) release() error {
	s.releaseOnce.Do(func() {
		var errs []error

		if s.ownMonitor {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			errs = append(errs, s.monitor.Shutdown(ctx))
			cancel()
		}

		s.stopMachines()
		errs = append(errs, closeAll(s.logFiles))

		if s.recorder != nil {
			errs = append(errs,
				s.cycleRecorder.Err(),
				s.execRecorder.End(),
				s.recorder.Close())
		}

		s.releaseErr = errors.Join(errs...)
	})

	return s.releaseErr
}
