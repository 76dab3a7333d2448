package machine

import (
	"sync"

	"github.com/sarchlab/lamportvm/datarecording"
	"github.com/sarchlab/lamportvm/hooking"
)

// CycleTableName is the table cycle records are written to.
const CycleTableName = "cycle_events"

// A CycleRecord is one row of the cycle table.
type CycleRecord struct {
	MachineID    int
	Kind         string
	Peer         int
	QueueLength  int
	LogicalClock uint64
	WallTime     float64
}

// A CycleRecorder is a hook that stores every cycle event in a data recorder.
// One recorder can be shared by all the machines of a simulation.
type CycleRecorder struct {
	recorder datarecording.DataRecorder

	lock sync.Mutex
	err  error
}

// NewCycleRecorder creates the cycle table if needed and returns the hook.
func NewCycleRecorder(
	recorder datarecording.DataRecorder,
) (*CycleRecorder, error) {
	err := recorder.CreateTable(CycleTableName, CycleRecord{})
	if err != nil {
		return nil, err
	}

	return &CycleRecorder{recorder: recorder}, nil
}

// Func records cycle events and ignores other hook positions.
func (h *CycleRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosCycle {
		return
	}

	evt := ctx.Item.(Event)

	err := h.recorder.InsertData(CycleTableName, CycleRecord{
		MachineID:    evt.MachineID,
		Kind:         evt.Kind.String(),
		Peer:         evt.Peer,
		QueueLength:  evt.QueueLength,
		LogicalClock: evt.LogicalClock,
		WallTime:     float64(evt.Time.UnixNano()) / 1e9,
	})
	if err != nil {
		h.lock.Lock()
		if h.err == nil {
			h.err = err
		}
		h.lock.Unlock()
	}
}

// Err returns the first error met while recording.
func (h *CycleRecorder) Err() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.err
}
