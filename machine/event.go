package machine

import (
	"fmt"
	"time"

	"github.com/sarchlab/lamportvm/hooking"
	"github.com/sarchlab/lamportvm/network"
)

// HookPosInit marks the creation of a machine. The item is a Status.
var HookPosInit = &hooking.HookPos{Name: "Machine Init"}

// HookPosCycle marks the end of the clock update of a cycle. The item is an
// Event.
var HookPosCycle = &hooking.HookPos{Name: "Machine Cycle"}

// HookPosDeliveryFailure marks a failed delivery to a peer. The item is a
// DeliveryFailure.
var HookPosDeliveryFailure = &hooking.HookPos{Name: "Delivery Failure"}

// EventKind tells which rule updated the clock in a cycle.
type EventKind int

// Cycle event kinds.
const (
	EventReceive EventKind = iota
	EventUnicast
	EventBroadcast
	EventInternal
)

func (k EventKind) String() string {
	switch k {
	case EventReceive:
		return "receive"
	case EventUnicast:
		return "unicast"
	case EventBroadcast:
		return "broadcast"
	case EventInternal:
		return "internal"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// NoPeer is the Peer of events that do not involve a single peer.
const NoPeer = -1

// An Event describes one clock cycle.
type Event struct {
	MachineID int
	Kind      EventKind

	// Peer is the sender of a received message or the target of a unicast.
	Peer int

	// QueueLength is the inbound queue size right after the dequeue of a
	// receive event.
	QueueLength int

	// LogicalClock is the value after the update.
	LogicalClock uint64

	Time time.Time
}

// A DeliveryFailure reports a message that could not be handed to a peer.
type DeliveryFailure struct {
	Peer network.Peer
	Err  error
}

// Status is a point-in-time view of a machine.
type Status struct {
	ID           int    `json:"id"`
	ClockRate    int    `json:"clock_rate"`
	Addr         string `json:"addr"`
	Peers        []int  `json:"peers"`
	LogicalClock uint64 `json:"logical_clock"`
	QueueLength  int    `json:"queue_length"`
	Cycles       uint64 `json:"cycles"`
	Running      bool   `json:"running"`
}
