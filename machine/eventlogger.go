package machine

import (
	"log"

	"github.com/sarchlab/lamportvm/hooking"
)

// EventLogger is a hook that writes the event log of a machine. The labels
// "clock rate: ", "Queue length: " and "Logical clock: " are read back by the
// log analysis and must not change.
type EventLogger struct {
	*log.Logger
}

// NewEventLogger returns a new EventLogger which will write in to the logger
func NewEventLogger(logger *log.Logger) *EventLogger {
	h := new(EventLogger)
	h.Logger = logger
	return h
}

// Func writes the information of the hook site into the logger.
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case HookPosInit:
		status := ctx.Item.(Status)
		h.Printf("Machine initialized with clock rate: %d ticks/second",
			status.ClockRate)
	case HookPosCycle:
		h.logEvent(ctx.Item.(Event))
	case HookPosDeliveryFailure:
		failure := ctx.Item.(DeliveryFailure)
		h.Printf("Error sending message to Machine %d at %s: %v",
			failure.Peer.ID, failure.Peer.Addr, failure.Err)
	}
}

func (h *EventLogger) logEvent(evt Event) {
	switch evt.Kind {
	case EventReceive:
		h.Printf("Received message from Machine %d, "+
			"Queue length: %d, Logical clock: %d",
			evt.Peer, evt.QueueLength, evt.LogicalClock)
	case EventUnicast:
		h.Printf("Sent message to Machine %d, Logical clock: %d",
			evt.Peer, evt.LogicalClock)
	case EventBroadcast:
		h.Printf("Sent message to ALL other machines, Logical clock: %d",
			evt.LogicalClock)
	case EventInternal:
		h.Printf("Internal event, Logical clock: %d", evt.LogicalClock)
	}
}
