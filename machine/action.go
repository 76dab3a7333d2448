package machine

import (
	"fmt"
	"log"
)

// ActionRange is the number of equally likely outcomes of one action draw.
// Draws are in [1, ActionRange].
const ActionRange = 10

// ActionKind tells what a machine does in a cycle without inbound messages.
type ActionKind int

// Local action kinds.
const (
	ActionInternal ActionKind = iota
	ActionUnicast
	ActionBroadcast
)

func (k ActionKind) String() string {
	switch k {
	case ActionInternal:
		return "internal"
	case ActionUnicast:
		return "unicast"
	case ActionBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// An Action is the outcome of the action policy. Target is an index into the
// machine's peer list and is only meaningful for ActionUnicast.
type Action struct {
	Kind   ActionKind
	Target int
}

// ActionPolicy partitions the draw range into unicast, broadcast and internal
// bands. Every machine of a topology must use the same policy.
type ActionPolicy int

const (
	// ScaledBands sends to peer i on draw i+1 for every peer, broadcasts on
	// the next draw, and treats the rest as internal events.
	ScaledBands ActionPolicy = iota

	// FixedBands unicasts on draws 1 and 2, broadcasts on draw 3, and treats
	// draws 4 to 10 as internal events, whatever the peer count.
	FixedBands
)

// ParseActionPolicy converts a configuration name into a policy.
func ParseActionPolicy(name string) (ActionPolicy, error) {
	switch name {
	case "", "scaled":
		return ScaledBands, nil
	case "fixed":
		return FixedBands, nil
	default:
		return 0, fmt.Errorf("unknown action policy %q", name)
	}
}

func (p ActionPolicy) String() string {
	switch p {
	case ScaledBands:
		return "scaled"
	case FixedBands:
		return "fixed"
	default:
		return fmt.Sprintf("ActionPolicy(%d)", int(p))
	}
}

// Choose maps a draw in [1, ActionRange] and a peer count to an action. A
// machine without peers only performs internal events.
func (p ActionPolicy) Choose(draw, numPeers int) Action {
	if draw < 1 || draw > ActionRange {
		log.Panicf("action draw %d out of range", draw)
	}

	if numPeers <= 0 {
		return Action{Kind: ActionInternal}
	}

	switch p {
	case FixedBands:
		return chooseFixed(draw, numPeers)
	default:
		return chooseScaled(draw, numPeers)
	}
}

func chooseScaled(draw, numPeers int) Action {
	switch {
	case draw <= numPeers:
		return Action{Kind: ActionUnicast, Target: draw - 1}
	case draw == numPeers+1:
		return Action{Kind: ActionBroadcast}
	default:
		return Action{Kind: ActionInternal}
	}
}

func chooseFixed(draw, numPeers int) Action {
	switch draw {
	case 1, 2:
		return Action{Kind: ActionUnicast, Target: (draw - 1) % numPeers}
	case 3:
		return Action{Kind: ActionBroadcast}
	default:
		return Action{Kind: ActionInternal}
	}
}
