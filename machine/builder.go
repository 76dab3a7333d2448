package machine

import (
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"time"

	"github.com/sarchlab/lamportvm/hooking"
	"github.com/sarchlab/lamportvm/message"
	"github.com/sarchlab/lamportvm/network"
	"github.com/sarchlab/lamportvm/queueing"
)

// DefaultStartupDelay gives the peers of a machine time to bind before the
// first cycle.
const DefaultStartupDelay = 2 * time.Second

// Builder can build machines.
type Builder struct {
	id           int
	topology     network.Topology
	clockRate    ClockRate
	policy       ActionPolicy
	seed         uint64
	draw         func() int
	link         PeerLink
	logger       *log.Logger
	hooks        []hooking.Hook
	startupDelay time.Duration
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		topology: network.Topology{
			Host:        "localhost",
			BasePort:    5000,
			NumMachines: 1,
		},
		policy:       ScaledBands,
		startupDelay: DefaultStartupDelay,
	}
}

// WithID sets the identity of the machine.
func (b Builder) WithID(id int) Builder {
	b.id = id
	return b
}

// WithTopology sets the topology the machine belongs to.
func (b Builder) WithTopology(t network.Topology) Builder {
	b.topology = t
	return b
}

// WithClockRate fixes the clock rate. Without it, a rate is drawn uniformly
// from [MinClockRate, MaxClockRate].
func (b Builder) WithClockRate(rate ClockRate) Builder {
	b.clockRate = rate
	return b
}

// WithActionPolicy sets how action draws map to actions.
func (b Builder) WithActionPolicy(p ActionPolicy) Builder {
	b.policy = p
	return b
}

// WithSeed seeds the random source of the machine. Zero picks a seed from the
// wall clock.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	return b
}

// WithActionDraw replaces the random action draw. The function must return
// values in [1, ActionRange].
func (b Builder) WithActionDraw(draw func() int) Builder {
	b.draw = draw
	return b
}

// WithPeerLink sets how messages are delivered to peers.
func (b Builder) WithPeerLink(link PeerLink) Builder {
	b.link = link
	return b
}

// WithLogger sets the event log of the machine.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithHook registers an additional hook before the machine is initialized.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(append([]hooking.Hook(nil), b.hooks...), hook)
	return b
}

// WithStartupDelay sets how long Start waits before the first cycle.
func (b Builder) WithStartupDelay(d time.Duration) Builder {
	b.startupDelay = d
	return b
}

// Build binds the listening address and creates the machine. A machine that
// cannot bind is not created.
func (b Builder) Build() (*Machine, error) {
	err := b.topology.Validate()
	if err != nil {
		return nil, err
	}

	if b.id < 0 || b.id >= b.topology.NumMachines {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMachineID, b.id)
	}

	seed := b.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	rng := rand.New(rand.NewPCG(seed, uint64(b.id)))

	rate := b.clockRate
	if rate == 0 {
		rate = MinClockRate + ClockRate(rng.IntN(int(MaxClockRate-MinClockRate)+1))
	}

	if !rate.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidClockRate, rate)
	}

	draw := b.draw
	if draw == nil {
		draw = func() int { return rng.IntN(ActionRange) + 1 }
	}

	link := b.link
	if link == nil {
		link = network.NewLink()
	}

	logger := b.logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	listener, err := network.Listen(b.topology.Addr(b.id), logger)
	if err != nil {
		return nil, err
	}

	m := &Machine{
		id:           b.id,
		clockRate:    rate,
		peers:        b.topology.Peers(b.id),
		policy:       b.policy,
		draw:         draw,
		startupDelay: b.startupDelay,
		inbound: queueing.NewBuffer[message.Message](
			fmt.Sprintf("Machine%d.Inbound", b.id)),
		link:     link,
		listener: listener,
		stopCh:   make(chan struct{}),
	}

	m.AcceptHook(NewEventLogger(logger))
	for _, h := range b.hooks {
		m.AcceptHook(h)
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosInit,
		Item:   m.Status(),
	})

	return m, nil
}
