// Package machine implements a simulated machine that runs at a fixed clock
// rate, exchanges timestamped messages with its peers and keeps a Lamport
// logical clock.
package machine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/lamportvm/hooking"
	"github.com/sarchlab/lamportvm/message"
	"github.com/sarchlab/lamportvm/network"
	"github.com/sarchlab/lamportvm/queueing"
)

// A PeerLink delivers one message to the peer listening at addr.
type PeerLink interface {
	Deliver(addr string, msg message.Message) error
}

// A Machine is one simulated node.
//
// The scheduler, which runs in the goroutine that calls Start, is the only
// code that touches the logical clock and the only code that sends. Network
// readers only push into the inbound queue.
type Machine struct {
	hooking.HookableBase

	id           int
	clockRate    ClockRate
	peers        []network.Peer
	policy       ActionPolicy
	draw         func() int
	startupDelay time.Duration

	clock    LogicalClock
	inbound  *queueing.Buffer[message.Message]
	link     PeerLink
	listener *network.Listener

	started  atomic.Bool
	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	publishedClock atomic.Uint64
	cycles         atomic.Uint64
	lastReceived   atomic.Pointer[message.Message]
}

// ID returns the identity of the machine.
func (m *Machine) ID() int {
	return m.id
}

// ClockRate returns the number of cycles per second.
func (m *Machine) ClockRate() ClockRate {
	return m.clockRate
}

// Addr returns the address the machine listens on.
func (m *Machine) Addr() string {
	return m.listener.Addr()
}

// Peers returns the machines this machine can send to.
func (m *Machine) Peers() []network.Peer {
	return append([]network.Peer(nil), m.peers...)
}

// IsRunning reports whether the cycle loop is running.
func (m *Machine) IsRunning() bool {
	return m.running.Load()
}

// LastReceived returns the last message processed by the scheduler.
func (m *Machine) LastReceived() (message.Message, bool) {
	msg := m.lastReceived.Load()
	if msg == nil {
		return message.Message{}, false
	}

	return *msg, true
}

// Status returns a snapshot of the machine. The logical clock reported is the
// value published at the end of the last cycle.
func (m *Machine) Status() Status {
	peers := make([]int, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p.ID)
	}

	return Status{
		ID:           m.id,
		ClockRate:    int(m.clockRate),
		Addr:         m.Addr(),
		Peers:        peers,
		LogicalClock: m.publishedClock.Load(),
		QueueLength:  m.inbound.Size(),
		Cycles:       m.cycles.Load(),
		Running:      m.running.Load(),
	}
}

// Enqueue hands an inbound message to the machine. It never blocks and may be
// called from any goroutine.
func (m *Machine) Enqueue(msg message.Message) {
	m.inbound.Push(msg)
}

// QueueLength returns the number of messages waiting to be processed.
func (m *Machine) QueueLength() int {
	return m.inbound.Size()
}

// Start serves incoming connections and runs the clock-cycle loop in the
// calling goroutine. It returns once Stop has been called and the loop, the
// accept loop and every connection reader have exited. A machine can only be
// started once.
func (m *Machine) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if m.stopRequested() {
		return ErrStopped
	}

	m.running.Store(true)

	served := make(chan struct{})
	go func() {
		defer close(served)
		m.listener.Serve(m.Enqueue)
	}()

	if m.wait(m.startupDelay) {
		m.runClockCycles()
	}

	m.running.Store(false)
	<-served
	m.listener.WaitReaders()

	return nil
}

// Stop asks the machine to halt. The cycle in flight completes. Stop is
// idempotent and may be called from any goroutine.
func (m *Machine) Stop() error {
	var err error

	m.stopOnce.Do(func() {
		m.running.Store(false)
		close(m.stopCh)
		err = m.listener.Close()
	})

	return err
}

func (m *Machine) stopRequested() bool {
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

// wait sleeps for d unless Stop is called first. It returns false if the
// machine is stopping.
func (m *Machine) wait(d time.Duration) bool {
	if d <= 0 {
		return !m.stopRequested()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-m.stopCh:
		return false
	}
}

func (m *Machine) runClockCycles() {
	period := m.clockRate.Period()

	for m.running.Load() {
		cycleStart := time.Now()

		m.Tick()

		// An overrun cycle is followed immediately by the next one; missed
		// ticks are not made up.
		if !m.wait(period - time.Since(cycleStart)) {
			return
		}
	}
}

// Tick runs one clock cycle. If a message is waiting, it is processed;
// otherwise the machine performs one randomly chosen local action. The clock
// is updated exactly once per cycle.
func (m *Machine) Tick() Event {
	msg, ok := m.inbound.TryPop()
	if ok {
		return m.receive(msg)
	}

	return m.act(m.policy.Choose(m.draw(), len(m.peers)))
}

func (m *Machine) receive(msg message.Message) Event {
	clock := m.clock.Merge(msg.LogicalClock)
	m.lastReceived.Store(&msg)

	return m.publish(Event{
		Kind:         EventReceive,
		Peer:         msg.SenderID,
		QueueLength:  m.inbound.Size(),
		LogicalClock: clock,
	})
}

func (m *Machine) act(action Action) Event {
	switch action.Kind {
	case ActionUnicast:
		clock := m.clock.Tick()
		peer := m.peers[action.Target]
		m.deliver(peer, message.New(m.id, clock))

		return m.publish(Event{
			Kind:         EventUnicast,
			Peer:         peer.ID,
			LogicalClock: clock,
		})
	case ActionBroadcast:
		clock := m.clock.Tick()
		msg := message.New(m.id, clock)

		for _, peer := range m.peers {
			m.deliver(peer, msg)
		}

		return m.publish(Event{
			Kind:         EventBroadcast,
			Peer:         NoPeer,
			LogicalClock: clock,
		})
	default:
		clock := m.clock.Tick()

		return m.publish(Event{
			Kind:         EventInternal,
			Peer:         NoPeer,
			LogicalClock: clock,
		})
	}
}

// deliver sends one message. A failure is reported to the hooks and
// otherwise ignored.
func (m *Machine) deliver(peer network.Peer, msg message.Message) {
	err := m.link.Deliver(peer.Addr, msg)
	if err == nil {
		return
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosDeliveryFailure,
		Item:   DeliveryFailure{Peer: peer, Err: err},
	})
}

func (m *Machine) publish(evt Event) Event {
	evt.MachineID = m.id
	evt.Time = time.Now()

	m.publishedClock.Store(evt.LogicalClock)
	m.cycles.Add(1)

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosCycle,
		Item:   evt,
	})

	return evt
}
