package machine

import (
	"log"
	"time"
)

// A LogicalClock is a Lamport clock. It is owned by the scheduler of one
// machine and is not safe for concurrent use.
type LogicalClock struct {
	value uint64
}

// Value returns the current clock value.
func (c *LogicalClock) Value() uint64 {
	return c.value
}

// Tick applies the local-step rule and returns the new value.
func (c *LogicalClock) Tick() uint64 {
	c.value++
	return c.value
}

// Merge applies the receive rule for a message carrying received and returns
// the new value, which is greater than both the old value and received.
func (c *LogicalClock) Merge(received uint64) uint64 {
	c.value = max(c.value, received) + 1
	return c.value
}

// ClockRate is the number of clock cycles a machine runs per second.
type ClockRate int

// The range random clock rates are drawn from.
const (
	MinClockRate ClockRate = 1
	MaxClockRate ClockRate = 6
)

// Valid reports whether the rate is within [MinClockRate, MaxClockRate].
func (r ClockRate) Valid() bool {
	return r >= MinClockRate && r <= MaxClockRate
}

// Period returns the time budget of one clock cycle.
func (r ClockRate) Period() time.Duration {
	if r <= 0 {
		log.Panic("clock rate must be positive")
	}

	return time.Second / time.Duration(r)
}
