// Package message defines the timestamped message that machines exchange and
// its wire encoding.
package message

import (
	"fmt"
	"time"
)

// A Message carries the sender's logical clock to a peer. Messages are values;
// they are never mutated after construction.
type Message struct {
	SenderID     int     `json:"sender_id"`
	LogicalClock uint64  `json:"logical_clock"`
	SendTime     float64 `json:"timestamp"`
}

// New creates a message stamped with the current wall-clock time.
func New(senderID int, logicalClock uint64) Message {
	return Message{
		SenderID:     senderID,
		LogicalClock: logicalClock,
		SendTime:     toEpochSeconds(time.Now()),
	}
}

// Time returns the wall-clock send time. It is informational only and never
// participates in ordering.
func (m Message) Time() time.Time {
	sec := int64(m.SendTime)
	nsec := int64((m.SendTime - float64(sec)) * 1e9)

	return time.Unix(sec, nsec)
}

func (m Message) String() string {
	return fmt.Sprintf("Message{sender: %d, clock: %d}",
		m.SenderID, m.LogicalClock)
}

func toEpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
