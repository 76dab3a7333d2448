package network

import (
	"net"

	"github.com/sarchlab/lamportvm/message"
)

// A Link delivers messages to peers. Every delivery opens a new connection,
// writes one message, and closes the connection. There is no acknowledgment,
// no retry and no timeout.
type Link struct {
	dialer net.Dialer
}

// NewLink creates a Link.
func NewLink() *Link {
	return &Link{}
}

// Deliver sends msg to addr. Failures are returned as *TransportError.
func (l *Link) Deliver(addr string, msg message.Message) error {
	conn, err := l.dialer.Dial("tcp", addr)
	if err != nil {
		return &TransportError{Op: "dial", Addr: addr, Err: err}
	}

	err = message.NewEncoder(conn).Encode(msg)
	if err != nil {
		conn.Close()
		return &TransportError{Op: "write", Addr: addr, Err: err}
	}

	err = conn.Close()
	if err != nil {
		return &TransportError{Op: "close", Addr: addr, Err: err}
	}

	return nil
}
