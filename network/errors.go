package network

import (
	"errors"
	"fmt"
)

// ErrInvalidTopology is returned when a topology cannot produce addresses.
var ErrInvalidTopology = errors.New("invalid topology")

// A TransportError is a failure local to one connection or one delivery
// attempt.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
