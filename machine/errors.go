package machine

import "errors"

var (
	ErrAlreadyStarted   = errors.New("machine already started")
	ErrStopped          = errors.New("machine has been stopped")
	ErrInvalidClockRate = errors.New("invalid clock rate")
	ErrInvalidMachineID = errors.New("machine id outside the topology")
)
