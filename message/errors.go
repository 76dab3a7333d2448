package message

import (
	"errors"
	"fmt"
)

// ErrMissingField is matched by every MissingFieldError.
var ErrMissingField = errors.New("missing required field")

// ErrInvalidField reports a field that is present but out of range.
var ErrInvalidField = errors.New("invalid field")

// A MissingFieldError reports which required field was absent from a decoded
// payload.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("message: missing required field %q", e.Field)
}

// Is makes errors.Is(err, ErrMissingField) hold.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}
