package dispatch

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("dispatch: dispatcher closed")

// DeliveryError is returned when an alert could not be handed to the sink
// after all attempts.
type DeliveryError struct {
	AlertID  string
	Key      string
	Sender   string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver alert %s via %s after %d attempt(s): %v", e.AlertID, e.Sender, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
