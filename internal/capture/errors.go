package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned for a step move the workflow does not allow.
	ErrInvalidTransition = errors.New("invalid step transition")
	// ErrAssetNotFound is returned by Submit when a required upload never finished.
	ErrAssetNotFound = errors.New("card asset not found")
	// ErrAssetNotReady is returned when an action needs uploads that are still in flight.
	ErrAssetNotReady = errors.New("card asset not ready")
	// ErrNotQueued is returned when resuming a card that is not on the intake queue.
	ErrNotQueued = errors.New("card is not queued")
	// ErrClosed is returned after the controller was closed.
	ErrClosed = errors.New("capture session closed")
)

// ValidationError is the first failed check of the validation gate.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func transitionError(from, to Step) error {
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
}
