package egress

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when another transition for the same email holds
	// the lease.
	ErrBusy = errors.New("another change for this user is in progress")

	// ErrPartialTransition marks an add that failed after the remove from
	// the previous location succeeded. The user is now unassigned.
	ErrPartialTransition = errors.New("partial transition: user left unassigned")
)

// PartialTransitionError carries the details of a partial transition.
type PartialTransitionError struct {
	Email       string
	RemovedFrom string
	Target      string
	Err         error
}

func (e *PartialTransitionError) Error() string {
	return fmt.Sprintf("removed %s from %s but adding to %s failed: %v", e.Email, e.RemovedFrom, e.Target, e.Err)
}

// Is lets errors.Is(err, ErrPartialTransition) match.
func (e *PartialTransitionError) Is(target error) bool {
	return target == ErrPartialTransition
}

func (e *PartialTransitionError) Unwrap() error { return e.Err }
