package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for model-level rule violations.
var (
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrOverrideLocked    = errors.New("override settings can only change while the job is PENDING")
	ErrOutputAlreadySet  = errors.New("task output path is already set")
	ErrReasonRequired    = errors.New("a non-empty reason is required")
	ErrBindingLocked     = errors.New("configuration binding cannot change now")
)

// TransitionError names the rejected edge.
type TransitionError struct {
	Entity string // "job" or "task"
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: illegal transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
