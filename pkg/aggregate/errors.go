package aggregate

import "errors"

var (
	ErrNotFound               = errors.New("aggregate not found")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateCommand       = errors.New("duplicate command")
	ErrInvalidArgument        = errors.New("invalid argument")
)
