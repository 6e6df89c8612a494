package domain

import "errors"

// Core error taxonomy. Handlers and callers dispatch on these with errors.Is;
// repositories and services wrap them with context via fmt.Errorf("...: %w", err).
var (
	// ErrDenied indicates a tenant isolation failure. Read paths must surface
	// it as ErrNotFound so existence never leaks across organizations.
	ErrDenied = errors.New("access denied")

	// ErrNotFound is returned for missing entities and for cross-tenant reads.
	ErrNotFound = errors.New("not found")

	// ErrLimitExceeded indicates a billing or plan cap was hit.
	ErrLimitExceeded = errors.New("plan limit exceeded")

	// ErrInvalidTransition indicates a state machine violation, such as
	// completing a job that was never claimed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyClaimed indicates a job claim lost the compare-and-set race.
	ErrAlreadyClaimed = errors.New("job already claimed")

	// ErrConflict indicates a duplicate creation under a uniqueness constraint,
	// or a re-completion with a different outcome.
	ErrConflict = errors.New("conflict")

	// ErrTransient indicates the store was unavailable; the whole operation is
	// safe to retry with the same idempotency key.
	ErrTransient = errors.New("transient storage error")
)

// LimitError carries enough detail for an upgrade prompt.
type LimitError struct {
	Resource string
	Limit    int
	Current  int
}

func (e *LimitError) Error() string {
	return "plan limit exceeded"
}

func (e *LimitError) Unwrap() error {
	return ErrLimitExceeded
}
