package retry

import "fmt"

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrMissingCorrelationID = Error("message has no correlation id")
	ErrNoQueue              = Error("no queue to derive the dead-letter destination from")
)

// StoreError reports a failed Store operation
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("retry: store %s %q: %s", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Cause makes StoreError compatible with github.com/pkg/errors.Cause
func (e *StoreError) Cause() error {
	return e.Err
}

// GuardViolation is raised (panicked) when a handler calls a terminal action
// on a message more times than permitted. It is a programming error.
type GuardViolation struct {
	Action        string
	Calls         int
	Max           int
	CorrelationID string
}

func (g *GuardViolation) Error() string {
	return fmt.Sprintf(
		"retry: %s called %d times on message %q, at most %d allowed",
		g.Action,
		g.Calls,
		g.CorrelationID,
		g.Max,
	)
}
