package entity

import "fmt"

// ValidationError reports a malformed argument detected locally, before any
// collaborator is contacted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DeserializationError reports a backend payload that could not be decoded
// into a feature group handle.
type DeserializationError struct {
	Reason string
	Cause  error
}

func (e *DeserializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to deserialize feature group: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("failed to deserialize feature group: %s", e.Reason)
}

func (e *DeserializationError) Unwrap() error {
	return e.Cause
}

// RemoteError reports a failure surfaced by a collaborator. It is propagated
// to the caller unchanged, never swallowed.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Cause
}
