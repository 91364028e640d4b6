package assistant

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("assistant is not configured")
	ErrRunTimedOut   = errors.New("assistant run timed out")
	ErrNoReply       = errors.New("assistant returned no text reply")
)

// RunFailedError is a run that ended in any terminal status but completed.
type RunFailedError struct {
	RunID   string
	Status  RunStatus
	Message string
}

func (e *RunFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("run %s ended with status %s: %s", e.RunID, e.Status, e.Message)
	}
	return fmt.Sprintf("run %s ended with status %s", e.RunID, e.Status)
}
