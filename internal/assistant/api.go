// Package assistant drives a hosted assistant: it submits a visitor message to
// a remote thread, polls the resulting run to a terminal status and reads the
// newest assistant reply back out of the thread.
package assistant

import (
	"context"
	"encoding/json"
)

type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
	RunIncomplete     RunStatus = "incomplete"
)

// Terminal reports whether polling can stop. requires_action is terminal for
// the bridge because it never submits tool outputs.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired, RunIncomplete, RunRequiresAction:
		return true
	}
	return false
}

// rank orders statuses along the run state machine so a stale poll result
// can never move a run backwards.
func (s RunStatus) rank() int {
	switch s {
	case RunQueued:
		return 0
	case RunInProgress, RunRequiresAction:
		return 1
	case RunCancelling:
		return 2
	case "":
		return -1
	}
	if s.Terminal() {
		return 3
	}
	// Unknown statuses are treated as in progress.
	return 1
}

type RunHandle struct {
	ThreadID  string
	RunID     string
	Status    RunStatus
	LastError string
}

// ContentBlock is one fragment of a thread message. Text is set when the
// fragment was decoded as text; Raw keeps the wire form for shapes the typed
// decoding does not cover.
type ContentBlock struct {
	Type string
	Text *string
	Raw  json.RawMessage
}

type ThreadMessage struct {
	ID        string
	Role      string
	CreatedAt int64
	Content   []ContentBlock
}

// ThreadAPI is the remote thread/message/run surface the bridge depends on.
type ThreadAPI interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, text string) error
	CreateRun(ctx context.Context, threadID string) (RunHandle, error)
	GetRun(ctx context.Context, threadID, runID string) (RunHandle, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	// ListMessages returns the thread's messages newest first, limited to
	// runID when it is not empty.
	ListMessages(ctx context.Context, threadID, runID string) ([]ThreadMessage, error)
}
