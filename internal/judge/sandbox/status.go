package sandbox

import (
	"context"

	"chiko/internal/judge/sandbox/profile"
)

// State is a step of one pipeline invocation.
type State string

const (
	StateIdle        State = "Idle"
	StateStaging     State = "Staging"
	StateInvoking    State = "Invoking"
	StateNormalizing State = "Normalizing"
	StateCleanup     State = "Cleanup"
	StateDone        State = "Done"
	StateFailed      State = "Failed"
)

// Transition carries one state change of an invocation.
// Err is set when To is StateFailed.
type Transition struct {
	TaskID string
	Phase  profile.Phase
	From   State
	To     State
	Err    error
}

// StateReporter receives every transition of every invocation.
type StateReporter interface {
	ReportTransition(ctx context.Context, t Transition)
}
