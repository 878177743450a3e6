package pipeline

import (
	"context"

	"chiko/internal/judge/sandbox"
	"chiko/internal/judge/sandbox/identity"
	"chiko/internal/judge/sandbox/profile"
	"chiko/pkg/utils/logger"

	"go.uber.org/zap"
)

// runRecord tracks the state of one invocation.
type runRecord struct {
	id       identity.TaskID
	phase    profile.Phase
	state    sandbox.State
	reporter sandbox.StateReporter
}

func newRunRecord(id identity.TaskID, phase profile.Phase, reporter sandbox.StateReporter) *runRecord {
	return &runRecord{id: id, phase: phase, state: sandbox.StateIdle, reporter: reporter}
}

func (r *runRecord) to(ctx context.Context, next sandbox.State) {
	r.transition(ctx, next, nil)
}

func (r *runRecord) fail(ctx context.Context, err error) {
	r.transition(ctx, sandbox.StateFailed, err)
}

func (r *runRecord) transition(ctx context.Context, next sandbox.State, err error) {
	t := sandbox.Transition{
		TaskID: r.id.String(),
		Phase:  r.phase,
		From:   r.state,
		To:     next,
		Err:    err,
	}
	r.state = next
	if err != nil {
		logger.Warn(ctx, "sandbox invocation failed",
			zap.String("from", string(t.From)),
			zap.Error(err),
		)
	} else {
		logger.Debug(ctx, "sandbox state changed",
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)),
		)
	}
	if r.reporter != nil {
		r.reporter.ReportTransition(ctx, t)
	}
}
