// Package fake provides a scripted engine for tests.
package fake

import (
	"context"
	"sync"

	"chiko/internal/judge/sandbox/engine"
	"chiko/internal/judge/sandbox/result"
	"chiko/internal/judge/sandbox/spec"
	appErr "chiko/pkg/errors"
)

// Step scripts one Start call. Effect runs at Wait time with the spec the
// engine received, so it can write the files a real process would. An empty
// Outcome status means Succeeded.
type Step struct {
	Outcome  result.RawOutcome
	StartErr error
	WaitErr  error
	Effect   func(s spec.InvocationSpec) error
}

// Engine replays Steps in order; once exhausted it reports success.
type Engine struct {
	mu         sync.Mutex
	steps      []Step
	specs      []spec.InvocationSpec
	identities map[string]spec.Identity
}

// New returns an engine that will replay steps.
func New(steps ...Step) *Engine {
	return &Engine{
		steps: steps,
		identities: map[string]spec.Identity{
			"root":    {UID: 0, GID: 0},
			"sandbox": {UID: 1000, GID: 1000},
		},
	}
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) ResolveIdentity(_ string, account string) (spec.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.identities[account]
	if !ok {
		return spec.Identity{}, appErr.Newf(appErr.IdentityResolveFailed, "account %s not found", account)
	}
	return id, nil
}

func (e *Engine) Start(_ context.Context, s spec.InvocationSpec) (engine.Handle, error) {
	if err := engine.ValidateSpec(s); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.specs = append(e.specs, s.Clone())
	step := Step{Outcome: result.RawOutcome{Status: result.StatusSucceeded}}
	if len(e.steps) > 0 {
		step = e.steps[0]
		e.steps = e.steps[1:]
	}
	if step.StartErr != nil {
		return nil, step.StartErr
	}
	if step.Outcome.Status == "" {
		step.Outcome.Status = result.StatusSucceeded
	}
	return &handle{step: step, spec: s.Clone()}, nil
}

// Specs returns every spec passed to Start, in order.
func (e *Engine) Specs() []spec.InvocationSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]spec.InvocationSpec, len(e.specs))
	copy(out, e.specs)
	return out
}

type handle struct {
	step Step
	spec spec.InvocationSpec
}

func (h *handle) Wait(ctx context.Context) (result.RawOutcome, error) {
	if err := ctx.Err(); err != nil {
		return result.RawOutcome{Status: result.StatusKilled, ExitCode: -1}, nil
	}
	if h.step.Effect != nil {
		if err := h.step.Effect(h.spec); err != nil {
			return result.RawOutcome{}, err
		}
	}
	return h.step.Outcome, h.step.WaitErr
}
