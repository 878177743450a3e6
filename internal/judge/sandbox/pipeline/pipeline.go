// Package pipeline runs one sandboxed phase end to end: it allocates a task
// workspace, stages inputs, invokes the engine, normalizes the outcome and
// removes the workspace again.
package pipeline

import (
	"context"
	"strconv"

	"chiko/internal/judge/sandbox"
	"chiko/internal/judge/sandbox/engine"
	"chiko/internal/judge/sandbox/identity"
	"chiko/internal/judge/sandbox/invocation"
	"chiko/internal/judge/sandbox/observer"
	"chiko/internal/judge/sandbox/profile"
	"chiko/internal/judge/sandbox/result"
	"chiko/internal/judge/sandbox/spec"
	"chiko/internal/judge/sandbox/stage"
	"chiko/internal/judge/sandbox/workspace"
	appErr "chiko/pkg/errors"
	"chiko/pkg/utils/logger"

	"go.uber.org/zap"
)

// Pipeline implements sandbox.Service on top of an engine.
type Pipeline struct {
	cfg      Config
	eng      engine.Engine
	builder  *invocation.Builder
	metrics  observer.MetricsRecorder
	reporter sandbox.StateReporter
	newID    identity.Generator
}

var _ sandbox.Service = (*Pipeline)(nil)

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithMetrics sets the metrics recorder.
func WithMetrics(m observer.MetricsRecorder) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithIDGenerator replaces the task identity source.
func WithIDGenerator(gen identity.Generator) Option {
	return func(p *Pipeline) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// WithStateReporter receives every state transition.
func WithStateReporter(r sandbox.StateReporter) Option {
	return func(p *Pipeline) {
		p.reporter = r
	}
}

// New creates a pipeline backed by eng.
func New(cfg Config, eng engine.Engine, opts ...Option) (*Pipeline, error) {
	if eng == nil {
		return nil, appErr.ValidationError("engine", "required")
	}
	cfg = cfg.withDefaults()
	for _, l := range []spec.ResourceLimit{cfg.CompileLimits, cfg.RunLimits, cfg.CheckerLimits} {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	p := &Pipeline{
		cfg:     cfg,
		eng:     eng,
		builder: invocation.NewBuilder(cfg.Config),
		metrics: observer.NoopMetricsRecorder{},
		newID:   identity.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// task is the phase-specific part of one invocation.
type task struct {
	phase  profile.Phase
	inputs stage.Inputs
	limits spec.ResourceLimit
	// finish runs after normalization while the workspace still exists.
	finish func(ctx context.Context, ws *workspace.Workspace, out result.Normalized) error
}

// execute is the skeleton shared by every phase. The workspace is destroyed
// exactly once on every path that created it.
func (p *Pipeline) execute(ctx context.Context, t task) (out result.Normalized, err error) {
	id, err := p.newID()
	if err != nil {
		return out, appErr.Wrapf(err, appErr.WorkspaceCreationFailed, "generate task id failed")
	}
	ctx = logger.WithTask(ctx, id.String(), string(t.phase))
	rec := newRunRecord(id, t.phase, p.reporter)

	defer func() {
		if err != nil {
			p.metrics.ObserveFailure(ctx, t.phase, strconv.Itoa(int(appErr.GetCode(err))))
			return
		}
		p.metrics.ObservePhase(ctx, t.phase, out.Status, out.TimeMs, out.MemoryBytes)
	}()

	logger.Info(ctx, "sandbox invocation started",
		zap.Int64("time_limit_ms", t.limits.TimeMs),
		zap.Int64("memory_limit_bytes", t.limits.MemoryBytes),
	)
	rec.to(ctx, sandbox.StateStaging)
	ws, err := workspace.Create(p.cfg.WorkRoot, id)
	if err != nil {
		rec.fail(ctx, err)
		rec.to(ctx, sandbox.StateCleanup)
		return out, err
	}
	defer func() {
		rec.to(ctx, sandbox.StateCleanup)
		ws.Destroy(ctx)
		if err == nil {
			rec.to(ctx, sandbox.StateDone)
		}
	}()

	out, err = p.invoke(ctx, rec, ws, t)
	if err != nil {
		rec.fail(ctx, err)
		return result.Normalized{}, err
	}
	return out, nil
}

func (p *Pipeline) invoke(ctx context.Context, rec *runRecord, ws *workspace.Workspace, t task) (result.Normalized, error) {
	staged, err := stage.Stage(t.phase, ws, t.inputs)
	if err != nil {
		return result.Normalized{}, err
	}
	invSpec, err := p.builder.Build(t.phase, ws, staged, t.limits)
	if err != nil {
		return result.Normalized{}, err
	}
	cred, err := p.eng.ResolveIdentity(invSpec.RootFS, invSpec.User)
	if err != nil {
		return result.Normalized{}, collaboratorError(err, "resolve identity failed")
	}
	invSpec.Credential = &cred

	rec.to(ctx, sandbox.StateInvoking)
	handle, err := p.eng.Start(ctx, invSpec)
	if err != nil {
		return result.Normalized{}, collaboratorError(err, "start confined process failed")
	}
	raw, err := handle.Wait(ctx)
	if err != nil {
		return result.Normalized{}, collaboratorError(err, "wait confined process failed")
	}
	logger.Info(ctx, "sandbox outcome",
		zap.String("status", string(raw.Status)),
		zap.Int("exit_code", raw.ExitCode),
		zap.Int64("time_ns", raw.TimeNs),
		zap.Int64("memory_bytes", raw.MemoryBytes),
	)

	rec.to(ctx, sandbox.StateNormalizing)
	streams := result.Streams{}
	if streams.Output, err = p.capture(ctx, t.phase, staged.OutputCapture); err != nil {
		return result.Normalized{}, err
	}
	if streams.Error, err = p.capture(ctx, t.phase, staged.ErrorCapture); err != nil {
		return result.Normalized{}, err
	}
	out := result.Normalize(raw, streams, p.cfg.CaptureMaxBytes)
	if t.finish != nil {
		if err := t.finish(ctx, ws, out); err != nil {
			return result.Normalized{}, err
		}
	}
	return out, nil
}

// capture reads one stream back. Only the checker phase treats a failed
// read as an error; elsewhere the verdict is already known.
func (p *Pipeline) capture(ctx context.Context, phase profile.Phase, path string) (string, error) {
	data, err := result.ReadCapture(path, p.cfg.CaptureMaxBytes)
	if err == nil {
		return data, nil
	}
	if phase == profile.PhaseChecker {
		return "", err
	}
	logger.Warn(ctx, "read capture failed", zap.String("path", path), zap.Error(err))
	return "", nil
}

// collaboratorError keeps coded engine errors and wraps anything else.
func collaboratorError(err error, msg string) error {
	if appErr.GetCode(err) != appErr.InternalServerError {
		return err
	}
	return appErr.Wrapf(err, appErr.CollaboratorFailure, "%s", msg)
}
