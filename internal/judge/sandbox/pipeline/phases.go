package pipeline

import (
	"context"
	"strings"

	"chiko/internal/judge/sandbox"
	"chiko/internal/judge/sandbox/profile"
	"chiko/internal/judge/sandbox/result"
	"chiko/internal/judge/sandbox/spec"
	"chiko/internal/judge/sandbox/stage"
	"chiko/internal/judge/sandbox/workspace"
	appErr "chiko/pkg/errors"
	"chiko/pkg/utils/logger"

	"go.uber.org/zap"
)

// Compile compiles req.SourcePath. When the compiler exits cleanly the
// binary is copied to req.OutputPath before the workspace is removed.
func (p *Pipeline) Compile(ctx context.Context, req sandbox.CompileRequest) (result.CompileResult, error) {
	if req.OutputPath == "" {
		return result.CompileResult{}, appErr.ValidationError("output_path", "required")
	}
	limits, err := mergeLimits(p.cfg.CompileLimits, req.Limits)
	if err != nil {
		return result.CompileResult{}, err
	}
	out, err := p.execute(ctx, task{
		phase:  profile.PhaseCompile,
		inputs: stage.Inputs{SourcePath: req.SourcePath},
		limits: limits,
		finish: func(ctx context.Context, ws *workspace.Workspace, out result.Normalized) error {
			res := result.CompileResult{Result: out.Result}
			if !res.OK() {
				logger.Info(ctx, "compilation failed",
					zap.String("status", string(out.Status)),
					zap.Int("exit_code", out.ExitCode),
					zap.Int("diagnostics_bytes", len(out.Error)),
				)
				return nil
			}
			return stage.Export(ws.WorkPath(stage.ProgramName), req.OutputPath)
		},
	})
	if err != nil {
		return result.CompileResult{}, err
	}
	return result.CompileResult{Result: out.Result, Error: out.Error}, nil
}

// RunStdIO runs an executable with the input file on standard input.
func (p *Pipeline) RunStdIO(ctx context.Context, req sandbox.RunRequest) (result.RunResult, error) {
	limits, err := mergeLimits(p.cfg.RunLimits, req.Limits)
	if err != nil {
		return result.RunResult{}, err
	}
	out, err := p.execute(ctx, task{
		phase: profile.PhaseRunStdIO,
		inputs: stage.Inputs{
			ExecutablePath: req.ExecutablePath,
			InputPath:      req.InputPath,
		},
		limits: limits,
	})
	if err != nil {
		return result.RunResult{}, err
	}
	return runResult(out), nil
}

// RunFileIO runs an executable that reads req.InputFileName and writes
// req.OutputFileName in its working directory.
func (p *Pipeline) RunFileIO(ctx context.Context, req sandbox.FileRunRequest) (result.RunResult, error) {
	limits, err := mergeLimits(p.cfg.RunLimits, req.Limits)
	if err != nil {
		return result.RunResult{}, err
	}
	out, err := p.execute(ctx, task{
		phase: profile.PhaseRunFileIO,
		inputs: stage.Inputs{
			ExecutablePath: req.ExecutablePath,
			InputPath:      req.InputPath,
			InputFileName:  req.InputFileName,
			OutputFileName: req.OutputFileName,
		},
		limits: limits,
	})
	if err != nil {
		return result.RunResult{}, err
	}
	return runResult(out), nil
}

// RunChecker runs a testlib-style checker and maps its exit code to a verdict.
func (p *Pipeline) RunChecker(ctx context.Context, req sandbox.CheckerRequest) (result.CheckerResult, error) {
	limits, err := mergeLimits(p.cfg.CheckerLimits, req.Limits)
	if err != nil {
		return result.CheckerResult{}, err
	}
	out, err := p.execute(ctx, task{
		phase: profile.PhaseChecker,
		inputs: stage.Inputs{
			CheckerPath: req.CheckerPath,
			InputPath:   req.InputPath,
			OutputPath:  req.OutputPath,
			AnswerPath:  req.AnswerPath,
		},
		limits: limits,
	})
	if err != nil {
		return result.CheckerResult{}, err
	}
	// testlib reports on stderr; some checkers print to stdout instead.
	msg := strings.TrimSpace(out.Error)
	if msg == "" {
		msg = strings.TrimSpace(out.Output)
	}
	return result.CheckerResult{
		RunResult: runResult(out),
		Verdict:   result.CheckerVerdict(out.Result),
		Message:   msg,
	}, nil
}

// mergeLimits applies the caller's overrides to the phase defaults.
func mergeLimits(base spec.ResourceLimit, override sandbox.Limits) (spec.ResourceLimit, error) {
	if err := override.Validate(); err != nil {
		return spec.ResourceLimit{}, err
	}
	return spec.MergeLimits(base, override.Resource()), nil
}

func runResult(out result.Normalized) result.RunResult {
	return result.RunResult{Result: out.Result, Output: out.Output, Error: out.Error}
}
