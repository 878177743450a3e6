// Package sandbox defines the public call interface used by the judge layer.
package sandbox

import (
	"context"

	"chiko/internal/judge/sandbox/result"
	"chiko/internal/judge/sandbox/spec"
	appErr "chiko/pkg/errors"
)

// Service runs one sandboxed phase per call. Every call owns a fresh
// workspace that no longer exists when the call returns.
type Service interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	RunStdIO(ctx context.Context, req RunRequest) (result.RunResult, error)
	RunFileIO(ctx context.Context, req FileRunRequest) (result.RunResult, error)
	RunChecker(ctx context.Context, req CheckerRequest) (result.CheckerResult, error)
}

// Limits overrides the configured defaults; zero keeps the default and
// negative values are rejected.
type Limits struct {
	TimeLimitMs   int64
	MemoryLimitMB int64
}

// Validate rejects negative overrides.
func (l Limits) Validate() error {
	if l.TimeLimitMs < 0 {
		return appErr.ValidationError("time_limit_ms", "must not be negative")
	}
	if l.MemoryLimitMB < 0 {
		return appErr.ValidationError("memory_limit_mb", "must not be negative")
	}
	return nil
}

// Resource converts the overrides into a ResourceLimit for MergeLimits.
func (l Limits) Resource() spec.ResourceLimit {
	return spec.ResourceLimit{
		TimeMs:      l.TimeLimitMs,
		MemoryBytes: l.MemoryLimitMB * spec.MB,
	}
}

// CompileRequest compiles SourcePath and, on success, writes the binary to OutputPath.
type CompileRequest struct {
	SourcePath string
	OutputPath string
	Limits
}

// RunRequest runs an executable with InputPath on standard input.
type RunRequest struct {
	ExecutablePath string
	InputPath      string
	Limits
}

// FileRunRequest runs an executable that opens its own named files in
// its working directory.
type FileRunRequest struct {
	RunRequest
	InputFileName  string
	OutputFileName string
}

// CheckerRequest runs a testlib-style checker over one test.
type CheckerRequest struct {
	CheckerPath string
	InputPath   string
	OutputPath  string
	AnswerPath  string
	Limits
}
