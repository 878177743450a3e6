// Package engine defines the confined-execution collaborator and its adapters.
package engine

import (
	"context"

	"chiko/internal/judge/sandbox/result"
	"chiko/internal/judge/sandbox/spec"
	appErr "chiko/pkg/errors"
)

// Engine starts confined processes.
type Engine interface {
	// ResolveIdentity maps an account name inside rootfs to a numeric identity.
	ResolveIdentity(rootfs, account string) (spec.Identity, error)
	// Start launches the process described by s. The engine owns s afterwards.
	Start(ctx context.Context, s spec.InvocationSpec) (Handle, error)
}

// Handle is an awaitable confined process.
type Handle interface {
	// Wait blocks until the process stops on its own, hits a limit, or ctx
	// is cancelled, in which case it is killed and reported as such.
	Wait(ctx context.Context) (result.RawOutcome, error)
}

// ValidateSpec rejects specs no engine can honour.
func ValidateSpec(s spec.InvocationSpec) error {
	if s.RootFS == "" {
		return appErr.New(appErr.InvocationRejected).WithMessage("rootfs is required")
	}
	if s.Executable == "" || len(s.Args) == 0 {
		return appErr.New(appErr.InvocationRejected).WithMessage("executable is required")
	}
	if s.WorkingDir == "" {
		return appErr.New(appErr.InvocationRejected).WithMessage("working directory is required")
	}
	if err := s.Limits.Validate(); err != nil {
		return appErr.Wrap(err, appErr.InvocationRejected)
	}
	for _, m := range s.Mounts {
		if m.Source == "" || m.Target == "" {
			return appErr.New(appErr.InvocationRejected).WithMessage("mount source and target are required")
		}
	}
	return nil
}
