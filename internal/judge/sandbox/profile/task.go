// Package profile defines the per-phase task recipes used by the sandbox.
package profile

import (
	"fmt"

	"chiko/internal/judge/sandbox/spec"
)

// Phase identifies one staging and invocation recipe.
type Phase string

const (
	PhaseCompile   Phase = "compile"
	PhaseRunStdIO  Phase = "run-stdio"
	PhaseRunFileIO Phase = "run-fileio"
	PhaseChecker   Phase = "checker"
)

// Confined accounts inside the root filesystem.
const (
	PrivilegedUser   = "root"
	UnprivilegedUser = "sandbox"
)

// Role names used for hostnames and cgroups.
const (
	RoleCompiler = "compiler"
	RoleRunner   = "runner"
)

// TaskProfile holds the fixed security settings of a phase.
type TaskProfile struct {
	Phase     Phase
	Role      string
	User      string
	Processes int64
}

// ForPhase returns the profile of a phase. Only compilation runs privileged
// and may spawn helper processes.
func ForPhase(phase Phase) (TaskProfile, error) {
	switch phase {
	case PhaseCompile:
		return TaskProfile{Phase: phase, Role: RoleCompiler, User: PrivilegedUser, Processes: 64}, nil
	case PhaseRunStdIO, PhaseRunFileIO, PhaseChecker:
		return TaskProfile{Phase: phase, Role: RoleRunner, User: UnprivilegedUser, Processes: 1}, nil
	default:
		return TaskProfile{}, fmt.Errorf("unknown phase %q", phase)
	}
}

// Limits pins the process cap of the profile onto limits.
func (p TaskProfile) Limits(limits spec.ResourceLimit) spec.ResourceLimit {
	limits.Processes = p.Processes
	return limits
}
