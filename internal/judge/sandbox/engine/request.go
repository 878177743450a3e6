package engine

import "chiko/internal/judge/sandbox/spec"

// initRequest is decoded by cmd/sandbox-init from its stdin.
type initRequest struct {
	Spec           spec.InvocationSpec
	SeccompProfile string
	EnableSeccomp  bool
	// KeepIdentity is set when only the caller's uid is mapped into the
	// user namespace, so the helper cannot switch to Spec.Credential.
	KeepIdentity bool
	// PidsInCgroup is set when pids.max of the task cgroup caps the process
	// count. The helper then leaves RLIMIT_NPROC alone, since that limit is
	// counted per uid and every run phase shares one account.
	PidsInCgroup bool
}

func newInitRequest(cfg Config, s spec.InvocationSpec, keepIdentity, pidsInCgroup bool) initRequest {
	return initRequest{
		Spec:           s,
		SeccompProfile: cfg.SeccompProfile,
		EnableSeccomp:  cfg.EnableSeccomp,
		KeepIdentity:   keepIdentity,
		PidsInCgroup:   pidsInCgroup,
	}
}
