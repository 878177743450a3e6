// Package spec defines the invocation specification and resource limits.
package spec

import (
	"os"
	"path/filepath"
	"strings"

	appErr "chiko/pkg/errors"
)

// MB is one mebibyte in bytes.
const MB int64 = 1024 * 1024

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	TimeMs      int64 `yaml:"timeMs"`
	MemoryBytes int64 `yaml:"memoryBytes"`
	Processes   int64 `yaml:"processes"`
}

// Validate rejects zero or negative limits.
func (l ResourceLimit) Validate() error {
	if l.TimeMs <= 0 {
		return appErr.ValidationError("time_ms", "must be positive")
	}
	if l.MemoryBytes <= 0 {
		return appErr.ValidationError("memory_bytes", "must be positive")
	}
	if l.Processes <= 0 {
		return appErr.ValidationError("process_count", "must be positive")
	}
	return nil
}

// MergeLimits applies every positive field of override on top of base.
func MergeLimits(base, override ResourceLimit) ResourceLimit {
	if override.TimeMs > 0 {
		base.TimeMs = override.TimeMs
	}
	if override.MemoryBytes > 0 {
		base.MemoryBytes = override.MemoryBytes
	}
	if override.Processes > 0 {
		base.Processes = override.Processes
	}
	return base
}

// MountSpec describes a bind mount inside the sandbox.
// LimitBytes caps how much the confined process may write below Target.
type MountSpec struct {
	Source     string
	Target     string
	LimitBytes int64
	ReadOnly   bool
}

// Identity is a numeric uid/gid pair inside the confined root.
type Identity struct {
	UID int
	GID int
}

// InvocationSpec is the fully resolved parameter set for one confined process.
// Stdin, Stdout and Stderr are host paths when RedirectBeforeChroot is set.
type InvocationSpec struct {
	Hostname   string
	CgroupName string
	RootFS     string
	Mounts     []MountSpec

	Executable string
	Args       []string
	Env        []string
	WorkingDir string

	Stdin  string
	Stdout string
	Stderr string

	Limits ResourceLimit

	// User is the account name inside RootFS; Credential is filled in once resolved.
	User       string
	Credential *Identity

	MountProc            bool
	RedirectBeforeChroot bool
}

// Clone returns a deep copy so the caller and the engine never share slices.
func (s InvocationSpec) Clone() InvocationSpec {
	out := s
	out.Mounts = append([]MountSpec(nil), s.Mounts...)
	out.Args = append([]string(nil), s.Args...)
	out.Env = append([]string(nil), s.Env...)
	if s.Credential != nil {
		cred := *s.Credential
		out.Credential = &cred
	}
	return out
}

// HostPath maps a path inside the sandbox to the host path of the longest
// matching mount. Paths outside every mount are returned unchanged.
func (s InvocationSpec) HostPath(path string) string {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) && s.WorkingDir != "" {
		path = filepath.Join(s.WorkingDir, path)
	}
	clean := filepath.Clean(path)
	longest := ""
	source := ""
	for _, mount := range s.Mounts {
		if mount.Target == "" || mount.Source == "" {
			continue
		}
		target := filepath.Clean(mount.Target)
		if clean != target && !strings.HasPrefix(clean, target+string(os.PathSeparator)) {
			continue
		}
		if len(target) > len(longest) {
			longest = target
			source = mount.Source
		}
	}
	if source == "" {
		return path
	}
	rel := strings.TrimPrefix(clean, longest)
	rel = strings.TrimPrefix(rel, string(os.PathSeparator))
	return filepath.Join(source, rel)
}
