package pipeline

import (
	"os"
	"path/filepath"

	"chiko/internal/judge/sandbox/invocation"
	"chiko/internal/judge/sandbox/result"
	"chiko/internal/judge/sandbox/spec"
)

const (
	DefaultRootFS      = "/opt/sandbox/rootfs"
	defaultWorkDirName = "sandbox_tmp"
)

// Config holds process-wide defaults. Per-call overrides replace single
// fields of the matching limit set.
type Config struct {
	WorkRoot        string             `yaml:"workRoot"`
	CompileLimits   spec.ResourceLimit `yaml:"compileLimits"`
	RunLimits       spec.ResourceLimit `yaml:"runLimits"`
	CheckerLimits   spec.ResourceLimit `yaml:"checkerLimits"`
	CaptureMaxBytes int                `yaml:"captureMaxBytes"`

	invocation.Config `yaml:",inline"`
}

// DefaultCompileLimits applies to compilation.
func DefaultCompileLimits() spec.ResourceLimit {
	return spec.ResourceLimit{TimeMs: 10000, MemoryBytes: 512 * spec.MB, Processes: 64}
}

// DefaultRunLimits applies to candidate programs.
func DefaultRunLimits() spec.ResourceLimit {
	return spec.ResourceLimit{TimeMs: 1000, MemoryBytes: 256 * spec.MB, Processes: 1}
}

func (c Config) withDefaults() Config {
	if c.WorkRoot == "" {
		c.WorkRoot = filepath.Join(os.TempDir(), defaultWorkDirName)
	}
	if c.RootFS == "" {
		c.RootFS = DefaultRootFS
	}
	c.CompileLimits = spec.MergeLimits(DefaultCompileLimits(), c.CompileLimits)
	c.RunLimits = spec.MergeLimits(DefaultRunLimits(), c.RunLimits)
	c.CheckerLimits = spec.MergeLimits(c.RunLimits, c.CheckerLimits)
	if c.CaptureMaxBytes <= 0 {
		c.CaptureMaxBytes = result.DefaultCaptureMaxBytes
	}
	return c
}
