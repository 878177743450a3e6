// Package invocation translates a staged phase into a sandbox invocation spec.
package invocation

import (
	"os"
	"path"
	"strings"

	"github.com/google/shlex"

	"chiko/internal/judge/sandbox/profile"
	"chiko/internal/judge/sandbox/spec"
	"chiko/internal/judge/sandbox/stage"
	"chiko/internal/judge/sandbox/workspace"
	appErr "chiko/pkg/errors"
)

// ContainerWorkDir is where the work subtree appears inside the sandbox.
const ContainerWorkDir = "/work"

const (
	DefaultCompilerCmd     = "g++ {src} -o {bin} -O2 -std=c++17 -Wall"
	DefaultHostnamePrefix  = "chiko"
	DefaultMountQuotaBytes = 100 * spec.MB
	DefaultPath            = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// Config holds the fixed inputs of every invocation.
type Config struct {
	RootFS          string   `yaml:"rootfs"`
	HostnamePrefix  string   `yaml:"hostnamePrefix"`
	MountQuotaBytes int64    `yaml:"mountQuotaBytes"`
	Env             []string `yaml:"env"`
	// CompilerCmd is split like a shell command line; {src} and {bin}
	// expand to the source and binary names inside the work directory.
	CompilerCmd string `yaml:"compilerCmd"`
}

// Builder produces invocation specs. It performs no I/O.
type Builder struct {
	cfg Config
}

// NewBuilder fills unset config fields with defaults.
func NewBuilder(cfg Config) *Builder {
	if cfg.HostnamePrefix == "" {
		cfg.HostnamePrefix = DefaultHostnamePrefix
	}
	if cfg.MountQuotaBytes <= 0 {
		cfg.MountQuotaBytes = DefaultMountQuotaBytes
	}
	if len(cfg.Env) == 0 {
		cfg.Env = []string{DefaultPath}
	}
	if strings.TrimSpace(cfg.CompilerCmd) == "" {
		cfg.CompilerCmd = DefaultCompilerCmd
	}
	return &Builder{cfg: cfg}
}

// Build returns the invocation spec for one phase of the task in ws.
func (b *Builder) Build(phase profile.Phase, ws *workspace.Workspace, staged stage.Staged, limits spec.ResourceLimit) (spec.InvocationSpec, error) {
	if ws == nil {
		return spec.InvocationSpec{}, appErr.ValidationError("workspace", "required")
	}
	if b.cfg.RootFS == "" {
		return spec.InvocationSpec{}, appErr.ValidationError("rootfs", "required")
	}
	prof, err := profile.ForPhase(phase)
	if err != nil {
		return spec.InvocationSpec{}, appErr.Wrapf(err, appErr.InvalidParams, "unsupported phase: %s", phase)
	}
	limits = prof.Limits(limits)
	if err := limits.Validate(); err != nil {
		return spec.InvocationSpec{}, err
	}

	argv, err := b.argv(phase, staged)
	if err != nil {
		return spec.InvocationSpec{}, err
	}

	return spec.InvocationSpec{
		Hostname:   ws.ID.Hostname(b.cfg.HostnamePrefix, prof.Role),
		CgroupName: ws.ID.CgroupName(prof.Role),
		RootFS:     b.cfg.RootFS,
		Mounts: []spec.MountSpec{{
			Source:     ws.WorkDir,
			Target:     ContainerWorkDir,
			LimitBytes: b.cfg.MountQuotaBytes,
		}},
		Executable:           argv[0],
		Args:                 argv,
		Env:                  append([]string(nil), b.cfg.Env...),
		WorkingDir:           ContainerWorkDir,
		Stdin:                orNull(staged.Stdin),
		Stdout:               orNull(staged.Stdout),
		Stderr:               orNull(staged.Stderr),
		Limits:               limits,
		User:                 prof.User,
		MountProc:            true,
		RedirectBeforeChroot: true,
	}, nil
}

func (b *Builder) argv(phase profile.Phase, staged stage.Staged) ([]string, error) {
	switch phase {
	case profile.PhaseCompile:
		if staged.SourceName == "" {
			return nil, appErr.ValidationError("source_name", "required")
		}
		if staged.SourceName == stage.ProgramName {
			return nil, appErr.ValidationError("source_name", "must not shadow the program")
		}
		return buildCommand(b.cfg.CompilerCmd, staged.SourceName, stage.ProgramName)
	case profile.PhaseChecker:
		return []string{
			path.Join(ContainerWorkDir, stage.CheckerName),
			path.Join(ContainerWorkDir, stage.InputName),
			path.Join(ContainerWorkDir, stage.OutputName),
			path.Join(ContainerWorkDir, stage.AnswerName),
		}, nil
	default:
		return []string{path.Join(ContainerWorkDir, stage.ProgramName)}, nil
	}
}

// buildCommand splits the template before expanding placeholders so a name
// containing spaces or quotes stays a single argument.
func buildCommand(tpl, src, bin string) ([]string, error) {
	fields, err := shlex.Split(tpl)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse compiler command failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("compiler command is empty")
	}
	expand := strings.NewReplacer("{src}", src, "{bin}", bin)
	for i, field := range fields {
		fields[i] = expand.Replace(field)
	}
	return fields, nil
}

func orNull(p string) string {
	if p == "" {
		return os.DevNull
	}
	return p
}
