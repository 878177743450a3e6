//go:build unix

// Package host runs invocations directly on the host without confinement.
// Only the wall-clock limit is enforced; memory is checked after the fact.
// It exists for development machines and tests that cannot create namespaces.
package host

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"chiko/internal/judge/sandbox/engine"
	"chiko/internal/judge/sandbox/result"
	"chiko/internal/judge/sandbox/spec"
	appErr "chiko/pkg/errors"
	"chiko/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	maxBusyRetries = 5
	busyRetryDelay = 20 * time.Millisecond
)

// Engine is an unconfined engine.Engine.
type Engine struct{}

// New returns a host engine.
func New() *Engine {
	return &Engine{}
}

var _ engine.Engine = (*Engine)(nil)

// ResolveIdentity reads the passwd file of rootfs; the identity is not applied.
func (e *Engine) ResolveIdentity(rootfs, account string) (spec.Identity, error) {
	return engine.ReadPasswd(rootfs, account)
}

func (e *Engine) Start(ctx context.Context, s spec.InvocationSpec) (engine.Handle, error) {
	s = s.Clone()
	if err := engine.ValidateSpec(s); err != nil {
		return nil, err
	}

	files := make([]*os.File, 0, 3)
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	open := func(path string, flag int) (*os.File, error) {
		if !s.RedirectBeforeChroot {
			path = s.HostPath(path)
		}
		f, err := os.OpenFile(path, flag, 0666)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.CollaboratorFailure, "open redirect %s failed", path)
		}
		files = append(files, f)
		return f, nil
	}
	stdin, err := open(orNull(s.Stdin), os.O_RDONLY)
	if err != nil {
		closeAll()
		return nil, err
	}
	stdout, err := open(orNull(s.Stdout), os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		closeAll()
		return nil, err
	}
	stderr, err := open(orNull(s.Stderr), os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		closeAll()
		return nil, err
	}

	name := s.Executable
	if strings.Contains(name, "/") {
		name = s.HostPath(name)
	}
	newCmd := func() *exec.Cmd {
		cmd := exec.Command(name, s.Args[1:]...)
		cmd.Args[0] = s.Args[0]
		cmd.Dir = s.HostPath(s.WorkingDir)
		cmd.Env = append([]string(nil), s.Env...)
		cmd.Stdin = stdin
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		return cmd
	}

	cmd := newCmd()
	err = cmd.Start()
	// A freshly staged binary can still be open for writing in a child forked
	// by a concurrent invocation.
	for attempt := 0; errors.Is(err, syscall.ETXTBSY) && attempt < maxBusyRetries; attempt++ {
		time.Sleep(busyRetryDelay)
		cmd = newCmd()
		err = cmd.Start()
	}
	if err != nil {
		closeAll()
		return nil, appErr.Wrapf(err, appErr.CollaboratorFailure, "start %s failed", s.Executable)
	}
	closeAll()
	logger.Debug(ctx, "host process started", zap.Int("pid", cmd.Process.Pid), zap.String("executable", s.Executable))

	return &handle{cmd: cmd, limits: s.Limits}, nil
}

type handle struct {
	cmd    *exec.Cmd
	limits spec.ResourceLimit

	once    sync.Once
	outcome result.RawOutcome
	err     error
}

func (h *handle) Wait(ctx context.Context) (result.RawOutcome, error) {
	h.once.Do(func() {
		h.outcome, h.err = h.wait(ctx)
	})
	return h.outcome, h.err
}

func (h *handle) wait(ctx context.Context) (result.RawOutcome, error) {
	var timedOut, cancelled atomic.Bool
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		timer := time.NewTimer(time.Duration(h.limits.TimeMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
		case <-timer.C:
			timedOut.Store(true)
			_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
		case <-done:
		}
	}()

	waitErr := h.cmd.Wait()
	close(done)
	<-stopped

	state := h.cmd.ProcessState
	if state == nil {
		return result.RawOutcome{Status: result.StatusSystemError, ExitCode: -1},
			appErr.Wrapf(waitErr, appErr.CollaboratorFailure, "wait host process failed")
	}
	// Reap anything the process left behind in its group.
	_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)

	out := result.RawOutcome{
		ExitCode: state.ExitCode(),
		TimeNs:   int64(state.UserTime() + state.SystemTime()),
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		out.MemoryBytes = maxRSSBytes(usage)
	}
	signaled := false
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		signaled = true
		out.ExitCode = 128 + int(ws.Signal())
	}

	switch {
	case timedOut.Load() || out.TimeNs > h.limits.TimeMs*int64(time.Millisecond):
		out.Status = result.StatusTimedOut
	case h.limits.MemoryBytes > 0 && out.MemoryBytes > h.limits.MemoryBytes:
		out.Status = result.StatusMemoryExceeded
	case cancelled.Load():
		out.Status = result.StatusKilled
	case signaled:
		out.Status = result.StatusRuntimeError
	default:
		out.Status = result.StatusSucceeded
	}
	return out, nil
}

func orNull(p string) string {
	if p == "" {
		return os.DevNull
	}
	return p
}
