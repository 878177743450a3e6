//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"chiko/internal/judge/sandbox/result"
	"chiko/internal/judge/sandbox/spec"
	appErr "chiko/pkg/errors"
	"chiko/pkg/utils/logger"

	"go.uber.org/zap"
)

type linuxEngine struct {
	cfg Config
}

// NewEngine creates the namespace and cgroup backed engine.
func NewEngine(cfg Config) (Engine, error) {
	return &linuxEngine{cfg: cfg.withDefaults()}, nil
}

func (e *linuxEngine) ResolveIdentity(rootfs, account string) (spec.Identity, error) {
	return ReadPasswd(rootfs, account)
}

func (e *linuxEngine) Start(ctx context.Context, s spec.InvocationSpec) (Handle, error) {
	s = s.Clone()
	if err := ValidateSpec(s); err != nil {
		return nil, err
	}
	if info, err := os.Stat(s.RootFS); err != nil || !info.IsDir() {
		return nil, appErr.Newf(appErr.InvocationRejected, "rootfs %s is not a directory", s.RootFS)
	}
	if s.Credential == nil {
		id, err := e.ResolveIdentity(s.RootFS, s.User)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.InvocationRejected)
		}
		s.Credential = &id
	}

	mapUser := os.Geteuid() != 0
	if mapUser {
		logger.Warn(ctx, "running without root, confined process keeps the mapped identity",
			zap.String("user", s.User))
	}

	var cg *taskCgroup
	if e.cfg.EnableCgroup {
		var err error
		cg, err = createTaskCgroup(e.cfg.CgroupRoot, s.CgroupName)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.CollaboratorFailure, "create cgroup failed")
		}
		if err := cg.applyLimits(s.Limits); err != nil {
			_ = cg.destroy()
			return nil, appErr.Wrapf(err, appErr.CollaboratorFailure, "apply cgroup limits failed")
		}
	}

	payload, err := json.Marshal(newInitRequest(e.cfg, s, mapUser, cg != nil))
	if err != nil {
		e.release(cg)
		return nil, appErr.Wrapf(err, appErr.CollaboratorFailure, "encode init request failed")
	}

	statusR, statusW, err := os.Pipe()
	if err != nil {
		e.release(cg)
		return nil, appErr.Wrapf(err, appErr.CollaboratorFailure, "create status pipe failed")
	}

	cmd := exec.Command(e.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr(mapUser, cg)
	cmd.Stdin = bytes.NewReader(payload)
	// fd 3 in the helper; it reports setup failures there and closes it on exec.
	cmd.ExtraFiles = []*os.File{statusW}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = statusR.Close()
		_ = statusW.Close()
		e.release(cg)
		return nil, appErr.Wrapf(err, appErr.CollaboratorFailure, "start sandbox helper failed")
	}
	_ = statusW.Close()

	logger.Debug(ctx, "sandbox process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("hostname", s.Hostname),
		zap.String("cgroup", s.CgroupName))

	return &linuxHandle{
		cmd:    cmd,
		spec:   s,
		cgroup: cg,
		status: statusR,
		stderr: stderr,
		start:  time.Now(),
	}, nil
}

func (e *linuxEngine) release(cg *taskCgroup) {
	if cg != nil {
		_ = cg.destroy()
	}
}

type linuxHandle struct {
	cmd    *exec.Cmd
	spec   spec.InvocationSpec
	cgroup *taskCgroup
	status *os.File
	stderr *bytes.Buffer
	start  time.Time

	once    sync.Once
	outcome result.RawOutcome
	err     error
}

func (h *linuxHandle) Wait(ctx context.Context) (result.RawOutcome, error) {
	h.once.Do(func() {
		h.outcome, h.err = h.wait(ctx)
	})
	return h.outcome, h.err
}

func (h *linuxHandle) wait(ctx context.Context) (result.RawOutcome, error) {
	defer h.status.Close()
	defer func() {
		if h.cgroup == nil {
			return
		}
		if err := h.cgroup.destroy(); err != nil {
			logger.Warn(ctx, "remove cgroup failed", zap.String("cgroup", h.spec.CgroupName), zap.Error(err))
		}
	}()

	var timedOut, cancelled atomic.Bool
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		timer := time.NewTimer(durationFromMs(h.spec.Limits.TimeMs))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			h.kill()
		case <-timer.C:
			timedOut.Store(true)
			h.kill()
		case <-done:
		}
	}()

	waitErr := h.cmd.Wait()
	close(done)
	<-stopped
	wall := time.Since(h.start)

	if msg, _ := io.ReadAll(h.status); len(msg) > 0 {
		return result.RawOutcome{Status: result.StatusSystemError, ExitCode: -1},
			appErr.Newf(appErr.CollaboratorFailure, "sandbox helper failed: %s", strings.TrimSpace(string(msg)))
	}
	state := h.cmd.ProcessState
	if state == nil {
		return result.RawOutcome{Status: result.StatusSystemError, ExitCode: -1},
			appErr.Wrapf(waitErr, appErr.CollaboratorFailure, "wait sandbox process failed")
	}

	oom := false
	timeNs := cpuTimeNs(state)
	memory := maxRSSBytes(state)
	if h.cgroup != nil {
		oom = h.cgroup.oomKilled()
		if ns, ok := h.cgroup.cpuTimeNs(); ok {
			timeNs = ns
		}
		if peak := h.cgroup.memoryPeak(); peak > 0 {
			memory = peak
		}
	}

	status, exitCode := classify(state, timedOut.Load(), oom, cancelled.Load())
	if status == result.StatusSucceeded && timeNs > durationFromMs(h.spec.Limits.TimeMs).Nanoseconds() {
		status = result.StatusTimedOut
	}
	if h.stderr.Len() > 0 {
		logger.Debug(ctx, "sandbox helper stderr", zap.String("stderr", h.stderr.String()))
	}
	logger.Debug(ctx, "sandbox process stopped",
		zap.String("status", string(status)),
		zap.Int("exit_code", exitCode),
		zap.Duration("wall", wall))

	return result.RawOutcome{
		Status:      status,
		ExitCode:    exitCode,
		TimeNs:      timeNs,
		MemoryBytes: memory,
	}, nil
}

func (h *linuxHandle) kill() {
	if h.cgroup != nil {
		_ = h.cgroup.kill()
	}
	if pid := h.cmd.Process.Pid; pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func buildSysProcAttr(mapUser bool, cg *taskCgroup) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	attr.Cloneflags = uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS |
		syscall.CLONE_NEWIPC | syscall.CLONE_NEWNET)
	if cg != nil {
		attr.UseCgroupFD = true
		attr.CgroupFD = cg.fd()
	}
	if !mapUser {
		return attr
	}

	attr.Cloneflags |= syscall.CLONE_NEWUSER
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}
