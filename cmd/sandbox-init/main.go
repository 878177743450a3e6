//go:build linux

// sandbox-init prepares the confined environment inside fresh namespaces and
// then replaces itself with the requested program. The request arrives as
// JSON on stdin; setup failures are written to fd 3, which is closed on exec.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"chiko/internal/judge/sandbox/spec"
)

const statusFD = 3

type initRequest struct {
	Spec           spec.InvocationSpec
	SeccompProfile string
	EnableSeccomp  bool
	KeepIdentity   bool
	PidsInCgroup   bool
}

func init() {
	// Mounts, credentials and the seccomp filter must all land on the thread
	// that calls execve.
	runtime.LockOSThread()
}

func main() {
	status := statusFile()
	if err := run(); err != nil {
		if status != nil {
			_, _ = fmt.Fprintln(status, err.Error())
		} else {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(1)
	}
}

func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	s := req.Spec
	if err := validateRequest(s); err != nil {
		return err
	}

	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make mount private: %w", err)
	}
	if s.Hostname != "" {
		if err := unix.Sethostname([]byte(s.Hostname)); err != nil {
			return fmt.Errorf("set hostname: %w", err)
		}
	}
	if err := applyBindMounts(s.RootFS, s.Mounts); err != nil {
		return err
	}
	if s.MountProc {
		if err := mountProc(s.RootFS); err != nil {
			return err
		}
	}

	var redirects *stdio
	if s.RedirectBeforeChroot {
		if redirects, err = openStdio(s); err != nil {
			return err
		}
	}
	if err := unix.Chroot(s.RootFS); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir root: %w", err)
	}
	if err := os.Chdir(s.WorkingDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if redirects == nil {
		if redirects, err = openStdio(s); err != nil {
			return err
		}
	}

	if err := applyRlimits(s.Limits, s.Mounts); err != nil {
		return err
	}

	env := buildEnv(s.Env)
	os.Clearenv()
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set env: %w", err)
		}
	}
	cmdPath, err := exec.LookPath(s.Executable)
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}

	if err := redirects.install(); err != nil {
		return err
	}
	if !req.KeepIdentity && s.Credential != nil {
		if err := dropPrivileges(*s.Credential); err != nil {
			return err
		}
	}
	if err := applyProcessLimit(s.Limits, req.PidsInCgroup); err != nil {
		return err
	}
	if req.EnableSeccomp && req.SeccompProfile != "" {
		if err := applySeccomp(req.SeccompProfile); err != nil {
			return err
		}
	}
	return unix.Exec(cmdPath, s.Args, env)
}

// statusFile returns the inherited status pipe, or nil when the helper was
// started without one.
func statusFile() *os.File {
	if _, err := unix.FcntlInt(statusFD, unix.F_GETFD, 0); err != nil {
		return nil
	}
	unix.CloseOnExec(statusFD)
	return os.NewFile(statusFD, "status")
}

func decodeRequest(r io.Reader) (initRequest, error) {
	var req initRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return initRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(s spec.InvocationSpec) error {
	if s.RootFS == "" {
		return fmt.Errorf("rootfs is required")
	}
	if s.Executable == "" || len(s.Args) == 0 {
		return fmt.Errorf("command is required")
	}
	if s.WorkingDir == "" {
		return fmt.Errorf("work dir is required")
	}
	return nil
}

// dropPrivileges switches every thread to id. Supplementary groups go first
// since they can no longer be changed once the uid is dropped.
func dropPrivileges(id spec.Identity) error {
	if err := syscall.Setgroups([]int{}); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := syscall.Setgid(id.GID); err != nil {
		return fmt.Errorf("setgid: %w", err)
	}
	if err := syscall.Setuid(id.UID); err != nil {
		return fmt.Errorf("setuid: %w", err)
	}
	return nil
}

func buildEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}
