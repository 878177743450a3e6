//go:build linux

package main

import (
	"fmt"

	"golang.org/x/sys/unix"

	"chiko/internal/judge/sandbox/spec"
)

// cpuSeconds rounds the time limit up and adds one second of slack; the
// wall-clock timer in the engine is the primary limit.
func cpuSeconds(timeMs int64) uint64 {
	if timeMs <= 0 {
		return 0
	}
	return uint64((timeMs+999)/1000) + 1
}

// fileSizeLimit approximates the mount quota: no single file may grow past
// the largest writable mount.
func fileSizeLimit(mounts []spec.MountSpec) uint64 {
	var limit int64
	for _, m := range mounts {
		if !m.ReadOnly && m.LimitBytes > limit {
			limit = m.LimitBytes
		}
	}
	return uint64(limit)
}

func applyRlimits(limits spec.ResourceLimit, mounts []spec.MountSpec) error {
	if secs := cpuSeconds(limits.TimeMs); secs > 0 {
		// SIGXCPU at the soft limit, SIGKILL one second later.
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: secs, Max: secs + 1}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if size := fileSizeLimit(mounts); size > 0 {
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: size, Max: size}); err != nil {
			return fmt.Errorf("set rlimit fsize: %w", err)
		}
	}
	return nil
}

// processLimit returns the RLIMIT_NPROC value, or false when pids.max of the
// task cgroup already caps the process count. NPROC counts every process of
// the uid, so sibling tasks under the same account share it.
func processLimit(limits spec.ResourceLimit, pidsInCgroup bool) (uint64, bool) {
	if pidsInCgroup || limits.Processes <= 0 {
		return 0, false
	}
	return uint64(limits.Processes), true
}

// applyProcessLimit must run after the uid switch: setuid under an exceeded
// NPROC flags the process and the following execve fails with EAGAIN.
func applyProcessLimit(limits spec.ResourceLimit, pidsInCgroup bool) error {
	val, ok := processLimit(limits, pidsInCgroup)
	if !ok {
		return nil
	}
	if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{Cur: val, Max: val}); err != nil {
		return fmt.Errorf("set rlimit nproc: %w", err)
	}
	return nil
}
