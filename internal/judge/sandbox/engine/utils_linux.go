//go:build linux

package engine

import (
	"os"
	"syscall"
	"time"

	"chiko/internal/judge/sandbox/result"
)

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func cpuTimeNs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	return int64(state.UserTime() + state.SystemTime())
}

func maxRSSBytes(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss * 1024
	}
	return 0
}

// classify derives the outcome status from how the process stopped.
func classify(state *os.ProcessState, timedOut, oomKilled, cancelled bool) (result.Status, int) {
	if state == nil {
		return result.StatusSystemError, -1
	}
	exitCode := state.ExitCode()
	var signal syscall.Signal
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		signal = ws.Signal()
		exitCode = 128 + int(signal)
	}
	switch {
	case timedOut || signal == syscall.SIGXCPU:
		return result.StatusTimedOut, exitCode
	case oomKilled:
		return result.StatusMemoryExceeded, exitCode
	case cancelled:
		return result.StatusKilled, exitCode
	case signal != 0:
		return result.StatusRuntimeError, exitCode
	default:
		return result.StatusSucceeded, exitCode
	}
}
