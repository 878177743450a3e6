// Package result defines sandbox execution outcomes and their normalized form.
package result

import "unicode/utf8"

// DefaultCaptureMaxBytes caps each captured stream.
const DefaultCaptureMaxBytes = 1024 * 1024

// Status is the terminal state of a confined process as reported by the engine.
type Status string

const (
	// StatusSucceeded means the process exited on its own; the exit code may be non-zero.
	StatusSucceeded      Status = "Succeeded"
	StatusTimedOut       Status = "TimedOut"
	StatusMemoryExceeded Status = "MemoryExceeded"
	StatusRuntimeError   Status = "RuntimeError"
	StatusKilled         Status = "Killed"
	StatusSystemError    Status = "SystemError"
)

// RawOutcome is what the engine reports for one confined process.
type RawOutcome struct {
	Status      Status
	ExitCode    int
	TimeNs      int64
	MemoryBytes int64
}

// Result is the judge-facing measurement of one invocation.
type Result struct {
	Status      Status  `json:"status"`
	ExitCode    int     `json:"exitCode"`
	TimeMs      float64 `json:"time"`
	MemoryBytes int64   `json:"memory"`
}

// Streams holds the raw captured text of one invocation.
type Streams struct {
	Output string
	Error  string
}

// Normalized is a Result with its size-capped streams attached.
type Normalized struct {
	Result
	Output string
	Error  string
}

// Normalize converts engine units and caps captured streams at maxBytes.
// Status and exit code pass through untouched.
func Normalize(raw RawOutcome, streams Streams, maxBytes int) Normalized {
	if maxBytes <= 0 {
		maxBytes = DefaultCaptureMaxBytes
	}
	return Normalized{
		Result: Result{
			Status:      raw.Status,
			ExitCode:    raw.ExitCode,
			TimeMs:      float64(raw.TimeNs) / 1e6,
			MemoryBytes: raw.MemoryBytes,
		},
		Output: Truncate(streams.Output, maxBytes),
		Error:  Truncate(streams.Error, maxBytes),
	}
}

// Truncate returns at most maxBytes bytes of s, backing off to the start of
// a rune when the cut lands inside one.
func Truncate(s string, maxBytes int) string {
	if maxBytes < 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for back := 0; cut > 0 && back < utf8.UTFMax && !utf8.RuneStart(s[cut]); back++ {
		cut--
	}
	if !utf8.RuneStart(s[cut]) {
		cut = maxBytes
	}
	return s[:cut]
}

// CompileResult is returned by the compile phase.
// Error holds compiler diagnostics.
type CompileResult struct {
	Result
	Error string `json:"error"`
}

// OK reports whether the compiler exited cleanly.
func (r CompileResult) OK() bool {
	return r.Status == StatusSucceeded && r.ExitCode == 0
}

// RunResult is returned by the run phases.
type RunResult struct {
	Result Result `json:"result"`
	Output string `json:"output"`
	Error  string `json:"error"`
}

// Verdict is the testlib-style decision reported by a checker.
type Verdict string

const (
	VerdictAccepted          Verdict = "Accepted"
	VerdictWrongAnswer       Verdict = "WrongAnswer"
	VerdictPresentationError Verdict = "PresentationError"
	VerdictCheckerFail       Verdict = "CheckerFail"
	VerdictDirt              Verdict = "Dirt"
	VerdictPoints            Verdict = "Points"
	VerdictUnknown           Verdict = "Unknown"
)

// CheckerResult is returned by the checker phase.
// Message is the checker's own explanation of the verdict.
type CheckerResult struct {
	RunResult
	Verdict Verdict `json:"verdict"`
	Message string  `json:"message"`
}

// CheckerVerdict maps a finished checker outcome to a verdict.
// A checker that did not exit on its own always fails.
func CheckerVerdict(r Result) Verdict {
	if r.Status != StatusSucceeded {
		return VerdictCheckerFail
	}
	switch r.ExitCode {
	case 0:
		return VerdictAccepted
	case 1:
		return VerdictWrongAnswer
	case 2:
		return VerdictPresentationError
	case 3:
		return VerdictCheckerFail
	case 4:
		return VerdictDirt
	case 7:
		return VerdictPoints
	default:
		return VerdictUnknown
	}
}
