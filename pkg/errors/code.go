package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13100-13199: Judge errors
// 13300-13399: Sandbox pipeline errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Timeout             ErrorCode = 10008

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Judge Errors (13100-13199) ==========

	JudgeSystemError     ErrorCode = 13101
	LanguageNotSupported ErrorCode = 13103

	// ========== Sandbox Pipeline Errors (13300-13399) ==========

	// Workspace directory could not be allocated (task id collision or permission).
	WorkspaceCreationFailed ErrorCode = 13300
	// An input artifact was missing or unreadable while populating the workspace.
	StagingFailed ErrorCode = 13301
	// The sandbox collaborator refused the invocation spec.
	InvocationRejected ErrorCode = 13302
	// The sandbox collaborator crashed or failed while awaiting the process.
	CollaboratorFailure ErrorCode = 13303
	// A captured stream could not be read back after execution.
	CaptureFailed ErrorCode = 13304
	// A confined account could not be resolved inside the root filesystem.
	IdentityResolveFailed ErrorCode = 13305
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Timeout:             "Request timeout",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Judge
	JudgeSystemError:     "Judge system error",
	LanguageNotSupported: "Programming language not supported",

	// Sandbox pipeline
	WorkspaceCreationFailed: "Failed to create task workspace",
	StagingFailed:           "Failed to stage task inputs",
	InvocationRejected:      "Sandbox rejected the invocation",
	CollaboratorFailure:     "Sandbox execution failed",
	CaptureFailed:           "Failed to read captured output",
	IdentityResolveFailed:   "Failed to resolve sandbox identity",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// ExitStatus returns the process exit status the CLI should use for the code.
func (c ErrorCode) ExitStatus() int {
	switch {
	case c == Success:
		return 0
	case c >= 10300 && c < 10400: // Validation errors
		return 2
	case c == InvalidParams:
		return 2
	default:
		return 1
	}
}
