package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes runner failures. Front ends map kinds to their own
// protocol's error shape; the kind must survive translation.
type ErrorKind string

const (
	// KindInternal is an engine-side bug or precondition violation.
	KindInternal ErrorKind = "internal"
	// KindExternalService means the wrapped CLI tool misbehaved or exited non-zero.
	KindExternalService ErrorKind = "external_service"
	// KindBinaryNotFound means the CLI binary is missing or not executable.
	KindBinaryNotFound ErrorKind = "binary_not_found"
	// KindAuthFailure means the tool reported it is unauthenticated.
	KindAuthFailure ErrorKind = "auth_failure"
	// KindConfig is a caller-supplied invalid configuration or precondition violation.
	KindConfig ErrorKind = "config"
	// KindTimeout means the wall-clock budget was exceeded.
	KindTimeout ErrorKind = "timeout"
)

// RunnerError wraps a failure with its kind and operation context.
// Descriptions never include captured environment values or raw tokens;
// subprocess stderr surfaced here is diagnostic context only.
type RunnerError struct {
	Kind   ErrorKind
	Op     string // operation name (e.g., "runner.Execute")
	Detail string // human-readable, secret-free detail
	Err    error  // underlying error, if any
}

func (e *RunnerError) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *RunnerError) Unwrap() error { return e.Err }

// NewRunnerError creates a RunnerError with the given kind.
func NewRunnerError(kind ErrorKind, op, detail string) *RunnerError {
	return &RunnerError{Kind: kind, Op: op, Detail: detail}
}

// WrapRunnerError creates a RunnerError wrapping an underlying error.
func WrapRunnerError(kind ErrorKind, op string, err error) *RunnerError {
	return &RunnerError{Kind: kind, Op: op, Err: err}
}

// Internal creates a KindInternal error.
func Internal(op, detail string) *RunnerError {
	return NewRunnerError(KindInternal, op, detail)
}

// ExternalService creates a KindExternalService error attributed to a tool.
func ExternalService(op, detail string) *RunnerError {
	return NewRunnerError(KindExternalService, op, detail)
}

// BinaryNotFound creates a KindBinaryNotFound error for the named binary.
func BinaryNotFound(op, binary string) *RunnerError {
	return NewRunnerError(KindBinaryNotFound, op, "binary not found: "+binary)
}

// AuthFailure creates a KindAuthFailure error.
func AuthFailure(op, detail string) *RunnerError {
	return NewRunnerError(KindAuthFailure, op, detail)
}

// ConfigError creates a KindConfig error.
func ConfigError(op, detail string) *RunnerError {
	return NewRunnerError(KindConfig, op, detail)
}

// TimeoutError creates a KindTimeout error.
func TimeoutError(op, detail string) *RunnerError {
	return NewRunnerError(KindTimeout, op, detail)
}

// KindOf extracts the ErrorKind from an error chain. Errors that are not
// RunnerErrors are classified as KindInternal.
func KindOf(err error) ErrorKind {
	var re *RunnerError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}
