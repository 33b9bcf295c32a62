package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrCatalogInvalid   = fmt.Errorf("catalog entry invalid")
	ErrMaxTurns         = fmt.Errorf("agent loop reached max turns")
	ErrPolicyViolation  = fmt.Errorf("security policy violation")
	ErrPermissionDenied = fmt.Errorf("permission denied")

	// Resilience errors mapped from provider responses.
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrBackendFailure  = fmt.Errorf("backend call failed")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Route")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsCancellation reports whether err is (or wraps) a context cancellation
// or deadline signal. Cancellation is a distinct outcome class and must
// never be treated as a recoverable backend failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrContextOverflow)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeCatalogInvalid   ErrorCode = "CATALOG_INVALID"
	CodeMaxTurns         ErrorCode = "MAX_TURNS"
	CodePolicyViolation  ErrorCode = "POLICY_VIOLATION"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeBackendFailure   ErrorCode = "BACKEND_FAILURE"
	CodeCancelled        ErrorCode = "CANCELLED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrAgentNotFound:    CodeAgentNotFound,
	ErrProviderNotFound: CodeProviderNotFound,
	ErrToolNotFound:     CodeToolNotFound,
	ErrCatalogInvalid:   CodeCatalogInvalid,
	ErrMaxTurns:         CodeMaxTurns,
	ErrPolicyViolation:  CodePolicyViolation,
	ErrPermissionDenied: CodePermissionDenied,
	ErrRateLimit:        CodeRateLimit,
	ErrContextOverflow:  CodeContextOverflow,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrBackendFailure:   CodeBackendFailure,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if IsCancellation(err) {
		return CodeCancelled
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
