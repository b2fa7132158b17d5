// Package errors provides centralized error definitions and error handling
// utilities for the steward codebase. It defines domain-specific errors,
// sentinel errors, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - AnalysisError: errors from dependency analysis and graph construction
//   - BackendError: errors from calls to the external agent backend
//   - CoordinationError: errors from level coordination and conflict handling
//   - EvaluationError: errors from the evaluation pipeline and consensus
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewBackendError("semantic evaluation call failed", cause).
//		WithItem(3).WithAttempt(2)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrResponseMalformed) { ... }
//
//	var backendErr *errors.BackendError
//	if errors.As(err, &backendErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Specification-related sentinel errors
var (
	// ErrSpecMissingField indicates a specification is missing a required field.
	ErrSpecMissingField = New("specification missing required field")
	// ErrSpecAmbiguous indicates the specification's ambiguity score exceeds the ceiling.
	ErrSpecAmbiguous = New("specification ambiguity exceeds threshold")
	// ErrSpecNoItems indicates a specification has no work items.
	ErrSpecNoItems = New("specification has no work items")
)

// Backend-related sentinel errors
var (
	// ErrBackendUnavailable indicates the agent backend could not be reached.
	ErrBackendUnavailable = New("agent backend unavailable")
	// ErrResponseMalformed indicates a backend response was not in the expected form.
	ErrResponseMalformed = New("backend response malformed")
	// ErrRetryBudgetExhausted indicates the retry budget for a call was spent.
	ErrRetryBudgetExhausted = New("retry budget exhausted")
)

// Coordination-related sentinel errors
var (
	// ErrDependencyCycle indicates a circular dependency between work items.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrLevelIncomplete indicates coordination was attempted before all traces returned.
	ErrLevelIncomplete = New("level has outstanding traces")
	// ErrItemFailed indicates a work item reached a failed terminal state.
	ErrItemFailed = New("work item failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// AnalysisError represents errors from dependency analysis and graph construction.
type AnalysisError struct {
	baseError
	ItemCount int
}

// NewAnalysisError creates a new AnalysisError.
func NewAnalysisError(message string, cause error) *AnalysisError {
	return &AnalysisError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		ItemCount: -1,
	}
}

// WithItemCount adds the number of items under analysis to the error context.
func (e *AnalysisError) WithItemCount(n int) *AnalysisError {
	e.ItemCount = n
	return e
}

// Error returns the formatted error message.
func (e *AnalysisError) Error() string {
	prefix := "analysis error"
	if e.ItemCount >= 0 {
		prefix = fmt.Sprintf("analysis error [items=%d]", e.ItemCount)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *AnalysisError) Is(target error) bool {
	if _, ok := target.(*AnalysisError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// BackendError represents errors from calls to the external agent backend.
type BackendError struct {
	baseError
	ItemIndex int
	Attempt   int
	RawOutput string
}

// NewBackendError creates a new BackendError. Backend errors are retryable
// by default since most are transport timeouts or transient failures.
func NewBackendError(message string, cause error) *BackendError {
	return &BackendError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		ItemIndex: -1,
	}
}

// WithItem adds the work-item index to the error context.
func (e *BackendError) WithItem(index int) *BackendError {
	e.ItemIndex = index
	return e
}

// WithAttempt adds the attempt number to the error context.
func (e *BackendError) WithAttempt(attempt int) *BackendError {
	e.Attempt = attempt
	return e
}

// WithRawOutput attaches the raw backend output for diagnosis of parse errors.
// The output is not included in the error string; it is surfaced through logs.
func (e *BackendError) WithRawOutput(raw string) *BackendError {
	e.RawOutput = raw
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *BackendError) WithRetryable(r bool) *BackendError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *BackendError) Error() string {
	var parts []string
	if e.ItemIndex >= 0 {
		parts = append(parts, fmt.Sprintf("item=%d", e.ItemIndex))
	}
	if e.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}

	prefix := "backend error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("backend error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *BackendError) Is(target error) bool {
	if _, ok := target.(*BackendError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CoordinationError represents errors from level coordination and conflict handling.
type CoordinationError struct {
	baseError
	Level int
	Path  string
}

// NewCoordinationError creates a new CoordinationError.
func NewCoordinationError(message string, cause error) *CoordinationError {
	return &CoordinationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Level: -1,
	}
}

// WithLevel adds the execution level to the error context.
func (e *CoordinationError) WithLevel(level int) *CoordinationError {
	e.Level = level
	return e
}

// WithPath adds the conflicting resource path to the error context.
func (e *CoordinationError) WithPath(path string) *CoordinationError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *CoordinationError) Error() string {
	var parts []string
	if e.Level >= 0 {
		parts = append(parts, fmt.Sprintf("level=%d", e.Level))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "coordination error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("coordination error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CoordinationError) Is(target error) bool {
	if _, ok := target.(*CoordinationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// EvaluationError represents errors from the evaluation pipeline and consensus.
// Note that check failures and rejected verdicts are NOT evaluation errors;
// they are expected signals carried in results. An EvaluationError means the
// pipeline itself could not complete.
type EvaluationError struct {
	baseError
	ItemIndex int
	Stage     int
}

// NewEvaluationError creates a new EvaluationError.
func NewEvaluationError(message string, cause error) *EvaluationError {
	return &EvaluationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		ItemIndex: -1,
	}
}

// WithItem adds the work-item index to the error context.
func (e *EvaluationError) WithItem(index int) *EvaluationError {
	e.ItemIndex = index
	return e
}

// WithStage adds the pipeline stage to the error context.
func (e *EvaluationError) WithStage(stage int) *EvaluationError {
	e.Stage = stage
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *EvaluationError) WithRetryable(r bool) *EvaluationError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *EvaluationError) Error() string {
	var parts []string
	if e.ItemIndex >= 0 {
		parts = append(parts, fmt.Sprintf("item=%d", e.ItemIndex))
	}
	if e.Stage > 0 {
		parts = append(parts, fmt.Sprintf("stage=%d", e.Stage))
	}

	prefix := "evaluation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("evaluation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *EvaluationError) Is(target error) bool {
	if _, ok := target.(*EvaluationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// classifier is implemented by errors that carry classification metadata.
type classifier interface {
	Severity() Severity
	IsRetryable() bool
	IsUserFacing() bool
}

// IsRetryable reports whether err is transient and the operation may succeed
// on retry. Timeouts and unavailable-backend errors are retryable regardless
// of the carrying type.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrBackendUnavailable) {
		return true
	}
	var c classifier
	if errors.As(err, &c) {
		return c.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var c classifier
	if errors.As(err, &c) {
		return c.IsUserFacing()
	}
	return false
}

// SeverityOf returns the severity of an error, defaulting to SeverityError
// for errors that carry no classification.
func SeverityOf(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var c classifier
	if errors.As(err, &c) {
		return c.Severity()
	}
	return SeverityError
}
