package gauntlet

import (
	"errors"
	"fmt"
)

// RuntimeError is an operational failure outside the evaluation itself: bad
// configuration, an unreadable suite file, a store that will not open. It
// maps to exit code 2.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError wraps err as a RuntimeError.
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError reports whether err is or wraps a RuntimeError.
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// FailureError represents failed evaluation cases or detected regressions
// (exit code 1). The run itself completed; its outcome is the failure.
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("evaluation failure: %s", e.Message)
}

// NewFailureError builds a FailureError from the outcome message.
func NewFailureError(message string) *FailureError {
	return &FailureError{Message: message}
}

// IsFailureError reports whether err is or wraps a FailureError.
func IsFailureError(err error) bool {
	var failErr *FailureError
	return err != nil && errors.As(err, &failErr)
}

// InvocationError means the agent under evaluation could not be resolved or
// called at all, as opposed to answering wrongly. Per-case invocation
// failures are folded into case statuses; this surfaces only when the run
// cannot start.
type InvocationError struct {
	Err error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent invocation error: %v", e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// NewInvocationError wraps err as an InvocationError.
func NewInvocationError(err error) *InvocationError {
	return &InvocationError{Err: err}
}

// IsInvocationError reports whether err is or wraps an InvocationError.
func IsInvocationError(err error) bool {
	var invErr *InvocationError
	return err != nil && errors.As(err, &invErr)
}

// TimeoutError means an operation exceeded its deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// NewTimeoutError wraps err as a TimeoutError.
func NewTimeoutError(err error) *TimeoutError {
	return &TimeoutError{Err: err}
}

// IsTimeoutError reports whether err is or wraps a TimeoutError.
func IsTimeoutError(err error) bool {
	var toErr *TimeoutError
	return err != nil && errors.As(err, &toErr)
}

// DistributionTimeoutError means remote result collection exhausted its wait
// budget. It is recoverable: the run returned alongside it is complete, with
// the unresolved cases executed locally. Callers that do not care can treat
// it as a warning.
type DistributionTimeoutError struct {
	Err error
}

func (e *DistributionTimeoutError) Error() string {
	return fmt.Sprintf("distribution timeout: %v", e.Err)
}

func (e *DistributionTimeoutError) Unwrap() error {
	return e.Err
}

// NewDistributionTimeoutError wraps err as a DistributionTimeoutError.
func NewDistributionTimeoutError(err error) *DistributionTimeoutError {
	return &DistributionTimeoutError{Err: err}
}

// IsDistributionTimeoutError reports whether err is or wraps a
// DistributionTimeoutError.
func IsDistributionTimeoutError(err error) bool {
	var dtErr *DistributionTimeoutError
	return err != nil && errors.As(err, &dtErr)
}

// BrokerUnavailableError means the broker could not be reached. Fatal for
// distributed entry points; local mode never produces it.
type BrokerUnavailableError struct {
	Err error
}

func (e *BrokerUnavailableError) Error() string {
	return fmt.Sprintf("broker unavailable: %v", e.Err)
}

func (e *BrokerUnavailableError) Unwrap() error {
	return e.Err
}

// NewBrokerUnavailableError wraps err as a BrokerUnavailableError.
func NewBrokerUnavailableError(err error) *BrokerUnavailableError {
	return &BrokerUnavailableError{Err: err}
}

// IsBrokerUnavailableError reports whether err is or wraps a
// BrokerUnavailableError.
func IsBrokerUnavailableError(err error) bool {
	var buErr *BrokerUnavailableError
	return err != nil && errors.As(err, &buErr)
}
