package timeline

import (
	"errors"
	"fmt"
	"time"
)

// ContractError reports misuse of the engine: a malformed element tree or a
// scheduler bug. It is raised with panic and is never a runtime condition a
// caller should retry.
type ContractError struct {
	// Code identifies the violated contract.
	Code ContractCode

	// Message is a human-readable description.
	Message string

	// Element names the element involved, if any.
	Element string
}

// ContractCode categorizes contract violations.
type ContractCode string

const (
	// ErrCodeAlreadyAttached indicates an element was scheduled while it is
	// (or was) attached to a handle.
	ErrCodeAlreadyAttached ContractCode = "ALREADY_ATTACHED"

	// ErrCodeNotActiveFrame indicates a parent tried to schedule a child
	// while it was not the timeline's currently executing element.
	ErrCodeNotActiveFrame ContractCode = "NOT_ACTIVE_FRAME"

	// ErrCodeInvalidChild indicates an element or generator produced
	// something that is not a valid child.
	ErrCodeInvalidChild ContractCode = "INVALID_CHILD"

	// ErrCodeTornDown indicates an operation on an element that has already
	// been torn down.
	ErrCodeTornDown ContractCode = "TORN_DOWN"

	// ErrCodeReentrant indicates an element was entered while already
	// executing, or Simulate was called from inside the driver loop.
	ErrCodeReentrant ContractCode = "REENTRANT"
)

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("%s: %s (element=%s)", e.Code, e.Message, e.Element)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsContractError returns true if err is a ContractError with the given code.
// Uses errors.As to handle wrapped errors.
func IsContractError(err error, code ContractCode) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// violation panics with a ContractError.
func violation(code ContractCode, e Element, format string, args ...any) {
	ce := &ContractError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
	if e != nil {
		ce.Element = nameOf(e)
	}
	panic(ce)
}

// Recover converts a ContractError panic into an error value.
// Any other panic is re-raised.
//
// Usage:
//
//	func run() (err error) {
//	    defer timeline.Recover(&err)
//	    ...
//	}
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ce, ok := r.(*ContractError); ok {
		*err = ce
		return
	}
	panic(r)
}

// StepsExceededError is returned by Simulate when a tick runs more
// Run/Resume steps than the configured budget.
//
// The timeline stays consistent: the remaining work stays queued and the next
// Simulate call continues it.
type StepsExceededError struct {
	At    time.Duration // Virtual time at which the budget ran out
	Steps int           // Steps taken during the tick
	Limit int           // Configured maximum
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("tick at %s exceeded max steps: %d steps > %d limit",
		e.At, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
