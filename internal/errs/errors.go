// Package errs defines the error taxonomy shared by the token service and the
// transaction worker. Orchestration boundaries wrap lower-level causes in a
// coded Error; RootCause strips nested data-layer wrappers so callers see the
// most actionable cause.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable, user-visible error code.
type Code string

const (
	CodeUnknown             Code = "UNKNOWN"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeNotFound            Code = "NOT_FOUND"
	CodeDuplicateName       Code = "DUPLICATE_NAME"
	CodeInvalidName         Code = "INVALID_NAME"
	CodeRulesViolation      Code = "RULES_VIOLATION"
	CodeAssetLocked         Code = "ASSET_LOCKED"
	CodeNoOffer             Code = "NO_OFFER"
	CodeExpired             Code = "EXPIRED"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeAmlCheck            Code = "AML_CHECK"
	CodeSecurityError       Code = "SECURITY_ERROR"
	CodeDataError           Code = "DATA_ERROR"
	CodeComFailure          Code = "COM_FAILURE"
	CodeUnsupportedCurrency Code = "UNSUPPORTED_CURRENCY"
)

// Severity qualifies a business-rule violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Error is a coded error with an optional cause chain.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error without a cause.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error carrying the original as cause.
func Wrap(cause error, code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// RuleViolation is a single named business rule failure with severity
// metadata for the caller.
type RuleViolation struct {
	Message  string
	Code     Code
	Severity Severity
}

// BusinessRuleError reports one or more rule violations. The error code of
// the overall failure is the code of the first violation.
type BusinessRuleError struct {
	Violations []RuleViolation
}

func (e *BusinessRuleError) Error() string {
	if len(e.Violations) == 0 {
		return "business rule violation"
	}
	return fmt.Sprintf("%s (%s)", e.Violations[0].Message, e.Violations[0].Code)
}

// NewBusinessRule creates a single-violation business rule error.
func NewBusinessRule(code Code, severity Severity, format string, args ...interface{}) *BusinessRuleError {
	return &BusinessRuleError{Violations: []RuleViolation{{
		Message:  fmt.Sprintf(format, args...),
		Code:     code,
		Severity: severity,
	}}}
}

// CodeOf returns the code of the outermost coded error in err's chain, or
// CodeUnknown when none is present.
func CodeOf(err error) Code {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Code
		case *BusinessRuleError:
			if len(e.Violations) > 0 {
				return e.Violations[0].Code
			}
			return CodeRulesViolation
		}
		err = errors.Unwrap(err)
	}
	return CodeUnknown
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Code == code {
				return true
			}
		case *BusinessRuleError:
			for _, v := range e.Violations {
				if v.Code == code {
					return true
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// RootCause strips nested DATA_ERROR wrappers and returns the most specific
// underlying cause. Non-data errors are returned as-is.
func RootCause(err error) error {
	for {
		e, ok := err.(*Error)
		if !ok || e.Code != CodeDataError || e.Cause == nil {
			return err
		}
		err = e.Cause
	}
}
