package model

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindState      ErrorKind = "state"
	KindNotFound   ErrorKind = "not_found"
	KindExternal   ErrorKind = "external"
)

type ErrorCode string

const (
	CodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	CodeMissingPrice        ErrorCode = "MISSING_PRICE"
	CodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	CodeAmountMismatch      ErrorCode = "AMOUNT_MISMATCH"
	CodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	CodeInvalidStatus       ErrorCode = "INVALID_STATUS"
	CodeTransportConflict   ErrorCode = "TRANSPORT_ALREADY_ASSIGNED"
	CodeNotEligible         ErrorCode = "NOT_ELIGIBLE"
	CodeOpenIncidents       ErrorCode = "OPEN_INCIDENTS"
	CodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	CodeNothingToPayout     ErrorCode = "NOTHING_TO_PAYOUT"
	CodeTerminalState       ErrorCode = "TERMINAL_STATE"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeGatewayFailure      ErrorCode = "GATEWAY_FAILURE"
)

// BusinessError is returned for every expected failure of the finance core.
// Anything else reaching a caller is a system fault.
type BusinessError struct {
	Kind    ErrorKind
	Code    ErrorCode
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewValidationError(code ErrorCode, format string, args ...any) *BusinessError {
	return &BusinessError{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewStateError(code ErrorCode, format string, args ...any) *BusinessError {
	return &BusinessError{Kind: KindState, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(entity string, id any) *BusinessError {
	return &BusinessError{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

func NewExternalError(message string, err error) *BusinessError {
	return &BusinessError{Kind: KindExternal, Code: CodeGatewayFailure, Message: message, Err: err}
}

func AsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

func IsBusinessError(err error) bool {
	_, ok := AsBusinessError(err)
	return ok
}

func isKind(err error, kind ErrorKind) bool {
	be, ok := AsBusinessError(err)
	return ok && be.Kind == kind
}

func IsValidation(err error) bool { return isKind(err, KindValidation) }
func IsState(err error) bool      { return isKind(err, KindState) }
func IsNotFound(err error) bool   { return isKind(err, KindNotFound) }
func IsExternal(err error) bool   { return isKind(err, KindExternal) }

// HasCode reports whether err is a BusinessError carrying code.
func HasCode(err error, code ErrorCode) bool {
	be, ok := AsBusinessError(err)
	return ok && be.Code == code
}
