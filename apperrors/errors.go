// Package apperrors is the error taxonomy shared by the room engine and its transports.
package apperrors

import (
	"errors"
	"fmt"
)

// Error is a classified engine error. Reason narrows Code for callers that
// need to tell e.g. a full room from a wrong turn.
type Error struct {
	Code    Code
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches by Code, and by Reason too when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func New(code Code, reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Validation(message string) *Error { return New(CodeValidation, "", message) }

func NotFound(reason, message string) *Error { return New(CodeNotFound, reason, message) }

func IllegalState(reason, message string) *Error { return New(CodeIllegalState, reason, message) }

func Conflict(message string) *Error { return New(CodeConcurrencyConflict, "", message) }

func SettlementFailure(message string, cause error) *Error {
	return Wrap(CodeSettlementFailure, message, cause)
}

// CodeOf returns the Code carried anywhere in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Sentinels for errors.Is checks.
var (
	ErrValidation          = &Error{Code: CodeValidation}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrIllegalState        = &Error{Code: CodeIllegalState}
	ErrInsufficientFunds   = &Error{Code: CodeInsufficientFunds}
	ErrConcurrencyConflict = &Error{Code: CodeConcurrencyConflict}
	ErrSettlementFailure   = &Error{Code: CodeSettlementFailure}

	ErrRoomNotFound  = &Error{Code: CodeNotFound, Reason: ReasonRoomNotFound}
	ErrRoomFull      = &Error{Code: CodeIllegalState, Reason: ReasonRoomFull}
	ErrAlreadyJoined = &Error{Code: CodeIllegalState, Reason: ReasonAlreadyJoined}
	ErrNotAllReady   = &Error{Code: CodeIllegalState, Reason: ReasonNotAllReady}
	ErrNotYourTurn   = &Error{Code: CodeIllegalState, Reason: ReasonNotYourTurn}
	ErrInvalidToken  = &Error{Code: CodeValidation, Reason: ReasonInvalidToken}
	ErrWrongStatus   = &Error{Code: CodeIllegalState, Reason: ReasonWrongStatus}
)
