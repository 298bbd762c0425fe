package apperrors

import "net/http"

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeIllegalState        Code = "ILLEGAL_STATE"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeSettlementFailure   Code = "SETTLEMENT_FAILURE"
	CodeInternal            Code = "INTERNAL"
)

const (
	ReasonRoomNotFound   = "ROOM_NOT_FOUND"
	ReasonPlayerNotFound = "PLAYER_NOT_FOUND"
	ReasonRoomFull       = "ROOM_FULL"
	ReasonAlreadyJoined  = "ALREADY_JOINED"
	ReasonNotAllReady    = "NOT_ALL_READY"
	ReasonNotYourTurn    = "NOT_YOUR_TURN"
	ReasonInvalidToken   = "INVALID_TOKEN"
	ReasonWrongStatus    = "WRONG_STATUS"
	ReasonRoomClosed     = "ROOM_CLOSED"
)

// HTTPStatus maps a code onto the status a REST transport should answer with.
// A pending settlement is accepted work, not a failure.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeIllegalState:
		return http.StatusConflict
	case CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case CodeSettlementFailure:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}
