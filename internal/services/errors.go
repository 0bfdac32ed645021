package services

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed reservation or cancellation
type ErrorCode string

const (
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeInvalidRequest       ErrorCode = "INVALID_REQUEST"
	CodeInvalidSeat          ErrorCode = "INVALID_SEAT"
	CodePastDate             ErrorCode = "PAST_DATE"
	CodeInsufficientCapacity ErrorCode = "INSUFFICIENT_CAPACITY"
	CodeSeatConflict         ErrorCode = "SEAT_CONFLICT"
	CodeConflict             ErrorCode = "CONFLICT"
	CodeForbidden            ErrorCode = "FORBIDDEN"
	CodeAlreadyCancelled     ErrorCode = "ALREADY_CANCELLED"
	CodeTooLateToCancel      ErrorCode = "TOO_LATE_TO_CANCEL"
)

// ReservationError is returned by ReservationService for every expected
// failure. Seats lists the offending seat numbers for INVALID_SEAT and
// SEAT_CONFLICT; Remaining carries the free seat count for INSUFFICIENT_CAPACITY.
type ReservationError struct {
	Code      ErrorCode
	Message   string
	Seats     []int
	Remaining int
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets errors.Is match on the code alone, e.g. errors.Is(err, ErrSeatConflict)
func (e *ReservationError) Is(target error) bool {
	var t *ReservationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons
var (
	ErrNotFound             = &ReservationError{Code: CodeNotFound}
	ErrInvalidRequest       = &ReservationError{Code: CodeInvalidRequest}
	ErrInvalidSeat          = &ReservationError{Code: CodeInvalidSeat}
	ErrPastDate             = &ReservationError{Code: CodePastDate}
	ErrInsufficientCapacity = &ReservationError{Code: CodeInsufficientCapacity}
	ErrSeatConflict         = &ReservationError{Code: CodeSeatConflict}
	ErrConflict             = &ReservationError{Code: CodeConflict}
	ErrForbidden            = &ReservationError{Code: CodeForbidden}
	ErrAlreadyCancelled     = &ReservationError{Code: CodeAlreadyCancelled}
	ErrTooLateToCancel      = &ReservationError{Code: CodeTooLateToCancel}
)

func newReservationError(code ErrorCode, format string, args ...interface{}) *ReservationError {
	return &ReservationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsReservationError extracts a ReservationError from err
func AsReservationError(err error) (*ReservationError, bool) {
	var re *ReservationError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
