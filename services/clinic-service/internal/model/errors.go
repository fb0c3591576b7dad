package model

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindInvalidReference
	KindSlotConflict
	KindDuplicatePatient
	KindInvalidToken
	KindCancellationTooLate
	KindNotFound
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidReference:
		return "invalid_reference"
	case KindSlotConflict:
		return "slot_conflict"
	case KindDuplicatePatient:
		return "duplicate_patient"
	case KindInvalidToken:
		return "invalid_token"
	case KindCancellationTooLate:
		return "cancellation_too_late"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is the typed failure surfaced by the clinic core. Code is a stable
// machine-readable reason within Kind; Message is safe to show to clients.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrSlotConflict)
// holds for every slot conflict regardless of code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation          = &Error{Kind: KindValidation, Code: "invalid_input", Message: "invalid input"}
	ErrInvalidReference    = &Error{Kind: KindInvalidReference, Code: "invalid_reference", Message: "unknown reference"}
	ErrSlotConflict        = &Error{Kind: KindSlotConflict, Code: "slot_conflict", Message: "slot is no longer available"}
	ErrDuplicatePatient    = &Error{Kind: KindDuplicatePatient, Code: "duplicate_patient", Message: "patient already exists"}
	ErrInvalidToken        = &Error{Kind: KindInvalidToken, Code: "token_invalid", Message: "cancellation token is invalid"}
	ErrCancellationTooLate = &Error{Kind: KindCancellationTooLate, Code: "cancellation_too_late", Message: "cancellation window has closed"}
	ErrNotFound            = &Error{Kind: KindNotFound, Code: "not_found", Message: "not found"}
	ErrConflict            = &Error{Kind: KindConflict, Code: "conflict", Message: "conflicts with existing data"}
)

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func InvalidReference(kind ReferenceKind, id int64) *Error {
	return &Error{Kind: KindInvalidReference, Code: "invalid_" + string(kind), Message: fmt.Sprintf("unknown %s id %d", kind, id)}
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: entity + "_not_found", Message: entity + " not found"}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func SlotConflict(code, message string) *Error {
	return &Error{Kind: KindSlotConflict, Code: code, Message: message}
}

func DuplicatePatient(field string) *Error {
	return &Error{Kind: KindDuplicatePatient, Code: "duplicate_" + field, Message: "a patient with this " + field + " already exists"}
}

func InvalidToken(code, message string) *Error {
	return &Error{Kind: KindInvalidToken, Code: code, Message: message}
}

// KindOf reports the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
