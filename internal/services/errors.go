package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error kinds. Compare with errors.Is; the concrete *Error carries the
// user-facing message.
var (
	ErrNotFound           = errors.New("not found")
	ErrBusinessRule       = errors.New("business rule violation")
	ErrSelfDeletion       = errors.New("self deletion")
	ErrRoleNotFound       = errors.New("role not found")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("inactive user")
)

// Error is a classified failure with a message safe to show to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classified reports whether err belongs to the service error taxonomy,
// as opposed to an infrastructure failure.
func Classified(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// notFound converts gorm's missing-record error into ErrNotFound.
func notFound(err error, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(ErrNotFound, "%s %d not found.", entity, id)
	}
	return err
}
