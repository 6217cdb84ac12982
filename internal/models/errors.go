package models

import (
	"errors"
	"fmt"
)

// Rejection kinds. Every error returned by the transfer core wraps exactly
// one of these, so callers can branch with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLimitExceeded       = errors.New("limit exceeded")
	ErrAccountNotFound     = errors.New("account not found")
	ErrContention          = errors.New("account busy, retry")
	ErrStorage             = errors.New("storage fault")

	ErrUserExists           = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrIncorrectCredentials = errors.New("incorrect credentials")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Errorf returns an error of the given kind carrying a human-readable message.
func Errorf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Code maps an error to its stable machine-checkable reason.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrUserExists):
		return "user_exists"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrIncorrectCredentials):
		return "invalid_credentials"
	default:
		return "internal_error"
	}
}
