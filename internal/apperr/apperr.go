package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure by who is at fault and how it should be surfaced.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUpstream
	KindStorage
)

// Sentinels for errors.Is checks against a Kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrUpstream   = errors.New("upstream service failed")
	ErrStorage    = errors.New("storage failed")
)

// Error carries a Kind, a message safe to show API consumers and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrStorage:
		return e.Kind == KindStorage
	}
	return false
}

// Validation reports bad caller input.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Upstream reports a failed or unusable response from the text-generation service.
func Upstream(err error, message string) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// Storage reports a failed persistence operation.
func Storage(err error, message string) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

// StatusCode maps err onto the HTTP status the API should answer with.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind == KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the consumer-facing text for err.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
