// Package apperr defines the service-wide error taxonomy. Every failure
// crossing a package boundary carries a Kind so that the HTTP layer can map
// it to a status without string matching, and so that authorization failures
// are never collapsed into not-found ones on the way up.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredential
	KindUnauthorized
	KindInvalidResource
	KindNotFound
	KindInferenceUnavailable
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredential:
		return "invalid_credential"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidResource:
		return "invalid_resource"
	case KindNotFound:
		return "not_found"
	case KindInferenceUnavailable:
		return "inference_unavailable"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match any *Error with the same Kind, so callers can
// compare against the package sentinels below without caring about Code.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && (other.Code == "" || other.Code == e.Code)
}

func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidCredential    = &Error{Kind: KindInvalidCredential}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrInvalidResource      = &Error{Kind: KindInvalidResource}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInferenceUnavailable = &Error{Kind: KindInferenceUnavailable}
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable}
)

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	return "server_error"
}
