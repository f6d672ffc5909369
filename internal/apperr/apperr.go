// Package apperr defines the failure kinds surfaced by the playlist pipeline and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Kind string

const (
	ConstraintViolation    Kind = "constraint_violation"
	GenerationUnavailable  Kind = "generation_unavailable"
	ExcludedContentLeaked  Kind = "excluded_content_leaked"
	NoResolvableCandidates Kind = "no_resolvable_candidates"
	CatalogRateLimited     Kind = "catalog_rate_limited"
	MaterializationFailure Kind = "materialization_failure"

	InvalidInput Kind = "invalid_input"
	NotFound     Kind = "not_found"
	Duplicate    Kind = "duplicate"
	Unauthorized Kind = "unauthorized"
	Internal     Kind = "internal"
)

// Status maps a kind onto the HTTP status returned to callers.
func (k Kind) Status() int {
	switch k {
	case InvalidInput, ConstraintViolation, NoResolvableCandidates:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Duplicate:
		return http.StatusConflict
	case ExcludedContentLeaked:
		return http.StatusUnprocessableEntity
	case CatalogRateLimited:
		return http.StatusTooManyRequests
	case GenerationUnavailable, MaterializationFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	// Items lists the offending entities, e.g. leaked songs or unresolved titles.
	Items      []string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Items) > 0 {
		msg += ": " + strings.Join(e.Items, ", ")
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string, items ...string) *Error {
	return &Error{Kind: kind, Message: msg, Items: items}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// RetryAfter returns the largest retry hint found in the chain.
func RetryAfter(err error) time.Duration {
	var wait time.Duration
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		if e.RetryAfter > wait {
			wait = e.RetryAfter
		}
		err = e.Err
	}
	return wait
}
