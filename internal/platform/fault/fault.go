// Package fault holds the error taxonomy shared by the coordination
// components. Components wrap these sentinels with fmt.Errorf("...: %w") and
// callers match them with errors.Is.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound marks an operation on an unknown room or queue item.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable marks a failed round-trip to the shared store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUnreachable marks a transport failure towards a specific address.
	ErrUnreachable = errors.New("unreachable")
	// ErrInvalid marks a request rejected before touching the store.
	ErrInvalid = errors.New("invalid request")
)

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code used by the command API.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "invalid":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "unreachable":
		return http.StatusBadGateway
	case "store_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Invalidf builds an ErrInvalid whose message is formatted like fmt.Sprintf.
func Invalidf(format string, args ...interface{}) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

type invalidError struct{ msg string }

func (e *invalidError) Error() string { return e.msg }
func (e *invalidError) Unwrap() error { return ErrInvalid }
