package tmdb

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned for a 404 from the origin.
	ErrNotFound = errors.New("tmdb: not found")

	// ErrInvalidArgument is returned before any request for bad input.
	ErrInvalidArgument = errors.New("tmdb: invalid argument")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	// Message is TMDB's status_message, when the body carried one.
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("tmdb: %s: %d %s", e.Endpoint, e.StatusCode, msg)
}

// Is reports a 404 as ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}
