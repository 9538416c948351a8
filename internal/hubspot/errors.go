package hubspot

import (
	"errors"
	"fmt"
)

var errMissingResults = errors.New("response has no results array")

// ResolutionError reports a failed owner lookup: transport failure, an
// unauthorized or rate-limited request, or a malformed response.
type ResolutionError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ResolutionError) Error() string {
	msg := "hubspot: " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
