package assistant

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable covers transport failures, timeouts and non-2xx
	// responses from the generative endpoint. Not retried here; a caller may
	// wrap the client with retry middleware.
	ErrModelUnavailable = errors.New("model endpoint unavailable")

	// ErrMalformedResponse means the endpoint answered but the expected
	// choices/message shape was absent.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrHumanizationFailed marks a second-stage model fault after a
	// successful execution.
	ErrHumanizationFailed = errors.New("humanization failed")
)

const parsePreviewLimit = 400

// ParseError reports that no structured translation could be extracted from
// the model's raw text. Preview carries a bounded slice of that text for the
// operational log; it is never included in the answer shown to the user.
type ParseError struct {
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse translation: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(raw string, err error) *ParseError {
	preview := raw
	if len(preview) > parsePreviewLimit {
		preview = preview[:parsePreviewLimit]
	}
	return &ParseError{Preview: preview, Err: err}
}
