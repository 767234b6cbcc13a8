package edit

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a suggestion or post id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a lifecycle operation is called on
	// a suggestion whose current status does not permit it.
	ErrInvalidState = errors.New("invalid suggestion state")

	// ErrSelfReview is returned when a reviewer tries to approve their
	// own suggestion.
	ErrSelfReview = errors.New("cannot approve own suggestion")
)

// Issue is one problem found while validating a submission.
type Issue struct {
	Msg string `json:"msg"`
}

// ValidationError carries every issue found in a draft so the client
// can fix them in a single pass.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Msg
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
