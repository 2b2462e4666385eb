package services

import (
	"errors"

	"github.com/jakechorley/volunteer-portal/pkg/core/viewstate"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// GenericFailure is shown when an error carries no message of its own
const GenericFailure = "Something went wrong. Please try again."

// ErrValidation is returned by form actions whose input failed validation.
// The field errors are carried on the result, not the error.
var ErrValidation = errors.New("validation failed")

var (
	// ErrActivityFull is returned when a join finds no spots left
	ErrActivityFull = errors.New("activity is full")
	// ErrNotActive is returned when cancelling an assignment that is not active
	ErrNotActive = errors.New("assignment is not active")
)

// DescribeError picks the notification text for a failed action. Backend
// messages are shown verbatim; known failures get a fixed message; anything
// else falls back to fallback, or the generic message when fallback is empty.
func DescribeError(err error, fallback string) string {
	var remote *db.RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}

	switch {
	case errors.Is(err, viewstate.ErrMutationInFlight):
		return "This change is already in progress."
	case errors.Is(err, db.ErrDuplicateAssignment):
		return "You have already joined this activity."
	case errors.Is(err, ErrActivityFull):
		return "This activity is full."
	case errors.Is(err, ErrNotActive):
		return "Only active assignments can be cancelled."
	case errors.Is(err, db.ErrActivityNotFound):
		return "This activity is no longer available."
	case errors.Is(err, db.ErrInvalidCredentials):
		return "Invalid login credentials"
	case errors.Is(err, db.ErrEmailTaken):
		return "User already registered"
	case errors.Is(err, db.ErrUnauthenticated):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, db.ErrNotFound):
		return "The requested record could not be found."
	}

	if fallback != "" {
		return fallback
	}
	return GenericFailure
}
