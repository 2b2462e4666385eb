package db

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrUnauthenticated     = errors.New("not signed in")
	ErrInvalidCredentials  = errors.New("invalid login credentials")
	ErrDuplicateAssignment = errors.New("you have already joined this activity")
	ErrActivityNotFound    = errors.New("activity not found")
	ErrEmailTaken          = errors.New("user already registered")
)

// RemoteError is an error reported by the managed backend, carrying its own message
type RemoteError struct {
	Status  int
	Code    string
	Message string
	// Kind is one of the sentinel errors above when the backend error maps onto one
	Kind error
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Kind
}
