package triage

import "errors"

// ErrInvalidInput is returned when a report or generator input is malformed.
// Callers must surface it synchronously; it is never silently defaulted.
var ErrInvalidInput = errors.New("triage: invalid input")
