package model

import "errors"

// Error kinds shared by every package. Errors returned by jarvis wrap exactly one
// of these, so callers branch with errors.Is.
var (
	ErrValidation      = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrPersistence     = errors.New("persistence failure")
	ErrExternalService = errors.New("external service failure")
)
