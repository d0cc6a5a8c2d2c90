package model

import "errors"

// Callers match these with errors.Is; operations wrap them with detail.
var (
	ErrNotFound            = errors.New("not found")
	ErrMismatch            = errors.New("time slot does not belong to this clinic")
	ErrConflict            = errors.New("time slot is no longer available")
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
