package model

import "errors"

// Error taxonomy surfaced by the engine. Specific causes wrap one of these,
// so callers should compare with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrExpiredWindow     = errors.New("claim window expired")
	ErrNotYetNotified    = errors.New("not yet notified")
)
