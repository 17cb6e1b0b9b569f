package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrHardware indicates a capture peripheral failed to initialize or respond
	ErrHardware = errors.New("hardware unavailable")

	// ErrShortWrite indicates fewer bytes reached storage than were produced
	ErrShortWrite = errors.New("short write")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
