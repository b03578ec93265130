package config

import "errors"

var (
	// ErrMissingControllerAddr is returned when the controller address is not set
	ErrMissingControllerAddr = errors.New("controller address is required")

	// ErrInvalidTimeout is returned when the timeout is invalid
	ErrInvalidTimeout = errors.New("timeout must be greater than 0")

	// ErrInvalidMaxRetries is returned when max retries is invalid
	ErrInvalidMaxRetries = errors.New("max retries must be greater than or equal to 0")
)
