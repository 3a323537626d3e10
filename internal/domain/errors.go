// Package domain defines the tracking model and the ports the services depend on.
package domain

import "errors"

var (
	// ErrFetchFailed marks a store or service query that could not be completed.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrAuthorizationDenied is returned when the health data service refuses access.
	ErrAuthorizationDenied = errors.New("health data authorization denied")
	// ErrTrackingDisabled is returned when a fix arrives while tracking is switched off.
	ErrTrackingDisabled = errors.New("tracking is disabled")
	// ErrFixRejected is returned when a fix does not pass the capture configuration.
	ErrFixRejected = errors.New("location fix rejected")
	// ErrInvalidSettings wraps validation failures for capture configuration.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrInvalidSample wraps validation failures for incoming samples.
	ErrInvalidSample = errors.New("invalid sample")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)
