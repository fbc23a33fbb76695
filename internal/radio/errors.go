package radio

import "errors"

var (
	// ErrNotFound is returned for an unknown brand, sequence or bitrate.
	ErrNotFound = errors.New("not found")

	// ErrSupply wraps failures to fetch, materialize or encode content.
	// The affected fragment is dropped and the station keeps running.
	ErrSupply = errors.New("supply failure")

	// ErrConfig is returned when stream or supplier settings are unusable.
	// A station with invalid settings is never started.
	ErrConfig = errors.New("invalid configuration")

	// ErrStopped is returned when work is submitted to a station after it was stopped.
	ErrStopped = errors.New("station stopped")
)
