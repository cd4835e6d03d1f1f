package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedJob indicates a queue entry could not be decoded into a job.
	// Malformed jobs are unrecoverable and dropped without retry.
	ErrMalformedJob = errors.New("malformed job payload")

	// ErrSourceMissing indicates the job's source location could not be read.
	// This is fatal for the job and not retried.
	ErrSourceMissing = errors.New("source not found")

	// ErrInvalidProvider indicates an unknown embedding provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates an external capability could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
