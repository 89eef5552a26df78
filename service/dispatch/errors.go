package dispatch

import "errors"

var (
	// ErrNotFound is returned when the referenced package does not exist.
	ErrNotFound = errors.New("dispatch: package not found")

	// ErrChecksumMismatch means the fetched package no longer matches its
	// recorded content hash. Fatal for that fetch, never retried.
	ErrChecksumMismatch = errors.New("dispatch: package checksum mismatch")

	// ErrSignatureInvalid means the package signature did not verify.
	ErrSignatureInvalid = errors.New("dispatch: package signature verification failed")

	// ErrNotDispatchable is returned when the queue push and the device
	// notification both failed; the package is marked failed rather than
	// left invisible in the datastore.
	ErrNotDispatchable = errors.New("dispatch: package could neither be queued nor announced")

	// ErrTerminalStatus is returned when a device report arrives for a
	// package whose status is already terminal. The record never changes
	// once it reaches completed, failed or cancelled.
	ErrTerminalStatus = errors.New("dispatch: package already reached a terminal status")
)
