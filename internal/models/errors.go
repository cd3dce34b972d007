package models

import "errors"

var (
	// ErrAuthFailure means a bearer token could not be obtained. Retried next cycle.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrTransientNetwork means a single remote call failed. The step is skipped.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrConfigurationMissing means the user has not configured something yet.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrConflictingState means a payment was not pending when reconciled.
	ErrConflictingState = errors.New("conflicting state")
	// ErrIrrecoverableSetup means the merchant could not be resolved, so no payment can proceed.
	ErrIrrecoverableSetup = errors.New("irrecoverable setup error")
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput means the caller passed a value the store refuses.
	ErrInvalidInput = errors.New("invalid input")
)
