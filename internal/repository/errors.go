// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios and map
// them to HTTP status codes: ErrConflict signals that a conditional
// write lost a race or that conflicting state already exists (409),
// ErrInvalidTransition signals a state-machine violation (409), and the
// not-found sentinels map to 404.
package repository

import "errors"

// ErrConflict is returned when a conditional update finds the row in a
// different state than the caller last observed, for example when two
// admins race to claim the same pending queue entry, or when a customer
// already has an active queue entry at enqueue time. Callers should
// re-read current state before retrying. Handlers translate this into
// an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrInvalidTransition is returned when a requested status change is not
// permitted by the provisioning state machine (e.g. completed back to
// pending). The stored entry is never mutated in this case. Handlers
// translate this into an HTTP 409 response.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrCustomerNotFound is returned when a referenced customer does not
// exist. Handlers translate this into an HTTP 404 response.
var ErrCustomerNotFound = errors.New("customer not found")

// ErrQueueEntryNotFound is returned when a referenced queue entry does
// not exist. Handlers translate this into an HTTP 404 response.
var ErrQueueEntryNotFound = errors.New("queue entry not found")

// ErrAdminNotFound is returned when a referenced admin user does not
// exist or is inactive. Handlers translate this into an HTTP 404 response.
var ErrAdminNotFound = errors.New("admin user not found")

// ErrBackendNotFound is returned when no customer_backends row exists
// for the requested queue entry.
var ErrBackendNotFound = errors.New("customer backend not found")
