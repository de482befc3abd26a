// Package repository defines the persistence gateway used by the booking
// core and the HTTP layer, together with the error values every
// implementation reports. Higher layers translate these into business
// errors; only ErrSerialization is ever retried.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a write violates a unique constraint
// (e.g. registering an email twice).
var ErrDuplicate = errors.New("duplicate record")

// ErrSerialization is returned when the database aborted a transaction
// because of a concurrent one (serialization failure, deadlock, lock wait
// timeout). The whole transaction body may be re-run.
var ErrSerialization = errors.New("transaction conflict")
