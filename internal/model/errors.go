// Package model holds the domain types of the ticketing service. This file
// defines the business error kinds shared by the booking core, the catalog
// and the HTTP layer. They are sentinel values: wrap them with fmt.Errorf("...: %w")
// to add context and test them with errors.Is. None of them is retried by
// the core.
package model

import "errors"

var (
	// ErrNotFound is returned when an event, ticket or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPastEvent rejects a booking for an event that already started.
	ErrPastEvent = errors.New("cannot book tickets for past events")

	// ErrEventStarted rejects a cancellation once the event has started.
	ErrEventStarted = errors.New("cannot cancel tickets for events that have already started")

	// ErrAlreadyBooked is returned when the user already holds a
	// confirmed ticket for the event.
	ErrAlreadyBooked = errors.New("you already have a ticket for this event")

	// ErrSoldOut is returned when every seat is taken.
	ErrSoldOut = errors.New("event is sold out")

	// ErrNotConfirmed is returned when cancelling a ticket that is not
	// CONFIRMED.
	ErrNotConfirmed = errors.New("ticket is not confirmed")

	// ErrForbidden is returned when the actor may not touch the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCapacity rejects a capacity that is not strictly positive.
	ErrInvalidCapacity = errors.New("capacity must be greater than 0")

	// ErrUnauthenticated is returned when an operation requires an actor.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrInvalidTimeWindow rejects events whose end is not after start.
	ErrInvalidTimeWindow = errors.New("end date must be after start date")

	// ErrInvalidTransition is returned when a ticket cannot move to the
	// requested status, e.g. re-booking a REFUNDED ticket.
	ErrInvalidTransition = errors.New("invalid ticket status transition")

	// ErrInvalidInput covers malformed identifiers and payloads.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmailTaken is returned on registration with a known email.
	ErrEmailTaken = errors.New("user with this email already exists")

	// ErrInvalidCredentials is returned for a bad email/password pair or a
	// bad refresh token.
	ErrInvalidCredentials = errors.New("invalid email or password")
)
