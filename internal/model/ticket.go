package model

import "time"

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketConfirmed TicketStatus = "CONFIRMED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketRefunded  TicketStatus = "REFUNDED"
)

// ticketTransitions lists the moves the booking core may make. The empty
// status stands for "no row yet". REFUNDED has no outgoing edges.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	"":              {TicketConfirmed},
	TicketConfirmed: {TicketCancelled},
	TicketCancelled: {TicketConfirmed},
}

// CanTransitionTo reports whether a ticket in status s may move to next.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, to := range ticketTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Ticket is a user's seat at an event. There is at most one ticket per
// (UserID, EventID); re-booking after a cancellation reuses the row.
//
// User and Event are populated when the ticket is returned from the
// booking engine or pushed to subscribers.
type Ticket struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	EventID   string       `json:"eventId"`
	Type      *string      `json:"type"`
	Status    TicketStatus `json:"status"`
	User      *User        `json:"user,omitempty"`
	Event     *Event       `json:"event,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
