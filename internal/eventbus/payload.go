package eventbus

import "github.com/iliyamo/eventflow/internal/model"

// Trigger names a channel on the bus. Each trigger carries exactly one
// payload type.
type Trigger string

const (
	TriggerTicketBooked    Trigger = "TICKET_BOOKED"
	TriggerCapacityChanged Trigger = "EVENT_CAPACITY_CHANGED"
	TriggerTicketCancelled Trigger = "TICKET_CANCELLED"
)

// Payload is the closed set of values that travel on the bus. The
// unexported method keeps other packages from adding variants, so a type
// switch over TicketBooked, CapacityChanged and TicketCancelled is
// exhaustive.
type Payload interface {
	Trigger() Trigger
	// EventID is the event the payload is about; subscription filters
	// match on it.
	EventID() string
	payload()
}

// TicketBooked is published after a booking commits. Ticket carries the
// nested User and Event.
type TicketBooked struct {
	Ticket model.Ticket
}

func (TicketBooked) Trigger() Trigger { return TriggerTicketBooked }
func (TicketBooked) payload()         {}

// EventID prefers the nested event and falls back to the foreign key.
func (p TicketBooked) EventID() string { return ticketEventID(p.Ticket) }

// CapacityChanged is published whenever the occupancy or the capacity of
// an event changes.
type CapacityChanged struct {
	Info model.CapacityInfo
}

func (CapacityChanged) Trigger() Trigger  { return TriggerCapacityChanged }
func (CapacityChanged) payload()          {}
func (p CapacityChanged) EventID() string { return p.Info.EventID }

// TicketCancelled is published after a cancellation commits.
type TicketCancelled struct {
	Ticket model.Ticket
}

func (TicketCancelled) Trigger() Trigger  { return TriggerTicketCancelled }
func (TicketCancelled) payload()          {}
func (p TicketCancelled) EventID() string { return ticketEventID(p.Ticket) }

func ticketEventID(t model.Ticket) string {
	if t.Event != nil && t.Event.ID != "" {
		return t.Event.ID
	}
	return t.EventID
}
