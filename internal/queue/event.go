// Package queue forwards ticket activity to RabbitMQ and consumes it back
// into an append-only audit log.
package queue

import (
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/eventflow/internal/eventbus"
    "github.com/iliyamo/eventflow/internal/model"
)

// Routing keys on the ticket exchange.
const (
    KeyTicketBooked    = "ticket.booked"
    KeyTicketCancelled = "ticket.cancelled"
)

// TicketMessage is published for every booking and cancellation. It
// carries enough for downstream consumers to log, notify, or trigger
// analytics without querying the primary database.
type TicketMessage struct {
    NotificationID string  `json:"notification_id"`
    Kind           string  `json:"kind"`
    TicketID       string  `json:"ticket_id"`
    Status         string  `json:"status"`
    Type           *string `json:"type,omitempty"`
    UserID         string  `json:"user_id"`
    UserEmail      string  `json:"user_email,omitempty"`
    EventID        string  `json:"event_id"`
    EventTitle     string  `json:"event_title,omitempty"`
    StartsAt       string  `json:"starts_at,omitempty"`
    OccurredAt     string  `json:"occurred_at"`
}

// FromPayload converts a ticket payload into its message. Payloads of other
// triggers are reported with ok == false.
func FromPayload(p eventbus.Payload, now time.Time) (msg TicketMessage, ok bool) {
    var t model.Ticket
    switch v := p.(type) {
    case eventbus.TicketBooked:
        t, msg.Kind = v.Ticket, KeyTicketBooked
    case eventbus.TicketCancelled:
        t, msg.Kind = v.Ticket, KeyTicketCancelled
    default:
        return TicketMessage{}, false
    }
    msg.NotificationID = uuid.NewString()
    msg.TicketID = t.ID
    msg.Status = string(t.Status)
    msg.Type = t.Type
    msg.UserID = t.UserID
    msg.EventID = p.EventID()
    msg.OccurredAt = now.UTC().Format(time.RFC3339)
    if t.User != nil {
        msg.UserEmail = t.User.Email
    }
    if t.Event != nil {
        msg.EventTitle = t.Event.Title
        msg.StartsAt = t.Event.StartAt.UTC().Format(time.RFC3339)
    }
    return msg, true
}
