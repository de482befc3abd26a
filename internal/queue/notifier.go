package queue

import (
    "context"
    "errors"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/eventflow/internal/eventbus"
)

// Sender delivers a ticket message somewhere outside the process.
type Sender interface {
    Send(ctx context.Context, msg TicketMessage) error
}

// Notifier drains ticket payloads from the bus into a Sender. It pulls
// through its own subscription so a slow broker never blocks a booking.
type Notifier struct {
    bus    *eventbus.Bus
    sender Sender
    log    *zap.Logger
    buffer int
    now    func() time.Time
}

func NewNotifier(bus *eventbus.Bus, sender Sender, log *zap.Logger, buffer int) *Notifier {
    return &Notifier{bus: bus, sender: sender, log: log, buffer: buffer, now: time.Now}
}

// Run forwards payloads until ctx is done or the bus closes. Falling behind
// drops the backlog; the notifier then subscribes again.
func (n *Notifier) Run(ctx context.Context) error {
    triggers := []eventbus.Trigger{eventbus.TriggerTicketBooked, eventbus.TriggerTicketCancelled}
    for {
        var opts []eventbus.SubOption
        if n.buffer > 0 {
            opts = append(opts, eventbus.Buffer(n.buffer))
        }
        sub := n.bus.Listen(triggers, opts...)
        for p := range sub.All(ctx) {
            n.forward(ctx, p)
        }
        sub.Close()

        switch err := sub.Err(); {
        case ctx.Err() != nil:
            return nil
        case errors.Is(err, eventbus.ErrSlowSubscriber):
            n.log.Warn("notifier fell behind, ticket messages dropped")
        default:
            // bus closed
            return nil
        }
    }
}

func (n *Notifier) forward(ctx context.Context, p eventbus.Payload) {
    msg, ok := FromPayload(p, n.now())
    if !ok {
        return
    }
    sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := n.sender.Send(sendCtx, msg); err != nil {
        n.log.Warn("ticket message not published",
            zap.String("kind", msg.Kind), zap.String("ticket_id", msg.TicketID), zap.Error(err))
        return
    }
    n.log.Debug("ticket message published", zap.String("kind", msg.Kind), zap.String("ticket_id", msg.TicketID))
}
