package queue

import (
    "fmt"
    "os"
    "path/filepath"
    "sync"
)

// AuditLog appends one human-readable line per ticket message to
// <dir>/tickets.log.
type AuditLog struct {
    dir string
    mu  sync.Mutex
}

func NewAuditLog(dir string) *AuditLog { return &AuditLog{dir: dir} }

// Path is the file the log writes to.
func (a *AuditLog) Path() string { return filepath.Join(a.dir, "tickets.log") }

func (a *AuditLog) Append(msg TicketMessage) error {
    if msg.Kind == "" || msg.TicketID == "" {
        return fmt.Errorf("incomplete message %q", msg.NotificationID)
    }
    a.mu.Lock()
    defer a.mu.Unlock()

    if err := os.MkdirAll(a.dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", a.dir, err)
    }
    f, err := os.OpenFile(a.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open audit log: %w", err)
    }
    defer f.Close()

    ticketType := "-"
    if msg.Type != nil {
        ticketType = *msg.Type
    }
    line := fmt.Sprintf("[%s] %s | ticket_id=%s | status=%s | type=%s | user_id=%s | email=%q | event_id=%s | event=%q | starts_at=%s\n",
        msg.OccurredAt, msg.Kind, msg.TicketID, msg.Status, ticketType, msg.UserID, msg.UserEmail, msg.EventID, msg.EventTitle, msg.StartsAt)
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write audit log: %w", err)
    }
    return nil
}
