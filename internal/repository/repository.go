package repository

import (
	"context"
	"time"

	"github.com/iliyamo/eventflow/internal/model"
)

// Store is the persistence gateway. RunInTx runs fn inside one database
// transaction, committing when fn returns nil and rolling back otherwise.
// Implementations translate driver-specific conflict errors into
// ErrSerialization so callers can re-run fn.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	Users() UserRepository
	Events() EventRepository
	Tickets() TicketRepository
	Tokens() TokenRepository

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transactional handle used by the booking engine. Reads made
// through LockEvent hold the event row until the transaction ends, which
// serialises every booking and cancellation of that event.
type Tx interface {
	// LockEvent loads the event and locks its row. The returned event has
	// Booked filled in.
	LockEvent(ctx context.Context, eventID string) (*model.Event, error)
	CountConfirmedTickets(ctx context.Context, eventID string) (int, error)
	// FindTicket returns the ticket of (userID, eventID) or ErrNotFound.
	FindTicket(ctx context.Context, userID, eventID string) (*model.Ticket, error)
	FindTicketByID(ctx context.Context, ticketID string) (*model.Ticket, error)
	// UpsertTicket creates the (UserID, EventID) row as CONFIRMED, or flips
	// an existing CANCELLED row to CONFIRMED, in one conditional write. A
	// row in any other status is left untouched; the returned ticket then
	// carries its unchanged status.
	UpsertTicket(ctx context.Context, in TicketUpsert) (*model.Ticket, error)
	// UpdateTicketStatus moves the ticket from one status to another. It
	// returns ErrNotFound when no row with ticketID is in status from.
	UpdateTicketStatus(ctx context.Context, ticketID string, from, to model.TicketStatus) (*model.Ticket, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
}

// TicketUpsert is the input of Tx.UpsertTicket. NewID is used only when a
// row is created.
type TicketUpsert struct {
	NewID   string
	UserID  string
	EventID string
	Type    *string
}

// UserRepository persists users.
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateRoles(ctx context.Context, id string, roles []model.Role) (*model.User, error)
	Delete(ctx context.Context, id string) error
}

// EventRepository persists events. Returned events carry Booked and
// Organizer.
type EventRepository interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context, f model.EventFilter, p model.Page) ([]model.Event, error)
	Count(ctx context.Context, f model.EventFilter) (int, error)
	Delete(ctx context.Context, id string) error
}

// TicketRepository answers read-only ticket queries outside the booking
// transaction.
type TicketRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.Ticket, error)
	ListAttendees(ctx context.Context, eventID string) ([]model.User, error)
}

// TokenRepository persists refresh-token hashes.
type TokenRepository interface {
	StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
	// ValidateRefresh returns the owner of a non-revoked, non-expired
	// token or ErrNotFound.
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}
