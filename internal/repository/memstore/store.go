// Package memstore is an in-process repository.Store. Transactions are
// serialised by a single mutex and run against a private copy of the data
// that replaces the live state only on commit, so a failed transaction
// leaves nothing behind. It backs DB_DRIVER=memory and the test suites.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository"
)

type token struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

type state struct {
	users   map[string]model.User
	events  map[string]model.Event
	tickets map[string]model.Ticket
	byPair  map[string]string // user_id:event_id -> ticket id
	tokens  map[string]token  // token hash -> token
}

func newState() *state {
	return &state{
		users:   make(map[string]model.User),
		events:  make(map[string]model.Event),
		tickets: make(map[string]model.Ticket),
		byPair:  make(map[string]string),
		tokens:  make(map[string]token),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, u := range s.users {
		u.Roles = slices.Clone(u.Roles)
		c.users[k] = u
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.byPair {
		c.byPair[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

func pair(userID, eventID string) string { return userID + ":" + eventID }

// Store is a repository.Store kept in memory.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// RunInTx runs fn against a copy of the data while holding the store lock
// and publishes the copy if fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Users() repository.UserRepository     { return &userRepo{s} }
func (s *Store) Events() repository.EventRepository   { return &eventRepo{s} }
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{s} }
func (s *Store) Tokens() repository.TokenRepository   { return &tokenRepo{s} }

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// ---- reads shared by the repositories and the transaction ----

func (s *state) confirmed(eventID string) int {
	n := 0
	for _, t := range s.tickets {
		if t.EventID == eventID && t.Status == model.TicketConfirmed {
			n++
		}
	}
	return n
}

func (s *state) user(id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.Roles = slices.Clone(u.Roles)
	return &u, nil
}

// event returns a copy of the event with Booked and Organizer filled in.
func (s *state) event(id string) (*model.Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.Booked = s.confirmed(id)
	if org, err := s.user(e.OrganizerID); err == nil {
		e.Organizer = org
	}
	return &e, nil
}

// ---- transaction ----

type memTx struct {
	st  *state
	now func() time.Time
}

var _ repository.Tx = (*memTx)(nil)

func (t *memTx) LockEvent(_ context.Context, eventID string) (*model.Event, error) {
	e, err := t.st.event(eventID)
	if err != nil {
		return nil, err
	}
	e.Organizer = nil
	return e, nil
}

func (t *memTx) CountConfirmedTickets(_ context.Context, eventID string) (int, error) {
	return t.st.confirmed(eventID), nil
}

func (t *memTx) FindTicket(_ context.Context, userID, eventID string) (*model.Ticket, error) {
	id, ok := t.st.byPair[pair(userID, eventID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	tk := t.st.tickets[id]
	return &tk, nil
}

func (t *memTx) FindTicketByID(_ context.Context, ticketID string) (*model.Ticket, error) {
	tk, ok := t.st.tickets[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tk, nil
}

func (t *memTx) UpsertTicket(ctx context.Context, in repository.TicketUpsert) (*model.Ticket, error) {
	now := t.now()
	if id, ok := t.st.byPair[pair(in.UserID, in.EventID)]; ok {
		tk := t.st.tickets[id]
		if tk.Status == model.TicketCancelled {
			tk.Status = model.TicketConfirmed
			tk.Type = in.Type
			tk.UpdatedAt = now
			t.st.tickets[id] = tk
		}
		return &tk, nil
	}
	if _, ok := t.st.users[in.UserID]; !ok {
		return nil, repository.ErrNotFound
	}
	if _, ok := t.st.events[in.EventID]; !ok {
		return nil, repository.ErrNotFound
	}
	tk := model.Ticket{
		ID:        in.NewID,
		UserID:    in.UserID,
		EventID:   in.EventID,
		Type:      in.Type,
		Status:    model.TicketConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.st.tickets[tk.ID] = tk
	t.st.byPair[pair(in.UserID, in.EventID)] = tk.ID
	return &tk, nil
}

func (t *memTx) UpdateTicketStatus(_ context.Context, ticketID string, from, to model.TicketStatus) (*model.Ticket, error) {
	tk, ok := t.st.tickets[ticketID]
	if !ok || tk.Status != from {
		return nil, repository.ErrNotFound
	}
	tk.Status = to
	tk.UpdatedAt = t.now()
	t.st.tickets[ticketID] = tk
	return &tk, nil
}

func (t *memTx) GetUser(_ context.Context, userID string) (*model.User, error) {
	return t.st.user(userID)
}

func (t *memTx) UpdateEvent(_ context.Context, e *model.Event) error {
	cur, ok := t.st.events[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	e.UpdatedAt = t.now()
	cur.Title = e.Title
	cur.Description = e.Description
	cur.Location = e.Location
	cur.StartAt = e.StartAt
	cur.EndAt = e.EndAt
	cur.Capacity = e.Capacity
	cur.UpdatedAt = e.UpdatedAt
	t.st.events[e.ID] = cur
	return nil
}

// ---- users ----

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, other := range r.s.st.users {
		if other.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := r.s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	stored := *u
	stored.Roles = slices.Clone(u.Roles)
	r.s.st.users[u.ID] = stored
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.st.user(id)
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for id, u := range r.s.st.users {
		if u.Email == email {
			return r.s.st.user(id)
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) List(_ context.Context) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := make([]model.User, 0, len(r.s.st.users))
	for id := range r.s.st.users {
		u, _ := r.s.st.user(id)
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (r *userRepo) UpdateRoles(_ context.Context, id string, roles []model.Role) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.Roles = slices.Clone(roles)
	u.UpdatedAt = r.s.now()
	r.s.st.users[id] = u
	return r.s.st.user(id)
}

// Delete removes the user with the same cascade the SQL schema declares.
func (r *userRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.users[id]; !ok {
		return repository.ErrNotFound
	}
	for eid, e := range st.events {
		if e.OrganizerID == id {
			st.deleteEvent(eid)
		}
	}
	for tid, t := range st.tickets {
		if t.UserID == id {
			delete(st.tickets, tid)
			delete(st.byPair, pair(t.UserID, t.EventID))
		}
	}
	for h, tok := range st.tokens {
		if tok.userID == id {
			delete(st.tokens, h)
		}
	}
	delete(st.users, id)
	return nil
}

// ---- events ----

type eventRepo struct{ s *Store }

func (s *state) deleteEvent(id string) {
	for tid, t := range s.tickets {
		if t.EventID == id {
			delete(s.tickets, tid)
			delete(s.byPair, pair(t.UserID, t.EventID))
		}
	}
	delete(s.events, id)
}

func (r *eventRepo) Create(_ context.Context, e *model.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.users[e.OrganizerID]; !ok {
		return repository.ErrNotFound
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := r.s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	stored := *e
	stored.Organizer, stored.Booked = nil, 0
	r.s.st.events[e.ID] = stored
	return nil
}

func (r *eventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.st.event(id)
}

func matches(e model.Event, f model.EventFilter) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		desc, loc := "", ""
		if e.Description != nil {
			desc = *e.Description
		}
		if e.Location != nil {
			loc = *e.Location
		}
		if !strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(desc), q) &&
			!strings.Contains(strings.ToLower(loc), q) {
			return false
		}
	}
	if l := strings.ToLower(strings.TrimSpace(f.Location)); l != "" {
		if e.Location == nil || !strings.Contains(strings.ToLower(*e.Location), l) {
			return false
		}
	}
	if f.StartDate != nil && e.StartAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.EndAt.After(*f.EndDate) {
		return false
	}
	if f.OrganizerID != "" && e.OrganizerID != f.OrganizerID {
		return false
	}
	return true
}

func (s *state) filtered(f model.EventFilter) []model.Event {
	var out []model.Event
	for id, e := range s.events {
		if matches(e, f) {
			full, _ := s.event(id)
			out = append(out, *full)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

func before(a, b model.Event) bool {
	if !a.StartAt.Equal(b.StartAt) {
		return a.StartAt.Before(b.StartAt)
	}
	return a.ID < b.ID
}

func (r *eventRepo) List(_ context.Context, f model.EventFilter, p model.Page) ([]model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.s.st.filtered(f)
	if p.After != "" {
		cursor, ok := r.s.st.events[p.After]
		if !ok {
			return []model.Event{}, nil
		}
		i := sort.Search(len(all), func(i int) bool { return before(cursor, all[i]) })
		all = all[i:]
	}
	if p.First >= 0 && len(all) > p.First {
		all = all[:p.First]
	}
	return append([]model.Event{}, all...), nil
}

func (r *eventRepo) Count(_ context.Context, f model.EventFilter) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.st.events {
		if matches(e, f) {
			n++
		}
	}
	return n, nil
}

func (r *eventRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.events[id]; !ok {
		return repository.ErrNotFound
	}
	r.s.st.deleteEvent(id)
	return nil
}

// ---- tickets ----

type ticketRepo struct{ s *Store }

func (r *ticketRepo) ListByUser(_ context.Context, userID string) ([]model.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tickets := []model.Ticket{}
	for _, t := range r.s.st.tickets {
		if t.UserID != userID {
			continue
		}
		if e, ok := r.s.st.events[t.EventID]; ok {
			t.Event = &e
		}
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
		}
		return tickets[i].ID < tickets[j].ID
	})
	return tickets, nil
}

func (r *ticketRepo) ListAttendees(_ context.Context, eventID string) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var held []model.Ticket
	for _, t := range r.s.st.tickets {
		if t.EventID == eventID && t.Status == model.TicketConfirmed {
			held = append(held, t)
		}
	}
	sort.Slice(held, func(i, j int) bool {
		if !held[i].CreatedAt.Equal(held[j].CreatedAt) {
			return held[i].CreatedAt.Before(held[j].CreatedAt)
		}
		return held[i].UserID < held[j].UserID
	})
	users := []model.User{}
	for _, t := range held {
		if u, err := r.s.st.user(t.UserID); err == nil {
			users = append(users, *u)
		}
	}
	return users, nil
}

// ---- refresh tokens ----

type tokenRepo struct{ s *Store }

func (r *tokenRepo) StoreRefresh(_ context.Context, userID, tokenHash string, exp time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.tokens[tokenHash]; ok {
		return repository.ErrDuplicate
	}
	r.s.st.tokens[tokenHash] = token{userID: userID, expiresAt: exp}
	return nil
}

func (r *tokenRepo) ValidateRefresh(_ context.Context, tokenHash string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tok, ok := r.s.st.tokens[tokenHash]
	if !ok || tok.revoked || r.s.now().After(tok.expiresAt) {
		return "", repository.ErrNotFound
	}
	return tok.userID, nil
}

func (r *tokenRepo) RevokeByHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tok, ok := r.s.st.tokens[tokenHash]; ok {
		tok.revoked = true
		r.s.st.tokens[tokenHash] = tok
	}
	return nil
}

func (r *tokenRepo) RevokeAllForUser(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h, tok := range r.s.st.tokens {
		if tok.userID == userID {
			tok.revoked = true
			r.s.st.tokens[h] = tok
		}
	}
	return nil
}
