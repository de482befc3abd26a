package model

import "time"

// Event is a bookable event published by an organizer. The window
// [StartAt, EndAt) must be non-empty and Capacity strictly positive.
//
// Booked is not a column: repositories fill it with the number of
// CONFIRMED tickets at read time. Capacity may be lowered below Booked by
// an update, in which case Remaining goes negative and stays that way.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Location    *string   `json:"location,omitempty"`
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	Capacity    int       `json:"capacity"`
	OrganizerID string    `json:"organizerId"`
	Organizer   *User     `json:"organizer,omitempty"`
	Booked      int       `json:"booked"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Remaining returns the number of seats left, unclamped.
func (e *Event) Remaining() int { return e.Capacity - e.Booked }

// StartedAt reports whether the event has already started at now.
func (e *Event) StartedAt(now time.Time) bool { return e.StartAt.Before(now) }

// CapacityInfo is the occupancy snapshot pushed to capacity subscribers.
type CapacityInfo struct {
	EventID   string `json:"eventId"`
	Capacity  int    `json:"capacity"`
	Remaining int    `json:"remaining"`
	Booked    int    `json:"booked"`
}

// Occupancy builds the capacity snapshot for an event holding booked
// confirmed tickets.
func Occupancy(eventID string, capacity, booked int) CapacityInfo {
	return CapacityInfo{
		EventID:   eventID,
		Capacity:  capacity,
		Remaining: capacity - booked,
		Booked:    booked,
	}
}

// EventFilter narrows event listings. Zero fields are ignored.
type EventFilter struct {
	Search      string
	Location    string
	StartDate   *time.Time
	EndDate     *time.Time
	OrganizerID string
}

// Page is a forward cursor window. After is the id of the last event of
// the previous page.
type Page struct {
	First int
	After string
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize clamps First into [1, MaxPageSize].
func (p Page) Normalize() Page {
	if p.First <= 0 {
		p.First = DefaultPageSize
	}
	if p.First > MaxPageSize {
		p.First = MaxPageSize
	}
	return p
}

// EventEdge pairs an event with its cursor.
type EventEdge struct {
	Node   Event  `json:"node"`
	Cursor string `json:"cursor"`
}

// PageInfo describes the position of a page in the full listing.
type PageInfo struct {
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
}

// EventConnection is one page of a filtered event listing.
type EventConnection struct {
	Edges      []EventEdge `json:"edges"`
	PageInfo   PageInfo    `json:"pageInfo"`
	TotalCount int         `json:"totalCount"`
}
