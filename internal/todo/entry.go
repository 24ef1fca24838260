package todo

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// GuestUserID is the owner stamped on entries created without a session.
const GuestUserID = "guest"

const (
	MaxTitleLength       = 64
	MaxDescriptionLength = 2048

	// MaxDueDate is the latest representable date in milliseconds, 275760-09-13
	MaxDueDate int64 = 8_640_000_000_000_000
)

// Priority is the urgency of an entry
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Entry is a single to-do item. Timestamps are epoch milliseconds.
type Entry struct {
	ID          string   `json:"id"`
	UserID      string   `json:"userId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Completed   bool     `json:"completed"`
	CreatedAt   int64    `json:"createdAt"`
	DueDate     *int64   `json:"dueDate,omitempty"`
	Priority    Priority `json:"priority"`
}

// Draft holds the fields a caller supplies when creating an entry.
// The id and creation time are assigned by whoever stores it.
type Draft struct {
	UserID      string   `json:"userId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Completed   bool     `json:"completed,omitempty"`
	DueDate     *int64   `json:"dueDate,omitempty"`
	Priority    Priority `json:"priority"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Completed    *bool     `json:"completed,omitempty"`
	DueDate      *int64    `json:"dueDate,omitempty"`
	ClearDueDate bool      `json:"clearDueDate,omitempty"`
	Priority     *Priority `json:"priority,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.Priority == nil
}

// Apply returns a copy of e with the patch merged in. ID, UserID and CreatedAt never change.
func (e Entry) Apply(p Patch) Entry {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Completed != nil {
		e.Completed = *p.Completed
	}
	if p.Priority != nil {
		e.Priority = *p.Priority
	}
	if p.ClearDueDate {
		e.DueDate = nil
	} else if p.DueDate != nil {
		due := *p.DueDate
		e.DueDate = &due
	}
	return e
}

// Draft strips the fields the server owns (id, creation time) from e and stamps userID.
func (e Entry) Draft(userID string) Draft {
	d := Draft{
		UserID:      userID,
		Title:       e.Title,
		Description: e.Description,
		Completed:   e.Completed,
		Priority:    e.Priority,
	}
	if e.DueDate != nil {
		due := *e.DueDate
		d.DueDate = &due
	}
	return d
}

// NewGuestEntry builds a complete entry for the local cache from a draft
func NewGuestEntry(d Draft, now time.Time) (Entry, error) {
	e := Entry{
		ID:          uuid.NewString(),
		UserID:      GuestUserID,
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		CreatedAt:   now.UnixMilli(),
		DueDate:     d.DueDate,
		Priority:    d.Priority,
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// ResolveDueDate normalizes a raw due date. A missing or NaN value means "no due date".
// Fractions are truncated, except that a positive value below one millisecond
// becomes 1. Values outside the int64 range saturate, so validation rejects them.
func ResolveDueDate(raw *float64) *int64 {
	if raw == nil || math.IsNaN(*raw) {
		return nil
	}
	var due int64
	switch v := *raw; {
	case v >= math.MaxInt64:
		due = math.MaxInt64
	case v < math.MinInt64:
		due = math.MinInt64
	case v > 0 && v < 1:
		due = 1
	default:
		due = int64(v)
	}
	return &due
}

// Clone returns a deep copy of entries
func Clone(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if e.DueDate != nil {
			due := *e.DueDate
			e.DueDate = &due
		}
		out[i] = e
	}
	return out
}

// IndexOf returns the position of the entry with the given id, or -1
func IndexOf(entries []Entry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}
