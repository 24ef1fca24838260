// Package rpc is the entry operations surface: JSON procedures served under
// /rpc and a typed client for them.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/redmonkez12/todo-app/internal/todo"
)

const (
	ProcCreateTodo         = "todos.create"
	ProcReadTodos          = "todos.read"
	ProcUpdateTodo         = "todos.update"
	ProcDeleteTodo         = "todos.delete"
	ProcPopulateNewUser    = "user.populateNewUser"
	ProcDisableNewUserFlag = "user.disableNewUserFlag"
)

// EntryInput is an entry as submitted by a client. The due date may be any
// JSON number, or null/absent for no due date.
type EntryInput struct {
	UserID      string        `json:"userId"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Completed   bool          `json:"completed"`
	DueDate     *float64      `json:"dueDate,omitempty"`
	Priority    todo.Priority `json:"priority"`
}

func (in EntryInput) Draft() todo.Draft {
	return todo.Draft{
		UserID:      in.UserID,
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
		DueDate:     todo.ResolveDueDate(in.DueDate),
		Priority:    in.Priority,
	}
}

func inputFromDraft(d todo.Draft) EntryInput {
	in := EntryInput{
		UserID:      d.UserID,
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		Priority:    d.Priority,
	}
	if d.DueDate != nil {
		v := float64(*d.DueDate)
		in.DueDate = &v
	}
	return in
}

// ReadRequest reads one entry when ID is set, otherwise the user's whole list
type ReadRequest struct {
	UserID string `json:"userId"`
	ID     string `json:"id,omitempty"`
}

// UpdateRequest carries a partial update. For DueDate, absent leaves the due
// date alone and null clears it.
type UpdateRequest struct {
	ID          string          `json:"id"`
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Completed   *bool           `json:"completed,omitempty"`
	DueDate     json.RawMessage `json:"dueDate,omitempty"`
	Priority    *todo.Priority  `json:"priority,omitempty"`
}

// Patch converts the request into a todo.Patch
func (u UpdateRequest) Patch() (todo.Patch, error) {
	p := todo.Patch{
		Title:       u.Title,
		Description: u.Description,
		Completed:   u.Completed,
		Priority:    u.Priority,
	}

	raw := bytes.TrimSpace(u.DueDate)
	switch {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")):
		p.ClearDueDate = true
	default:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return todo.Patch{}, fmt.Errorf("%w: dueDate must be a number or null", todo.ErrValidation)
		}
		p.DueDate = todo.ResolveDueDate(&v)
	}
	return p, nil
}

func updateFromPatch(id string, p todo.Patch) UpdateRequest {
	u := UpdateRequest{
		ID:          id,
		Title:       p.Title,
		Description: p.Description,
		Completed:   p.Completed,
		Priority:    p.Priority,
	}
	switch {
	case p.ClearDueDate:
		u.DueDate = json.RawMessage("null")
	case p.DueDate != nil:
		u.DueDate = json.RawMessage(fmt.Sprintf("%d", *p.DueDate))
	}
	return u
}

type DeleteRequest struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// PopulateRequest carries a new account's guest entries. TodoEntries must be
// present; an empty array only clears the new-user flag.
type PopulateRequest struct {
	UserID      string       `json:"userId"`
	TodoEntries []EntryInput `json:"todoEntries"`
}

type UserRequest struct {
	UserID string `json:"userId"`
}

// OKResponse answers procedures with nothing else to return
type OKResponse struct {
	OK bool `json:"ok"`
}
