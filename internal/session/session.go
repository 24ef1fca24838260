package session

import (
	"github.com/redmonkez12/todo-app/internal/todo"
)

// Session is the session-visible view of an account. It is a snapshot: a
// state-changing operation produces a new Session instead of editing one in place.
type Session struct {
	Email       string       `json:"email"`
	ID          string       `json:"id"`
	IsNewUser   bool         `json:"isNewUser"`
	TodoEntries []todo.Entry `json:"todoEntries"`
}

// Update is a partial refresh merged into a session. Nil fields are left unchanged.
type Update struct {
	IsNewUser   *bool        `json:"isNewUser,omitempty"`
	TodoEntries []todo.Entry `json:"todoEntries,omitempty"`
}

// Apply returns a new session with u merged in
func (s Session) Apply(u Update) Session {
	next := s
	next.TodoEntries = todo.Clone(s.TodoEntries)
	if u.IsNewUser != nil {
		next.IsNewUser = *u.IsNewUser
	}
	if u.TodoEntries != nil {
		next.TodoEntries = todo.Clone(u.TodoEntries)
	}
	return next
}

// WithEntries is shorthand for Apply(Update{TodoEntries: entries})
func (s Session) WithEntries(entries []todo.Entry) Session {
	if entries == nil {
		entries = []todo.Entry{}
	}
	return s.Apply(Update{TodoEntries: entries})
}

// Reconciled returns the session with the new-user flag cleared
func (s Session) Reconciled() Session {
	cleared := false
	return s.Apply(Update{IsNewUser: &cleared})
}
