// Package account is the server-side source of truth for users and their
// to-do entries, fronted by a bounded in-process cache.
package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/redmonkez12/todo-app/internal/session"
	"github.com/redmonkez12/todo-app/internal/todo"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrUserExists        = errors.New("user already exists")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrDatabase          = errors.New("database error")
	ErrAlreadyPopulated  = errors.New("account already populated")
)

// Account is a user together with its ordered entry sequence
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	IsNewUser    bool
	TodoEntries  []todo.Entry
}

// User is the account row without entries
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	IsNewUser    bool
}

// Lookup addresses an account by id, email or both. At least one must be set.
type Lookup struct {
	Email string
	ID    string
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// View returns the session-visible fields, without the password hash
func (a Account) View() session.Session {
	return session.Session{
		Email:       a.Email,
		ID:          a.ID,
		IsNewUser:   a.IsNewUser,
		TodoEntries: todo.Clone(nonNil(a.TodoEntries)),
	}
}

func (a Account) clone() Account {
	a.TodoEntries = todo.Clone(nonNil(a.TodoEntries))
	return a
}

func nonNil(entries []todo.Entry) []todo.Entry {
	if entries == nil {
		return []todo.Entry{}
	}
	return entries
}

// storageErr folds unexpected storage failures into ErrDatabase while keeping
// the cause in the chain. Known sentinels pass through.
func storageErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrUserExists),
		errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrAlreadyPopulated),
		errors.Is(err, ErrDatabase),
		errors.Is(err, todo.ErrValidation):
		return err
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrDatabase, op, err)
}
