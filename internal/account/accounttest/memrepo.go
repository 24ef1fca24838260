// Package accounttest provides in-memory stand-ins for account storage in tests.
package accounttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// MemRepository is an account.Repository kept in memory.
// Fail* fields inject errors into the matching operation.
type MemRepository struct {
	mu      sync.Mutex
	users   map[string]account.User
	entries map[string]todo.Entry
	clock   int64

	writes int
	calls  map[string]int

	FailPopulate error
	FailInsert   error
	FailClear    error
}

func NewMemRepository() *MemRepository {
	return &MemRepository{
		users:   map[string]account.User{},
		entries: map[string]todo.Entry{},
		clock:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		calls:   map[string]int{},
	}
}

func (r *MemRepository) tick() int64 {
	r.clock++
	return r.clock
}

func (r *MemRepository) call(op string) {
	r.calls[op]++
}

func (r *MemRepository) FindUser(_ context.Context, lookup account.Lookup) (account.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call("FindUser")

	if lookup.ID != "" {
		u, ok := r.users[lookup.ID]
		if !ok {
			return account.User{}, account.ErrUserNotFound
		}
		return u, nil
	}
	for _, u := range r.users {
		if lookup.Email != "" && u.Email == lookup.Email {
			return u, nil
		}
	}
	return account.User{}, account.ErrUserNotFound
}

func (r *MemRepository) ListEntries(_ context.Context, userID string) ([]todo.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call("ListEntries")
	return r.listLocked(userID), nil
}

func (r *MemRepository) listLocked(userID string) []todo.Entry {
	out := []todo.Entry{}
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return todo.Clone(out)
}

func (r *MemRepository) CreateUser(_ context.Context, email, passwordHash string) (account.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call("CreateUser")

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return account.User{}, account.ErrUserExists
		}
	}

	u := account.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.UnixMilli(r.tick()).UTC(),
		IsNewUser:    true,
	}
	r.users[u.ID] = u
	r.writes++
	return u, nil
}

func (r *MemRepository) ClearNewUserFlag(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call("ClearNewUserFlag")

	if r.FailClear != nil {
		return r.FailClear
	}
	u, ok := r.users[userID]
	if !ok {
		return account.ErrUserNotFound
	}
	u.IsNewUser = false
	r.users[userID] = u
	r.writes++
	return nil
}

func (r *MemRepository) PopulateEntries(_ context.Context, userID string, drafts []todo.Draft) ([]todo.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call("PopulateEntries")

	if r.FailPopulate != nil {
		return nil, r.FailPopulate
	}
	u, ok := r.users[userID]
	if !ok {
		return nil, account.ErrUserNotFound
	}
	if !u.IsNewUser {
		return nil, account.ErrAlreadyPopulated
	}

	u.IsNewUser = false
	r.users[userID] = u

	out := make([]todo.Entry, 0, len(drafts))
	for _, d := range drafts {
		e := r.newEntryLocked(userID, d)
		out = append(out, e)
	}
	r.writes++
	return todo.Clone(out), nil
}

func (r *MemRepository) newEntryLocked(userID string, d todo.Draft) todo.Entry {
	e := todo.Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		CreatedAt:   r.tick(),
		Priority:    d.Priority,
	}
	if d.DueDate != nil {
		due := *d.DueDate
		e.DueDate = &due
	}
	r.entries[e.ID] = e
	return e
}

func (r *MemRepository) InsertEntry(_ context.Context, draft todo.Draft) (todo.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call("InsertEntry")

	if r.FailInsert != nil {
		return todo.Entry{}, r.FailInsert
	}
	if _, ok := r.users[draft.UserID]; !ok {
		return todo.Entry{}, account.ErrUserNotFound
	}
	e := r.newEntryLocked(draft.UserID, draft)
	r.writes++
	return todo.Clone([]todo.Entry{e})[0], nil
}

func (r *MemRepository) UpdateEntry(_ context.Context, id string, patch todo.Patch) (todo.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call("UpdateEntry")

	if patch.IsEmpty() {
		return todo.Entry{}, fmt.Errorf("%w: empty patch", todo.ErrValidation)
	}
	e, ok := r.entries[id]
	if !ok {
		return todo.Entry{}, account.ErrEntryNotFound
	}
	e = e.Apply(patch)
	r.entries[id] = e
	r.writes++
	return todo.Clone([]todo.Entry{e})[0], nil
}

func (r *MemRepository) DeleteEntry(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call("DeleteEntry")

	if e, ok := r.entries[id]; ok && e.UserID == userID {
		delete(r.entries, id)
		r.writes++
	}
	return nil
}

func (r *MemRepository) EntryOwner(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.call("EntryOwner")

	e, ok := r.entries[id]
	if !ok {
		return "", account.ErrEntryNotFound
	}
	return e.UserID, nil
}

// Entries returns the persisted entries of userID in creation order
func (r *MemRepository) Entries(userID string) []todo.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(userID)
}

// User returns the persisted user row
func (r *MemRepository) User(userID string) (account.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	return u, ok
}

// PutEntry writes an entry directly, bypassing any cache in front of the repository
func (r *MemRepository) PutEntry(e todo.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
}

// CallCount reports how often op was invoked
func (r *MemRepository) CallCount(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// WriteCount reports the number of successful storage writes
func (r *MemRepository) WriteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// PlainHasher "hashes" by prefixing. Never use outside tests.
type PlainHasher struct{}

var ErrBadHash = errors.New("not a plain hash")

func (PlainHasher) Hash(password string) (string, error) {
	return "plain:" + password, nil
}

func (PlainHasher) Verify(encodedHash, password string) (bool, error) {
	stored, ok := strings.CutPrefix(encodedHash, "plain:")
	if !ok {
		return false, ErrBadHash
	}
	return stored == password, nil
}
