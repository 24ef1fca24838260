package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/account/accounttest"
	"github.com/redmonkez12/todo-app/internal/localcache"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// liveTokens counts the user's tokens that are neither revoked nor expired
func liveTokens(m *MemoryRepository, userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rt := range m.tokens {
		if rt.UserID == userID && rt.IsValid() {
			n++
		}
	}
	return n
}

type testEnv struct {
	repo     *accounttest.MemRepository
	store    *account.Store
	tokens   *MemoryRepository
	paseto   *PasetoService
	guestDir string
	caches   GuestCaches
	service  *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     accounttest.NewMemRepository(),
		tokens:   NewMemoryRepository(),
		paseto:   newTestPaseto(t),
		guestDir: t.TempDir(),
	}
	env.store = account.NewStore(env.repo, accounttest.PlainHasher{}, nil, nil)
	env.caches = func(guestID string) *localcache.Cache {
		return localcache.New(localcache.NewFileStorage(filepath.Join(env.guestDir, guestID)))
	}
	claimer := NewGuestClaimer(env.store, env.caches, nil, nil)
	env.service = NewService(env.store, env.tokens, env.paseto, claimer, nil, 15*time.Minute, 24*time.Hour)
	return env
}

func (env *testEnv) seedGuest(t *testing.T, guestID string, titles ...string) {
	t.Helper()
	var entries []todo.Entry
	for i, title := range titles {
		e, err := todo.NewGuestEntry(todo.Draft{Title: title, Description: title, Priority: todo.PriorityMedium}, time.Now().Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			t.Fatalf("NewGuestEntry() error = %v", err)
		}
		entries = append(entries, e)
	}
	if err := env.caches(guestID).Write(context.Background(), entries); err != nil {
		t.Fatalf("guest Write() error = %v", err)
	}
}

func (env *testEnv) guestLen(t *testing.T, guestID string) int {
	t.Helper()
	entries, err := env.caches(guestID).Read(context.Background())
	if err != nil {
		t.Fatalf("guest Read() error = %v", err)
	}
	return len(entries)
}
