package account_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/account/accounttest"
	"github.com/redmonkez12/todo-app/internal/todo"
)

func ptr[T any](v T) *T { return &v }

func newStore(t *testing.T) (*account.Store, *accounttest.MemRepository) {
	t.Helper()
	repo := accounttest.NewMemRepository()
	store := account.NewStore(repo, accounttest.PlainHasher{}, account.NewCache(16, nil), nil)
	return store, repo
}

func signUp(t *testing.T, store *account.Store, email string) string {
	t.Helper()
	sess, err := store.SignUp(context.Background(), account.Credentials{Email: email, Password: "abcdefgh"})
	if err != nil {
		t.Fatalf("SignUp(%s) error = %v", email, err)
	}
	return sess.ID
}

func draft(userID, title string, p todo.Priority) todo.Draft {
	return todo.Draft{UserID: userID, Title: title, Description: title + " description", Priority: p}
}

// assertInSync checks the cached sequence matches storage
func assertInSync(t *testing.T, store *account.Store, repo *accounttest.MemRepository, userID string) {
	t.Helper()
	cached, err := store.ReadTodoEntries(context.Background(), userID)
	if err != nil {
		t.Fatalf("ReadTodoEntries() error = %v", err)
	}
	persisted := repo.Entries(userID)
	if len(cached) != len(persisted) {
		t.Fatalf("cached %d entries, persisted %d", len(cached), len(persisted))
	}
	for i := range cached {
		c, p := cached[i], persisted[i]
		if c.ID != p.ID || c.Title != p.Title || c.Completed != p.Completed || c.Priority != p.Priority {
			t.Errorf("entry %d: cached %+v, persisted %+v", i, c, p)
		}
	}
}

func TestSignUp_NewAccount(t *testing.T) {
	store, repo := newStore(t)

	sess, err := store.SignUp(context.Background(), account.Credentials{Email: "x@y.com", Password: "abcdefgh"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !sess.IsNewUser {
		t.Error("new account should have IsNewUser set")
	}
	if sess.TodoEntries == nil || len(sess.TodoEntries) != 0 {
		t.Errorf("TodoEntries = %v, want empty", sess.TodoEntries)
	}

	u, ok := repo.User(sess.ID)
	if !ok {
		t.Fatal("user was not persisted")
	}
	if u.PasswordHash == "abcdefgh" {
		t.Error("password stored in plain text")
	}
}

func TestSignUp_ExistingEmail(t *testing.T) {
	store, repo := newStore(t)
	signUp(t, store, "x@y.com")
	writes := repo.WriteCount()

	for i := 0; i < 3; i++ {
		_, err := store.SignUp(context.Background(), account.Credentials{Email: "x@y.com", Password: "another-pw"})
		if !errors.Is(err, account.ErrUserExists) {
			t.Fatalf("SignUp(existing) error = %v, want ErrUserExists", err)
		}
	}

	if repo.WriteCount() != writes {
		t.Errorf("storage writes = %d, want %d", repo.WriteCount(), writes)
	}
	if repo.CallCount("CreateUser") != 1 {
		t.Errorf("CreateUser called %d times, want 1", repo.CallCount("CreateUser"))
	}
}

func TestSignUp_ExistingEmailNotCached(t *testing.T) {
	repo := accounttest.NewMemRepository()
	first := account.NewStore(repo, accounttest.PlainHasher{}, nil, nil)
	signUp(t, first, "x@y.com")

	// a second process has an empty cache
	second := account.NewStore(repo, accounttest.PlainHasher{}, nil, nil)
	_, err := second.SignUp(context.Background(), account.Credentials{Email: "x@y.com", Password: "abcdefgh"})
	if !errors.Is(err, account.ErrUserExists) {
		t.Fatalf("SignUp() error = %v, want ErrUserExists", err)
	}
}

func TestLogIn(t *testing.T) {
	store, _ := newStore(t)
	id := signUp(t, store, "x@y.com")

	tests := []struct {
		name    string
		creds   account.Credentials
		wantErr error
	}{
		{"correct password", account.Credentials{Email: "x@y.com", Password: "abcdefgh"}, nil},
		{"wrong password", account.Credentials{Email: "x@y.com", Password: "abcdefgX"}, account.ErrIncorrectPassword},
		{"empty password", account.Credentials{Email: "x@y.com", Password: ""}, account.ErrIncorrectPassword},
		{"unknown email", account.Credentials{Email: "nobody@y.com", Password: "abcdefgh"}, account.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := store.LogIn(context.Background(), tt.creds)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("LogIn() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if sess.ID != "" || sess.Email != "" {
					t.Errorf("LogIn() returned session %+v alongside error", sess)
				}
				return
			}
			if sess.ID != id || sess.Email != "x@y.com" {
				t.Errorf("LogIn() = %+v, want account %s", sess, id)
			}
		})
	}
}

func TestLogIn_MalformedHashIsDatabaseError(t *testing.T) {
	repo := accounttest.NewMemRepository()
	u, err := repo.CreateUser(context.Background(), "x@y.com", "not-a-hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	store := account.NewStore(repo, accounttest.PlainHasher{}, nil, nil)

	_, err = store.LogIn(context.Background(), account.Credentials{Email: u.Email, Password: "abcdefgh"})
	if !errors.Is(err, account.ErrDatabase) {
		t.Errorf("LogIn() error = %v, want ErrDatabase", err)
	}
}

func TestGetAccount(t *testing.T) {
	store, repo := newStore(t)
	id := signUp(t, store, "x@y.com")

	if _, err := store.GetAccount(context.Background(), account.Lookup{}); !errors.Is(err, account.ErrUserNotFound) {
		t.Errorf("GetAccount(empty) error = %v, want ErrUserNotFound", err)
	}

	byEmail, err := store.GetAccount(context.Background(), account.Lookup{Email: "x@y.com"})
	if err != nil || byEmail.ID != id {
		t.Errorf("GetAccount(email) = %+v, %v", byEmail, err)
	}

	// unknown id falls back to the email
	fallback, err := store.GetAccount(context.Background(), account.Lookup{ID: uuid.NewString(), Email: "x@y.com"})
	if err != nil || fallback.ID != id {
		t.Errorf("GetAccount(bad id, good email) = %+v, %v", fallback, err)
	}

	exists, err := store.AccountExists(context.Background(), account.Lookup{ID: uuid.NewString()})
	if err != nil || exists {
		t.Errorf("AccountExists(unknown) = %v, %v; want false, nil", exists, err)
	}

	// repeated reads are served from the cache
	before := repo.CallCount("ListEntries")
	for i := 0; i < 3; i++ {
		if _, err := store.GetAccount(context.Background(), account.Lookup{ID: id}); err != nil {
			t.Fatalf("GetAccount() error = %v", err)
		}
	}
	if repo.CallCount("ListEntries") != before {
		t.Error("cached account was reloaded from storage")
	}
}

func TestGetAccount_ReturnsCopy(t *testing.T) {
	store, _ := newStore(t)
	id := signUp(t, store, "x@y.com")
	if _, err := store.CreateTodoEntry(context.Background(), draft(id, "A", todo.PriorityLow)); err != nil {
		t.Fatalf("CreateTodoEntry() error = %v", err)
	}

	a, _ := store.GetAccount(context.Background(), account.Lookup{ID: id})
	a.TodoEntries[0].Title = "mutated"
	a.IsNewUser = false

	b, _ := store.GetAccount(context.Background(), account.Lookup{ID: id})
	if b.TodoEntries[0].Title != "A" || !b.IsNewUser {
		t.Errorf("caller mutation leaked into the cache: %+v", b)
	}
}

func TestEntryOperations_CacheMatchesStorage(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()
	id := signUp(t, store, "x@y.com")

	var ids []string
	for i, p := range []todo.Priority{todo.PriorityLow, todo.PriorityMedium, todo.PriorityHigh} {
		e, err := store.CreateTodoEntry(ctx, draft(id, fmt.Sprintf("entry %d", i), p))
		if err != nil {
			t.Fatalf("CreateTodoEntry() error = %v", err)
		}
		ids = append(ids, e.ID)
		assertInSync(t, store, repo, id)
	}

	if _, err := store.UpdateTodoEntry(ctx, ids[1], todo.Patch{Completed: ptr(true)}); err != nil {
		t.Fatalf("UpdateTodoEntry() error = %v", err)
	}
	assertInSync(t, store, repo, id)

	if _, err := store.UpdateTodoEntry(ctx, ids[0], todo.Patch{Title: ptr("renamed"), Priority: ptr(todo.PriorityHigh)}); err != nil {
		t.Fatalf("UpdateTodoEntry() error = %v", err)
	}
	assertInSync(t, store, repo, id)

	if err := store.DeleteTodoEntry(ctx, ids[2], id); err != nil {
		t.Fatalf("DeleteTodoEntry() error = %v", err)
	}
	assertInSync(t, store, repo, id)

	got, err := store.ReadTodoEntry(ctx, id, ids[0])
	if err != nil || got.Title != "renamed" {
		t.Errorf("ReadTodoEntry() = %+v, %v", got, err)
	}
	if _, err := store.ReadTodoEntry(ctx, id, ids[2]); !errors.Is(err, account.ErrEntryNotFound) {
		t.Errorf("ReadTodoEntry(deleted) error = %v, want ErrEntryNotFound", err)
	}
}

func TestCreateTodoEntry_Validation(t *testing.T) {
	store, repo := newStore(t)
	id := signUp(t, store, "x@y.com")
	writes := repo.WriteCount()

	_, err := store.CreateTodoEntry(context.Background(), todo.Draft{UserID: id, Title: "", Priority: "urgent"})
	if !errors.Is(err, todo.ErrValidation) {
		t.Fatalf("CreateTodoEntry(invalid) error = %v, want ErrValidation", err)
	}
	var verr *todo.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) < 3 {
		t.Errorf("expected title, description and priority violations, got %v", err)
	}
	if repo.WriteCount() != writes {
		t.Error("invalid entry reached storage")
	}
}

func TestCreateTodoEntry_StorageFailure(t *testing.T) {
	store, repo := newStore(t)
	id := signUp(t, store, "x@y.com")
	repo.FailInsert = errors.New("connection reset")

	_, err := store.CreateTodoEntry(context.Background(), draft(id, "A", todo.PriorityLow))
	if !errors.Is(err, account.ErrDatabase) {
		t.Fatalf("CreateTodoEntry() error = %v, want ErrDatabase", err)
	}

	repo.FailInsert = nil
	assertInSync(t, store, repo, id)
}

func TestUpdateTodoEntry_MissingRow(t *testing.T) {
	store, _ := newStore(t)
	signUp(t, store, "x@y.com")

	_, err := store.UpdateTodoEntry(context.Background(), uuid.NewString(), todo.Patch{Completed: ptr(true)})
	if !errors.Is(err, account.ErrDatabase) {
		t.Errorf("UpdateTodoEntry(unknown id) error = %v, want ErrDatabase", err)
	}
}

func TestUpdateTodoEntry_CacheDivergence(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()
	id := signUp(t, store, "x@y.com")

	// warm the cache, then write behind its back
	if _, err := store.ReadTodoEntries(ctx, id); err != nil {
		t.Fatalf("ReadTodoEntries() error = %v", err)
	}
	hidden := todo.Entry{
		ID: uuid.NewString(), UserID: id, Title: "hidden", Description: "written elsewhere",
		CreatedAt: 1, Priority: todo.PriorityLow,
	}
	repo.PutEntry(hidden)

	_, err := store.UpdateTodoEntry(ctx, hidden.ID, todo.Patch{Completed: ptr(true)})
	if !errors.Is(err, account.ErrEntryNotFound) {
		t.Fatalf("UpdateTodoEntry() error = %v, want ErrEntryNotFound", err)
	}

	persisted := repo.Entries(id)
	if len(persisted) != 1 || !persisted[0].Completed {
		t.Errorf("persisted row = %+v, want completed=true", persisted)
	}

	// the failed update dropped the stale copy, so the next read reloads
	entries, err := store.ReadTodoEntries(ctx, id)
	if err != nil {
		t.Fatalf("ReadTodoEntries() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].Completed {
		t.Errorf("ReadTodoEntries() after divergence = %+v", entries)
	}
}

func TestDeleteTodoEntry_BestEffort(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()
	id := signUp(t, store, "x@y.com")

	if err := store.DeleteTodoEntry(ctx, uuid.NewString(), id); err != nil {
		t.Errorf("DeleteTodoEntry(unknown entry) error = %v, want nil", err)
	}
	if err := store.DeleteTodoEntry(ctx, uuid.NewString(), uuid.NewString()); err != nil {
		t.Errorf("DeleteTodoEntry(unknown account) error = %v, want nil", err)
	}

	e, err := store.CreateTodoEntry(ctx, draft(id, "A", todo.PriorityLow))
	if err != nil {
		t.Fatalf("CreateTodoEntry() error = %v", err)
	}
	store.Invalidate(id)

	// not cached: storage still deletes
	if err := store.DeleteTodoEntry(ctx, e.ID, id); err != nil {
		t.Fatalf("DeleteTodoEntry() error = %v", err)
	}
	if len(repo.Entries(id)) != 0 {
		t.Error("entry still persisted")
	}
	assertInSync(t, store, repo, id)
}

func TestDisableNewUserFlag_Idempotent(t *testing.T) {
	store, repo := newStore(t)
	id := signUp(t, store, "x@y.com")

	for i := 0; i < 2; i++ {
		if err := store.DisableNewUserFlag(context.Background(), id); err != nil {
			t.Fatalf("DisableNewUserFlag() #%d error = %v", i, err)
		}
	}

	sess, err := store.Session(context.Background(), id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sess.IsNewUser {
		t.Error("session still flagged as new user")
	}
	if u, _ := repo.User(id); u.IsNewUser {
		t.Error("persisted flag still set")
	}

	if err := store.DisableNewUserFlag(context.Background(), uuid.NewString()); !errors.Is(err, account.ErrUserNotFound) {
		t.Errorf("DisableNewUserFlag(unknown) error = %v, want ErrUserNotFound", err)
	}
}

func TestPopulateNewUser(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()
	id := signUp(t, store, "x@y.com")

	drafts := []todo.Draft{
		draft(todo.GuestUserID, "A", todo.PriorityLow),
		draft(todo.GuestUserID, "B", todo.PriorityHigh),
	}
	inserted, err := store.PopulateNewUser(ctx, id, drafts)
	if err != nil {
		t.Fatalf("PopulateNewUser() error = %v", err)
	}
	if len(inserted) != 2 || inserted[0].Title != "A" || inserted[1].Title != "B" {
		t.Fatalf("PopulateNewUser() = %+v", inserted)
	}
	for _, e := range inserted {
		if e.UserID != id {
			t.Errorf("entry %s userId = %q, want %q", e.Title, e.UserID, id)
		}
	}

	acct, _ := store.GetAccount(ctx, account.Lookup{ID: id})
	if acct.IsNewUser {
		t.Error("flag not cleared in cache")
	}
	assertInSync(t, store, repo, id)

	_, err = store.PopulateNewUser(ctx, id, drafts)
	if !errors.Is(err, account.ErrAlreadyPopulated) {
		t.Fatalf("second PopulateNewUser() error = %v, want ErrAlreadyPopulated", err)
	}
	if len(repo.Entries(id)) != 2 {
		t.Errorf("persisted %d entries after second call, want 2", len(repo.Entries(id)))
	}
}

func TestPopulateNewUser_FailureKeepsFlag(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()
	id := signUp(t, store, "x@y.com")
	repo.FailPopulate = errors.New("connection reset")

	_, err := store.PopulateNewUser(ctx, id, []todo.Draft{draft("", "A", todo.PriorityLow)})
	if !errors.Is(err, account.ErrDatabase) {
		t.Fatalf("PopulateNewUser() error = %v, want ErrDatabase", err)
	}

	acct, _ := store.GetAccount(ctx, account.Lookup{ID: id})
	if !acct.IsNewUser || len(acct.TodoEntries) != 0 {
		t.Errorf("account after failed populate = %+v", acct)
	}
}

func TestPopulateNewUser_InvalidDraft(t *testing.T) {
	store, repo := newStore(t)
	id := signUp(t, store, "x@y.com")

	_, err := store.PopulateNewUser(context.Background(), id, []todo.Draft{
		draft("", "A", todo.PriorityLow),
		{Title: "B"},
	})
	if !errors.Is(err, todo.ErrValidation) {
		t.Fatalf("PopulateNewUser() error = %v, want ErrValidation", err)
	}
	if repo.CallCount("PopulateEntries") != 0 {
		t.Error("invalid batch reached storage")
	}
}

func TestConcurrentCreates_NoLostUpdates(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()
	id := signUp(t, store, "x@y.com")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.CreateTodoEntry(ctx, draft(id, fmt.Sprintf("entry %d", i), todo.PriorityMedium)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("CreateTodoEntry() error = %v", err)
	}

	entries, _ := store.ReadTodoEntries(ctx, id)
	if len(entries) != n {
		t.Errorf("cached %d entries, want %d", len(entries), n)
	}
	assertInSync(t, store, repo, id)
}

func TestCache_BoundedCapacity(t *testing.T) {
	repo := accounttest.NewMemRepository()
	cache := account.NewCache(2, nil)
	store := account.NewStore(repo, accounttest.PlainHasher{}, cache, nil)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, signUp(t, store, fmt.Sprintf("user%d@y.com", i)))
	}
	if cache.Len() > 2 {
		t.Errorf("cache holds %d accounts, capacity 2", cache.Len())
	}

	// evicted accounts reload transparently
	for _, id := range ids {
		if _, err := store.GetAccount(context.Background(), account.Lookup{ID: id}); err != nil {
			t.Errorf("GetAccount(%s) error = %v", id, err)
		}
	}
}

func TestCache_UncachedAccountDoesNotEvict(t *testing.T) {
	repo := accounttest.NewMemRepository()
	cache := account.NewCache(1, nil)
	store := account.NewStore(repo, accounttest.PlainHasher{}, cache, nil)
	ctx := context.Background()

	id := signUp(t, store, "x@y.com")
	if cache.Len() != 1 {
		t.Fatalf("cache holds %d accounts, want 1", cache.Len())
	}

	other := uuid.NewString()
	if err := store.DeleteTodoEntry(ctx, uuid.NewString(), other); err != nil {
		t.Fatalf("DeleteTodoEntry() error = %v", err)
	}
	store.Invalidate(other)
	if cache.Len() != 1 {
		t.Errorf("cache holds %d accounts after touching an uncached one, want 1", cache.Len())
	}

	before := repo.CallCount("FindUser")
	if _, err := store.GetAccount(ctx, account.Lookup{ID: id}); err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if repo.CallCount("FindUser") != before {
		t.Error("resident account was reloaded from storage")
	}
}
