package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/session"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// Hasher hashes and verifies passwords
type Hasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) (bool, error)
}

// Store handles account and entry operations. Mutations of one account are
// serialized on that account's cache slot.
type Store struct {
	repo   Repository
	hasher Hasher
	cache  *Cache
	logger *logging.Logger
}

func NewStore(repo Repository, hasher Hasher, cache *Cache, logger *logging.Logger) *Store {
	if cache == nil {
		cache = NewCache(DefaultCacheCapacity, nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{repo: repo, hasher: hasher, cache: cache, logger: logger}
}

// load fills a locked slot from storage on a miss
func (s *Store) load(ctx context.Context, id string, sl *slot) error {
	if sl.loaded {
		s.cache.metrics.RecordCacheHit()
		return nil
	}
	s.cache.metrics.RecordCacheMiss()

	u, err := s.repo.FindUser(ctx, Lookup{ID: id})
	if err != nil {
		s.cache.dropLocked(id, sl)
		return storageErr("get user", err)
	}

	entries, err := s.repo.ListEntries(ctx, u.ID)
	if err != nil {
		s.cache.dropLocked(id, sl)
		return storageErr("list entries", err)
	}

	s.cache.fill(sl, Account{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		IsNewUser:    u.IsNewUser,
		TodoEntries:  nonNil(entries),
	})
	return nil
}

// withAccount runs fn with the loaded, locked account id
func (s *Store) withAccount(ctx context.Context, id string, fn func(sl *slot) error) error {
	if id == "" {
		return ErrUserNotFound
	}

	sl := s.cache.acquire(id)
	defer sl.mu.Unlock()

	if err := s.load(ctx, id, sl); err != nil {
		return err
	}
	return fn(sl)
}

// resolveID maps a lookup to an account id, going to storage for unknown emails
func (s *Store) resolveID(ctx context.Context, lookup Lookup) (string, error) {
	if lookup.ID != "" {
		return lookup.ID, nil
	}
	if lookup.Email == "" {
		return "", ErrUserNotFound
	}
	if id, ok := s.cache.idFor(lookup.Email); ok {
		return id, nil
	}

	u, err := s.repo.FindUser(ctx, Lookup{Email: lookup.Email})
	if err != nil {
		return "", storageErr("get user", err)
	}
	return u.ID, nil
}

// GetAccount returns a copy of the account. When both id and email are set the
// email is tried if the id does not resolve.
func (s *Store) GetAccount(ctx context.Context, lookup Lookup) (Account, error) {
	account, err := s.getAccount(ctx, lookup)
	if errors.Is(err, ErrUserNotFound) && lookup.ID != "" && lookup.Email != "" {
		return s.getAccount(ctx, Lookup{Email: lookup.Email})
	}
	return account, err
}

func (s *Store) getAccount(ctx context.Context, lookup Lookup) (Account, error) {
	id, err := s.resolveID(ctx, lookup)
	if err != nil {
		return Account{}, err
	}

	var account Account
	err = s.withAccount(ctx, id, func(sl *slot) error {
		if lookup.ID == "" && sl.account.Email != lookup.Email {
			// stale email index entry
			s.cache.dropLocked(id, sl)
			return ErrUserNotFound
		}
		account = sl.account.clone()
		return nil
	})
	return account, err
}

func (s *Store) AccountExists(ctx context.Context, lookup Lookup) (bool, error) {
	_, err := s.GetAccount(ctx, lookup)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LogIn verifies the password and returns the session view
func (s *Store) LogIn(ctx context.Context, creds Credentials) (session.Session, error) {
	account, err := s.GetAccount(ctx, Lookup{Email: creds.Email})
	if err != nil {
		return session.Session{}, err
	}

	ok, err := s.hasher.Verify(account.PasswordHash, creds.Password)
	if err != nil {
		s.logger.Error("failed to verify password hash", "user_id", account.ID, "error", err)
		return session.Session{}, fmt.Errorf("%w: failed to verify password: %w", ErrDatabase, err)
	}
	if !ok {
		return session.Session{}, ErrIncorrectPassword
	}

	return account.View(), nil
}

// SignUp creates an account with isNewUser set and no entries
func (s *Store) SignUp(ctx context.Context, creds Credentials) (session.Session, error) {
	exists, err := s.AccountExists(ctx, Lookup{Email: creds.Email})
	if err != nil {
		return session.Session{}, err
	}
	if exists {
		return session.Session{}, ErrUserExists
	}

	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: failed to hash password: %w", ErrDatabase, err)
	}

	u, err := s.repo.CreateUser(ctx, creds.Email, hash)
	if err != nil {
		return session.Session{}, storageErr("create user", err)
	}

	account := Account{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		IsNewUser:    u.IsNewUser,
		TodoEntries:  []todo.Entry{},
	}

	sl := s.cache.acquire(u.ID)
	s.cache.fill(sl, account)
	sl.mu.Unlock()

	s.logger.Info("account created", "user_id", u.ID)
	return account.View(), nil
}

// DisableNewUserFlag clears isNewUser in storage and cache. Idempotent.
func (s *Store) DisableNewUserFlag(ctx context.Context, userID string) error {
	return s.withAccount(ctx, userID, func(sl *slot) error {
		if err := s.repo.ClearNewUserFlag(ctx, userID); err != nil {
			return storageErr("clear new user flag", err)
		}
		sl.account.IsNewUser = false
		return nil
	})
}

// PopulateNewUser inserts a guest's entries into a new account and clears its
// flag in one storage transaction, returning the inserted entries.
func (s *Store) PopulateNewUser(ctx context.Context, userID string, drafts []todo.Draft) ([]todo.Entry, error) {
	stamped := make([]todo.Draft, len(drafts))
	for i, d := range drafts {
		d.UserID = userID
		if err := todo.ValidateDraft(d); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		stamped[i] = d
	}

	var inserted []todo.Entry
	err := s.withAccount(ctx, userID, func(sl *slot) error {
		entries, err := s.repo.PopulateEntries(ctx, userID, stamped)
		if err != nil {
			if errors.Is(err, ErrAlreadyPopulated) {
				sl.account.IsNewUser = false
			}
			return storageErr("populate entries", err)
		}

		sl.account.IsNewUser = false
		sl.account.TodoEntries = append(sl.account.TodoEntries, entries...)
		inserted = todo.Clone(nonNil(entries))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("guest entries migrated", "user_id", userID, "count", len(inserted))
	return inserted, nil
}

// CreateTodoEntry validates and stores a new entry for draft.UserID
func (s *Store) CreateTodoEntry(ctx context.Context, draft todo.Draft) (todo.Entry, error) {
	if err := todo.ValidateDraft(draft); err != nil {
		return todo.Entry{}, err
	}

	var created todo.Entry
	err := s.withAccount(ctx, draft.UserID, func(sl *slot) error {
		entry, err := s.repo.InsertEntry(ctx, draft)
		if err != nil {
			return storageErr("insert entry", err)
		}
		sl.account.TodoEntries = append(sl.account.TodoEntries, entry)
		created = entry
		return nil
	})
	return created, err
}

// ReadTodoEntries returns the account's entries in creation order
func (s *Store) ReadTodoEntries(ctx context.Context, userID string) ([]todo.Entry, error) {
	account, err := s.GetAccount(ctx, Lookup{ID: userID})
	if err != nil {
		return nil, err
	}
	return account.TodoEntries, nil
}

// ReadTodoEntry returns one of the account's entries
func (s *Store) ReadTodoEntry(ctx context.Context, userID, id string) (todo.Entry, error) {
	entries, err := s.ReadTodoEntries(ctx, userID)
	if err != nil {
		return todo.Entry{}, err
	}
	i := todo.IndexOf(entries, id)
	if i < 0 {
		return todo.Entry{}, ErrEntryNotFound
	}
	return entries[i], nil
}

// UpdateTodoEntry applies patch to entry id. The storage row is updated before
// the cached copy is looked up; if the cache does not hold the entry the call
// fails with ErrEntryNotFound, the row stays updated and the account is
// dropped from the cache.
func (s *Store) UpdateTodoEntry(ctx context.Context, id string, patch todo.Patch) (todo.Entry, error) {
	if err := todo.ValidatePatch(patch); err != nil {
		return todo.Entry{}, err
	}

	owner, err := s.repo.EntryOwner(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return todo.Entry{}, fmt.Errorf("%w: no entry with id %s", ErrDatabase, id)
		}
		return todo.Entry{}, storageErr("get entry owner", err)
	}

	var updated todo.Entry
	err = s.withAccount(ctx, owner, func(sl *slot) error {
		entry, err := s.repo.UpdateEntry(ctx, id, patch)
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				return fmt.Errorf("%w: no entry with id %s", ErrDatabase, id)
			}
			return storageErr("update entry", err)
		}

		i := todo.IndexOf(sl.account.TodoEntries, id)
		if i < 0 {
			s.logger.Warn("cached entries diverged from storage", "user_id", owner, "entry_id", id)
			s.cache.dropLocked(owner, sl)
			return ErrEntryNotFound
		}

		sl.account.TodoEntries[i] = entry
		updated = entry
		return nil
	})
	return updated, err
}

// DeleteTodoEntry deletes from storage and, if present, from the cached account.
// A missing cached account or entry is not an error.
func (s *Store) DeleteTodoEntry(ctx context.Context, id, userID string) error {
	if userID == "" {
		return ErrUserNotFound
	}

	sl, cached := s.cache.lookup(userID)
	if !cached {
		if err := s.repo.DeleteEntry(ctx, id, userID); err != nil {
			return storageErr("delete entry", err)
		}
		// a load running alongside the delete may have read the row
		if sl, ok := s.cache.lookup(userID); ok {
			removeEntry(sl, id)
			sl.mu.Unlock()
		}
		return nil
	}
	defer sl.mu.Unlock()

	if err := s.repo.DeleteEntry(ctx, id, userID); err != nil {
		return storageErr("delete entry", err)
	}
	removeEntry(sl, id)
	return nil
}

func removeEntry(sl *slot, id string) {
	if !sl.loaded {
		return
	}
	if i := todo.IndexOf(sl.account.TodoEntries, id); i >= 0 {
		sl.account.TodoEntries = append(sl.account.TodoEntries[:i:i], sl.account.TodoEntries[i+1:]...)
	}
}

// Session returns a fresh session view of the account
func (s *Store) Session(ctx context.Context, userID string) (session.Session, error) {
	account, err := s.GetAccount(ctx, Lookup{ID: userID})
	if err != nil {
		return session.Session{}, err
	}
	return account.View(), nil
}

// EntryOwner returns the id of the account owning entry id
func (s *Store) EntryOwner(ctx context.Context, id string) (string, error) {
	owner, err := s.repo.EntryOwner(ctx, id)
	if err != nil {
		return "", storageErr("get entry owner", err)
	}
	return owner, nil
}

// Invalidate drops the cached copy of userID after an external storage write
func (s *Store) Invalidate(userID string) {
	s.cache.Invalidate(userID)
}
