package entries

import (
	"context"
	"time"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/localcache"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// Local keeps a guest's entries in the local cache. Every mutation rewrites
// the whole sequence.
type Local struct {
	cache  *localcache.Cache
	logger *logging.Logger
	now    func() time.Time
}

func NewLocal(cache *localcache.Cache, logger *logging.Logger) *Local {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Local{cache: cache, logger: logger, now: time.Now}
}

func (l *Local) List(ctx context.Context) ([]todo.Entry, error) {
	return l.cache.Read(ctx)
}

func (l *Local) Create(ctx context.Context, draft todo.Draft) (todo.Entry, error) {
	entry, err := todo.NewGuestEntry(draft, l.now())
	if err != nil {
		return todo.Entry{}, err
	}

	entries, err := l.cache.Read(ctx)
	if err != nil {
		return todo.Entry{}, err
	}
	if err := l.cache.Write(ctx, append(entries, entry)); err != nil {
		return todo.Entry{}, err
	}
	return entry, nil
}

// Update merges patch into the entry. An unknown id leaves the cache untouched.
func (l *Local) Update(ctx context.Context, id string, patch todo.Patch) (todo.Entry, error) {
	if err := todo.ValidatePatch(patch); err != nil {
		return todo.Entry{}, err
	}

	entries, err := l.cache.Read(ctx)
	if err != nil {
		return todo.Entry{}, err
	}

	i := todo.IndexOf(entries, id)
	if i < 0 {
		l.logger.Warn("local entry not found", "entry_id", id)
		return todo.Entry{}, account.ErrEntryNotFound
	}

	updated := entries[i].Apply(patch)
	if err := updated.Validate(); err != nil {
		return todo.Entry{}, err
	}
	entries[i] = updated

	if err := l.cache.Write(ctx, entries); err != nil {
		return todo.Entry{}, err
	}
	return updated, nil
}

// Delete removes the entry if present
func (l *Local) Delete(ctx context.Context, id string) error {
	entries, err := l.cache.Read(ctx)
	if err != nil {
		return err
	}

	i := todo.IndexOf(entries, id)
	if i < 0 {
		return nil
	}
	return l.cache.Write(ctx, append(entries[:i], entries[i+1:]...))
}
