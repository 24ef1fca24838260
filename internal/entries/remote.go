package entries

import (
	"context"
	"sync"

	"github.com/redmonkez12/todo-app/internal/session"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// API is the server's per-entry operation surface
type API interface {
	CreateTodo(ctx context.Context, draft todo.Draft) (todo.Entry, error)
	ReadTodos(ctx context.Context) ([]todo.Entry, error)
	UpdateTodo(ctx context.Context, id string, patch todo.Patch) (todo.Entry, error)
	DeleteTodo(ctx context.Context, id, userID string) error
}

// SessionSaver persists the session after its entry list changes
type SessionSaver interface {
	SaveSession(sess session.Session) error
}

// Remote sends entry operations to the server and keeps the session's entry
// list in step with the results.
type Remote struct {
	mu    sync.Mutex
	api   API
	sess  session.Session
	saver SessionSaver
}

func NewRemote(api API, sess session.Session, saver SessionSaver) *Remote {
	return &Remote{api: api, sess: sess, saver: saver}
}

// Session returns the latest session value
func (r *Remote) Session() session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

func (r *Remote) List(ctx context.Context) ([]todo.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.api.ReadTodos(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.push(entries); err != nil {
		return nil, err
	}
	return todo.Clone(entries), nil
}

func (r *Remote) Create(ctx context.Context, draft todo.Draft) (todo.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft.UserID = r.sess.ID
	if err := todo.ValidateDraft(draft); err != nil {
		return todo.Entry{}, err
	}

	entry, err := r.api.CreateTodo(ctx, draft)
	if err != nil {
		return todo.Entry{}, err
	}
	return entry, r.push(append(todo.Clone(r.sess.TodoEntries), entry))
}

func (r *Remote) Update(ctx context.Context, id string, patch todo.Patch) (todo.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := todo.ValidatePatch(patch); err != nil {
		return todo.Entry{}, err
	}

	entry, err := r.api.UpdateTodo(ctx, id, patch)
	if err != nil {
		return todo.Entry{}, err
	}

	entries := todo.Clone(r.sess.TodoEntries)
	if i := todo.IndexOf(entries, id); i >= 0 {
		entries[i] = entry
	} else {
		entries = append(entries, entry)
	}
	return entry, r.push(entries)
}

func (r *Remote) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.api.DeleteTodo(ctx, id, r.sess.ID); err != nil {
		return err
	}

	entries := todo.Clone(r.sess.TodoEntries)
	if i := todo.IndexOf(entries, id); i >= 0 {
		entries = append(entries[:i], entries[i+1:]...)
	}
	return r.push(entries)
}

// push replaces the session with one carrying entries and persists it
func (r *Remote) push(entries []todo.Entry) error {
	r.sess = r.sess.WithEntries(entries)
	if r.saver == nil {
		return nil
	}
	return r.saver.SaveSession(r.sess)
}
