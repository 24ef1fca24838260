// Package entries routes entry operations to the guest's local cache or to the
// account on the server. The choice is made once per session by Select.
package entries

import (
	"context"

	"github.com/redmonkez12/todo-app/internal/localcache"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/session"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// Repository is the entry capability handed to callers
type Repository interface {
	List(ctx context.Context) ([]todo.Entry, error)
	Create(ctx context.Context, draft todo.Draft) (todo.Entry, error)
	Update(ctx context.Context, id string, patch todo.Patch) (todo.Entry, error)
	Delete(ctx context.Context, id string) error
}

// Select returns the remote repository when sess is set and the local one otherwise
func Select(sess *session.Session, local *localcache.Cache, api API, saver SessionSaver, logger *logging.Logger) Repository {
	if sess == nil {
		return NewLocal(local, logger)
	}
	return NewRemote(api, *sess, saver)
}
