// Package reconcile migrates a guest's locally cached entries into the account
// they log in to, exactly once per account.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/localcache"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/session"
	"github.com/redmonkez12/todo-app/internal/todo"
)

type State int

const (
	Idle State = iota
	Reconciling
	Reconciled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reconciling:
		return "reconciling"
	case Reconciled:
		return "reconciled"
	default:
		return "unknown"
	}
}

// Outcomes reported to Metrics
const (
	OutcomeSkipped          = "skipped"
	OutcomeFlagOnly         = "flag_only"
	OutcomeMigrated         = "migrated"
	OutcomeAlreadyPopulated = "already_populated"
	OutcomeFailed           = "failed"
)

// AccountAPI is the server half of reconciliation
type AccountAPI interface {
	PopulateNewUser(ctx context.Context, userID string, drafts []todo.Draft) ([]todo.Entry, error)
	DisableNewUserFlag(ctx context.Context, userID string) error
}

// LocalCache is the guest entry store being drained
type LocalCache interface {
	Read(ctx context.Context) ([]todo.Entry, error)
	Clear(ctx context.Context) error
}

type Metrics interface {
	RecordReconciliation(outcome string, migrated int)
}

type nopMetrics struct{}

func (nopMetrics) RecordReconciliation(string, int) {}

// Reconciler reacts to session changes. Runs are serialized.
type Reconciler struct {
	mu      sync.Mutex
	api     AccountAPI
	local   LocalCache
	logger  *logging.Logger
	metrics Metrics
	state   State
}

func New(api AccountAPI, local LocalCache, logger *logging.Logger, metrics Metrics) *Reconciler {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Reconciler{api: api, local: local, logger: logger, metrics: metrics, state: Idle}
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run handles one observed session. It returns the session the caller should
// keep: unchanged when there is nothing to do or the migration failed, and with
// the new-user flag cleared and migrated entries appended on success.
// After a failure the local cache is untouched and the next Run retries.
func (r *Reconciler) Run(ctx context.Context, sess session.Session) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !sess.IsNewUser {
		r.state = Reconciled
		r.metrics.RecordReconciliation(OutcomeSkipped, 0)
		return sess, nil
	}

	logger := r.logger.WithFields(map[string]any{"user_id": sess.ID})
	r.state = Idle

	local, err := r.readLocal(ctx)
	if err != nil {
		logger.Error("failed to read local cache", "error", err)
		r.metrics.RecordReconciliation(OutcomeFailed, 0)
		return sess, err
	}

	cleared := false
	if len(local) == 0 {
		if err := r.api.DisableNewUserFlag(ctx, sess.ID); err != nil {
			logger.Warn("failed to clear new user flag", "error", err)
			r.metrics.RecordReconciliation(OutcomeFailed, 0)
			return sess, err
		}
		r.state = Reconciled
		r.metrics.RecordReconciliation(OutcomeFlagOnly, 0)
		return sess.Apply(session.Update{IsNewUser: &cleared}), nil
	}

	r.state = Reconciling
	drafts := make([]todo.Draft, len(local))
	for i, e := range local {
		drafts[i] = e.Draft(sess.ID)
	}

	inserted, err := r.api.PopulateNewUser(ctx, sess.ID, drafts)
	if err != nil {
		if errors.Is(err, account.ErrAlreadyPopulated) {
			// another client migrated first; keep this client's guest entries
			logger.Warn("account already populated, local entries kept", "local_entries", len(local))
			r.state = Reconciled
			r.metrics.RecordReconciliation(OutcomeAlreadyPopulated, 0)
			return sess.Apply(session.Update{IsNewUser: &cleared}), nil
		}
		logger.Warn("guest entry migration failed", "error", err, "local_entries", len(local))
		r.state = Idle
		r.metrics.RecordReconciliation(OutcomeFailed, 0)
		return sess, err
	}

	if err := r.local.Clear(ctx); err != nil {
		// the account already holds the entries and its flag is clear, so a
		// leftover cache is never migrated again
		logger.Error("failed to clear local cache after migration", "error", err)
	}

	r.state = Reconciled
	r.metrics.RecordReconciliation(OutcomeMigrated, len(inserted))
	logger.Info("guest entries reconciled", "migrated", len(inserted))

	entries := append(todo.Clone(sess.TodoEntries), inserted...)
	return sess.Apply(session.Update{IsNewUser: &cleared, TodoEntries: entries}), nil
}

// readLocal treats a cache without storage as empty
func (r *Reconciler) readLocal(ctx context.Context) ([]todo.Entry, error) {
	if r.local == nil {
		return nil, nil
	}
	entries, err := r.local.Read(ctx)
	if errors.Is(err, localcache.ErrUnavailable) {
		return nil, nil
	}
	return entries, err
}
