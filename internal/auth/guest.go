package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/todo-app/internal/httputil"
	"github.com/redmonkez12/todo-app/internal/localcache"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/reconcile"
	"github.com/redmonkez12/todo-app/internal/session"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// GuestCaches opens the local cache belonging to a guest id
type GuestCaches func(guestID string) *localcache.Cache

// GuestClaimer migrates a browser guest's server-hosted cache into the
// account it just logged in to
type GuestClaimer struct {
	accounts reconcile.AccountAPI
	caches   GuestCaches
	logger   *logging.Logger
	metrics  reconcile.Metrics
}

func NewGuestClaimer(accounts reconcile.AccountAPI, caches GuestCaches, logger *logging.Logger, metrics reconcile.Metrics) *GuestClaimer {
	return &GuestClaimer{accounts: accounts, caches: caches, logger: logger, metrics: metrics}
}

// Claim runs one reconciliation for sess against guestID's cache. Concurrent
// claims for the same account are resolved by the store: only one populates.
func (g *GuestClaimer) Claim(ctx context.Context, guestID string, sess session.Session) (session.Session, error) {
	rec := reconcile.New(g.accounts, g.caches(guestID), g.logger, g.metrics)
	return rec.Run(ctx, sess)
}

// GuestHandler serves the cookie-keyed guest cache used by browsers
type GuestHandler struct {
	caches       GuestCaches
	isProduction bool
	ttl          time.Duration
}

func NewGuestHandler(caches GuestCaches, isProduction bool, ttl time.Duration) *GuestHandler {
	return &GuestHandler{caches: caches, isProduction: isProduction, ttl: ttl}
}

// guestID returns the caller's guest id, issuing a new one when absent or malformed
func (h *GuestHandler) guestID(w http.ResponseWriter, r *http.Request) string {
	if id, err := GetGuestIDFromCookie(r); err == nil {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	id := uuid.NewString()
	SetGuestCookie(w, id, h.isProduction, h.ttl)
	return id
}

// ListEntries returns the guest's cached entries
// @Summary      List guest entries
// @Description  Read the entries cached for the guest identified by the guest_id cookie. A new guest id is issued when none is present.
// @Tags         guest
// @Produce      json
// @Success      200 {array} todo.Entry
// @Failure      503 {object} ErrorResponse "Guest cache unavailable"
// @Router       /guest/entries [get]
func (h *GuestHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	id := h.guestID(w, r)

	entries, err := h.caches(id).Read(r.Context())
	if err != nil {
		h.cacheError(w, logger, err)
		return
	}
	respondJSON(w, entries, http.StatusOK)
}

// ReplaceEntries overwrites the guest's cached entries
// @Summary      Replace guest entries
// @Description  Replace the whole guest entry sequence. Every entry must be valid and owned by the guest user.
// @Tags         guest
// @Accept       json
// @Produce      json
// @Param        request body []todo.Entry true "Complete entry sequence"
// @Success      200 {array} todo.Entry
// @Failure      400 {object} ErrorResponse "Invalid entries"
// @Failure      503 {object} ErrorResponse "Guest cache unavailable"
// @Router       /guest/entries [put]
func (h *GuestHandler) ReplaceEntries(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var entries []todo.Entry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		logger.Warn("invalid guest entries body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if err := validateGuestEntries(entries); err != nil {
		logger.Warn("guest entries rejected", "error", err.Error())
		respondError(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	id := h.guestID(w, r)
	if err := h.caches(id).Write(r.Context(), entries); err != nil {
		h.cacheError(w, logger, err)
		return
	}
	if entries == nil {
		entries = []todo.Entry{}
	}
	respondJSON(w, entries, http.StatusOK)
}

func (h *GuestHandler) cacheError(w http.ResponseWriter, logger *logging.Logger, err error) {
	if errors.Is(err, localcache.ErrUnavailable) {
		respondError(w, "guest cache unavailable", httputil.CodeGuestUnavailable, http.StatusServiceUnavailable)
		return
	}
	logger.Error("guest cache failed", "error", err.Error())
	respondError(w, "guest cache failed", httputil.CodeInternalError, http.StatusInternalServerError)
}

func validateGuestEntries(entries []todo.Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.UserID != todo.GuestUserID {
			return fmt.Errorf("entry %d: %w: userId must be %q", i, todo.ErrValidation, todo.GuestUserID)
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("entry %d: %w: duplicate id %s", i, todo.ErrValidation, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}
