package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/auth"
	"github.com/redmonkez12/todo-app/internal/httputil"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// Store is the account store as seen by the procedures
type Store interface {
	CreateTodoEntry(ctx context.Context, draft todo.Draft) (todo.Entry, error)
	ReadTodoEntries(ctx context.Context, userID string) ([]todo.Entry, error)
	ReadTodoEntry(ctx context.Context, userID, id string) (todo.Entry, error)
	UpdateTodoEntry(ctx context.Context, id string, patch todo.Patch) (todo.Entry, error)
	DeleteTodoEntry(ctx context.Context, id, userID string) error
	PopulateNewUser(ctx context.Context, userID string, drafts []todo.Draft) ([]todo.Entry, error)
	DisableNewUserFlag(ctx context.Context, userID string) error
	EntryOwner(ctx context.Context, id string) (string, error)
}

// Handler serves the entry procedures. Every procedure requires an
// authenticated caller and only touches the caller's own data.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Routes mounts one POST route per procedure
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/"+ProcCreateTodo, h.CreateTodo)
	r.Post("/"+ProcReadTodos, h.ReadTodos)
	r.Post("/"+ProcUpdateTodo, h.UpdateTodo)
	r.Post("/"+ProcDeleteTodo, h.DeleteTodo)
	r.Post("/"+ProcPopulateNewUser, h.PopulateNewUser)
	r.Post("/"+ProcDisableNewUserFlag, h.DisableNewUserFlag)
	return r
}

// CreateTodo stores a new entry
// @Summary      Create entry
// @Tags         todos
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body EntryInput true "New entry"
// @Success      200 {object} todo.Entry
// @Failure      400 {object} httputil.ErrorResponse
// @Failure      403 {object} httputil.ErrorResponse
// @Router       /rpc/todos.create [post]
func (h *Handler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req EntryInput
	if !decode(w, r, &req) {
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}

	entry, err := h.store.CreateTodoEntry(r.Context(), req.Draft())
	if err != nil {
		writeError(w, r, ProcCreateTodo, err)
		return
	}
	httputil.RespondJSON(w, entry, http.StatusOK)
}

// ReadTodos returns one entry when id is given, otherwise all of the user's entries
// @Summary      Read entries
// @Tags         todos
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ReadRequest true "User and optional entry id"
// @Success      200 {array} todo.Entry
// @Failure      403 {object} httputil.ErrorResponse
// @Failure      404 {object} httputil.ErrorResponse
// @Router       /rpc/todos.read [post]
func (h *Handler) ReadTodos(w http.ResponseWriter, r *http.Request) {
	var req ReadRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}

	if req.ID != "" {
		entry, err := h.store.ReadTodoEntry(r.Context(), req.UserID, req.ID)
		if err != nil {
			writeError(w, r, ProcReadTodos, err)
			return
		}
		httputil.RespondJSON(w, entry, http.StatusOK)
		return
	}

	entries, err := h.store.ReadTodoEntries(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, ProcReadTodos, err)
		return
	}
	httputil.RespondJSON(w, entries, http.StatusOK)
}

// UpdateTodo applies a partial update to an entry the caller owns
// @Summary      Update entry
// @Tags         todos
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateRequest true "Entry id and changed fields"
// @Success      200 {object} todo.Entry
// @Failure      400 {object} httputil.ErrorResponse
// @Failure      403 {object} httputil.ErrorResponse
// @Failure      404 {object} httputil.ErrorResponse
// @Failure      500 {object} httputil.ErrorResponse
// @Router       /rpc/todos.update [post]
func (h *Handler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !decode(w, r, &req) {
		return
	}
	patch, err := req.Patch()
	if err != nil {
		writeError(w, r, ProcUpdateTodo, err)
		return
	}

	owner, err := h.store.EntryOwner(r.Context(), req.ID)
	if errors.Is(err, account.ErrEntryNotFound) {
		// no row at all is a storage failure, as in Store.UpdateTodoEntry;
		// 404 is left for rows the cached account does not hold
		err = fmt.Errorf("%w: no entry with id %s", account.ErrDatabase, req.ID)
	}
	if err != nil {
		writeError(w, r, ProcUpdateTodo, err)
		return
	}
	if !h.authorize(w, r, owner) {
		return
	}

	entry, err := h.store.UpdateTodoEntry(r.Context(), req.ID, patch)
	if err != nil {
		writeError(w, r, ProcUpdateTodo, err)
		return
	}
	httputil.RespondJSON(w, entry, http.StatusOK)
}

// DeleteTodo removes an entry. Deleting a missing entry succeeds.
// @Summary      Delete entry
// @Tags         todos
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body DeleteRequest true "Entry and owner"
// @Success      200 {object} OKResponse
// @Failure      403 {object} httputil.ErrorResponse
// @Router       /rpc/todos.delete [post]
func (h *Handler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}

	owner, err := h.store.EntryOwner(r.Context(), req.ID)
	switch {
	case errors.Is(err, account.ErrEntryNotFound):
	case err != nil:
		writeError(w, r, ProcDeleteTodo, err)
		return
	case owner != req.UserID:
		writeError(w, r, ProcDeleteTodo, ErrForbidden)
		return
	}

	if err := h.store.DeleteTodoEntry(r.Context(), req.ID, req.UserID); err != nil {
		writeError(w, r, ProcDeleteTodo, err)
		return
	}
	httputil.RespondJSON(w, OKResponse{OK: true}, http.StatusOK)
}

// PopulateNewUser migrates a batch of guest entries into a new account
// @Summary      Populate new user
// @Description  Insert guest entries and clear the new-user flag in one step. Fails with ALREADY_POPULATED once the flag is clear.
// @Tags         user
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body PopulateRequest true "Entries to migrate"
// @Success      200 {array} todo.Entry
// @Failure      400 {object} httputil.ErrorResponse
// @Failure      409 {object} httputil.ErrorResponse
// @Router       /rpc/user.populateNewUser [post]
func (h *Handler) PopulateNewUser(w http.ResponseWriter, r *http.Request) {
	var req PopulateRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}

	if req.TodoEntries == nil {
		writeError(w, r, ProcPopulateNewUser, fmt.Errorf("%w: todoEntries is required", todo.ErrValidation))
		return
	}

	drafts := make([]todo.Draft, len(req.TodoEntries))
	for i, in := range req.TodoEntries {
		drafts[i] = in.Draft()
	}

	inserted, err := h.store.PopulateNewUser(r.Context(), req.UserID, drafts)
	if err != nil {
		writeError(w, r, ProcPopulateNewUser, err)
		return
	}

	logging.GetLoggerFromContext(r.Context()).Info("new user populated", "user_id", req.UserID, "entries", len(inserted))
	httputil.RespondJSON(w, inserted, http.StatusOK)
}

// DisableNewUserFlag clears the new-user flag
// @Summary      Disable new-user flag
// @Tags         user
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UserRequest true "User"
// @Success      200 {object} OKResponse
// @Failure      403 {object} httputil.ErrorResponse
// @Router       /rpc/user.disableNewUserFlag [post]
func (h *Handler) DisableNewUserFlag(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}

	if err := h.store.DisableNewUserFlag(r.Context(), req.UserID); err != nil {
		writeError(w, r, ProcDisableNewUserFlag, err)
		return
	}
	httputil.RespondJSON(w, OKResponse{OK: true}, http.StatusOK)
}

// authorize checks that userID is the authenticated caller
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, userID string) bool {
	caller, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return false
	}
	if userID == "" || userID != caller.String() {
		logging.GetLoggerFromContext(r.Context()).Warn("caller does not own target", "caller", caller, "target_user", userID)
		httputil.RespondErrorWithCode(w, "forbidden", httputil.CodeForbidden, http.StatusForbidden)
		return false
	}
	return true
}

// decode rejects fields the procedure does not know
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("invalid rpc request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, proc string, err error) {
	status, code := statusFor(err)
	logger := logging.GetLoggerFromContext(r.Context())

	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("procedure failed", "procedure", proc, "error", message)
		message = fmt.Sprintf("%s failed", proc)
	} else {
		logger.Warn("procedure rejected", "procedure", proc, "code", code, "error", message)
	}
	httputil.RespondErrorWithCode(w, message, code, status)
}
