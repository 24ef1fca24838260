package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/todo-app/internal/database"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// Postgres SQLSTATE codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository is the persistent storage behind the Store
type Repository interface {
	FindUser(ctx context.Context, lookup Lookup) (User, error)
	ListEntries(ctx context.Context, userID string) ([]todo.Entry, error)
	CreateUser(ctx context.Context, email, passwordHash string) (User, error)
	ClearNewUserFlag(ctx context.Context, userID string) error
	// PopulateEntries clears the new-user flag and inserts drafts in one
	// transaction. ErrAlreadyPopulated when the flag was already clear.
	PopulateEntries(ctx context.Context, userID string, drafts []todo.Draft) ([]todo.Entry, error)
	InsertEntry(ctx context.Context, draft todo.Draft) (todo.Entry, error)
	UpdateEntry(ctx context.Context, id string, patch todo.Patch) (todo.Entry, error)
	DeleteEntry(ctx context.Context, id, userID string) error
	EntryOwner(ctx context.Context, id string) (string, error)
}

// BunRepository stores accounts in Postgres through bun
type BunRepository struct {
	db  *bun.DB
	now func() time.Time
}

func NewBunRepository(db *bun.DB) *BunRepository {
	return &BunRepository{db: db, now: time.Now}
}

// FindUser retrieves a user by id, or by email when no id is given
func (r *BunRepository) FindUser(ctx context.Context, lookup Lookup) (User, error) {
	dbUser := new(database.User)
	q := r.db.NewSelect().Model(dbUser)

	switch {
	case lookup.ID != "":
		id, err := uuid.Parse(lookup.ID)
		if err != nil {
			return User{}, ErrUserNotFound
		}
		q = q.Where("id = ?", id)
	case lookup.Email != "":
		q = q.Where("email = ?", lookup.Email)
	default:
		return User{}, ErrUserNotFound
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// ListEntries returns a user's entries in creation order
func (r *BunRepository) ListEntries(ctx context.Context, userID string) ([]todo.Entry, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	var rows []database.Entry
	err = r.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", uid).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	entries := make([]todo.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, mapDBEntryToModel(&rows[i]))
	}
	return entries, nil
}

// CreateUser inserts a new user with the new-user flag set
func (r *BunRepository) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	dbUser := &database.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    r.now().UTC(),
		IsNewUser:    true,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// ClearNewUserFlag sets is_new_user to false. Clearing an already clear flag succeeds.
func (r *BunRepository) ClearNewUserFlag(ctx context.Context, userID string) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return ErrUserNotFound
	}

	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("is_new_user = ?", false).
		Where("id = ?", uid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear new user flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *BunRepository) PopulateEntries(ctx context.Context, userID string, drafts []todo.Draft) ([]todo.Entry, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	rows := make([]database.Entry, len(drafts))
	base := r.now().UTC().Truncate(time.Millisecond)
	for i, d := range drafts {
		// distinct timestamps keep the batch in submission order
		rows[i] = newDBEntry(uid, d, base.Add(time.Duration(i)*time.Millisecond))
	}

	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewUpdate().
			Model((*database.User)(nil)).
			Set("is_new_user = ?", false).
			Where("id = ?", uid).
			Where("is_new_user = ?", true).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear new user flag: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			exists, err := tx.NewSelect().
				Model((*database.User)(nil)).
				Where("id = ?", uid).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("failed to check user: %w", err)
			}
			if !exists {
				return ErrUserNotFound
			}
			return ErrAlreadyPopulated
		}

		if len(rows) == 0 {
			return nil
		}

		if _, err := tx.NewInsert().Model(&rows).Returning("*").Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]todo.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, mapDBEntryToModel(&rows[i]))
	}
	return entries, nil
}

// InsertEntry stores a single entry for draft.UserID
func (r *BunRepository) InsertEntry(ctx context.Context, draft todo.Draft) (todo.Entry, error) {
	uid, err := uuid.Parse(draft.UserID)
	if err != nil {
		return todo.Entry{}, ErrUserNotFound
	}

	row := newDBEntry(uid, draft, r.now().UTC().Truncate(time.Millisecond))
	result, err := r.db.NewInsert().
		Model(&row).
		Returning("*").
		Exec(ctx)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
			return todo.Entry{}, ErrUserNotFound
		}
		return todo.Entry{}, fmt.Errorf("failed to insert entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return todo.Entry{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return todo.Entry{}, fmt.Errorf("%w: insert returned no row", ErrDatabase)
	}

	return mapDBEntryToModel(&row), nil
}

// UpdateEntry applies the set fields of patch. ErrEntryNotFound when no row has id.
func (r *BunRepository) UpdateEntry(ctx context.Context, id string, patch todo.Patch) (todo.Entry, error) {
	if patch.IsEmpty() {
		return todo.Entry{}, fmt.Errorf("%w: empty patch", todo.ErrValidation)
	}
	eid, err := uuid.Parse(id)
	if err != nil {
		return todo.Entry{}, ErrEntryNotFound
	}

	row := new(database.Entry)
	q := r.db.NewUpdate().Model(row).Where("id = ?", eid)
	if patch.Title != nil {
		q = q.Set("title = ?", *patch.Title)
	}
	if patch.Description != nil {
		q = q.Set("description = ?", *patch.Description)
	}
	if patch.Completed != nil {
		q = q.Set("completed = ?", *patch.Completed)
	}
	if patch.Priority != nil {
		q = q.Set("priority = ?", string(*patch.Priority))
	}
	switch {
	case patch.ClearDueDate:
		q = q.Set("due_date = NULL")
	case patch.DueDate != nil:
		q = q.Set("due_date = ?", time.UnixMilli(*patch.DueDate).UTC())
	}

	if err := q.Returning("*").Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return todo.Entry{}, ErrEntryNotFound
		}
		return todo.Entry{}, fmt.Errorf("failed to update entry: %w", err)
	}

	return mapDBEntryToModel(row), nil
}

// DeleteEntry removes the entry if userID owns it. Deleting a missing entry is not an error.
func (r *BunRepository) DeleteEntry(ctx context.Context, id, userID string) error {
	eid, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}

	_, err = r.db.NewDelete().
		Model((*database.Entry)(nil)).
		Where("id = ?", eid).
		Where("user_id = ?", uid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	return nil
}

// EntryOwner returns the id of the user owning entry id
func (r *BunRepository) EntryOwner(ctx context.Context, id string) (string, error) {
	eid, err := uuid.Parse(id)
	if err != nil {
		return "", ErrEntryNotFound
	}

	var owner uuid.UUID
	err = r.db.NewSelect().
		Model((*database.Entry)(nil)).
		Column("user_id").
		Where("id = ?", eid).
		Scan(ctx, &owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrEntryNotFound
		}
		return "", fmt.Errorf("failed to get entry owner: %w", err)
	}

	return owner.String(), nil
}

func newDBEntry(userID uuid.UUID, d todo.Draft, createdAt time.Time) database.Entry {
	row := database.Entry{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		CreatedAt:   createdAt,
		Priority:    string(d.Priority),
	}
	if d.DueDate != nil {
		due := time.UnixMilli(*d.DueDate).UTC()
		row.DueDate = &due
	}
	return row
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) User {
	return User{
		ID:           dbu.ID.String(),
		Email:        dbu.Email,
		PasswordHash: dbu.PasswordHash,
		CreatedAt:    dbu.CreatedAt,
		IsNewUser:    dbu.IsNewUser,
	}
}

// mapDBEntryToModel converts database model to domain model
func mapDBEntryToModel(dbe *database.Entry) todo.Entry {
	e := todo.Entry{
		ID:          dbe.ID.String(),
		UserID:      dbe.UserID.String(),
		Title:       dbe.Title,
		Description: dbe.Description,
		Completed:   dbe.Completed,
		CreatedAt:   dbe.CreatedAt.UnixMilli(),
		Priority:    todo.Priority(dbe.Priority),
	}
	if dbe.DueDate != nil {
		ms := dbe.DueDate.UnixMilli()
		e.DueDate = &ms
	}
	return e
}
