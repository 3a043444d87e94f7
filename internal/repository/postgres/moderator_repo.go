package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

// ModeratorRepo implements ModeratorRepository using PostgreSQL.
type ModeratorRepo struct{ db *DB }

// NewModeratorRepo constructs a moderator repository.
func NewModeratorRepo(db *DB) *ModeratorRepo { return &ModeratorRepo{db: db} }

// Create inserts a new moderator row.
func (r *ModeratorRepo) Create(ctx context.Context, m *model.Moderator) error {
	const q = `
INSERT INTO moderators (id, username, pwd_hash, created_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, m.ID, m.Username, m.PwdHash, m.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return errs.FromContext(err)
}

const moderatorColumns = `SELECT id, username, pwd_hash, created_at FROM moderators`

// GetByID selects a moderator by ID.
func (r *ModeratorRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Moderator, error) {
	var m model.Moderator
	err := r.db.Pool.QueryRow(ctx, moderatorColumns+` WHERE id=$1`, id).
		Scan(&m.ID, &m.Username, &m.PwdHash, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// GetByUsername selects a moderator by username.
func (r *ModeratorRepo) GetByUsername(ctx context.Context, username string) (*model.Moderator, error) {
	var m model.Moderator
	err := r.db.Pool.QueryRow(ctx, moderatorColumns+` WHERE username=$1`, username).
		Scan(&m.ID, &m.Username, &m.PwdHash, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}
