package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/campus-board/internal/model"
)

// ModeratorRepository provides access to moderator accounts.
type ModeratorRepository interface {
	// Create inserts a new moderator; ErrAlreadyExists when the username is taken.
	Create(ctx context.Context, m *model.Moderator) error
	// GetByID loads a moderator by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Moderator, error)
	// GetByUsername loads a moderator by username.
	GetByUsername(ctx context.Context, username string) (*model.Moderator, error)
}
