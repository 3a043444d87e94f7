package sqlite

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"

	"github.com/and161185/campus-board/internal/model"
)

// ModeratorRepo implements ModeratorRepository on gorm.
type ModeratorRepo struct{ db *gorm.DB }

func (r *ModeratorRepo) Create(ctx context.Context, m *model.Moderator) error {
	return mapErr(r.db.WithContext(ctx).Create(&moderatorRow{
		ID:        m.ID.String(),
		Username:  m.Username,
		PwdHash:   m.PwdHash,
		CreatedAt: m.CreatedAt.UTC(),
	}).Error)
}

func (r *ModeratorRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Moderator, error) {
	return r.first(ctx, "id = ?", id.String())
}

func (r *ModeratorRepo) GetByUsername(ctx context.Context, username string) (*model.Moderator, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *ModeratorRepo) first(ctx context.Context, where string, arg any) (*model.Moderator, error) {
	var row moderatorRow
	if err := r.db.WithContext(ctx).Where(where, arg).First(&row).Error; err != nil {
		return nil, mapErr(err)
	}
	return &model.Moderator{
		ID:        parseID(row.ID),
		Username:  row.Username,
		PwdHash:   row.PwdHash,
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}
