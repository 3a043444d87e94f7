package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

// ContentRepo implements ContentRepository on gorm.
type ContentRepo struct{ db *gorm.DB }

// postWithCount is a feed row: post columns plus the comment count.
type postWithCount struct {
	ID        string
	Title     string
	Body      string
	TokenHash string
	Score     int64
	CreatedAt time.Time
	Comments  int64
}

func (p postWithCount) summary() model.PostSummary {
	return model.PostSummary{
		Post: model.Post{
			ID:        parseID(p.ID),
			Title:     p.Title,
			Body:      p.Body,
			TokenHash: model.TokenHash(p.TokenHash),
			Score:     p.Score,
			CreatedAt: p.CreatedAt.UTC(),
		},
		Comments: p.Comments,
	}
}

func (c commentRow) toModel() model.Comment {
	return model.Comment{
		ID:        parseID(c.ID),
		PostID:    parseID(c.PostID),
		Body:      c.Body,
		TokenHash: model.TokenHash(c.TokenHash),
		Score:     c.Score,
		CreatedAt: c.CreatedAt.UTC(),
	}
}

func (r *ContentRepo) CreatePost(ctx context.Context, p *model.Post) error {
	row := postRow{
		ID:        p.ID.String(),
		Title:     p.Title,
		Body:      p.Body,
		TokenHash: string(p.TokenHash),
		Score:     p.Score,
		CreatedAt: p.CreatedAt.UTC(),
	}
	return mapErr(r.db.WithContext(ctx).Create(&row).Error)
}

func (r *ContentRepo) CreateComment(ctx context.Context, c *model.Comment) error {
	return mapErr(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&postRow{}).Where("id = ?", c.PostID.String()).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("post %s: %w", c.PostID, errs.ErrNotFound)
		}
		return tx.Create(&commentRow{
			ID:        c.ID.String(),
			PostID:    c.PostID.String(),
			Body:      c.Body,
			TokenHash: string(c.TokenHash),
			Score:     c.Score,
			CreatedAt: c.CreatedAt.UTC(),
		}).Error
	}))
}

func (r *ContentRepo) posts(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("conf_posts AS p").
		Select("p.id, p.title, p.body, p.token_hash, p.score, p.created_at, " +
			"(SELECT count(*) FROM conf_comments c WHERE c.post_id = p.id) AS comments")
}

func (r *ContentRepo) GetPost(ctx context.Context, id uuid.UUID) (*model.PostSummary, error) {
	var rows []postWithCount
	if err := r.posts(ctx).Where("p.id = ?", id.String()).Limit(1).Scan(&rows).Error; err != nil {
		return nil, mapErr(err)
	}
	if len(rows) == 0 {
		return nil, errs.ErrNotFound
	}
	p := rows[0].summary()
	return &p, nil
}

func (r *ContentRepo) ListPosts(ctx context.Context, limit int, since time.Time) ([]model.PostSummary, error) {
	var rows []postWithCount
	err := r.posts(ctx).
		Where("p.created_at >= ?", since.UTC()).
		Order("p.created_at DESC, p.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]model.PostSummary, 0, len(rows))
	for _, p := range rows {
		out = append(out, p.summary())
	}
	return out, nil
}

func (r *ContentRepo) GetComment(ctx context.Context, id uuid.UUID) (*model.Comment, error) {
	var row commentRow
	if err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error; err != nil {
		return nil, mapErr(err)
	}
	c := row.toModel()
	return &c, nil
}

func (r *ContentRepo) ListComments(ctx context.Context, postID uuid.UUID) ([]model.Comment, error) {
	var rows []commentRow
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID.String()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]model.Comment, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.toModel())
	}
	return out, nil
}

func (r *ContentRepo) OwnerHash(ctx context.Context, s model.Subject) (model.TokenHash, error) {
	row, err := subjectRow(s.Type)
	if err != nil {
		return "", err
	}
	var hashes []string
	if err := r.db.WithContext(ctx).Model(row).Where("id = ?", s.ID.String()).Limit(1).Pluck("token_hash", &hashes).Error; err != nil {
		return "", mapErr(err)
	}
	if len(hashes) == 0 {
		return "", errs.ErrNotFound
	}
	return model.TokenHash(hashes[0]), nil
}

func (r *ContentRepo) AppendVote(ctx context.Context, v *model.Vote) (int64, error) {
	row, err := subjectRow(v.Subject.Type)
	if err != nil {
		return 0, err
	}
	var score int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(row).Where("id = ?", v.Subject.ID.String()).
			UpdateColumn("score", gorm.Expr("score + ?", v.Value))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s: %w", v.Subject, errs.ErrNotFound)
		}
		var scores []int64
		if err := tx.Model(row).Where("id = ?", v.Subject.ID.String()).Pluck("score", &scores).Error; err != nil {
			return err
		}
		if len(scores) == 1 {
			score = scores[0]
		}
		return tx.Create(&voteRow{
			ID:          v.ID.String(),
			SubjectType: string(v.Subject.Type),
			SubjectID:   v.Subject.ID.String(),
			TokenHash:   string(v.TokenHash),
			Value:       v.Value,
			CreatedAt:   v.CreatedAt.UTC(),
		}).Error
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return score, nil
}

func (r *ContentRepo) AppendFlag(ctx context.Context, f *model.Flag) error {
	row, err := subjectRow(f.Subject.Type)
	if err != nil {
		return err
	}
	return mapErr(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(row).Where("id = ?", f.Subject.ID.String()).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", f.Subject, errs.ErrNotFound)
		}
		return tx.Create(&flagRow{
			ID:          f.ID.String(),
			SubjectType: string(f.Subject.Type),
			SubjectID:   f.Subject.ID.String(),
			TokenHash:   string(f.TokenHash),
			Reason:      f.Reason,
			CreatedAt:   f.CreatedAt.UTC(),
		}).Error
	}))
}

func (r *ContentRepo) ListFlags(ctx context.Context, limit int) ([]model.Flag, error) {
	var rows []flagRow
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, mapErr(err)
	}
	out := make([]model.Flag, 0, len(rows))
	for _, f := range rows {
		out = append(out, model.Flag{
			ID:        parseID(f.ID),
			Subject:   model.Subject{Type: model.SubjectType(f.SubjectType), ID: parseID(f.SubjectID)},
			TokenHash: model.TokenHash(f.TokenHash),
			Reason:    f.Reason,
			CreatedAt: f.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// DeleteOwned deletes the row only while token_hash still equals owner.
// A surviving row with another hash is reported as ErrUnauthorized.
func (r *ContentRepo) DeleteOwned(ctx context.Context, s model.Subject, owner model.TokenHash) (bool, error) {
	row, err := subjectRow(s.Type)
	if err != nil {
		return false, err
	}
	var deleted bool
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND token_hash = ?", s.ID.String(), string(owner)).Delete(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			deleted = true
			return nil
		}
		var n int64
		if err := tx.Model(row).Where("id = ?", s.ID.String()).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errs.ErrUnauthorized
		}
		return nil
	})
	if err != nil && !errors.Is(err, errs.ErrUnauthorized) {
		return false, mapErr(err)
	}
	return deleted, err
}

func (r *ContentRepo) Delete(ctx context.Context, s model.Subject) (bool, error) {
	row, err := subjectRow(s.Type)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Where("id = ?", s.ID.String()).Delete(row)
	if res.Error != nil {
		return false, mapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}
