package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

// ContentRepo implements ContentRepository using PostgreSQL.
type ContentRepo struct{ db *DB }

// NewContentRepo constructs a content repository.
func NewContentRepo(db *DB) *ContentRepo { return &ContentRepo{db: db} }

// CreatePost inserts a new post row.
func (r *ContentRepo) CreatePost(ctx context.Context, p *model.Post) error {
	const q = `
INSERT INTO conf_posts (id, title, body, token_hash, score, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, p.ID, p.Title, p.Body, string(p.TokenHash), p.Score, p.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return errs.FromContext(err)
}

// CreateComment inserts a comment only while its post exists.
func (r *ContentRepo) CreateComment(ctx context.Context, c *model.Comment) error {
	const q = `
INSERT INTO conf_comments (id, post_id, body, token_hash, score, created_at)
SELECT $1, $2, $3, $4, $5, $6
WHERE EXISTS (SELECT 1 FROM conf_posts WHERE id=$2)`
	tag, err := r.db.Pool.Exec(ctx, q, c.ID, c.PostID, c.Body, string(c.TokenHash), c.Score, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return errs.FromContext(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %s: %w", c.PostID, errs.ErrNotFound)
	}
	return nil
}

const postColumns = `
SELECT p.id, p.title, p.body, p.token_hash, p.score, p.created_at,
       (SELECT count(*) FROM conf_comments c WHERE c.post_id = p.id)
FROM conf_posts p`

func scanPost(row pgx.Row) (model.PostSummary, error) {
	var (
		p    model.PostSummary
		hash string
	)
	err := row.Scan(&p.ID, &p.Title, &p.Body, &hash, &p.Score, &p.CreatedAt, &p.Comments)
	p.TokenHash = model.TokenHash(hash)
	return p, err
}

// GetPost selects a post with its comment count.
func (r *ContentRepo) GetPost(ctx context.Context, id uuid.UUID) (*model.PostSummary, error) {
	p, err := scanPost(r.db.Pool.QueryRow(ctx, postColumns+` WHERE p.id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ListPosts returns posts created at or after since, newest first.
func (r *ContentRepo) ListPosts(ctx context.Context, limit int, since time.Time) ([]model.PostSummary, error) {
	rows, err := r.db.Pool.Query(ctx, postColumns+`
WHERE p.created_at >= $1
ORDER BY p.created_at DESC, p.id DESC
LIMIT $2`, since, limit)
	if err != nil {
		return nil, errs.FromContext(err)
	}
	defer rows.Close()

	var out []model.PostSummary
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, errs.FromContext(rows.Err())
}

const commentColumns = `SELECT id, post_id, body, token_hash, score, created_at FROM conf_comments`

func scanComment(row pgx.Row) (model.Comment, error) {
	var (
		c    model.Comment
		hash string
	)
	err := row.Scan(&c.ID, &c.PostID, &c.Body, &hash, &c.Score, &c.CreatedAt)
	c.TokenHash = model.TokenHash(hash)
	return c, err
}

// GetComment selects a single comment.
func (r *ContentRepo) GetComment(ctx context.Context, id uuid.UUID) (*model.Comment, error) {
	c, err := scanComment(r.db.Pool.QueryRow(ctx, commentColumns+` WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListComments returns a post's comments oldest first. The post may be gone.
func (r *ContentRepo) ListComments(ctx context.Context, postID uuid.UUID) ([]model.Comment, error) {
	rows, err := r.db.Pool.Query(ctx, commentColumns+` WHERE post_id=$1 ORDER BY created_at ASC, id ASC`, postID)
	if err != nil {
		return nil, errs.FromContext(err)
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, errs.FromContext(rows.Err())
}

// OwnerHash reads the subject's token hash.
func (r *ContentRepo) OwnerHash(ctx context.Context, s model.Subject) (model.TokenHash, error) {
	t, err := table(s.Type)
	if err != nil {
		return "", err
	}
	var h string
	if err := r.db.Pool.QueryRow(ctx, `SELECT token_hash FROM `+t+` WHERE id=$1`, s.ID).Scan(&h); err != nil {
		return "", notFound(err)
	}
	return model.TokenHash(h), nil
}

// AppendVote applies the vote to the subject score and logs it in one transaction.
func (r *ContentRepo) AppendVote(ctx context.Context, v *model.Vote) (score int64, err error) {
	t, err := table(v.Subject.Type)
	if err != nil {
		return 0, err
	}
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		upd := `UPDATE ` + t + ` SET score = score + $2 WHERE id=$1 RETURNING score`
		if err := tx.QueryRow(ctx, upd, v.Subject.ID, int64(v.Value)).Scan(&score); err != nil {
			return notFound(err)
		}
		const ins = `
INSERT INTO conf_votes (id, subject_type, subject_id, token_hash, value, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
		_, err := tx.Exec(ctx, ins, v.ID, string(v.Subject.Type), v.Subject.ID, string(v.TokenHash), v.Value, v.CreatedAt)
		return errs.FromContext(err)
	})
	if err != nil {
		return 0, err
	}
	return score, nil
}

// AppendFlag logs a flag against an existing subject.
func (r *ContentRepo) AppendFlag(ctx context.Context, f *model.Flag) error {
	t, err := table(f.Subject.Type)
	if err != nil {
		return err
	}
	q := `
INSERT INTO conf_flags (id, subject_type, subject_id, token_hash, reason, created_at)
SELECT $1, $2, $3, $4, $5, $6
WHERE EXISTS (SELECT 1 FROM ` + t + ` WHERE id=$3)`
	tag, err := r.db.Pool.Exec(ctx, q, f.ID, string(f.Subject.Type), f.Subject.ID, string(f.TokenHash), f.Reason, f.CreatedAt)
	if err != nil {
		return errs.FromContext(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", f.Subject, errs.ErrNotFound)
	}
	return nil
}

// ListFlags returns the most recent flags first.
func (r *ContentRepo) ListFlags(ctx context.Context, limit int) ([]model.Flag, error) {
	const q = `
SELECT id, subject_type, subject_id, token_hash, reason, created_at
FROM conf_flags
ORDER BY created_at DESC, id DESC
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, errs.FromContext(err)
	}
	defer rows.Close()

	var out []model.Flag
	for rows.Next() {
		var (
			f        model.Flag
			st, hash string
		)
		if err := rows.Scan(&f.ID, &st, &f.Subject.ID, &hash, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Subject.Type = model.SubjectType(st)
		f.TokenHash = model.TokenHash(hash)
		out = append(out, f)
	}
	return out, errs.FromContext(rows.Err())
}

// DeleteOwned locks the row, re-checks the stored hash and deletes it only on match.
func (r *ContentRepo) DeleteOwned(ctx context.Context, s model.Subject, owner model.TokenHash) (deleted bool, err error) {
	t, err := table(s.Type)
	if err != nil {
		return false, err
	}
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		var stored string
		err := tx.QueryRow(ctx, `SELECT token_hash FROM `+t+` WHERE id=$1 FOR UPDATE`, s.ID).Scan(&stored)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errs.FromContext(err)
		}
		if stored != string(owner) {
			return errs.ErrUnauthorized
		}
		tag, err := tx.Exec(ctx, `DELETE FROM `+t+` WHERE id=$1 AND token_hash=$2`, s.ID, stored)
		if err != nil {
			return errs.FromContext(err)
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// Delete removes the subject regardless of owner.
func (r *ContentRepo) Delete(ctx context.Context, s model.Subject) (bool, error) {
	t, err := table(s.Type)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM `+t+` WHERE id=$1`, s.ID)
	if err != nil {
		return false, errs.FromContext(err)
	}
	return tag.RowsAffected() > 0, nil
}
