// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/campus-board/internal/model"
)

// ContentRepository stores posts, comments and the append-only vote and flag logs.
type ContentRepository interface {
	// CreatePost inserts a new post.
	CreatePost(ctx context.Context, p *model.Post) error
	// CreateComment inserts a comment; ErrNotFound when the post does not exist.
	CreateComment(ctx context.Context, c *model.Comment) error

	// GetPost loads a post with its comment count.
	GetPost(ctx context.Context, id uuid.UUID) (*model.PostSummary, error)
	// GetComment loads a single comment.
	GetComment(ctx context.Context, id uuid.UUID) (*model.Comment, error)
	// ListPosts returns up to limit posts created at or after since, newest first, with comment counts.
	ListPosts(ctx context.Context, limit int, since time.Time) ([]model.PostSummary, error)
	// ListComments returns comments of a post, oldest first. Works for orphaned comments.
	ListComments(ctx context.Context, postID uuid.UUID) ([]model.Comment, error)

	// OwnerHash reads the stored token hash of a subject straight from storage.
	OwnerHash(ctx context.Context, s model.Subject) (model.TokenHash, error)

	// AppendVote records the vote and adds its value to the subject score in one
	// transaction, returning the new score. ErrNotFound when the subject is gone.
	AppendVote(ctx context.Context, v *model.Vote) (int64, error)
	// AppendFlag records a flag. ErrNotFound when the subject is gone.
	AppendFlag(ctx context.Context, f *model.Flag) error
	// ListFlags returns the most recent flags first.
	ListFlags(ctx context.Context, limit int) ([]model.Flag, error)

	// DeleteOwned hard-deletes the subject only while its stored hash equals owner.
	// deleted is false when no row matched.
	DeleteOwned(ctx context.Context, s model.Subject, owner model.TokenHash) (deleted bool, err error)
	// Delete hard-deletes the subject regardless of ownership (moderation path).
	Delete(ctx context.Context, s model.Subject) (deleted bool, err error)
}
