// Package service contains application services for anonymous content and moderation.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/identity"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/ranking"
	"github.com/and161185/campus-board/internal/repository"
)

// Feed sizing.
const (
	DefaultFeedLimit = 50
	MaxFeedLimit     = 100
	hotCandidates    = 500
	hotWindow        = 7 * 24 * time.Hour
)

// ContentService governs the lifecycle of posts and comments. Every mutation is
// authorized by a posting token only; the token's hash is the sole identity.
type ContentService interface {
	// CreatePost stores a new post with score 0.
	CreatePost(ctx context.Context, tok model.PostingToken, title, body string) (model.Post, error)
	// CreateComment stores a new comment under an existing post.
	CreateComment(ctx context.Context, tok model.PostingToken, postID uuid.UUID, body string) (model.Comment, error)
	// Vote appends a ±1 vote and returns the subject's new score.
	Vote(ctx context.Context, tok model.PostingToken, s model.Subject, value int) (int64, error)
	// Flag appends a moderation flag without touching the subject.
	Flag(ctx context.Context, tok model.PostingToken, s model.Subject, reason string) error
	// Delete hard-deletes the subject when the caller's hash owns it.
	Delete(ctx context.Context, tok model.PostingToken, s model.Subject) error
	// ListPosts returns a feed; viewer may be empty.
	ListPosts(ctx context.Context, sort model.FeedSort, limit int, viewer model.TokenHash) ([]model.PostSummary, error)
	// Thread returns a post with its comments.
	Thread(ctx context.Context, postID uuid.UUID, viewer model.TokenHash) (model.Thread, error)
	// Comments returns a post's comments even when the post itself is gone.
	Comments(ctx context.Context, postID uuid.UUID, viewer model.TokenHash) ([]model.CommentView, error)
}

// Throttle limits write bursts per token hash.
type Throttle interface {
	Allow(h model.TokenHash) bool
}

type ContentServiceImpl struct {
	repo     repository.ContentRepository
	ranker   ranking.Ranker
	throttle Throttle
	log      *zap.Logger
	now      func() time.Time
}

// NewContentService constructs ContentService. throttle may be nil.
func NewContentService(repo repository.ContentRepository, ranker ranking.Ranker, throttle Throttle, log *zap.Logger) *ContentServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContentServiceImpl{repo: repo, ranker: ranker, throttle: throttle, log: log, now: time.Now}
}

// WithClock overrides the service clock (tests).
func (s *ContentServiceImpl) WithClock(now func() time.Time) *ContentServiceImpl {
	s.now = now
	return s
}

// author validates tok for use now and returns its hash.
func (s *ContentServiceImpl) author(tok model.PostingToken) (model.TokenHash, error) {
	h, err := identity.HashToken(tok)
	if err != nil {
		return "", err
	}
	if !tok.UsableAt(s.now()) {
		return "", fmt.Errorf("period %q: %w", tok.Period, errs.ErrTokenExpired)
	}
	return h, nil
}

func (s *ContentServiceImpl) allow(h model.TokenHash) error {
	if s.throttle != nil && !s.throttle.Allow(h) {
		return errs.ErrRateLimited
	}
	return nil
}

// cleanText trims s and enforces a character limit.
func cleanText(field, s string, max int, required bool) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if required {
			return "", fmt.Errorf("validation: empty %s: %w", field, errs.ErrInvalidInput)
		}
		return "", nil
	}
	if n := utf8.RuneCountInString(s); n > max {
		return "", fmt.Errorf("validation: %s has %d characters (max %d): %w", field, n, max, errs.ErrInvalidInput)
	}
	return s, nil
}

func validSubject(sub model.Subject) error {
	if _, err := model.ParseSubjectType(string(sub.Type)); err != nil {
		return fmt.Errorf("validation: %v: %w", err, errs.ErrInvalidInput)
	}
	if sub.ID == uuid.Nil {
		return fmt.Errorf("validation: empty subject id: %w", errs.ErrInvalidInput)
	}
	return nil
}

// CreatePost validates title and body and stores an Active post.
func (s *ContentServiceImpl) CreatePost(ctx context.Context, tok model.PostingToken, title, body string) (model.Post, error) {
	h, err := s.author(tok)
	if err != nil {
		return model.Post{}, fmt.Errorf("create post: %w", err)
	}
	title, err = cleanText("title", title, model.MaxTitleLen, false)
	if err != nil {
		return model.Post{}, err
	}
	body, err = cleanText("body", body, model.MaxBodyLen, true)
	if err != nil {
		return model.Post{}, err
	}
	if err := s.allow(h); err != nil {
		return model.Post{}, fmt.Errorf("create post: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Post{}, err
	}
	p := model.Post{ID: id, Title: title, Body: body, TokenHash: h, CreatedAt: s.now().UTC()}
	if err := s.repo.CreatePost(ctx, &p); err != nil {
		return model.Post{}, fmt.Errorf("create post: %w", errs.FromContext(err))
	}
	s.log.Debug("post created", zap.Stringer("id", p.ID), zap.Stringer("token_hash", h))
	return p, nil
}

// CreateComment validates body and stores a comment under postID.
func (s *ContentServiceImpl) CreateComment(ctx context.Context, tok model.PostingToken, postID uuid.UUID, body string) (model.Comment, error) {
	h, err := s.author(tok)
	if err != nil {
		return model.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	if postID == uuid.Nil {
		return model.Comment{}, fmt.Errorf("validation: empty post id: %w", errs.ErrInvalidInput)
	}
	body, err = cleanText("body", body, model.MaxBodyLen, true)
	if err != nil {
		return model.Comment{}, err
	}
	if err := s.allow(h); err != nil {
		return model.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Comment{}, err
	}
	c := model.Comment{ID: id, PostID: postID, Body: body, TokenHash: h, CreatedAt: s.now().UTC()}
	if err := s.repo.CreateComment(ctx, &c); err != nil {
		return model.Comment{}, fmt.Errorf("create comment: %w", errs.FromContext(err))
	}
	return c, nil
}

// Vote appends a vote row and applies its value to the running score.
// Repeated votes by the same hash are accepted and accumulate.
func (s *ContentServiceImpl) Vote(ctx context.Context, tok model.PostingToken, sub model.Subject, value int) (int64, error) {
	h, err := s.author(tok)
	if err != nil {
		return 0, fmt.Errorf("vote: %w", err)
	}
	if err := validSubject(sub); err != nil {
		return 0, err
	}
	if value != 1 && value != -1 {
		return 0, fmt.Errorf("validation: vote value %d not in {+1,-1}: %w", value, errs.ErrInvalidInput)
	}
	if err := s.allow(h); err != nil {
		return 0, fmt.Errorf("vote: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return 0, err
	}
	v := model.Vote{ID: id, Subject: sub, TokenHash: h, Value: value, CreatedAt: s.now().UTC()}
	score, err := s.repo.AppendVote(ctx, &v)
	if err != nil {
		return 0, fmt.Errorf("vote %s: %w", sub, errs.FromContext(err))
	}
	return score, nil
}

// Flag appends a flag. Duplicate flags by the same hash are kept; review dedups them.
func (s *ContentServiceImpl) Flag(ctx context.Context, tok model.PostingToken, sub model.Subject, reason string) error {
	h, err := s.author(tok)
	if err != nil {
		return fmt.Errorf("flag: %w", err)
	}
	if err := validSubject(sub); err != nil {
		return err
	}
	reason, err = cleanText("reason", reason, model.MaxReasonLen, false)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = model.DefaultFlagReason
	}
	if err := s.allow(h); err != nil {
		return fmt.Errorf("flag: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	f := model.Flag{ID: id, Subject: sub, TokenHash: h, Reason: reason, CreatedAt: s.now().UTC()}
	if err := s.repo.AppendFlag(ctx, &f); err != nil {
		return fmt.Errorf("flag %s: %w", sub, errs.FromContext(err))
	}
	s.log.Info("content flagged", zap.Stringer("subject", sub), zap.String("reason", reason))
	return nil
}

// Delete compares the caller's hash against the hash read from storage right
// now and hard-deletes on equality. Deleting something already gone succeeds.
// Comments of a deleted post are left in place.
func (s *ContentServiceImpl) Delete(ctx context.Context, tok model.PostingToken, sub model.Subject) error {
	caller, err := s.author(tok)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if err := validSubject(sub); err != nil {
		return err
	}
	stored, err := s.repo.OwnerHash(ctx, sub)
	if errors.Is(err, errs.ErrNotFound) {
		s.log.Debug("delete: already gone", zap.Stringer("subject", sub))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", sub, errs.FromContext(err))
	}
	if subtle.ConstantTimeCompare([]byte(caller), []byte(stored)) != 1 {
		s.log.Info("delete refused", zap.Stringer("subject", sub), zap.Stringer("token_hash", caller))
		return fmt.Errorf("delete %s: %w", sub, errs.ErrUnauthorized)
	}
	deleted, err := s.repo.DeleteOwned(ctx, sub, stored)
	if err != nil && !errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrStorageConflict) {
		return fmt.Errorf("delete %s: %w", sub, errs.FromContext(err))
	}
	if !deleted {
		s.log.Debug("delete: removed concurrently", zap.Stringer("subject", sub))
		return nil
	}
	s.log.Info("content deleted by author", zap.Stringer("subject", sub))
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultFeedLimit
	case limit > MaxFeedLimit:
		return MaxFeedLimit
	default:
		return limit
	}
}

// ListPosts returns the new or hot feed. Aliases are scoped by post id. The hot
// feed ranks the last week of posts, or the newest posts of any age when that
// week holds fewer than limit.
func (s *ContentServiceImpl) ListPosts(ctx context.Context, sort model.FeedSort, limit int, viewer model.TokenHash) ([]model.PostSummary, error) {
	limit = clampLimit(limit)
	now := s.now()

	var (
		posts []model.PostSummary
		err   error
	)
	switch sort {
	case model.SortNew, "":
		posts, err = s.repo.ListPosts(ctx, limit, time.Time{})
		if err == nil {
			ranking.SortNew(posts)
		}
	case model.SortHot:
		posts, err = s.repo.ListPosts(ctx, hotCandidates, now.Add(-hotWindow))
		if err == nil && len(posts) < limit {
			// quiet board: rank the newest posts regardless of age
			posts, err = s.repo.ListPosts(ctx, hotCandidates, time.Time{})
		}
		if err == nil {
			s.ranker.Sort(posts, now)
			if len(posts) > limit {
				posts = posts[:limit]
			}
		}
	default:
		return nil, fmt.Errorf("validation: unknown sort %q: %w", sort, errs.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", errs.FromContext(err))
	}
	for i := range posts {
		decoratePost(&posts[i], viewer)
	}
	return posts, nil
}

func decoratePost(p *model.PostSummary, viewer model.TokenHash) {
	p.Alias = identity.ScopedAlias(p.TokenHash, p.ID.String())
	p.Mine = viewer != "" && viewer == p.TokenHash
}

func commentViews(cs []model.Comment, viewer model.TokenHash) []model.CommentView {
	out := make([]model.CommentView, 0, len(cs))
	for _, c := range cs {
		out = append(out, model.CommentView{
			Comment: c,
			// Scoped by the comment's own post id so it survives post deletion.
			Alias: identity.ScopedAlias(c.TokenHash, c.PostID.String()),
			Mine:  viewer != "" && viewer == c.TokenHash,
		})
	}
	return out
}

// Thread loads a post and its comments, oldest first.
func (s *ContentServiceImpl) Thread(ctx context.Context, postID uuid.UUID, viewer model.TokenHash) (model.Thread, error) {
	if postID == uuid.Nil {
		return model.Thread{}, fmt.Errorf("validation: empty post id: %w", errs.ErrInvalidInput)
	}
	p, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return model.Thread{}, fmt.Errorf("thread: %w", errs.FromContext(err))
	}
	decoratePost(p, viewer)
	p.Hot = s.ranker.Score(p.Score, p.CreatedAt, s.now())

	cs, err := s.Comments(ctx, postID, viewer)
	if err != nil {
		return model.Thread{}, err
	}
	return model.Thread{Post: *p, Comments: cs}, nil
}

// Comments lists a post's comments without requiring the post to exist.
func (s *ContentServiceImpl) Comments(ctx context.Context, postID uuid.UUID, viewer model.TokenHash) ([]model.CommentView, error) {
	if postID == uuid.Nil {
		return nil, fmt.Errorf("validation: empty post id: %w", errs.ErrInvalidInput)
	}
	cs, err := s.repo.ListComments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("comments: %w", errs.FromContext(err))
	}
	return commentViews(cs, viewer), nil
}
