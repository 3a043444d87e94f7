package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/repository"
)

var (
	_ repository.ContentRepository   = (*ContentRepo)(nil)
	_ repository.ModeratorRepository = (*ModeratorRepo)(nil)
)

var base = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite://:memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newPost(t *testing.T, r *ContentRepo, hash model.TokenHash, at time.Time) model.Post {
	t.Helper()
	p := model.Post{ID: uuid.Must(uuid.NewV4()), Body: "body " + hash.String(), TokenHash: hash, CreatedAt: at}
	require.NoError(t, r.CreatePost(context.Background(), &p))
	return p
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("sqlite://", nil)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestContent_PostsAndComments(t *testing.T) {
	r := openMem(t).Content()
	ctx := context.Background()

	older := newPost(t, r, "h1", base)
	newer := newPost(t, r, "h2", base.Add(time.Minute))

	c := model.Comment{ID: uuid.Must(uuid.NewV4()), PostID: older.ID, Body: "reply", TokenHash: "h3", CreatedAt: base.Add(2 * time.Minute)}
	require.NoError(t, r.CreateComment(ctx, &c))

	orphan := model.Comment{ID: uuid.Must(uuid.NewV4()), PostID: uuid.Must(uuid.NewV4()), Body: "x", TokenHash: "h3", CreatedAt: base}
	require.ErrorIs(t, r.CreateComment(ctx, &orphan), errs.ErrNotFound)

	got, err := r.GetPost(ctx, older.ID)
	require.NoError(t, err)
	require.Equal(t, older.Body, got.Body)
	require.Equal(t, model.TokenHash("h1"), got.TokenHash)
	require.EqualValues(t, 1, got.Comments)
	require.True(t, got.CreatedAt.Equal(base))

	_, err = r.GetPost(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)

	feed, err := r.ListPosts(ctx, 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, feed, 2)
	require.Equal(t, newer.ID, feed[0].ID)
	require.Equal(t, older.ID, feed[1].ID)

	recent, err := r.ListPosts(ctx, 10, base.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, newer.ID, recent[0].ID)

	gc, err := r.GetComment(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, older.ID, gc.PostID)
}

func TestContent_VotesAccumulate(t *testing.T) {
	r := openMem(t).Content()
	ctx := context.Background()
	p := newPost(t, r, "h1", base)
	sub := model.Subject{Type: model.SubjectPost, ID: p.ID}

	var score int64
	for i, v := range []int{1, 1, -1, 1} {
		var err error
		score, err = r.AppendVote(ctx, &model.Vote{ID: uuid.Must(uuid.NewV4()), Subject: sub, TokenHash: "v", Value: v, CreatedAt: base})
		require.NoError(t, err, "vote %d", i)
	}
	require.EqualValues(t, 2, score)
	got, err := r.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.Score)

	_, err = r.AppendVote(ctx, &model.Vote{ID: uuid.Must(uuid.NewV4()),
		Subject: model.Subject{Type: model.SubjectComment, ID: uuid.Must(uuid.NewV4())}, Value: 1, CreatedAt: base})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestContent_DeleteOwned(t *testing.T) {
	r := openMem(t).Content()
	ctx := context.Background()
	p := newPost(t, r, "owner", base)
	sub := model.Subject{Type: model.SubjectPost, ID: p.ID}

	deleted, err := r.DeleteOwned(ctx, sub, "intruder")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.False(t, deleted)

	h, err := r.OwnerHash(ctx, sub)
	require.NoError(t, err)
	require.Equal(t, model.TokenHash("owner"), h)

	deleted, err = r.DeleteOwned(ctx, sub, "owner")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = r.DeleteOwned(ctx, sub, "owner")
	require.NoError(t, err)
	require.False(t, deleted)

	_, err = r.OwnerHash(ctx, sub)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestContent_FlagsAndModeratorDelete(t *testing.T) {
	r := openMem(t).Content()
	ctx := context.Background()
	p := newPost(t, r, "owner", base)
	sub := model.Subject{Type: model.SubjectPost, ID: p.ID}

	for i := 0; i < 3; i++ {
		f := model.Flag{ID: uuid.Must(uuid.NewV4()), Subject: sub, TokenHash: "r", Reason: "spam", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, r.AppendFlag(ctx, &f))
	}
	flags, err := r.ListFlags(ctx, 2)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	require.Equal(t, sub, flags[0].Subject)
	require.True(t, flags[0].CreatedAt.After(flags[1].CreatedAt))

	ok, err := r.Delete(ctx, sub)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.Delete(ctx, sub)
	require.NoError(t, err)
	require.False(t, ok)

	f := model.Flag{ID: uuid.Must(uuid.NewV4()), Subject: sub, TokenHash: "r", Reason: "spam", CreatedAt: base}
	require.ErrorIs(t, r.AppendFlag(ctx, &f), errs.ErrNotFound)
}

func TestModerators(t *testing.T) {
	r := openMem(t).Moderators()
	ctx := context.Background()
	m := model.Moderator{ID: uuid.Must(uuid.NewV4()), Username: "alice", PwdHash: "$argon2id$x", CreatedAt: base}

	require.NoError(t, r.Create(ctx, &m))
	dup := m
	dup.ID = uuid.Must(uuid.NewV4())
	require.ErrorIs(t, r.Create(ctx, &dup), errs.ErrAlreadyExists)

	got, err := r.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, m.ID, got.ID)

	got, err = r.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)

	_, err = r.GetByUsername(ctx, "bob")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
