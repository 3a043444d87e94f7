package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &DB{Pool: mock}, mock
}

var ts = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func TestContentRepo_CreatePost(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	p := &model.Post{ID: uuid.Must(uuid.NewV4()), Title: "t", Body: "b", TokenHash: "abc", CreatedAt: ts}

	mock.ExpectExec(`INSERT INTO conf_posts`).
		WithArgs(p.ID, "t", "b", "abc", int64(0), ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.CreatePost(context.Background(), p))

	mock.ExpectExec(`INSERT INTO conf_posts`).
		WithArgs(p.ID, "t", "b", "abc", int64(0), ts).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.CreatePost(context.Background(), p), errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepo_CreateComment_PostMissing(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	c := &model.Comment{ID: uuid.Must(uuid.NewV4()), PostID: uuid.Must(uuid.NewV4()), Body: "b", TokenHash: "h", CreatedAt: ts}

	mock.ExpectExec(`INSERT INTO conf_comments`).
		WithArgs(c.ID, c.PostID, "b", "h", int64(0), ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.CreateComment(context.Background(), c))

	mock.ExpectExec(`INSERT INTO conf_comments`).
		WithArgs(c.ID, c.PostID, "b", "h", int64(0), ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.ErrorIs(t, r.CreateComment(context.Background(), c), errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func postRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "title", "body", "token_hash", "score", "created_at", "count"})
}

func TestContentRepo_GetPost(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`FROM conf_posts p WHERE p.id=\$1`).
		WithArgs(id).
		WillReturnRows(postRows().AddRow(id, "", "body", "hash", int64(3), ts, int64(2)))
	p, err := r.GetPost(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, p.ID)
	require.Equal(t, model.TokenHash("hash"), p.TokenHash)
	require.EqualValues(t, 3, p.Score)
	require.EqualValues(t, 2, p.Comments)

	mock.ExpectQuery(`FROM conf_posts p WHERE p.id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetPost(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`FROM conf_posts p WHERE p.id=\$1`).
		WithArgs(id).
		WillReturnError(context.DeadlineExceeded)
	_, err = r.GetPost(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrTimeout)
}

func TestContentRepo_ListPosts(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	since := ts.Add(-time.Hour)

	mock.ExpectQuery(`ORDER BY p.created_at DESC`).
		WithArgs(since, 10).
		WillReturnRows(postRows().
			AddRow(a, "", "new", "h1", int64(0), ts, int64(0)).
			AddRow(b, "", "old", "h2", int64(1), ts.Add(-time.Minute), int64(4)))

	out, err := r.ListPosts(context.Background(), 10, since)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, a, out[0].ID)
	require.EqualValues(t, 4, out[1].Comments)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepo_ListComments(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	post, c1 := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`FROM conf_comments WHERE post_id=\$1 ORDER BY created_at ASC`).
		WithArgs(post).
		WillReturnRows(pgxmock.NewRows([]string{"id", "post_id", "body", "token_hash", "score", "created_at"}).
			AddRow(c1, post, "hi", "h", int64(0), ts))

	out, err := r.ListComments(context.Background(), post)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, post, out[0].PostID)
	require.Equal(t, model.TokenHash("h"), out[0].TokenHash)
}

func TestContentRepo_OwnerHash(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT token_hash FROM conf_comments WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"token_hash"}).AddRow("owner"))
	h, err := r.OwnerHash(context.Background(), model.Subject{Type: model.SubjectComment, ID: id})
	require.NoError(t, err)
	require.Equal(t, model.TokenHash("owner"), h)

	mock.ExpectQuery(`SELECT token_hash FROM conf_posts WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.OwnerHash(context.Background(), model.Subject{Type: model.SubjectPost, ID: id})
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = r.OwnerHash(context.Background(), model.Subject{Type: "x", ID: id})
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestContentRepo_AppendVote(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	v := &model.Vote{
		ID:        uuid.Must(uuid.NewV4()),
		Subject:   model.Subject{Type: model.SubjectPost, ID: uuid.Must(uuid.NewV4())},
		TokenHash: "voter",
		Value:     -1,
		CreatedAt: ts,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE conf_posts SET score = score \+ \$2 WHERE id=\$1 RETURNING score`).
		WithArgs(v.Subject.ID, int64(-1)).
		WillReturnRows(pgxmock.NewRows([]string{"score"}).AddRow(int64(4)))
	mock.ExpectExec(`INSERT INTO conf_votes`).
		WithArgs(v.ID, "post", v.Subject.ID, "voter", -1, ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	score, err := r.AppendVote(context.Background(), v)
	require.NoError(t, err)
	require.EqualValues(t, 4, score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepo_AppendVote_SubjectGone(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	v := &model.Vote{
		ID:      uuid.Must(uuid.NewV4()),
		Subject: model.Subject{Type: model.SubjectComment, ID: uuid.Must(uuid.NewV4())},
		Value:   1,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE conf_comments SET score`).
		WithArgs(v.Subject.ID, int64(1)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.AppendVote(context.Background(), v)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepo_AppendFlag(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	f := &model.Flag{
		ID:        uuid.Must(uuid.NewV4()),
		Subject:   model.Subject{Type: model.SubjectPost, ID: uuid.Must(uuid.NewV4())},
		TokenHash: "h",
		Reason:    "spam",
		CreatedAt: ts,
	}

	mock.ExpectExec(`INSERT INTO conf_flags`).
		WithArgs(f.ID, "post", f.Subject.ID, "h", "spam", ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.AppendFlag(context.Background(), f))

	mock.ExpectExec(`INSERT INTO conf_flags`).
		WithArgs(f.ID, "post", f.Subject.ID, "h", "spam", ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.ErrorIs(t, r.AppendFlag(context.Background(), f), errs.ErrNotFound)
}

func TestContentRepo_ListFlags(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	id, sid := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`FROM conf_flags`).
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "subject_type", "subject_id", "token_hash", "reason", "created_at"}).
			AddRow(id, "comment", sid, "h", "community", ts))

	out, err := r.ListFlags(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, model.Subject{Type: model.SubjectComment, ID: sid}, out[0].Subject)
	require.Equal(t, "community", out[0].Reason)
}

func TestContentRepo_DeleteOwned(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	s := model.Subject{Type: model.SubjectPost, ID: uuid.Must(uuid.NewV4())}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT token_hash FROM conf_posts WHERE id=\$1 FOR UPDATE`).
		WithArgs(s.ID).
		WillReturnRows(pgxmock.NewRows([]string{"token_hash"}).AddRow("owner"))
	mock.ExpectExec(`DELETE FROM conf_posts WHERE id=\$1 AND token_hash=\$2`).
		WithArgs(s.ID, "owner").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	deleted, err := r.DeleteOwned(context.Background(), s, "owner")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepo_DeleteOwned_Mismatch(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	s := model.Subject{Type: model.SubjectComment, ID: uuid.Must(uuid.NewV4())}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT token_hash FROM conf_comments WHERE id=\$1 FOR UPDATE`).
		WithArgs(s.ID).
		WillReturnRows(pgxmock.NewRows([]string{"token_hash"}).AddRow("owner"))
	mock.ExpectRollback()

	deleted, err := r.DeleteOwned(context.Background(), s, "intruder")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepo_DeleteOwned_AlreadyGone(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	s := model.Subject{Type: model.SubjectPost, ID: uuid.Must(uuid.NewV4())}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT token_hash FROM conf_posts WHERE id=\$1 FOR UPDATE`).
		WithArgs(s.ID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	deleted, err := r.DeleteOwned(context.Background(), s, "owner")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestContentRepo_DeleteOwned_BeginFails(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)

	mock.ExpectBegin().WillReturnError(errors.New("no conn"))
	_, err := r.DeleteOwned(context.Background(), model.Subject{Type: model.SubjectPost, ID: uuid.Must(uuid.NewV4())}, "o")
	require.Error(t, err)
}

func TestContentRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	r := NewContentRepo(db)
	s := model.Subject{Type: model.SubjectComment, ID: uuid.Must(uuid.NewV4())}

	mock.ExpectExec(`DELETE FROM conf_comments WHERE id=\$1`).
		WithArgs(s.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	ok, err := r.Delete(context.Background(), s)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectExec(`DELETE FROM conf_comments WHERE id=\$1`).
		WithArgs(s.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	ok, err = r.Delete(context.Background(), s)
	require.NoError(t, err)
	require.False(t, ok)
}
