package grpcserver

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	v1 "github.com/and161185/campus-board/internal/api/boardv1"
	"github.com/and161185/campus-board/internal/metrics"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/ranking"
	"github.com/and161185/campus-board/internal/repository/sqlite"
	"github.com/and161185/campus-board/internal/service"
)

const bufSize = 1 << 20

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func startBufGRPC(t *testing.T, content service.ContentService, m *metrics.Metrics) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	gs := NewGRPC(New(content, m, zaptest.NewLogger(t)))
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return cc
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(b)
}

func realContent(t *testing.T) service.ContentService {
	t.Helper()
	st, err := sqlite.Open(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return service.NewContentService(st.Content(), ranking.New(ranking.DefaultGravity), nil, zaptest.NewLogger(t)).
		WithClock(func() time.Time { return now })
}

func as(ctx context.Context, secret string) context.Context {
	return v1.WithPostingToken(ctx, model.PostingToken{
		Secret: secret, Period: model.PeriodOf(now), ExpiresAt: now.Add(12 * time.Hour),
	})
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBoard_PostThreadDelete(t *testing.T) {
	m := metrics.New()
	c := v1.NewBoardClient(startBufGRPC(t, realContent(t), m))
	ctx := callCtx(t)

	created, err := c.CreatePost(as(ctx, "T1"), &v1.CreatePostRequest{Title: "hi", Body: "first confession"})
	require.NoError(t, err)
	p := created.Post
	assert.True(t, p.Mine)
	assert.NotEmpty(t, p.Alias)

	_, err = c.CreateComment(as(ctx, "T2"), &v1.CreateCommentRequest{PostId: p.Id, Body: "same"})
	require.NoError(t, err)

	// anonymous reader: nothing is "mine"
	feed, err := c.ListPosts(ctx, &v1.ListPostsRequest{})
	require.NoError(t, err)
	require.Len(t, feed.Posts, 1)
	assert.False(t, feed.Posts[0].Mine)
	assert.EqualValues(t, 1, feed.Posts[0].Comments)

	sub := &v1.Subject{Type: "post", Id: p.Id}
	_, err = c.Delete(as(ctx, "T2"), &v1.DeleteRequest{Subject: sub})
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	del, err := c.Delete(as(ctx, "T1"), &v1.DeleteRequest{Subject: sub})
	require.NoError(t, err)
	assert.True(t, del.Ok)

	// deleting again is still ok
	del, err = c.Delete(as(ctx, "T1"), &v1.DeleteRequest{Subject: sub})
	require.NoError(t, err)
	assert.True(t, del.Ok)

	th, err := c.GetThread(as(ctx, "T2"), &v1.GetThreadRequest{PostId: p.Id})
	require.NoError(t, err)
	assert.Nil(t, th.Post)
	require.Len(t, th.Comments, 1)
	assert.True(t, th.Comments[0].Mine)

	body := scrape(t, m)
	assert.Contains(t, body, `campusboard_content_operations_total{op="delete",result="ok"} 2`)
	assert.Contains(t, body, `campusboard_content_operations_total{op="delete",result="unauthorized"} 1`)
}

func TestBoard_VoteAndFlag(t *testing.T) {
	c := v1.NewBoardClient(startBufGRPC(t, realContent(t), nil))
	ctx := callCtx(t)

	created, err := c.CreatePost(as(ctx, "T1"), &v1.CreatePostRequest{Body: "vote me"})
	require.NoError(t, err)
	sub := &v1.Subject{Type: "post", Id: created.Post.Id}

	up, err := c.Vote(as(ctx, "T2"), &v1.VoteRequest{Subject: sub, Value: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, up.Score)

	down, err := c.Vote(as(ctx, "T2"), &v1.VoteRequest{Subject: sub, Value: -1})
	require.NoError(t, err)
	assert.EqualValues(t, 0, down.Score)

	_, err = c.Vote(as(ctx, "T2"), &v1.VoteRequest{Subject: sub, Value: 2})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Flag(as(ctx, "T3"), &v1.FlagRequest{Subject: sub})
	require.NoError(t, err)

	missing := &v1.Subject{Type: "comment", Id: uuid.Must(uuid.NewV4()).String()}
	_, err = c.Flag(as(ctx, "T3"), &v1.FlagRequest{Subject: missing})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestBoard_TokenRequiredAndExpired(t *testing.T) {
	c := v1.NewBoardClient(startBufGRPC(t, realContent(t), nil))
	ctx := callCtx(t)

	_, err := c.CreatePost(ctx, &v1.CreatePostRequest{Body: "x"})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	stale := v1.WithPostingToken(ctx, model.PostingToken{
		Secret: "T1", Period: model.PeriodOf(now.AddDate(0, 0, -1)), ExpiresAt: now.Add(time.Hour),
	})
	_, err = c.CreatePost(stale, &v1.CreatePostRequest{Body: "x"})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = c.GetThread(ctx, &v1.GetThreadRequest{PostId: uuid.Must(uuid.NewV4()).String()})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.ListPosts(ctx, &v1.ListPostsRequest{Sort: "top"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestBoard_Health(t *testing.T) {
	cc := startBufGRPC(t, realContent(t), nil)
	resp, err := healthpb.NewHealthClient(cc).Check(callCtx(t), &healthpb.HealthCheckRequest{Service: v1.ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
