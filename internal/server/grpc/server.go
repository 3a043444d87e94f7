// Package grpcserver exposes the campus board gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	v1 "github.com/and161185/campus-board/internal/api/boardv1"
	"github.com/and161185/campus-board/internal/convert"
	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/identity"
	"github.com/and161185/campus-board/internal/metrics"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/service"
)

// Server wires the content service into gRPC handlers.
type Server struct {
	v1.UnimplementedBoardServer
	content   service.ContentService
	metrics   *metrics.Metrics
	log       *zap.Logger
	feedLimit int
}

// New constructs a gRPC handler set. m may be nil.
func New(content service.ContentService, m *metrics.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{content: content, metrics: m, log: log}
}

// WithFeedLimit sets the feed size used when a request sends no limit.
func (s *Server) WithFeedLimit(n int) *Server {
	s.feedLimit = n
	return s
}

// NewGRPC builds a grpc.Server with the interceptor chain, the Board service and
// the standard health service registered.
func NewGRPC(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(
		RecoverUnary(srv.log),
		LoggingUnary(srv.log),
		MetricsUnary(srv.metrics),
		PostingTokenUnary(),
	)}, opts...)
	gs := grpc.NewServer(opts...)
	v1.RegisterBoardServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(v1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

// toStatus maps domain errors onto gRPC codes. Only validation messages are echoed.
func toStatus(op string, err error) error {
	switch errs.KindOf(err) {
	case errs.KindInvalidInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case errs.KindUnauthorized:
		return status.Error(codes.PermissionDenied, "not the author")
	case errs.KindTokenExpired:
		return status.Error(codes.Unauthenticated, "posting token expired")
	case errs.KindNotFound:
		return status.Error(codes.NotFound, "not found")
	case errs.KindTimeout:
		return status.Error(codes.DeadlineExceeded, "timeout")
	case errs.KindRateLimited:
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errs.KindIssuanceFailed:
		return status.Error(codes.Unavailable, "token issuance failed")
	case errs.KindAlreadyExists:
		return status.Error(codes.AlreadyExists, "already exists")
	case errs.KindStorageConflict:
		return status.Error(codes.Aborted, "storage conflict")
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, "canceled")
	}
	return status.Errorf(codes.Internal, "%s failed", op)
}

func (s *Server) fail(op string, err error) error {
	s.metrics.ObserveContent(op, err)
	if errs.KindOf(err) == errs.KindInternal {
		s.log.Error(op, zap.Error(err))
	}
	return toStatus(op, err)
}

// postingToken returns the caller's token or codes.Unauthenticated.
func postingToken(ctx context.Context) (model.PostingToken, error) {
	if tok, ok := PostingTokenFromCtx(ctx); ok {
		return tok, nil
	}
	tok, ok, err := v1.PostingTokenFromIncoming(ctx)
	if err != nil {
		return model.PostingToken{}, status.Error(codes.InvalidArgument, "malformed posting token metadata")
	}
	if !ok {
		return model.PostingToken{}, status.Error(codes.Unauthenticated, "no posting token")
	}
	return tok, nil
}

// --- Writes ---

// CreatePost stores a new post authored by the caller's token.
func (s *Server) CreatePost(ctx context.Context, req *v1.CreatePostRequest) (*v1.CreatePostResponse, error) {
	tok, err := postingToken(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.content.CreatePost(ctx, tok, req.Title, req.Body)
	if err != nil {
		return nil, s.fail("create_post", err)
	}
	s.metrics.ObserveContent("create_post", nil)
	return &v1.CreatePostResponse{Post: convert.ToPost(model.PostSummary{
		Post:  p,
		Alias: identity.ScopedAlias(p.TokenHash, p.ID.String()),
		Mine:  true,
	})}, nil
}

// CreateComment stores a reply under an existing post.
func (s *Server) CreateComment(ctx context.Context, req *v1.CreateCommentRequest) (*v1.CreateCommentResponse, error) {
	tok, err := postingToken(ctx)
	if err != nil {
		return nil, err
	}
	postID, err := convert.ParseID("post id", req.PostId)
	if err != nil {
		return nil, s.fail("create_comment", err)
	}
	c, err := s.content.CreateComment(ctx, tok, postID, req.Body)
	if err != nil {
		return nil, s.fail("create_comment", err)
	}
	s.metrics.ObserveContent("create_comment", nil)
	return &v1.CreateCommentResponse{Comment: convert.ToComment(model.CommentView{
		Comment: c,
		Alias:   identity.ScopedAlias(c.TokenHash, c.PostID.String()),
		Mine:    true,
	})}, nil
}

// Vote appends a ±1 vote and returns the new score.
func (s *Server) Vote(ctx context.Context, req *v1.VoteRequest) (*v1.VoteResponse, error) {
	tok, err := postingToken(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := convert.FromSubject(req.GetSubject())
	if err != nil {
		return nil, s.fail("vote", err)
	}
	score, err := s.content.Vote(ctx, tok, sub, int(req.Value))
	if err != nil {
		return nil, s.fail("vote", err)
	}
	s.metrics.ObserveContent("vote", nil)
	return &v1.VoteResponse{Score: score}, nil
}

// Flag records a moderation report.
func (s *Server) Flag(ctx context.Context, req *v1.FlagRequest) (*v1.FlagResponse, error) {
	tok, err := postingToken(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := convert.FromSubject(req.GetSubject())
	if err != nil {
		return nil, s.fail("flag", err)
	}
	if err := s.content.Flag(ctx, tok, sub, req.Reason); err != nil {
		return nil, s.fail("flag", err)
	}
	s.metrics.ObserveContent("flag", nil)
	return &v1.FlagResponse{}, nil
}

// Delete removes the caller's own post or comment.
func (s *Server) Delete(ctx context.Context, req *v1.DeleteRequest) (*v1.DeleteResponse, error) {
	tok, err := postingToken(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := convert.FromSubject(req.GetSubject())
	if err != nil {
		return nil, s.fail("delete", err)
	}
	if err := s.content.Delete(ctx, tok, sub); err != nil {
		return nil, s.fail("delete", err)
	}
	s.metrics.ObserveContent("delete", nil)
	return &v1.DeleteResponse{Ok: true}, nil
}

// --- Reads ---

// ListPosts returns the new or hot feed. A token, when sent, only marks own posts.
func (s *Server) ListPosts(ctx context.Context, req *v1.ListPostsRequest) (*v1.ListPostsResponse, error) {
	sort, err := convert.FromSort(req.Sort)
	if err != nil {
		return nil, toStatus("list_posts", err)
	}
	limit := int(req.Limit)
	if limit <= 0 {
		limit = s.feedLimit
	}
	posts, err := s.content.ListPosts(ctx, sort, limit, viewerFromCtx(ctx))
	if err != nil {
		return nil, s.fail("list_posts", err)
	}
	return &v1.ListPostsResponse{Posts: convert.ToPosts(posts)}, nil
}

// GetThread returns a post with its comments. When the post was deleted but
// comments remain, the response carries only the comments.
func (s *Server) GetThread(ctx context.Context, req *v1.GetThreadRequest) (*v1.GetThreadResponse, error) {
	postID, err := convert.ParseID("post id", req.PostId)
	if err != nil {
		return nil, toStatus("get_thread", err)
	}
	viewer := viewerFromCtx(ctx)
	th, err := s.content.Thread(ctx, postID, viewer)
	if err == nil {
		return convert.ToThread(th), nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, s.fail("get_thread", err)
	}
	cs, cerr := s.content.Comments(ctx, postID, viewer)
	if cerr != nil {
		return nil, s.fail("get_thread", cerr)
	}
	if len(cs) == 0 {
		return nil, toStatus("get_thread", err)
	}
	return &v1.GetThreadResponse{Comments: convert.ToComments(cs)}, nil
}
