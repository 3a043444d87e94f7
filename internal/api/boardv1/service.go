package boardv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "campusboard.v1.Board"

// FullMethod returns "/campusboard.v1.Board/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// BoardServer is the server API for the Board service.
type BoardServer interface {
	CreatePost(context.Context, *CreatePostRequest) (*CreatePostResponse, error)
	CreateComment(context.Context, *CreateCommentRequest) (*CreateCommentResponse, error)
	Vote(context.Context, *VoteRequest) (*VoteResponse, error)
	Flag(context.Context, *FlagRequest) (*FlagResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
	ListPosts(context.Context, *ListPostsRequest) (*ListPostsResponse, error)
	GetThread(context.Context, *GetThreadRequest) (*GetThreadResponse, error)
}

// UnimplementedBoardServer answers codes.Unimplemented for every method.
type UnimplementedBoardServer struct{}

func (UnimplementedBoardServer) CreatePost(context.Context, *CreatePostRequest) (*CreatePostResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreatePost not implemented")
}
func (UnimplementedBoardServer) CreateComment(context.Context, *CreateCommentRequest) (*CreateCommentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateComment not implemented")
}
func (UnimplementedBoardServer) Vote(context.Context, *VoteRequest) (*VoteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Vote not implemented")
}
func (UnimplementedBoardServer) Flag(context.Context, *FlagRequest) (*FlagResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Flag not implemented")
}
func (UnimplementedBoardServer) Delete(context.Context, *DeleteRequest) (*DeleteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Delete not implemented")
}
func (UnimplementedBoardServer) ListPosts(context.Context, *ListPostsRequest) (*ListPostsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListPosts not implemented")
}
func (UnimplementedBoardServer) GetThread(context.Context, *GetThreadRequest) (*GetThreadResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetThread not implemented")
}

func unary[Req, Resp any](method string, call func(BoardServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BoardServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BoardServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Board_ServiceDesc describes the Board service for grpc.Server.RegisterService.
var Board_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BoardServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreatePost", BoardServer.CreatePost),
		unary("CreateComment", BoardServer.CreateComment),
		unary("Vote", BoardServer.Vote),
		unary("Flag", BoardServer.Flag),
		unary("Delete", BoardServer.Delete),
		unary("ListPosts", BoardServer.ListPosts),
		unary("GetThread", BoardServer.GetThread),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "campusboard/v1/board",
}

// RegisterBoardServer registers srv on s.
func RegisterBoardServer(s grpc.ServiceRegistrar, srv BoardServer) {
	s.RegisterService(&Board_ServiceDesc, srv)
}

// BoardClient is the client API for the Board service.
type BoardClient interface {
	CreatePost(ctx context.Context, in *CreatePostRequest, opts ...grpc.CallOption) (*CreatePostResponse, error)
	CreateComment(ctx context.Context, in *CreateCommentRequest, opts ...grpc.CallOption) (*CreateCommentResponse, error)
	Vote(ctx context.Context, in *VoteRequest, opts ...grpc.CallOption) (*VoteResponse, error)
	Flag(ctx context.Context, in *FlagRequest, opts ...grpc.CallOption) (*FlagResponse, error)
	Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error)
	ListPosts(ctx context.Context, in *ListPostsRequest, opts ...grpc.CallOption) (*ListPostsResponse, error)
	GetThread(ctx context.Context, in *GetThreadRequest, opts ...grpc.CallOption) (*GetThreadResponse, error)
}

type boardClient struct{ cc grpc.ClientConnInterface }

// NewBoardClient returns a client that encodes messages with the JSON codec.
func NewBoardClient(cc grpc.ClientConnInterface) BoardClient { return &boardClient{cc: cc} }

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *boardClient) CreatePost(ctx context.Context, in *CreatePostRequest, opts ...grpc.CallOption) (*CreatePostResponse, error) {
	return invoke[CreatePostResponse](ctx, c.cc, "CreatePost", in, opts)
}

func (c *boardClient) CreateComment(ctx context.Context, in *CreateCommentRequest, opts ...grpc.CallOption) (*CreateCommentResponse, error) {
	return invoke[CreateCommentResponse](ctx, c.cc, "CreateComment", in, opts)
}

func (c *boardClient) Vote(ctx context.Context, in *VoteRequest, opts ...grpc.CallOption) (*VoteResponse, error) {
	return invoke[VoteResponse](ctx, c.cc, "Vote", in, opts)
}

func (c *boardClient) Flag(ctx context.Context, in *FlagRequest, opts ...grpc.CallOption) (*FlagResponse, error) {
	return invoke[FlagResponse](ctx, c.cc, "Flag", in, opts)
}

func (c *boardClient) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	return invoke[DeleteResponse](ctx, c.cc, "Delete", in, opts)
}

func (c *boardClient) ListPosts(ctx context.Context, in *ListPostsRequest, opts ...grpc.CallOption) (*ListPostsResponse, error) {
	return invoke[ListPostsResponse](ctx, c.cc, "ListPosts", in, opts)
}

func (c *boardClient) GetThread(ctx context.Context, in *GetThreadRequest, opts ...grpc.CallOption) (*GetThreadResponse, error) {
	return invoke[GetThreadResponse](ctx, c.cc, "GetThread", in, opts)
}
