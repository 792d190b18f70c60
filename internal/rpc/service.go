package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "zelebiz.v1.SyncService"

// Full method names.
const (
	MethodPing                = "/" + ServiceName + "/Ping"
	MethodSignUp              = "/" + ServiceName + "/SignUp"
	MethodSignIn              = "/" + ServiceName + "/SignIn"
	MethodRefresh             = "/" + ServiceName + "/Refresh"
	MethodSignOut             = "/" + ServiceName + "/SignOut"
	MethodChangePassword      = "/" + ServiceName + "/ChangePassword"
	MethodApplyMutation       = "/" + ServiceName + "/ApplyMutation"
	MethodFetchEntity         = "/" + ServiceName + "/FetchEntity"
	MethodGetArchiveUploadURL = "/" + ServiceName + "/GetArchiveUploadURL"
)

// PingOK is the status a healthy server answers Ping with.
const PingOK = "OK"

// IsPublic reports whether method can be called without an access token.
func IsPublic(method string) bool {
	switch method {
	case MethodPing, MethodSignUp, MethodSignIn, MethodRefresh:
		return true
	default:
		return false
	}
}

// SyncServiceServer is implemented by the sync server.
type SyncServiceServer interface {
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	SignUp(context.Context, *SignUpRequest) (*AuthResponse, error)
	SignIn(context.Context, *SignInRequest) (*AuthResponse, error)
	Refresh(context.Context, *RefreshRequest) (*AuthResponse, error)
	SignOut(context.Context, *SignOutRequest) (*emptypb.Empty, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*emptypb.Empty, error)
	ApplyMutation(context.Context, *MutationRequest) (*MutationResponse, error)
	FetchEntity(context.Context, *FetchRequest) (*FetchResponse, error)
	GetArchiveUploadURL(context.Context, *emptypb.Empty) (*ArchiveURLResponse, error)
}

func unary[Req, Resp any](fullMethod string, call func(SyncServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SyncServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SyncServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes SyncService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unary(MethodPing, SyncServiceServer.Ping)},
		{MethodName: "SignUp", Handler: unary(MethodSignUp, SyncServiceServer.SignUp)},
		{MethodName: "SignIn", Handler: unary(MethodSignIn, SyncServiceServer.SignIn)},
		{MethodName: "Refresh", Handler: unary(MethodRefresh, SyncServiceServer.Refresh)},
		{MethodName: "SignOut", Handler: unary(MethodSignOut, SyncServiceServer.SignOut)},
		{MethodName: "ChangePassword", Handler: unary(MethodChangePassword, SyncServiceServer.ChangePassword)},
		{MethodName: "ApplyMutation", Handler: unary(MethodApplyMutation, SyncServiceServer.ApplyMutation)},
		{MethodName: "FetchEntity", Handler: unary(MethodFetchEntity, SyncServiceServer.FetchEntity)},
		{MethodName: "GetArchiveUploadURL", Handler: unary(MethodGetArchiveUploadURL, SyncServiceServer.GetArchiveUploadURL)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "zelebiz/v1/sync.proto",
}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// SyncServiceClient calls SyncService over a connection using Codec.
type SyncServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSyncServiceClient(cc grpc.ClientConnInterface) *SyncServiceClient {
	return &SyncServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SyncServiceClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, MethodPing, in, opts)
}

func (c *SyncServiceClient) SignUp(ctx context.Context, in *SignUpRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, MethodSignUp, in, opts)
}

func (c *SyncServiceClient) SignIn(ctx context.Context, in *SignInRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, MethodSignIn, in, opts)
}

func (c *SyncServiceClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, MethodRefresh, in, opts)
}

func (c *SyncServiceClient) SignOut(ctx context.Context, in *SignOutRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, MethodSignOut, in, opts)
}

func (c *SyncServiceClient) ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, MethodChangePassword, in, opts)
}

func (c *SyncServiceClient) ApplyMutation(ctx context.Context, in *MutationRequest, opts ...grpc.CallOption) (*MutationResponse, error) {
	return invoke[MutationResponse](ctx, c.cc, MethodApplyMutation, in, opts)
}

func (c *SyncServiceClient) FetchEntity(ctx context.Context, in *FetchRequest, opts ...grpc.CallOption) (*FetchResponse, error) {
	return invoke[FetchResponse](ctx, c.cc, MethodFetchEntity, in, opts)
}

func (c *SyncServiceClient) GetArchiveUploadURL(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ArchiveURLResponse, error) {
	return invoke[ArchiveURLResponse](ctx, c.cc, MethodGetArchiveUploadURL, in, opts)
}
