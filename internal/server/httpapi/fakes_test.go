package httpapi

import (
	"context"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/rpc"
)

type userKey struct{}

type fakeAuth struct{}

func (fakeAuth) Authenticate(ctx context.Context, token string) (context.Context, error) {
	switch token {
	case "good":
		return context.WithValue(ctx, userKey{}, "u1"), nil
	case "expired":
		return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	case "":
		return nil, status.Error(codes.Unauthenticated, "missing token")
	default:
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
}

type fakeSync struct {
	mu        sync.Mutex
	mutations []*rpc.MutationRequest
	fetched   *rpc.FetchRequest
	signedOut string
	users     []string
	err       error
}

func (f *fakeSync) seenUser(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := ctx.Value(userKey{}).(string)
	f.users = append(f.users, id)
}

func (f *fakeSync) Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(rpc.PingOK), nil
}

func (f *fakeSync) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSync) failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeSync) applied() []*rpc.MutationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*rpc.MutationRequest(nil), f.mutations...)
}

func (f *fakeSync) lastFetch() *rpc.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched
}

func (f *fakeSync) seen() (users []string, signedOut string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.users...), f.signedOut
}

func (f *fakeSync) auth(email string) (*rpc.AuthResponse, error) {
	if err := f.failure(); err != nil {
		return nil, err
	}
	return &rpc.AuthResponse{
		User:         rpc.UserInfo{ID: "u1", Email: email},
		AccessToken:  "good",
		RefreshToken: "r1",
	}, nil
}

func (f *fakeSync) SignUp(_ context.Context, req *rpc.SignUpRequest) (*rpc.AuthResponse, error) {
	return f.auth(req.Email)
}

func (f *fakeSync) SignIn(_ context.Context, req *rpc.SignInRequest) (*rpc.AuthResponse, error) {
	return f.auth(req.Email)
}

func (f *fakeSync) Refresh(_ context.Context, req *rpc.RefreshRequest) (*rpc.AuthResponse, error) {
	return f.auth("")
}

func (f *fakeSync) SignOut(ctx context.Context, req *rpc.SignOutRequest) (*emptypb.Empty, error) {
	f.seenUser(ctx)
	f.mu.Lock()
	f.signedOut = req.RefreshToken
	f.mu.Unlock()
	return &emptypb.Empty{}, nil
}

func (f *fakeSync) ChangePassword(ctx context.Context, _ *rpc.ChangePasswordRequest) (*emptypb.Empty, error) {
	f.seenUser(ctx)
	if err := f.failure(); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (f *fakeSync) ApplyMutation(ctx context.Context, req *rpc.MutationRequest) (*rpc.MutationResponse, error) {
	f.seenUser(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.mutations = append(f.mutations, req)
	return &rpc.MutationResponse{Version: int64(len(f.mutations))}, nil
}

func (f *fakeSync) FetchEntity(ctx context.Context, req *rpc.FetchRequest) (*rpc.FetchResponse, error) {
	f.seenUser(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.fetched = req
	return &rpc.FetchResponse{Entity: req.Entity, ID: req.ID, Value: []byte(`{"name":"Ann"}`), Version: 3}, nil
}

func (f *fakeSync) GetArchiveUploadURL(ctx context.Context, _ *emptypb.Empty) (*rpc.ArchiveURLResponse, error) {
	f.seenUser(ctx)
	return &rpc.ArchiveURLResponse{Key: "archives/u1/x.jsonl.sz", URL: "https://s3/put"}, nil
}
