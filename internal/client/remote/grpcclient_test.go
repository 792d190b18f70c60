package remote

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/rpc"
)

type fakeSyncServer struct {
	mu        sync.Mutex
	tokens    []string
	mutations []*rpc.MutationRequest
	applyErr  error
	valid     string
}

func (s *fakeSyncServer) token(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(common.AccessTokenHeaderName); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (s *fakeSyncServer) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	s.mu.Lock()
	s.tokens = append(s.tokens, s.token(ctx))
	s.mu.Unlock()
	return wrapperspb.String(rpc.PingOK), nil
}

func (s *fakeSyncServer) SignUp(_ context.Context, in *rpc.SignUpRequest) (*rpc.AuthResponse, error) {
	return &rpc.AuthResponse{User: rpc.UserInfo{ID: "u1", Email: in.Email, LastName: in.LastName}, AccessToken: "a"}, nil
}

func (s *fakeSyncServer) SignIn(context.Context, *rpc.SignInRequest) (*rpc.AuthResponse, error) {
	return nil, status.Error(codes.Unauthenticated, "invalid credentials")
}

func (s *fakeSyncServer) Refresh(context.Context, *rpc.RefreshRequest) (*rpc.AuthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "")
}

func (s *fakeSyncServer) SignOut(context.Context, *rpc.SignOutRequest) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, nil
}

func (s *fakeSyncServer) ChangePassword(context.Context, *rpc.ChangePasswordRequest) (*emptypb.Empty, error) {
	return nil, status.Error(codes.InvalidArgument, "password too short")
}

func (s *fakeSyncServer) ApplyMutation(ctx context.Context, in *rpc.MutationRequest) (*rpc.MutationResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := s.token(ctx)
	s.tokens = append(s.tokens, tok)
	if s.valid != "" && tok != s.valid {
		return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	s.mutations = append(s.mutations, in)
	return &rpc.MutationResponse{Version: 1}, nil
}

func (s *fakeSyncServer) FetchEntity(_ context.Context, in *rpc.FetchRequest) (*rpc.FetchResponse, error) {
	if in.ID == "missing" {
		return nil, status.Error(codes.NotFound, "no such entity")
	}
	return &rpc.FetchResponse{Value: json.RawMessage(`{"id":"` + in.ID + `"}`)}, nil
}

func (s *fakeSyncServer) GetArchiveUploadURL(context.Context, *emptypb.Empty) (*rpc.ArchiveURLResponse, error) {
	return &rpc.ArchiveURLResponse{Key: "archives/u1/x.jsonl.sz", URL: "https://s3/put"}, nil
}

func newGRPCClient(t *testing.T, srv rpc.SyncServiceServer) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	rpc.RegisterSyncServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGRPCClient_SubmitCarriesRecordAndToken(t *testing.T) {
	srv := &fakeSyncServer{}
	c := newGRPCClient(t, srv)
	c.SetTokenSource(&fakeTokens{token: "tok"})

	rec := models.MutationRecord{ID: "rec-1", Entity: "inventory", EntityID: "i1", Action: models.ActionCreate, Payload: json.RawMessage(`{"qty":3}`)}
	require.NoError(t, c.Submit(context.Background(), rec))

	require.Len(t, srv.mutations, 1)
	m := srv.mutations[0]
	assert.Equal(t, "rec-1", m.IdempotencyKey)
	assert.Equal(t, "inventory", m.Entity)
	assert.Equal(t, "i1", m.EntityID)
	assert.Equal(t, "create", m.Action)
	assert.JSONEq(t, `{"qty":3}`, string(m.Payload))
	assert.Equal(t, []string{"tok"}, srv.tokens)
}

func TestGRPCClient_PingIsPublic(t *testing.T) {
	srv := &fakeSyncServer{}
	c := newGRPCClient(t, srv)
	c.SetTokenSource(&fakeTokens{err: common.ErrUnauthorized})

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, []string{""}, srv.tokens)
}

func TestGRPCClient_RefreshesExpiredToken(t *testing.T) {
	srv := &fakeSyncServer{valid: "fresh"}
	c := newGRPCClient(t, srv)
	ts := &fakeTokens{token: "stale", refreshed: "fresh"}
	c.SetTokenSource(ts)

	rec := models.MutationRecord{ID: "r", Entity: "sales", EntityID: "1", Action: models.ActionCreate}
	require.NoError(t, c.Submit(context.Background(), rec))
	assert.EqualValues(t, 1, ts.refreshes.Load())
	assert.Equal(t, []string{"stale", "fresh"}, srv.tokens)
}

func TestGRPCClient_ErrorMapping(t *testing.T) {
	srv := &fakeSyncServer{applyErr: status.Error(codes.Unavailable, "db down")}
	c := newGRPCClient(t, srv)
	ctx := context.Background()

	err := c.Submit(ctx, models.MutationRecord{ID: "r", Entity: "sales", EntityID: "1", Action: models.ActionCreate})
	assert.True(t, common.IsRetryable(err))

	_, err = c.Fetch(ctx, "sales", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = c.SignIn(ctx, "a@b.c", "wrong")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	err = c.ChangePassword(ctx, "a", "b")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestGRPCClient_OtherCalls(t *testing.T) {
	c := newGRPCClient(t, &fakeSyncServer{})
	ctx := context.Background()

	s, err := c.SignUp(ctx, "a@b.c", "pw", models.Profile{LastName: "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Lovelace", s.User.LastName)

	v, err := c.Fetch(ctx, "customers", "c9")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c9"}`, string(v))

	key, url, err := c.ArchiveUploadURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "archives/u1/x.jsonl.sz", key)
	assert.Equal(t, "https://s3/put", url)

	require.NoError(t, c.SignOut(ctx, "r"))
}
