package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/rpc"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *rpc.SyncServiceClient

	mu     sync.RWMutex
	tokens TokenSource
}

func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = rpc.NewSyncServiceClient(conn)
	return c, nil
}

func (c *GRPCClient) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

func (c *GRPCClient) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

// accessTokenInterceptor attaches the access token to non-public calls and
// retries once with a refreshed token when the server says it expired.
func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ts := c.tokenSource()
	if rpc.IsPublic(method) || ts == nil {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	token, err := ts.AccessToken(ctx)
	if err != nil {
		return err
	}

	err = invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
	if err == nil || !errors.Is(mapError(err), common.ErrTokenExpired) {
		return err
	}

	token, rerr := ts.RefreshAccessToken(ctx)
	if rerr != nil {
		return err
	}
	return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(ctx, &emptypb.Empty{})
	if err != nil {
		return mapError(err)
	}
	if resp.GetValue() != rpc.PingOK {
		return fmt.Errorf("%w: ping status %q", common.ErrServerError, resp.GetValue())
	}
	return nil
}

func (c *GRPCClient) Submit(ctx context.Context, rec models.MutationRecord) error {
	_, err := c.client.ApplyMutation(ctx, toMutationRequest(rec))
	return mapError(err)
}

func (c *GRPCClient) Fetch(ctx context.Context, entity, id string) (json.RawMessage, error) {
	resp, err := c.client.FetchEntity(ctx, &rpc.FetchRequest{Entity: entity, ID: id})
	if err != nil {
		return nil, mapError(err)
	}
	return resp.Value, nil
}

func (c *GRPCClient) SignUp(ctx context.Context, email, password string, p models.Profile) (*models.Session, error) {
	resp, err := c.client.SignUp(ctx, &rpc.SignUpRequest{
		Email: email, Password: password, FirstName: p.FirstName, LastName: p.LastName,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return toSession(resp), nil
}

func (c *GRPCClient) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	resp, err := c.client.SignIn(ctx, &rpc.SignInRequest{Email: email, Password: password})
	if err != nil {
		return nil, mapError(err)
	}
	return toSession(resp), nil
}

func (c *GRPCClient) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	resp, err := c.client.Refresh(ctx, &rpc.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, mapError(err)
	}
	return toSession(resp), nil
}

func (c *GRPCClient) SignOut(ctx context.Context, refreshToken string) error {
	_, err := c.client.SignOut(ctx, &rpc.SignOutRequest{RefreshToken: refreshToken})
	return mapError(err)
}

func (c *GRPCClient) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	_, err := c.client.ChangePassword(ctx, &rpc.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword})
	return mapError(err)
}

func (c *GRPCClient) ArchiveUploadURL(ctx context.Context) (string, string, error) {
	resp, err := c.client.GetArchiveUploadURL(ctx, &emptypb.Empty{})
	if err != nil {
		return "", "", mapError(err)
	}
	return resp.Key, resp.URL, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
