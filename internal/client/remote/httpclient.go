package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/rpc"
)

// REST paths served by the gateway.
const (
	PathPing           = "/v1/ping"
	PathSignUp         = "/v1/auth/signup"
	PathSignIn         = "/v1/auth/signin"
	PathRefresh        = "/v1/auth/refresh"
	PathSignOut        = "/v1/auth/signout"
	PathChangePassword = "/v1/auth/password"
	PathArchiveURL     = "/v1/archive-url"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// HTTPClient is the REST transport. Mutations go to POST /v1/{entity}/{action}
// with an Idempotency-Key header; reads to GET /v1/{entity}/{id}.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	tokens TokenSource
}

// NewHTTPClient returns a client for baseURL. A nil hc means a default client;
// per-request deadlines come from the caller's context.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *HTTPClient) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

func (c *HTTPClient) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

type request struct {
	method  string
	path    string
	body    any
	header  http.Header
	public  bool
	respond any
}

// do sends r, attaching a bearer token to non-public calls and retrying once
// with a refreshed token when the server reports it expired.
func (c *HTTPClient) do(ctx context.Context, r request) error {
	ts := c.tokenSource()
	if r.public || ts == nil {
		return c.send(ctx, r, "")
	}

	token, err := ts.AccessToken(ctx)
	if err != nil {
		return err
	}

	err = c.send(ctx, r, token)
	if !errors.Is(err, common.ErrTokenExpired) {
		return err
	}

	token, rerr := ts.RefreshAccessToken(ctx)
	if rerr != nil {
		return err
	}
	return c.send(ctx, r, token)
}

func (c *HTTPClient) send(ctx context.Context, r request, token string) error {
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%w: %w", common.ErrSerialization, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrNetworkTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e rpc.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return classifyStatus(resp.StatusCode, e.Error)
	}

	if r.respond == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.respond); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", common.ErrNetworkTimeout, err)
		}
		return fmt.Errorf("%w: decode response: %w", common.ErrServerError, err)
	}
	return nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var resp rpc.PingResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: PathPing, public: true, respond: &resp}); err != nil {
		return err
	}
	if resp.Status != rpc.PingOK {
		return fmt.Errorf("%w: ping status %q", common.ErrServerError, resp.Status)
	}
	return nil
}

// MutationPath is the REST endpoint for an entity and action.
func MutationPath(entity string, action models.Action) string {
	return "/v1/" + url.PathEscape(entity) + "/" + url.PathEscape(string(action))
}

// EntityPath is the REST endpoint that reads one entity.
func EntityPath(entity, id string) string {
	return "/v1/" + url.PathEscape(entity) + "/" + url.PathEscape(id)
}

func (c *HTTPClient) Submit(ctx context.Context, rec models.MutationRecord) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   MutationPath(rec.Entity, rec.Action),
		body:   toMutationRequest(rec),
		header: http.Header{common.IdempotencyKeyHeaderName: {rec.ID}},
	})
}

func (c *HTTPClient) Fetch(ctx context.Context, entity, id string) (json.RawMessage, error) {
	var resp rpc.FetchResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: EntityPath(entity, id), respond: &resp}); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (c *HTTPClient) auth(ctx context.Context, path string, body any) (*models.Session, error) {
	var resp rpc.AuthResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: path, body: body, public: true, respond: &resp}); err != nil {
		return nil, err
	}
	return toSession(&resp), nil
}

func (c *HTTPClient) SignUp(ctx context.Context, email, password string, p models.Profile) (*models.Session, error) {
	return c.auth(ctx, PathSignUp, &rpc.SignUpRequest{
		Email: email, Password: password, FirstName: p.FirstName, LastName: p.LastName,
	})
}

func (c *HTTPClient) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	return c.auth(ctx, PathSignIn, &rpc.SignInRequest{Email: email, Password: password})
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	return c.auth(ctx, PathRefresh, &rpc.RefreshRequest{RefreshToken: refreshToken})
}

func (c *HTTPClient) SignOut(ctx context.Context, refreshToken string) error {
	return c.do(ctx, request{method: http.MethodPost, path: PathSignOut, body: &rpc.SignOutRequest{RefreshToken: refreshToken}})
}

func (c *HTTPClient) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   PathChangePassword,
		body:   &rpc.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword},
	})
}

func (c *HTTPClient) ArchiveUploadURL(ctx context.Context) (string, string, error) {
	var resp rpc.ArchiveURLResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: PathArchiveURL, respond: &resp}); err != nil {
		return "", "", err
	}
	return resp.Key, resp.URL, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
