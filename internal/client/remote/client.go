// Package remote talks to the sync server. Two transports implement the
// same Client contract: gRPC (GRPCClient) and REST over HTTP (HTTPClient).
// Both translate failures into the sentinels of package common so callers
// can classify them with errors.Is and common.IsRetryable.
package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/rpc"
)

type Client interface {
	Ping(ctx context.Context) error

	// Submit applies one queued mutation. The record id is sent as the
	// idempotency key.
	Submit(ctx context.Context, rec models.MutationRecord) error
	Fetch(ctx context.Context, entity, id string) (json.RawMessage, error)

	SignUp(ctx context.Context, email, password string, profile models.Profile) (*models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error

	// ArchiveUploadURL returns an object key and a presigned URL to PUT an
	// archive of synced records to.
	ArchiveUploadURL(ctx context.Context) (key, url string, err error)

	SetTokenSource(ts TokenSource)
	Close() error
}

// TokenSource supplies access tokens for authenticated calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	// RefreshAccessToken forces a refresh after the server rejected the
	// current token as expired.
	RefreshAccessToken(ctx context.Context) (string, error)
}

func toSession(r *rpc.AuthResponse) *models.Session {
	return &models.Session{
		User: models.User{
			ID:        r.User.ID,
			Email:     r.User.Email,
			FirstName: r.User.FirstName,
			LastName:  r.User.LastName,
		},
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
	}
}

func toMutationRequest(rec models.MutationRecord) *rpc.MutationRequest {
	return &rpc.MutationRequest{
		IdempotencyKey: rec.ID,
		Entity:         rec.Entity,
		EntityID:       rec.EntityID,
		Action:         string(rec.Action),
		Payload:        rec.Payload,
	}
}

// Transport names accepted by New.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

var (
	_ Client = (*GRPCClient)(nil)
	_ Client = (*HTTPClient)(nil)
)

// New builds the client for the configured transport.
func New(transport, grpcAddr, httpBaseURL string) (Client, error) {
	switch transport {
	case TransportGRPC, "":
		return NewGRPCClient(grpcAddr)
	case TransportHTTP:
		return NewHTTPClient(httpBaseURL, nil), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}
