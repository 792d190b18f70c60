package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/zelebiz/zelebiz/internal/rpc"
	"github.com/zelebiz/zelebiz/internal/server/models"
	"github.com/zelebiz/zelebiz/internal/server/services"
)

func toAuthResponse(r *services.AuthResult) *rpc.AuthResponse {
	return &rpc.AuthResponse{
		User: rpc.UserInfo{
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

func (s *GRPCServer) userID(ctx context.Context) (string, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(rpc.PingOK), nil
}

func (s *GRPCServer) SignUp(ctx context.Context, req *rpc.SignUpRequest) (*rpc.AuthResponse, error) {
	res, err := s.users.SignUp(ctx, req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	s.logger.Info(ctx, "Registered", "user_id", res.User.ID)
	return toAuthResponse(res), nil
}

func (s *GRPCServer) SignIn(ctx context.Context, req *rpc.SignInRequest) (*rpc.AuthResponse, error) {
	res, err := s.users.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return toAuthResponse(res), nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *rpc.RefreshRequest) (*rpc.AuthResponse, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing refresh token")
	}
	res, err := s.users.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return toAuthResponse(res), nil
}

func (s *GRPCServer) SignOut(ctx context.Context, req *rpc.SignOutRequest) (*emptypb.Empty, error) {
	if _, err := s.userID(ctx); err != nil {
		return nil, err
	}
	if err := s.users.SignOut(ctx, req.RefreshToken); err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *rpc.ChangePasswordRequest) (*emptypb.Empty, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.users.ChangePassword(ctx, userID, req.OldPassword, req.NewPassword); err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) ApplyMutation(ctx context.Context, req *rpc.MutationRequest) (*rpc.MutationResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.mutations.Apply(ctx, models.Mutation{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         userID,
		Entity:         req.Entity,
		EntityID:       req.EntityID,
		Action:         models.Action(req.Action),
		Payload:        req.Payload,
	})
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &rpc.MutationResponse{Version: res.Version, Replayed: res.Replayed}, nil
}

func (s *GRPCServer) FetchEntity(ctx context.Context, req *rpc.FetchRequest) (*rpc.FetchResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	e, err := s.mutations.Fetch(ctx, userID, req.Entity, req.ID)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &rpc.FetchResponse{
		Entity:    e.Entity,
		ID:        e.ID,
		Value:     e.Value,
		Version:   e.Version,
		UpdatedAt: e.UpdatedAt,
	}, nil
}

func (s *GRPCServer) GetArchiveUploadURL(ctx context.Context, _ *emptypb.Empty) (*rpc.ArchiveURLResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	key, url, err := s.archives.UploadURL(ctx, userID)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &rpc.ArchiveURLResponse{Key: key, URL: url}, nil
}
