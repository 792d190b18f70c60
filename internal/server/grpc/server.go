// Package grpc serves zelebiz.v1.SyncService: authentication, idempotent
// mutations, entity reads and archive upload URLs.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/zelebiz/zelebiz/internal/logging"
	"github.com/zelebiz/zelebiz/internal/rpc"
	"github.com/zelebiz/zelebiz/internal/server/models"
	"github.com/zelebiz/zelebiz/internal/server/services"
)

// UserService is the account side of the server.
type UserService interface {
	SignUp(ctx context.Context, email, password, firstName, lastName string) (*services.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	SignOut(ctx context.Context, refreshToken string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

// MutationService applies and reads entities.
type MutationService interface {
	Apply(ctx context.Context, m models.Mutation) (*services.ApplyResult, error)
	Fetch(ctx context.Context, userID, entity, id string) (*models.Entity, error)
}

// ArchiveService issues presigned archive upload URLs.
type ArchiveService interface {
	UploadURL(ctx context.Context, userID string) (string, string, error)
}

// GRPCServer implements rpc.SyncServiceServer.
type GRPCServer struct {
	address   string
	users     UserService
	mutations MutationService
	archives  ArchiveService
	logger    logging.Logger
	jwtSecret []byte
}

var _ rpc.SyncServiceServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, us UserService, ms MutationService, as ArchiveService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		mutations: ms,
		archives:  as,
		jwtSecret: []byte(secretKey),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis and stops gracefully when ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	rpc.RegisterSyncServiceServer(srv, s)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
