// Package httpapi is the REST face of the sync service. Requests are decoded
// into the rpc messages and handed to the same rpc.SyncServiceServer that
// serves gRPC, so both transports share validation and error mapping.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zelebiz/zelebiz/internal/logging"
	"github.com/zelebiz/zelebiz/internal/rpc"
)

// REST paths, matching the client's transport.
const (
	PathPing           = "/v1/ping"
	PathSignUp         = "/v1/auth/signup"
	PathSignIn         = "/v1/auth/signin"
	PathRefresh        = "/v1/auth/refresh"
	PathSignOut        = "/v1/auth/signout"
	PathChangePassword = "/v1/auth/password"
	PathArchiveURL     = "/v1/archive-url"
	PathMutation       = "/v1/{entity}/{action}"
	PathEntity         = "/v1/{entity}/{id}"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Authenticator turns an access token into a context carrying its user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (context.Context, error)
}

type Server struct {
	address string
	svc     rpc.SyncServiceServer
	auth    Authenticator
	logger  logging.Logger
}

func NewServer(address string, svc rpc.SyncServiceServer, auth Authenticator, logger logging.Logger) *Server {
	return &Server{
		address: address,
		svc:     svc,
		auth:    auth,
		logger:  logger.With("module", "http_server"),
	}
}

// Handler returns the router. Auth routes are registered before the
// {entity}/{action} pattern they would otherwise match.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.UseEncodedPath()
	r.Use(s.logRequests)

	r.HandleFunc(PathPing, s.ping).Methods(http.MethodGet)
	r.HandleFunc(PathSignUp, s.signUp).Methods(http.MethodPost)
	r.HandleFunc(PathSignIn, s.signIn).Methods(http.MethodPost)
	r.HandleFunc(PathRefresh, s.refresh).Methods(http.MethodPost)
	r.HandleFunc(PathSignOut, s.authed(s.signOut)).Methods(http.MethodPost)
	r.HandleFunc(PathChangePassword, s.authed(s.changePassword)).Methods(http.MethodPost)
	r.HandleFunc(PathArchiveURL, s.authed(s.archiveURL)).Methods(http.MethodPost)
	r.HandleFunc(PathMutation, s.authed(s.applyMutation)).Methods(http.MethodPost)
	r.HandleFunc(PathEntity, s.authed(s.fetchEntity)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis and shuts down gracefully when ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug(r.Context(), "http",
			"method", r.Method,
			"path", r.URL.EscapedPath(),
			"status", rec.status,
			"duration", time.Since(start))
	})
}
