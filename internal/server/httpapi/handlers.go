package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/rpc"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, rpc.ErrorResponse{Error: msg})
}

// writeStatus renders an error returned by the rpc layer.
func writeStatus(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	writeError(w, HTTPStatusFromCode(st.Code()), st.Message())
}

// HTTPStatusFromCode maps gRPC codes onto HTTP statuses.
func HTTPStatusFromCode(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled:
		return 499
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed JSON: %v", err))
	return false
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// authed runs next with the caller's user in the request context.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, err := s.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeStatus(w, err)
			return
		}
		next(w, r.WithContext(ctx))
	}
}

func pathVar(r *http.Request, name string) (string, error) {
	v, err := url.PathUnescape(mux.Vars(r)[name])
	if err != nil {
		return "", fmt.Errorf("bad %s: %w", name, common.ErrValidation)
	}
	return v, nil
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Ping(r.Context(), &emptypb.Empty{})
	if err != nil {
		writeStatus(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.PingResponse{Status: resp.GetValue()})
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req rpc.SignUpRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.SignUp(r.Context(), &req)
	if err != nil {
		writeStatus(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req rpc.SignInRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.SignIn(r.Context(), &req)
	if err != nil {
		writeStatus(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req rpc.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Refresh(r.Context(), &req)
	if err != nil {
		writeStatus(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	var req rpc.SignOutRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.svc.SignOut(r.Context(), &req); err != nil {
		writeStatus(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req rpc.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.svc.ChangePassword(r.Context(), &req); err != nil {
		writeStatus(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) archiveURL(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.GetArchiveUploadURL(r.Context(), &emptypb.Empty{})
	if err != nil {
		writeStatus(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// applyMutation serves POST /v1/{entity}/{action}. The path names the entity
// and action; the Idempotency-Key header names the mutation.
func (s *Server) applyMutation(w http.ResponseWriter, r *http.Request) {
	entity, err := pathVar(r, "entity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	action, err := pathVar(r, "action")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req rpc.MutationRequest
	if !decode(w, r, &req) {
		return
	}

	key := r.Header.Get(common.IdempotencyKeyHeaderName)
	switch {
	case key == "" && req.IdempotencyKey == "":
		writeError(w, http.StatusBadRequest, "missing "+common.IdempotencyKeyHeaderName+" header")
		return
	case key != "" && req.IdempotencyKey != "" && key != req.IdempotencyKey:
		writeError(w, http.StatusBadRequest, common.IdempotencyKeyHeaderName+" does not match the body")
		return
	case key == "":
		key = req.IdempotencyKey
	}
	if (req.Entity != "" && req.Entity != entity) || (req.Action != "" && req.Action != action) {
		writeError(w, http.StatusBadRequest, "body does not match the path")
		return
	}

	req.IdempotencyKey, req.Entity, req.Action = key, entity, action

	resp, err := s.svc.ApplyMutation(r.Context(), &req)
	if err != nil {
		writeStatus(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fetchEntity(w http.ResponseWriter, r *http.Request) {
	entity, err := pathVar(r, "entity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := pathVar(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.svc.FetchEntity(r.Context(), &rpc.FetchRequest{Entity: entity, ID: id})
	if err != nil {
		writeStatus(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
