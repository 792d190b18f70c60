package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zelebiz/zelebiz/internal/common"
)

// mapError converts a gRPC status into the common sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, common.ErrUnauthorized) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %w", common.ErrNetworkTimeout, err)
	}

	msg := st.Message()
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		if msg == common.ErrTokenExpired.Error() {
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, common.ErrTokenExpired)
		}
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, msg)
	case codes.NotFound:
		return fmt.Errorf("%w: %w: %s", common.ErrValidation, common.ErrNotFound, msg)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return fmt.Errorf("%w: %s", common.ErrValidation, msg)
	case codes.AlreadyExists, codes.Aborted:
		return fmt.Errorf("%w: %s", common.ErrConflict, msg)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", common.ErrNetworkTimeout, msg)
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("%w: %s: %s", common.ErrServerError, st.Code(), msg)
	}
}

// classifyStatus converts a non-2xx HTTP status into the common sentinels.
func classifyStatus(code int, msg string) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		if msg == common.ErrTokenExpired.Error() {
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, common.ErrTokenExpired)
		}
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, msg)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %w: %s", common.ErrValidation, common.ErrNotFound, msg)
	case code == http.StatusConflict:
		return fmt.Errorf("%w: %s", common.ErrConflict, msg)
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %d %s", common.ErrNetworkTimeout, code, msg)
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: %d %s", common.ErrValidation, code, msg)
	case code >= 500:
		return fmt.Errorf("%w: %d %s", common.ErrServerError, code, msg)
	default:
		return fmt.Errorf("%w: unexpected status %d", common.ErrServerError, code)
	}
}
