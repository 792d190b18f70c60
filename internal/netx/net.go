// Package netx holds small HTTP helpers shared by client services.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/zelebiz/zelebiz/internal/common"
)

// maxBody bounds how much of a failed upload response is kept for the error.
const maxBody = 1 << 10

// UploadToPresignedURL PUTs body to a presigned object-store URL. The
// content type must match the one the URL was signed for.
func UploadToPresignedURL(ctx context.Context, hc *http.Client, url, contentType string, body []byte) error {
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(body))

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w: %w", common.ErrNetworkTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		sentinel := common.ErrValidation
		if resp.StatusCode >= 500 {
			sentinel = common.ErrServerError
		}
		return fmt.Errorf("upload failed: %s: %w; body: %s", resp.Status, sentinel, string(b))
	}
	return nil
}
