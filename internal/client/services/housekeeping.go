package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/snappy"
	"go.uber.org/multierr"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/client/queue"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/logging"
	"github.com/zelebiz/zelebiz/internal/netx"
)

// ArchiveTarget hands out presigned upload URLs for archives.
type ArchiveTarget interface {
	ArchiveUploadURL(ctx context.Context) (key, url string, err error)
}

// Collector garbage-collects old cache entries.
type Collector interface {
	Collect(ctx context.Context) (int, error)
}

type Connectivity interface {
	Current() bool
}

type HousekeeperOptions struct {
	// Retention is how long synced records are kept after they synced.
	Retention time.Duration
	// Archive uploads synced records before removing them.
	Archive bool
}

// HousekeepingReport tells what one Run removed.
type HousekeepingReport struct {
	Archived   int
	ArchiveKey string
	Purged     int
	Collected  int
}

type Housekeeper struct {
	queue   *queue.Queue
	cache   Collector
	archive ArchiveTarget
	online  Connectivity
	opts    HousekeeperOptions
	logger  logging.Logger

	httpClient *http.Client
	now        func() time.Time
}

func NewHousekeeper(q *queue.Queue, cache Collector, archive ArchiveTarget, online Connectivity, opts HousekeeperOptions, logger logging.Logger) *Housekeeper {
	return &Housekeeper{
		queue:      q,
		cache:      cache,
		archive:    archive,
		online:     online,
		opts:       opts,
		logger:     logger.With("module", "housekeeper"),
		httpClient: &http.Client{Timeout: time.Minute},
		now:        time.Now,
	}
}

// Run removes synced records past retention and collects the cache. With
// archiving on, records are only removed once their archive is uploaded;
// while offline they stay where they are.
func (h *Housekeeper) Run(ctx context.Context) (HousekeepingReport, error) {
	var (
		report HousekeepingReport
		errs   error
	)

	if h.opts.Archive {
		key, n, err := h.archiveSynced(ctx)
		report.ArchiveKey, report.Archived = key, n
		errs = multierr.Append(errs, err)
	} else {
		n, err := h.queue.PurgeSynced(ctx, h.opts.Retention)
		report.Purged = n
		errs = multierr.Append(errs, err)
	}

	n, err := h.cache.Collect(ctx)
	report.Collected = n
	errs = multierr.Append(errs, err)

	if report != (HousekeepingReport{}) {
		h.logger.Info(ctx, "housekeeping finished",
			"archived", report.Archived, "purged", report.Purged, "collected", report.Collected)
	}
	return report, errs
}

func (h *Housekeeper) archiveSynced(ctx context.Context) (string, int, error) {
	records, err := h.queue.Records(ctx, queue.Filter{
		Status:        []models.SyncStatus{models.StatusSynced},
		UpdatedBefore: h.now().Add(-h.opts.Retention),
	})
	if err != nil || len(records) == 0 {
		return "", 0, err
	}
	if !h.online.Current() {
		h.logger.Debug(ctx, "offline, archive postponed", "records", len(records))
		return "", 0, nil
	}

	body, err := encodeArchive(records)
	if err != nil {
		return "", 0, err
	}

	key, url, err := h.archive.ArchiveUploadURL(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("archive url: %w", err)
	}
	if err := netx.UploadToPresignedURL(ctx, h.httpClient, url, common.ArchiveContentType, body); err != nil {
		return "", 0, fmt.Errorf("archive %s: %w", key, err)
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := h.queue.Remove(ctx, ids...); err != nil {
		return key, 0, fmt.Errorf("remove archived records: %w", err)
	}
	return key, len(records), nil
}

// encodeArchive writes one JSON record per line into a snappy stream.
func encodeArchive(records []models.MutationRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encode archive: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Loop runs housekeeping every interval until ctx is done.
func (h *Housekeeper) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := h.Run(ctx); err != nil && ctx.Err() == nil {
			h.logger.Warn(ctx, "housekeeping failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
