package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/client/queue"
	"github.com/zelebiz/zelebiz/internal/client/syncer"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/logging"
)

// Syncer is the part of the synchronizer the UI can poke.
type Syncer interface {
	Trigger()
	Drain(ctx context.Context) (syncer.Report, error)
}

// Reader serves entity reads, from the cache or the server.
type Reader interface {
	Read(ctx context.Context, entity, id string) (*models.CacheEntry, error)
}

// MutationService records local changes. Every write lands in the queue
// first and succeeds without the network; the synchronizer is nudged
// afterwards.
type MutationService struct {
	queue  *queue.Queue
	reader Reader
	sync   Syncer
	logger logging.Logger
}

func NewMutationService(q *queue.Queue, reader Reader, sync Syncer, logger logging.Logger) *MutationService {
	return &MutationService{
		queue:  q,
		reader: reader,
		sync:   sync,
		logger: logger.With("module", "mutations"),
	}
}

func checkEntity(entity string) error {
	if strings.TrimSpace(entity) == "" || strings.Contains(entity, "/") {
		return fmt.Errorf("%w: bad entity name %q", common.ErrValidation, entity)
	}
	return nil
}

// Create queues a new entity. An empty id is replaced with a fresh UUIDv7,
// which is returned in the record.
func (s *MutationService) Create(ctx context.Context, entity, id string, payload json.RawMessage) (*models.MutationRecord, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("entity id: %w", err)
		}
		id = u.String()
	}
	return s.enqueue(ctx, entity, id, models.ActionCreate, payload)
}

func (s *MutationService) Update(ctx context.Context, entity, id string, payload json.RawMessage) (*models.MutationRecord, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, entity, id, models.ActionUpdate, payload)
}

// Delete queues a delete. It returns a nil record when the entity was
// created locally and never reached the server, so nothing is left to send.
func (s *MutationService) Delete(ctx context.Context, entity, id string) (*models.MutationRecord, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, entity, id, models.ActionDelete, nil)
}

func (s *MutationService) enqueue(ctx context.Context, entity, id string, action models.Action, payload json.RawMessage) (*models.MutationRecord, error) {
	rec, err := s.queue.Enqueue(ctx, entity, id, action, payload)
	if err != nil {
		return nil, fmt.Errorf("%s %s/%s: %w", action, entity, id, err)
	}
	s.logger.Debug(ctx, "queued mutation", "entity", entity, "id", id, "action", action, "coalesced", rec == nil)
	s.sync.Trigger()
	return rec, nil
}

// Pending lists records still waiting for the server, including the ones
// being submitted right now.
func (s *MutationService) Pending(ctx context.Context) ([]models.MutationRecord, error) {
	return s.queue.Records(ctx, queue.Filter{
		Status: []models.SyncStatus{models.StatusPending, models.StatusInFlight},
	})
}

// Failed lists records the server rejected. They hold back later changes to
// the same entity until discarded or resubmitted.
func (s *MutationService) Failed(ctx context.Context) ([]models.MutationRecord, error) {
	return s.queue.Records(ctx, queue.Filter{Status: []models.SyncStatus{models.StatusFailed}})
}

func (s *MutationService) Discard(ctx context.Context, id string) error {
	if err := s.queue.Discard(ctx, id); err != nil {
		return err
	}
	// Records behind the discarded one are free to go.
	s.sync.Trigger()
	return nil
}

// Resubmit puts a failed record back in line, optionally with an edited
// payload.
func (s *MutationService) Resubmit(ctx context.Context, id string, payload json.RawMessage) error {
	if err := s.queue.Resubmit(ctx, id, payload); err != nil {
		return err
	}
	s.sync.Trigger()
	return nil
}

// SyncNow drains the queue in the foreground.
func (s *MutationService) SyncNow(ctx context.Context) (syncer.Report, error) {
	return s.sync.Drain(ctx)
}

func (s *MutationService) Get(ctx context.Context, entity, id string) (*models.CacheEntry, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	return s.reader.Read(ctx, entity, id)
}

func (s *MutationService) PendingCount(ctx context.Context) (int, error) {
	return s.queue.PendingCount(ctx)
}

func (s *MutationService) Quarantined(ctx context.Context) ([]queue.QuarantinedRecord, error) {
	return s.queue.Quarantined(ctx)
}
