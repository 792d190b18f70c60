package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/zelebiz/zelebiz/internal/client/kvstore"
	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/logging"
)

// ErrInvalidTransition is returned when a record is asked to move to a
// status its current status does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

const corruptSuffix = ".corrupt"

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status        []models.SyncStatus
	Entity        string
	EntityID      string
	UpdatedBefore time.Time
}

func (f Filter) match(r *models.MutationRecord) bool {
	if len(f.Status) > 0 && !slices.Contains(f.Status, r.SyncStatus) {
		return false
	}
	if f.Entity != "" && f.Entity != r.Entity {
		return false
	}
	if f.EntityID != "" && f.EntityID != r.EntityID {
		return false
	}
	if !f.UpdatedBefore.IsZero() && r.UpdatedAt.After(f.UpdatedBefore) {
		return false
	}
	return true
}

// Unsynced matches everything the synchronizer still has to look at.
var Unsynced = Filter{Status: []models.SyncStatus{models.StatusPending, models.StatusInFlight, models.StatusFailed}}

type Queue struct {
	store  kvstore.Store
	key    string
	logger logging.Logger
	now    func() time.Time
	newID  func() (uuid.UUID, error)
}

func New(store kvstore.Store, logger logging.Logger) *Queue {
	return &Queue{
		store:  store,
		key:    common.StorageKeySyncQueue,
		logger: logger.With("module", "queue"),
		now:    time.Now,
		newID:  uuid.NewV7,
	}
}

// load reads the current state without writing anything back.
func (q *Queue) load(ctx context.Context) (*state, error) {
	raw, err := q.store.Get(ctx, q.key)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	st, err := decode(raw, q.now())
	if err != nil {
		q.logger.Error(ctx, "queue document unreadable, treating as empty", "error", err)
		return &state{}, nil
	}
	return st, nil
}

// mutate applies fn to the decoded queue and stores the result atomically.
// Returning kvstore.ErrSkipWrite from fn leaves the queue untouched.
func (q *Queue) mutate(ctx context.Context, fn func(st *state) error) error {
	return q.store.Update(ctx, q.key, func(raw []byte, _ bool) ([]byte, error) {
		st, err := decode(raw, q.now())
		if err != nil {
			q.logger.Error(ctx, "queue document unreadable, moving it aside", "error", err, "backup", q.key+corruptSuffix)
			if perr := q.store.Put(ctx, q.key+corruptSuffix, raw); perr != nil {
				return nil, perr
			}
			st = &state{}
		}
		if st.fresh > 0 {
			q.logger.Warn(ctx, "quarantined undecodable records", "count", st.fresh)
		}

		if err := fn(st); err != nil {
			return nil, err
		}

		b, err := st.encode()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrSerialization, err)
		}
		return b, nil
	})
}

// Enqueue appends a mutation, coalescing it with pending work on the same
// entity where that is safe:
//
//   - an update folds into the latest unsynced record for the key when that
//     record is a pending create or update that was never sent (its payload
//     is replaced); a sent record keeps its payload, since a retry under the
//     same idempotency key would be answered with the first result;
//   - a delete drops pending creates and updates for the key; if it dropped
//     a create and none of the dropped records was ever sent, the entity
//     never reached the server and nothing is queued, signalled by a nil
//     record and nil error.
//
// In-flight records are never rewritten.
func (q *Queue) Enqueue(ctx context.Context, entity, entityID string, action models.Action, payload json.RawMessage) (*models.MutationRecord, error) {
	if entity == "" || entityID == "" {
		return nil, fmt.Errorf("%w: entity and entity id are required", common.ErrValidation)
	}
	if _, err := models.ParseAction(string(action)); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", common.ErrSerialization)
	}

	id, err := q.newID()
	if err != nil {
		return nil, fmt.Errorf("generate record id: %w", err)
	}

	var out *models.MutationRecord
	err = q.mutate(ctx, func(st *state) error {
		now := q.now()
		out = nil

		switch action {
		case models.ActionUpdate:
			if i := latestUnsynced(st.records, entity, entityID); i >= 0 {
				r := &st.records[i]
				if r.SyncStatus == models.StatusPending && r.NeverSent() &&
					(r.Action == models.ActionCreate || r.Action == models.ActionUpdate) {
					r.Payload = slices.Clone(payload)
					r.UpdatedAt = now
					cp := *r
					out = &cp
					return nil
				}
			}
		case models.ActionDelete:
			droppedCreate, droppedSent := false, false
			st.records = slices.DeleteFunc(st.records, func(r models.MutationRecord) bool {
				drop := r.Entity == entity && r.EntityID == entityID &&
					r.SyncStatus == models.StatusPending &&
					(r.Action == models.ActionCreate || r.Action == models.ActionUpdate)
				if drop {
					droppedCreate = droppedCreate || r.Action == models.ActionCreate
					droppedSent = droppedSent || !r.NeverSent()
				}
				return drop
			})
			if droppedCreate && !droppedSent {
				return nil
			}
		}

		rec := models.MutationRecord{
			ID:         id.String(),
			Entity:     entity,
			EntityID:   entityID,
			Action:     action,
			Payload:    slices.Clone(payload),
			EnqueuedAt: now,
			SyncStatus: models.StatusPending,
			UpdatedAt:  now,
		}
		st.records = append(st.records, rec)
		out = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out == nil {
		q.logger.Debug(ctx, "delete cancelled unsynced create", "entity", entity, "entity_id", entityID)
	} else {
		q.logger.Debug(ctx, "enqueued", "id", out.ID, "entity", entity, "entity_id", entityID, "action", action)
	}
	return out, nil
}

func latestUnsynced(records []models.MutationRecord, entity, entityID string) int {
	for i := len(records) - 1; i >= 0; i-- {
		r := &records[i]
		if r.Entity == entity && r.EntityID == entityID && r.SyncStatus != models.StatusSynced {
			return i
		}
	}
	return -1
}

// List yields records matching f ordered by enqueue time. Every range over
// the returned sequence reads the queue afresh.
func (q *Queue) List(ctx context.Context, f Filter) iter.Seq2[models.MutationRecord, error] {
	return func(yield func(models.MutationRecord, error) bool) {
		st, err := q.load(ctx)
		if err != nil {
			yield(models.MutationRecord{}, err)
			return
		}

		records := slices.Clone(st.records)
		slices.SortStableFunc(records, func(a, b models.MutationRecord) int {
			return a.EnqueuedAt.Compare(b.EnqueuedAt)
		})

		for _, r := range records {
			if !f.match(&r) {
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Records collects List into a slice.
func (q *Queue) Records(ctx context.Context, f Filter) ([]models.MutationRecord, error) {
	var out []models.MutationRecord
	for r, err := range q.List(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*models.MutationRecord, error) {
	st, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	i := st.index(id)
	if i < 0 {
		return nil, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	r := st.records[i]
	return &r, nil
}

// PendingCount reports how many records still wait for the server.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	n := 0
	for _, err := range q.List(ctx, Filter{Status: []models.SyncStatus{models.StatusPending, models.StatusInFlight}}) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (q *Queue) Quarantined(ctx context.Context) ([]QuarantinedRecord, error) {
	st, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	return st.quarantine, nil
}
