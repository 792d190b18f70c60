package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/zelebiz/zelebiz/internal/client/kvstore"
	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
)

// transition moves the records with the given ids to next, all or nothing.
// Records already in next are left alone.
func (q *Queue) transition(ctx context.Context, next models.SyncStatus, ids []string, apply func(r *models.MutationRecord)) error {
	return q.mutate(ctx, func(st *state) error {
		now := q.now()
		changed := false
		for _, id := range ids {
			i := st.index(id)
			if i < 0 {
				return fmt.Errorf("record %s: %w", id, common.ErrNotFound)
			}
			r := &st.records[i]
			if r.SyncStatus == next {
				continue
			}
			if !r.SyncStatus.CanTransition(next) {
				return fmt.Errorf("record %s %s -> %s: %w", id, r.SyncStatus, next, ErrInvalidTransition)
			}
			r.SyncStatus = next
			r.UpdatedAt = now
			if apply != nil {
				apply(r)
			}
			changed = true
		}
		if !changed {
			return kvstore.ErrSkipWrite
		}
		return nil
	})
}

// MarkInFlight claims a pending record for submission and marks it sent.
func (q *Queue) MarkInFlight(ctx context.Context, id string) error {
	return q.transition(ctx, models.StatusInFlight, []string{id}, func(r *models.MutationRecord) {
		r.Sent = true
	})
}

// MarkSynced records server confirmation for in-flight records.
func (q *Queue) MarkSynced(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return q.transition(ctx, models.StatusSynced, ids, func(r *models.MutationRecord) {
		r.LastError = ""
	})
}

// MarkFailed parks an in-flight record for the user. The failed submission
// counts as an attempt.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	return q.transition(ctx, models.StatusFailed, []string{id}, func(r *models.MutationRecord) {
		r.Attempts++
		r.LastError = errString(cause)
	})
}

// MarkRetry returns an in-flight record to pending after a transient failure
// and reports the new attempt count.
func (q *Queue) MarkRetry(ctx context.Context, id string, cause error) (int, error) {
	attempts := 0
	err := q.transition(ctx, models.StatusPending, []string{id}, func(r *models.MutationRecord) {
		r.Attempts++
		r.LastError = errString(cause)
		attempts = r.Attempts
	})
	return attempts, err
}

// Release returns an in-flight record to pending without counting an attempt.
func (q *Queue) Release(ctx context.Context, id string) error {
	return q.transition(ctx, models.StatusPending, []string{id}, nil)
}

// RecoverInFlight resets every in-flight record to pending. Called on start,
// since nothing can be in flight in a process that has just started.
func (q *Queue) RecoverInFlight(ctx context.Context) (int, error) {
	n := 0
	err := q.mutate(ctx, func(st *state) error {
		n = 0
		now := q.now()
		for i := range st.records {
			if st.records[i].SyncStatus == models.StatusInFlight {
				st.records[i].SyncStatus = models.StatusPending
				st.records[i].UpdatedAt = now
				n++
			}
		}
		if n == 0 {
			return kvstore.ErrSkipWrite
		}
		return nil
	})
	return n, err
}

// Resubmit puts a failed record back in line after the user has looked at
// it. A non-empty payload replaces the old one. Attempts start over.
func (q *Queue) Resubmit(ctx context.Context, id string, payload json.RawMessage) error {
	if len(payload) > 0 && !json.Valid(payload) {
		return fmt.Errorf("%w: payload is not valid JSON", common.ErrSerialization)
	}
	return q.mutate(ctx, func(st *state) error {
		i := st.index(id)
		if i < 0 {
			return fmt.Errorf("record %s: %w", id, common.ErrNotFound)
		}
		r := &st.records[i]
		if r.SyncStatus != models.StatusFailed {
			return fmt.Errorf("record %s is %s, not failed: %w", id, r.SyncStatus, ErrInvalidTransition)
		}
		r.SyncStatus = models.StatusPending
		r.Attempts = 0
		r.LastError = ""
		r.UpdatedAt = q.now()
		if len(payload) > 0 {
			r.Payload = slices.Clone(payload)
		}
		return nil
	})
}

// Discard drops a failed record the user has acknowledged.
func (q *Queue) Discard(ctx context.Context, id string) error {
	return q.mutate(ctx, func(st *state) error {
		i := st.index(id)
		if i < 0 {
			return fmt.Errorf("record %s: %w", id, common.ErrNotFound)
		}
		if s := st.records[i].SyncStatus; s != models.StatusFailed {
			return fmt.Errorf("record %s is %s, not failed: %w", id, s, ErrInvalidTransition)
		}
		st.records = slices.Delete(st.records, i, i+1)
		return nil
	})
}

// Remove deletes synced records by id. Unknown ids are ignored.
func (q *Queue) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return q.mutate(ctx, func(st *state) error {
		for _, id := range ids {
			if i := st.index(id); i >= 0 && st.records[i].SyncStatus != models.StatusSynced {
				return fmt.Errorf("record %s is %s: %w", id, st.records[i].SyncStatus, ErrInvalidTransition)
			}
		}
		before := len(st.records)
		st.records = slices.DeleteFunc(st.records, func(r models.MutationRecord) bool {
			return slices.Contains(ids, r.ID)
		})
		if len(st.records) == before {
			return kvstore.ErrSkipWrite
		}
		return nil
	})
}

// PurgeSynced removes synced records whose last status change is at least
// olderThan ago and returns how many were removed.
func (q *Queue) PurgeSynced(ctx context.Context, olderThan time.Duration) (int, error) {
	n := 0
	err := q.mutate(ctx, func(st *state) error {
		cutoff := q.now().Add(-olderThan)
		before := len(st.records)
		st.records = slices.DeleteFunc(st.records, func(r models.MutationRecord) bool {
			return r.SyncStatus == models.StatusSynced && !r.UpdatedAt.After(cutoff)
		})
		n = before - len(st.records)
		if n == 0 {
			return kvstore.ErrSkipWrite
		}
		return nil
	})
	return n, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
