package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-retry"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
)

type outcome int

const (
	outcomeSynced outcome = iota + 1
	outcomeFailed
	// outcomeStopped leaves the record pending: offline or not signed in.
	outcomeStopped
	// outcomeGone means the record left the queue while waiting, superseded
	// by a later delete.
	outcomeGone
)

// process runs one record through in-flight to synced, failed or back to
// pending, retrying transient errors with backoff while online.
func (s *Synchronizer) process(ctx context.Context, rec models.MutationRecord, report *Report) (outcome, error) {
	var res outcome

	err := retry.Do(ctx, s.backoff(rec.Attempts), func(ctx context.Context) error {
		if !s.online.Current() {
			res = outcomeStopped
			return nil
		}

		if err := s.queue.MarkInFlight(ctx, rec.ID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				res = outcomeGone
				return nil
			}
			return err
		}
		// In flight the record can no longer be coalesced; submit what is stored.
		cur, err := s.queue.Get(ctx, rec.ID)
		if err != nil {
			return err
		}

		rctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
		err = s.remote.Submit(rctx, *cur)
		cancel()

		log := s.logger.With("id", cur.ID, "entity", cur.Entity, "entity_id", cur.EntityID, "action", cur.Action)

		switch {
		case err == nil:
			if err := s.cache.Invalidate(ctx, cur.Entity, cur.EntityID); err != nil {
				_ = s.queue.Release(context.WithoutCancel(ctx), cur.ID)
				return fmt.Errorf("invalidate cache: %w", err)
			}
			if err := s.queue.MarkSynced(ctx, cur.ID); err != nil {
				return err
			}
			log.Debug(ctx, "synced")
			res = outcomeSynced
			return nil

		case ctx.Err() != nil:
			// Shutting down: the server may or may not have applied it, the
			// idempotency key makes the next attempt safe.
			_ = s.queue.Release(context.WithoutCancel(ctx), cur.ID)
			return ctx.Err()

		case errors.Is(err, common.ErrUnauthorized):
			log.Warn(ctx, "not authorized, waiting for sign-in", "error", err)
			if err := s.queue.Release(ctx, cur.ID); err != nil {
				return err
			}
			res = outcomeStopped
			return nil

		case common.IsRetryable(err):
			if cur.Attempts+1 >= s.opts.MaxAttempts {
				log.Warn(ctx, "giving up after max attempts", "attempts", cur.Attempts+1, "error", err)
				if err := s.queue.MarkFailed(ctx, cur.ID, err); err != nil {
					return err
				}
				res = outcomeFailed
				return nil
			}
			n, merr := s.queue.MarkRetry(ctx, cur.ID, err)
			if merr != nil {
				return merr
			}
			report.Retried++
			log.Debug(ctx, "transient failure, will retry", "attempts", n, "error", err)
			return retry.RetryableError(err)

		default:
			log.Warn(ctx, "rejected by server", "error", err)
			if err := s.queue.MarkFailed(ctx, cur.ID, err); err != nil {
				return err
			}
			res = outcomeFailed
			return nil
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if common.IsRetryable(err) {
			// Backoff gave up before MaxAttempts; the record is pending.
			return outcomeStopped, nil
		}
		return 0, err
	}
	return res, nil
}
