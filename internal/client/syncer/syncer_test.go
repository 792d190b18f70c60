package syncer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/client/queue"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/logging"
)

func TestDrain_OfflineDoesNothing(t *testing.T) {
	f := newFixture(t)
	r := f.enqueue(t, "customers", "c1", models.ActionCreate, `{}`)

	_, err := f.sync.Drain(context.Background())
	require.ErrorIs(t, err, ErrOffline)
	assert.Empty(t, f.server.Calls())
	assert.Equal(t, models.StatusPending, f.record(t, r.ID).SyncStatus)
}

func TestDrain_SyncsAndInvalidatesBeforeMarkingSynced(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	r := f.enqueue(t, "customers", "c1", models.ActionUpdate, `{"name":"Ada"}`)

	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Synced: 1}, rep)

	got := f.record(t, r.ID)
	assert.Equal(t, models.StatusSynced, got.SyncStatus)
	assert.Equal(t, []string{"customers#c1"}, f.cache.seen)
	assert.Equal(t, []models.SyncStatus{models.StatusInFlight}, f.cache.order,
		"cache is invalidated while the record is still in flight")
}

func TestDrain_CacheInvalidationFailureKeepsRecordPending(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.cache.err = common.ErrStorageUnavailable
	r := f.enqueue(t, "customers", "c1", models.ActionUpdate, `{}`)

	_, err := f.sync.Drain(context.Background())
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.Equal(t, models.StatusPending, f.record(t, r.ID).SyncStatus)
}

func TestDrain_TransientErrorsBackOffThenSucceed(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.script = func(_ models.MutationRecord, call int) error {
		if call < 3 {
			return fmt.Errorf("%w: 500", common.ErrServerError)
		}
		return nil
	}
	r := f.enqueue(t, "sales", "s1", models.ActionCreate, `{"total":10}`)

	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Synced: 1, Retried: 3}, rep)

	got := f.record(t, r.ID)
	assert.Equal(t, models.StatusSynced, got.SyncStatus)
	assert.Equal(t, 3, got.Attempts)
	assert.Len(t, f.server.Calls(), 4)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, f.delays)
	for i := 1; i < len(f.delays); i++ {
		assert.Greater(t, f.delays[i], f.delays[i-1])
	}
}

func TestDrain_MaxAttemptsMarksFailed(t *testing.T) {
	opts := testOptions()
	opts.MaxAttempts = 3
	f := newFixtureWith(t, newStore(), opts)
	f.online.Set(true)
	f.server.script = func(models.MutationRecord, int) error { return common.ErrNetworkTimeout }

	// The entity exists remotely: delete it, then re-create it.
	r := f.enqueue(t, "sales", "s1", models.ActionDelete, "")
	behind := f.enqueue(t, "sales", "s1", models.ActionCreate, `{}`)
	require.NotEqual(t, r.ID, behind.ID)

	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Retried: 2, Failed: 1, Blocked: 1}, rep)

	got := f.record(t, r.ID)
	assert.Equal(t, models.StatusFailed, got.SyncStatus)
	assert.Equal(t, 3, got.Attempts)
	assert.Contains(t, got.LastError, "network timeout")
	assert.Len(t, f.server.Calls(), 3)
	assert.Equal(t, models.StatusPending, f.record(t, behind.ID).SyncStatus)
}

func TestDrain_BackoffIsCapped(t *testing.T) {
	opts := testOptions()
	opts.MaxAttempts = 8
	opts.MaxDelay = 5 * time.Second
	f := newFixtureWith(t, newStore(), opts)
	f.online.Set(true)
	f.server.script = func(_ models.MutationRecord, call int) error {
		if call < 6 {
			return common.ErrServerError
		}
		return nil
	}
	f.enqueue(t, "sales", "s1", models.ActionCreate, `{}`)

	_, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second,
	}, f.delays)
}

func TestDrain_NonRetryableFailsAndBlocksKeyOnly(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.script = func(rec models.MutationRecord, _ int) error {
		if rec.EntityID == "bad" && rec.Action == models.ActionUpdate {
			return fmt.Errorf("%w: email is invalid", common.ErrValidation)
		}
		return nil
	}

	bad := f.enqueue(t, "customers", "bad", models.ActionUpdate, `{"email":"x"}`)
	f.enqueue(t, "customers", "ok", models.ActionUpdate, `{}`)

	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Synced)
	assert.Equal(t, 1, rep.Failed)

	got := f.record(t, bad.ID)
	assert.Equal(t, models.StatusFailed, got.SyncStatus)
	assert.Contains(t, got.LastError, "email is invalid")

	failed, err := f.queue.Records(context.Background(), queue.Filter{Status: []models.SyncStatus{models.StatusFailed}})
	require.NoError(t, err)
	require.Len(t, failed, 1)

	// A later delete for the same entity waits behind the failed record.
	del := f.enqueue(t, "customers", "bad", models.ActionDelete, "")
	rep, err = f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Blocked: 1}, rep)
	assert.Equal(t, models.StatusPending, f.record(t, del.ID).SyncStatus)

	// Discarding the failed record unblocks it.
	require.NoError(t, f.queue.Discard(context.Background(), bad.ID))
	rep, err = f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Synced: 1}, rep)
}

func TestDrain_ConflictIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.script = func(models.MutationRecord, int) error { return common.ErrConflict }
	r := f.enqueue(t, "customers", "c1", models.ActionCreate, `{}`)

	_, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.server.Calls(), 1)
	assert.Equal(t, models.StatusFailed, f.record(t, r.ID).SyncStatus)
	assert.Empty(t, f.delays)
}

func TestDrain_UnauthorizedReleasesWithoutCountingAttempt(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.script = func(models.MutationRecord, int) error { return common.ErrUnauthorized }
	r := f.enqueue(t, "customers", "c1", models.ActionCreate, `{}`)

	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)

	got := f.record(t, r.ID)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
	assert.Zero(t, got.Attempts)
}

func TestDrain_GoingOfflineStopsBetweenRetries(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.script = func(models.MutationRecord, int) error {
		f.online.Set(false)
		return common.ErrNetworkTimeout
	}
	r := f.enqueue(t, "customers", "c1", models.ActionCreate, `{}`)

	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Retried: 1}, rep)
	assert.Len(t, f.server.Calls(), 1)

	got := f.record(t, r.ID)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
	assert.Equal(t, 1, got.Attempts)
}

func TestDrain_CreateThenUpdateWhileOfflineSubmitsOnce(t *testing.T) {
	f := newFixture(t)

	f.enqueue(t, "customers", "c1", models.ActionCreate, `{"name":"Ada"}`)
	f.enqueue(t, "customers", "c1", models.ActionUpdate, `{"name":"Ada Lovelace"}`)

	f.online.Set(true)
	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Synced)

	calls := f.server.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.ActionCreate, calls[0].Action)
	assert.JSONEq(t, `{"name":"Ada Lovelace"}`, string(calls[0].Payload))
}

func TestDrain_DeleteOfNeverSyncedCreateSubmitsNothing(t *testing.T) {
	f := newFixture(t)

	f.enqueue(t, "inventory", "i1", models.ActionCreate, `{"qty":1}`)
	r, err := f.queue.Enqueue(context.Background(), "inventory", "i1", models.ActionDelete, nil)
	require.NoError(t, err)
	assert.Nil(t, r)

	f.online.Set(true)
	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
	assert.Empty(t, f.server.Calls())
}

func TestDrain_DeleteSupersedesPendingUpdates(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.enqueue(t, "customers", "c1", models.ActionCreate, `{}`)
	_, err := f.sync.Drain(context.Background())
	require.NoError(t, err)

	f.online.Set(false)
	f.enqueue(t, "customers", "c1", models.ActionUpdate, `{"a":1}`)
	f.enqueue(t, "customers", "c1", models.ActionUpdate, `{"a":2}`)
	f.enqueue(t, "customers", "c1", models.ActionDelete, "")

	f.online.Set(true)
	_, err = f.sync.Drain(context.Background())
	require.NoError(t, err)

	calls := f.server.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, models.ActionCreate, calls[0].Action)
	assert.Equal(t, models.ActionDelete, calls[1].Action)
}

func TestDrain_LostReplyIsReplayedIdempotently(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.lostReply = func(_ models.MutationRecord, call int) bool { return call == 0 }
	r := f.enqueue(t, "sales", "s1", models.ActionCreate, `{"total":5}`)

	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Synced: 1, Retried: 1}, rep)

	calls := f.server.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, r.ID, calls[0].ID)
	assert.Equal(t, r.ID, calls[1].ID, "the replay carries the same idempotency key")
	assert.Len(t, f.server.applied, 1)
	assert.Equal(t, []string{r.ID}, f.server.perKey[r.Key()])
}

func TestDrain_UpdateDuringBackoffIsNotLost(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.lostReply = func(_ models.MutationRecord, call int) bool { return call == 0 }
	create := f.enqueue(t, "customers", "c1", models.ActionCreate, `{"n":1}`)

	var upd *models.MutationRecord
	f.onBackoff = func() {
		var err error
		upd, err = f.queue.Enqueue(context.Background(), "customers", "c1", models.ActionUpdate, []byte(`{"n":2}`))
		assert.NoError(t, err)
	}

	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Synced: 2, Retried: 1}, rep)

	require.NotNil(t, upd)
	assert.NotEqual(t, create.ID, upd.ID, "the update must not reuse a key the server may already hold")

	calls := f.server.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, create.ID, calls[1].ID)
	assert.Equal(t, upd.ID, calls[2].ID)

	v, ok := f.server.Entity(create.Key())
	require.True(t, ok)
	assert.JSONEq(t, `{"n":2}`, string(v))
	assert.Equal(t, models.StatusSynced, f.record(t, upd.ID).SyncStatus)
}

func TestDrain_DeleteDuringBackoffReachesServer(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.lostReply = func(_ models.MutationRecord, call int) bool { return call == 0 }
	create := f.enqueue(t, "customers", "c1", models.ActionCreate, `{"n":1}`)

	var del *models.MutationRecord
	f.onBackoff = func() {
		var err error
		del, err = f.queue.Enqueue(context.Background(), "customers", "c1", models.ActionDelete, nil)
		assert.NoError(t, err)
	}

	// The create vanishes from the queue before its retry claims it; the
	// drain moves on to the delete instead of failing.
	rep, err := f.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Synced: 1, Retried: 1}, rep)

	require.NotNil(t, del, "the create may have reached the server, so the delete is queued")
	calls := f.server.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, models.ActionCreate, calls[0].Action)
	assert.Equal(t, del.ID, calls[1].ID)

	_, ok := f.server.Entity(create.Key())
	assert.False(t, ok, "the entity must be gone remotely")

	pending, err := f.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestDrain_PerKeyOrderUnderConcurrentDrains(t *testing.T) {
	opts := testOptions()
	opts.MaxAttempts = 100
	f := newFixtureWith(t, newStore(), opts)
	f.online.Set(true)
	f.server.delay = time.Millisecond
	f.server.script = func(_ models.MutationRecord, call int) error {
		if call%5 == 1 {
			return common.ErrServerError
		}
		return nil
	}

	want := make(map[models.EntityKey][]string)
	for i := range 6 {
		for k := range 4 {
			id := fmt.Sprintf("e%d", k)
			r := f.enqueue(t, "inventory", id, models.ActionCreate, fmt.Sprintf(`{"n":%d}`, i))
			// Creates on one id do not coalesce; each is its own record.
			want[r.Key()] = append(want[r.Key()], r.ID)
		}
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sync.Drain(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, f.server.overlap.Load(), "two submissions for one entity were in flight at once")
	for key, ids := range want {
		assert.Equal(t, ids, f.server.perKey[key], "order for %s", key)
	}

	pending, err := f.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRecover_RestartAfterCrashResubmitsSafely(t *testing.T) {
	store := newStore()
	f := newFixtureWith(t, store, testOptions())
	r := f.enqueue(t, "sales", "s1", models.ActionCreate, `{"total":1}`)

	// The old process claimed the record and the server applied it, but the
	// process died before recording the result.
	require.NoError(t, f.queue.MarkInFlight(context.Background(), r.ID))
	require.NoError(t, f.server.Submit(context.Background(), *r))

	restarted := newFixtureWith(t, store, testOptions())
	restarted.server = f.server
	restarted.sync = New(restarted.queue, f.server, restarted.online, restarted.cache, testOptions(), logging.Discard())
	restarted.online.Set(true)

	rep, err := restarted.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep, "in-flight records are not touched before recovery")

	require.NoError(t, restarted.sync.Recover(context.Background()))
	rep, err = restarted.sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Synced: 1}, rep)

	assert.Len(t, f.server.Calls(), 2)
	assert.Len(t, f.server.applied, 1, "the replay was deduplicated by record id")
	assert.Equal(t, models.StatusSynced, restarted.record(t, r.ID).SyncStatus)
}

func TestDrain_CancelledContextLeavesRecordPending(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.delay = time.Second
	r := f.enqueue(t, "sales", "s1", models.ActionCreate, `{}`)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.sync.Drain(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.StatusPending, f.record(t, r.ID).SyncStatus)
}

func TestExponentialBackoff_ResumesFromPersistedAttempts(t *testing.T) {
	s := New(nil, nil, nil, nil, Options{BaseDelay: time.Second, MaxDelay: 10 * time.Second}, logging.Discard())

	b := s.exponentialBackoff(2)
	var got []time.Duration
	for range 3 {
		d, stop := b.Next()
		require.False(t, stop)
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second, 10 * time.Second}, got)
}
