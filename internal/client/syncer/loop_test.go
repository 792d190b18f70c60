package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zelebiz/zelebiz/internal/client/kvstore"
	"github.com/zelebiz/zelebiz/internal/client/models"
)

func newStore() *kvstore.MemoryStore {
	return kvstore.NewMemoryStore()
}

func TestStart_DrainsWhenConnectivityReturns(t *testing.T) {
	f := newFixture(t)
	f.server.submitted = make(chan struct{}, 1)
	r := f.enqueue(t, "customers", "c1", models.ActionCreate, `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.sync.Start(ctx))

	select {
	case <-f.server.submitted:
		t.Fatal("nothing should be submitted while offline")
	case <-time.After(20 * time.Millisecond):
	}

	f.online.Set(true)
	select {
	case <-f.server.submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("no drain after going online")
	}

	require.Eventually(t, func() bool {
		got, err := f.queue.Get(context.Background(), r.ID)
		return err == nil && got.SyncStatus == models.StatusSynced
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-f.sync.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Zero(t, f.online.listeners.Len(), "the loop unsubscribes on exit")
}

func TestStart_RecoversInFlightRecords(t *testing.T) {
	f := newFixture(t)
	r := f.enqueue(t, "customers", "c1", models.ActionCreate, `{}`)
	require.NoError(t, f.queue.MarkInFlight(context.Background(), r.ID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.sync.Start(ctx))

	assert.Equal(t, models.StatusPending, f.record(t, r.ID).SyncStatus)
}

func TestTrigger_Coalesces(t *testing.T) {
	f := newFixture(t)
	for range 10 {
		f.sync.Trigger()
	}
	assert.Len(t, f.sync.trigger, 1)
}

func TestStart_TriggerDrainsWhileOnline(t *testing.T) {
	f := newFixture(t)
	f.online.Set(true)
	f.server.submitted = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.sync.Start(ctx))

	// Let the initial drain of an empty queue finish.
	time.Sleep(10 * time.Millisecond)
	f.enqueue(t, "sales", "s1", models.ActionCreate, `{}`)
	f.sync.Trigger()

	select {
	case <-f.server.submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not drain")
	}
}
