package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/require"

	"github.com/zelebiz/zelebiz/internal/client/kvstore"
	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/client/queue"
	"github.com/zelebiz/zelebiz/internal/logging"
	"github.com/zelebiz/zelebiz/internal/notify"
)

type fakeOnline struct {
	on        atomic.Bool
	listeners notify.Set[bool]
}

func (f *fakeOnline) Current() bool { return f.on.Load() }

func (f *fakeOnline) OnChange(fn func(bool)) func() { return f.listeners.Subscribe(fn) }

func (f *fakeOnline) Set(v bool) {
	if f.on.Swap(v) != v {
		f.listeners.Emit(v)
	}
}

// fakeServer applies mutations idempotently, keyed by record id, and lets
// tests script failures per call.
type fakeServer struct {
	mu       sync.Mutex
	calls    []models.MutationRecord
	applied  map[string]bool
	entities map[string]json.RawMessage
	script   func(rec models.MutationRecord, call int) error
	// lostReply applies the mutation but reports a timeout, as when the
	// response never reaches the client.
	lostReply func(rec models.MutationRecord, call int) bool

	active    map[models.EntityKey]int
	overlap   atomic.Bool
	perKey    map[models.EntityKey][]string
	submitted chan struct{}
	delay     time.Duration
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		applied:  make(map[string]bool),
		entities: make(map[string]json.RawMessage),
		active:   make(map[models.EntityKey]int),
		perKey:   make(map[models.EntityKey][]string),
	}
}

func (f *fakeServer) Submit(ctx context.Context, rec models.MutationRecord) error {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, rec)
	key := rec.Key()
	f.active[key]++
	if f.active[key] > 1 {
		f.overlap.Store(true)
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active[key]--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.script != nil {
		if err := f.script(rec, call); err != nil {
			return err
		}
	}

	f.mu.Lock()
	if !f.applied[rec.ID] {
		f.applied[rec.ID] = true
		f.perKey[key] = append(f.perKey[key], rec.ID)
		switch rec.Action {
		case models.ActionDelete:
			delete(f.entities, key.String())
		default:
			f.entities[key.String()] = rec.Payload
		}
	}
	lost := f.lostReply != nil && f.lostReply(rec, call)
	f.mu.Unlock()

	if f.submitted != nil {
		select {
		case f.submitted <- struct{}{}:
		default:
		}
	}
	if lost {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeServer) Entity(key models.EntityKey) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entities[key.String()]
	return v, ok
}

func (f *fakeServer) Calls() []models.MutationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.MutationRecord(nil), f.calls...)
}

// fakeCache records invalidations together with the record status seen at
// that moment.
type fakeCache struct {
	mu    sync.Mutex
	q     *queue.Queue
	seen  []string
	err   error
	order []models.SyncStatus
}

func (c *fakeCache) Invalidate(ctx context.Context, entity, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.seen = append(c.seen, entity+"#"+id)
	recs, _ := c.q.Records(ctx, queue.Filter{Entity: entity, EntityID: id, Status: []models.SyncStatus{models.StatusInFlight}})
	for _, r := range recs {
		c.order = append(c.order, r.SyncStatus)
	}
	return nil
}

type fixture struct {
	store  *kvstore.MemoryStore
	queue  *queue.Queue
	server *fakeServer
	online *fakeOnline
	cache  *fakeCache
	sync   *Synchronizer

	delaysMu sync.Mutex
	delays   []time.Duration
	// onBackoff runs once, the first time a record waits to be retried.
	onBackoff func()
}

func testOptions() Options {
	return Options{
		Concurrency:    4,
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       time.Minute,
		RequestTimeout: time.Second,
		SyncInterval:   time.Hour,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, kvstore.NewMemoryStore(), testOptions())
}

func newFixtureWith(t *testing.T, store *kvstore.MemoryStore, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store:  store,
		queue:  queue.New(store, logging.Discard()),
		server: newFakeServer(),
		online: &fakeOnline{},
	}
	f.cache = &fakeCache{q: f.queue}
	f.sync = New(f.queue, f.server, f.online, f.cache, opts, logging.Discard())

	// Record the real schedule but do not actually wait for it.
	f.sync.backoff = func(attempts int) retry.Backoff {
		inner := f.sync.exponentialBackoff(attempts)
		return retry.BackoffFunc(func() (time.Duration, bool) {
			d, stop := inner.Next()
			f.delaysMu.Lock()
			f.delays = append(f.delays, d)
			hook := f.onBackoff
			f.onBackoff = nil
			f.delaysMu.Unlock()
			if hook != nil && !stop {
				hook()
			}
			return time.Microsecond, stop
		})
	}
	return f
}

func (f *fixture) enqueue(t *testing.T, entity, id string, action models.Action, payload string) *models.MutationRecord {
	t.Helper()
	var p json.RawMessage
	if payload != "" {
		p = json.RawMessage(payload)
	}
	r, err := f.queue.Enqueue(context.Background(), entity, id, action, p)
	require.NoError(t, err)
	return r
}

func (f *fixture) record(t *testing.T, id string) *models.MutationRecord {
	t.Helper()
	r, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	return r
}
