// Package syncer drains the mutation queue through the remote API.
//
// Records for the same entity are submitted strictly one after another in
// enqueue order; different entities drain concurrently. Transient failures
// are retried with exponential backoff up to a fixed number of attempts,
// permanent ones park the record as failed and hold back everything queued
// behind it for the same entity until the user resubmits or discards it.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/client/queue"
	"github.com/zelebiz/zelebiz/internal/logging"
)

// ErrOffline is returned by Drain when the oracle reports no connectivity.
var ErrOffline = errors.New("offline")

type Submitter interface {
	Submit(ctx context.Context, rec models.MutationRecord) error
}

type Connectivity interface {
	Current() bool
	OnChange(fn func(online bool)) (unsubscribe func())
}

// Invalidator is notified before a record is marked synced.
type Invalidator interface {
	Invalidate(ctx context.Context, entity, id string) error
}

type Options struct {
	Concurrency    int
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration
	SyncInterval   time.Duration
}

// Report summarizes one drain.
type Report struct {
	Synced  int
	Retried int
	Failed  int
	// Blocked counts pending records held back by a failed record ahead of
	// them for the same entity.
	Blocked int
}

func (r *Report) add(o Report) {
	r.Synced += o.Synced
	r.Retried += o.Retried
	r.Failed += o.Failed
	r.Blocked += o.Blocked
}

type Synchronizer struct {
	queue  *queue.Queue
	remote Submitter
	online Connectivity
	cache  Invalidator
	opts   Options
	logger logging.Logger

	locks *keyedMutex
	// backoff builds the delay sequence for a record that has already
	// failed attempts times.
	backoff func(attempts int) retry.Backoff

	trigger chan struct{}
	done    chan struct{}
}

func New(q *queue.Queue, remote Submitter, online Connectivity, cache Invalidator, opts Options, logger logging.Logger) *Synchronizer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	s := &Synchronizer{
		queue:   q,
		remote:  remote,
		online:  online,
		cache:   cache,
		opts:    opts,
		logger:  logger.With("module", "syncer"),
		locks:   newKeyedMutex(),
		trigger: make(chan struct{}, 1),
	}
	s.backoff = s.exponentialBackoff
	return s
}

// exponentialBackoff yields BaseDelay*2^(n-1) for the n-th failed attempt,
// capped at MaxDelay. The sequence is advanced past the attempts already
// recorded so the schedule survives restarts.
func (s *Synchronizer) exponentialBackoff(attempts int) retry.Backoff {
	b := retry.NewExponential(s.opts.BaseDelay)
	for range attempts {
		if _, stop := b.Next(); stop {
			break
		}
	}
	if s.opts.MaxDelay > 0 {
		b = retry.WithCappedDuration(s.opts.MaxDelay, b)
	}
	return b
}

// Drain submits every pending record once through the state machine and
// returns what happened.
func (s *Synchronizer) Drain(ctx context.Context) (Report, error) {
	if !s.online.Current() {
		return Report{}, ErrOffline
	}

	records, err := s.queue.Records(ctx, queue.Unsynced)
	if err != nil {
		return Report{}, err
	}

	var (
		order []models.EntityKey
		seen  = make(map[models.EntityKey]bool)
	)
	for _, r := range records {
		if k := r.Key(); !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
	}

	var (
		mu     sync.Mutex
		report Report
		errs   error
		g      errgroup.Group
	)
	g.SetLimit(s.opts.Concurrency)

	for _, key := range order {
		g.Go(func() error {
			r, err := s.drainKey(ctx, key)
			mu.Lock()
			report.add(r)
			errs = multierr.Append(errs, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if report != (Report{}) {
		s.logger.Info(ctx, "drain finished",
			"synced", report.Synced, "retried", report.Retried,
			"failed", report.Failed, "blocked", report.Blocked)
	}
	return report, errs
}

// drainKey submits the records of one entity in order under its lock. The
// queue is re-read after every record: enqueues made while a record waited
// in backoff may have removed it or added records behind it.
func (s *Synchronizer) drainKey(ctx context.Context, key models.EntityKey) (Report, error) {
	unlock := s.locks.Lock(key.String())
	defer unlock()

	var report Report
	for {
		records, err := s.queue.Records(ctx, queue.Filter{
			Entity:   key.Entity,
			EntityID: key.ID,
			Status:   queue.Unsynced.Status,
		})
		if err != nil || len(records) == 0 {
			return report, err
		}

		head := records[0]
		switch head.SyncStatus {
		case models.StatusFailed:
			report.Blocked += countPending(records[1:])
			return report, nil
		case models.StatusInFlight:
			// Left over from a crash; Recover resets it on start.
			return report, nil
		}

		res, err := s.process(ctx, head, &report)
		if err != nil {
			return report, err
		}
		switch res {
		case outcomeSynced:
			report.Synced++
		case outcomeGone:
			s.logger.Debug(ctx, "record superseded while waiting", "id", head.ID)
		case outcomeFailed:
			report.Failed++
			report.Blocked += countPending(records[1:])
			return report, nil
		default:
			return report, nil
		}
	}
}

func countPending(rs []models.MutationRecord) int {
	n := 0
	for _, r := range rs {
		if r.SyncStatus == models.StatusPending {
			n++
		}
	}
	return n
}
