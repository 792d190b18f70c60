package syncer

import (
	"context"
	"errors"
	"time"
)

// Recover resets records left in flight by a previous process.
func (s *Synchronizer) Recover(ctx context.Context) error {
	n, err := s.queue.RecoverInFlight(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info(ctx, "recovered in-flight records", "count", n)
	}
	return nil
}

// Trigger asks the running loop for a drain. Calls made while a drain is
// already requested are coalesced.
func (s *Synchronizer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start recovers interrupted records and runs the drain loop in the
// background until ctx is done. Drains happen when connectivity comes back,
// on Trigger, and every SyncInterval while online.
func (s *Synchronizer) Start(ctx context.Context) error {
	if err := s.Recover(ctx); err != nil {
		return err
	}

	unsubscribe := s.online.OnChange(func(online bool) {
		if online {
			s.Trigger()
		}
	})

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		defer unsubscribe()
		s.loop(ctx)
	}()

	if s.online.Current() {
		s.Trigger()
	}
	return nil
}

// Done is closed when the loop started by Start has exited.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

func (s *Synchronizer) loop(ctx context.Context) {
	interval := s.opts.SyncInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		case <-ticker.C:
			if !s.online.Current() {
				continue
			}
		}

		if _, err := s.Drain(ctx); err != nil && !errors.Is(err, ErrOffline) && ctx.Err() == nil {
			s.logger.Error(ctx, "drain failed", "error", err)
		}
	}
}
