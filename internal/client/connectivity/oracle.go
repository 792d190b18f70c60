// Package connectivity decides whether the remote API is reachable.
//
// The oracle starts offline and only flips to online after a probe against
// the server succeeds. Listeners hear about transitions, never repeats.
package connectivity

import (
	"context"
	"errors"
	"time"

	"github.com/zelebiz/zelebiz/internal/client/appstate"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/logging"
)

// Pinger is the reachability check, usually the remote client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Oracle struct {
	state    *appstate.AppState
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
}

func NewOracle(state *appstate.AppState, pinger Pinger, interval, timeout time.Duration, logger logging.Logger) *Oracle {
	return &Oracle{
		state:    state,
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("module", "connectivity"),
	}
}

// Current reports the last known reachability.
func (o *Oracle) Current() bool {
	return o.state.Online()
}

// OnChange registers fn for transitions. Listeners run synchronously on the
// goroutine that observed the transition.
func (o *Oracle) OnChange(fn func(online bool)) (unsubscribe func()) {
	return o.state.OnOnlineChange(fn)
}

// Set overrides the flag, e.g. from a platform network event.
func (o *Oracle) Set(online bool) {
	if o.state.SetOnline(online) {
		mode := "offline"
		if online {
			mode = "online"
		}
		o.logger.Info(context.Background(), "switched to "+mode+" mode")
	}
}

// Probe pings the server once and updates the flag. An authorization error
// still proves the server answered.
func (o *Oracle) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	err := o.pinger.Ping(ctx)
	online := err == nil || errors.Is(err, common.ErrUnauthorized)
	if err != nil && !online {
		o.logger.Debug(ctx, "probe failed", "error", err)
	}

	o.Set(online)
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (o *Oracle) Run(ctx context.Context) {
	o.Probe(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
