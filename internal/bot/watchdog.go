package bot

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shipmatebot/shipmate/internal/chat"
)

// DefaultProbeInterval is the connectivity watchdog's probe cadence and
// initial delay.
const DefaultProbeInterval = 15 * time.Second

// Watchdog periodically probes chat transport liveness and triggers a
// guarded reconnect on failure. Reconnect attempts never overlap: probe
// cycles that fire while a reconnect is running are skipped, and the
// cadence resumes once the attempt finishes. Failures are logged only;
// the watchdog retries indefinitely.
type Watchdog struct {
	adapter  chat.Adapter
	interval time.Duration

	mu           sync.Mutex
	reconnecting bool
}

// WatchdogOpts holds parameters for creating a Watchdog.
type WatchdogOpts struct {
	Adapter  chat.Adapter
	Interval time.Duration // defaults to DefaultProbeInterval
}

// NewWatchdog creates a Watchdog.
func NewWatchdog(opts WatchdogOpts) *Watchdog {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Watchdog{adapter: opts.Adapter, interval: interval}
}

// Run probes the transport every interval (first probe after one full
// interval) until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.Reconnecting() {
				continue
			}
			probeCtx, cancel := context.WithTimeout(ctx, w.interval)
			err := w.adapter.Ping(probeCtx)
			cancel()
			if err == nil {
				continue
			}
			log.Printf("bot: watchdog: probe failed: %v", err)
			if w.beginReconnect() {
				go w.reconnect(ctx)
			}
		}
	}
}

// Reconnecting reports whether a reconnect attempt is in flight.
func (w *Watchdog) Reconnecting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reconnecting
}

// beginReconnect claims the re-entrancy guard. Returns false when a
// reconnect is already running.
func (w *Watchdog) beginReconnect() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reconnecting {
		return false
	}
	w.reconnecting = true
	return true
}

// reconnect re-establishes the transport connection and releases the
// guard whatever the outcome.
func (w *Watchdog) reconnect(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.reconnecting = false
		w.mu.Unlock()
	}()

	if err := w.adapter.Connect(ctx); err != nil {
		log.Printf("bot: watchdog: reconnect failed: %v", err)
		return
	}
	log.Printf("bot: watchdog: reconnected")
}
