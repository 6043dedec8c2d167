// Package watch runs the background liveness loop: it keeps the wallet
// observable often enough for condition detection to make progress and
// raises events when a condition fires.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wallet-test-framework/glue-metamask-android/internal/correlate"
	"github.com/wallet-test-framework/glue-metamask-android/internal/detect"
	"github.com/wallet-test-framework/glue-metamask-android/internal/driver"
	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
	"github.com/wallet-test-framework/glue-metamask-android/internal/logx"
	"github.com/wallet-test-framework/glue-metamask-android/internal/queue"
)

// Detector is the slice of the condition detector the watcher uses.
// Satisfied by *detect.Detector; fakeable in tests.
type Detector interface {
	Detect(ctx context.Context, s *driver.Session) (*detect.Detection, error)
}

// Hooks are the resource probes the watcher performs. The defaults use
// the driver session; tests substitute their own.
type Hooks struct {
	// Foreground reports whether the wallet is observable. Read-only.
	Foreground func(ctx context.Context, s *driver.Session) (bool, error)
	// Activate brings the wallet back to the foreground.
	Activate func(ctx context.Context, s *driver.Session) error
}

// DefaultHooks probe and activate through the driver session.
func DefaultHooks() Hooks {
	return Hooks{
		Foreground: func(ctx context.Context, s *driver.Session) (bool, error) {
			state, err := s.AppState(ctx)
			if err != nil {
				return false, err
			}
			return state == driver.AppStateForeground, nil
		},
		Activate: func(ctx context.Context, s *driver.Session) error {
			return s.Activate(ctx)
		},
	}
}

// Watcher is the periodic liveness/detection loop.
type Watcher struct {
	queue     *queue.Queue
	detector  Detector
	corr      *correlate.Correlator
	bus       *event.Bus
	log       *logx.ComponentLogger
	hooks     Hooks
	interval  time.Duration
	threshold time.Duration

	mu         sync.Mutex
	lastActive time.Time

	running atomic.Bool
}

// New creates a watcher. interval is the polling cadence; threshold is
// how long the wallet may remain unobservable before re-activation.
func New(q *queue.Queue, det Detector, corr *correlate.Correlator, bus *event.Bus, log *logx.Logger, interval, threshold time.Duration, hooks Hooks) *Watcher {
	if hooks.Foreground == nil || hooks.Activate == nil {
		def := DefaultHooks()
		if hooks.Foreground == nil {
			hooks.Foreground = def.Foreground
		}
		if hooks.Activate == nil {
			hooks.Activate = def.Activate
		}
	}
	return &Watcher{
		queue:     q,
		detector:  det,
		corr:      corr,
		bus:       bus,
		log:       log.Component("watcher"),
		hooks:     hooks,
		interval:  interval,
		threshold: threshold,
	}
}

// LastActive returns when the wallet was last confirmed observable or
// freshly re-activated.
func (w *Watcher) LastActive() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}

func (w *Watcher) setLastActive(t time.Time) {
	w.mu.Lock()
	w.lastActive = t
	w.mu.Unlock()
}

// Stop ends the loop after the current cycle. Must be called before the
// session handle is released so no final cycle races the teardown.
func (w *Watcher) Stop() {
	w.running.Store(false)
}

// Run executes the watcher loop until Stop, ctx cancellation, or a
// fatal failure. Any unexpected failure inside a cycle is fatal: a
// corrupted resource-state observation cannot be second-guessed, so the
// error is returned for the supervisor to act on.
func (w *Watcher) Run(ctx context.Context) error {
	w.running.Store(true)
	w.setLastActive(time.Now())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Infof("watcher started interval=%s threshold=%s", w.interval, w.threshold)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.running.Load() {
				w.log.Infof("watcher stopped")
				return nil
			}
			if err := w.cycle(ctx); err != nil {
				if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
					return nil
				}
				w.log.Errorf("cycle failed: %v", err)
				return fmt.Errorf("watcher: %w", err)
			}
		}
	}
}

// cycle performs one polling step. With an event pending the whole
// cycle is skipped: re-probing or re-activating would race the
// unresolved event.
func (w *Watcher) cycle(ctx context.Context) error {
	if pending, ok := w.corr.Pending(); ok {
		w.log.Debugf("skip cycle, event pending id=%s kind=%s", pending.CorrelationID, pending.Kind)
		return nil
	}

	return w.queue.Do(ctx, func(ctx context.Context, s *driver.Session) error {
		// Stop may have flipped the flag while this task sat queued; the
		// handle may already be released by the teardown task behind us.
		if !w.running.Load() {
			return nil
		}
		foreground, err := w.hooks.Foreground(ctx, s)
		if err != nil {
			return fmt.Errorf("probe foreground: %w", err)
		}

		if !foreground {
			if time.Since(w.LastActive()) > w.threshold {
				// Reset before the activation settles so an in-flight
				// activation is not reissued every cycle. A failed
				// activation defers the next breach check by a full
				// threshold window.
				w.setLastActive(time.Now())
				w.log.Infof("wallet unobservable beyond threshold, activating")
				if err := w.hooks.Activate(ctx, s); err != nil {
					return fmt.Errorf("activate: %w", err)
				}
			}
			return nil
		}

		w.setLastActive(time.Now())

		detection, err := w.detector.Detect(ctx, s)
		if err != nil {
			return err
		}
		if detection == nil {
			return nil
		}

		id, err := w.corr.Begin(detection.Kind)
		if err != nil {
			return err
		}
		w.log.Infof("event raised kind=%s id=%s", detection.Kind, id)
		w.bus.Publish(event.Event{
			Kind:          detection.Kind,
			CorrelationID: id,
			Timestamp:     time.Now().UTC(),
			Data:          detection.Data,
		})
		return nil
	})
}
