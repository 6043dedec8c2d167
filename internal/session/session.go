// Package session composes the glue core: the exclusive task queue
// owning the driver session, the condition detector, the event
// correlator, and the liveness watcher, behind the public
// start/resolve/events/stop surface.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wallet-test-framework/glue-metamask-android/internal/config"
	"github.com/wallet-test-framework/glue-metamask-android/internal/correlate"
	"github.com/wallet-test-framework/glue-metamask-android/internal/detect"
	"github.com/wallet-test-framework/glue-metamask-android/internal/driver"
	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
	"github.com/wallet-test-framework/glue-metamask-android/internal/invariant"
	"github.com/wallet-test-framework/glue-metamask-android/internal/logx"
	"github.com/wallet-test-framework/glue-metamask-android/internal/queue"
	"github.com/wallet-test-framework/glue-metamask-android/internal/wallet"
	"github.com/wallet-test-framework/glue-metamask-android/internal/watch"
)

// Options configure Start. Hooks is optional and exists for tests.
type Options struct {
	Config config.Config
	Logger *logx.Logger
	Hooks  watch.Hooks
}

// Session is one live bridge between the wallet and test clients.
type Session struct {
	log     *logx.ComponentLogger
	handle  *driver.Session
	queue   *queue.Queue
	corr    *correlate.Correlator
	bus     *event.Bus
	watcher *watch.Watcher

	// fatal carries an invariant violation raised outside the watcher
	// loop (a bad resolve) up to Run's supervisor.
	fatal chan error

	stopOnce sync.Once
	stopErr  error
}

// Start creates the driver session and assembles the core around it.
func Start(ctx context.Context, opts Options) (*Session, error) {
	cfg := opts.Config

	client := driver.NewClient(cfg.Driver)
	handle, err := client.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	q := queue.New(handle)
	corr := correlate.New()
	bus := event.NewBus(16)
	det := detect.New(wallet.Conditions()...)

	interval := time.Duration(cfg.Watcher.PollIntervalMs) * time.Millisecond
	threshold := time.Duration(cfg.Watcher.ActivateAfterSec) * time.Second
	watcher := watch.New(q, det, corr, bus, opts.Logger, interval, threshold, opts.Hooks)

	s := &Session{
		log:     opts.Logger.Component("session"),
		handle:  handle,
		queue:   q,
		corr:    corr,
		bus:     bus,
		watcher: watcher,
		fatal:   make(chan error, 1),
	}
	s.log.Infof("session started id=%s app=%s", handle.ID(), cfg.Driver.AppPackage)
	return s, nil
}

// Run blocks driving the liveness watcher until Stop, ctx cancellation,
// or a fatal failure, which it returns for the supervisor to act on.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcherErr := make(chan error, 1)
	go func() {
		watcherErr <- s.watcher.Run(ctx)
	}()

	select {
	case err := <-watcherErr:
		return err
	case err := <-s.fatal:
		cancel()
		<-watcherErr
		return err
	}
}

// Subscribe registers fn for all raised events; the returned function
// unsubscribes.
func (s *Session) Subscribe(fn event.Subscriber) func() {
	return s.bus.Subscribe(fn)
}

// Resolve executes the resolving command for correlationID through the
// task queue. The pending event is cleared only when the command
// completes and the ids match; a mismatch is an invariant violation,
// returned to the caller and surfaced fatally to Run.
func (s *Session) Resolve(ctx context.Context, correlationID string, cmd wallet.Command) error {
	err := s.queue.Do(ctx, func(ctx context.Context, drv *driver.Session) error {
		if err := wallet.Execute(ctx, drv, cmd); err != nil {
			return err
		}
		return s.corr.Resolve(correlationID)
	})
	if err != nil {
		if invariant.Is(err) {
			s.reportFatal(err)
		}
		return err
	}
	s.log.Infof("event resolved id=%s kind=%s action=%s", correlationID, cmd.Event, cmd.Action)
	return nil
}

func (s *Session) reportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// Status is the control-socket snapshot of the session.
type Status struct {
	SessionID     string `json:"session_id"`
	PendingID     string `json:"pending_id,omitempty"`
	PendingKind   string `json:"pending_kind,omitempty"`
	QueueDepth    int    `json:"queue_depth"`
	LastActiveSec int    `json:"last_active_sec"`
}

// Status snapshots the session without acquiring the queue; the id read
// is read-only and tolerates an in-flight task.
func (s *Session) Status() Status {
	st := Status{
		SessionID:     s.queue.UnsafeSession().ID(),
		QueueDepth:    s.queue.Depth(),
		LastActiveSec: int(time.Since(s.watcher.LastActive()).Seconds()),
	}
	if pending, ok := s.corr.Pending(); ok {
		st.PendingID = pending.CorrelationID
		st.PendingKind = string(pending.Kind)
	}
	return st
}

// Stop tears the session down: the watcher flag is flipped first so no
// further cycle can start, then the driver session is released inside a
// final queued task, then the queue and bus shut down. Idempotent.
func (s *Session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.watcher.Stop()
		s.stopErr = s.queue.Do(ctx, func(ctx context.Context, drv *driver.Session) error {
			return drv.Close(ctx)
		})
		s.queue.Close()
		s.bus.Close()
		s.log.Infof("session stopped")
	})
	return s.stopErr
}
