// Package queue serializes all access to the automation session. Every
// resource-touching operation in the glue runs as a task submitted
// here; the single worker goroutine guarantees one task at a time in
// FIFO submission order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wallet-test-framework/glue-metamask-android/internal/driver"
)

// ErrClosed is returned by Do once the queue has been shut down.
var ErrClosed = errors.New("queue: closed")

// Task is a deferred operation against the resource handle. Tasks must
// eventually settle; a task that never returns starves the queue (it
// has no way to detect or cancel a hung task).
type Task func(ctx context.Context, s *driver.Session) error

type job struct {
	ctx  context.Context
	run  Task
	done chan error
}

// Queue owns the session handle and executes submitted tasks strictly
// one at a time, in submission order. A task's failure is delivered
// only to its own submitter and does not affect queued tasks.
type Queue struct {
	session *driver.Session

	mu      sync.Mutex
	pending []*job
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// New creates the queue and starts its worker. The queue takes
// exclusive ownership of the session handle.
func New(session *driver.Session) *Queue {
	q := &Queue{
		session: session,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.worker()
	return q
}

// Do submits a task and blocks until it has run to completion,
// returning the task's own error. Submission order across concurrent
// callers is the order Do observes the internal lock, and execution
// order matches it exactly.
//
// If ctx is cancelled while waiting, Do returns early but the task
// still runs; there is no cancellation of queued work.
func (q *Queue) Do(ctx context.Context, task Task) error {
	j := &job{ctx: ctx, run: task, done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run submits a task that produces a value.
func Run[T any](ctx context.Context, q *Queue, fn func(ctx context.Context, s *driver.Session) (T, error)) (T, error) {
	var out T
	err := q.Do(ctx, func(ctx context.Context, s *driver.Session) error {
		var err error
		out, err = fn(ctx, s)
		return err
	})
	return out, err
}

// Depth reports how many tasks are waiting (excluding the one running).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// UnsafeSession exposes the handle without acquiring the queue. Only
// for operations that are provably read-only and tolerate interleaving
// with an in-flight task, such as coarse liveness probes.
func (q *Queue) UnsafeSession() *driver.Session {
	return q.session
}

// Close stops accepting new tasks, lets already-queued tasks finish,
// and waits for the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue) worker() {
	defer close(q.done)

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		j := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		j.done <- q.runOne(j)
	}
}

// runOne executes a single task, converting a panic into that caller's
// error so one bad task cannot take down the chain.
func (q *Queue) runOne(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: task panic: %v", r)
		}
	}()
	return j.run(j.ctx, q.session)
}
