// Package dispatch implements the broker's bounded FIFO envelope queue and
// its dedicated drain worker (C5): one goroutine spawned at construction,
// draining envelopes and fanning them out to subscribers until shutdown.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/tenzoki/mcpbroker/internal/envelope"
)

// Deliver is invoked once per dequeued envelope, from the worker goroutine,
// with no dispatch-queue lock held. Implementations must not panic: the
// queue does not recover, so a panicking Deliver would bring down the
// worker. Per-subscriber panic isolation lives one layer up, in the
// broker's fan-out over subscribers.
type Deliver func(env *envelope.Envelope)

// Queue is a bounded, ordered FIFO of envelopes awaiting fan-out. A single
// worker goroutine consumes; any number of goroutines may enqueue
// concurrently.
type Queue struct {
	log logr.Logger

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []*envelope.Envelope
	capacity int
	shutdown bool

	deliver Deliver
	dropped atomic.Uint64

	workerDone chan struct{}
}

// NewQueue constructs a Queue with the given bound and spawns its worker
// goroutine immediately. deliver is called once per dequeued envelope.
func NewQueue(capacity int, log logr.Logger, deliver Deliver) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		log:        log,
		capacity:   capacity,
		deliver:    deliver,
		workerDone: make(chan struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Enqueue appends env and signals the worker. It never blocks: on bound
// overflow it applies the reject-newest policy, returning false without
// enqueueing. Safe to call from a real-time context.
func (q *Queue) Enqueue(env *envelope.Envelope) bool {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return false
	}
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		q.dropped.Add(1)
		return false
	}
	q.items = append(q.items, env)
	q.mu.Unlock()
	q.notEmpty.Signal()
	return true
}

// EnqueueBlocking backs off until space becomes available or ctx is
// cancelled, applying back-pressure instead of reject-newest. MUST NOT be
// called from an audio thread; it is offered for non-real-time callers that
// prefer blocking over dropping.
func (q *Queue) EnqueueBlocking(ctx context.Context, env *envelope.Envelope) bool {
	q.mu.Lock()
	for !q.shutdown && len(q.items) >= q.capacity {
		if ctx.Err() != nil {
			q.mu.Unlock()
			return false
		}
		// Cond.Wait does not observe ctx cancellation directly; a watcher
		// goroutine broadcasts notFull when ctx is done so Wait re-checks.
		done := make(chan struct{})
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.notFull.Broadcast()
			q.mu.Unlock()
			close(done)
		})
		q.notFull.Wait()
		stop()
		select {
		case <-done:
		default:
		}
	}
	if q.shutdown {
		q.mu.Unlock()
		return false
	}
	if ctx.Err() != nil {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, env)
	q.mu.Unlock()
	q.notEmpty.Signal()
	return true
}

// Dropped returns the number of envelopes discarded by the reject-newest
// policy since construction.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len is a best-effort snapshot of the number of envelopes currently
// queued, awaiting the worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) run() {
	defer close(q.workerDone)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.shutdown {
			q.notEmpty.Wait()
		}
		if len(q.items) == 0 && q.shutdown {
			q.mu.Unlock()
			return
		}
		env := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		q.notFull.Signal()

		q.deliver(env)
	}
}

// Shutdown signals the worker to stop, discards any remaining queued
// envelopes (§7: they may reference subscribers that have already torn
// down), and blocks until the worker goroutine has returned. Shutdown is
// idempotent.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		<-q.workerDone
		return
	}
	q.shutdown = true
	q.items = nil
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	<-q.workerDone
}
