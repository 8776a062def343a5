// Package client provides the audio-thread hand-off pattern described in
// the core's concurrency model: a subscriber that decodes each envelope
// with a codec and pushes the decoded value into its own SPSC ring buffer,
// which the real-time audio thread later drains with Pop. Decoding and the
// broker callback both happen on the broker's worker goroutine; the ring
// buffer push itself is the only operation that needs to be real-time
// safe, and Ring.Push already is.
package client

import (
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/tenzoki/mcpbroker/internal/codec"
	"github.com/tenzoki/mcpbroker/internal/envelope"
	"github.com/tenzoki/mcpbroker/internal/ringbuffer"
)

// RingSubscriber implements registry.Subscriber by decoding each envelope's
// payload with a codec and pushing the decoded value into a bounded SPSC
// ring buffer. If the ring buffer is full, the values already buffered are
// kept: the new value is dropped and the count reported by Dropped is
// incremented, since OnMessage must not block waiting for the audio thread
// to drain.
type RingSubscriber[T any] struct {
	codec codec.Codec
	ring  *ringbuffer.Ring[T]
	log   logr.Logger

	dropped atomic.Uint64
}

// NewRingSubscriber constructs a RingSubscriber decoding with c into a ring
// buffer of the given capacity.
func NewRingSubscriber[T any](c codec.Codec, capacity int, log logr.Logger) *RingSubscriber[T] {
	return &RingSubscriber[T]{
		codec: c,
		ring:  ringbuffer.New[T](capacity),
		log:   log,
	}
}

// OnMessage decodes env with the configured codec and pushes the result
// into the ring buffer. Decode failures are logged through the logger's
// Error method and full-buffer drops at V(1) info level; both are
// otherwise swallowed, matching the broker's
// subscriber-fault isolation policy: this method must never block or
// propagate a panic back to the broker's worker.
func (s *RingSubscriber[T]) OnMessage(env *envelope.Envelope) {
	value, err := codec.Extract[T](s.codec, env)
	if err != nil {
		s.log.Error(err, "ring subscriber: decode failed", "topic", env.Topic)
		return
	}
	if !s.ring.Push(value) {
		s.dropped.Add(1)
		s.log.V(1).Info("ring subscriber: buffer full, dropping value", "topic", env.Topic)
	}
}

// Pop drains one decoded value for the audio thread. Exactly one goroutine
// may call Pop, matching the ring buffer's SPSC contract.
func (s *RingSubscriber[T]) Pop(out *T) bool {
	return s.ring.Pop(out)
}

// Dropped returns the number of decoded values dropped because the ring
// buffer was full when OnMessage attempted to push.
func (s *RingSubscriber[T]) Dropped() uint64 {
	return s.dropped.Load()
}
