// Package envelope defines the immutable message value exchanged through the
// broker.
//
// An Envelope carries an opaque payload tagged with a content-type format
// string, a topic, and a small amount of routing metadata. Envelopes are
// immutable after construction: callers that need to change a field build a
// new Envelope rather than mutating one in place, since a single Envelope
// may be observed by several subscribers concurrently.
//
// Called by: codec package (wraps/unwraps payload bytes), broker and
// dispatch packages (queueing and fan-out), registry and client packages
// (subscriber callbacks).
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Priority is metadata only; it never affects dispatch order (dispatch is
// always FIFO per topic, per the broker's §4 invariants).
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// Envelope is the unit of exchange between providers and subscribers.
//
// Fields are set once at construction and never mutated afterward. Equality
// between two Envelope values is undefined; callers that need identity
// should compare MessageID.
type Envelope struct {
	Topic     string
	SenderID  int64
	Format    string
	Payload   []byte
	MessageID uint64
	Priority  Priority
	Timestamp time.Time
}

// New builds an Envelope with a freshly minted MessageID and the current
// time as Timestamp. payload is retained by reference, not copied: callers
// must not modify the slice after passing it in, matching the "shared byte
// buffer" payload model.
func New(topic string, senderID int64, format string, payload []byte) *Envelope {
	return &Envelope{
		Topic:     topic,
		SenderID:  senderID,
		Format:    format,
		Payload:   payload,
		MessageID: newMessageID(),
		Priority:  PriorityNormal,
		Timestamp: time.Now(),
	}
}

// WithPriority returns a copy of e with Priority replaced. Because Envelope
// is immutable, this is how callers attach a non-default priority instead
// of mutating a shared value.
func (e *Envelope) WithPriority(p Priority) *Envelope {
	cp := *e
	cp.Priority = p
	return &cp
}

// Size reports the payload size in bytes.
func (e *Envelope) Size() int {
	return len(e.Payload)
}

func newMessageID() uint64 {
	id := uuid.New()
	var v uint64
	for _, b := range id[:8] {
		v = v<<8 | uint64(b)
	}
	return v
}
