// Package broker implements the process-wide message broker (C6): the
// public registration, subscription, publish, and discovery surface that
// modules use to exchange envelopes, backed internally by a registry (C4)
// of weak provider/subscriber handles and a dispatch queue plus worker
// (C5) that fans envelopes out to subscribers.
//
// The broker's public boundary is total, per the core's error-handling
// design: every control operation returns a bool, never an error or panic.
// The only typed error anywhere in the stack lives at the codec boundary
// (see the codec package), which the broker never touches directly.
package broker

import (
	"context"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"

	"github.com/tenzoki/mcpbroker/internal/config"
	"github.com/tenzoki/mcpbroker/internal/dispatch"
	"github.com/tenzoki/mcpbroker/internal/envelope"
	"github.com/tenzoki/mcpbroker/internal/registry"
)

// State is the broker's lifecycle state.
type State int

const (
	// Running: worker goroutine alive, all operations accepted.
	Running State = iota
	// Stopped: worker joined; all operations except Stats and VersionOf
	// are no-ops returning false (or nil).
	Stopped
)

// Version is the broker facade's interface version.
const Version = 1

// Broker is the process-wide message bus. Construct one with New for tests
// or embedding; production callers normally go through GetBroker.
type Broker struct {
	log logr.Logger
	cfg config.BrokerConfig

	registry *registry.Registry
	queue    *dispatch.Queue

	mu    sync.RWMutex
	state State
}

// New constructs a standalone Broker in the Running state, with its own
// registry and dispatch worker. Most callers should use GetBroker instead;
// New exists for tests and for hosts that intentionally want more than one
// independent broker instance.
func New(cfg config.BrokerConfig, log logr.Logger) *Broker {
	b := &Broker{
		log:      log,
		cfg:      cfg,
		registry: registry.New(log),
		state:    Running,
	}
	b.queue = dispatch.NewQueue(cfg.QueueCapacity, log, b.deliver)
	return b
}

func (b *Broker) running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == Running
}

// RegisterContext registers provider as a live provider for topic. See
// registry.Registry.RegisterProvider for the exact semantics; this method
// additionally enforces the Stopped no-op policy.
func (b *Broker) RegisterContext(topic string, provider registry.Provider) (*registry.ProviderHandle, bool) {
	if !b.running() || provider == nil {
		return nil, false
	}
	h := &registry.ProviderHandle{Impl: provider}
	if !b.registry.RegisterProvider(topic, h) {
		return nil, false
	}
	b.log.V(b.cfg.LogVerbosity).Info("provider registered", "topic", topic)
	return h, true
}

// UnregisterContext removes h from topic's provider list.
func (b *Broker) UnregisterContext(topic string, h *registry.ProviderHandle) bool {
	if !b.running() {
		return false
	}
	ok := b.registry.UnregisterProvider(topic, h)
	if ok {
		b.log.V(b.cfg.LogVerbosity).Info("provider unregistered", "topic", topic)
	}
	return ok
}

// Subscribe registers subscriber for topic's envelope fan-out.
func (b *Broker) Subscribe(topic string, subscriber registry.Subscriber) (*registry.SubscriberHandle, bool) {
	if !b.running() || subscriber == nil {
		return nil, false
	}
	h := &registry.SubscriberHandle{Impl: subscriber}
	if !b.registry.Subscribe(topic, h) {
		return nil, false
	}
	b.log.V(b.cfg.LogVerbosity).Info("subscriber registered", "topic", topic)
	return h, true
}

// Unsubscribe removes h from topic's subscriber list.
func (b *Broker) Unsubscribe(topic string, h *registry.SubscriberHandle) bool {
	if !b.running() {
		return false
	}
	ok := b.registry.Unsubscribe(topic, h)
	if ok {
		b.log.V(b.cfg.LogVerbosity).Info("subscriber unsubscribed", "topic", topic)
	}
	return ok
}

// UnsubscribeAll removes h from every topic it is subscribed to.
//
// A subscriber whose last strong reference was taken into a dispatch
// snapshot before this call returns MUST tolerate one trailing callback;
// this mirrors the core's documented weak-upgrade race window.
func (b *Broker) UnsubscribeAll(h *registry.SubscriberHandle) bool {
	if !b.running() {
		return false
	}
	return b.registry.UnsubscribeAll(h)
}

// Publish enqueues env for asynchronous fan-out to env.Topic's subscribers.
// Non-blocking: on queue overflow it applies reject-newest and returns
// false. Safe to call from a real-time context.
func (b *Broker) Publish(env *envelope.Envelope) bool {
	if !b.running() || env == nil || env.Topic == "" {
		return false
	}
	ok := b.queue.Enqueue(env)
	if !ok {
		b.log.V(b.cfg.LogVerbosity).Info("publish rejected: queue full",
			"topic", env.Topic, "payload_size", humanize.Bytes(uint64(env.Size())))
	}
	return ok
}

// PublishBlocking is Publish's back-pressure variant: it blocks until space
// is available in the dispatch queue or ctx is cancelled. When ctx has no
// deadline, the wait is bounded by the config's PublishBlockTimeout (if
// positive). MUST NOT be called from an audio thread.
func (b *Broker) PublishBlocking(ctx context.Context, env *envelope.Envelope) bool {
	if !b.running() || env == nil || env.Topic == "" {
		return false
	}
	if _, ok := ctx.Deadline(); !ok && b.cfg.PublishBlockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.PublishBlockTimeout)
		defer cancel()
	}
	return b.queue.EnqueueBlocking(ctx, env)
}

// AvailableTopics returns the topics with at least one live provider, in
// the order each topic was first registered (not lexicographic).
func (b *Broker) AvailableTopics() []string {
	if !b.running() {
		return nil
	}
	return b.registry.ListTopics()
}

// FindProviders returns the ordered live providers for topic.
func (b *Broker) FindProviders(topic string) []registry.Provider {
	if !b.running() {
		return nil
	}
	return b.registry.FindProviders(topic)
}

// VersionOf returns the broker facade's interface version.
func (b *Broker) VersionOf() int {
	return Version
}

// Stats is a point-in-time introspection snapshot. Unlike the historical
// per-topic message buffers some brokers keep for replay, Stats retains no
// payloads: it exists purely for debugging and metrics, not delivery.
type Stats struct {
	TopicCount int
	QueueDepth int
	Dropped    uint64
	State      State
}

// Stats returns a snapshot of broker activity. Like VersionOf, and unlike
// the other operations, Stats is available even after Shutdown, since it
// reports on state rather than mutating it.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	state := b.state
	b.mu.RUnlock()

	return Stats{
		TopicCount: len(b.registry.ListTopics()),
		QueueDepth: b.queue.Len(),
		Dropped:    b.queue.Dropped(),
		State:      state,
	}
}

// Shutdown transitions the broker to Stopped: the dispatch worker drains
// its wake signal, discards any remaining queued envelopes, and this call
// blocks until the worker goroutine has joined. Shutdown is idempotent.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	if b.state == Stopped {
		b.mu.Unlock()
		return
	}
	b.state = Stopped
	b.mu.Unlock()

	b.queue.Shutdown()
	b.log.V(b.cfg.LogVerbosity).Info("broker stopped")
}

func (b *Broker) deliver(env *envelope.Envelope) {
	for _, sub := range b.registry.SnapshotSubscribers(env.Topic) {
		b.invokeSubscriber(sub, env)
	}
}

// invokeSubscriber calls sub.OnMessage, confining any panic to this single
// subscriber so that neither the worker loop nor the remaining subscribers
// in the fan-out are affected (§4.5 step 4: SubscriberFault is caught,
// logged at warning severity, and discarded).
func (b *Broker) invokeSubscriber(sub registry.Subscriber, env *envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(nil, "subscriber callback panicked", "topic", env.Topic, "panic", r)
		}
	}()
	sub.OnMessage(env)
}
