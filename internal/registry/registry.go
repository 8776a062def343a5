// Package registry implements the broker's topic→provider and
// topic→subscriber tables (C4): weak-handle bookkeeping with opportunistic
// expiry pruning, sharded across hash buckets so that registration/discovery
// on unrelated topics contends the same mutex only when their topics hash to
// the same bucket.
//
// Go's standard library has no way to take a weak reference to an arbitrary
// interface value without knowing its concrete pointer type, so the tables
// hold weak.Pointer handles to small wrapper structs (ProviderHandle,
// SubscriberHandle) that the caller constructs and keeps strongly reachable
// for as long as the registration should remain live — the same pattern the
// standard library's own weak-pointer canonicalization examples use (the
// cache holds a weak pointer to a value the caller already keeps alive
// elsewhere). When the caller drops its last strong reference to the
// handle, the registry's weak pointer resolves to nil and is pruned on the
// next observation, exactly per §4.4/§9's ownership-graph requirement.
package registry

import (
	"sort"
	"sync"
	"weak"

	"github.com/cespare/xxhash/v2"
	"github.com/go-logr/logr"

	"github.com/tenzoki/mcpbroker/internal/envelope"
)

const bucketCount = 16

// Provider is the capability exposed by a module that can enumerate topics
// it emits envelopes on.
type Provider interface {
	ProvidedTopics() []string
}

// Subscriber is the capability exposed by a module that receives envelope
// callbacks. OnMessage MUST NOT block or retain env past return unless it
// takes a copy of env.Payload.
type Subscriber interface {
	OnMessage(env *envelope.Envelope)
}

// ProviderHandle wraps a Provider for weak registration. The host must keep
// the handle (not just the Provider) strongly reachable for the
// registration to remain live.
type ProviderHandle struct{ Impl Provider }

// SubscriberHandle wraps a Subscriber for weak registration, symmetric to
// ProviderHandle.
type SubscriberHandle struct{ Impl Subscriber }

func bucketIndex(topic string) uint64 {
	return xxhash.Sum64String(topic) % bucketCount
}

// providerBucket guards one shard of the provider table.
type providerBucket struct {
	mu      sync.Mutex
	entries map[string][]weak.Pointer[ProviderHandle]
}

// subscriberBucket guards one shard of the subscriber table.
type subscriberBucket struct {
	mu      sync.Mutex
	entries map[string][]weak.Pointer[SubscriberHandle]
}

// Registry holds the provider and subscriber tables. The zero value is
// ready to use.
type Registry struct {
	log logr.Logger

	providers   [bucketCount]providerBucket
	subscribers [bucketCount]subscriberBucket

	orderMu     sync.Mutex
	insertOrder map[string]int
	nextOrder   int
}

// New constructs a Registry. A discard logger is used if log is the zero
// value.
func New(log logr.Logger) *Registry {
	return &Registry{log: log}
}

// recordFirstInsertion remembers the order in which topic was first
// registered, if it hasn't been seen before. Topics keep their original
// position even if every provider later unregisters and one re-registers,
// matching list_topics's "sorted-by-insertion-order" contract: it orders by
// first registration, not current table occupancy.
func (r *Registry) recordFirstInsertion(topic string) {
	r.orderMu.Lock()
	defer r.orderMu.Unlock()
	if r.insertOrder == nil {
		r.insertOrder = make(map[string]int)
	}
	if _, ok := r.insertOrder[topic]; !ok {
		r.insertOrder[topic] = r.nextOrder
		r.nextOrder++
	}
}

// RegisterProvider appends h's weak handle to topic's live provider list.
// Returns false on an empty topic, a nil handle, or a handle whose Impl is
// already present (live) for topic.
func (r *Registry) RegisterProvider(topic string, h *ProviderHandle) bool {
	if topic == "" || h == nil || h.Impl == nil {
		return false
	}
	b := &r.providers[bucketIndex(topic)]
	b.mu.Lock()
	defer b.mu.Unlock()

	live := make([]weak.Pointer[ProviderHandle], 0, len(b.entries[topic]))
	for _, wp := range b.entries[topic] {
		strong := wp.Value()
		if strong == nil {
			continue // prune expired
		}
		if strong.Impl == h.Impl {
			return false // duplicate; state left unchanged (the pruned list is not stored)
		}
		live = append(live, wp)
	}
	live = append(live, weak.Make(h))
	if b.entries == nil {
		b.entries = make(map[string][]weak.Pointer[ProviderHandle])
	}
	b.entries[topic] = live
	r.recordFirstInsertion(topic)
	return true
}

// UnregisterProvider removes h's handle from topic's live provider list,
// along with any expired handles found along the way. If the list becomes
// empty, the topic key is removed. Returns false if topic is absent or h's
// Impl is not present.
func (r *Registry) UnregisterProvider(topic string, h *ProviderHandle) bool {
	if topic == "" || h == nil {
		return false
	}
	b := &r.providers[bucketIndex(topic)]
	b.mu.Lock()
	defer b.mu.Unlock()

	list, ok := b.entries[topic]
	if !ok {
		return false
	}
	removed := false
	live := make([]weak.Pointer[ProviderHandle], 0, len(list))
	for _, wp := range list {
		strong := wp.Value()
		if strong == nil {
			continue
		}
		if !removed && strong.Impl == h.Impl {
			removed = true
			continue
		}
		live = append(live, wp)
	}
	if !removed {
		return false
	}
	if len(live) == 0 {
		delete(b.entries, topic)
	} else {
		b.entries[topic] = live
	}
	return true
}

// Subscribe is symmetric to RegisterProvider against the subscriber table.
func (r *Registry) Subscribe(topic string, h *SubscriberHandle) bool {
	if topic == "" || h == nil || h.Impl == nil {
		return false
	}
	b := &r.subscribers[bucketIndex(topic)]
	b.mu.Lock()
	defer b.mu.Unlock()

	live := make([]weak.Pointer[SubscriberHandle], 0, len(b.entries[topic]))
	for _, wp := range b.entries[topic] {
		strong := wp.Value()
		if strong == nil {
			continue
		}
		if strong.Impl == h.Impl {
			return false
		}
		live = append(live, wp)
	}
	live = append(live, weak.Make(h))
	if b.entries == nil {
		b.entries = make(map[string][]weak.Pointer[SubscriberHandle])
	}
	b.entries[topic] = live
	return true
}

// Unsubscribe is symmetric to UnregisterProvider against the subscriber
// table.
func (r *Registry) Unsubscribe(topic string, h *SubscriberHandle) bool {
	if topic == "" || h == nil {
		return false
	}
	b := &r.subscribers[bucketIndex(topic)]
	b.mu.Lock()
	defer b.mu.Unlock()

	list, ok := b.entries[topic]
	if !ok {
		return false
	}
	removed := false
	live := make([]weak.Pointer[SubscriberHandle], 0, len(list))
	for _, wp := range list {
		strong := wp.Value()
		if strong == nil {
			continue
		}
		if !removed && strong.Impl == h.Impl {
			removed = true
			continue
		}
		live = append(live, wp)
	}
	if !removed {
		return false
	}
	if len(live) == 0 {
		delete(b.entries, topic)
	} else {
		b.entries[topic] = live
	}
	return true
}

// UnsubscribeAll removes h from every topic in the subscriber table.
// Returns true iff at least one removal occurred. Safe against concurrent
// unsubscription of the same handle from another goroutine.
func (r *Registry) UnsubscribeAll(h *SubscriberHandle) bool {
	if h == nil {
		return false
	}
	removedAny := false
	for i := range r.subscribers {
		b := &r.subscribers[i]
		b.mu.Lock()
		for topic, list := range b.entries {
			live := make([]weak.Pointer[SubscriberHandle], 0, len(list))
			removedHere := false
			for _, wp := range list {
				strong := wp.Value()
				if strong == nil {
					continue
				}
				if strong.Impl == h.Impl {
					removedHere = true
					continue
				}
				live = append(live, wp)
			}
			if removedHere {
				removedAny = true
			}
			if len(live) == 0 {
				delete(b.entries, topic)
			} else {
				b.entries[topic] = live
			}
		}
		b.mu.Unlock()
	}
	return removedAny
}

// ListTopics returns the topic keys that currently have at least one live
// provider, ordered by when each topic was first registered (not
// lexicographically). Expired handles are pruned as a side effect.
func (r *Registry) ListTopics() []string {
	var topics []string
	for i := range r.providers {
		b := &r.providers[i]
		b.mu.Lock()
		for topic, list := range b.entries {
			live := pruneProviders(list)
			if pruned := len(list) - len(live); pruned > 0 {
				r.log.V(2).Info("pruned expired provider handles", "topic", topic, "count", pruned)
			}
			if len(live) == 0 {
				delete(b.entries, topic)
				continue
			}
			b.entries[topic] = live
			topics = append(topics, topic)
		}
		b.mu.Unlock()
	}

	r.orderMu.Lock()
	sort.Slice(topics, func(i, j int) bool {
		return r.insertOrder[topics[i]] < r.insertOrder[topics[j]]
	})
	r.orderMu.Unlock()
	return topics
}

// FindProviders returns the ordered live providers registered for topic. If
// pruning causes the list to become empty, the topic is removed.
func (r *Registry) FindProviders(topic string) []Provider {
	if topic == "" {
		return nil
	}
	b := &r.providers[bucketIndex(topic)]
	b.mu.Lock()
	defer b.mu.Unlock()

	list, ok := b.entries[topic]
	if !ok {
		return nil
	}
	live := pruneProviders(list)
	if len(live) == 0 {
		delete(b.entries, topic)
		return nil
	}
	b.entries[topic] = live

	out := make([]Provider, 0, len(live))
	for _, wp := range live {
		if strong := wp.Value(); strong != nil {
			out = append(out, strong.Impl)
		}
	}
	return out
}

// SnapshotSubscribers upgrades every live weak subscriber handle for topic
// to a strong handle and returns them in registration order. Used by the
// dispatch worker so that callback invocation (§4.5 step 4) runs without
// any registry lock held.
func (r *Registry) SnapshotSubscribers(topic string) []Subscriber {
	if topic == "" {
		return nil
	}
	b := &r.subscribers[bucketIndex(topic)]
	b.mu.Lock()
	defer b.mu.Unlock()

	list, ok := b.entries[topic]
	if !ok {
		return nil
	}
	live := make([]weak.Pointer[SubscriberHandle], 0, len(list))
	out := make([]Subscriber, 0, len(list))
	for _, wp := range list {
		strong := wp.Value()
		if strong == nil {
			continue
		}
		live = append(live, wp)
		out = append(out, strong.Impl)
	}
	if len(live) == 0 {
		delete(b.entries, topic)
	} else {
		b.entries[topic] = live
	}
	return out
}

func pruneProviders(list []weak.Pointer[ProviderHandle]) []weak.Pointer[ProviderHandle] {
	live := list[:0:0]
	for _, wp := range list {
		if wp.Value() != nil {
			live = append(live, wp)
		}
	}
	return live
}
