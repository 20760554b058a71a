package ws

import (
	"sync"

	"coinbase-stream/internal/models"
)

// SubscriptionRegistry records what is currently subscribed on each endpoint.
// It is the sole source of truth for rebuilding server-side subscription
// state after a reconnect.
type SubscriptionRegistry struct {
	mu        sync.RWMutex
	endpoints map[models.EndpointKind]*endpointSubscriptions
}

// endpointSubscriptions holds the channel buckets for one endpoint. Each
// endpoint has its own lock so updates to different endpoints never block
// each other.
type endpointSubscriptions struct {
	mu       sync.Mutex
	channels map[models.Channel][]string
}

// NewSubscriptionRegistry creates an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		endpoints: make(map[models.EndpointKind]*endpointSubscriptions),
	}
}

func (r *SubscriptionRegistry) endpoint(kind models.EndpointKind) *endpointSubscriptions {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.endpoints[kind]
	if !ok {
		subs = &endpointSubscriptions{channels: make(map[models.Channel][]string)}
		r.endpoints[kind] = subs
	}
	return subs
}

// Add merges productIDs into the set recorded for (kind, channel). Adding is
// idempotent: ids already present are not duplicated. An empty productIDs
// list still creates the channel entry, so channels subscribed without
// products (heartbeats) survive into snapshots.
func (r *SubscriptionRegistry) Add(kind models.EndpointKind, channel models.Channel, productIDs []string) {
	subs := r.endpoint(kind)
	subs.mu.Lock()
	defer subs.mu.Unlock()

	existing, ok := subs.channels[channel]
	if !ok {
		subs.channels[channel] = append([]string(nil), productIDs...)
		return
	}

	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range productIDs {
		if _, dup := seen[id]; !dup {
			existing = append(existing, id)
			seen[id] = struct{}{}
		}
	}
	subs.channels[channel] = existing
}

// Remove deletes only the named product ids from (kind, channel). Ids that
// are not present are ignored, and the channel entry itself is kept even
// when it becomes empty.
func (r *SubscriptionRegistry) Remove(kind models.EndpointKind, channel models.Channel, productIDs []string) {
	subs := r.endpoint(kind)
	subs.mu.Lock()
	defer subs.mu.Unlock()

	existing, ok := subs.channels[channel]
	if !ok {
		return
	}

	drop := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		drop[id] = struct{}{}
	}

	kept := existing[:0]
	for _, id := range existing {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	subs.channels[channel] = kept
}

// Snapshot returns a copy of the current subscriptions for the endpoint,
// suitable for replaying through the subscribe path after a reconnect.
func (r *SubscriptionRegistry) Snapshot(kind models.EndpointKind) map[models.Channel][]string {
	r.mu.RLock()
	subs, ok := r.endpoints[kind]
	r.mu.RUnlock()
	if !ok {
		return map[models.Channel][]string{}
	}

	subs.mu.Lock()
	defer subs.mu.Unlock()

	out := make(map[models.Channel][]string, len(subs.channels))
	for channel, ids := range subs.channels {
		out[channel] = append([]string(nil), ids...)
	}
	return out
}
