package oidcflow

import (
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

var (
	// ErrFlowNotFound is returned when no pending flow matches the state,
	// either because it never existed or because it expired.
	ErrFlowNotFound = errors.New("login flow not found")
)

// FlowStore keeps pending login flow state in memory with automatic expiry.
// A browser left in the pending state is resolved by the TTL: once the entry
// expires, the eventual callback is denied.
type FlowStore struct {
	cache *ttlcache.Cache[string, *LoginFlowState]
	ttl   time.Duration
}

// NewFlowStore creates a new FlowStore. Entries expire after ttl.
func NewFlowStore(ttl time.Duration) *FlowStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *LoginFlowState](ttl),
		ttlcache.WithDisableTouchOnHit[string, *LoginFlowState](),
	)

	// Start the cleanup process
	go cache.Start()

	return &FlowStore{cache: cache, ttl: ttl}
}

// Store adds a new pending flow keyed by its state value.
func (s *FlowStore) Store(flow *LoginFlowState) {
	now := time.Now()
	flow.CreatedAt = now
	flow.ExpiresAt = now.Add(s.ttl)
	s.cache.Set(flow.State, flow, s.ttl)
}

// Consume retrieves and removes the pending flow for state. Each flow can be
// consumed exactly once; a replayed state is reported as not found.
func (s *FlowStore) Consume(state string) (*LoginFlowState, error) {
	item := s.cache.Get(state)
	if item == nil {
		return nil, ErrFlowNotFound
	}
	s.cache.Delete(state)
	return item.Value(), nil
}

// Stop halts the background expiry loop.
func (s *FlowStore) Stop() {
	s.cache.Stop()
}
