package oidcflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowStore_ConsumeOnce(t *testing.T) {
	store := NewFlowStore(time.Minute)
	defer store.Stop()

	store.Store(&LoginFlowState{State: "state-1", Nonce: "nonce-1"})

	flow, err := store.Consume("state-1")
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", flow.Nonce)
	assert.False(t, flow.ExpiresAt.IsZero())

	// A replayed state must not resolve a second time.
	_, err = store.Consume("state-1")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestFlowStore_UnknownStateNotFound(t *testing.T) {
	store := NewFlowStore(time.Minute)
	defer store.Stop()

	_, err := store.Consume("never-stored")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestFlowStore_ExpiredFlowNotFound(t *testing.T) {
	store := NewFlowStore(10 * time.Millisecond)
	defer store.Stop()

	store.Store(&LoginFlowState{State: "state-1", Nonce: "nonce-1"})
	time.Sleep(30 * time.Millisecond)

	_, err := store.Consume("state-1")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}
