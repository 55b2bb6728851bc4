package onboarding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStoreRoundTrip(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	state := NewState("s1")
	state.Step = StepAwaitingConfirmation
	state.Country = "DK"
	require.NoError(t, store.Put(ctx, state))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StepAwaitingConfirmation, got.Step)
	assert.Equal(t, "DK", got.Country)
}

func TestMemorySessionStoreMissingSession(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	defer store.Close()

	got, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemorySessionStoreDelete(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, NewState("s1")))
	require.NoError(t, store.Delete(ctx, "s1"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	store := NewMemorySessionStore(30 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, NewState("s1")))

	// Expired entries are invisible even before the janitor sweeps.
	time.Sleep(60 * time.Millisecond)
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemorySessionStorePutRefreshesTTL(t *testing.T) {
	store := NewMemorySessionStore(80 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	state := NewState("s1")
	require.NoError(t, store.Put(ctx, state))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, store.Put(ctx, state))
	time.Sleep(50 * time.Millisecond)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMemorySessionStoreIsolation(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	a := NewState("a")
	a.Step = StepAwaitingPermit
	require.NoError(t, store.Put(ctx, a))
	require.NoError(t, store.Put(ctx, NewState("b")))

	gotB, err := store.Get(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, gotB)
	assert.Equal(t, StepAwaitingIntent, gotB.Step)

	require.NoError(t, store.Delete(ctx, "a"))
	gotB, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.NotNil(t, gotB)
}

func TestMemorySessionStoreCloseIsIdempotent(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
