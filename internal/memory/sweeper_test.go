package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperPurgesOnStart(t *testing.T) {
	ctx := context.Background()
	m, clock := newClockedManager(t, Config{RetentionDays: 30, RetentionInterval: time.Hour})

	old, err := m.Store(ctx, StoreParams{Content: "expired", MemoryType: "note"})
	require.NoError(t, err)
	clock.Advance(31 * 24 * time.Hour)
	fresh, err := m.Store(ctx, StoreParams{Content: "current", MemoryType: "note"})
	require.NoError(t, err)

	sw := m.Sweeper()
	sw.Start(ctx)
	t.Cleanup(sw.Stop)

	require.Eventually(t, func() bool {
		_, err := m.store.Get(ctx, old.ID)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err = m.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestSweeperTicks(t *testing.T) {
	ctx := context.Background()
	m, clock := newClockedManager(t, Config{RetentionDays: 1, RetentionInterval: 20 * time.Millisecond})

	sw := m.Sweeper()
	sw.Start(ctx)
	t.Cleanup(sw.Stop)

	mem, err := m.Store(ctx, StoreParams{Content: "short lived", MemoryType: "note"})
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)

	require.Eventually(t, func() bool {
		st, err := m.Stats(ctx)
		return err == nil && st.TotalMemories == 0
	}, 2*time.Second, 10*time.Millisecond, "memory %d never purged", mem.ID)
}

func TestSweeperDisabled(t *testing.T) {
	m := newTestManager(t, Config{})
	sw := m.Sweeper()
	sw.Start(context.Background())
	assert.Nil(t, sw.cancel)
	sw.Stop()
}

func TestSweeperStopIsIdempotent(t *testing.T) {
	m := newTestManager(t, Config{RetentionDays: 7})
	sw := m.Sweeper()
	sw.Start(context.Background())
	sw.Start(context.Background())
	sw.Stop()
	sw.Stop()
	assert.Nil(t, sw.cancel)
}
