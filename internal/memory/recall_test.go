package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecallBasic(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, Config{})

	m.Store(ctx, StoreParams{Content: "Go is a statically typed language", MemoryType: "fact"})
	m.Store(ctx, StoreParams{Content: "Rust is a systems language with borrow checker", MemoryType: "fact"})
	m.Store(ctx, StoreParams{Content: "Dinner on Friday", MemoryType: "note"})

	res, err := m.Recall(ctx, RecallParams{Query: "language"})
	require.NoError(t, err)
	assert.Equal(t, DefaultRecallBudget, res.Budget)
	assert.Len(t, res.Memories, 2)
	for _, rm := range res.Memories {
		assert.Contains(t, rm.Content, "language")
		assert.False(t, rm.Excerpt)
	}
}

func TestRecallBudgetExcerpt(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, Config{})

	long := strings.Repeat("This is a line about programming languages. ", 40)
	m.Store(ctx, StoreParams{Content: long, MemoryType: "fact"})

	// 50 tokens is about 200 characters.
	res, err := m.Recall(ctx, RecallParams{Query: "programming", Budget: 50})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.True(t, res.Memories[0].Excerpt)
	assert.True(t, strings.HasSuffix(res.Memories[0].Content, "..."))
	assert.Equal(t, 200+len("..."), len(res.Memories[0].Content))
	assert.Equal(t, 50, res.Used)
}

func TestRecallSkipsWhenTooLittleRoom(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, Config{})

	m.Store(ctx, StoreParams{Content: strings.Repeat("x", 500) + " topic", MemoryType: "fact"})

	res, err := m.Recall(ctx, RecallParams{Query: "topic", Budget: 20})
	require.NoError(t, err)
	assert.Empty(t, res.Memories)
	assert.Zero(t, res.Used)
}

func TestRecallEmpty(t *testing.T) {
	m := newTestManager(t, Config{})
	res, err := m.Recall(context.Background(), RecallParams{Query: "nothing here"})
	require.NoError(t, err)
	assert.NotNil(t, res.Memories)
	assert.Empty(t, res.Memories)
}

func TestRecallPrefersPreferencesAndRelevance(t *testing.T) {
	ctx := context.Background()
	m, clock := newClockedManager(t, Config{})

	note, _ := m.Store(ctx, StoreParams{Content: "coding notes", MemoryType: "conversation"})
	pref, _ := m.Store(ctx, StoreParams{Content: "prefers tabs when coding", MemoryType: "preference"})
	clock.Advance(time.Hour)

	res, err := m.Recall(ctx, RecallParams{Query: "coding"})
	require.NoError(t, err)
	require.Len(t, res.Memories, 2)
	assert.Equal(t, pref.ID, res.Memories[0].ID)
	assert.Equal(t, note.ID, res.Memories[1].ID)
	assert.Greater(t, res.Memories[0].Score, res.Memories[1].Score)

	// Matching more of the query outweighs the type bonus.
	both, _ := m.Store(ctx, StoreParams{Content: "coding style guide", MemoryType: "conversation"})
	res, err = m.Recall(ctx, RecallParams{Query: "coding style"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Memories)
	assert.Equal(t, both.ID, res.Memories[0].ID)
}

func TestTypeWeight(t *testing.T) {
	assert.Greater(t, typeWeight("preference"), typeWeight("fact"))
	assert.Greater(t, typeWeight("fact"), typeWeight("note"))
	assert.Greater(t, typeWeight("note"), typeWeight("conversation"))
}
