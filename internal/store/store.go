// Package store provides the memory storage interface and SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/rcliao/context-memory/internal/model"
)

// CreateParams holds the already-sanitized fields of a new memory.
type CreateParams struct {
	Content    string
	MemoryType model.MemoryType
	Context    string
	Tags       []string
}

// UpdateParams holds the fields to change. Nil means unchanged.
type UpdateParams struct {
	Content *string
	Context *string
	Tags    *[]string
}

// Empty reports whether no field is set.
func (p UpdateParams) Empty() bool {
	return p.Content == nil && p.Context == nil && p.Tags == nil
}

// Store defines the memory storage interface.
type Store interface {
	// Create stores a new memory and its tag associations atomically.
	Create(ctx context.Context, p CreateParams) (*model.Memory, error)

	// Get retrieves a memory by id and records the access.
	// Returns model.ErrNotFound or model.ErrDecryption.
	Get(ctx context.Context, id int64) (*model.Memory, error)

	// Update changes the given fields and reconciles the tag index.
	Update(ctx context.Context, id int64, p UpdateParams) (*model.Memory, error)

	// Delete removes a memory. Returns false if it did not exist.
	Delete(ctx context.Context, id int64) (bool, error)

	// Search filters, ranks and paginates memories.
	Search(ctx context.Context, p SearchParams) (*SearchResult, error)

	// Clear deletes every memory, or only those of memoryType when set.
	Clear(ctx context.Context, memoryType model.MemoryType) (int, error)

	// PurgeOlderThan hard-deletes memories created before cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	Stats(ctx context.Context) (*Stats, error)
	Tags(ctx context.Context) ([]TagCount, error)
	TagIndex(ctx context.Context) (map[string][]int64, error)
	RebuildTagIndex(ctx context.Context) (int, error)

	// ExportAll returns every memory decrypted, without touching access stats.
	ExportAll(ctx context.Context) ([]model.Memory, error)

	// Encrypted reports whether new writes are encrypted.
	Encrypted() bool

	// Close closes the store.
	Close() error
}
