// Package memory is the entry point for storing and recalling memories. It
// validates input, runs the privacy filter and delegates to the store.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/context-memory/internal/model"
	"github.com/rcliao/context-memory/internal/privacy"
	"github.com/rcliao/context-memory/internal/store"
)

const (
	DefaultRetentionInterval = time.Hour
	DefaultRecentDays        = 7
	DefaultMinAccessCount    = 2
)

// Config is built once by the caller and passed to Open or New.
type Config struct {
	DBPath            string
	Passphrase        string
	BlockedKeywords   []string
	RetentionDays     int
	RetentionInterval time.Duration
	MaxContentLength  int
	MaxContextLength  int

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Manager coordinates validation, privacy filtering and storage.
type Manager struct {
	cfg    Config
	store  store.Store
	filter *privacy.Filter
	logger *zap.Logger
	now    func() time.Time
}

// Open opens the SQLite store at cfg.DBPath and wraps it in a Manager.
func Open(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}
	st, err := store.NewSQLiteStore(cfg.DBPath, store.Options{
		Passphrase: cfg.Passphrase,
		Logger:     logger.Named("store"),
		Now:        cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	return New(cfg, st, logger), nil
}

// New wraps an existing store.
func New(cfg Config, st store.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetentionInterval <= 0 {
		cfg.RetentionInterval = DefaultRetentionInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg:   cfg,
		store: st,
		filter: privacy.New(privacy.Config{
			BlockedKeywords:  cfg.BlockedKeywords,
			MaxContentLength: cfg.MaxContentLength,
			MaxContextLength: cfg.MaxContextLength,
		}),
		logger: logger,
		now:    now,
	}
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Encrypted reports whether new memories are encrypted at rest.
func (m *Manager) Encrypted() bool { return m.store.Encrypted() }

// PrivacySettings reports the active privacy rules.
func (m *Manager) PrivacySettings() privacy.Settings { return m.filter.Settings() }

// StoreParams holds the raw input of a new memory.
type StoreParams struct {
	Content    string
	MemoryType string
	Context    string
	Tags       []string
}

// Store validates, sanitizes and persists a new memory. Rejected input never
// reaches the database, so it consumes no id.
func (m *Manager) Store(ctx context.Context, p StoreParams) (*model.Memory, error) {
	mt, err := model.ParseMemoryType(p.MemoryType)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return nil, model.ErrEmptyContent
	}
	tags, err := model.NormalizeTags(p.Tags)
	if err != nil {
		return nil, err
	}
	clean, err := m.filter.Sanitize(content, strings.TrimSpace(p.Context))
	if err != nil {
		m.logger.Info("memory rejected", zap.String("type", string(mt)), zap.Error(err))
		return nil, err
	}

	mem, err := m.store.Create(ctx, store.CreateParams{
		Content:    clean.Content,
		MemoryType: mt,
		Context:    clean.Context,
		Tags:       tags,
	})
	if err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	m.logger.Info("memory stored",
		zap.Int64("id", mem.ID),
		zap.String("type", string(mt)),
		zap.Int("tags", len(tags)),
		zap.Any("masked", clean.Masked))
	return mem, nil
}

// Get returns a memory and records the access.
func (m *Manager) Get(ctx context.Context, id int64) (*model.Memory, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id %d", model.ErrNotFound, id)
	}
	return m.store.Get(ctx, id)
}

// UpdateParams holds the fields to change. Nil means unchanged.
type UpdateParams struct {
	Content *string
	Context *string
	Tags    *[]string
}

// Update changes a memory. Changed text goes through the same privacy
// filter as new memories.
func (m *Manager) Update(ctx context.Context, id int64, p UpdateParams) (*model.Memory, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id %d", model.ErrNotFound, id)
	}
	var up store.UpdateParams

	var content, ctxText string
	if p.Content != nil {
		content = strings.TrimSpace(*p.Content)
		if content == "" {
			return nil, model.ErrEmptyContent
		}
	}
	if p.Context != nil {
		ctxText = strings.TrimSpace(*p.Context)
	}
	if p.Content != nil || p.Context != nil {
		clean, err := m.filter.Sanitize(content, ctxText)
		if err != nil {
			m.logger.Info("update rejected", zap.Int64("id", id), zap.Error(err))
			return nil, err
		}
		if p.Content != nil {
			up.Content = &clean.Content
		}
		if p.Context != nil {
			up.Context = &clean.Context
		}
	}
	if p.Tags != nil {
		tags, err := model.NormalizeTags(*p.Tags)
		if err != nil {
			return nil, err
		}
		up.Tags = &tags
	}
	if up.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", model.ErrInvalidCriteria)
	}

	mem, err := m.store.Update(ctx, id, up)
	if err != nil {
		return nil, err
	}
	m.logger.Info("memory updated", zap.Int64("id", id))
	return mem, nil
}

// Delete removes a memory. Returns false if it did not exist.
func (m *Manager) Delete(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	ok, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		m.logger.Info("memory deleted", zap.Int64("id", id))
	} else {
		m.logger.Warn("memory not found for deletion", zap.Int64("id", id))
	}
	return ok, nil
}

// SearchParams holds raw search criteria. Query is split on whitespace and
// merged with Keywords.
type SearchParams struct {
	Query          string
	Keywords       []string
	MemoryType     string
	Tags           []string
	MatchAllTags   bool
	DaysBack       int
	MinAccessCount int
	Order          string
	Limit          int
	Offset         int
}

// Search validates criteria and runs the query.
func (m *Manager) Search(ctx context.Context, p SearchParams) (*store.SearchResult, error) {
	sp, err := m.searchParams(p)
	if err != nil {
		return nil, err
	}
	res, err := m.store.Search(ctx, sp)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("search",
		zap.Strings("keywords", sp.Keywords),
		zap.Int("total", res.TotalCount),
		zap.Int("returned", len(res.Memories)),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

func (m *Manager) searchParams(p SearchParams) (store.SearchParams, error) {
	var sp store.SearchParams
	switch {
	case p.Limit < 0:
		return sp, fmt.Errorf("%w: limit must not be negative", model.ErrInvalidCriteria)
	case p.Offset < 0:
		return sp, fmt.Errorf("%w: offset must not be negative", model.ErrInvalidCriteria)
	case p.DaysBack < 0:
		return sp, fmt.Errorf("%w: days must not be negative", model.ErrInvalidCriteria)
	case p.MinAccessCount < 0:
		return sp, fmt.Errorf("%w: min access count must not be negative", model.ErrInvalidCriteria)
	}

	if p.MemoryType != "" {
		mt, err := model.ParseMemoryType(p.MemoryType)
		if err != nil {
			return sp, err
		}
		sp.MemoryType = mt
	}
	order, err := store.ParseOrder(p.Order)
	if err != nil {
		return sp, err
	}
	tags, err := model.NormalizeTags(p.Tags)
	if err != nil {
		return sp, err
	}

	sp.Keywords = keywords(p.Query, p.Keywords)
	sp.Tags = tags
	sp.MatchAllTags = p.MatchAllTags
	sp.DaysBack = p.DaysBack
	sp.MinAccessCount = p.MinAccessCount
	sp.Order = order
	sp.Limit = p.Limit
	sp.Offset = p.Offset
	return sp, nil
}

// keywords lower-cases and de-duplicates search terms.
func keywords(query string, extra []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, kw := range append(strings.Fields(query), extra...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

// Recent returns memories created in the last days (default 7), newest first.
func (m *Manager) Recent(ctx context.Context, days int, memoryType string, limit int) (*store.SearchResult, error) {
	if days == 0 {
		days = DefaultRecentDays
	}
	return m.Search(ctx, SearchParams{DaysBack: days, MemoryType: memoryType, Limit: limit})
}

// Frequent returns memories accessed at least minAccess times (default 2),
// most accessed first.
func (m *Manager) Frequent(ctx context.Context, minAccess int, memoryType string, limit int) (*store.SearchResult, error) {
	if minAccess == 0 {
		minAccess = DefaultMinAccessCount
	}
	return m.Search(ctx, SearchParams{
		MinAccessCount: minAccess,
		MemoryType:     memoryType,
		Order:          string(store.OrderAccess),
		Limit:          limit,
	})
}

// Stats returns aggregate statistics computed from the current records.
func (m *Manager) Stats(ctx context.Context) (*store.Stats, error) {
	return m.store.Stats(ctx)
}

// Tags returns every tag in use with its memory count.
func (m *Manager) Tags(ctx context.Context) ([]store.TagCount, error) {
	return m.store.Tags(ctx)
}

// RebuildTagIndex re-derives the tag index from the records.
func (m *Manager) RebuildTagIndex(ctx context.Context) (int, error) {
	n, err := m.store.RebuildTagIndex(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Info("tag index rebuilt", zap.Int("memories", n))
	return n, nil
}

// Clear deletes all memories, or only those of memoryType. It refuses to
// run unless confirm is true.
func (m *Manager) Clear(ctx context.Context, memoryType string, confirm bool) (int, error) {
	var mt model.MemoryType
	if memoryType != "" {
		var err error
		if mt, err = model.ParseMemoryType(memoryType); err != nil {
			return 0, err
		}
	}
	if !confirm {
		return 0, model.ErrConfirmationRequired
	}
	n, err := m.store.Clear(ctx, mt)
	if err != nil {
		return 0, err
	}
	m.logger.Warn("memories cleared", zap.Int("count", n), zap.String("type", string(mt)))
	return n, nil
}

// PurgeOlderThan hard-deletes memories created more than days ago.
func (m *Manager) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", model.ErrInvalidCriteria)
	}
	return m.store.PurgeOlderThan(ctx, m.now().AddDate(0, 0, -days))
}

// PurgeExpired applies the configured retention period. A zero period
// keeps everything.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	if m.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	return m.PurgeOlderThan(ctx, m.cfg.RetentionDays)
}
