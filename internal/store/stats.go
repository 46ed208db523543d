package store

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/rcliao/context-memory/internal/model"
)

// Stats holds database statistics.
type Stats struct {
	DBPath            string                   `json:"db_path"`
	DBSizeBytes       int64                    `json:"db_size_bytes"`
	StoreID           string                   `json:"store_id"`
	EncryptionEnabled bool                     `json:"encryption_enabled"`
	TotalMemories     int                      `json:"total_memories"`
	ByType            map[model.MemoryType]int `json:"by_type"`
	EncryptedMemories int                      `json:"encrypted_memories"`
	TotalTags         int                      `json:"total_tags"`
	WithTags          int                      `json:"with_tags"`
	WithoutTags       int                      `json:"without_tags"`
	TotalAccessCount  int                      `json:"total_access_count"`
	AvgAccessCount    float64                  `json:"avg_access_count"`
	MaxAccessCount    int                      `json:"max_access_count"`
	MinAccessCount    int                      `json:"min_access_count"`
	Oldest            *time.Time               `json:"oldest,omitempty"`
	Newest            *time.Time               `json:"newest,omitempty"`
}

// Stats returns database statistics computed from the current rows.
func (s *SQLiteStore) Stats(ctx context.Context) (st *Stats, err error) {
	ctx, span := tracer.Start(ctx, "store.stats")
	defer func() { endSpan(span, err) }()

	st = &Stats{
		DBPath:            s.path,
		StoreID:           s.storeID,
		EncryptionEnabled: s.cipher != nil,
		ByType:            make(map[model.MemoryType]int, len(model.MemoryTypes)),
	}
	for _, t := range model.MemoryTypes {
		st.ByType[t] = 0
	}

	// DB file size
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest, newest sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(encrypted), 0),
		       COALESCE(SUM(CASE WHEN tags IS NOT NULL AND tags != '[]' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(access_count), 0),
		       COALESCE(MAX(access_count), 0),
		       COALESCE(MIN(access_count), 0),
		       MIN(created_at),
		       MAX(created_at)
		FROM memories`).Scan(
		&st.TotalMemories, &st.EncryptedMemories, &st.WithTags,
		&st.TotalAccessCount, &st.MaxAccessCount, &st.MinAccessCount,
		&oldest, &newest)
	if err != nil {
		return nil, &model.StorageError{Op: "stats", Err: err}
	}
	st.WithoutTags = st.TotalMemories - st.WithTags
	if st.TotalMemories > 0 {
		st.AvgAccessCount = float64(st.TotalAccessCount) / float64(st.TotalMemories)
	}
	if oldest.Valid {
		t := parseTime(oldest.String)
		st.Oldest = &t
	}
	if newest.Valid {
		t := parseTime(newest.String)
		st.Newest = &t
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT tag_id) FROM memory_tags`).Scan(&st.TotalTags); err != nil {
		return nil, &model.StorageError{Op: "stats", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT memory_type, COUNT(*) FROM memories GROUP BY memory_type`)
	if err != nil {
		return nil, &model.StorageError{Op: "stats", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, &model.StorageError{Op: "stats", Err: err}
		}
		st.ByType[model.MemoryType(t)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "stats", Err: err}
	}
	return st, nil
}
