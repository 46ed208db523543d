package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rcliao/context-memory/internal/model"
)

// TagCount is a tag and the number of memories carrying it.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// syncTags replaces the index rows of one memory with tags.
func syncTags(ctx context.Context, tx *sql.Tx, memoryID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_tags WHERE memory_id = ?`, memoryID); err != nil {
		return fmt.Errorf("clear tag links: %w", err)
	}
	for i, name := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
		var tagID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID); err != nil {
			return fmt.Errorf("lookup tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_tags (memory_id, tag_id, position) VALUES (?, ?, ?)`,
			memoryID, tagID, i); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return pruneTags(ctx, tx)
}

// pruneTags removes tags no memory references any more.
func pruneTags(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM memory_tags)`)
	if err != nil {
		return fmt.Errorf("prune tags: %w", err)
	}
	return nil
}

// Tags returns every tag in use with its memory count, ordered by name.
func (s *SQLiteStore) Tags(ctx context.Context) ([]TagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(mt.memory_id)
		FROM tags t JOIN memory_tags mt ON mt.tag_id = t.id
		GROUP BY t.name ORDER BY t.name`)
	if err != nil {
		return nil, &model.StorageError{Op: "list tags", Err: err}
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, &model.StorageError{Op: "list tags", Err: err}
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "list tags", Err: err}
	}
	return out, nil
}

// TagIndex returns tag name -> memory ids as held in the index tables.
func (s *SQLiteStore) TagIndex(ctx context.Context) (map[string][]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, mt.memory_id
		FROM memory_tags mt JOIN tags t ON t.id = mt.tag_id
		ORDER BY t.name, mt.memory_id`)
	if err != nil {
		return nil, &model.StorageError{Op: "read tag index", Err: err}
	}
	defer rows.Close()

	idx := map[string][]int64{}
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, &model.StorageError{Op: "read tag index", Err: err}
		}
		idx[name] = append(idx[name], id)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "read tag index", Err: err}
	}
	return idx, nil
}

// RebuildTagIndex discards the index tables and derives them again from each
// memory's tag list. Returns the number of memories indexed.
func (s *SQLiteStore) RebuildTagIndex(ctx context.Context) (n int, err error) {
	ctx, span := tracer.Start(ctx, "store.rebuild_tag_index")
	defer func() { endSpan(span, err) }()

	err = s.withTx(ctx, "rebuild tag index", func(tx *sql.Tx) error {
		n = 0
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_tags`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tags`); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `SELECT id, tags FROM memories ORDER BY id`)
		if err != nil {
			return err
		}
		type entry struct {
			id   int64
			tags []string
		}
		var entries []entry
		for rows.Next() {
			var e entry
			var raw sql.NullString
			if err := rows.Scan(&e.id, &raw); err != nil {
				rows.Close()
				return err
			}
			if raw.Valid {
				if err := json.Unmarshal([]byte(raw.String), &e.tags); err != nil {
					rows.Close()
					return &model.StorageError{Op: fmt.Sprintf("decode tags of memory %d", e.id), Err: err}
				}
			}
			entries = append(entries, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, e := range entries {
			if err := syncTags(ctx, tx, e.id, e.tags); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// BuildTagIndex derives tag name -> memory ids from memories, ids ascending
// when the input is ordered by id.
func BuildTagIndex(memories []model.Memory) map[string][]int64 {
	idx := map[string][]int64{}
	for _, m := range memories {
		for _, t := range m.Tags {
			idx[t] = append(idx[t], m.ID)
		}
	}
	return idx
}
