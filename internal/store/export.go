package store

import (
	"context"

	"github.com/rcliao/context-memory/internal/model"
)

// ExportAll returns every memory in id order, decrypted. Access bookkeeping
// is left untouched. An undecryptable record fails the export.
func (s *SQLiteStore) ExportAll(ctx context.Context) (mems []model.Memory, err error) {
	ctx, span := tracer.Start(ctx, "store.export")
	defer func() { endSpan(span, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories ORDER BY id`)
	if err != nil {
		return nil, &model.StorageError{Op: "export", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, &model.StorageError{Op: "export", Err: err}
		}
		m, err := s.decode(r)
		if err != nil {
			return nil, err
		}
		mems = append(mems, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "export", Err: err}
	}
	return mems, nil
}
