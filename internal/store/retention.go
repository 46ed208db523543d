package store

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PurgeOlderThan hard-deletes every memory created strictly before cutoff,
// together with its tag associations, in one transaction.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (n int, err error) {
	ctx, span := tracer.Start(ctx, "store.purge",
		trace.WithAttributes(attribute.String("cutoff", formatTime(cutoff))))
	defer func() { endSpan(span, err) }()

	err = s.withTx(ctx, "purge memories", func(tx *sql.Tx) error {
		var err error
		n, err = deleteWhere(ctx, tx, "created_at < ?", []any{formatTime(cutoff)})
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged memories", zap.Int("count", n), zap.Time("cutoff", cutoff.UTC()))
	}
	return n, nil
}
