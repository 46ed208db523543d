package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rcliao/context-memory/internal/model"
)

// Export returns every memory decrypted, in id order. Access bookkeeping is
// not touched.
func (m *Manager) Export(ctx context.Context) ([]model.Memory, error) {
	mems, err := m.store.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return mems, nil
}

// Import stores memories from an export as new records. Each one goes
// through Store, so it is validated and sanitized again and receives a
// fresh id. Stops at the first failure.
func (m *Manager) Import(ctx context.Context, memories []model.Memory) (int, error) {
	imported := 0
	for _, mem := range memories {
		_, err := m.Store(ctx, StoreParams{
			Content:    mem.Content,
			MemoryType: string(mem.MemoryType),
			Context:    mem.Context,
			Tags:       mem.Tags,
		})
		if err != nil {
			return imported, fmt.Errorf("import memory %d: %w", mem.ID, err)
		}
		imported++
	}
	m.logger.Info("memories imported", zap.Int("count", imported))
	return imported, nil
}
