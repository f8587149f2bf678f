package storage

import (
	"context"
	"fmt"
	"sync"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// MemoryHistory in-memory индекс артефактов в порядке добавления.
// Без вытеснения: история растёт вместе с каталогом артефактов.
type MemoryHistory struct {
	mu     sync.RWMutex
	items  []entity.Artifact
	byName map[string]int
}

// NewMemoryHistory создаёт пустой индекс
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{byName: make(map[string]int)}
}

// Append добавляет артефакт в конец истории
func (h *MemoryHistory) Append(ctx context.Context, artifact entity.Artifact) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.byName[artifact.Filename]; exists {
		return fmt.Errorf("artifact %s is already indexed", artifact.Filename)
	}
	h.byName[artifact.Filename] = len(h.items)
	h.items = append(h.items, artifact)
	return nil
}

// Lookup возвращает артефакт по имени
func (h *MemoryHistory) Lookup(ctx context.Context, filename string) (entity.Artifact, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	idx, ok := h.byName[filename]
	if !ok {
		return entity.Artifact{}, fmt.Errorf("artifact %s: %w", filename, entity.ErrNotFound)
	}
	return h.items[idx], nil
}

// List возвращает снимок истории, его можно менять
func (h *MemoryHistory) List(ctx context.Context) ([]entity.Artifact, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]entity.Artifact, len(h.items))
	copy(out, h.items)
	return out, nil
}

// Len возвращает число записей
func (h *MemoryHistory) Len(ctx context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items), nil
}

// Remove удаляет запись, порядок остальных сохраняется
func (h *MemoryHistory) Remove(ctx context.Context, filename string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.byName[filename]
	if !ok {
		return fmt.Errorf("artifact %s: %w", filename, entity.ErrNotFound)
	}
	h.items = append(h.items[:idx], h.items[idx+1:]...)
	delete(h.byName, filename)
	for i := idx; i < len(h.items); i++ {
		h.byName[h.items[i].Filename] = i
	}
	return nil
}

var _ port.HistoryIndex = (*MemoryHistory)(nil)
