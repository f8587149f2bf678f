package port

import (
	"context"

	"plate-mask/internal/domain/entity"
)

// ArtifactStore хранилище обработанных изображений
type ArtifactStore interface {
	// Commit атомарно публикует файл под новым уникальным именем с расширением ext
	Commit(ctx context.Context, data []byte, ext string) (entity.Artifact, error)

	// Retrieve возвращает содержимое артефакта или entity.ErrNotFound
	Retrieve(ctx context.Context, filename string) ([]byte, error)

	// History возвращает записи в порядке добавления
	History(ctx context.Context) ([]entity.HistoryEntry, error)
}

// HistoryIndex упорядоченный индекс артефактов
type HistoryIndex interface {
	// Append добавляет запись в конец истории
	Append(ctx context.Context, artifact entity.Artifact) error

	// Lookup возвращает артефакт по имени или entity.ErrNotFound
	Lookup(ctx context.Context, filename string) (entity.Artifact, error)

	// List возвращает артефакты в порядке добавления
	List(ctx context.Context) ([]entity.Artifact, error)

	// Len возвращает количество записей
	Len(ctx context.Context) (int, error)

	// Remove удаляет запись или возвращает entity.ErrNotFound
	Remove(ctx context.Context, filename string) error
}

// ArtifactNotifier получает уведомление о каждом новом артефакте
type ArtifactNotifier interface {
	Notify(entry entity.HistoryEntry)
}
