package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// stagingPrefix префикс недописанных файлов в каталоге загрузок
const stagingPrefix = ".part-"

// allowedExts расширения, под которыми публикуются артефакты
var allowedExts = map[string]bool{".jpg": true, ".png": true}

// FileArtifactStore хранит артефакты в каталоге output.
// Файл пишется в каталог загрузок и публикуется жёсткой ссылкой: ссылка не перезаписывает
// существующее имя, а читатель видит файл только целиком. Оба каталога должны быть
// на одной файловой системе.
type FileArtifactStore struct {
	stagingDir string
	outputDir  string
	index      port.HistoryIndex
	logger     *slog.Logger

	// publishMu держит порядок: имя v7, ссылка и запись в историю идут в одной последовательности
	publishMu sync.Mutex
	now       func() time.Time
}

// NewFileArtifactStore создаёт каталоги и возвращает хранилище
func NewFileArtifactStore(stagingDir, outputDir string, index port.HistoryIndex, logger *slog.Logger) (*FileArtifactStore, error) {
	for _, dir := range []string{stagingDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", entity.ErrStorage, dir, err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileArtifactStore{
		stagingDir: stagingDir,
		outputDir:  outputDir,
		index:      index,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Commit атомарно публикует данные под новым именем
func (s *FileArtifactStore) Commit(ctx context.Context, data []byte, ext string) (entity.Artifact, error) {
	ext = strings.ToLower(ext)
	if !allowedExts[ext] {
		return entity.Artifact{}, fmt.Errorf("%w: unsupported extension %q", entity.ErrStorage, ext)
	}

	staged, err := s.stage(data, ext)
	if err != nil {
		return entity.Artifact{}, err
	}
	defer os.Remove(staged)

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return entity.Artifact{}, fmt.Errorf("%w: generate id: %v", entity.ErrStorage, err)
	}
	artifact := entity.Artifact{
		Filename:  id.String() + ext,
		Path:      filepath.Join(s.outputDir, id.String()+ext),
		CreatedAt: s.now().UTC(),
	}

	if err := os.Link(staged, artifact.Path); err != nil {
		return entity.Artifact{}, fmt.Errorf("%w: publish %s: %v", entity.ErrStorage, artifact.Filename, err)
	}
	if err := s.index.Append(ctx, artifact); err != nil {
		if rmErr := os.Remove(artifact.Path); rmErr != nil {
			s.logger.Error("failed to roll back unindexed artifact", "file", artifact.Path, "error", rmErr)
		}
		return entity.Artifact{}, fmt.Errorf("%w: index %s: %v", entity.ErrStorage, artifact.Filename, err)
	}

	return artifact, nil
}

// stage пишет данные во временный файл и сбрасывает их на диск
func (s *FileArtifactStore) stage(data []byte, ext string) (string, error) {
	f, err := os.CreateTemp(s.stagingDir, stagingPrefix+"*"+ext)
	if err != nil {
		return "", fmt.Errorf("%w: create staging file: %v", entity.ErrStorage, err)
	}
	name := f.Name()

	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(name)
		return "", fmt.Errorf("%w: write staging file: %v", entity.ErrStorage, werr)
	}
	return name, nil
}

// Retrieve возвращает содержимое артефакта
func (s *FileArtifactStore) Retrieve(ctx context.Context, filename string) ([]byte, error) {
	if !ValidFilename(filename) {
		return nil, fmt.Errorf("artifact %q: %w", filename, entity.ErrNotFound)
	}
	artifact, err := s.index.Lookup(ctx, filename)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: lookup %s: %v", entity.ErrStorage, filename, err)
	}

	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", entity.ErrStorage, filename, err)
	}
	return data, nil
}

// History возвращает записи истории в порядке добавления
func (s *FileArtifactStore) History(ctx context.Context) ([]entity.HistoryEntry, error) {
	artifacts, err := s.index.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list history: %v", entity.ErrStorage, err)
	}
	entries := make([]entity.HistoryEntry, 0, len(artifacts))
	for _, a := range artifacts {
		entries = append(entries, a.Entry())
	}
	return entries, nil
}

// Count возвращает число артефактов
func (s *FileArtifactStore) Count(ctx context.Context) (int, error) {
	n, err := s.index.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count history: %v", entity.ErrStorage, err)
	}
	return n, nil
}

// Rehydrate сверяет индекс с каталогом: удаляет брошенные временные файлы, убирает из индекса
// записи без файла и добавляет артефакты, найденные на диске. Имена v7 сортируются по времени создания.
// Возвращает число добавленных записей.
func (s *FileArtifactStore) Rehydrate(ctx context.Context) (int, error) {
	stale, err := filepath.Glob(filepath.Join(s.stagingDir, stagingPrefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("%w: scan staging: %v", entity.ErrStorage, err)
	}
	for _, name := range stale {
		if err := os.Remove(name); err != nil {
			s.logger.Warn("failed to remove stale staging file", "file", name, "error", err)
		}
	}

	if err := s.pruneDangling(ctx); err != nil {
		return 0, err
	}

	dirEntries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return 0, fmt.Errorf("%w: scan output: %v", entity.ErrStorage, err)
	}
	names := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.Type().IsRegular() && ValidFilename(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	added := 0
	for _, name := range names {
		if _, err := s.index.Lookup(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, entity.ErrNotFound) {
			return added, fmt.Errorf("%w: lookup %s: %v", entity.ErrStorage, name, err)
		}

		path := filepath.Join(s.outputDir, name)
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return added, fmt.Errorf("%w: stat %s: %v", entity.ErrStorage, name, err)
		}
		created := info.ModTime().UTC()
		if id, err := uuid.Parse(strings.TrimSuffix(name, filepath.Ext(name))); err == nil && id.Version() == 7 {
			sec, nsec := id.Time().UnixTime()
			created = time.Unix(sec, nsec).UTC()
		}

		if err := s.index.Append(ctx, entity.Artifact{Filename: name, Path: path, CreatedAt: created}); err != nil {
			return added, fmt.Errorf("%w: index %s: %v", entity.ErrStorage, name, err)
		}
		added++
	}
	return added, nil
}

// pruneDangling убирает из индекса записи, чьи файлы удалены с диска
func (s *FileArtifactStore) pruneDangling(ctx context.Context) error {
	artifacts, err := s.index.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: list history: %v", entity.ErrStorage, err)
	}
	for _, a := range artifacts {
		_, err := os.Stat(a.Path)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: stat %s: %v", entity.ErrStorage, a.Filename, err)
		}
		if err := s.index.Remove(ctx, a.Filename); err != nil && !errors.Is(err, entity.ErrNotFound) {
			return fmt.Errorf("%w: unindex %s: %v", entity.ErrStorage, a.Filename, err)
		}
		s.logger.Warn("artifact file is missing, removed from history", "artifact", a.Filename, "path", a.Path)
	}
	return nil
}

// ValidFilename проверяет, что имя имеет вид <uuid><.jpg|.png>
func ValidFilename(name string) bool {
	ext := filepath.Ext(name)
	if !allowedExts[ext] {
		return false
	}
	base := strings.TrimSuffix(name, ext)
	id, err := uuid.Parse(base)
	return err == nil && id.String() == base
}

var _ port.ArtifactStore = (*FileArtifactStore)(nil)
