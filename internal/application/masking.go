package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// OutputURLPrefix путь, по которому раздаются артефакты
const OutputURLPrefix = "/static/output/"

// MaskingOptions параметры конвейера
type MaskingOptions struct {
	ConfidenceThreshold float64
}

// HealthReport состояние сервиса для /health
type HealthReport struct {
	Status    string `json:"status"`
	Detector  string `json:"detector"`
	Artifacts int    `json:"artifacts"`
}

// Healthy сообщает, что сервис работоспособен
func (h HealthReport) Healthy() bool {
	return h.Status == "ok"
}

// artifactCounter необязательная возможность хранилища
type artifactCounter interface {
	Count(ctx context.Context) (int, error)
}

// MaskingService принимает загрузку, находит номера, закрашивает их и сохраняет результат
type MaskingService struct {
	codec    port.ImageCodec
	detector port.PlateDetector
	masker   port.Masker
	store    port.ArtifactStore
	notifier port.ArtifactNotifier
	opts     MaskingOptions
	logger   *slog.Logger

	mu        sync.RWMutex
	lastFault error // последняя ошибка модели, сбрасывается успешной детекцией
}

// NewMaskingService создаёт сервис. notifier может быть nil.
func NewMaskingService(codec port.ImageCodec, detector port.PlateDetector, masker port.Masker, store port.ArtifactStore, notifier port.ArtifactNotifier, opts MaskingOptions, logger *slog.Logger) *MaskingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaskingService{
		codec:    codec,
		detector: detector,
		masker:   masker,
		store:    store,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// Process выполняет конвейер для одной загрузки.
// При любой ошибке артефакт не создаётся.
func (s *MaskingService) Process(ctx context.Context, upload entity.UploadedImage) (*entity.ArtifactRef, error) {
	started := time.Now()
	log := s.logger.With("upload", upload.Filename, "bytes", len(upload.Data))

	decoded, err := s.codec.Decode(upload)
	if err != nil {
		log.Warn("upload rejected", "error", err)
		return nil, err
	}

	found, err := s.detector.Detect(ctx, decoded.Pixels)
	if err != nil {
		s.recordFault(err)
		log.Error("detection failed", "error", err)
		return nil, err
	}
	s.recordFault(nil)

	regions := s.accept(found, decoded)

	// без номеров сохраняем исходные байты, результат совпадает с оригиналом
	data := upload.Data
	if len(regions) > 0 {
		masked := s.masker.Mask(decoded.Pixels, regions)
		if masked.Bounds().Size() != decoded.Pixels.Bounds().Size() {
			panic(fmt.Sprintf("masker changed image size from %v to %v", decoded.Pixels.Bounds().Size(), masked.Bounds().Size()))
		}
		data, err = s.codec.Encode(masked, decoded.Format)
		if err != nil {
			log.Error("encode failed", "error", err)
			return nil, fmt.Errorf("%w: %v", entity.ErrStorage, err)
		}
	}

	artifact, err := s.store.Commit(ctx, data, decoded.Ext())
	if err != nil {
		log.Error("commit failed", "error", err)
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Notify(artifact.Entry())
	}

	log.Info("artifact created",
		"artifact", artifact.Filename,
		"detected", len(found),
		"masked", len(regions),
		"elapsed", time.Since(started),
	)

	return &entity.ArtifactRef{
		Filename: artifact.Filename,
		URL:      OutputURLPrefix + artifact.Filename,
		Regions:  len(regions),
	}, nil
}

// accept оставляет номера выше порога в границах изображения
func (s *MaskingService) accept(found []entity.DetectedRegion, decoded *entity.DecodedImage) []entity.DetectedRegion {
	bounds := decoded.Pixels.Bounds()
	regions := make([]entity.DetectedRegion, 0, len(found))
	for _, r := range found {
		if !r.Accepted(s.opts.ConfidenceThreshold) {
			continue
		}
		if clamped, ok := r.Clamp(bounds); ok {
			regions = append(regions, clamped)
		}
	}
	return regions
}

// Retrieve возвращает байты артефакта
func (s *MaskingService) Retrieve(ctx context.Context, filename string) ([]byte, error) {
	return s.store.Retrieve(ctx, filename)
}

// History возвращает историю артефактов
func (s *MaskingService) History(ctx context.Context) ([]entity.HistoryEntry, error) {
	return s.store.History(ctx)
}

// Health собирает состояние детектора и хранилища
func (s *MaskingService) Health(ctx context.Context) HealthReport {
	report := HealthReport{Status: "ok", Detector: "ready"}

	if err := s.detector.Ready(); err != nil {
		report.Status, report.Detector = "degraded", err.Error()
	} else if fault := s.fault(); fault != nil {
		report.Status, report.Detector = "degraded", fault.Error()
	}

	if counter, ok := s.store.(artifactCounter); ok {
		n, err := counter.Count(ctx)
		if err != nil {
			report.Status = "degraded"
		}
		report.Artifacts = n
	}
	return report
}

// recordFault запоминает отказ модели; таймаут отказом не считается
func (s *MaskingService) recordFault(err error) {
	if err != nil && !errors.Is(err, entity.ErrDetection) {
		return
	}
	s.mu.Lock()
	s.lastFault = err
	s.mu.Unlock()
}

func (s *MaskingService) fault() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFault
}
