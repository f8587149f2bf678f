package port

import (
	"context"
	"image"

	"plate-mask/internal/domain/entity"
)

// PlateDetector интерфейс детектора номерных знаков
type PlateDetector interface {
	// Detect возвращает найденные области. Пустой список означает, что номеров нет;
	// недоступная или упавшая модель возвращает ошибку entity.ErrDetection.
	Detect(ctx context.Context, img image.Image) ([]entity.DetectedRegion, error)

	// Ready возвращает nil, если модель загружена и готова к работе
	Ready() error
}
