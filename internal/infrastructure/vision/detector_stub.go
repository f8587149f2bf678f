//go:build !gocv
// +build !gocv

package vision

import (
	"context"
	"fmt"
	"image"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// ONNXDetector детектор-заглушка (без OpenCV)
type ONNXDetector struct {
	modelPath string
}

// NewONNXDetector создаёт детектор-заглушку
func NewONNXDetector(modelPath string, inputSize int, nmsThreshold float64) *ONNXDetector {
	_ = inputSize
	_ = nmsThreshold
	return &ONNXDetector{modelPath: modelPath}
}

// Ready возвращает ошибку, если сборка без тега gocv
func (d *ONNXDetector) Ready() error {
	return fmt.Errorf("%w: gocv build tag is not enabled (model %s)", entity.ErrDetection, d.modelPath)
}

// Detect возвращает ошибку, если сборка без тега gocv
func (d *ONNXDetector) Detect(ctx context.Context, img image.Image) ([]entity.DetectedRegion, error) {
	_ = ctx
	_ = img
	return nil, d.Ready()
}

// Close ничего не делает
func (d *ONNXDetector) Close() error {
	return nil
}

var _ port.PlateDetector = (*ONNXDetector)(nil)
