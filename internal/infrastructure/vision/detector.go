//go:build gocv
// +build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// minCandidateScore нижний порог до фильтрации в сервисе, чтобы не терять кандидатов
const minCandidateScore = 0.05

// ONNXDetector ищет номера моделью YOLOv8, экспортированной в ONNX.
// gocv.Net не потокобезопасен, поэтому Forward выполняется под мьютексом.
type ONNXDetector struct {
	mu           sync.Mutex
	net          gocv.Net
	loadErr      error
	inputSize    int
	nmsThreshold float32
}

// NewONNXDetector загружает модель. Ошибка загрузки не фатальна:
// детектор остаётся в состоянии "модель недоступна" и сообщает об этом через Ready и Detect.
func NewONNXDetector(modelPath string, inputSize int, nmsThreshold float64) *ONNXDetector {
	d := &ONNXDetector{inputSize: inputSize, nmsThreshold: float32(nmsThreshold)}

	if _, err := os.Stat(modelPath); err != nil {
		d.loadErr = fmt.Errorf("model %s: %w", modelPath, err)
		return d
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		d.loadErr = fmt.Errorf("model %s: failed to load onnx network", modelPath)
		return d
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		d.loadErr = fmt.Errorf("set backend: %w", err)
		net.Close()
		return d
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		d.loadErr = fmt.Errorf("set target: %w", err)
		net.Close()
		return d
	}

	d.net = net
	return d
}

// Ready сообщает, загружена ли модель
func (d *ONNXDetector) Ready() error {
	if d.loadErr != nil {
		return fmt.Errorf("%w: model unavailable: %v", entity.ErrDetection, d.loadErr)
	}
	return nil
}

// Detect запускает инференс и возвращает области номеров в координатах исходника
func (d *ONNXDetector) Detect(ctx context.Context, img image.Image) (regions []entity.DetectedRegion, err error) {
	_ = ctx
	if err := d.Ready(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			regions, err = nil, fmt.Errorf("%w: inference panic: %v", entity.ErrDetection, r)
		}
	}()

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("%w: convert image: %v", entity.ErrDetection, err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("%w: empty image", entity.ErrDetection)
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	candidates, err := d.forward(blob, mat.Cols(), mat.Rows())
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []entity.DetectedRegion{}, nil
	}

	rects := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		rects[i] = c.rect
		scores[i] = c.score
	}
	keep := gocv.NMSBoxes(rects, scores, minCandidateScore, d.nmsThreshold)

	found := make([]entity.DetectedRegion, 0, len(keep))
	for _, idx := range keep {
		found = append(found, regionFromRect(rects[idx], float64(scores[idx])))
	}
	return clampRegions(found, img.Bounds()), nil
}

func (d *ONNXDetector) forward(blob gocv.Mat, width, height int) ([]candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("%w: unexpected output shape %v", entity.ErrDetection, sizes)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", entity.ErrDetection, err)
	}

	scaleX := float64(width) / float64(d.inputSize)
	scaleY := float64(height) / float64(d.inputSize)
	return decodeYOLO(data, sizes[1], sizes[2], scaleX, scaleY, minCandidateScore), nil
}

// Close освобождает сеть
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return nil
	}
	if err := d.net.Close(); err != nil {
		return fmt.Errorf("close onnx network: %w", err)
	}
	return nil
}

// Проверка реализации интерфейса
var _ port.PlateDetector = (*ONNXDetector)(nil)
