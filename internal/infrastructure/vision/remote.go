package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// remoteBox формат ответа внешнего сервиса инференса
type remoteBox struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Class  string  `json:"class"`
	Conf   float64 `json:"confidence"`
}

// RemoteDetector выполняет инференс через внешний сервис с моделью (например, ultralytics за HTTP)
type RemoteDetector struct {
	inferenceURL string
	healthURL    string
	client       *http.Client
}

// NewRemoteDetector создаёт адаптер к сервису инференса
func NewRemoteDetector(inferenceURL string, client *http.Client) (*RemoteDetector, error) {
	u, err := url.Parse(inferenceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid inference url %q", inferenceURL)
	}
	if client == nil {
		client = &http.Client{}
	}

	health := *u
	health.Path = path.Join(path.Dir(u.Path), "health")
	health.RawQuery = ""

	return &RemoteDetector{
		inferenceURL: inferenceURL,
		healthURL:    health.String(),
		client:       client,
	}, nil
}

// Detect отправляет изображение multipart-запросом и разбирает найденные области
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]entity.DetectedRegion, error) {
	payload, err := encode(img, imaging.PNG, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDetection, err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("%w: create form file: %v", entity.ErrDetection, err)
	}
	if _, err := io.Copy(part, bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("%w: copy image data: %v", entity.ErrDetection, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: close multipart: %v", entity.ErrDetection, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.inferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", entity.ErrDetection, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", entity.ErrDetection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: inference failed with status %d", entity.ErrDetection, resp.StatusCode)
	}

	var result struct {
		Detections []remoteBox `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", entity.ErrDetection, err)
	}

	regions := make([]entity.DetectedRegion, 0, len(result.Detections))
	for _, det := range result.Detections {
		if !isPlateLabel(det.Class) {
			continue
		}
		rect := image.Rect(det.X, det.Y, det.X+det.Width, det.Y+det.Height)
		regions = append(regions, regionFromRect(rect, det.Conf))
	}
	return clampRegions(regions, img.Bounds()), nil
}

// Ready проверяет доступность сервиса инференса
func (d *RemoteDetector) Ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.healthURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrDetection, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: inference service unreachable: %v", entity.ErrDetection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: inference service unhealthy: %d", entity.ErrDetection, resp.StatusCode)
	}
	return nil
}

// isPlateLabel пустая метка означает одноклассовую модель
func isPlateLabel(label string) bool {
	switch strings.ToLower(strings.ReplaceAll(label, "_", "-")) {
	case "", entity.PlateClass, "plate", "lp":
		return true
	}
	return false
}

var _ port.PlateDetector = (*RemoteDetector)(nil)
