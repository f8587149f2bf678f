package vision

import (
	"context"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/disintegration/imaging"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// rekognitionMaxBytes ограничение Rekognition на размер изображения в запросе
const rekognitionMaxBytes = 5 << 20

// platePadding запас вокруг текста, чтобы закрыть рамку номера
const platePadding = 0.12

// TextDetectionAPI часть клиента Rekognition, которую использует детектор
type TextDetectionAPI interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// RekognitionDetector находит номера как строки текста, похожие на номерной знак
type RekognitionDetector struct {
	client TextDetectionAPI
	plate  *regexp.Regexp
}

// NewRekognitionDetector создаёт детектор поверх клиента Rekognition
func NewRekognitionDetector(client TextDetectionAPI, platePattern string) (*RekognitionDetector, error) {
	re, err := regexp.Compile(platePattern)
	if err != nil {
		return nil, fmt.Errorf("compile plate pattern: %w", err)
	}
	return &RekognitionDetector{client: client, plate: re}, nil
}

// Ready проверяет, что клиент создан
func (d *RekognitionDetector) Ready() error {
	if d.client == nil {
		return fmt.Errorf("%w: rekognition client is not configured", entity.ErrDetection)
	}
	return nil
}

// Detect отправляет изображение в DetectText и переводит подходящие строки в области
func (d *RekognitionDetector) Detect(ctx context.Context, img image.Image) ([]entity.DetectedRegion, error) {
	if err := d.Ready(); err != nil {
		return nil, err
	}

	payload, err := encode(img, imaging.JPEG, 90)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDetection, err)
	}
	if len(payload) > rekognitionMaxBytes {
		return nil, fmt.Errorf("%w: encoded image is %d bytes, rekognition accepts up to %d", entity.ErrDetection, len(payload), rekognitionMaxBytes)
	}

	result, err := d.client.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: payload},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rekognition: %v", entity.ErrDetection, err)
	}

	bounds := img.Bounds()
	regions := make([]entity.DetectedRegion, 0, len(result.TextDetections))
	for _, td := range result.TextDetections {
		if td.Type != types.TextTypesLine || td.DetectedText == nil || td.Confidence == nil {
			continue
		}
		if !d.looksLikePlate(*td.DetectedText) {
			continue
		}
		rect, ok := boxToRect(td.Geometry, bounds)
		if !ok {
			continue
		}
		regions = append(regions, regionFromRect(padRect(rect, platePadding), float64(*td.Confidence)/100))
	}

	return clampRegions(regions, bounds), nil
}

func (d *RekognitionDetector) looksLikePlate(text string) bool {
	txt := strings.ToUpper(strings.TrimSpace(text))
	return strings.ContainsAny(txt, "0123456789") && d.plate.MatchString(txt)
}

// boxToRect переводит относительные координаты Rekognition в пиксели
func boxToRect(g *types.Geometry, bounds image.Rectangle) (image.Rectangle, bool) {
	if g == nil || g.BoundingBox == nil {
		return image.Rectangle{}, false
	}
	b := g.BoundingBox
	if b.Left == nil || b.Top == nil || b.Width == nil || b.Height == nil {
		return image.Rectangle{}, false
	}
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	x0 := bounds.Min.X + int(float64(*b.Left)*w)
	y0 := bounds.Min.Y + int(float64(*b.Top)*h)
	x1 := x0 + int(float64(*b.Width)*w+0.5)
	y1 := y0 + int(float64(*b.Height)*h+0.5)
	return image.Rect(x0, y0, x1, y1), true
}

var _ port.PlateDetector = (*RekognitionDetector)(nil)
