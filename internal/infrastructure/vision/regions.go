package vision

import (
	"image"
	"math"

	"plate-mask/internal/domain/entity"
)

// plateClassID индекс класса номерного знака в выходе модели
const plateClassID = 0

// candidate сырой результат модели до подавления пересечений
type candidate struct {
	rect  image.Rectangle
	score float32
}

// decodeYOLO разбирает выход YOLOv8 формы [1, 4+classes, anchors].
// Координаты (cx, cy, w, h) пересчитываются из входа сети в пиксели исходника.
func decodeYOLO(data []float32, attrs, anchors int, scaleX, scaleY float64, minScore float32) []candidate {
	if attrs <= 4 || anchors <= 0 || len(data) < attrs*anchors {
		return nil
	}

	out := make([]candidate, 0, 16)
	for i := 0; i < anchors; i++ {
		bestClass, bestScore := -1, float32(0)
		for c := 0; c < attrs-4; c++ {
			if s := data[(4+c)*anchors+i]; s > bestScore {
				bestClass, bestScore = c, s
			}
		}
		if bestClass != plateClassID || bestScore < minScore {
			continue
		}

		cx, cy := float64(data[i]), float64(data[anchors+i])
		w, h := float64(data[2*anchors+i]), float64(data[3*anchors+i])
		rect := image.Rect(
			int(math.Floor((cx-w/2)*scaleX)),
			int(math.Floor((cy-h/2)*scaleY)),
			int(math.Ceil((cx+w/2)*scaleX)),
			int(math.Ceil((cy+h/2)*scaleY)),
		)
		out = append(out, candidate{rect: rect, score: bestScore})
	}
	return out
}

// clampRegions обрезает области по границам изображения и отбрасывает вырожденные
func clampRegions(regions []entity.DetectedRegion, bounds image.Rectangle) []entity.DetectedRegion {
	out := make([]entity.DetectedRegion, 0, len(regions))
	for _, r := range regions {
		if clamped, ok := r.Clamp(bounds); ok {
			out = append(out, clamped)
		}
	}
	return out
}

// padRect расширяет прямоугольник на долю его размеров с каждой стороны
func padRect(r image.Rectangle, ratio float64) image.Rectangle {
	dx := int(math.Round(float64(r.Dx()) * ratio))
	dy := int(math.Round(float64(r.Dy()) * ratio))
	return image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy)
}

func regionFromRect(r image.Rectangle, confidence float64) entity.DetectedRegion {
	return entity.DetectedRegion{
		XMin:       r.Min.X,
		YMin:       r.Min.Y,
		XMax:       r.Max.X,
		YMax:       r.Max.Y,
		Class:      entity.PlateClass,
		Confidence: math.Max(0, math.Min(1, confidence)),
	}
}
