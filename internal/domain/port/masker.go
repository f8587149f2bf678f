package port

import (
	"image"

	"plate-mask/internal/domain/entity"
)

// Masker закрашивает области на копии изображения, исходник не меняется
type Masker interface {
	Mask(img image.Image, regions []entity.DetectedRegion) image.Image
}
