package port

import (
	"image"

	"plate-mask/internal/domain/entity"
)

// ImageCodec проверяет, декодирует и кодирует изображения
type ImageCodec interface {
	// Decode возвращает entity.ErrInvalidInput или entity.ErrDecode для плохих загрузок
	Decode(upload entity.UploadedImage) (*entity.DecodedImage, error)

	// Encode кодирует изображение в формат entity.FormatJPEG или entity.FormatPNG
	Encode(img image.Image, format string) ([]byte, error)
}
