package vision

import (
	"bytes"
	"fmt"
	"image"
	"mime"
	"net/http"

	"github.com/disintegration/imaging"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// acceptedTypes допустимые типы содержимого загрузки
var acceptedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

// Codec проверяет загрузки и кодирует результат
type Codec struct {
	maxPixels   int
	jpegQuality int
}

// NewCodec создаёт кодек с ограничением на число пикселей
func NewCodec(maxPixels, jpegQuality int) *Codec {
	return &Codec{maxPixels: maxPixels, jpegQuality: jpegQuality}
}

// Decode проверяет тип содержимого и размер, затем декодирует изображение.
// Ошибки: entity.ErrInvalidInput для неподходящего типа или размера, entity.ErrDecode для битых данных.
func (c *Codec) Decode(upload entity.UploadedImage) (*entity.DecodedImage, error) {
	if len(upload.Data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", entity.ErrInvalidInput)
	}

	contentType := mediaType(upload.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mediaType(http.DetectContentType(upload.Data))
	}
	if !acceptedTypes[contentType] {
		return nil, fmt.Errorf("%w: %w %q", entity.ErrInvalidInput, entity.ErrUnsupportedMedia, contentType)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(upload.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDecode, err)
	}
	if name != entity.FormatJPEG && name != entity.FormatPNG {
		return nil, fmt.Errorf("%w: %w: image format %q", entity.ErrInvalidInput, entity.ErrUnsupportedMedia, name)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", entity.ErrInvalidInput)
	}
	if cfg.Width*cfg.Height > c.maxPixels {
		return nil, fmt.Errorf("%w: image %dx%d exceeds %d pixels", entity.ErrInvalidInput, cfg.Width, cfg.Height, c.maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(upload.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDecode, err)
	}

	return &entity.DecodedImage{Pixels: img, Format: name}, nil
}

// Encode кодирует изображение в исходный формат загрузки
func (c *Codec) Encode(img image.Image, format string) ([]byte, error) {
	f := imaging.JPEG
	if format == entity.FormatPNG {
		f = imaging.PNG
	}
	return encode(img, f, c.jpegQuality)
}

func encode(img image.Image, format imaging.Format, jpegQuality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func mediaType(raw string) string {
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return mt
}

var _ port.ImageCodec = (*Codec)(nil)
