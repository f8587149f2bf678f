package entity

import "image"

// Форматы, которые принимает и сохраняет сервис
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// DecodedImage проверенное и декодированное изображение
type DecodedImage struct {
	Pixels image.Image
	Format string
}

// Ext возвращает расширение файла для формата
func (d *DecodedImage) Ext() string {
	if d.Format == FormatPNG {
		return ".png"
	}
	return ".jpg"
}
