package vision

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// MaskStyle способ закрытия области
type MaskStyle string

const (
	StyleFill     MaskStyle = "fill"
	StyleBlur     MaskStyle = "blur"
	StylePixelate MaskStyle = "pixelate"
)

// pixelateBlocks число блоков по короткой стороне области
const pixelateBlocks = 4

// RegionMasker закрывает области сплошной заливкой, размытием или пикселизацией.
// Результат всегда новый *image.NRGBA тех же размеров.
type RegionMasker struct {
	style  MaskStyle
	fill   color.Color
	radius float64
}

// NewRegionMasker создаёт маскировщик. hexColor задаётся как "#RRGGBB".
func NewRegionMasker(style MaskStyle, hexColor string, blurRadius float64) (*RegionMasker, error) {
	c, err := colorful.Hex(hexColor)
	if err != nil {
		return nil, fmt.Errorf("parse mask color %q: %w", hexColor, err)
	}
	switch style {
	case StyleFill, StyleBlur, StylePixelate:
	default:
		return nil, fmt.Errorf("unknown mask style %q", style)
	}
	if style == StyleBlur && blurRadius <= 0 {
		return nil, fmt.Errorf("blur radius must be positive, got %v", blurRadius)
	}
	return &RegionMasker{style: style, fill: c.Clamped(), radius: blurRadius}, nil
}

// Mask возвращает копию изображения с закрытыми областями
func (m *RegionMasker) Mask(img image.Image, regions []entity.DetectedRegion) image.Image {
	bounds := img.Bounds()
	out := imaging.Clone(img)

	for _, region := range regions {
		rect := region.Rect().Intersect(bounds).Sub(bounds.Min)
		if rect.Empty() {
			continue
		}
		switch m.style {
		case StyleBlur:
			m.blur(out, rect)
		case StylePixelate:
			m.pixelate(out, rect)
		default:
			m.fillRect(out, rect)
		}
	}

	return out
}

func (m *RegionMasker) blur(dst *image.NRGBA, rect image.Rectangle) {
	blurred := blur.Gaussian(imaging.Crop(dst, rect), m.radius)
	draw.Draw(dst, rect, blurred, image.Point{}, draw.Src)
}

func (m *RegionMasker) fillRect(dst *image.NRGBA, rect image.Rectangle) {
	draw.Draw(dst, rect, &image.Uniform{C: m.fill}, image.Point{}, draw.Src)
}

// pixelate усредняет блоки; область уже 2*pixelateBlocks пикселей заливается целиком,
// иначе блок в один пиксель оставил бы её без изменений
func (m *RegionMasker) pixelate(dst *image.NRGBA, rect image.Rectangle) {
	w, h := rect.Dx(), rect.Dy()
	side := minInt(w, h)
	if side < 2*pixelateBlocks {
		m.fillRect(dst, rect)
		return
	}
	block := side / pixelateBlocks

	small := imaging.Resize(imaging.Crop(dst, rect), maxInt(1, w/block), maxInt(1, h/block), imaging.Box)
	large := imaging.Resize(small, w, h, imaging.NearestNeighbor)
	draw.Draw(dst, rect, large, image.Point{}, draw.Src)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Проверка реализации интерфейса
var _ port.Masker = (*RegionMasker)(nil)
