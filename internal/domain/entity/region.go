package entity

import "image"

// PlateClass единственный класс, который маскирует сервис
const PlateClass = "license-plate"

// DetectedRegion представляет найденный номерной знак
type DetectedRegion struct {
	XMin       int     // левая граница, включительно
	YMin       int     // верхняя граница, включительно
	XMax       int     // правая граница, не включительно
	YMax       int     // нижняя граница, не включительно
	Class      string  // метка класса
	Confidence float64 // уверенность модели в диапазоне [0,1]
}

// Rect возвращает область как image.Rectangle
func (r DetectedRegion) Rect() image.Rectangle {
	return image.Rect(r.XMin, r.YMin, r.XMax, r.YMax)
}

// Width возвращает ширину области в пикселях
func (r DetectedRegion) Width() int {
	return r.XMax - r.XMin
}

// Height возвращает высоту области в пикселях
func (r DetectedRegion) Height() int {
	return r.YMax - r.YMin
}

// Area возвращает площадь области в пикселях
func (r DetectedRegion) Area() int {
	return r.Width() * r.Height()
}

// Clamp обрезает область по границам изображения.
// Второе значение false, если после обрезки область вырождается.
func (r DetectedRegion) Clamp(bounds image.Rectangle) (DetectedRegion, bool) {
	rect := image.Rect(r.XMin, r.YMin, r.XMax, r.YMax).Intersect(bounds)
	if rect.Empty() {
		return DetectedRegion{}, false
	}
	r.XMin, r.YMin, r.XMax, r.YMax = rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y
	return r, true
}

// Accepted проверяет класс и порог уверенности
func (r DetectedRegion) Accepted(threshold float64) bool {
	return r.Class == PlateClass && r.Confidence >= threshold
}
