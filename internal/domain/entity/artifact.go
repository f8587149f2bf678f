package entity

import "time"

// Artifact запись о сохранённом изображении. После создания не меняется.
type Artifact struct {
	Filename  string    // уникальный идентификатор с расширением
	Path      string    // путь к файлу на диске
	CreatedAt time.Time // момент публикации
}

// ArtifactRef ссылка, которую получает клиент
type ArtifactRef struct {
	Filename string
	URL      string
	Regions  int // сколько областей замаскировано
}

// HistoryEntry проекция артефакта для API истории
type HistoryEntry struct {
	Filename string `json:"filename"`
}

// Entry возвращает проекцию артефакта для истории
func (a Artifact) Entry() HistoryEntry {
	return HistoryEntry{Filename: a.Filename}
}
