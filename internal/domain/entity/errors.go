package entity

import "errors"

// Категории ошибок конвейера. Проверяются через errors.Is.
var (
	// ErrInvalidInput неподдерживаемый тип, пустой файл или слишком большое изображение
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedMedia тип содержимого не JPEG и не PNG, всегда идёт вместе с ErrInvalidInput
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrDecode данные не декодируются как изображение
	ErrDecode = errors.New("decode error")
	// ErrDetection модель недоступна или упала во время инференса
	ErrDetection = errors.New("detection error")
	// ErrDetectionTimeout инференс не уложился в отведённое время
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrCanceled клиент ушёл раньше, чем получил результат
	ErrCanceled = errors.New("request canceled")
	// ErrStorage ошибка ввода-вывода хранилища
	ErrStorage = errors.New("storage error")
	// ErrNotFound артефакт не найден
	ErrNotFound = errors.New("not found")
)
