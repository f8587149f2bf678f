package entity

// UploadedImage загруженный пользователем файл. Живёт только в рамках одного запроса.
type UploadedImage struct {
	Data        []byte
	ContentType string // заявленный клиентом тип
	Filename    string // исходное имя, ему не доверяем
}
