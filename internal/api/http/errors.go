package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"plate-mask/internal/domain/entity"
)

// statusClientClosedRequest клиент закрыл соединение до ответа
const statusClientClosedRequest = 499

// errorBody тело ответа при ошибке
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor сопоставляет категорию ошибки с HTTP-статусом.
// ErrUnsupportedMedia проверяется раньше ErrInvalidInput, так как оборачивается вместе с ним.
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, entity.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "unsupported_media"
	case errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, entity.ErrDecode):
		return http.StatusUnprocessableEntity, "decode_error"
	case errors.Is(err, entity.ErrDetectionTimeout):
		return http.StatusGatewayTimeout, "detection_timeout"
	case errors.Is(err, entity.ErrDetection):
		return http.StatusServiceUnavailable, "detection_error"
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, entity.ErrCanceled):
		return statusClientClosedRequest, "canceled"
	case errors.Is(err, entity.ErrStorage):
		return http.StatusInternalServerError, "storage_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(c *gin.Context, err error) {
	status, category := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Error: category, Message: err.Error()})
}
