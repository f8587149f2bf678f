package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	app "plate-mask/internal/application"
	"plate-mask/internal/domain/entity"
)

// Pipeline операции сервиса маскирования, нужные HTTP-слою
type Pipeline interface {
	Process(ctx context.Context, upload entity.UploadedImage) (*entity.ArtifactRef, error)
	Retrieve(ctx context.Context, filename string) ([]byte, error)
	History(ctx context.Context) ([]entity.HistoryEntry, error)
	Health(ctx context.Context) app.HealthReport
}

// uploadResponse ответ POST /upload/
type uploadResponse struct {
	Message  string `json:"message"`
	ImageURL string `json:"image_url"`
	Filename string `json:"filename"`
	Regions  int    `json:"regions"`
}

// Handler обработчики HTTP API
type Handler struct {
	pipeline       Pipeline
	maxUploadBytes int64
}

func NewHandler(pipeline Pipeline, maxUploadBytes int64) *Handler {
	return &Handler{pipeline: pipeline, maxUploadBytes: maxUploadBytes}
}

// Upload POST /upload/, поле формы "file"
func (h *Handler) Upload(c *gin.Context) {
	if c.Request.ContentLength > h.maxUploadBytes {
		writeError(c, &http.MaxBytesError{Limit: h.maxUploadBytes})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		if status, _ := statusFor(err); status == http.StatusRequestEntityTooLarge {
			writeError(c, err)
			return
		}
		writeError(c, fmt.Errorf("%w: form field \"file\": %v", entity.ErrInvalidInput, err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, fmt.Errorf("%w: open upload: %v", entity.ErrInvalidInput, err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(c, fmt.Errorf("%w: read upload: %v", entity.ErrInvalidInput, err))
		return
	}

	ref, err := h.pipeline.Process(c.Request.Context(), entity.UploadedImage{
		Data:        data,
		ContentType: fh.Header.Get("Content-Type"),
		Filename:    fh.Filename,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, uploadResponse{
		Message:  "Success",
		ImageURL: ref.URL,
		Filename: ref.Filename,
		Regions:  ref.Regions,
	})
}

// History GET /history[?limit=N], последние N записей в порядке добавления
func (h *Handler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, fmt.Errorf("%w: limit must be a non-negative integer", entity.ErrInvalidInput))
			return
		}
		limit = n
	}

	entries, err := h.pipeline.History(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []entity.HistoryEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// Artifact GET /static/output/:filename и /output/:filename
func (h *Handler) Artifact(c *gin.Context) {
	filename := c.Param("filename")
	data, err := h.pipeline.Retrieve(c.Request.Context(), filename)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, contentTypeFor(filename), data)
}

// Health GET /health, 503 при деградации
func (h *Handler) Health(c *gin.Context) {
	report := h.pipeline.Health(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func contentTypeFor(filename string) string {
	switch filepath.Ext(filename) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
