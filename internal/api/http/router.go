package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// RouterOptions настройки HTTP-слоя
type RouterOptions struct {
	MaxUploadBytes int64
	CORSOrigins    string
}

// NewRouter собирает gin-движок со всеми маршрутами
func NewRouter(pipeline Pipeline, hub *Hub, opts RouterOptions, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())
	r.Use(cors(opts.CORSOrigins))

	h := NewHandler(pipeline, opts.MaxUploadBytes)

	r.POST("/upload/", h.Upload)
	r.GET("/history", h.History)
	r.GET("/static/output/:filename", h.Artifact)
	r.GET("/output/:filename", h.Artifact)
	r.GET("/health", h.Health)

	if hub != nil {
		r.GET("/ws/history", hub.Serve)
	}

	return r
}
