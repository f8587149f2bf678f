package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"

	"plate-mask/config"
	httpapi "plate-mask/internal/api/http"
	app "plate-mask/internal/application"
	"plate-mask/internal/domain/port"
	"plate-mask/internal/infrastructure/storage"
	"plate-mask/internal/infrastructure/vision"
)

type Container struct {
	UserService    *app.UserService
	MaskingService *app.MaskingService
	Pool           *app.InferencePool
	Store          *storage.FileArtifactStore
	Hub            *httpapi.Hub

	closers []io.Closer
}

// New собирает зависимости приложения по конфигурации
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{}

	detector, err := newDetector(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := detector.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}
	if err := detector.Ready(); err != nil {
		// сервис стартует, /health покажет деградацию
		logger.Warn("detector is not ready", "backend", cfg.DetectorBackend, "error", err)
	}

	masker, err := vision.NewRegionMasker(vision.MaskStyle(cfg.MaskStyle), cfg.MaskColor, cfg.BlurRadius)
	if err != nil {
		c.Close()
		return nil, err
	}

	index, err := newHistoryIndex(ctx, cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	if closer, ok := index.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}

	c.Store, err = storage.NewFileArtifactStore(cfg.UploadDir(), cfg.OutputDir(), index, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	restored, err := c.Store.Rehydrate(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("rehydrate history: %w", err)
	}
	if restored > 0 {
		logger.Info("history restored from output directory", "artifacts", restored)
	}

	c.Pool = app.NewInferencePool(detector, cfg.InferenceWorkers, cfg.InferenceQueue, cfg.InferenceTimeout)
	c.Hub = httpapi.NewHub(cfg.CORSOrigins, logger)

	c.MaskingService = app.NewMaskingService(
		vision.NewCodec(cfg.MaxImagePixels, cfg.JPEGQuality),
		c.Pool,
		masker,
		c.Store,
		c.Hub,
		app.MaskingOptions{ConfidenceThreshold: cfg.ConfidenceThreshold},
		logger,
	)
	c.UserService = app.NewUserService(storage.NewMemoryUserRepository())

	return c, nil
}

// Close останавливает пул инференса и освобождает ресурсы
func (c *Container) Close() error {
	if c.Pool != nil {
		c.Pool.Close()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func newDetector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (port.PlateDetector, error) {
	switch cfg.DetectorBackend {
	case config.BackendONNX:
		logger.Info("loading onnx model", "path", cfg.ModelPath, "input", cfg.ModelInputSize)
		return vision.NewONNXDetector(cfg.ModelPath, cfg.ModelInputSize, cfg.NMSThreshold), nil

	case config.BackendRekognition:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		logger.Info("using rekognition detector", "region", cfg.AWSRegion)
		return vision.NewRekognitionDetector(rekognition.NewFromConfig(awsCfg), cfg.PlatePattern)

	case config.BackendRemote:
		logger.Info("using remote detector", "url", cfg.InferenceURL)
		return vision.NewRemoteDetector(cfg.InferenceURL, &http.Client{Timeout: cfg.InferenceTimeout + 5*time.Second})

	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.DetectorBackend)
	}
}

func newHistoryIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (port.HistoryIndex, error) {
	if cfg.DatabaseURL == "" {
		return storage.NewMemoryHistory(), nil
	}
	index, err := storage.OpenPgHistoryIndex(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("history index in postgres")
	return index, nil
}
