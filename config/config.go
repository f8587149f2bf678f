package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Поддерживаемые бэкенды детектора
const (
	BackendONNX        = "onnx"
	BackendRekognition = "rekognition"
	BackendRemote      = "remote"
)

// Способы маскирования
const (
	MaskFill     = "fill"
	MaskBlur     = "blur"
	MaskPixelate = "pixelate"
)

type Config struct {
	ServerPort     string
	StaticDir      string
	MaxUploadBytes int64
	MaxImagePixels int
	CORSOrigins    string

	DetectorBackend string
	ModelPath       string
	ModelInputSize  int
	NMSThreshold    float64
	InferenceURL    string
	AWSRegion       string
	PlatePattern    string

	ConfidenceThreshold float64
	InferenceWorkers    int
	InferenceQueue      int
	InferenceTimeout    time.Duration

	MaskStyle   string
	MaskColor   string
	BlurRadius  float64
	JPEGQuality int

	DatabaseURL   string
	TelegramToken string

	LogLevel  string
	LogFormat string
}

// DefaultPlatePattern 4-12 символов из латинских букв, цифр и разделителей
const DefaultPlatePattern = `^[A-Z0-9][A-Z0-9 .-]{2,10}[A-Z0-9]$`

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		StaticDir:      getEnv("STATIC_DIR", "static"),
		MaxUploadBytes: p.getInt64("MAX_UPLOAD_BYTES", 20<<20),
		MaxImagePixels: p.getInt("MAX_IMAGE_PIXELS", 40_000_000),
		CORSOrigins:    getEnv("CORS_ORIGINS", "*"),

		DetectorBackend: strings.ToLower(getEnv("DETECTOR_BACKEND", BackendONNX)),
		ModelPath:       getEnv("MODEL_PATH", "models/LP-detection.onnx"),
		ModelInputSize:  p.getInt("MODEL_INPUT_SIZE", 640),
		NMSThreshold:    p.getFloat("NMS_THRESHOLD", 0.45),
		InferenceURL:    getEnv("INFERENCE_URL", "http://localhost:5000/predict"),
		AWSRegion:       getEnv("AWS_REGION", "eu-central-1"),
		PlatePattern:    getEnv("PLATE_PATTERN", DefaultPlatePattern),

		ConfidenceThreshold: p.getFloat("CONFIDENCE_THRESHOLD", 0.25),
		InferenceWorkers:    p.getInt("INFERENCE_WORKERS", runtime.NumCPU()),
		InferenceQueue:      p.getInt("INFERENCE_QUEUE", 64),
		InferenceTimeout:    p.getDuration("INFERENCE_TIMEOUT", 30*time.Second),

		MaskStyle:   strings.ToLower(getEnv("MASK_STYLE", MaskFill)),
		MaskColor:   getEnv("MASK_COLOR", "#FFFFFF"),
		BlurRadius:  p.getFloat("BLUR_RADIUS", 24),
		JPEGQuality: p.getInt("JPEG_QUALITY", 92),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет диапазоны значений
func (c *Config) Validate() error {
	var errs []error
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0,1], got %v", c.ConfidenceThreshold))
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		errs = append(errs, fmt.Errorf("NMS_THRESHOLD must be within (0,1], got %v", c.NMSThreshold))
	}
	if c.InferenceWorkers <= 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_WORKERS must be positive, got %d", c.InferenceWorkers))
	}
	if c.InferenceQueue < 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_QUEUE must not be negative, got %d", c.InferenceQueue))
	}
	if c.InferenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_TIMEOUT must be positive, got %s", c.InferenceTimeout))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.MaxImagePixels))
	}
	if c.ModelInputSize <= 0 || c.ModelInputSize%32 != 0 {
		errs = append(errs, fmt.Errorf("MODEL_INPUT_SIZE must be a positive multiple of 32, got %d", c.ModelInputSize))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("JPEG_QUALITY must be within [1,100], got %d", c.JPEGQuality))
	}
	switch c.DetectorBackend {
	case BackendONNX, BackendRekognition, BackendRemote:
	default:
		errs = append(errs, fmt.Errorf("unknown DETECTOR_BACKEND %q", c.DetectorBackend))
	}
	switch c.MaskStyle {
	case MaskFill, MaskBlur, MaskPixelate:
	default:
		errs = append(errs, fmt.Errorf("unknown MASK_STYLE %q", c.MaskStyle))
	}
	return errors.Join(errs...)
}

// UploadDir каталог для временных файлов до публикации
func (c *Config) UploadDir() string {
	return filepath.Join(c.StaticDir, "uploads")
}

// OutputDir каталог опубликованных артефактов
func (c *Config) OutputDir() string {
	return filepath.Join(c.StaticDir, "output")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// parser собирает ошибки разбора, чтобы сообщить обо всех сразу
type parser struct {
	errs []error
}

func (p *parser) getInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) getInt64(key string, fallback int64) int64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) getFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) getDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
