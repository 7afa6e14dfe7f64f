package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storybook-server/internal/config"
	"storybook-server/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	imageRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_image_requests_total",
			Help: "Total number of requests to the image generation model.",
		},
		[]string{"client", "status"},
	)
	imageRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_image_request_duration_seconds",
			Help:    "Histogram of image generation request durations.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		},
		[]string{"client"},
	)
	imageSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storybook_image_size_bytes",
			Help:    "Size of generated images.",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 8),
		},
	)
)

// ImageGenerator - клиент графической модели. Возвращает байты изображения (JPEG/PNG).
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// NewImageGenerator создает клиента по IMAGE_CLIENT_TYPE.
func NewImageGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ImageGenerator, error) {
	switch strings.ToLower(cfg.ImageClientType) {
	case config.ImageClientHTTP:
		return NewHTTPImageClient(cfg.ImageServerURL, cfg.ImageRatio, cfg.ImageTimeout, logger), nil
	case config.ImageClientOpenAI:
		return newOpenAIImageClient(cfg.AIAPIKey, cfg.ImageModel, cfg.ImageTimeout, logger), nil
	case config.ImageClientGemini:
		return newGeminiImageClient(ctx, cfg.AIAPIKey, cfg.ImageModel, cfg.ImageRatio, cfg.ImageTimeout, logger)
	default:
		return nil, fmt.Errorf("неподдерживаемый тип клиента изображений: %s", cfg.ImageClientType)
	}
}

// imageCall - общая обвязка вызова графической модели.
type imageCall struct {
	client  string
	timeout time.Duration
	logger  *zap.Logger
}

func (c imageCall) run(ctx context.Context, prompt string, do func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	logFields := []zap.Field{
		zap.String("client", c.client),
		zap.Int("prompt_bytes", len(prompt)),
	}
	if strings.TrimSpace(prompt) == "" {
		imageRequestsTotal.WithLabelValues(c.client, "error_empty_prompt").Inc()
		return nil, fmt.Errorf("%w: image prompt is empty", models.ErrGenerationFailure)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("Sending image generation request", append(logFields, zap.String("prompt", prompt))...)
	start := time.Now()
	data, err := do(ctx)
	duration := time.Since(start)
	logFields = append(logFields, zap.Duration("duration", duration))

	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "error_timeout"
		}
		imageRequestsTotal.WithLabelValues(c.client, status).Inc()
		c.logger.Error("Image generation request failed", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("%w: %v", models.ErrGenerationFailure, err)
	}
	if len(data) == 0 {
		imageRequestsTotal.WithLabelValues(c.client, "error_empty_response").Inc()
		c.logger.Error("Image model returned empty image data", logFields...)
		return nil, fmt.Errorf("%w: empty image data", models.ErrGenerationFailure)
	}

	imageRequestsTotal.WithLabelValues(c.client, "success").Inc()
	imageRequestDuration.WithLabelValues(c.client).Observe(duration.Seconds())
	imageSizeBytes.Observe(float64(len(data)))
	c.logger.Info("Image generated", append(logFields, zap.Int("size_bytes", len(data)))...)
	return data, nil
}
