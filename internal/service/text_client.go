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
	textRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_text_requests_total",
			Help: "Total number of requests to the text generation model.",
		},
		[]string{"client", "model", "status"},
	)
	textRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_text_request_duration_seconds",
			Help:    "Histogram of text generation request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"client", "model"},
	)
	textPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_text_prompt_tokens",
			Help:    "Histogram of prompt token counts (reported or estimated).",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"client", "model"},
	)
	textCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_text_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(50, 50, 20),
		},
		[]string{"client", "model"},
	)
)

// TextGenerator - клиент текстовой модели. Один запрос - один ответ, без повторов внутри.
type TextGenerator interface {
	// Generate возвращает сгенерированный текст. Любая ошибка оборачивает models.ErrGenerationFailure.
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationParams - параметры сэмплирования, общие для всех клиентов.
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
}

// NewTextGenerator создает клиента по TEXT_CLIENT_TYPE.
func NewTextGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (TextGenerator, error) {
	params := GenerationParams{Temperature: cfg.TextTemperature, MaxTokens: cfg.TextMaxTokens}
	switch strings.ToLower(cfg.TextClientType) {
	case config.TextClientOpenAI:
		return newOpenAITextClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.TextTimeout, params, logger), nil
	case config.TextClientOllama:
		return newOllamaTextClient(cfg.AIBaseURL, cfg.AIModel, cfg.TextTimeout, params, logger)
	case config.TextClientGemini:
		return newGeminiTextClient(ctx, cfg.AIAPIKey, cfg.AIModel, cfg.TextTimeout, params, logger)
	default:
		return nil, fmt.Errorf("неподдерживаемый тип текстового клиента: %s", cfg.TextClientType)
	}
}

// textCall - общая обвязка вызова: таймаут, метрики, логирование и проверка пустого ответа.
type textCall struct {
	client  string
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func (c textCall) run(ctx context.Context, prompt string, do func(ctx context.Context) (text string, promptTokens, completionTokens int, err error)) (string, error) {
	logFields := []zap.Field{
		zap.String("client", c.client),
		zap.String("model", c.model),
		zap.Int("prompt_bytes", len(prompt)),
	}

	if strings.TrimSpace(prompt) == "" {
		textRequestsTotal.WithLabelValues(c.client, c.model, "error_empty_prompt").Inc()
		return "", fmt.Errorf("%w: prompt is empty", models.ErrGenerationFailure)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("Sending text generation request", logFields...)
	start := time.Now()
	text, promptTokens, completionTokens, err := do(ctx)
	duration := time.Since(start)
	logFields = append(logFields, zap.Duration("duration", duration))

	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "error_timeout"
		}
		textRequestsTotal.WithLabelValues(c.client, c.model, status).Inc()
		c.logger.Error("Text generation request failed", append(logFields, zap.Error(err))...)
		return "", fmt.Errorf("%w: %v", models.ErrGenerationFailure, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		textRequestsTotal.WithLabelValues(c.client, c.model, "error_empty_response").Inc()
		c.logger.Warn("Text model returned empty response", logFields...)
		return "", fmt.Errorf("%w: empty response", models.ErrGenerationFailure)
	}

	if promptTokens == 0 {
		promptTokens = EstimateTokens(c.model, prompt)
	}
	textRequestsTotal.WithLabelValues(c.client, c.model, "success").Inc()
	textRequestDuration.WithLabelValues(c.client, c.model).Observe(duration.Seconds())
	textPromptTokens.WithLabelValues(c.client, c.model).Observe(float64(promptTokens))
	if completionTokens > 0 {
		textCompletionTokens.WithLabelValues(c.client, c.model).Observe(float64(completionTokens))
	}

	c.logger.Info("Text generated", append(logFields,
		zap.Int("response_chars", len(text)),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", completionTokens),
	)...)
	return text, nil
}
