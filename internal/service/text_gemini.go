package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// geminiTextClient использует Gemini API через google.golang.org/genai.
type geminiTextClient struct {
	client *genai.Client
	model  string
	params GenerationParams
	call   textCall
}

var _ TextGenerator = (*geminiTextClient)(nil)

func newGeminiTextClient(ctx context.Context, apiKey, model string, timeout time.Duration, params GenerationParams, logger *zap.Logger) (*geminiTextClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента Gemini: %w", err)
	}
	log := logger.Named("gemini_text_client")
	log.Info("Gemini text client created", zap.String("model", model))
	return &geminiTextClient{
		client: client,
		model:  model,
		params: params,
		call:   textCall{client: "gemini", model: model, timeout: timeout, logger: log},
	}, nil
}

func (c *geminiTextClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.call.run(ctx, prompt, func(ctx context.Context) (string, int, int, error) {
		temperature := float32(c.params.Temperature)
		result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature:     &temperature,
			MaxOutputTokens: int32(c.params.MaxTokens),
		})
		if err != nil {
			return "", 0, 0, err
		}
		// Ответ, заблокированный фильтрами безопасности, приходит без кандидатов
		if result == nil || len(result.Candidates) == 0 {
			return "", 0, 0, nil
		}
		var promptTokens, completionTokens int
		if result.UsageMetadata != nil {
			promptTokens = int(result.UsageMetadata.PromptTokenCount)
			completionTokens = int(result.UsageMetadata.CandidatesTokenCount)
		}
		return result.Text(), promptTokens, completionTokens, nil
	})
}
