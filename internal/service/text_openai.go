package service

import (
	"context"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAITextClient работает с любым OpenAI-совместимым API (OpenRouter, OpenAI).
type openAITextClient struct {
	client *openaigo.Client
	model  string
	params GenerationParams
	call   textCall
}

var _ TextGenerator = (*openAITextClient)(nil)

func newOpenAITextClient(baseURL, apiKey, model string, timeout time.Duration, params GenerationParams, logger *zap.Logger) *openAITextClient {
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	log := logger.Named("openai_text_client")
	log.Info("OpenAI text client created", zap.String("base_url", cfg.BaseURL), zap.String("model", model))
	return &openAITextClient{
		client: openaigo.NewClientWithConfig(cfg),
		model:  model,
		params: params,
		call:   textCall{client: "openai", model: model, timeout: timeout, logger: log},
	}
}

func (c *openAITextClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.call.run(ctx, prompt, func(ctx context.Context) (string, int, int, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
			Model: c.model,
			Messages: []openaigo.ChatCompletionMessage{
				{Role: openaigo.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: float32(c.params.Temperature),
			MaxTokens:   c.params.MaxTokens,
		})
		if err != nil {
			return "", 0, 0, err
		}
		if len(resp.Choices) == 0 {
			return "", 0, 0, nil
		}
		// content_filter считается пустым ответом
		if resp.Choices[0].FinishReason == openaigo.FinishReasonContentFilter {
			return "", resp.Usage.PromptTokens, 0, nil
		}
		return resp.Choices[0].Message.Content, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
	})
}
