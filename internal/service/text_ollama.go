package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// ollamaTextClient использует нативный API Ollama.
type ollamaTextClient struct {
	client *api.Client
	model  string
	params GenerationParams
	call   textCall
}

var _ TextGenerator = (*ollamaTextClient)(nil)

func newOllamaTextClient(baseURL, model string, timeout time.Duration, params GenerationParams, logger *zap.Logger) (*ollamaTextClient, error) {
	ollamaBaseURL := strings.TrimSuffix(baseURL, "/v1")
	ollamaBaseURL = strings.TrimSuffix(ollamaBaseURL, "/")

	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", ollamaBaseURL, err)
	}

	log := logger.Named("ollama_text_client")
	log.Info("Ollama text client created", zap.String("base_url", ollamaBaseURL), zap.String("model", model))
	return &ollamaTextClient{
		client: api.NewClient(parsedURL, &http.Client{Timeout: timeout}),
		model:  model,
		params: params,
		call:   textCall{client: "ollama", model: model, timeout: timeout, logger: log},
	}, nil
}

func (c *ollamaTextClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.call.run(ctx, prompt, func(ctx context.Context) (string, int, int, error) {
		stream := false
		req := &api.ChatRequest{
			Model:    c.model,
			Messages: []api.Message{{Role: "user", Content: prompt}},
			Stream:   &stream,
			Options: map[string]interface{}{
				"temperature": c.params.Temperature,
				"num_predict": c.params.MaxTokens,
			},
		}

		var resp api.ChatResponse
		err := c.client.Chat(ctx, req, func(r api.ChatResponse) error {
			resp = r
			return nil
		})
		if err != nil {
			return "", 0, 0, err
		}
		return resp.Message.Content, resp.PromptEvalCount, resp.EvalCount, nil
	})
}
