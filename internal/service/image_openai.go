package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIImageClient генерирует изображения через OpenAI Images API.
type openAIImageClient struct {
	client *openaigo.Client
	model  string
	call   imageCall
}

var _ ImageGenerator = (*openAIImageClient)(nil)

func newOpenAIImageClient(apiKey, model string, timeout time.Duration, logger *zap.Logger) *openAIImageClient {
	return &openAIImageClient{
		client: openaigo.NewClient(apiKey),
		model:  model,
		call:   imageCall{client: "openai", timeout: timeout, logger: logger.Named("openai_image_client")},
	}
}

func (c *openAIImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	return c.call.run(ctx, prompt, func(ctx context.Context) ([]byte, error) {
		resp, err := c.client.CreateImage(ctx, openaigo.ImageRequest{
			Prompt:         prompt,
			Model:          c.model,
			N:              1,
			Size:           openaigo.CreateImageSize1024x1024,
			ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
			return nil, nil
		}
		data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode b64 image: %w", err)
		}
		return data, nil
	})
}
