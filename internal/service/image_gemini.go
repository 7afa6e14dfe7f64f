package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// geminiImageClient генерирует изображения моделью Imagen через Gemini API.
type geminiImageClient struct {
	client *genai.Client
	model  string
	ratio  string
	call   imageCall
}

var _ ImageGenerator = (*geminiImageClient)(nil)

func newGeminiImageClient(ctx context.Context, apiKey, model, ratio string, timeout time.Duration, logger *zap.Logger) (*geminiImageClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента Gemini: %w", err)
	}
	return &geminiImageClient{
		client: client,
		model:  model,
		ratio:  ratio,
		call:   imageCall{client: "gemini", timeout: timeout, logger: logger.Named("gemini_image_client")},
	}, nil
}

func (c *geminiImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	return c.call.run(ctx, prompt, func(ctx context.Context) ([]byte, error) {
		resp, err := c.client.Models.GenerateImages(ctx, c.model, prompt, &genai.GenerateImagesConfig{
			NumberOfImages: 1,
			AspectRatio:    imagenAspectRatio(c.ratio),
			OutputMIMEType: "image/jpeg",
		})
		if err != nil {
			return nil, err
		}
		// Отфильтрованные изображения не попадают в ответ
		if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
			return nil, nil
		}
		return resp.GeneratedImages[0].Image.ImageBytes, nil
	})
}

// imagenAspectRatio возвращает ratio, если Imagen его поддерживает, иначе 4:3.
func imagenAspectRatio(ratio string) string {
	switch ratio {
	case "1:1", "3:4", "4:3", "9:16", "16:9":
		return ratio
	}
	return "4:3"
}
