package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// imageServerRequest - тело запроса к серверу генерации изображений.
type imageServerRequest struct {
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio"`
}

// httpImageClient вызывает собственный сервер генерации: POST {base}/generate -> image/*.
type httpImageClient struct {
	baseURL    string
	ratio      string
	httpClient *http.Client
	call       imageCall
}

var _ ImageGenerator = (*httpImageClient)(nil)

// NewHTTPImageClient создает клиента сервера генерации изображений.
func NewHTTPImageClient(baseURL, ratio string, timeout time.Duration, logger *zap.Logger) ImageGenerator {
	log := logger.Named("http_image_client")
	return &httpImageClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		ratio:      ratio,
		httpClient: &http.Client{},
		call:       imageCall{client: "http", timeout: timeout, logger: log},
	}
}

func (c *httpImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	return c.call.run(ctx, prompt, func(ctx context.Context) ([]byte, error) {
		reqBodyBytes, err := json.Marshal(imageServerRequest{Prompt: prompt, Ratio: c.ratio})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}

		endpointURL := c.baseURL + "/generate"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(reqBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "image/*")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		bodyBytes, readErr := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response body: %w", readErr)
		}
		return bodyBytes, nil
	})
}
