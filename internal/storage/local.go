package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// localStorage пишет файлы в каталог, раздаваемый по публичному URL.
type localStorage struct {
	root    string
	baseURL string
	logger  *zap.Logger
}

var _ ObjectStorage = (*localStorage)(nil)

// NewLocalStorage создает файловое хранилище.
func NewLocalStorage(root, publicBaseURL string, logger *zap.Logger) (ObjectStorage, error) {
	if root == "" {
		return nil, errors.New("image save path (STORAGE_LOCAL_PATH) is not configured")
	}
	if publicBaseURL == "" {
		return nil, errors.New("image public base URL (STORAGE_PUBLIC_BASE_URL) is not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", root, err)
	}
	return &localStorage{
		root:    root,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:  logger.Named("local_storage"),
	}, nil
}

func (s *localStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		uploadsTotal.WithLabelValues("local", "error").Inc()
		return "", errors.New("image data is empty")
	}
	clean := filepath.Clean("/" + key)
	filePath := filepath.Join(s.root, clean)

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		uploadsTotal.WithLabelValues("local", "error").Inc()
		return "", fmt.Errorf("failed to create dir for %s: %w", key, err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		uploadsTotal.WithLabelValues("local", "error").Inc()
		s.logger.Error("Failed to save image to file", zap.String("path", filePath), zap.Error(err))
		return "", fmt.Errorf("failed to write %s: %w", filePath, err)
	}

	imageURL := s.baseURL + filepath.ToSlash(clean)
	uploadsTotal.WithLabelValues("local", "success").Inc()
	s.logger.Debug("Image saved to file", zap.String("path", filePath), zap.String("url", imageURL))
	return imageURL, nil
}
