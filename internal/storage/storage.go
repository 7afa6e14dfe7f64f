// Package storage загружает изображения историй в объектное хранилище.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"storybook-server/internal/config"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var uploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storybook_image_uploads_total",
		Help: "Total number of image uploads to object storage.",
	},
	[]string{"backend", "status"},
)

// ObjectStorage принимает байты изображения и возвращает публичный URL.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// NewObjectKey генерирует уникальный ключ объекта под префиксом.
func NewObjectKey(prefix string) string {
	name := fmt.Sprintf("%d_%s.jpg", time.Now().UnixNano(), uuid.NewString())
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// New создает хранилище по STORAGE_BACKEND.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal:
		return NewLocalStorage(cfg.StorageLocalPath, cfg.StoragePublicBaseURL, logger)
	case config.StorageFirebase:
		return NewFirebaseStorage(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseStorageBucket, logger)
	default:
		return nil, fmt.Errorf("неподдерживаемый backend хранилища: %s", cfg.StorageBackend)
	}
}
