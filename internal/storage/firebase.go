package storage

import (
	"context"
	"fmt"
	"net/url"

	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// bucketWriter открывает запись объекта. Выделен для подмены в тестах.
type bucketWriter interface {
	write(ctx context.Context, key, contentType, token string, data []byte) error
}

// firebaseStorage загружает изображения в Firebase Storage и
// возвращает URL с токеном скачивания.
type firebaseStorage struct {
	bucket string
	writer bucketWriter
	logger *zap.Logger
}

var _ ObjectStorage = (*firebaseStorage)(nil)

// NewFirebaseStorage инициализирует Firebase App и бакет хранилища.
func NewFirebaseStorage(ctx context.Context, credentialsPath, bucket string, logger *zap.Logger) (ObjectStorage, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{StorageBucket: bucket}, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Firebase App: %w", err)
	}
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения Firebase Storage client: %w", err)
	}
	handle, err := client.Bucket(bucket)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения бакета %s: %w", bucket, err)
	}

	logger.Info("Firebase storage initialized", zap.String("bucket", bucket))
	return &firebaseStorage{
		bucket: bucket,
		writer: gcsWriter{handle: handle},
		logger: logger.Named("firebase_storage"),
	}, nil
}

func (s *firebaseStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	token := uuid.NewString()
	if err := s.writer.write(ctx, key, contentType, token, data); err != nil {
		uploadsTotal.WithLabelValues("firebase", "error").Inc()
		s.logger.Error("Failed to upload image", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	uploadsTotal.WithLabelValues("firebase", "success").Inc()
	return downloadURL(s.bucket, key, token), nil
}

func downloadURL(bucket, key, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(key), token)
}
