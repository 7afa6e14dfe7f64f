package storage

import (
	"context"

	gcs "cloud.google.com/go/storage"
)

type gcsWriter struct {
	handle *gcs.BucketHandle
}

func (w gcsWriter) write(ctx context.Context, key, contentType, token string, data []byte) error {
	obj := w.handle.Object(key).NewWriter(ctx)
	obj.ContentType = contentType
	obj.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}
	if _, err := obj.Write(data); err != nil {
		_ = obj.Close()
		return err
	}
	return obj.Close()
}
