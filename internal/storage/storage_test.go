package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewObjectKey(t *testing.T) {
	a := NewObjectKey("/story_images/")
	b := NewObjectKey("story_images")

	assert.True(t, strings.HasPrefix(a, "story_images/"))
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.NotEqual(t, a, b)
	assert.False(t, strings.Contains(NewObjectKey(""), "/"))
}

func TestLocalStorage_Upload(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStorage(root, "https://cdn.example.com/images/", zap.NewNop())
	require.NoError(t, err)

	url, err := s.Upload(context.Background(), "story_images/1_a.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/images/story_images/1_a.jpg", url)

	data, err := os.ReadFile(filepath.Join(root, "story_images", "1_a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestLocalStorage_KeyCannotEscapeRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStorage(root, "http://localhost/images", zap.NewNop())
	require.NoError(t, err)

	url, err := s.Upload(context.Background(), "../../etc/evil.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/images/etc/evil.jpg", url)
	_, err = os.Stat(filepath.Join(root, "etc", "evil.jpg"))
	assert.NoError(t, err)
}

func TestLocalStorage_Errors(t *testing.T) {
	_, err := NewLocalStorage("", "http://x", zap.NewNop())
	assert.Error(t, err)
	_, err = NewLocalStorage(t.TempDir(), "", zap.NewNop())
	assert.Error(t, err)

	s, err := NewLocalStorage(t.TempDir(), "http://x", zap.NewNop())
	require.NoError(t, err)
	_, err = s.Upload(context.Background(), "a.jpg", nil, "image/jpeg")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Upload(ctx, "a.jpg", []byte("x"), "image/jpeg")
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeBucketWriter struct {
	gotKey, gotType, gotToken string
	err                       error
}

func (f *fakeBucketWriter) write(_ context.Context, key, contentType, token string, _ []byte) error {
	f.gotKey, f.gotType, f.gotToken = key, contentType, token
	return f.err
}

func TestFirebaseStorage_Upload(t *testing.T) {
	w := &fakeBucketWriter{}
	s := &firebaseStorage{bucket: "storybook.appspot.com", writer: w, logger: zap.NewNop()}

	url, err := s.Upload(context.Background(), "story_images/1_a.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "story_images/1_a.jpg", w.gotKey)
	assert.Equal(t, "image/jpeg", w.gotType)
	assert.Equal(t,
		"https://firebasestorage.googleapis.com/v0/b/storybook.appspot.com/o/story_images%2F1_a.jpg?alt=media&token="+w.gotToken,
		url)

	w.err = errors.New("permission denied")
	_, err = s.Upload(context.Background(), "k", []byte("x"), "image/jpeg")
	assert.Error(t, err)
}
