package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"storybook-server/internal/messaging"
	"storybook-server/internal/models"
	"storybook-server/internal/repository"
	"storybook-server/internal/storage"

	"go.uber.org/zap"
)

// AssemblerConfig - параметры загрузки изображений.
type AssemblerConfig struct {
	PathPrefix     string
	Concurrency    int
	UploadTimeout  time.Duration
	PlaceholderURL string
}

// Assembler накапливает фрагменты и превращает черновик в сохраненную историю.
type Assembler struct {
	storage   storage.ObjectStorage
	repo      repository.StoryRepository
	publisher messaging.ReviewPublisher
	cfg       AssemblerConfig
	logger    *zap.Logger
}

// NewAssembler создает сборщик историй.
func NewAssembler(
	objectStorage storage.ObjectStorage,
	repo repository.StoryRepository,
	publisher messaging.ReviewPublisher,
	cfg AssemblerConfig,
	logger *zap.Logger,
) *Assembler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if publisher == nil {
		publisher = messaging.NoopReviewPublisher{}
	}
	return &Assembler{
		storage:   objectStorage,
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("Assembler"),
	}
}

// AppendChunk добавляет фрагмент в конец черновика. Фрагменты никогда не переупорядочиваются и не удаляются.
func (a *Assembler) AppendChunk(draft *models.StoryDraft, chunk models.StoryChunk) error {
	text := strings.TrimSpace(chunk.Text)
	if text == "" {
		return models.ErrEmptyChunk
	}
	chunk.Text = text
	draft.Chunks = append(draft.Chunks, chunk)
	if draft.Text == "" {
		draft.Text = text
	} else {
		draft.Text += "\n\n" + text
	}
	if draft.Completion == models.CompletionNotStarted {
		draft.Completion = models.CompletionInProgress
	}
	return nil
}

// UploadAndFinalize загружает изображение каждого фрагмента независимо и записывает
// одну историю со страницами в порядке фрагментов. Неудачная загрузка заменяется на
// models.UploadErrorURL и не прерывает остальные.
//
// При ошибке записи возвращается собранная история (с URL уже загруженных изображений)
// и ошибка, оборачивающая models.ErrPersistenceFailure.
func (a *Assembler) UploadAndFinalize(ctx context.Context, draft models.StoryDraft, sc models.SessionContext, meta models.StoryMeta) (*models.PersistedStory, error) {
	logFields := []zap.Field{
		zap.String("child_id", sc.ChildID),
		zap.Int("chunks", len(draft.Chunks)),
	}
	a.logger.Info("Finalizing story", logFields...)

	urls := a.uploadAll(ctx, draft.Chunks)

	story := &models.PersistedStory{
		ParentID: sc.ParentID,
		ChildID:  sc.ChildID,
		Title:    meta.Title,
		Pages:    make([]models.StoryPage, len(draft.Chunks)),
		Status:   models.StatusPending,
		Genre:    meta.Genre,
		Theme:    meta.Theme,
		Mood:     meta.Mood,
		Summary:  meta.Summary,
	}
	for i, chunk := range draft.Chunks {
		story.Pages[i] = models.StoryPage{ImageURL: urls[i], Text: chunk.Text}
	}

	if err := a.repo.Create(ctx, story); err != nil {
		storiesPersistedTotal.WithLabelValues("error").Inc()
		a.logger.Error("Failed to persist story", append(logFields, zap.Error(err))...)
		return story, fmt.Errorf("%w: %v", models.ErrPersistenceFailure, err)
	}
	storiesPersistedTotal.WithLabelValues("success").Inc()
	logFields = append(logFields, zap.String("story_id", story.ID.String()))
	a.logger.Info("Story persisted", logFields...)

	// Событие для модерации не влияет на результат публикации
	event := messaging.StorySubmittedEvent{
		StoryID:   story.ID.String(),
		ParentID:  story.ParentID,
		ChildID:   story.ChildID,
		Title:     story.Title,
		Pages:     len(story.Pages),
		CreatedAt: story.CreatedAt,
	}
	if err := a.publisher.PublishStorySubmitted(ctx, event); err != nil {
		a.logger.Warn("Failed to publish review event", append(logFields, zap.Error(err))...)
	}
	return story, nil
}

// uploadAll возвращает URL для каждого фрагмента в том же порядке.
func (a *Assembler) uploadAll(ctx context.Context, chunks []models.StoryChunk) []string {
	urls := make([]string, len(chunks))
	sem := make(chan struct{}, a.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		switch {
		case chunk.ImageURL != "":
			urls[i] = chunk.ImageURL
			continue
		case chunk.Placeholder:
			urls[i] = a.placeholderURL()
			continue
		case len(chunk.Image) == 0:
			uploadFailuresTotal.Inc()
			urls[i] = models.UploadErrorURL
			continue
		}

		wg.Add(1)
		go func(i int, data []byte) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			url, err := a.upload(ctx, data)
			if err != nil {
				uploadFailuresTotal.Inc()
				a.logger.Warn("Chunk image upload failed, using sentinel",
					zap.Int("chunk", i), zap.Error(err))
				urls[i] = models.UploadErrorURL
				return
			}
			urls[i] = url
		}(i, chunk.Image)
	}
	wg.Wait()
	return urls
}

func (a *Assembler) upload(ctx context.Context, data []byte) (string, error) {
	if a.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.UploadTimeout)
		defer cancel()
	}
	url, err := a.storage.Upload(ctx, storage.NewObjectKey(a.cfg.PathPrefix), data, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUploadFailure, err)
	}
	if url == "" {
		return "", fmt.Errorf("%w: storage returned empty url", models.ErrUploadFailure)
	}
	return url, nil
}

func (a *Assembler) placeholderURL() string {
	if a.cfg.PlaceholderURL == "" {
		return models.UploadErrorURL
	}
	return a.cfg.PlaceholderURL
}
