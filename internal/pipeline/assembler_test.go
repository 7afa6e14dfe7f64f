package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storybook-server/internal/messaging"
	"storybook-server/internal/mocks"
	"storybook-server/internal/models"
	"storybook-server/internal/pipeline"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const placeholderURL = "https://cdn.example.com/placeholder.jpg"

var testSession = models.SessionContext{ParentID: "parent-1", ChildID: "child-1"}

func newTestAssembler(t *testing.T) (*pipeline.Assembler, *mocks.MockObjectStorage, *mocks.MockStoryRepository, *mocks.MockReviewPublisher) {
	objects := mocks.NewMockObjectStorage(t)
	repo := mocks.NewMockStoryRepository(t)
	publisher := mocks.NewMockReviewPublisher(t)
	a := pipeline.NewAssembler(objects, repo, publisher, pipeline.AssemblerConfig{
		PathPrefix:     "story_images",
		Concurrency:    2,
		UploadTimeout:  time.Second,
		PlaceholderURL: placeholderURL,
	}, zap.NewNop())
	return a, objects, repo, publisher
}

func withBytes(data string) interface{} {
	return mock.MatchedBy(func(b []byte) bool { return string(b) == data })
}

// assignID имитирует репозиторий, заполняющий ID и CreatedAt.
func assignID(args mock.Arguments) {
	s := args.Get(1).(*models.PersistedStory)
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
}

func TestAppendChunk(t *testing.T) {
	a, _, _, _ := newTestAssembler(t)
	draft := models.NewStoryDraft()

	require.NoError(t, a.AppendChunk(draft, models.StoryChunk{Text: " First. ", Phase: models.PhaseFirst}))
	require.NoError(t, a.AppendChunk(draft, models.StoryChunk{Text: "Second.", Phase: models.PhaseNext}))

	err := a.AppendChunk(draft, models.StoryChunk{Text: "   "})
	assert.ErrorIs(t, err, models.ErrEmptyChunk)

	require.Equal(t, 2, draft.Len())
	assert.Equal(t, "First.", draft.Chunks[0].Text)
	assert.Equal(t, "Second.", draft.Chunks[1].Text)
	assert.Equal(t, "First.\n\nSecond.", draft.Text)
	assert.Equal(t, models.CompletionInProgress, draft.Completion)
}

func TestUploadAndFinalize_PagesPerChunk(t *testing.T) {
	a, objects, repo, publisher := newTestAssembler(t)

	draft := models.StoryDraft{Chunks: []models.StoryChunk{
		{Text: "Cover page.", Image: []byte("img-0"), IsCover: true},
		{Text: "Upload fails.", Image: []byte("img-1")},
		{Text: "Placeholder page.", Placeholder: true},
		{Text: "Already uploaded.", Image: []byte("img-3"), ImageURL: "https://cdn.example.com/cached.jpg"},
		{Text: "No image bytes."},
	}}

	objects.On("Upload", mock.Anything, mock.AnythingOfType("string"), withBytes("img-0"), "image/jpeg").
		Return("https://cdn.example.com/0.jpg", nil).Once()
	objects.On("Upload", mock.Anything, mock.AnythingOfType("string"), withBytes("img-1"), "image/jpeg").
		Return("", errors.New("bucket unavailable")).Once()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.PersistedStory")).Run(assignID).Return(nil).Once()
	publisher.On("PublishStorySubmitted", mock.Anything, mock.MatchedBy(func(e messaging.StorySubmittedEvent) bool {
		return e.Pages == 5 && e.ChildID == testSession.ChildID && e.Title == "Star Night Journey"
	})).Return(nil).Once()

	meta := models.StoryMeta{Title: "Star Night Journey", Genre: "Adventure", Theme: "Space Explorers", Mood: "Happy", Summary: "Two friends fly."}
	story, err := a.UploadAndFinalize(context.Background(), draft, testSession, meta)
	require.NoError(t, err)
	require.NotNil(t, story)

	require.Len(t, story.Pages, len(draft.Chunks))
	expected := []string{
		"https://cdn.example.com/0.jpg",
		models.UploadErrorURL,
		placeholderURL,
		"https://cdn.example.com/cached.jpg",
		models.UploadErrorURL,
	}
	for i, page := range story.Pages {
		assert.Equal(t, draft.Chunks[i].Text, page.Text, "page %d text", i)
		assert.NotEmpty(t, page.Text)
		assert.Equal(t, expected[i], page.ImageURL, "page %d url", i)
	}
	assert.Equal(t, models.StatusPending, story.Status)
	assert.Equal(t, testSession.ParentID, story.ParentID)
	assert.Equal(t, "Two friends fly.", story.Summary)
	assert.Equal(t, "Space Explorers", story.Theme)
}

func TestUploadAndFinalize_RepositoryFailure(t *testing.T) {
	a, objects, repo, publisher := newTestAssembler(t)

	draft := models.StoryDraft{Chunks: []models.StoryChunk{{Text: "Only page.", Image: []byte("img")}}}
	objects.On("Upload", mock.Anything, mock.Anything, mock.Anything, "image/jpeg").Return("https://cdn.example.com/a.jpg", nil).Once()
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	story, err := a.UploadAndFinalize(context.Background(), draft, testSession, models.StoryMeta{Title: "A"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPersistenceFailure)
	require.NotNil(t, story)
	assert.Equal(t, "https://cdn.example.com/a.jpg", story.Pages[0].ImageURL)
	publisher.AssertNotCalled(t, "PublishStorySubmitted", mock.Anything, mock.Anything)
}

func TestUploadAndFinalize_PublishFailureIsNotFatal(t *testing.T) {
	a, _, repo, publisher := newTestAssembler(t)

	draft := models.StoryDraft{Chunks: []models.StoryChunk{{Text: "Only page.", ImageURL: "https://cdn.example.com/a.jpg"}}}
	repo.On("Create", mock.Anything, mock.Anything).Run(assignID).Return(nil).Once()
	publisher.On("PublishStorySubmitted", mock.Anything, mock.Anything).Return(errors.New("channel closed")).Once()

	story, err := a.UploadAndFinalize(context.Background(), draft, testSession, models.StoryMeta{Title: "A"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, story.ID)
}
