package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"storybook-server/internal/database"
	"storybook-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type MongoStoryRepositorySuite struct {
	suite.Suite
	container testcontainers.Container
	client    *mongo.Client
	db        *mongo.Database
	repo      StoryRepository
}

func (s *MongoStoryRepositorySuite) SetupSuite() {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(3 * time.Minute),
		},
		Started: true,
	})
	require.NoError(s.T(), err)
	s.container = container

	host, err := container.Host(ctx)
	require.NoError(s.T(), err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(s.T(), err)

	s.client, err = database.ConnectMongo(ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()), zap.NewNop())
	require.NoError(s.T(), err)
	s.db = s.client.Database("storybook_test")
	s.repo, err = NewMongoStoryRepository(ctx, s.db, zap.NewNop())
	require.NoError(s.T(), err)
}

func (s *MongoStoryRepositorySuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Disconnect(context.Background())
	}
	if s.container != nil {
		require.NoError(s.T(), s.container.Terminate(context.Background()))
	}
}

func (s *MongoStoryRepositorySuite) SetupTest() {
	_, err := s.db.Collection(storiesCollection).DeleteMany(context.Background(), bson.M{})
	require.NoError(s.T(), err)
}

func (s *MongoStoryRepositorySuite) TestCreateAndGet() {
	ctx := context.Background()
	story := &models.PersistedStory{
		ParentID: "parent-1",
		ChildID:  "child-1",
		Title:    "The Coral Castle",
		Pages: []models.StoryPage{
			{ImageURL: "https://cdn/1.jpg", Text: "Mia dove into the sea."},
			{ImageURL: models.UploadErrorURL, Text: "A turtle waved hello."},
		},
		Theme: "Underwater Kingdom",
	}

	require.NoError(s.T(), s.repo.Create(ctx, story))
	s.NotEqual(uuid.Nil, story.ID)

	got, err := s.repo.GetByID(ctx, story.ID)
	require.NoError(s.T(), err)
	s.Equal(story.ID, got.ID)
	s.Equal(story.Pages, got.Pages)
	s.Equal(models.StatusPending, got.Status)
	s.WithinDuration(story.CreatedAt, got.CreatedAt, time.Millisecond)

	s.Error(s.repo.Create(ctx, story))
}

func (s *MongoStoryRepositorySuite) TestGetByID_NotFound() {
	_, err := s.repo.GetByID(context.Background(), uuid.New())
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *MongoStoryRepositorySuite) TestListByChildAndUpdateStatus() {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	var first *models.PersistedStory
	for i, title := range []string{"One", "Two", "Three"} {
		st := &models.PersistedStory{ParentID: "p", ChildID: "child-a", Title: title, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(s.T(), s.repo.Create(ctx, st))
		if first == nil {
			first = st
		}
	}

	stories, err := s.repo.ListByChild(ctx, "child-a", 2, 1)
	require.NoError(s.T(), err)
	s.Require().Len(stories, 2)
	s.Equal("Two", stories[0].Title)
	s.Equal("One", stories[1].Title)

	require.NoError(s.T(), s.repo.UpdateStatus(ctx, first.ID, models.StatusRejected))
	got, err := s.repo.GetByID(ctx, first.ID)
	require.NoError(s.T(), err)
	s.Equal(models.StatusRejected, got.Status)

	s.ErrorIs(s.repo.UpdateStatus(ctx, uuid.New(), models.StatusApproved), models.ErrNotFound)
}

func TestMongoStoryRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode.")
	}
	suite.Run(t, new(MongoStoryRepositorySuite))
}
