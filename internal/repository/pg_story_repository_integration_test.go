package repository

import (
	"context"
	"testing"
	"time"

	"storybook-server/internal/database"
	"storybook-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// PgStoryRepositorySuite поднимает PostgreSQL в контейнере и применяет миграции.
type PgStoryRepositorySuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	repo        StoryRepository
}

func (s *PgStoryRepositorySuite) SetupSuite() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("storybook-test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err)
	s.pgContainer = pgContainer

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T(), err)
	require.NoError(s.T(), database.ApplyMigrations(dsn))

	s.dbPool, err = database.Connect(ctx, database.PoolConfig{DSN: dsn, MaxConns: 4, MaxRetries: 3, RetryDelay: time.Second}, zap.NewNop())
	require.NoError(s.T(), err)
	s.repo = NewPgStoryRepository(s.dbPool, zap.NewNop())
}

func (s *PgStoryRepositorySuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		require.NoError(s.T(), s.pgContainer.Terminate(context.Background()))
	}
}

func (s *PgStoryRepositorySuite) SetupTest() {
	_, err := s.dbPool.Exec(context.Background(), "TRUNCATE stories")
	require.NoError(s.T(), err)
}

func (s *PgStoryRepositorySuite) TestCreateAndGet() {
	ctx := context.Background()
	story := &models.PersistedStory{
		ParentID: "parent-1",
		ChildID:  "child-1",
		Title:    "Brave Moon Friends",
		Pages: []models.StoryPage{
			{ImageURL: "https://cdn/1.jpg", Text: "Alex found a rocket."},
			{ImageURL: models.UploadErrorURL, Text: "They flew to the moon."},
		},
		Genre:   "Adventure",
		Theme:   "Space Explorers",
		Mood:    "Brave",
		Summary: "Alex flies to the moon.",
	}

	require.NoError(s.T(), s.repo.Create(ctx, story))
	s.NotEqual(uuid.Nil, story.ID)
	s.Equal(models.StatusPending, story.Status)

	got, err := s.repo.GetByID(ctx, story.ID)
	require.NoError(s.T(), err)
	s.Equal(story.Title, got.Title)
	s.Equal(story.Pages, got.Pages)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(int64(0), got.LikesCount)
	s.WithinDuration(story.CreatedAt, got.CreatedAt, time.Millisecond)
}

func (s *PgStoryRepositorySuite) TestCreateDuplicate() {
	ctx := context.Background()
	story := &models.PersistedStory{ID: uuid.New(), ParentID: "p", ChildID: "c"}

	require.NoError(s.T(), s.repo.Create(ctx, story))
	s.Error(s.repo.Create(ctx, story))
}

func (s *PgStoryRepositorySuite) TestGetByID_NotFound() {
	_, err := s.repo.GetByID(context.Background(), uuid.New())
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *PgStoryRepositorySuite) TestListByChild() {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i, title := range []string{"First", "Second", "Third"} {
		require.NoError(s.T(), s.repo.Create(ctx, &models.PersistedStory{
			ParentID: "p", ChildID: "child-a", Title: title, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(s.T(), s.repo.Create(ctx, &models.PersistedStory{ParentID: "p", ChildID: "child-b", Title: "Other"}))

	stories, err := s.repo.ListByChild(ctx, "child-a", 2, 0)
	require.NoError(s.T(), err)
	s.Require().Len(stories, 2)
	s.Equal("Third", stories[0].Title)
	s.Equal("Second", stories[1].Title)

	stories, err = s.repo.ListByChild(ctx, "child-a", 2, 2)
	require.NoError(s.T(), err)
	s.Require().Len(stories, 1)
	s.Equal("First", stories[0].Title)
}

func (s *PgStoryRepositorySuite) TestUpdateStatus() {
	ctx := context.Background()
	story := &models.PersistedStory{ParentID: "p", ChildID: "c"}
	require.NoError(s.T(), s.repo.Create(ctx, story))

	require.NoError(s.T(), s.repo.UpdateStatus(ctx, story.ID, models.StatusApproved))
	got, err := s.repo.GetByID(ctx, story.ID)
	require.NoError(s.T(), err)
	s.Equal(models.StatusApproved, got.Status)

	s.ErrorIs(s.repo.UpdateStatus(ctx, uuid.New(), models.StatusRejected), models.ErrNotFound)
}

func TestPgStoryRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode.")
	}
	suite.Run(t, new(PgStoryRepositorySuite))
}
