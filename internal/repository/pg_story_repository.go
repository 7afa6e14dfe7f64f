package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storybook-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const storyFields = `id, parent_id, child_id, title, pages, status, genre, theme, mood, summary, likes_count, created_at`

const (
	createStoryQuery = `
		INSERT INTO stories (
			id, parent_id, child_id, title, pages, status, genre, theme, mood, summary, likes_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	getStoryByIDQuery       = `SELECT ` + storyFields + ` FROM stories WHERE id = $1`
	listStoriesByChildQuery = `SELECT ` + storyFields + ` FROM stories WHERE child_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	updateStoryStatusQuery  = `UPDATE stories SET status = $2 WHERE id = $1`
)

// pgStoryRepository реализует StoryRepository для PostgreSQL.
type pgStoryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// Compile-time check
var _ StoryRepository = (*pgStoryRepository)(nil)

// NewPgStoryRepository создает репозиторий историй поверх пула или транзакции.
func NewPgStoryRepository(db DBTX, logger *zap.Logger) StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

func (r *pgStoryRepository) Create(ctx context.Context, story *models.PersistedStory) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now().UTC()
	}
	if story.Status == "" {
		story.Status = models.StatusPending
	}
	if story.Pages == nil {
		story.Pages = []models.StoryPage{}
	}

	logFields := []zap.Field{
		zap.String("storyID", story.ID.String()),
		zap.String("childID", story.ChildID),
		zap.String("title", story.Title),
		zap.Int("pages", len(story.Pages)),
	}
	r.logger.Debug("Creating story", logFields...)

	pages, err := json.Marshal(story.Pages)
	if err != nil {
		return fmt.Errorf("ошибка сериализации страниц истории: %w", err)
	}

	_, err = r.db.Exec(ctx, createStoryQuery,
		story.ID,
		story.ParentID,
		story.ChildID,
		story.Title,
		pages,
		story.Status,
		story.Genre,
		story.Theme,
		story.Mood,
		story.Summary,
		story.LikesCount,
		story.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Story already exists", logFields...)
			return fmt.Errorf("история %s уже существует: %w", story.ID, err)
		}
		r.logger.Error("Failed to create story", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка создания истории: %w", err)
	}

	r.logger.Info("Story created successfully", logFields...)
	return nil
}

func (r *pgStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PersistedStory, error) {
	logFields := []zap.Field{zap.String("storyID", id.String())}

	var story models.PersistedStory
	if err := pgxscan.Get(ctx, r.db, &story, getStoryByIDQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Story not found by ID", logFields...)
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get story by ID", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения истории по ID %s: %w", id, err)
	}
	return &story, nil
}

func (r *pgStoryRepository) ListByChild(ctx context.Context, childID string, limit, offset int) ([]*models.PersistedStory, error) {
	limit, offset = normalizePage(limit, offset)
	logFields := []zap.Field{zap.String("childID", childID), zap.Int("limit", limit), zap.Int("offset", offset)}

	stories := make([]*models.PersistedStory, 0)
	if err := pgxscan.Select(ctx, r.db, &stories, listStoriesByChildQuery, childID, limit, offset); err != nil {
		r.logger.Error("Failed to list stories by child", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения списка историй: %w", err)
	}
	r.logger.Debug("Stories listed", append(logFields, zap.Int("count", len(stories)))...)
	return stories, nil
}

func (r *pgStoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus) error {
	logFields := []zap.Field{zap.String("storyID", id.String()), zap.String("status", string(status))}

	tag, err := r.db.Exec(ctx, updateStoryStatusQuery, id, status)
	if err != nil {
		r.logger.Error("Failed to update story status", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка обновления статуса истории: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Story not found for status update", logFields...)
		return models.ErrNotFound
	}
	r.logger.Info("Story status updated", logFields...)
	return nil
}
