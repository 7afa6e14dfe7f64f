// Package repository хранит законченные истории.
package repository

import (
	"context"

	"storybook-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX - общий интерфейс для pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// StoryRepository - хранилище документов для опубликованных историй.
type StoryRepository interface {
	// Create записывает историю. ID и CreatedAt заполняются, если не заданы.
	Create(ctx context.Context, story *models.PersistedStory) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PersistedStory, error)
	// ListByChild возвращает истории ребенка, новые первыми.
	ListByChild(ctx context.Context, childID string, limit, offset int) ([]*models.PersistedStory, error)
	// UpdateStatus меняет статус модерации. Используется ревьюером, не пайплайном.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus) error
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
