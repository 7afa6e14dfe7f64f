package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storybook-server/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const storiesCollection = "stories"

// storyDocument - представление истории в MongoDB. ID хранится строкой.
type storyDocument struct {
	ID         string             `bson:"_id"`
	ParentID   string             `bson:"parent_id"`
	ChildID    string             `bson:"child_id"`
	Title      string             `bson:"title"`
	Pages      []models.StoryPage `bson:"story_text"`
	Status     string             `bson:"status"`
	Genre      string             `bson:"genre"`
	Theme      string             `bson:"theme"`
	Mood       string             `bson:"mood"`
	Summary    string             `bson:"summary"`
	LikesCount int64              `bson:"likes_count"`
	CreatedAt  time.Time          `bson:"created_at"`
}

func toDocument(s *models.PersistedStory) storyDocument {
	return storyDocument{
		ID:         s.ID.String(),
		ParentID:   s.ParentID,
		ChildID:    s.ChildID,
		Title:      s.Title,
		Pages:      s.Pages,
		Status:     string(s.Status),
		Genre:      s.Genre,
		Theme:      s.Theme,
		Mood:       s.Mood,
		Summary:    s.Summary,
		LikesCount: s.LikesCount,
		CreatedAt:  s.CreatedAt,
	}
}

func (d storyDocument) toModel() (*models.PersistedStory, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("некорректный ID документа %q: %w", d.ID, err)
	}
	return &models.PersistedStory{
		ID:         id,
		ParentID:   d.ParentID,
		ChildID:    d.ChildID,
		Title:      d.Title,
		Pages:      d.Pages,
		Status:     models.StoryStatus(d.Status),
		Genre:      d.Genre,
		Theme:      d.Theme,
		Mood:       d.Mood,
		Summary:    d.Summary,
		LikesCount: d.LikesCount,
		CreatedAt:  d.CreatedAt.UTC(),
	}, nil
}

// mongoStoryRepository реализует StoryRepository для MongoDB.
type mongoStoryRepository struct {
	col    *mongo.Collection
	logger *zap.Logger
}

var _ StoryRepository = (*mongoStoryRepository)(nil)

// NewMongoStoryRepository создает репозиторий и индексы коллекции историй.
func NewMongoStoryRepository(ctx context.Context, db *mongo.Database, logger *zap.Logger) (StoryRepository, error) {
	col := db.Collection(storiesCollection)
	mi := mongo.IndexModel{
		Keys:    bson.D{{Key: "child_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("child_created_at"),
	}
	if _, err := col.Indexes().CreateOne(ctx, mi); err != nil {
		return nil, fmt.Errorf("ошибка создания индекса историй: %w", err)
	}
	return &mongoStoryRepository{col: col, logger: logger.Named("MongoStoryRepo")}, nil
}

func (r *mongoStoryRepository) Create(ctx context.Context, story *models.PersistedStory) error {
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
		zap.Int("pages", len(story.Pages)),
	}

	if _, err := r.col.InsertOne(ctx, toDocument(story)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Warn("Story already exists", logFields...)
			return fmt.Errorf("история %s уже существует: %w", story.ID, err)
		}
		r.logger.Error("Failed to insert story", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка создания истории: %w", err)
	}
	r.logger.Info("Story created successfully", logFields...)
	return nil
}

func (r *mongoStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PersistedStory, error) {
	var doc storyDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения истории по ID %s: %w", id, err)
	}
	return doc.toModel()
}

func (r *mongoStoryRepository) ListByChild(ctx context.Context, childID string, limit, offset int) ([]*models.PersistedStory, error) {
	limit, offset = normalizePage(limit, offset)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cur, err := r.col.Find(ctx, bson.M{"child_id": childID}, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка историй: %w", err)
	}
	defer cur.Close(ctx)

	var docs []storyDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("ошибка чтения списка историй: %w", err)
	}
	stories := make([]*models.PersistedStory, 0, len(docs))
	for _, d := range docs {
		s, err := d.toModel()
		if err != nil {
			r.logger.Warn("Skipping malformed story document", zap.String("id", d.ID), zap.Error(err))
			continue
		}
		stories = append(stories, s)
	}
	return stories, nil
}

func (r *mongoStoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus) error {
	res, err := r.col.UpdateByID(ctx, id.String(), bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса истории: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}
