package models

import (
	"time"

	"github.com/google/uuid"
)

// StoryStatus - статус модерации опубликованной истории.
// Совпадает с типом ENUM 'story_status' в БД.
type StoryStatus string

const (
	StatusPending  StoryStatus = "pending"
	StatusApproved StoryStatus = "approved"
	StatusRejected StoryStatus = "rejected"
)

// IsValid проверяет, что статус входит в допустимый набор.
func (s StoryStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// UploadErrorURL подставляется вместо URL страницы, если загрузка изображения не удалась.
const UploadErrorURL = "URL error"

// StoryPage - пара {изображение, текст} в сохраненной истории.
type StoryPage struct {
	ImageURL string `json:"image_url" bson:"image_url"`
	Text     string `json:"text" bson:"text"`
}

// PersistedStory - законченная история в хранилище документов.
// Создается ровно один раз на историю и больше не изменяется пайплайном.
type PersistedStory struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	ParentID   string      `json:"parent_id" db:"parent_id"`
	ChildID    string      `json:"child_id" db:"child_id"`
	Title      string      `json:"title" db:"title"`
	Pages      []StoryPage `json:"story_text" db:"pages"`
	Status     StoryStatus `json:"status" db:"status"`
	Genre      string      `json:"genre" db:"genre"`
	Theme      string      `json:"theme" db:"theme"`
	Mood       string      `json:"mood" db:"mood"`
	Summary    string      `json:"summary" db:"summary"`
	LikesCount int64       `json:"likes_count" db:"likes_count"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// StoryMeta - поля истории, которые пайплайн передает при финализации.
type StoryMeta struct {
	Title   string
	Genre   string
	Theme   string
	Mood    string
	Summary string
}
