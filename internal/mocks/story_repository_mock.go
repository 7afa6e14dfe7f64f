package mocks

import (
	"context"

	"storybook-server/internal/models"
	"storybook-server/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStoryRepository is a mock type for the StoryRepository type
type MockStoryRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, story
func (_m *MockStoryRepository) Create(ctx context.Context, story *models.PersistedStory) error {
	ret := _m.Called(ctx, story)
	if rf, ok := ret.Get(0).(func(context.Context, *models.PersistedStory) error); ok {
		return rf(ctx, story)
	}
	return ret.Error(0)
}

// GetByID provides a mock function with given fields: ctx, id
func (_m *MockStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PersistedStory, error) {
	ret := _m.Called(ctx, id)

	var r0 *models.PersistedStory
	if rf, ok := ret.Get(0).(func(context.Context, uuid.UUID) *models.PersistedStory); ok {
		r0 = rf(ctx, id)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.PersistedStory)
	}

	return r0, ret.Error(1)
}

// ListByChild provides a mock function with given fields: ctx, childID, limit, offset
func (_m *MockStoryRepository) ListByChild(ctx context.Context, childID string, limit, offset int) ([]*models.PersistedStory, error) {
	ret := _m.Called(ctx, childID, limit, offset)

	var r0 []*models.PersistedStory
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*models.PersistedStory)
	}

	return r0, ret.Error(1)
}

// UpdateStatus provides a mock function with given fields: ctx, id, status
func (_m *MockStoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus) error {
	ret := _m.Called(ctx, id, status)
	return ret.Error(0)
}

// NewMockStoryRepository creates a new instance of MockStoryRepository.
func NewMockStoryRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryRepository {
	m := &MockStoryRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ repository.StoryRepository = (*MockStoryRepository)(nil)
