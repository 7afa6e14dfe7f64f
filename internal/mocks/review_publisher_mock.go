package mocks

import (
	"context"

	"storybook-server/internal/messaging"

	"github.com/stretchr/testify/mock"
)

// MockReviewPublisher is a mock type for the ReviewPublisher type
type MockReviewPublisher struct {
	mock.Mock
}

// PublishStorySubmitted provides a mock function with given fields: ctx, event
func (_m *MockReviewPublisher) PublishStorySubmitted(ctx context.Context, event messaging.StorySubmittedEvent) error {
	ret := _m.Called(ctx, event)
	return ret.Error(0)
}

// NewMockReviewPublisher creates a new instance of MockReviewPublisher.
func NewMockReviewPublisher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockReviewPublisher {
	m := &MockReviewPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ messaging.ReviewPublisher = (*MockReviewPublisher)(nil)
