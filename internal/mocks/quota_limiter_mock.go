package mocks

import (
	"context"

	"storybook-server/internal/quota"

	"github.com/stretchr/testify/mock"
)

// MockLimiter is a mock type for the quota Limiter type
type MockLimiter struct {
	mock.Mock
}

// Reserve provides a mock function with given fields: ctx, key
func (_m *MockLimiter) Reserve(ctx context.Context, key string) error {
	ret := _m.Called(ctx, key)
	return ret.Error(0)
}

var _ quota.Limiter = (*MockLimiter)(nil)
