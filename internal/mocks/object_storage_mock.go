package mocks

import (
	"context"

	"storybook-server/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockObjectStorage is a mock type for the ObjectStorage type
type MockObjectStorage struct {
	mock.Mock
}

// Upload provides a mock function with given fields: ctx, key, data, contentType
func (_m *MockObjectStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ret := _m.Called(ctx, key, data, contentType)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, []byte, string) string); ok {
		r0 = rf(ctx, key, data, contentType)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, []byte, string) error); ok {
		r1 = rf(ctx, key, data, contentType)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockObjectStorage creates a new instance of MockObjectStorage.
func NewMockObjectStorage(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockObjectStorage {
	m := &MockObjectStorage{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ storage.ObjectStorage = (*MockObjectStorage)(nil)
