package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"pasteapi/internal/model"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Create(ctx context.Context, id string, content []byte, meta string) error {
	args := m.Called(ctx, id, content, meta)
	return args.Error(0)
}

func (m *MockBackend) Retrieve(ctx context.Context, id string) (*model.Paste, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Paste), args.Error(1)
}

// MockStreamBackend additionally implements storage.StreamCreator.
type MockStreamBackend struct {
	MockBackend
}

func (m *MockStreamBackend) CreateFrom(ctx context.Context, id string, r io.Reader, meta string) (int64, error) {
	args := m.Called(ctx, id, r, meta)
	if f, ok := args.Get(0).(func(context.Context, string, io.Reader, string) int64); ok {
		return f(ctx, id, r, meta), args.Error(1)
	}
	return args.Get(0).(int64), args.Error(1)
}
