package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pasteapi/internal/model"
	"pasteapi/internal/service"
)

type MockPasteService struct {
	mock.Mock
}

func (m *MockPasteService) Create(ctx context.Context, in service.CreateInput) (*service.CreateResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CreateResult), args.Error(1)
}

func (m *MockPasteService) Get(ctx context.Context, id string) (*model.Paste, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Paste), args.Error(1)
}
