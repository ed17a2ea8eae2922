package repository

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRecordStore) Put(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockRecordStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockRecordStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
