package mocks

import (
	"context"

	"github.com/dukex/flowscribe/pkg/gateway"
	"github.com/stretchr/testify/mock"
)

// MockGenerator is a mock implementation of gateway.Generator interface.
type MockGenerator struct {
	mock.Mock
}

var _ gateway.Generator = (*MockGenerator)(nil)

func (m *MockGenerator) Generate(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(gateway.Result), args.Error(1)
}
