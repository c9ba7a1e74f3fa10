package mocks

import (
	"context"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/runner"
	"github.com/stretchr/testify/mock"
)

var _ runner.Service = (*MockService)(nil)

// MockService is a mock implementation of the runner.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) StartRun(ctx context.Context, cfg fl.RunConfig) (fl.RunRecord, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(fl.RunRecord), args.Error(1)
}

func (m *MockService) GetRun(ctx context.Context, id string) (fl.RunRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(fl.RunRecord), args.Error(1)
}

func (m *MockService) ListRuns(ctx context.Context, offset, limit uint64) (runner.RunPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(runner.RunPage), args.Error(1)
}

func (m *MockService) ListRounds(ctx context.Context, id string, phase fl.Phase) ([]fl.RoundMetrics, error) {
	args := m.Called(ctx, id, phase)
	return args.Get(0).([]fl.RoundMetrics), args.Error(1)
}
