package http

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
)

var (
	_ driving.IngestionService = (*mockIngestionService)(nil)
	_ driving.AuthService      = (*mockAuthService)(nil)
	_ driven.TaskQueue         = (*mockTaskQueue)(nil)
)

type mockIngestionService struct {
	mock.Mock
}

func (m *mockIngestionService) SubmitForProcessing(ctx context.Context, itemID string) (*domain.Task, error) {
	args := m.Called(ctx, itemID)
	task, _ := args.Get(0).(*domain.Task)
	return task, args.Error(1)
}

func (m *mockIngestionService) CancelProcessing(ctx context.Context, itemID string) (bool, error) {
	args := m.Called(ctx, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *mockIngestionService) RetryProcessing(ctx context.Context, itemID string) (*domain.RetryResult, error) {
	args := m.Called(ctx, itemID)
	result, _ := args.Get(0).(*domain.RetryResult)
	return result, args.Error(1)
}

func (m *mockIngestionService) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	args := m.Called(ctx, itemID)
	item, _ := args.Get(0).(*domain.Item)
	return item, args.Error(1)
}

func (m *mockIngestionService) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	args := m.Called(ctx, taskID)
	task, _ := args.Get(0).(*domain.Task)
	return task, args.Error(1)
}

func (m *mockIngestionService) ListChunks(ctx context.Context, itemID string) ([]*domain.Chunk, error) {
	args := m.Called(ctx, itemID)
	chunks, _ := args.Get(0).([]*domain.Chunk)
	return chunks, args.Error(1)
}

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	args := m.Called(ctx, token)
	authCtx, _ := args.Get(0).(*domain.AuthContext)
	return authCtx, args.Error(1)
}

func (m *mockAuthService) ValidateAPIKey(ctx context.Context, key string) (*domain.AuthContext, error) {
	args := m.Called(ctx, key)
	authCtx, _ := args.Get(0).(*domain.AuthContext)
	return authCtx, args.Error(1)
}

func (m *mockAuthService) IssueToken(ctx context.Context, subject, scope string, ttl time.Duration) (string, *domain.TokenClaims, error) {
	args := m.Called(ctx, subject, scope, ttl)
	claims, _ := args.Get(1).(*domain.TokenClaims)
	return args.String(0), claims, args.Error(2)
}

type mockTaskQueue struct {
	mock.Mock
}

func (m *mockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	return m.Called(ctx, task).Error(0)
}

func (m *mockTaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	args := m.Called(ctx, timeout)
	task, _ := args.Get(0).(*domain.Task)
	return task, args.Error(1)
}

func (m *mockTaskQueue) Ack(ctx context.Context, taskID string) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *mockTaskQueue) Nack(ctx context.Context, taskID string, reason string) error {
	return m.Called(ctx, taskID, reason).Error(0)
}

func (m *mockTaskQueue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*driven.QueueStats)
	return stats, args.Error(1)
}

func (m *mockTaskQueue) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTaskQueue) Close() error {
	return m.Called().Error(0)
}
