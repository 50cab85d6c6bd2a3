package threadsmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/threads"
)

// MockPlatform is a mock implementation of threads.Platform.
type MockPlatform struct {
	mock.Mock
}

// NewMockPlatform creates a new platform mock that asserts its expectations
// on test cleanup.
func NewMockPlatform(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPlatform {
	m := &MockPlatform{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockPlatform) ResolveForum(ctx context.Context, workspaceRef, forumID string) (*threads.Forum, error) {
	ret := m.Called(ctx, workspaceRef, forumID)

	var r0 *threads.Forum
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*threads.Forum)
	}
	return r0, ret.Error(1)
}

func (m *MockPlatform) FindExistingThreadForTask(ctx context.Context, forum threads.Forum, taskID string) (string, error) {
	ret := m.Called(ctx, forum, taskID)
	return ret.String(0), ret.Error(1)
}

func (m *MockPlatform) CreateThread(ctx context.Context, forum threads.Forum, task model.Task, tagMap map[string]string, mentionRef string) (string, error) {
	ret := m.Called(ctx, forum, task, tagMap, mentionRef)
	return ret.String(0), ret.Error(1)
}

func (m *MockPlatform) EnsureUnarchived(ctx context.Context, threadID string) error {
	ret := m.Called(ctx, threadID)
	return ret.Error(0)
}

func (m *MockPlatform) UpdateThreadName(ctx context.Context, threadID string, task model.Task) error {
	ret := m.Called(ctx, threadID, task)
	return ret.Error(0)
}

func (m *MockPlatform) UpdateThreadTags(ctx context.Context, threadID string, task model.Task, tagMap map[string]string) error {
	ret := m.Called(ctx, threadID, task, tagMap)
	return ret.Error(0)
}

func (m *MockPlatform) UpdateStarterMessage(ctx context.Context, threadID string, task model.Task) error {
	ret := m.Called(ctx, threadID, task)
	return ret.Error(0)
}

func (m *MockPlatform) CloseThread(ctx context.Context, threadID string, task model.Task, tagMap map[string]string) error {
	ret := m.Called(ctx, threadID, task, tagMap)
	return ret.Error(0)
}

func (m *MockPlatform) ListActiveThreads(ctx context.Context) ([]model.ThreadSnapshot, error) {
	ret := m.Called(ctx)

	var r0 []model.ThreadSnapshot
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.ThreadSnapshot)
	}
	return r0, ret.Error(1)
}

func (m *MockPlatform) ListArchivedThreads(ctx context.Context) ([]model.ThreadSnapshot, error) {
	ret := m.Called(ctx)

	var r0 []model.ThreadSnapshot
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.ThreadSnapshot)
	}
	return r0, ret.Error(1)
}
