package pr

import (
	"context"
	"sync"
)

// MockProvider is a mock implementation of Provider for testing.
type MockProvider struct {
	CreateOrUpdateFunc func(ctx context.Context, branch, summary string) (int, error)
	CheckStatusFunc    func(ctx context.Context, id int) (Status, error)

	mu        sync.Mutex
	summaries []string
	checks    int
}

// CreateOrUpdate implements Provider.
func (m *MockProvider) CreateOrUpdate(ctx context.Context, branch, summary string) (int, error) {
	m.mu.Lock()
	m.summaries = append(m.summaries, summary)
	m.mu.Unlock()

	if m.CreateOrUpdateFunc != nil {
		return m.CreateOrUpdateFunc(ctx, branch, summary)
	}
	return 1, nil
}

// CheckStatus implements Provider.
func (m *MockProvider) CheckStatus(ctx context.Context, id int) (Status, error) {
	m.mu.Lock()
	m.checks++
	m.mu.Unlock()

	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, id)
	}
	return StatusPassed, nil
}

// Summaries returns the summaries passed to CreateOrUpdate.
func (m *MockProvider) Summaries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.summaries...)
}

// CheckCount returns the number of CheckStatus calls.
func (m *MockProvider) CheckCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checks
}
