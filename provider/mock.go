package provider

import (
	"context"
	"sync"
)

// MockProvider is a mock implementation of Provider for testing.
// Without InvokeFunc every task succeeds and reports its claims as
// modified.
type MockProvider struct {
	ProviderName string
	InvokeFunc   func(ctx context.Context, d Descriptor) (Outcome, error)

	mu    sync.Mutex
	calls []Descriptor
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Invoke implements Provider.
func (m *MockProvider) Invoke(ctx context.Context, d Descriptor) (Outcome, error) {
	m.mu.Lock()
	m.calls = append(m.calls, d)
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, d)
	}
	changes := make([]FileChange, len(d.Paths))
	for i, p := range d.Paths {
		changes[i] = FileChange{Path: p, Op: OpModified}
	}
	return Outcome{Status: StatusDone, Changes: changes}, nil
}

// Calls returns the descriptors received so far.
func (m *MockProvider) Calls() []Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Descriptor(nil), m.calls...)
}

// CallCount returns the number of invocations.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
