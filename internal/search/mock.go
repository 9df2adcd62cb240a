package search

import (
	"context"
	"fmt"
)

// MockProvider implements Provider for tests.
type MockProvider struct {
	// Results maps query strings to canned results. A query with no
	// entry fails, simulating a service outage.
	Results map[string]*Result

	// Queries records every query seen, in order.
	Queries []string
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{Results: make(map[string]*Result)}
}

// Name returns the provider name.
func (m *MockProvider) Name() string {
	return "Mock"
}

// Search returns the canned result for the query.
func (m *MockProvider) Search(ctx context.Context, query string) (*Result, error) {
	m.Queries = append(m.Queries, query)
	result, ok := m.Results[query]
	if !ok {
		return nil, fmt.Errorf("mock search has no result for query %q", query)
	}
	return result, nil
}
