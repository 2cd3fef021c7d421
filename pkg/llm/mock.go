package llm

import (
	"context"
	"sync"
)

const (
	mockModel    = "mock-model"
	mockEndpoint = "http://mock-endpoint"
)

// MockLLMClient records prompts and answers through GenerateResponseFunc.
// With no func set every call returns an empty result.
type MockLLMClient struct {
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)
	Model                string
	Endpoint             string

	mu      sync.Mutex
	prompts []string
}

func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{Model: mockModel, Endpoint: mockEndpoint}
}

// NewStaticMockLLMClient answers every prompt with content.
func NewStaticMockLLMClient(model, content string) *MockLLMClient {
	m := NewMockLLMClient()
	m.Model = model
	m.GenerateResponseFunc = func(context.Context, string, string, float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: content, Model: model}, nil
	}
	return m
}

func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	fn := m.GenerateResponseFunc
	m.mu.Unlock()

	if fn == nil {
		return &GenerateResponseResult{}, nil
	}
	return fn(ctx, prompt, systemMessage, temperature)
}

func (m *MockLLMClient) GenerateResponseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns the prompts received so far, oldest first.
func (m *MockLLMClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *MockLLMClient) GetModel() string {
	if m.Model == "" {
		return mockModel
	}
	return m.Model
}

func (m *MockLLMClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return mockEndpoint
	}
	return m.Endpoint
}
