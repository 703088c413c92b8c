// Package llmtest provides scripted LLM and embedder clients for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/agenthands/episodegraph/internal/llm"
)

// MockLLMClient returns queued responses in order, then Response. Prompts
// and options of every call are recorded.
type MockLLMClient struct {
	mu            sync.Mutex
	Response      string
	ResponseQueue []string
	Err           error
	Prompts       []string
	Options       []llm.GenerateOptions
	CloseCalled   bool
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	m.Options = append(m.Options, llm.ApplyOptions(opts...))
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	return m.Response, nil
}

func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

func (m *MockLLMClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled = true
	return nil
}

// RoutingLLMClient answers by prompt kind, which keeps concurrent tests
// independent of call order.
type RoutingLLMClient struct {
	Route func(prompt string) (string, error)
}

func (r *RoutingLLMClient) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	if r.Route == nil {
		return "", errors.New("llmtest: no route")
	}
	return r.Route(prompt)
}

type MockEmbedderClient struct {
	mu       sync.Mutex
	Response []float32
	Err      error
	Inputs   []string
}

func (m *MockEmbedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Inputs = append(m.Inputs, text)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}
