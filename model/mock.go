package model

import (
	"context"
	"sync"
)

// Mock is a scripted ChatModel for tests and offline development.
//
// Responses are returned in order; when the script is exhausted the last
// response repeats. An Err set on a response is returned instead of output.
type Mock struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []([]Message)
}

// MockResponse is one scripted reply.
type MockResponse struct {
	Text string
	Err  error
}

// NewMock creates a Mock with the given script. An empty script yields empty
// responses.
func NewMock(responses ...MockResponse) *Mock {
	return &Mock{responses: responses}
}

// Chat returns the next scripted response and records the call.
func (m *Mock) Chat(_ context.Context, messages []Message) (ChatOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, messages)
	if len(m.responses) == 0 {
		return ChatOut{}, nil
	}
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	res := m.responses[idx]
	if res.Err != nil {
		return ChatOut{}, res.Err
	}
	return ChatOut{Text: res.Text}, nil
}

// Calls returns the recorded conversations, one per Chat invocation.
func (m *Mock) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]Message, len(m.calls))
	copy(out, m.calls)
	return out
}
