package vision

import "context"

// Mock is a scripted vision model for tests and offline development.
type Mock struct {
	Result Result
	Err    error
	calls  int
}

// Extract returns the scripted result or error.
func (m *Mock) Extract(context.Context, []byte) (Result, error) {
	m.calls++
	if m.Err != nil {
		return Result{}, m.Err
	}
	return m.Result, nil
}

// Calls reports how many times Extract was invoked.
func (m *Mock) Calls() int { return m.calls }
