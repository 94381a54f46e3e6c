package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/TheMichaelB/possync/internal/models"
)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration, keyed by "METHOD path"
	Responses map[string]json.RawMessage

	// Error injection
	Err       error            // returned for every request when set
	PathErrs  map[string]error // per-route errors, keyed like Responses

	// Request tracking
	Requests []RecordedRequest
}

// RecordedRequest tracks one API call.
type RecordedRequest struct {
	Method string
	Path   string
	Body   json.RawMessage
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Responses: make(map[string]json.RawMessage),
		PathErrs:  make(map[string]error),
	}
}

// Respond configures the response for a route.
func (m *MockTransport) Respond(method, path string, body interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, _ := json.Marshal(body)
	m.Responses[method+" "+path] = data
}

// FailWith injects an error for a route.
func (m *MockTransport) FailWith(method, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PathErrs[method+" "+path] = err
}

// Request mocks an API call.
func (m *MockTransport) Request(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var raw json.RawMessage
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	m.Requests = append(m.Requests, RecordedRequest{Method: method, Path: path, Body: raw})

	if m.Err != nil {
		return nil, m.Err
	}
	if err, ok := m.PathErrs[method+" "+path]; ok {
		return nil, err
	}

	if resp, ok := m.Responses[method+" "+path]; ok {
		return resp, nil
	}

	// Default: echo the request body, so create/update flows round-trip.
	if raw != nil {
		return raw, nil
	}

	return json.RawMessage(`{}`), nil
}

// SetToken records the token.
func (m *MockTransport) SetToken(token string) {}

// Close is a no-op.
func (m *MockTransport) Close() error { return nil }

// CallCount returns how many requests matched the route.
func (m *MockTransport) CallCount(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.Requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// RemoteDown is a ready-made network failure for tests.
func RemoteDown() error {
	return &models.RemoteError{Method: "ANY", Path: "/", Err: fmt.Errorf("connection refused")}
}
