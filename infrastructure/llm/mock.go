package llm

import (
	"context"
	"encoding/json"
	"sync"
)

type MockResponse struct {
	Content json.RawMessage
	Usage   Usage
	Err     error
}

// MockProvider serves queued responses in order and records every request.
// Queued content goes through the same cleanup and schema validation as real output.
type MockProvider struct {
	mu         sync.Mutex
	responses  []MockResponse
	synthesize bool
	Calls      []Request
}

func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Synthesize makes an empty queue answer with a value built from the request schema
// instead of failing, so LLM_PROVIDER=mock drives the whole pipeline offline.
// Numbers take their schema maximum, so synthesized grades pass any quality gate.
func (m *MockProvider) Synthesize() *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synthesize = true
	return m
}

func (m *MockProvider) Generate(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	var resp MockResponse
	switch {
	case len(m.responses) > 0:
		resp = m.responses[0]
		m.responses = m.responses[1:]
	case m.synthesize:
		resp = MockResponse{Content: synthesized(req.Schema)}
	default:
		return nil, &ErrProviderUnavailable{}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	content, err := structuredContent(req.Schema, string(resp.Content))
	if err != nil {
		return nil, err
	}
	return &Response{
		Content:    content,
		Usage:      resp.Usage,
		Model:      "mock",
		StopReason: "end",
	}, nil
}

func (m *MockProvider) ModelID() string {
	return "mock"
}

func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func synthesized(schema *Schema) json.RawMessage {
	if schema == nil {
		return json.RawMessage("This is a mock answer.")
	}
	raw, err := json.Marshal(exampleOf("value", schema.Definition))
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

// exampleOf builds the smallest value that satisfies def for the schema keywords in use here.
func exampleOf(name string, def map[string]any) any {
	switch def["type"] {
	case "object":
		out := map[string]any{}
		props, _ := def["properties"].(map[string]any)
		for key, p := range props {
			if pdef, ok := p.(map[string]any); ok {
				out[key] = exampleOf(key, pdef)
			}
		}
		return out
	case "array":
		n, _ := number(def["minItems"])
		items, _ := def["items"].(map[string]any)
		out := make([]any, max(int(n), 1))
		for i := range out {
			out[i] = exampleOf(name, items)
		}
		return out
	case "number", "integer":
		if v, ok := number(def["maximum"]); ok {
			return v
		}
		v, _ := number(def["minimum"])
		return v
	case "boolean":
		return true
	default:
		return "mock " + name
	}
}
