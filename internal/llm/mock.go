package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// MockCaller implements StructuredCaller for tests. Reply returns the
// raw JSON for a call; a nil Reply simulates an unavailable service.
type MockCaller struct {
	Reply func(systemPrompt, userPrompt string) (string, error)

	// Calls records the user prompts seen, in order.
	Calls []string
}

// CallStructured decodes the canned reply into out.
func (m *MockCaller) CallStructured(ctx context.Context, systemPrompt, userPrompt string, schema *genai.Schema, out any) error {
	m.Calls = append(m.Calls, userPrompt)
	if m.Reply == nil {
		return fmt.Errorf("%w: no mock reply configured", ErrUnavailable)
	}
	text, err := m.Reply(systemPrompt, userPrompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
