// Package llm wraps the language-model service behind a structured-call
// boundary: every call carries a JSON schema and decodes into a typed
// result, or fails closed.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the default Gemini model for synthesis calls.
const DefaultModel = "gemini-flash-lite-latest"

// ErrUnavailable marks transport-level failures: missing credentials,
// network errors, or the service refusing the call.
var ErrUnavailable = errors.New("llm service unavailable")

// ErrMalformed marks responses that arrived but violate the requested
// schema. Callers treat both error kinds as total failure of the call.
var ErrMalformed = errors.New("llm response violates schema")

// StructuredCaller is the language-model boundary used by the
// enrichment, digest, and interrogation components.
type StructuredCaller interface {
	// CallStructured sends the prompts with a response schema and
	// decodes the JSON reply into out.
	CallStructured(ctx context.Context, systemPrompt, userPrompt string, schema *genai.Schema, out any) error
}

// Client calls the Gemini API in JSON mode with a response schema.
type Client struct {
	gClient   *genai.Client
	modelName string
	maxTokens int32
}

// NewClient creates a Gemini-backed client. A missing API key is an
// error here rather than at call time.
func NewClient(ctx context.Context, apiKey, modelName string, maxTokens int32) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required (set GEMINI_API_KEY)", ErrUnavailable)
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{gClient: gClient, modelName: modelName, maxTokens: maxTokens}, nil
}

// CallStructured implements StructuredCaller against Gemini.
func (c *Client) CallStructured(ctx context.Context, systemPrompt, userPrompt string, schema *genai.Schema, out any) error {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: userPrompt}},
		Role:  "user",
	}}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = c.maxTokens
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, config)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := resp.Text()
	if text == "" {
		return fmt.Errorf("%w: empty response", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// ModelName returns the model this client calls.
func (c *Client) ModelName() string {
	return c.modelName
}
