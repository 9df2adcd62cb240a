package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sonarSystemPrompt = "You are a research assistant finding recent articles, papers, and reports " +
	"about the configured topic area. For each source you find, provide the " +
	"full URL and a brief description. Focus on reputable sources."

// SonarProvider queries the Perplexity Sonar API, an OpenAI-compatible
// chat-completions endpoint that returns citations alongside the answer.
type SonarProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewSonarProvider creates a Sonar search provider.
func NewSonarProvider(apiKey, baseURL, model string) *SonarProvider {
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	if model == "" {
		model = "sonar"
	}
	return &SonarProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Name returns the provider name.
func (p *SonarProvider) Name() string {
	return "Sonar"
}

// Search runs one query and collects the answer with its citations.
// When the service omits the citation list, URLs are extracted from the
// answer text instead.
func (p *SonarProvider) Search(ctx context.Context, query string) (*Result, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("sonar API key not configured")
	}

	payload := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": sonarSystemPrompt},
			{"role": "user", "content": query},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sonar request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sonar request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute sonar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sonar request failed with status: %d", resp.StatusCode)
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Citations []string `json:"citations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse sonar response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return nil, fmt.Errorf("sonar response contained no choices")
	}

	content := apiResponse.Choices[0].Message.Content
	citations := apiResponse.Citations
	if len(citations) == 0 {
		citations = ExtractCitations(content)
	}

	return &Result{Content: content, Citations: citations}, nil
}
